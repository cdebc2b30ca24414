package popmint

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"

	"github.com/pelletier/go-toml/v2"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type Config struct {
	Log        LogConfig        `toml:"log"`
	Server     ServerConfig     `toml:"server"`
	DB         DBConfig         `toml:"db"`
	Redis      RedisConfig      `toml:"redis"`
	Mongo      MongoConfig      `toml:"mongo"`
	Settlement SettlementConfig `toml:"settlement"`
	Vault      VaultConfig      `toml:"vault"`
	Spaces     SpacesConfig     `toml:"spaces"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

type ServerConfig struct {
	Addr         string   `toml:"addr"`
	AllowOrigins []string `toml:"allow_origins"`
}

type DBConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	PoolSize int    `toml:"pool_size"`
}

type RedisConfig struct {
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	MintQueue    string `toml:"mint_queue"`
	PrepareQueue string `toml:"prepare_queue"`
}

type MongoConfig struct {
	URI      string `toml:"uri"`
	Database string `toml:"database"`
}

type SettlementConfig struct {
	RPCEndpoint string `toml:"rpc_endpoint"`
	TimeoutSecs int    `toml:"timeout_secs"`
}

type VaultConfig struct {
	// EncryptionKey is the base64-encoded 32-byte AES key for vault
	// private keys. Process-wide, read-only after startup.
	EncryptionKey string `toml:"encryption_key"`
}

type SpacesConfig struct {
	Key    string `toml:"key"`
	Secret string `toml:"secret"`
	Region string `toml:"region"`
	Bucket string `toml:"bucket"`
	Root   string `toml:"root"`
}

// DecodeEncryptionKey decodes and validates the configured vault key.
func (c VaultConfig) DecodeEncryptionKey() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("vault encryption key is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("vault encryption key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}
