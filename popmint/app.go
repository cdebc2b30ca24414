package popmint

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/popmint/popmint/popmint/database"
	"github.com/popmint/popmint/popmint/database/repositories"
	"github.com/popmint/popmint/popmint/queue"
	"github.com/popmint/popmint/popmint/services"
	"github.com/popmint/popmint/popmint/settlement"
	"github.com/popmint/popmint/popmint/vaultcrypto"
	"github.com/popmint/popmint/popmint/zkproof"
)

// App wires every component of the claim pipeline together. All
// dependencies are explicit; nothing reaches for globals.
type App struct {
	Cfg     *Config
	Version string
	Commit  string

	DB    *database.DB
	Redis *redis.Client
	Mongo *mongo.Client

	CampaignRepository repositories.CampaignRepository
	SessionRepository  repositories.SessionRepository
	ClaimRepository    repositories.ClaimRepository
	VaultRepository    repositories.VaultRepository

	CampaignService *services.CampaignService
	SessionService  *services.SessionService
	ClaimService    *services.ClaimService
	VaultService    *services.VaultService
	MediaService    *services.MediaService
}

func New(cfg *Config, version, commit string) *App {
	return &App{
		Cfg:     cfg,
		Version: version,
		Commit:  commit,
	}
}

// Setup connects the backing stores and builds the service graph. The
// verifying key path points at a snarkjs verification_key.json export.
func (a *App) Setup(ctx context.Context, verifyingKeyPath string) error {
	db, err := database.New(ctx, database.DBConfig(a.Cfg.DB))
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	a.DB = db

	if err := db.InitializeSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	a.Redis = redis.NewClient(&redis.Options{
		Addr:     a.Cfg.Redis.Addr,
		Password: a.Cfg.Redis.Password,
		DB:       a.Cfg.Redis.DB,
	})
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(a.Cfg.Mongo.URI))
	if err != nil {
		return fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := mongoClient.Ping(ctx, nil); err != nil {
		return fmt.Errorf("failed to ping mongo: %w", err)
	}
	a.Mongo = mongoClient

	vk, err := zkproof.LoadVerifyingKey(verifyingKeyPath)
	if err != nil {
		return fmt.Errorf("failed to load verifying key: %w", err)
	}
	verifier, err := zkproof.NewVerifier(vk)
	if err != nil {
		return fmt.Errorf("failed to build verifier: %w", err)
	}

	encryptionKey, err := a.Cfg.Vault.DecodeEncryptionKey()
	if err != nil {
		return err
	}
	cipher, err := vaultcrypto.New(encryptionKey)
	if err != nil {
		return fmt.Errorf("failed to initialize vault cipher: %w", err)
	}

	a.CampaignRepository = repositories.NewCampaignRepository(db.BunDB())
	a.SessionRepository = repositories.NewSessionRepository(db.BunDB())
	a.ClaimRepository = repositories.NewClaimRepository(db.BunDB())
	a.VaultRepository = repositories.NewVaultRepository(db.BunDB())

	dispatcher := queue.NewDispatcher(a.Redis, a.Cfg.Redis.MintQueue, a.Cfg.Redis.PrepareQueue)
	artifacts := zkproof.NewStore(mongoClient.Database(a.Cfg.Mongo.Database))
	settlementClient := settlement.New(a.Cfg.Settlement.RPCEndpoint, a.Cfg.Settlement.TimeoutSecs)

	a.CampaignService = services.NewCampaignService(a.CampaignRepository)
	a.SessionService = services.NewSessionService(a.SessionRepository, a.CampaignRepository)
	a.ClaimService = services.NewClaimService(
		a.ClaimRepository,
		a.SessionRepository,
		a.CampaignRepository,
		verifier,
		artifacts,
		dispatcher,
	)
	a.VaultService = services.NewVaultService(
		a.VaultRepository,
		a.SessionRepository,
		a.CampaignRepository,
		cipher,
		settlementClient,
		dispatcher,
	)

	media, err := services.NewMediaService(
		a.Cfg.Spaces.Key,
		a.Cfg.Spaces.Secret,
		a.Cfg.Spaces.Region,
		a.Cfg.Spaces.Bucket,
		a.Cfg.Spaces.Root,
	)
	if err != nil {
		return err
	}
	a.MediaService = media

	return nil
}

// Close shuts down backing store connections.
func (a *App) Close(ctx context.Context) {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			slog.Error("Failed to close redis", slog.Any("error", err))
		}
	}
	if a.Mongo != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.Mongo.Disconnect(shutdownCtx); err != nil {
			slog.Error("Failed to close mongo", slog.Any("error", err))
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
