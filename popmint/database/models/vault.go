package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Vault custodies the ephemeral funding keypair for one session. The private
// key is stored encrypted only; Minted is monotonic false -> true and the row
// is immutable once minted.
type Vault struct {
	bun.BaseModel `bun:"table:vaults,alias:v"`

	ID                  string    `bun:"id,pk"`
	QRSessionID         string    `bun:"qr_session_id,notnull"`
	PublicKey           string    `bun:"public_key,notnull"`
	EncryptedPrivateKey string    `bun:"private_key,notnull"`
	CostInSol           float64   `bun:"cost_in_sol,notnull"`
	Minted              bool      `bun:"minted,notnull,default:false"`
	CreatedAt           time.Time `bun:"created_at,notnull"`
	UpdatedAt           time.Time `bun:"updated_at,notnull"`
}
