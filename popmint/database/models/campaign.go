package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Campaign struct {
	bun.BaseModel `bun:"table:campaigns,alias:cmp"`

	ID                string    `bun:"id,pk"`
	Name              string    `bun:"name,notnull"`
	Description       string    `bun:"description"`
	TokenSymbol       string    `bun:"token_symbol,notnull"`
	TokenURI          string    `bun:"token_uri"`
	TokenMediaType    string    `bun:"token_media_type"`
	MetadataURI       string    `bun:"metadata_uri"`
	QRCodeURL         string    `bun:"qr_code_url"`
	IsActive          bool      `bun:"is_active,notnull"`
	StartsAt          time.Time `bun:"starts_at"`
	EndsAt            time.Time `bun:"ends_at"`
	ClaimLimitPerUser int       `bun:"claim_limit_per_user,notnull"`
	OrganizerID       string    `bun:"organizer_id,notnull"`
	CreatedAt         time.Time `bun:"created_at,notnull"`
	UpdatedAt         time.Time `bun:"updated_at,notnull"`

	Organizer *Organizer `bun:"rel:belongs-to,join:organizer_id=id"`
}
