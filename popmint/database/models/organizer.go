package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Organizer struct {
	bun.BaseModel `bun:"table:organizers,alias:org"`

	ID        string    `bun:"id,pk"`
	Wallet    string    `bun:"wallet,notnull,unique"`
	Email     string    `bun:"email"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}
