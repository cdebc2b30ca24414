package models

import (
	"time"

	"github.com/uptrace/bun"
)

// QRSession is one time-boxed, capacity-limited claim window for a campaign.
// ExpiresAt == nil means the session never expires; expiry is a computed
// property of time, never a stored transition.
type QRSession struct {
	bun.BaseModel `bun:"table:qr_sessions,alias:qrs"`

	ID            string     `bun:"id,pk"`
	CampaignID    string     `bun:"campaign_id,notnull"`
	Nonce         string     `bun:"nonce,notnull,unique"`
	MaxClaims     int        `bun:"max_claims,notnull"`
	CurrentClaims int        `bun:"current_claims,notnull,default:0"`
	ExpiresAt     *time.Time `bun:"expires_at"`
	CreatedAt     time.Time  `bun:"created_at,notnull"`

	Campaign *Campaign `bun:"rel:belongs-to,join:campaign_id=id"`
	Claims   []*Claim  `bun:"rel:has-many,join:id=qr_session_id"`
	Vaults   []*Vault  `bun:"rel:has-many,join:id=qr_session_id"`
}

// Usable reports whether the session can still admit a claim at t.
func (s *QRSession) Usable(t time.Time) bool {
	return !s.Expired(t) && s.CurrentClaims < s.MaxClaims
}

func (s *QRSession) Expired(t time.Time) bool {
	return s.ExpiresAt != nil && !t.Before(*s.ExpiresAt)
}
