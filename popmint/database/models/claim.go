package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ClaimStatus string

const (
	ClaimStatusSubmitted ClaimStatus = "SUBMITTED"
	ClaimStatusClaimed   ClaimStatus = "CLAIMED"
	ClaimStatusFailed    ClaimStatus = "FAILED"
)

// Terminal reports whether no further transition is allowed out of s.
func (s ClaimStatus) Terminal() bool {
	return s == ClaimStatusClaimed || s == ClaimStatusFailed
}

// Claim records one device's claim against a campaign. DeviceHash is a
// one-way fingerprint; raw device data is never stored. At most one claim
// exists per (campaign_id, device_hash), enforced by a unique index.
type Claim struct {
	bun.BaseModel `bun:"table:claims,alias:cl"`

	ID          string      `bun:"id,pk"`
	CampaignID  string      `bun:"campaign_id,notnull"`
	QRSessionID string      `bun:"qr_session_id,notnull"`
	OrganizerID string      `bun:"organizer_id,notnull"`
	Wallet      string      `bun:"wallet"`
	DeviceHash  string      `bun:"device_hash,notnull"`
	GeoRegion   string      `bun:"geo_region"`
	ZKProofRef  string      `bun:"zk_proof_ref,notnull"`
	Status      ClaimStatus `bun:"status,notnull"`
	CreatedAt   time.Time   `bun:"created_at,notnull"`
	UpdatedAt   time.Time   `bun:"updated_at,notnull"`
}
