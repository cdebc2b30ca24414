package models

import (
	"time"

	dbmodels "github.com/popmint/popmint/popmint/database/models"
	"github.com/popmint/popmint/popmint/services"
	"github.com/popmint/popmint/popmint/zkproof"
)

// CreateCampaignRequest is the payload for registering a new campaign.
type CreateCampaignRequest struct {
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	TokenSymbol       string    `json:"token_symbol"`
	TokenURI          string    `json:"token_uri"`
	TokenMediaType    string    `json:"token_media_type"`
	MetadataURI       string    `json:"metadata_uri"`
	OrganizerWallet   string    `json:"organizer_wallet"`
	OrganizerEmail    string    `json:"organizer_email"`
	StartsAt          time.Time `json:"starts_at"`
	EndsAt            time.Time `json:"ends_at"`
	ClaimLimitPerUser int       `json:"claim_limit_per_user"`
}

// UpdateCampaignRequest is a partial edit of a campaign; omitted fields
// keep their current value.
type UpdateCampaignRequest struct {
	OrganizerWallet string     `json:"organizer_wallet"`
	Name            *string    `json:"name"`
	Description     *string    `json:"description"`
	TokenURI        *string    `json:"token_uri"`
	MetadataURI     *string    `json:"metadata_uri"`
	IsActive        *bool      `json:"is_active"`
	EndsAt          *time.Time `json:"ends_at"`
}

// CampaignResponse is the public view of a campaign.
type CampaignResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	TokenSymbol     string    `json:"token_symbol"`
	TokenURI        string    `json:"token_uri"`
	TokenMediaType  string    `json:"token_media_type"`
	MetadataURI     string    `json:"metadata_uri"`
	IsActive        bool      `json:"is_active"`
	OrganizerWallet string    `json:"organizer_wallet,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func NewCampaignResponse(c *dbmodels.Campaign) *CampaignResponse {
	resp := &CampaignResponse{
		ID:             c.ID,
		Name:           c.Name,
		Description:    c.Description,
		TokenSymbol:    c.TokenSymbol,
		TokenURI:       c.TokenURI,
		TokenMediaType: c.TokenMediaType,
		MetadataURI:    c.MetadataURI,
		IsActive:       c.IsActive,
		CreatedAt:      c.CreatedAt,
	}
	if c.Organizer != nil {
		resp.OrganizerWallet = c.Organizer.Wallet
	}
	return resp
}

// CreateSessionRequest opens a new claim window for a campaign.
type CreateSessionRequest struct {
	CampaignID      string `json:"campaign_id"`
	OrganizerWallet string `json:"organizer_wallet"`
	TTL             string `json:"ttl"`
	MaxClaims       int    `json:"max_claims"`
}

// SessionResponse is the public view of a QR session. The nonce is only
// included for the organizer who created it; scanners learn it from the QR
// code itself.
type SessionResponse struct {
	ID            string     `json:"id"`
	CampaignID    string     `json:"campaign_id"`
	Nonce         string     `json:"nonce,omitempty"`
	MaxClaims     int        `json:"max_claims"`
	CurrentClaims int        `json:"current_claims"`
	ExpiresAt     *time.Time `json:"expires_at"`
	CreatedAt     time.Time  `json:"created_at"`
	Usable        bool       `json:"usable"`
}

func NewSessionResponse(s *dbmodels.QRSession, includeNonce bool) *SessionResponse {
	resp := &SessionResponse{
		ID:            s.ID,
		CampaignID:    s.CampaignID,
		MaxClaims:     s.MaxClaims,
		CurrentClaims: s.CurrentClaims,
		ExpiresAt:     s.ExpiresAt,
		CreatedAt:     s.CreatedAt,
		Usable:        s.Usable(time.Now().UTC()),
	}
	if includeNonce {
		resp.Nonce = s.Nonce
	}
	return resp
}

// SubmitClaimRequest carries one scan: the session nonce, the device hash,
// and the zk eligibility proof with its public signals.
type SubmitClaimRequest struct {
	Nonce         string           `json:"nonce"`
	Wallet        string           `json:"wallet"`
	DeviceHash    string           `json:"device_hash"`
	GeoRegion     string           `json:"geo_region"`
	Proof         *zkproof.RawProof `json:"proof"`
	PublicSignals []string         `json:"public_signals"`
}

// ClaimResponse reports a claim's identity and current status.
type ClaimResponse struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id"`
	SessionID  string    `json:"session_id"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func NewClaimResponse(c *dbmodels.Claim) *ClaimResponse {
	return &ClaimResponse{
		ID:         c.ID,
		CampaignID: c.CampaignID,
		SessionID:  c.QRSessionID,
		Status:     string(c.Status),
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

// ClaimStatusResponse is the polling view of a claim. Status is null when
// the id is unknown; the claim body is only present for known claims.
type ClaimStatusResponse struct {
	Status *string        `json:"status"`
	Claim  *ClaimResponse `json:"claim,omitempty"`
}

func NewClaimStatusResponse(c *dbmodels.Claim) *ClaimStatusResponse {
	if c == nil {
		return &ClaimStatusResponse{}
	}
	status := string(c.Status)
	return &ClaimStatusResponse{
		Status: &status,
		Claim:  NewClaimResponse(c),
	}
}

// VaultResponse is the organizer's view of a funding vault. The private key
// never appears here.
type VaultResponse struct {
	ID               string  `json:"id"`
	SessionID        string  `json:"session_id"`
	PublicKey        string  `json:"public_key"`
	CostInSol        float64 `json:"cost_in_sol"`
	RequiredLamports uint64  `json:"required_lamports"`
	Minted           bool    `json:"minted"`
}

func NewVaultResponse(v *services.VaultInfo) *VaultResponse {
	return &VaultResponse{
		ID:               v.ID,
		SessionID:        v.QRSessionID,
		PublicKey:        v.PublicKey,
		CostInSol:        v.CostInSol,
		RequiredLamports: v.RequiredLamports,
		Minted:           v.Minted,
	}
}

// CheckDeviceResponse reports whether a device has already claimed from a
// campaign and, if so, when the claim was recorded.
type CheckDeviceResponse struct {
	CampaignID string     `json:"campaign_id"`
	Claimed    bool       `json:"claimed"`
	Timestamp  *time.Time `json:"timestamp"`
}

// MediaUploadResponse returns the public URL of an uploaded media object.
type MediaUploadResponse struct {
	URL string `json:"url"`
}
