package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/popmint/popmint/popmint/database/models"
	"github.com/popmint/popmint/popmint/database/repositories"
)

// Session TTL presets. "never" produces a session with no expiry.
var sessionTTLs = map[string]time.Duration{
	"12h":   12 * time.Hour,
	"1d":    24 * time.Hour,
	"2d":    48 * time.Hour,
	"never": 0,
}

// SessionService manages QR claim sessions: creation, lookup by nonce, and
// resolution of the currently active session for a campaign.
type SessionService struct {
	sessions  repositories.SessionRepository
	campaigns repositories.CampaignRepository
	now       func() time.Time
}

func NewSessionService(sessions repositories.SessionRepository, campaigns repositories.CampaignRepository) *SessionService {
	return &SessionService{
		sessions:  sessions,
		campaigns: campaigns,
		now:       time.Now,
	}
}

type CreateSessionParams struct {
	CampaignID      string
	OrganizerWallet string
	TTL             string
	MaxClaims       int
}

func (s *SessionService) CreateSession(ctx context.Context, params CreateSessionParams) (*models.QRSession, error) {
	if params.MaxClaims <= 0 {
		return nil, fmt.Errorf("%w: max claims must be positive", ErrInvalidArgument)
	}
	ttl, ok := sessionTTLs[params.TTL]
	if !ok {
		return nil, fmt.Errorf("%w: unknown ttl %q", ErrInvalidArgument, params.TTL)
	}

	campaign, err := s.campaigns.GetByID(ctx, params.CampaignID)
	if errors.Is(err, repositories.ErrCampaignNotFound) {
		return nil, fmt.Errorf("%w: campaign %s", ErrNotFound, params.CampaignID)
	}
	if err != nil {
		return nil, err
	}
	if campaign.Organizer == nil || !strings.EqualFold(campaign.Organizer.Wallet, params.OrganizerWallet) {
		return nil, ErrUnauthorized
	}

	nonce, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	session := &models.QRSession{
		ID:         mustNanoID(),
		CampaignID: campaign.ID,
		Nonce:      nonce,
		MaxClaims:  params.MaxClaims,
	}
	if ttl > 0 {
		expires := s.now().UTC().Add(ttl)
		session.ExpiresAt = &expires
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// GetByNonce resolves a scanned QR nonce to a usable session. An expired
// or exhausted session is an error here, not a payload: the scanner should
// learn the window is closed before it ever builds a proof.
func (s *SessionService) GetByNonce(ctx context.Context, nonce string) (*models.QRSession, error) {
	if nonce == "" {
		return nil, fmt.Errorf("%w: nonce is required", ErrInvalidArgument)
	}
	session, err := s.sessions.GetByNonce(ctx, nonce)
	if errors.Is(err, repositories.ErrSessionNotFound) {
		return nil, fmt.Errorf("%w: session", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if session.Expired(s.now().UTC()) {
		return nil, ErrSessionExpired
	}
	if session.CurrentClaims >= session.MaxClaims {
		return nil, ErrCapacityExceeded
	}
	return session, nil
}

func (s *SessionService) GetDetail(ctx context.Context, id string) (*models.QRSession, error) {
	session, err := s.sessions.GetDetail(ctx, id)
	if errors.Is(err, repositories.ErrSessionNotFound) {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	return session, err
}

// ResolveActive returns the newest usable session for a campaign, or
// ErrNotFound when every session is expired or at capacity.
func (s *SessionService) ResolveActive(ctx context.Context, campaignID string) (*models.QRSession, error) {
	session, err := s.sessions.ResolveActive(ctx, campaignID, s.now().UTC())
	if errors.Is(err, repositories.ErrSessionNotFound) {
		return nil, fmt.Errorf("%w: no active session for campaign %s", ErrNotFound, campaignID)
	}
	return session, err
}

func (s *SessionService) ListByCampaign(ctx context.Context, campaignID string) ([]*models.QRSession, error) {
	return s.sessions.ListByCampaign(ctx, campaignID)
}

func mustNanoID() string {
	id, err := gonanoid.New()
	if err != nil {
		// crypto/rand failures are not recoverable at this level
		panic(err)
	}
	return id
}
