package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/popmint/popmint/popmint/database/models"
)

func sessionFixture(t *testing.T) (*SessionService, *models.Campaign, *fakeSessionRepo) {
	t.Helper()

	organizer := &models.Organizer{ID: "org-1", Wallet: testOrganizerWallet}
	campaign := &models.Campaign{
		ID:          "camp-1",
		Name:        "Summit 2026",
		OrganizerID: organizer.ID,
		Organizer:   organizer,
	}

	sessions := newFakeSessionRepo()
	svc := NewSessionService(sessions, newFakeCampaignRepo(campaign))
	return svc, campaign, sessions
}

func TestCreateSession(t *testing.T) {
	ctx := context.Background()

	t.Run("ttl presets", func(t *testing.T) {
		tests := []struct {
			ttl        string
			wantExpiry time.Duration
			wantNever  bool
		}{
			{ttl: "12h", wantExpiry: 12 * time.Hour},
			{ttl: "1d", wantExpiry: 24 * time.Hour},
			{ttl: "2d", wantExpiry: 48 * time.Hour},
			{ttl: "never", wantNever: true},
		}

		for _, tt := range tests {
			t.Run(tt.ttl, func(t *testing.T) {
				svc, campaign, _ := sessionFixture(t)
				start := time.Now().UTC()

				session, err := svc.CreateSession(ctx, CreateSessionParams{
					CampaignID:      campaign.ID,
					OrganizerWallet: testOrganizerWallet,
					TTL:             tt.ttl,
					MaxClaims:       25,
				})
				if err != nil {
					t.Fatalf("CreateSession() error = %v", err)
				}
				if tt.wantNever {
					if session.ExpiresAt != nil {
						t.Errorf("ExpiresAt = %v, want nil", session.ExpiresAt)
					}
					return
				}
				if session.ExpiresAt == nil {
					t.Fatal("ExpiresAt = nil, want expiry")
				}
				got := session.ExpiresAt.Sub(start)
				if got < tt.wantExpiry-time.Minute || got > tt.wantExpiry+time.Minute {
					t.Errorf("expiry in %v, want about %v", got, tt.wantExpiry)
				}
			})
		}
	})

	t.Run("generates distinct nonces", func(t *testing.T) {
		svc, campaign, _ := sessionFixture(t)

		seen := map[string]bool{}
		for i := 0; i < 5; i++ {
			session, err := svc.CreateSession(ctx, CreateSessionParams{
				CampaignID:      campaign.ID,
				OrganizerWallet: testOrganizerWallet,
				TTL:             "1d",
				MaxClaims:       10,
			})
			if err != nil {
				t.Fatalf("CreateSession() error = %v", err)
			}
			if len(session.Nonce) != 21 {
				t.Errorf("nonce length = %d, want 21", len(session.Nonce))
			}
			if seen[session.Nonce] {
				t.Fatalf("nonce %q repeated", session.Nonce)
			}
			seen[session.Nonce] = true
		}
	})

	t.Run("validation", func(t *testing.T) {
		svc, campaign, _ := sessionFixture(t)

		tests := []struct {
			name    string
			params  CreateSessionParams
			wantErr error
		}{
			{
				name:    "zero max claims",
				params:  CreateSessionParams{CampaignID: campaign.ID, OrganizerWallet: testOrganizerWallet, TTL: "1d"},
				wantErr: ErrInvalidArgument,
			},
			{
				name:    "unknown ttl",
				params:  CreateSessionParams{CampaignID: campaign.ID, OrganizerWallet: testOrganizerWallet, TTL: "3w", MaxClaims: 5},
				wantErr: ErrInvalidArgument,
			},
			{
				name:    "unknown campaign",
				params:  CreateSessionParams{CampaignID: "missing", OrganizerWallet: testOrganizerWallet, TTL: "1d", MaxClaims: 5},
				wantErr: ErrNotFound,
			},
			{
				name:    "wallet does not own campaign",
				params:  CreateSessionParams{CampaignID: campaign.ID, OrganizerWallet: testClaimerWallet, TTL: "1d", MaxClaims: 5},
				wantErr: ErrUnauthorized,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if _, err := svc.CreateSession(ctx, tt.params); !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
			})
		}
	})
}

func TestResolveActive(t *testing.T) {
	ctx := context.Background()
	svc, campaign, sessions := sessionFixture(t)

	past := time.Now().UTC().Add(-time.Hour)
	expired := &models.QRSession{
		ID: "sess-expired", CampaignID: campaign.ID, Nonce: "n1",
		MaxClaims: 10, ExpiresAt: &past, CreatedAt: time.Now().UTC().Add(-2 * time.Hour),
	}
	full := &models.QRSession{
		ID: "sess-full", CampaignID: campaign.ID, Nonce: "n2",
		MaxClaims: 3, CurrentClaims: 3, CreatedAt: time.Now().UTC().Add(-time.Hour),
	}
	older := &models.QRSession{
		ID: "sess-older", CampaignID: campaign.ID, Nonce: "n3",
		MaxClaims: 10, CreatedAt: time.Now().UTC().Add(-30 * time.Minute),
	}
	newest := &models.QRSession{
		ID: "sess-newest", CampaignID: campaign.ID, Nonce: "n4",
		MaxClaims: 10, CreatedAt: time.Now().UTC(),
	}
	for _, s := range []*models.QRSession{expired, full, older, newest} {
		sessions.sessions[s.ID] = s
	}

	got, err := svc.ResolveActive(ctx, campaign.ID)
	if err != nil {
		t.Fatalf("ResolveActive() error = %v", err)
	}
	if got.ID != newest.ID {
		t.Errorf("active session = %s, want %s", got.ID, newest.ID)
	}

	// With the newest full, the older usable session wins.
	newest.CurrentClaims = newest.MaxClaims
	got, err = svc.ResolveActive(ctx, campaign.ID)
	if err != nil {
		t.Fatalf("ResolveActive() error = %v", err)
	}
	if got.ID != older.ID {
		t.Errorf("active session = %s, want %s", got.ID, older.ID)
	}

	if _, err := svc.ResolveActive(ctx, "other-campaign"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestGetByNonce(t *testing.T) {
	ctx := context.Background()
	svc, campaign, _ := sessionFixture(t)

	created, err := svc.CreateSession(ctx, CreateSessionParams{
		CampaignID:      campaign.ID,
		OrganizerWallet: testOrganizerWallet,
		TTL:             "12h",
		MaxClaims:       5,
	})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	got, err := svc.GetByNonce(ctx, created.Nonce)
	if err != nil {
		t.Fatalf("GetByNonce() error = %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("session = %s, want %s", got.ID, created.ID)
	}

	if _, err := svc.GetByNonce(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	if _, err := svc.GetByNonce(ctx, ""); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("error = %v, want ErrInvalidArgument", err)
	}

	// A nonce resolving to a closed window is an error, never a payload.
	past := time.Now().UTC().Add(-time.Minute)
	created.ExpiresAt = &past
	if _, err := svc.GetByNonce(ctx, created.Nonce); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("expired session: error = %v, want ErrSessionExpired", err)
	}

	created.ExpiresAt = nil
	created.CurrentClaims = created.MaxClaims
	if _, err := svc.GetByNonce(ctx, created.Nonce); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("full session: error = %v, want ErrCapacityExceeded", err)
	}
}
