package services

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/popmint/popmint/popmint/database/models"
	"github.com/popmint/popmint/popmint/settlement"
	"github.com/popmint/popmint/popmint/vaultcrypto"
)

func vaultFixture(t *testing.T, maxClaims int) (*VaultService, *models.QRSession, *fakeVaultRepo, *fakeSettlement, *fakeDispatcher) {
	t.Helper()

	organizer := &models.Organizer{ID: "org-1", Wallet: testOrganizerWallet}
	campaign := &models.Campaign{
		ID:          "camp-1",
		Name:        "Summit 2026",
		OrganizerID: organizer.ID,
		Organizer:   organizer,
	}
	session := &models.QRSession{
		ID:         "sess-1",
		CampaignID: campaign.ID,
		Nonce:      "VZ1n9QmH2rLxWcYpK4TeD",
		MaxClaims:  maxClaims,
		CreatedAt:  time.Now().UTC(),
	}

	cipher, err := vaultcrypto.New(bytes.Repeat([]byte{0x42}, 32))
	if err != nil {
		t.Fatalf("vaultcrypto.New() error = %v", err)
	}

	vaults := newFakeVaultRepo()
	settlementClient := &fakeSettlement{balances: map[string]uint64{}}
	dispatcher := &fakeDispatcher{}

	svc := NewVaultService(
		vaults,
		newFakeSessionRepo(session),
		newFakeCampaignRepo(campaign),
		cipher,
		settlementClient,
		dispatcher,
	)
	return svc, session, vaults, settlementClient, dispatcher
}

func TestCostForClaims(t *testing.T) {
	tests := []struct {
		maxClaims    int
		wantSol      float64
		wantLamports uint64
	}{
		{maxClaims: 10, wantSol: 0.072, wantLamports: 72000000},
		{maxClaims: 1, wantSol: 0.054, wantLamports: 54000000},
		{maxClaims: 500, wantSol: 1.052, wantLamports: 1052000000},
	}

	for _, tt := range tests {
		if got := RequiredLamportsForClaims(tt.maxClaims); got != tt.wantLamports {
			t.Errorf("RequiredLamportsForClaims(%d) = %d, want %d", tt.maxClaims, got, tt.wantLamports)
		}
		got := CostForClaims(tt.maxClaims)
		if diff := got - tt.wantSol; diff > 1e-12 || diff < -1e-12 {
			t.Errorf("CostForClaims(%d) = %v, want %v", tt.maxClaims, got, tt.wantSol)
		}
		// The stored SOL figure must recover the exact lamport amount:
		// float noise must never inflate the requirement by one lamport.
		if lamports := requiredLamports(got); lamports != tt.wantLamports {
			t.Errorf("requiredLamports(%v) = %d, want %d", got, lamports, tt.wantLamports)
		}
	}
}

func TestOpenVault(t *testing.T) {
	ctx := context.Background()

	t.Run("creates vault with encrypted key", func(t *testing.T) {
		svc, session, vaults, _, _ := vaultFixture(t, 10)

		info, err := svc.OpenVault(ctx, session.ID, testOrganizerWallet)
		if err != nil {
			t.Fatalf("OpenVault() error = %v", err)
		}
		if info.PublicKey == "" {
			t.Error("vault has no public key")
		}
		if info.CostInSol != CostForClaims(10) {
			t.Errorf("cost = %v, want %v", info.CostInSol, CostForClaims(10))
		}
		if info.RequiredLamports != 72000000 {
			t.Errorf("required lamports = %d, want 72000000", info.RequiredLamports)
		}

		stored, err := vaults.GetByID(ctx, info.ID)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if stored.EncryptedPrivateKey == "" {
			t.Fatal("private key not stored")
		}
		secret, err := svc.RevealSecret(ctx, info.ID)
		if err != nil {
			t.Fatalf("RevealSecret() error = %v", err)
		}
		if len(secret) != 64 {
			t.Errorf("secret length = %d, want 64", len(secret))
		}
	})

	t.Run("idempotent for open vault", func(t *testing.T) {
		svc, session, _, _, _ := vaultFixture(t, 10)

		first, err := svc.OpenVault(ctx, session.ID, testOrganizerWallet)
		if err != nil {
			t.Fatalf("OpenVault() error = %v", err)
		}
		second, err := svc.OpenVault(ctx, session.ID, testOrganizerWallet)
		if err != nil {
			t.Fatalf("second OpenVault() error = %v", err)
		}
		if first.ID != second.ID || first.PublicKey != second.PublicKey {
			t.Errorf("vault rotated on reopen: %s -> %s", first.PublicKey, second.PublicKey)
		}
	})

	t.Run("rejects non-owner wallet", func(t *testing.T) {
		svc, session, _, _, _ := vaultFixture(t, 10)

		if _, err := svc.OpenVault(ctx, session.ID, testClaimerWallet); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("error = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("owner wallet check ignores case", func(t *testing.T) {
		svc, session, _, _, _ := vaultFixture(t, 10)

		// Wallet comparison is case-insensitive by policy.
		upper := "9XQEWVG816BUX9EPJHMAT23YVVM2ZWBRRPZB9PUSVFIN"
		if _, err := svc.OpenVault(ctx, session.ID, upper); err != nil {
			t.Errorf("OpenVault() with case-shifted wallet error = %v", err)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		svc, _, _, _, _ := vaultFixture(t, 10)

		if _, err := svc.OpenVault(ctx, "missing", testOrganizerWallet); !errors.Is(err, ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})
}

func TestConfirmFunding(t *testing.T) {
	ctx := context.Background()

	open := func(t *testing.T, svc *VaultService, sessionID string) *VaultInfo {
		t.Helper()
		info, err := svc.OpenVault(ctx, sessionID, testOrganizerWallet)
		if err != nil {
			t.Fatalf("OpenVault() error = %v", err)
		}
		return info
	}

	t.Run("funded vault is sealed and prepare dispatched", func(t *testing.T) {
		svc, session, vaults, settlementClient, dispatcher := vaultFixture(t, 10)
		info := open(t, svc, session.ID)
		settlementClient.balances[info.PublicKey] = 72000001

		got, err := svc.ConfirmFunding(ctx, info.ID, testOrganizerWallet)
		if err != nil {
			t.Fatalf("ConfirmFunding() error = %v", err)
		}
		if got.ID != info.ID {
			t.Errorf("confirmed vault = %s, want %s", got.ID, info.ID)
		}
		if !got.Minted {
			t.Error("returned vault not minted after funding confirmation")
		}
		stored, _ := vaults.GetByID(ctx, info.ID)
		if !stored.Minted {
			t.Error("stored vault not minted after funding confirmation")
		}
		if len(dispatcher.prepares) != 1 || dispatcher.prepares[0] != info.ID {
			t.Errorf("prepare queue = %v, want [%s]", dispatcher.prepares, info.ID)
		}
	})

	t.Run("repeated confirm does not dispatch twice", func(t *testing.T) {
		svc, session, _, settlementClient, dispatcher := vaultFixture(t, 10)
		info := open(t, svc, session.ID)
		settlementClient.balances[info.PublicKey] = 72000001

		if _, err := svc.ConfirmFunding(ctx, info.ID, testOrganizerWallet); err != nil {
			t.Fatalf("ConfirmFunding() error = %v", err)
		}
		if _, err := svc.ConfirmFunding(ctx, info.ID, testOrganizerWallet); !errors.Is(err, ErrVaultMinted) {
			t.Errorf("second ConfirmFunding() error = %v, want ErrVaultMinted", err)
		}
		if len(dispatcher.prepares) != 1 {
			t.Errorf("prepare jobs = %d, want exactly 1", len(dispatcher.prepares))
		}
	})

	t.Run("balance exactly at requirement is unfunded", func(t *testing.T) {
		svc, session, vaults, settlementClient, dispatcher := vaultFixture(t, 10)
		info := open(t, svc, session.ID)
		settlementClient.balances[info.PublicKey] = 72000000

		if _, err := svc.ConfirmFunding(ctx, info.ID, testOrganizerWallet); !errors.Is(err, ErrInsufficientFunding) {
			t.Errorf("error = %v, want ErrInsufficientFunding", err)
		}
		if len(dispatcher.prepares) != 0 {
			t.Errorf("prepare dispatched for unfunded vault: %v", dispatcher.prepares)
		}
		stored, _ := vaults.GetByID(ctx, info.ID)
		if stored.Minted {
			t.Error("unfunded vault was sealed")
		}
	})

	t.Run("empty vault is unfunded", func(t *testing.T) {
		svc, session, _, _, _ := vaultFixture(t, 10)
		info := open(t, svc, session.ID)

		if _, err := svc.ConfirmFunding(ctx, info.ID, testOrganizerWallet); !errors.Is(err, ErrInsufficientFunding) {
			t.Errorf("error = %v, want ErrInsufficientFunding", err)
		}
	})

	t.Run("settlement outage propagates", func(t *testing.T) {
		svc, session, _, settlementClient, _ := vaultFixture(t, 10)
		info := open(t, svc, session.ID)
		settlementClient.err = settlement.ErrSettlementUnavailable

		if _, err := svc.ConfirmFunding(ctx, info.ID, testOrganizerWallet); !errors.Is(err, settlement.ErrSettlementUnavailable) {
			t.Errorf("error = %v, want ErrSettlementUnavailable", err)
		}
	})

	t.Run("non-owner cannot confirm", func(t *testing.T) {
		svc, session, _, _, _ := vaultFixture(t, 10)
		info := open(t, svc, session.ID)

		if _, err := svc.ConfirmFunding(ctx, info.ID, testClaimerWallet); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("error = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("unknown vault", func(t *testing.T) {
		svc, _, _, _, _ := vaultFixture(t, 10)

		if _, err := svc.ConfirmFunding(ctx, "missing", testOrganizerWallet); !errors.Is(err, ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("sealed session reopens with a fresh keypair", func(t *testing.T) {
		svc, session, _, settlementClient, _ := vaultFixture(t, 3)
		info := open(t, svc, session.ID)
		settlementClient.balances[info.PublicKey] = RequiredLamportsForClaims(3) + 1

		if _, err := svc.ConfirmFunding(ctx, info.ID, testOrganizerWallet); err != nil {
			t.Fatalf("ConfirmFunding() error = %v", err)
		}

		// The minted vault no longer counts as open.
		next := open(t, svc, session.ID)
		if next.ID == info.ID {
			t.Error("reopened vault reused minted vault row")
		}
		if next.PublicKey == info.PublicKey {
			t.Error("reopened vault reused minted keypair")
		}
	})
}

func TestStaleVaults(t *testing.T) {
	ctx := context.Background()
	svc, session, vaults, _, _ := vaultFixture(t, 3)

	info, err := svc.OpenVault(ctx, session.ID, testOrganizerWallet)
	if err != nil {
		t.Fatalf("OpenVault() error = %v", err)
	}

	stale, err := svc.StaleVaults(ctx, time.Hour)
	if err != nil {
		t.Fatalf("StaleVaults() error = %v", err)
	}
	if len(stale) != 0 {
		t.Errorf("fresh vault listed as stale: %v", stale)
	}

	v, _ := vaults.GetByID(ctx, info.ID)
	v.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)

	stale, err = svc.StaleVaults(ctx, time.Hour)
	if err != nil {
		t.Fatalf("StaleVaults() error = %v", err)
	}
	if len(stale) != 1 || stale[0].ID != info.ID {
		t.Errorf("stale = %v, want [%s]", stale, info.ID)
	}
}
