package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/popmint/popmint/popmint/database/models"
	"github.com/popmint/popmint/popmint/database/repositories"
	"github.com/popmint/popmint/popmint/queue"
	"github.com/popmint/popmint/popmint/settlement"
	"github.com/popmint/popmint/popmint/vaultcrypto"
)

// Per-mint rent and fee estimate, plus fixed collection setup and a
// transaction fee buffer. Held in lamports so the arithmetic is exact;
// the SOL figures are 0.002, 0.05 and 0.002.
const (
	lamportsPerClaim   = 2_000_000
	lamportsCollection = 50_000_000
	lamportsFeeBuffer  = 2_000_000
)

// VaultService custodies the ephemeral funding keypair of a session. The
// private key exists in plaintext only inside this process; at rest it is
// AES-GCM encrypted.
type VaultService struct {
	vaults     repositories.VaultRepository
	sessions   repositories.SessionRepository
	campaigns  repositories.CampaignRepository
	cipher     *vaultcrypto.Cipher
	settlement settlement.Client
	queue      queue.Dispatcher
}

func NewVaultService(
	vaults repositories.VaultRepository,
	sessions repositories.SessionRepository,
	campaigns repositories.CampaignRepository,
	cipher *vaultcrypto.Cipher,
	settlementClient settlement.Client,
	dispatcher queue.Dispatcher,
) *VaultService {
	return &VaultService{
		vaults:     vaults,
		sessions:   sessions,
		campaigns:  campaigns,
		cipher:     cipher,
		settlement: settlementClient,
		queue:      dispatcher,
	}
}

// VaultInfo is what callers may see of a vault. The private key never
// leaves the service.
type VaultInfo struct {
	ID               string
	QRSessionID      string
	PublicKey        string
	CostInSol        float64
	RequiredLamports uint64
	Minted           bool
}

func vaultInfo(v *models.Vault) *VaultInfo {
	return &VaultInfo{
		ID:               v.ID,
		QRSessionID:      v.QRSessionID,
		PublicKey:        v.PublicKey,
		CostInSol:        v.CostInSol,
		RequiredLamports: requiredLamports(v.CostInSol),
		Minted:           v.Minted,
	}
}

// RequiredLamportsForClaims is the exact deposit an organizer must exceed
// to fund a session of the given capacity.
func RequiredLamportsForClaims(maxClaims int) uint64 {
	return uint64(maxClaims)*lamportsPerClaim + lamportsCollection + lamportsFeeBuffer
}

// CostForClaims is the same deposit expressed in SOL.
func CostForClaims(maxClaims int) float64 {
	return float64(RequiredLamportsForClaims(maxClaims)) / settlement.LamportsPerSol
}

// requiredLamports recovers the lamport amount from a stored SOL cost.
// Costs are always whole lamport multiples, so rounding strips the float
// noise that a naive ceil would inflate into an extra lamport.
func requiredLamports(costInSol float64) uint64 {
	return uint64(math.Round(costInSol * settlement.LamportsPerSol))
}

// OpenVault returns the session's open vault, creating one if none exists.
// Repeated calls return the same vault and never rotate the keypair.
func (s *VaultService) OpenVault(ctx context.Context, sessionID, organizerWallet string) (*VaultInfo, error) {
	session, err := s.ownedSession(ctx, sessionID, organizerWallet)
	if err != nil {
		return nil, err
	}

	existing, err := s.vaults.GetOpenBySession(ctx, session.ID)
	if err == nil {
		return vaultInfo(existing), nil
	}
	if !errors.Is(err, repositories.ErrVaultNotFound) {
		return nil, err
	}

	publicKey, secretKey := settlement.NewVaultKeypair()
	encrypted, err := s.cipher.Encrypt(secretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt vault key: %w", err)
	}

	vault, err := s.vaults.Create(ctx, &models.Vault{
		QRSessionID:         session.ID,
		PublicKey:           publicKey,
		EncryptedPrivateKey: encrypted,
		CostInSol:           CostForClaims(session.MaxClaims),
	})
	if err != nil {
		return nil, err
	}
	return vaultInfo(vault), nil
}

// ConfirmFunding checks the vault's on-chain balance against its cost,
// seals the vault by flipping minted, and dispatches the mint preparation
// job. The flip is conditional in the database, so concurrent confirms
// produce exactly one prepare job.
func (s *VaultService) ConfirmFunding(ctx context.Context, vaultID, organizerWallet string) (*VaultInfo, error) {
	vault, err := s.vaults.GetByID(ctx, vaultID)
	if errors.Is(err, repositories.ErrVaultNotFound) {
		return nil, fmt.Errorf("%w: vault %s", ErrNotFound, vaultID)
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedSession(ctx, vault.QRSessionID, organizerWallet); err != nil {
		return nil, err
	}
	if vault.Minted {
		return nil, ErrVaultMinted
	}

	balance, err := s.settlement.Balance(ctx, vault.PublicKey)
	if err != nil {
		return nil, err
	}

	// Strict inequality: a balance exactly at the requirement leaves no
	// headroom for fee drift and is treated as unfunded.
	required := requiredLamports(vault.CostInSol)
	if balance <= required {
		return nil, fmt.Errorf("%w: have %d lamports, need more than %d",
			ErrInsufficientFunding, balance, required)
	}

	err = s.vaults.MarkMinted(ctx, vault.ID)
	switch {
	case errors.Is(err, repositories.ErrVaultAlreadyMinted):
		// Lost to a concurrent confirm, which also owns the dispatch.
		return nil, ErrVaultMinted
	case errors.Is(err, repositories.ErrVaultNotFound):
		return nil, fmt.Errorf("%w: vault %s", ErrNotFound, vaultID)
	case err != nil:
		return nil, err
	}
	vault.Minted = true

	if err := s.queue.EnqueuePrepare(ctx, vault.ID); err != nil {
		return nil, fmt.Errorf("failed to dispatch prepare job: %w", err)
	}
	return vaultInfo(vault), nil
}

// RevealSecret decrypts the vault's funding key for a mint worker. Callers
// must zero the returned slice as soon as they are done signing.
func (s *VaultService) RevealSecret(ctx context.Context, vaultID string) ([]byte, error) {
	vault, err := s.vaults.GetByID(ctx, vaultID)
	if errors.Is(err, repositories.ErrVaultNotFound) {
		return nil, fmt.Errorf("%w: vault %s", ErrNotFound, vaultID)
	}
	if err != nil {
		return nil, err
	}
	return s.cipher.Decrypt(vault.EncryptedPrivateKey)
}

// StaleVaults lists open vaults older than the given age for operator
// review; funds in them may need manual reclaim.
func (s *VaultService) StaleVaults(ctx context.Context, olderThan time.Duration) ([]*VaultInfo, error) {
	vaults, err := s.vaults.StaleOpen(ctx, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return nil, err
	}
	infos := make([]*VaultInfo, len(vaults))
	for i, v := range vaults {
		infos[i] = vaultInfo(v)
	}
	return infos, nil
}

func (s *VaultService) ownedSession(ctx context.Context, sessionID, organizerWallet string) (*models.QRSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if errors.Is(err, repositories.ErrSessionNotFound) {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, err
	}

	campaign, err := s.campaigns.GetByID(ctx, session.CampaignID)
	if errors.Is(err, repositories.ErrCampaignNotFound) {
		return nil, fmt.Errorf("%w: campaign %s", ErrNotFound, session.CampaignID)
	}
	if err != nil {
		return nil, err
	}
	if campaign.Organizer == nil || !strings.EqualFold(campaign.Organizer.Wallet, organizerWallet) {
		return nil, ErrUnauthorized
	}
	return session, nil
}
