package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/popmint/popmint/popmint/database/models"
	"github.com/popmint/popmint/popmint/database/repositories"
	"github.com/popmint/popmint/popmint/queue"
	"github.com/popmint/popmint/popmint/zkproof"
)

// ProofVerifier checks a parsed proof against its public signals.
type ProofVerifier interface {
	Verify(proof *zkproof.Proof, signals []*big.Int) error
}

// ClaimService runs the claim pipeline: session lookup, eligibility gate,
// replay guard, proof verification, durable claim insert, mint dispatch.
type ClaimService struct {
	claims    repositories.ClaimRepository
	sessions  repositories.SessionRepository
	campaigns repositories.CampaignRepository
	verifier  ProofVerifier
	artifacts zkproof.ArtifactStore
	queue     queue.Dispatcher
	now       func() time.Time
}

func NewClaimService(
	claims repositories.ClaimRepository,
	sessions repositories.SessionRepository,
	campaigns repositories.CampaignRepository,
	verifier ProofVerifier,
	artifacts zkproof.ArtifactStore,
	dispatcher queue.Dispatcher,
) *ClaimService {
	return &ClaimService{
		claims:    claims,
		sessions:  sessions,
		campaigns: campaigns,
		verifier:  verifier,
		artifacts: artifacts,
		queue:     dispatcher,
		now:       time.Now,
	}
}

type SubmitClaimParams struct {
	Nonce         string
	Wallet        string
	DeviceHash    string
	GeoRegion     string
	Proof         *zkproof.RawProof
	PublicSignals []string
}

// SubmitClaim validates a scan against the session window, the device replay
// guard and the zk eligibility proof, then records the claim as SUBMITTED
// and dispatches the mint job. The claim row is the durable record: once it
// exists the device's slot is consumed even if the mint later fails.
func (s *ClaimService) SubmitClaim(ctx context.Context, params SubmitClaimParams) (*models.Claim, error) {
	if params.DeviceHash == "" {
		return nil, fmt.Errorf("%w: device hash is required", ErrInvalidArgument)
	}
	if params.Proof == nil {
		return nil, fmt.Errorf("%w: proof is required", ErrInvalidArgument)
	}

	session, err := s.GetByNonce(ctx, params.Nonce)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if session.Expired(now) {
		return nil, ErrSessionExpired
	}
	if session.CurrentClaims >= session.MaxClaims {
		return nil, ErrCapacityExceeded
	}

	campaign, err := s.campaigns.GetByID(ctx, session.CampaignID)
	if errors.Is(err, repositories.ErrCampaignNotFound) {
		return nil, fmt.Errorf("%w: campaign %s", ErrNotFound, session.CampaignID)
	}
	if err != nil {
		return nil, err
	}
	if campaign.Organizer != nil && params.Wallet != "" &&
		strings.EqualFold(campaign.Organizer.Wallet, params.Wallet) {
		return nil, ErrOrganizerClaim
	}

	claimed, err := s.claims.HasClaimed(ctx, campaign.ID, params.DeviceHash)
	if err != nil {
		return nil, err
	}
	if claimed {
		return nil, ErrAlreadyClaimed
	}

	proof, err := zkproof.ParseProof(params.Proof)
	if err != nil {
		return nil, err
	}
	signals, err := zkproof.ParseSignals(params.PublicSignals)
	if err != nil {
		return nil, err
	}

	// The proof must be bound to this exact scan; a valid proof lifted
	// from another session or device is rejected here.
	derived := zkproof.DeriveInputs(session.ID, session.Nonce, params.DeviceHash, params.Wallet)
	if !zkproof.BindsTo(signals, derived) {
		return nil, fmt.Errorf("%w: public signals do not match claim context", zkproof.ErrInvalidProof)
	}

	if err := s.verifier.Verify(proof, signals); err != nil {
		return nil, err
	}

	ref, err := s.artifacts.Save(ctx, params.Proof, params.PublicSignals)
	if err != nil {
		return nil, fmt.Errorf("failed to persist proof artifact: %w", err)
	}

	claim := &models.Claim{
		CampaignID:  campaign.ID,
		QRSessionID: session.ID,
		OrganizerID: campaign.OrganizerID,
		Wallet:      params.Wallet,
		DeviceHash:  params.DeviceHash,
		GeoRegion:   params.GeoRegion,
		ZKProofRef:  ref,
	}

	err = s.claims.CreateWithCapacity(ctx, claim)
	switch {
	case errors.Is(err, repositories.ErrSessionFull):
		return nil, ErrCapacityExceeded
	case errors.Is(err, repositories.ErrClaimExists):
		return nil, ErrAlreadyClaimed
	case err != nil:
		return nil, err
	}

	if err := s.queue.EnqueueMint(ctx, claim.ID); err != nil {
		// The slot is already consumed; fail the claim rather than leave
		// it SUBMITTED with no job behind it.
		if ferr := s.claims.UpdateStatus(ctx, claim.ID, models.ClaimStatusFailed); ferr != nil {
			slog.Error("Failed to mark claim as failed after enqueue error",
				slog.String("type", "queue"),
				slog.String("claim_id", claim.ID),
				slog.Any("error", ferr),
			)
		}
		claim.Status = models.ClaimStatusFailed
		return claim, fmt.Errorf("failed to dispatch mint job: %w", err)
	}

	return claim, nil
}

// GetStatus returns the current state of a claim. An unknown id yields
// (nil, nil): pollers may race the submit path, so "no such claim" is an
// answer, not an error.
func (s *ClaimService) GetStatus(ctx context.Context, claimID string) (*models.Claim, error) {
	claim, err := s.claims.GetByID(ctx, claimID)
	if errors.Is(err, repositories.ErrClaimNotFound) {
		return nil, nil
	}
	return claim, err
}

// ResolveStatus applies a mint outcome reported by a worker. Terminal
// claims are left untouched.
func (s *ClaimService) ResolveStatus(ctx context.Context, claimID string, succeeded bool) error {
	status := models.ClaimStatusClaimed
	if !succeeded {
		status = models.ClaimStatusFailed
	}
	err := s.claims.UpdateStatus(ctx, claimID, status)
	if errors.Is(err, repositories.ErrClaimNotFound) {
		return fmt.Errorf("%w: claim %s", ErrNotFound, claimID)
	}
	return err
}

// CheckDevice returns the campaign claim already held by a device, or nil
// when none exists, so clients can short-circuit before generating a proof
// and show when the earlier claim happened.
func (s *ClaimService) CheckDevice(ctx context.Context, campaignID, deviceHash string) (*models.Claim, error) {
	if deviceHash == "" {
		return nil, fmt.Errorf("%w: device hash is required", ErrInvalidArgument)
	}
	claim, err := s.claims.FindByDevice(ctx, campaignID, deviceHash)
	if errors.Is(err, repositories.ErrClaimNotFound) {
		return nil, nil
	}
	return claim, err
}

func (s *ClaimService) GetByNonce(ctx context.Context, nonce string) (*models.QRSession, error) {
	if nonce == "" {
		return nil, fmt.Errorf("%w: nonce is required", ErrInvalidArgument)
	}
	session, err := s.sessions.GetByNonce(ctx, nonce)
	if errors.Is(err, repositories.ErrSessionNotFound) {
		return nil, fmt.Errorf("%w: session", ErrNotFound)
	}
	return session, err
}
