package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/popmint/popmint/popmint/database/models"
)

var (
	ErrClaimExists   = errors.New("claim already exists for device")
	ErrClaimNotFound = errors.New("claim not found")
)

type ClaimRepository interface {
	// CreateWithCapacity atomically consumes one slot of the claim's
	// session and inserts the claim. It returns ErrSessionFull when the
	// session is expired or at capacity, and ErrClaimExists when the
	// device already claimed in this campaign.
	CreateWithCapacity(ctx context.Context, claim *models.Claim) error
	HasClaimed(ctx context.Context, campaignID, deviceHash string) (bool, error)
	// FindByDevice returns the device's claim in the campaign, if any. The
	// unique index guarantees at most one.
	FindByDevice(ctx context.Context, campaignID, deviceHash string) (*models.Claim, error)
	GetByID(ctx context.Context, id string) (*models.Claim, error)
	// UpdateStatus moves a SUBMITTED claim to a terminal status. Updates
	// to claims already terminal are ignored.
	UpdateStatus(ctx context.Context, id string, status models.ClaimStatus) error
	ListBySession(ctx context.Context, sessionID string) ([]*models.Claim, error)
	CountByStatus(ctx context.Context, campaignID string, status models.ClaimStatus) (int, error)
}

type claimRepository struct {
	*BaseRepository
	db *bun.DB
}

func NewClaimRepository(db *bun.DB) ClaimRepository {
	return &claimRepository{
		BaseRepository: NewBaseRepository(db),
		db:             db,
	}
}

func (r *claimRepository) CreateWithCapacity(ctx context.Context, claim *models.Claim) error {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	if claim.ID == "" {
		claim.ID = uuid.NewString()
	}
	claim.Status = models.ClaimStatusSubmitted
	claim.CreatedAt = now
	claim.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return r.HandleError("begin", "claim", err)
	}
	defer tx.Rollback()

	// Conditional increment doubles as the capacity check. Expired or
	// full sessions match zero rows and the claim is never inserted.
	res, err := tx.NewUpdate().
		Model((*models.QRSession)(nil)).
		Set("current_claims = current_claims + 1").
		Where("id = ?", claim.QRSessionID).
		Where("current_claims < max_claims").
		Where("(expires_at IS NULL OR expires_at > ?)", now).
		Exec(ctx)
	if err != nil {
		return r.HandleError("reserve_slot", "claim", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionFull
	}

	if _, err := tx.NewInsert().Model(claim).Exec(ctx); err != nil {
		if IsUniqueViolation(err) {
			return ErrClaimExists
		}
		return r.HandleError("create", "claim", err)
	}

	if err := tx.Commit(); err != nil {
		return r.HandleError("commit", "claim", err)
	}
	return nil
}

func (r *claimRepository) HasClaimed(ctx context.Context, campaignID, deviceHash string) (bool, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	exists, err := r.db.NewSelect().
		Model((*models.Claim)(nil)).
		Where("campaign_id = ?", campaignID).
		Where("device_hash = ?", deviceHash).
		Exists(ctx)
	if err != nil {
		return false, r.HandleError("has_claimed", "claim", err)
	}
	return exists, nil
}

func (r *claimRepository) FindByDevice(ctx context.Context, campaignID, deviceHash string) (*models.Claim, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	claim := new(models.Claim)
	err := r.db.NewSelect().
		Model(claim).
		Where("cl.campaign_id = ?", campaignID).
		Where("cl.device_hash = ?", deviceHash).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClaimNotFound
	}
	if err != nil {
		return nil, r.HandleError("find_by_device", "claim", err)
	}
	return claim, nil
}

func (r *claimRepository) GetByID(ctx context.Context, id string) (*models.Claim, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	claim := new(models.Claim)
	err := r.db.NewSelect().
		Model(claim).
		Where("cl.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClaimNotFound
	}
	if err != nil {
		return nil, r.HandleErrorWithID("get", "claim", id, err)
	}
	return claim, nil
}

func (r *claimRepository) UpdateStatus(ctx context.Context, id string, status models.ClaimStatus) error {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	res, err := r.db.NewUpdate().
		Model((*models.Claim)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status = ?", models.ClaimStatusSubmitted).
		Exec(ctx)
	if err != nil {
		return r.HandleErrorWithID("update_status", "claim", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either the claim does not exist or it is already terminal;
		// distinguish so callers can report a real 404.
		exists, err := r.db.NewSelect().
			Model((*models.Claim)(nil)).
			Where("id = ?", id).
			Exists(ctx)
		if err != nil {
			return r.HandleErrorWithID("update_status", "claim", id, err)
		}
		if !exists {
			return ErrClaimNotFound
		}
	}
	return nil
}

func (r *claimRepository) ListBySession(ctx context.Context, sessionID string) ([]*models.Claim, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	var claims []*models.Claim
	err := r.db.NewSelect().
		Model(&claims).
		Where("cl.qr_session_id = ?", sessionID).
		Order("cl.created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, r.HandleError("list", "claim", err)
	}
	return claims, nil
}

func (r *claimRepository) CountByStatus(ctx context.Context, campaignID string, status models.ClaimStatus) (int, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	count, err := r.db.NewSelect().
		Model((*models.Claim)(nil)).
		Where("campaign_id = ?", campaignID).
		Where("status = ?", status).
		Count(ctx)
	if err != nil {
		return 0, r.HandleError("count", "claim", err)
	}
	return count, nil
}
