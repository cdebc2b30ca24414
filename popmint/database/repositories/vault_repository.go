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
	ErrVaultNotFound      = errors.New("vault not found")
	ErrVaultAlreadyMinted = errors.New("vault already minted")
)

type VaultRepository interface {
	// Create inserts a new vault. A partial unique index allows at most
	// one open vault per session; a conflicting insert returns the
	// already-open vault so OpenVault stays idempotent.
	Create(ctx context.Context, vault *models.Vault) (*models.Vault, error)
	GetByID(ctx context.Context, id string) (*models.Vault, error)
	GetOpenBySession(ctx context.Context, sessionID string) (*models.Vault, error)
	// MarkMinted flips minted false -> true exactly once.
	MarkMinted(ctx context.Context, id string) error
	// StaleOpen lists open vaults created before cutoff, for operator
	// review of funds that may need manual reclaim.
	StaleOpen(ctx context.Context, cutoff time.Time) ([]*models.Vault, error)
}

type vaultRepository struct {
	*BaseRepository
	db *bun.DB
}

func NewVaultRepository(db *bun.DB) VaultRepository {
	return &vaultRepository{
		BaseRepository: NewBaseRepository(db),
		db:             db,
	}
}

func (r *vaultRepository) Create(ctx context.Context, vault *models.Vault) (*models.Vault, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	if vault.ID == "" {
		vault.ID = uuid.NewString()
	}
	vault.Minted = false
	vault.CreatedAt = now
	vault.UpdatedAt = now

	_, err := r.db.NewInsert().
		Model(vault).
		Exec(ctx)
	if err != nil {
		if IsUniqueViolation(err) {
			// Lost the race to another opener; theirs wins.
			return r.GetOpenBySession(ctx, vault.QRSessionID)
		}
		return nil, r.HandleError("create", "vault", err)
	}
	return vault, nil
}

func (r *vaultRepository) GetByID(ctx context.Context, id string) (*models.Vault, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	vault := new(models.Vault)
	err := r.db.NewSelect().
		Model(vault).
		Where("v.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVaultNotFound
	}
	if err != nil {
		return nil, r.HandleErrorWithID("get", "vault", id, err)
	}
	return vault, nil
}

func (r *vaultRepository) GetOpenBySession(ctx context.Context, sessionID string) (*models.Vault, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	vault := new(models.Vault)
	err := r.db.NewSelect().
		Model(vault).
		Where("v.qr_session_id = ?", sessionID).
		Where("v.minted = ?", false).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVaultNotFound
	}
	if err != nil {
		return nil, r.HandleError("get_open", "vault", err)
	}
	return vault, nil
}

func (r *vaultRepository) MarkMinted(ctx context.Context, id string) error {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	res, err := r.db.NewUpdate().
		Model((*models.Vault)(nil)).
		Set("minted = ?", true).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("minted = ?", false).
		Exec(ctx)
	if err != nil {
		return r.HandleErrorWithID("mark_minted", "vault", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		exists, err := r.db.NewSelect().
			Model((*models.Vault)(nil)).
			Where("id = ?", id).
			Exists(ctx)
		if err != nil {
			return r.HandleErrorWithID("mark_minted", "vault", id, err)
		}
		if !exists {
			return ErrVaultNotFound
		}
		return ErrVaultAlreadyMinted
	}
	return nil
}

func (r *vaultRepository) StaleOpen(ctx context.Context, cutoff time.Time) ([]*models.Vault, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	var vaults []*models.Vault
	err := r.db.NewSelect().
		Model(&vaults).
		Where("v.minted = ?", false).
		Where("v.created_at < ?", cutoff).
		Order("v.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, r.HandleError("stale_open", "vault", err)
	}
	return vaults, nil
}
