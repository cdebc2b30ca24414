package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sahilm/fuzzy"
	"github.com/uptrace/bun"

	"github.com/popmint/popmint/popmint/database/models"
)

var ErrCampaignNotFound = errors.New("campaign not found")

type CampaignRepository interface {
	Create(ctx context.Context, campaign *models.Campaign) error
	GetByID(ctx context.Context, id string) (*models.Campaign, error)
	GetByOrganizerWallet(ctx context.Context, wallet string) ([]*models.Campaign, error)
	Search(ctx context.Context, query string, limit int) ([]*models.Campaign, error)
	GetOrCreateOrganizer(ctx context.Context, wallet, email string) (*models.Organizer, error)
	Update(ctx context.Context, campaign *models.Campaign) error
}

type campaignRepository struct {
	*BaseRepository
	db *bun.DB
}

func NewCampaignRepository(db *bun.DB) CampaignRepository {
	return &campaignRepository{
		BaseRepository: NewBaseRepository(db),
		db:             db,
	}
}

func (r *campaignRepository) Create(ctx context.Context, campaign *models.Campaign) error {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	if campaign.ID == "" {
		campaign.ID = uuid.NewString()
	}
	campaign.CreatedAt = now
	campaign.UpdatedAt = now

	_, err := r.db.NewInsert().
		Model(campaign).
		Exec(ctx)
	return r.HandleError("create", "campaign", err)
}

func (r *campaignRepository) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	campaign := new(models.Campaign)
	err := r.db.NewSelect().
		Model(campaign).
		Relation("Organizer").
		Where("cmp.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, r.HandleErrorWithID("get", "campaign", id, err)
	}
	return campaign, nil
}

func (r *campaignRepository) GetByOrganizerWallet(ctx context.Context, wallet string) ([]*models.Campaign, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	var campaigns []*models.Campaign
	err := r.db.NewSelect().
		Model(&campaigns).
		Join("JOIN organizers AS org ON org.id = cmp.organizer_id").
		Where("org.wallet = ?", wallet).
		Order("cmp.created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, r.HandleError("list", "campaign", err)
	}
	return campaigns, nil
}

// Search loads active campaign names and ranks them with fuzzy matching,
// so "sumit 24" still finds "Summit 2024 Attendance".
func (r *campaignRepository) Search(ctx context.Context, query string, limit int) ([]*models.Campaign, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	var campaigns []*models.Campaign
	err := r.db.NewSelect().
		Model(&campaigns).
		Where("is_active = ?", true).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, r.HandleError("search", "campaign", err)
	}

	if query == "" {
		if limit > 0 && len(campaigns) > limit {
			campaigns = campaigns[:limit]
		}
		return campaigns, nil
	}

	names := make([]string, len(campaigns))
	for i, c := range campaigns {
		names[i] = c.Name
	}

	matches := fuzzy.Find(query, names)
	ranked := make([]*models.Campaign, 0, len(matches))
	for _, m := range matches {
		ranked = append(ranked, campaigns[m.Index])
		if limit > 0 && len(ranked) >= limit {
			break
		}
	}
	return ranked, nil
}

func (r *campaignRepository) GetOrCreateOrganizer(ctx context.Context, wallet, email string) (*models.Organizer, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	organizer := &models.Organizer{
		ID:        uuid.NewString(),
		Wallet:    wallet,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}

	_, err := r.db.NewInsert().
		Model(organizer).
		On("CONFLICT (wallet) DO UPDATE").
		Set("wallet = EXCLUDED.wallet").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, r.HandleError("upsert", "organizer", err)
	}
	return organizer, nil
}

func (r *campaignRepository) Update(ctx context.Context, campaign *models.Campaign) error {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	campaign.UpdatedAt = time.Now().UTC()
	res, err := r.db.NewUpdate().
		Model(campaign).
		WherePK().
		Exec(ctx)
	if err != nil {
		return r.HandleErrorWithID("update", "campaign", campaign.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCampaignNotFound
	}
	return nil
}
