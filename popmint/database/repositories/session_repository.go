package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/uptrace/bun"

	"github.com/popmint/popmint/popmint/database/models"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionFull     = errors.New("session capacity exhausted")
)

const sessionCacheSize = 1024

type SessionRepository interface {
	Create(ctx context.Context, session *models.QRSession) error
	GetByID(ctx context.Context, id string) (*models.QRSession, error)
	GetByNonce(ctx context.Context, nonce string) (*models.QRSession, error)
	GetDetail(ctx context.Context, id string) (*models.QRSession, error)
	ResolveActive(ctx context.Context, campaignID string, now time.Time) (*models.QRSession, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]*models.QRSession, error)
}

type sessionRepository struct {
	*BaseRepository
	db *bun.DB
	// nonce -> session ID. Sessions are immutable apart from the claim
	// counter, so only the ID mapping is safe to cache.
	nonceCache *lru.Cache
}

func NewSessionRepository(db *bun.DB) SessionRepository {
	cache, _ := lru.New(sessionCacheSize)
	return &sessionRepository{
		BaseRepository: NewBaseRepository(db),
		db:             db,
		nonceCache:     cache,
	}
}

func (r *sessionRepository) Create(ctx context.Context, session *models.QRSession) error {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	session.CreatedAt = time.Now().UTC()
	_, err := r.db.NewInsert().
		Model(session).
		Exec(ctx)
	if err != nil {
		if IsUniqueViolation(err) {
			return &ConflictError{Entity: "session", Field: "nonce", Value: session.Nonce}
		}
		return r.HandleError("create", "session", err)
	}

	r.nonceCache.Add(session.Nonce, session.ID)
	return nil
}

func (r *sessionRepository) GetByID(ctx context.Context, id string) (*models.QRSession, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	session := new(models.QRSession)
	err := r.db.NewSelect().
		Model(session).
		Where("qrs.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, r.HandleErrorWithID("get", "session", id, err)
	}
	return session, nil
}

func (r *sessionRepository) GetByNonce(ctx context.Context, nonce string) (*models.QRSession, error) {
	if id, ok := r.nonceCache.Get(nonce); ok {
		session, err := r.GetByID(ctx, id.(string))
		if err == nil {
			return session, nil
		}
		r.nonceCache.Remove(nonce)
	}

	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	session := new(models.QRSession)
	err := r.db.NewSelect().
		Model(session).
		Where("qrs.nonce = ?", nonce).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, r.HandleError("get_by_nonce", "session", err)
	}

	r.nonceCache.Add(nonce, session.ID)
	return session, nil
}

// GetDetail loads a session together with its campaign and claims.
func (r *sessionRepository) GetDetail(ctx context.Context, id string) (*models.QRSession, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	session := new(models.QRSession)
	err := r.db.NewSelect().
		Model(session).
		Relation("Campaign").
		Relation("Claims").
		Where("qrs.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, r.HandleErrorWithID("get_detail", "session", id, err)
	}
	return session, nil
}

// ResolveActive returns the newest session of the campaign that is neither
// expired nor at capacity. Newest-first keeps a freshly created session
// authoritative when older ones are still technically usable.
func (r *sessionRepository) ResolveActive(ctx context.Context, campaignID string, now time.Time) (*models.QRSession, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	session := new(models.QRSession)
	err := r.db.NewSelect().
		Model(session).
		Where("qrs.campaign_id = ?", campaignID).
		Where("(qrs.expires_at IS NULL OR qrs.expires_at > ?)", now).
		Where("qrs.current_claims < qrs.max_claims").
		Order("qrs.created_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, r.HandleError("resolve_active", "session", err)
	}
	return session, nil
}

func (r *sessionRepository) ListByCampaign(ctx context.Context, campaignID string) ([]*models.QRSession, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	var sessions []*models.QRSession
	err := r.db.NewSelect().
		Model(&sessions).
		Where("qrs.campaign_id = ?", campaignID).
		Order("qrs.created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, r.HandleError("list", "session", err)
	}
	return sessions, nil
}
