package services

import (
	"context"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/popmint/popmint/popmint/database/models"
	"github.com/popmint/popmint/popmint/database/repositories"
	"github.com/popmint/popmint/popmint/zkproof"
)

type fakeSessionRepo struct {
	sessions map[string]*models.QRSession
}

func newFakeSessionRepo(sessions ...*models.QRSession) *fakeSessionRepo {
	r := &fakeSessionRepo{sessions: map[string]*models.QRSession{}}
	for _, s := range sessions {
		r.sessions[s.ID] = s
	}
	return r
}

func (r *fakeSessionRepo) Create(ctx context.Context, session *models.QRSession) error {
	for _, s := range r.sessions {
		if s.Nonce == session.Nonce {
			return &repositories.ConflictError{Entity: "session", Field: "nonce", Value: session.Nonce}
		}
	}
	session.CreatedAt = time.Now().UTC()
	r.sessions[session.ID] = session
	return nil
}

func (r *fakeSessionRepo) GetByID(ctx context.Context, id string) (*models.QRSession, error) {
	if s, ok := r.sessions[id]; ok {
		return s, nil
	}
	return nil, repositories.ErrSessionNotFound
}

func (r *fakeSessionRepo) GetByNonce(ctx context.Context, nonce string) (*models.QRSession, error) {
	for _, s := range r.sessions {
		if s.Nonce == nonce {
			return s, nil
		}
	}
	return nil, repositories.ErrSessionNotFound
}

func (r *fakeSessionRepo) GetDetail(ctx context.Context, id string) (*models.QRSession, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeSessionRepo) ResolveActive(ctx context.Context, campaignID string, now time.Time) (*models.QRSession, error) {
	var newest *models.QRSession
	for _, s := range r.sessions {
		if s.CampaignID != campaignID || !s.Usable(now) {
			continue
		}
		if newest == nil || s.CreatedAt.After(newest.CreatedAt) {
			newest = s
		}
	}
	if newest == nil {
		return nil, repositories.ErrSessionNotFound
	}
	return newest, nil
}

func (r *fakeSessionRepo) ListByCampaign(ctx context.Context, campaignID string) ([]*models.QRSession, error) {
	var out []*models.QRSession
	for _, s := range r.sessions {
		if s.CampaignID == campaignID {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeCampaignRepo struct {
	campaigns  map[string]*models.Campaign
	organizers map[string]*models.Organizer
}

func newFakeCampaignRepo(campaigns ...*models.Campaign) *fakeCampaignRepo {
	r := &fakeCampaignRepo{
		campaigns:  map[string]*models.Campaign{},
		organizers: map[string]*models.Organizer{},
	}
	for _, c := range campaigns {
		r.campaigns[c.ID] = c
		if c.Organizer != nil {
			r.organizers[c.Organizer.Wallet] = c.Organizer
		}
	}
	return r
}

func (r *fakeCampaignRepo) Create(ctx context.Context, campaign *models.Campaign) error {
	if campaign.ID == "" {
		campaign.ID = uuid.NewString()
	}
	r.campaigns[campaign.ID] = campaign
	return nil
}

func (r *fakeCampaignRepo) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	if c, ok := r.campaigns[id]; ok {
		return c, nil
	}
	return nil, repositories.ErrCampaignNotFound
}

func (r *fakeCampaignRepo) GetByOrganizerWallet(ctx context.Context, wallet string) ([]*models.Campaign, error) {
	var out []*models.Campaign
	for _, c := range r.campaigns {
		if c.Organizer != nil && c.Organizer.Wallet == wallet {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeCampaignRepo) Search(ctx context.Context, query string, limit int) ([]*models.Campaign, error) {
	var out []*models.Campaign
	for _, c := range r.campaigns {
		out = append(out, c)
	}
	return out, nil
}

func (r *fakeCampaignRepo) GetOrCreateOrganizer(ctx context.Context, wallet, email string) (*models.Organizer, error) {
	if o, ok := r.organizers[wallet]; ok {
		return o, nil
	}
	o := &models.Organizer{ID: uuid.NewString(), Wallet: wallet, Email: email, CreatedAt: time.Now().UTC()}
	r.organizers[wallet] = o
	return o, nil
}

func (r *fakeCampaignRepo) Update(ctx context.Context, campaign *models.Campaign) error {
	if _, ok := r.campaigns[campaign.ID]; !ok {
		return repositories.ErrCampaignNotFound
	}
	r.campaigns[campaign.ID] = campaign
	return nil
}

type fakeClaimRepo struct {
	claims    map[string]*models.Claim
	sessions  *fakeSessionRepo
	createErr error
}

func newFakeClaimRepo(sessions *fakeSessionRepo) *fakeClaimRepo {
	return &fakeClaimRepo{claims: map[string]*models.Claim{}, sessions: sessions}
}

func (r *fakeClaimRepo) CreateWithCapacity(ctx context.Context, claim *models.Claim) error {
	if r.createErr != nil {
		return r.createErr
	}
	session, ok := r.sessions.sessions[claim.QRSessionID]
	if !ok {
		return repositories.ErrSessionNotFound
	}
	if session.CurrentClaims >= session.MaxClaims || session.Expired(time.Now().UTC()) {
		return repositories.ErrSessionFull
	}
	for _, c := range r.claims {
		if c.CampaignID == claim.CampaignID && c.DeviceHash == claim.DeviceHash {
			return repositories.ErrClaimExists
		}
	}
	session.CurrentClaims++
	if claim.ID == "" {
		claim.ID = uuid.NewString()
	}
	claim.Status = models.ClaimStatusSubmitted
	claim.CreatedAt = time.Now().UTC()
	claim.UpdatedAt = claim.CreatedAt
	r.claims[claim.ID] = claim
	return nil
}

func (r *fakeClaimRepo) HasClaimed(ctx context.Context, campaignID, deviceHash string) (bool, error) {
	for _, c := range r.claims {
		if c.CampaignID == campaignID && c.DeviceHash == deviceHash {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeClaimRepo) FindByDevice(ctx context.Context, campaignID, deviceHash string) (*models.Claim, error) {
	for _, c := range r.claims {
		if c.CampaignID == campaignID && c.DeviceHash == deviceHash {
			return c, nil
		}
	}
	return nil, repositories.ErrClaimNotFound
}

func (r *fakeClaimRepo) GetByID(ctx context.Context, id string) (*models.Claim, error) {
	if c, ok := r.claims[id]; ok {
		return c, nil
	}
	return nil, repositories.ErrClaimNotFound
}

func (r *fakeClaimRepo) UpdateStatus(ctx context.Context, id string, status models.ClaimStatus) error {
	c, ok := r.claims[id]
	if !ok {
		return repositories.ErrClaimNotFound
	}
	if c.Status == models.ClaimStatusSubmitted {
		c.Status = status
	}
	return nil
}

func (r *fakeClaimRepo) ListBySession(ctx context.Context, sessionID string) ([]*models.Claim, error) {
	var out []*models.Claim
	for _, c := range r.claims {
		if c.QRSessionID == sessionID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeClaimRepo) CountByStatus(ctx context.Context, campaignID string, status models.ClaimStatus) (int, error) {
	n := 0
	for _, c := range r.claims {
		if c.CampaignID == campaignID && c.Status == status {
			n++
		}
	}
	return n, nil
}

type fakeVaultRepo struct {
	vaults map[string]*models.Vault
}

func newFakeVaultRepo(vaults ...*models.Vault) *fakeVaultRepo {
	r := &fakeVaultRepo{vaults: map[string]*models.Vault{}}
	for _, v := range vaults {
		r.vaults[v.ID] = v
	}
	return r
}

func (r *fakeVaultRepo) Create(ctx context.Context, vault *models.Vault) (*models.Vault, error) {
	for _, v := range r.vaults {
		if v.QRSessionID == vault.QRSessionID && !v.Minted {
			return v, nil
		}
	}
	if vault.ID == "" {
		vault.ID = uuid.NewString()
	}
	vault.CreatedAt = time.Now().UTC()
	r.vaults[vault.ID] = vault
	return vault, nil
}

func (r *fakeVaultRepo) GetByID(ctx context.Context, id string) (*models.Vault, error) {
	if v, ok := r.vaults[id]; ok {
		return v, nil
	}
	return nil, repositories.ErrVaultNotFound
}

func (r *fakeVaultRepo) GetOpenBySession(ctx context.Context, sessionID string) (*models.Vault, error) {
	for _, v := range r.vaults {
		if v.QRSessionID == sessionID && !v.Minted {
			return v, nil
		}
	}
	return nil, repositories.ErrVaultNotFound
}

func (r *fakeVaultRepo) MarkMinted(ctx context.Context, id string) error {
	v, ok := r.vaults[id]
	if !ok {
		return repositories.ErrVaultNotFound
	}
	if v.Minted {
		return repositories.ErrVaultAlreadyMinted
	}
	v.Minted = true
	return nil
}

func (r *fakeVaultRepo) StaleOpen(ctx context.Context, cutoff time.Time) ([]*models.Vault, error) {
	var out []*models.Vault
	for _, v := range r.vaults {
		if !v.Minted && v.CreatedAt.Before(cutoff) {
			out = append(out, v)
		}
	}
	return out, nil
}

type fakeDispatcher struct {
	mints      []string
	prepares   []string
	mintErr    error
	prepareErr error
}

func (d *fakeDispatcher) EnqueueMint(ctx context.Context, claimID string) error {
	if d.mintErr != nil {
		return d.mintErr
	}
	d.mints = append(d.mints, claimID)
	return nil
}

func (d *fakeDispatcher) EnqueuePrepare(ctx context.Context, vaultID string) error {
	if d.prepareErr != nil {
		return d.prepareErr
	}
	d.prepares = append(d.prepares, vaultID)
	return nil
}

type fakeArtifactStore struct {
	saved   int
	saveErr error
}

func (s *fakeArtifactStore) Save(ctx context.Context, proof *zkproof.RawProof, publicSignals []string) (string, error) {
	if s.saveErr != nil {
		return "", s.saveErr
	}
	s.saved++
	return "artifact-ref-1", nil
}

func (s *fakeArtifactStore) Get(ctx context.Context, ref string) (*zkproof.Artifact, error) {
	return nil, zkproof.ErrArtifactNotFound
}

type fakeVerifier struct {
	err   error
	calls int
}

func (v *fakeVerifier) Verify(proof *zkproof.Proof, signals []*big.Int) error {
	v.calls++
	return v.err
}

type fakeSettlement struct {
	balances map[string]uint64
	err      error
}

func (s *fakeSettlement) Balance(ctx context.Context, address string) (uint64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.balances[address], nil
}
