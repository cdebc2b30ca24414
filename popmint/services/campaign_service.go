package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/popmint/popmint/popmint/database/models"
	"github.com/popmint/popmint/popmint/database/repositories"
)

// CampaignService manages campaign lifecycle and organizer identity.
type CampaignService struct {
	campaigns repositories.CampaignRepository
}

func NewCampaignService(campaigns repositories.CampaignRepository) *CampaignService {
	return &CampaignService{campaigns: campaigns}
}

type CreateCampaignParams struct {
	Name              string
	Description       string
	TokenSymbol       string
	TokenURI          string
	TokenMediaType    string
	MetadataURI       string
	OrganizerWallet   string
	OrganizerEmail    string
	StartsAt          time.Time
	EndsAt            time.Time
	ClaimLimitPerUser int
}

func (s *CampaignService) CreateCampaign(ctx context.Context, params CreateCampaignParams) (*models.Campaign, error) {
	if strings.TrimSpace(params.Name) == "" {
		return nil, fmt.Errorf("%w: campaign name is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(params.TokenSymbol) == "" {
		return nil, fmt.Errorf("%w: token symbol is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(params.OrganizerWallet) == "" {
		return nil, fmt.Errorf("%w: organizer wallet is required", ErrInvalidArgument)
	}
	if params.ClaimLimitPerUser <= 0 {
		params.ClaimLimitPerUser = 1
	}

	organizer, err := s.campaigns.GetOrCreateOrganizer(ctx, params.OrganizerWallet, params.OrganizerEmail)
	if err != nil {
		return nil, err
	}

	campaign := &models.Campaign{
		Name:              params.Name,
		Description:       params.Description,
		TokenSymbol:       params.TokenSymbol,
		TokenURI:          params.TokenURI,
		TokenMediaType:    params.TokenMediaType,
		MetadataURI:       params.MetadataURI,
		IsActive:          true,
		StartsAt:          params.StartsAt,
		EndsAt:            params.EndsAt,
		ClaimLimitPerUser: params.ClaimLimitPerUser,
		OrganizerID:       organizer.ID,
	}
	if err := s.campaigns.Create(ctx, campaign); err != nil {
		return nil, err
	}
	campaign.Organizer = organizer
	return campaign, nil
}

// UpdateCampaignParams carries a partial edit; nil fields are untouched.
type UpdateCampaignParams struct {
	OrganizerWallet string
	Name            *string
	Description     *string
	TokenURI        *string
	MetadataURI     *string
	IsActive        *bool
	EndsAt          *time.Time
}

// UpdateCampaign applies an organizer's edit to their campaign. The token
// symbol and claim limit are fixed once claims may reference them.
func (s *CampaignService) UpdateCampaign(ctx context.Context, id string, params UpdateCampaignParams) (*models.Campaign, error) {
	campaign, err := s.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if campaign.Organizer == nil || !strings.EqualFold(campaign.Organizer.Wallet, params.OrganizerWallet) {
		return nil, ErrUnauthorized
	}

	if params.Name != nil {
		if strings.TrimSpace(*params.Name) == "" {
			return nil, fmt.Errorf("%w: campaign name is required", ErrInvalidArgument)
		}
		campaign.Name = *params.Name
	}
	if params.Description != nil {
		campaign.Description = *params.Description
	}
	if params.TokenURI != nil {
		campaign.TokenURI = *params.TokenURI
	}
	if params.MetadataURI != nil {
		campaign.MetadataURI = *params.MetadataURI
	}
	if params.IsActive != nil {
		campaign.IsActive = *params.IsActive
	}
	if params.EndsAt != nil {
		campaign.EndsAt = *params.EndsAt
	}

	err = s.campaigns.Update(ctx, campaign)
	if errors.Is(err, repositories.ErrCampaignNotFound) {
		return nil, fmt.Errorf("%w: campaign %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return campaign, nil
}

func (s *CampaignService) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	campaign, err := s.campaigns.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrCampaignNotFound) {
		return nil, fmt.Errorf("%w: campaign %s", ErrNotFound, id)
	}
	return campaign, err
}

func (s *CampaignService) GetByOrganizer(ctx context.Context, wallet string) ([]*models.Campaign, error) {
	if strings.TrimSpace(wallet) == "" {
		return nil, fmt.Errorf("%w: wallet is required", ErrInvalidArgument)
	}
	return s.campaigns.GetByOrganizerWallet(ctx, wallet)
}

func (s *CampaignService) Search(ctx context.Context, query string, limit int) ([]*models.Campaign, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	return s.campaigns.Search(ctx, query, limit)
}
