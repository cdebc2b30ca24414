package handlers

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	webmodels "github.com/popmint/popmint/backend/models"
	"github.com/popmint/popmint/backend/utils"
	"github.com/popmint/popmint/popmint/database"
	dbmodels "github.com/popmint/popmint/popmint/database/models"
	"github.com/popmint/popmint/popmint/services"
)

// WebApp holds the dependencies shared by all handlers.
type WebApp struct {
	DB              *database.DB
	CampaignService *services.CampaignService
	SessionService  *services.SessionService
	ClaimService    *services.ClaimService
	VaultService    *services.VaultService
	MediaService    *services.MediaService
	Version         string
	Commit          string
}

// HealthCheck reports service liveness and database reachability.
func HealthCheck(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbStatus := "up"
		if err := webApp.DB.GetPool().Ping(c.Context()); err != nil {
			dbStatus = "down"
		}
		return c.JSON(fiber.Map{
			"status":   "ok",
			"version":  webApp.Version,
			"commit":   webApp.Commit,
			"database": dbStatus,
		})
	}
}

// CampaignsCreate registers a campaign and its organizer.
func CampaignsCreate(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req webmodels.CreateCampaignRequest
		if err := c.BodyParser(&req); err != nil {
			return fmt.Errorf("%w: malformed request body", services.ErrInvalidArgument)
		}

		campaign, err := webApp.CampaignService.CreateCampaign(c.Context(), services.CreateCampaignParams{
			Name:              req.Name,
			Description:       req.Description,
			TokenSymbol:       req.TokenSymbol,
			TokenURI:          req.TokenURI,
			TokenMediaType:    req.TokenMediaType,
			MetadataURI:       req.MetadataURI,
			OrganizerWallet:   req.OrganizerWallet,
			OrganizerEmail:    req.OrganizerEmail,
			StartsAt:          req.StartsAt,
			EndsAt:            req.EndsAt,
			ClaimLimitPerUser: req.ClaimLimitPerUser,
		})
		if err != nil {
			return err
		}

		return utils.SendCreated(c, webmodels.NewCampaignResponse(campaign), "campaign created")
	}
}

// CampaignsUpdate applies an organizer's partial edit to their campaign.
func CampaignsUpdate(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req webmodels.UpdateCampaignRequest
		if err := c.BodyParser(&req); err != nil {
			return fmt.Errorf("%w: malformed request body", services.ErrInvalidArgument)
		}

		campaign, err := webApp.CampaignService.UpdateCampaign(c.Context(), c.Params("id"), services.UpdateCampaignParams{
			OrganizerWallet: req.OrganizerWallet,
			Name:            req.Name,
			Description:     req.Description,
			TokenURI:        req.TokenURI,
			MetadataURI:     req.MetadataURI,
			IsActive:        req.IsActive,
			EndsAt:          req.EndsAt,
		})
		if err != nil {
			return err
		}

		return utils.SendSuccess(c, webmodels.NewCampaignResponse(campaign), "campaign updated")
	}
}

// CampaignsDetail returns one campaign by ID.
func CampaignsDetail(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		campaign, err := webApp.CampaignService.GetCampaign(c.Context(), c.Params("id"))
		if err != nil {
			return err
		}
		return utils.SendSuccess(c, webmodels.NewCampaignResponse(campaign), "")
	}
}

// CampaignsList lists campaigns by organizer wallet or fuzzy name search.
func CampaignsList(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var (
			campaigns []*dbmodels.Campaign
			err       error
		)
		if wallet := c.Query("wallet"); wallet != "" {
			campaigns, err = webApp.CampaignService.GetByOrganizer(c.Context(), wallet)
		} else {
			limit, _ := strconv.Atoi(c.Query("limit", "25"))
			campaigns, err = webApp.CampaignService.Search(c.Context(), c.Query("q"), limit)
		}
		if err != nil {
			return err
		}

		out := make([]*webmodels.CampaignResponse, len(campaigns))
		for i, campaign := range campaigns {
			out[i] = webmodels.NewCampaignResponse(campaign)
		}
		return utils.SendSuccess(c, out, "")
	}
}

// CampaignsUploadMedia stores token art or QR imagery for a campaign.
func CampaignsUploadMedia(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		campaignID := c.Params("id")
		if _, err := webApp.CampaignService.GetCampaign(c.Context(), campaignID); err != nil {
			return err
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			return fmt.Errorf("%w: multipart field 'file' is required", services.ErrInvalidArgument)
		}

		file, err := fileHeader.Open()
		if err != nil {
			return fmt.Errorf("failed to open upload: %w", err)
		}
		defer file.Close()

		url, err := webApp.MediaService.UploadCampaignMedia(
			c.Context(),
			campaignID,
			fileHeader.Filename,
			fileHeader.Header.Get("Content-Type"),
			file,
		)
		if err != nil {
			return err
		}

		return utils.SendCreated(c, webmodels.MediaUploadResponse{URL: url}, "media uploaded")
	}
}

// SessionsCreate opens a new claim window for a campaign.
func SessionsCreate(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req webmodels.CreateSessionRequest
		if err := c.BodyParser(&req); err != nil {
			return fmt.Errorf("%w: malformed request body", services.ErrInvalidArgument)
		}

		session, err := webApp.SessionService.CreateSession(c.Context(), services.CreateSessionParams{
			CampaignID:      req.CampaignID,
			OrganizerWallet: req.OrganizerWallet,
			TTL:             req.TTL,
			MaxClaims:       req.MaxClaims,
		})
		if err != nil {
			return err
		}

		return utils.SendCreated(c, webmodels.NewSessionResponse(session, true), "session created")
	}
}

// SessionsActive resolves the newest usable session of a campaign.
func SessionsActive(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		session, err := webApp.SessionService.ResolveActive(c.Context(), c.Params("campaignId"))
		if err != nil {
			return err
		}
		return utils.SendSuccess(c, webmodels.NewSessionResponse(session, true), "")
	}
}

// SessionsDetail returns a session with its campaign and claim roster.
func SessionsDetail(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		session, err := webApp.SessionService.GetDetail(c.Context(), c.Params("id"))
		if err != nil {
			return err
		}

		claims := make([]*webmodels.ClaimResponse, len(session.Claims))
		for i, claim := range session.Claims {
			claims[i] = webmodels.NewClaimResponse(claim)
		}

		resp := fiber.Map{
			"session": webmodels.NewSessionResponse(session, false),
			"claims":  claims,
		}
		if session.Campaign != nil {
			resp["campaign"] = webmodels.NewCampaignResponse(session.Campaign)
		}
		return utils.SendSuccess(c, resp, "")
	}
}

// SessionsByNonce resolves a scanned QR nonce to its session.
func SessionsByNonce(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		session, err := webApp.SessionService.GetByNonce(c.Context(), c.Params("nonce"))
		if err != nil {
			return err
		}
		return utils.SendSuccess(c, webmodels.NewSessionResponse(session, false), "")
	}
}

// ClaimsSubmit runs the full claim pipeline for one scan.
func ClaimsSubmit(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req webmodels.SubmitClaimRequest
		if err := c.BodyParser(&req); err != nil {
			return fmt.Errorf("%w: malformed request body", services.ErrInvalidArgument)
		}

		claim, err := webApp.ClaimService.SubmitClaim(c.Context(), services.SubmitClaimParams{
			Nonce:         req.Nonce,
			Wallet:        req.Wallet,
			DeviceHash:    req.DeviceHash,
			GeoRegion:     req.GeoRegion,
			Proof:         req.Proof,
			PublicSignals: req.PublicSignals,
		})
		if err != nil {
			return err
		}

		return utils.SendCreated(c, webmodels.NewClaimResponse(claim), "claim submitted")
	}
}

// ClaimsStatus reports the state machine position of one claim. Unknown
// ids answer with a null status rather than an error, so pollers that race
// the submit path can keep polling.
func ClaimsStatus(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claim, err := webApp.ClaimService.GetStatus(c.Context(), c.Params("id"))
		if err != nil {
			return err
		}
		return utils.SendSuccess(c, webmodels.NewClaimStatusResponse(claim), "")
	}
}

// CheckDevice answers whether a device already claimed in a campaign.
func CheckDevice(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		campaignID := c.Query("campaign_id")
		deviceHash := c.Query("device_hash")
		if campaignID == "" {
			return fmt.Errorf("%w: campaign_id is required", services.ErrInvalidArgument)
		}

		claim, err := webApp.ClaimService.CheckDevice(c.Context(), campaignID, deviceHash)
		if err != nil {
			return err
		}
		resp := webmodels.CheckDeviceResponse{CampaignID: campaignID}
		if claim != nil {
			resp.Claimed = true
			resp.Timestamp = &claim.CreatedAt
		}
		return utils.SendSuccess(c, resp, "")
	}
}

// VaultsOpen returns the session's open funding vault, creating it on first
// call.
func VaultsOpen(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			OrganizerWallet string `json:"organizer_wallet"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fmt.Errorf("%w: malformed request body", services.ErrInvalidArgument)
		}

		vault, err := webApp.VaultService.OpenVault(c.Context(), c.Params("sessionId"), req.OrganizerWallet)
		if err != nil {
			return err
		}
		return utils.SendSuccess(c, webmodels.NewVaultResponse(vault), "")
	}
}

// VaultsConfirmFunding checks the vault balance and dispatches preparation.
func VaultsConfirmFunding(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			OrganizerWallet string `json:"organizer_wallet"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fmt.Errorf("%w: malformed request body", services.ErrInvalidArgument)
		}

		vault, err := webApp.VaultService.ConfirmFunding(c.Context(), c.Params("vaultId"), req.OrganizerWallet)
		if err != nil {
			return err
		}
		return utils.SendSuccess(c, webmodels.NewVaultResponse(vault), "funding confirmed")
	}
}

// VaultsStale lists open vaults older than the given age for operators.
func VaultsStale(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		hours, err := strconv.Atoi(c.Query("hours", "24"))
		if err != nil || hours <= 0 {
			return fmt.Errorf("%w: hours must be a positive integer", services.ErrInvalidArgument)
		}

		vaults, err := webApp.VaultService.StaleVaults(c.Context(), time.Duration(hours)*time.Hour)
		if err != nil {
			return err
		}

		out := make([]*webmodels.VaultResponse, len(vaults))
		for i, v := range vaults {
			out[i] = webmodels.NewVaultResponse(v)
		}
		return utils.SendSuccess(c, out, "")
	}
}
