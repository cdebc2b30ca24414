package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/popmint/popmint/backend/handlers"
	"github.com/popmint/popmint/backend/middleware"
	"github.com/popmint/popmint/popmint"
	"github.com/popmint/popmint/popmint/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	shouldResetDB := flag.Bool("reset-db", false, "truncate all application tables on startup")
	configPath := flag.String("config", "config.toml", "path to config file")
	verifyingKeyPath := flag.String("vk", "verification_key.json", "path to groth16 verification key")
	flag.Parse()

	customHandler := logger.NewHandler("PopMint")
	slog.SetDefault(slog.New(customHandler))

	slog.Info("Starting PopMint API",
		slog.String("version", version),
		slog.String("commit", commit),
		slog.String("type", "sys"))

	cfg, err := popmint.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	app := popmint.New(cfg, version, commit)
	if err := app.Setup(ctx, *verifyingKeyPath); err != nil {
		cancel()
		slog.Error("Failed to set up application", slog.String("error", err.Error()))
		os.Exit(1)
	}
	cancel()

	if *shouldResetDB {
		resetCtx, resetCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := app.DB.ResetAppTables(resetCtx); err != nil {
			slog.Error("Failed to reset tables", slog.String("error", err.Error()))
		}
		resetCancel()
	}

	webApp := &handlers.WebApp{
		DB:              app.DB,
		CampaignService: app.CampaignService,
		SessionService:  app.SessionService,
		ClaimService:    app.ClaimService,
		VaultService:    app.VaultService,
		MediaService:    app.MediaService,
		Version:         version,
		Commit:          commit,
	}

	server := fiber.New(fiber.Config{
		AppName:      "PopMint API",
		ServerHeader: "PopMint",
		ErrorHandler: middleware.CustomErrorHandler,
	})

	server.Use(recover.New())
	server.Use(middleware.SecurityHeaders())
	server.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
	server.Use(cors.New(cors.Config{
		AllowOrigins: joinOrigins(cfg.Server.AllowOrigins),
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))
	server.Use(middleware.LoggingMiddleware())

	setupRoutes(server, webApp)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("Starting server", slog.String("address", cfg.Server.Addr))
		if err := server.Listen(cfg.Server.Addr); err != nil {
			slog.Error("Failed to start server", slog.String("error", err.Error()))
		}
	}()

	<-c
	slog.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("Server shutdown error", slog.String("error", err.Error()))
	}

	app.Close(shutdownCtx)
	slog.Info("Shutdown complete")
}

// setupRoutes configures all application routes
func setupRoutes(server *fiber.App, webApp *handlers.WebApp) {
	server.Get("/health", handlers.HealthCheck(webApp))

	api := server.Group("/api")

	campaigns := api.Group("/campaigns")
	campaigns.Post("/", handlers.CampaignsCreate(webApp))
	campaigns.Get("/", handlers.CampaignsList(webApp))
	campaigns.Get("/:id", handlers.CampaignsDetail(webApp))
	campaigns.Put("/:id", handlers.CampaignsUpdate(webApp))
	campaigns.Post("/:id/media", handlers.CampaignsUploadMedia(webApp))

	sessions := api.Group("/qr-sessions")
	sessions.Post("/", handlers.SessionsCreate(webApp))
	sessions.Get("/active/:campaignId", handlers.SessionsActive(webApp))
	sessions.Get("/nonce/:nonce", handlers.SessionsByNonce(webApp))
	sessions.Get("/:id", handlers.SessionsDetail(webApp))

	claims := api.Group("/claims")
	claims.Post("/", middleware.RateLimit(10, time.Minute), handlers.ClaimsSubmit(webApp))
	claims.Get("/:id", handlers.ClaimsStatus(webApp))

	api.Get("/check-device", handlers.CheckDevice(webApp))

	vaults := api.Group("/vaults")
	vaults.Post("/:sessionId/open", handlers.VaultsOpen(webApp))
	vaults.Post("/:vaultId/confirm-funding", handlers.VaultsConfirmFunding(webApp))
	vaults.Get("/stale", handlers.VaultsStale(webApp))
}

func joinOrigins(origins []string) string {
	if len(origins) == 0 {
		return "*"
	}
	out := origins[0]
	for _, o := range origins[1:] {
		out += "," + o
	}
	return out
}
