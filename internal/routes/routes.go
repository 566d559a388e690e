package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/gigwallet/gigwallet/internal/config"
	"github.com/gigwallet/gigwallet/internal/jobs"
	"github.com/gigwallet/gigwallet/internal/ledger"
	"github.com/gigwallet/gigwallet/internal/middleware"
	"github.com/gigwallet/gigwallet/internal/notification"
	"github.com/gigwallet/gigwallet/internal/payout"
	"github.com/gigwallet/gigwallet/internal/wallet"
	"github.com/gigwallet/gigwallet/internal/withdrawal"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce backing services outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health
	RegisterHealthRoutes(app, d)

	// Backends: Postgres when configured, in-memory otherwise.
	var recorder ledger.Recorder
	var walletRepo wallet.Repository
	var withdrawalRepo withdrawal.Repository
	if d.DB != nil {
		recorder = ledger.NewPostgresRecorder(d.DB, d.Cfg.LedgerMaxRetries)
		walletRepo = wallet.NewPostgresRepository(d.DB)
		withdrawalRepo = withdrawal.NewPostgresRepository(d.DB)
	} else {
		recorder = ledger.NewInMemory()
		walletRepo = wallet.NewMemoryRepository()
		withdrawalRepo = withdrawal.NewMemoryRepository()
	}

	// Services
	notifier := notification.NewLoggerNotifier(d.Logger)
	walletSvc := wallet.NewService(walletRepo, recorder, wallet.Defaults{
		Currency:      d.Cfg.DefaultCurrency,
		FeeThreshold:  d.Cfg.DefaultFeeThreshold,
		CooldownHours: d.Cfg.DefaultCooldownHours,
	})
	withdrawalSvc := withdrawal.NewService(withdrawalRepo, walletSvc, recorder,
		payout.StaticGateway{}, notifier, d.Logger)
	jobSvc := jobs.NewService(walletSvc, recorder, notifier)

	// Handlers
	walletHandler := wallet.NewHandler(walletSvc)
	ledgerHandler := ledger.NewHandler(recorder)
	withdrawalHandler := withdrawal.NewHandler(withdrawalSvc)
	jobHandler := jobs.NewHandler(jobSvc)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterWalletRoutes(api, walletHandler, ledgerHandler)
	RegisterWithdrawalRoutes(api, withdrawalHandler, d)

	// Collaborator callbacks, guarded by the shared service token where
	// configured. Dev runs without the hash leave them open.
	internal := api.Group("/internal")
	if d.Cfg.CallbackTokenHash != "" {
		internal.Use(middleware.ServiceToken(d.Cfg.CallbackTokenHash))
	} else if !d.Cfg.IsDev() {
		return fmt.Errorf("callback token hash is required when APP_ENV=%s", d.Cfg.AppEnv)
	}
	RegisterInternalRoutes(internal, walletHandler, ledgerHandler, withdrawalHandler, jobHandler)

	return nil
}
