package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/congo-pay/accounts/internal/admin"
	"github.com/congo-pay/accounts/internal/auth"
	"github.com/congo-pay/accounts/internal/config"
	"github.com/congo-pay/accounts/internal/dashboard"
	"github.com/congo-pay/accounts/internal/hashing"
	"github.com/congo-pay/accounts/internal/identity"
	"github.com/congo-pay/accounts/internal/ledger"
	"github.com/congo-pay/accounts/internal/logging"
	"github.com/congo-pay/accounts/internal/middleware"
	"github.com/congo-pay/accounts/internal/notification"
	"github.com/congo-pay/accounts/internal/pin"
	"github.com/congo-pay/accounts/internal/store"
	"github.com/congo-pay/accounts/internal/validation"
)

// Deps aggregates shared dependencies required to wire routes. At most one
// of DB and SQL is used; with neither, state lives in memory.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	SQL      *gorm.DB
	Cache    *redis.Client
	Logger   *slog.Logger
	Notifier notification.Notifier
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if d.Cfg.IsProduction() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.App.Environment)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.App.Environment)
		}
	}

	st, deposits, err := backends(d)
	if err != nil {
		return err
	}

	hasher, err := hashing.New(hashing.Config{
		PasswordCost: d.Cfg.Hashing.PasswordCost,
		PinCost:      d.Cfg.Hashing.PinCost,
	})
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  d.Cfg.JWT.AccessSecret,
		RefreshSecret: d.Cfg.JWT.RefreshSecret,
		AccessTTL:     d.Cfg.JWT.AccessTTL,
		RefreshTTL:    d.Cfg.JWT.RefreshTTL,
	})
	if err != nil {
		return err
	}
	validate := validation.New()
	notifier := d.Notifier
	if notifier == nil {
		notifier = notification.NewLoggerNotifier(d.Logger)
	}

	identitySvc := identity.NewService(st, hasher, notifier, validate, identity.Config{
		ClaimWindow:      d.Cfg.Referral.ClaimWindow,
		StrictInvitation: d.Cfg.Referral.StrictInvitation,
	}, d.Logger)
	loginPolicy := auth.NewLockoutPolicy(d.Cfg.Lockout.MaxAttempts, d.Cfg.Lockout.Duration)
	authSvc := auth.NewService(st, hasher, tokens, loginPolicy, d.Logger)
	pinPolicy := auth.NewLockoutPolicy(d.Cfg.PinLockout.MaxAttempts, d.Cfg.PinLockout.Duration)
	pinSvc := pin.NewService(st, hasher, pinPolicy, notifier, d.Logger)
	dashboardSvc := dashboard.NewService(st)
	adminSvc := admin.NewService(st, d.Logger)
	ledgerSvc := ledger.NewService(deposits, d.Logger)

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	if d.Cfg.App.Environment == "development" {
		// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}

	RegisterHealthRoutes(app, st, d.Cache)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	jwtmw := middleware.JWTAuth(tokens)
	RegisterAuthRoutes(api, AuthHandlers{
		Identity:    identity.NewHandler(identitySvc),
		Auth:        auth.NewHandler(authSvc, validate),
		Pin:         pin.NewHandler(pinSvc, validate),
		RateLimiter: middleware.LoginRateLimit(d.Cache, d.Cfg.RateLimit.LoginPerMinute, d.Logger),
	}, jwtmw)

	dashboards := api.Group("/dashboard", jwtmw)
	dashboards.Get("/:id", dashboard.NewHandler(dashboardSvc).Get)

	ledgerHandler := ledger.NewHandler(ledgerSvc, validate)
	var idem fiber.Handler
	if d.Cache != nil {
		idem = middleware.Idempotency(d.Cache, d.Cfg.Idempotency.TTL, d.Logger)
	}
	RegisterTransactionRoutes(api.Group("/transactions", jwtmw), ledgerHandler, idem)

	adminGroup := api.Group("/admin", jwtmw, middleware.RequireRole(store.RoleAdmin))
	RegisterAdminRoutes(adminGroup, admin.NewHandler(adminSvc, validate), ledgerHandler)

	return nil
}

// backends picks the persistence layer: Postgres, embedded SQLite, or memory.
func backends(d Deps) (store.Store, ledger.Ledger, error) {
	switch {
	case d.DB != nil:
		return store.NewPostgresStore(d.DB), ledger.NewPostgresLedger(d.DB), nil
	case d.SQL != nil:
		st, err := store.NewGormStore(d.SQL)
		if err != nil {
			return nil, nil, fmt.Errorf("migrate sqlite store: %w", err)
		}
		deposits, err := ledger.NewGormLedger(d.SQL)
		if err != nil {
			return nil, nil, fmt.Errorf("migrate sqlite ledger: %w", err)
		}
		return st, deposits, nil
	default:
		return store.NewMemoryStore(), ledger.NewInMemory(), nil
	}
}
