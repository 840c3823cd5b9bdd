package main

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/clinic"
	"github.com/clinic/clinic/internal/domain/report"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/docstore"
	"github.com/clinic/clinic/internal/platform/middleware"
	"github.com/clinic/clinic/internal/platform/reporting"
	"github.com/clinic/clinic/internal/platform/sandbox"
	"github.com/clinic/clinic/internal/platform/websocket"
	"github.com/clinic/clinic/migrations"
)

const version = "0.1.0"

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// stores holds the repositories for the configured backend and whatever
// connection backs them.
type stores struct {
	backend  string
	patients clinic.PatientRepository
	payments clinic.PaymentRepository
	pool     *pgxpool.Pool
	mongo    *docstore.Store
	health   echo.HandlerFunc
}

func (s *stores) Close(ctx context.Context) {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.mongo != nil {
		_ = s.mongo.Close(ctx)
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, db.PoolConfig{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("connected to postgres")
		return &stores{
			backend:  cfg.StoreBackend,
			patients: clinic.NewPatientRepoPG(pool),
			payments: clinic.NewPaymentRepoPG(pool),
			pool:     pool,
			health:   db.PoolHealthHandler(pool),
		}, nil

	case config.BackendMongo:
		store, err := docstore.Connect(ctx, docstore.Config{URI: cfg.MongoURL, Database: cfg.MongoDatabase})
		if err != nil {
			return nil, err
		}
		if err := docstore.EnsureIndexes(ctx, store.Database(), clinic.MongoIndexes()); err != nil {
			_ = store.Close(ctx)
			return nil, err
		}
		logger.Info().Str("database", cfg.MongoDatabase).Msg("connected to mongo")
		return &stores{
			backend:  cfg.StoreBackend,
			patients: clinic.NewPatientRepoMongo(store.Database()),
			payments: clinic.NewPaymentRepoMongo(store.Database()),
			mongo:    store,
			health:   db.HealthHandler("mongo", store, nil),
		}, nil

	case config.BackendMemory:
		mem := clinic.NewMemoryStore()
		logger.Warn().Msg("using in-memory store; data is lost on restart")
		return &stores{
			backend:  cfg.StoreBackend,
			patients: mem.Patients(),
			payments: mem.Payments(),
			health:   db.HealthHandler("memory", db.PingFunc(func(context.Context) error { return nil }), nil),
		}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// migrationsFS returns MIGRATIONS_DIR when set, else the embedded schema.
func migrationsFS(cfg *config.Config) fs.FS {
	if cfg.MigrationsDir != "" {
		return os.DirFS(cfg.MigrationsDir)
	}
	return migrations.FS
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
		Skip:       []string{"/health"},
	}
}

func newService(cfg *config.Config, st *stores) (*clinic.Service, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return clinic.NewService(st.patients, st.payments, loc), nil
}

func newAssembler(cfg *config.Config, svc *clinic.Service) *report.Assembler {
	return report.NewAssembler(svc, report.Letterhead{Clinic: cfg.ClinicName, Doctor: cfg.ClinicDoctor}, svc.Location())
}

// newServer builds the echo instance with the middleware chain and every
// route for the configured backend.
func newServer(cfg *config.Config, logger zerolog.Logger, st *stores) (*echo.Echo, error) {
	svc, err := newService(cfg, st)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders: []string{echo.HeaderContentDisposition, middleware.RequestIDHeader},
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout, "/api/v1/seed", "/api/v1/ws"))
	}

	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(jwtConfig(cfg)))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
			"store":   st.backend,
		})
	})
	e.GET("/health/store", st.health)

	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	hub := websocket.NewHub()
	svc.SetNotifier(ledgerFeed{hub: hub})
	websocket.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(apiV1.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleStaff)))

	clinic.NewHandler(svc, cfg.SearchBatch).RegisterRoutes(apiV1)
	report.NewHandler(newAssembler(cfg, svc)).RegisterRoutes(apiV1)

	// SQL measures only exist for the relational store.
	if st.pool != nil {
		reporting.NewHandler(st.pool).RegisterRoutes(apiV1)
	}

	if !cfg.IsProduction() {
		seeder := sandbox.NewSeeder(svc, logger)
		sandbox.NewSeedHandler(seeder).RegisterRoutes(apiV1.Group("", auth.RequireRole(auth.RoleAdmin)))
	}

	return e, nil
}

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 10 * time.Second
