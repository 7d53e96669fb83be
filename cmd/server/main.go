// Command server runs the study registration and email verification service.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/hzi-braunschweig/pia-system/internal/actiontoken"
	"github.com/hzi-braunschweig/pia-system/internal/audit"
	"github.com/hzi-braunschweig/pia-system/internal/authsession"
	"github.com/hzi-braunschweig/pia-system/internal/identity"
	"github.com/hzi-braunschweig/pia-system/internal/mail"
	"github.com/hzi-braunschweig/pia-system/internal/platform/config"
	"github.com/hzi-braunschweig/pia-system/internal/platform/httpserver"
	"github.com/hzi-braunschweig/pia-system/internal/platform/kafka"
	"github.com/hzi-braunschweig/pia-system/internal/platform/logger"
	"github.com/hzi-braunschweig/pia-system/internal/platform/middleware"
	platformredis "github.com/hzi-braunschweig/pia-system/internal/platform/redis"
	"github.com/hzi-braunschweig/pia-system/internal/platform/tracing"
	"github.com/hzi-braunschweig/pia-system/internal/registration"
	"github.com/hzi-braunschweig/pia-system/internal/registration/consent"
	"github.com/hzi-braunschweig/pia-system/internal/registration/gate"
	"github.com/hzi-braunschweig/pia-system/internal/registration/handler"
	"github.com/hzi-braunschweig/pia-system/internal/registration/metrics"
	"github.com/hzi-braunschweig/pia-system/internal/study"
	studystore "github.com/hzi-braunschweig/pia-system/internal/study/store"
	"github.com/hzi-braunschweig/pia-system/internal/verification"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	shutdownTracing, err := tracing.Setup(ctx, "pia-auth-registration")
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	// Stores: Postgres and Redis when configured, in-memory for development.
	var (
		catalog interface {
			study.Catalog
			study.Roster
			study.Admin
		}
		users identity.Store
	)
	if cfg.Postgres.URL != "" {
		db, err := sql.Open("postgres", cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer db.Close()
		catalog = studystore.NewPostgres(db)

		pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		users = identity.NewPostgresStore(pool)
	} else {
		log.Warn("no postgres configured, using in-memory stores")
		catalog = studystore.NewMemory()
		users = identity.NewMemoryStore()
	}

	var sessions authsession.Store
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		sessions = authsession.NewRedisStore(redisClient.Client)
	} else {
		log.Warn("no redis configured, using in-memory session store")
		sessions = authsession.NewMemoryStore()
	}

	// Audit events stay queryable in memory and fan out to Kafka when a
	// broker is configured.
	var auditStore audit.Store = audit.NewMemoryStore()
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return err
		}
		defer producer.Close()
		auditStore = audit.NewKafkaSink(producer, auditStore)
	}
	publisher := audit.NewPublisher(auditStore,
		audit.WithAsyncBuffer(256),
		audit.WithLogger(log))
	defer publisher.Close()

	mx := metrics.New()
	signer := actiontoken.NewSigner(cfg.TokenSigningKey, cfg.BaseURL)
	mailer := mail.NewSMTP(cfg.SMTP)

	verifier := verification.NewService(
		users, sessions, signer, mailer, publisher, mx, log,
		cfg.BaseURL, cfg.TokenLifespan, cfg.SessionLifespan,
	)
	regSvc := registration.NewService(
		gate.New(catalog, log),
		catalog, catalog, users, sessions,
		verifier, publisher, mx, log,
		consent.Requirements{TosURI: cfg.TosURI, PolicyURI: cfg.PolicyURI},
		cfg.RegistrationRole,
		cfg.SessionLifespan,
	)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.CaptureClient)
	handler.New(regSvc, verifier, catalog, log, cfg.AdminToken).Register(router)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", promhttp.Handler())

	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting registration service", slog.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
