package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	adminhandler "contacthub/internal/admin/handler"
	"contacthub/internal/analytics"
	"contacthub/internal/contact/store"
	"contacthub/internal/intake"
	intakehandler "contacthub/internal/intake/handler"
	"contacthub/internal/platform/config"
	"contacthub/internal/platform/httpserver"
	"contacthub/internal/platform/logger"
	"contacthub/internal/platform/metrics"
	platformredis "contacthub/internal/platform/redis"
	"contacthub/internal/ratelimit"
	"contacthub/internal/registry"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Contact store: Postgres when configured, otherwise in-memory.
	var contactStore store.Store
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("connecting to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		contactStore = store.NewPostgres(pool, cfg.DatabaseURL, log)
		log.Info("using postgres contact store")
	} else {
		contactStore = store.NewMemory()
		log.Info("using in-memory contact store")
	}

	// Rate-limit bucket store: Redis when configured, otherwise in-memory.
	var bucketStore ratelimit.BucketStore = ratelimit.NewInMemoryBucketStore()
	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		bucketStore = ratelimit.NewRedisBucketStore(redisClient.Client)
		log.Info("using redis rate-limit store")
	}

	// Analytics: Kafka when brokers are configured.
	var publisher analytics.Publisher = analytics.Nop{}
	if cfg.KafkaBrokers != "" {
		kafka, err := analytics.NewKafka(ctx, strings.Split(cfg.KafkaBrokers, ","), cfg.AnalyticsTopic, log, m)
		if err != nil {
			log.Error("connecting to kafka", "error", err)
			os.Exit(1)
		}
		publisher = kafka
	}
	defer publisher.Close()

	intakeSvc, err := intake.New(contactStore, publisher, log,
		intake.WithMetrics(m),
		intake.WithIPResolver(intake.NewIPResolver(cfg.IPLookupURL, log)),
	)
	if err != nil {
		log.Error("building intake service", "error", err)
		os.Exit(1)
	}

	reg := registry.New(contactStore, log, registry.WithMetrics(m))
	if err := reg.Open(ctx); err != nil {
		log.Error("opening contact feed", "error", err)
		os.Exit(1)
	}
	if err := reg.Load(ctx); err != nil {
		// The admin surface stays up with an empty set; submissions are
		// unaffected.
		log.Error("initial contact load failed", "error", err)
	}

	limiter := ratelimit.New(bucketStore, log, cfg.IntakeRateLimit, cfg.IntakeRateWindow)

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(chimw.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", promhttp.Handler())

	intakehandler.New(intakeSvc, log, limiter.Limit).Register(router)
	adminhandler.New(reg, log).Register(router)

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting contacthub", "addr", cfg.Addr)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return reg.Run(ctx)
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
