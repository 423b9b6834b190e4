package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/warden-io/warden/pkg/actors"
	"github.com/warden-io/warden/pkg/api"
	"github.com/warden-io/warden/pkg/archive"
	"github.com/warden-io/warden/pkg/audit"
	"github.com/warden-io/warden/pkg/config"
	"github.com/warden-io/warden/pkg/guard"
	"github.com/warden-io/warden/pkg/observability"
	"github.com/warden-io/warden/pkg/ratelimit"
	"github.com/warden-io/warden/pkg/roles"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	level, err := logrus.ParseLevel(cfg.Observability.LogLevel)
	if err != nil {
		log.WithField("level", cfg.Observability.LogLevel).Warn("unknown log level, using info")
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server exited with error")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	if err := roles.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return err
	}
	log.Info("connected to database")

	actorStore := actors.NewStore(db)
	if err := actorStore.EnsureSchema(ctx); err != nil {
		return err
	}
	auditStore, err := audit.NewStore(db)
	if err != nil {
		return err
	}
	if err := auditStore.EnsureSchema(ctx); err != nil {
		return err
	}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, log)
	if err != nil {
		return err
	}
	if providers != nil {
		defer func() {
			if err := providers.Shutdown(context.Background()); err != nil {
				log.WithError(err).Warn("tracer shutdown failed")
			}
		}()
	}

	recorder := audit.NewRecorder(auditStore, log, metrics)
	g := guard.New(actorStore, recorder, cfg.Seeds, log, metrics)
	manager := guard.NewManager(g, actorStore, recorder, log)
	audits := guard.NewAuditService(g, auditStore, actorStore, recorder, log, metrics)

	server := api.NewServer(g, manager, audits, log)

	if cfg.RateLimit.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return err
		}
		server.WithRateLimiter(ratelimit.New(client, cfg.RateLimiterConfig(), recorder, log, metrics))
		log.WithFields(logrus.Fields{
			"per_user": cfg.RateLimit.PerUserLimit,
			"global":   cfg.RateLimit.GlobalLimit,
			"window":   cfg.RateLimit.Window,
		}).Info("rate limiting enabled")
	}

	sweeper, err := newSweeper(cfg, auditStore, log, metrics)
	if err != nil {
		return err
	}
	if err := sweeper.Start(cfg.Retention.Schedule); err != nil {
		return err
	}
	defer sweeper.Stop()
	log.WithField("schedule", cfg.Retention.Schedule).Info("retention sweeper scheduled")

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux(db, metrics),
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		log.WithField("addr", apiServer.Addr).Info("admin API listening")
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		log.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("API server shutdown failed")
		}
		return healthServer.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// newSweeper builds the in-process retention sweeper, with an archiver
// when the config asks for one.
func newSweeper(cfg *config.Config, store *audit.Store, log *logrus.Logger, metrics *observability.Metrics) (*audit.Sweeper, error) {
	policy := audit.RetentionPolicy{
		RetentionDays:  cfg.Retention.Days,
		ArchiveEnabled: cfg.Retention.ArchiveEnabled,
	}

	var archiver audit.Archiver
	if cfg.Retention.ArchiveEnabled {
		a, err := archive.New(cfg.Archive)
		if err != nil {
			return nil, err
		}
		archiver = a
		log.WithField("backend", cfg.Archive.Backend).Info("audit archiving enabled")
	}

	return audit.NewSweeper(store, policy, archiver, archive.Key, log, metrics)
}

func healthMux(db *sql.DB, metrics *observability.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if metrics != nil {
		mux.Handle("/metrics", metrics.Handler())
	}
	return mux
}
