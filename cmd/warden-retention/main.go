package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/warden-io/warden/pkg/archive"
	"github.com/warden-io/warden/pkg/audit"
	"github.com/warden-io/warden/pkg/config"
)

var runOnce = flag.Bool("run-once", false, "Run one sweep and exit (for testing or backfilling)")

func main() {
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.Observability.LogLevel); err == nil {
		log.SetLevel(level)
	}

	ctx := context.Background()

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.WithError(err).Fatal("failed to ping database")
	}

	store, err := audit.NewStore(db)
	if err != nil {
		log.WithError(err).Fatal("failed to build audit store")
	}

	policy := audit.RetentionPolicy{
		RetentionDays:  cfg.Retention.Days,
		ArchiveEnabled: cfg.Retention.ArchiveEnabled,
	}
	var archiver audit.Archiver
	if cfg.Retention.ArchiveEnabled {
		archiver, err = archive.New(cfg.Archive)
		if err != nil {
			log.WithError(err).Fatal("failed to build archiver")
		}
		log.WithField("backend", cfg.Archive.Backend).Info("archiving enabled")
	}

	sweeper, err := audit.NewSweeper(store, policy, archiver, archive.Key, log, nil)
	if err != nil {
		log.WithError(err).Fatal("failed to build sweeper")
	}

	if *runOnce {
		deleted, err := sweeper.RunOnce(ctx)
		if err != nil {
			log.WithError(err).Fatal("sweep failed")
		}
		log.WithField("deleted", deleted).Info("sweep completed")
		return
	}

	if err := sweeper.Start(cfg.Retention.Schedule); err != nil {
		log.WithError(err).Fatal("failed to start sweeper")
	}
	log.WithFields(logrus.Fields{
		"schedule":       cfg.Retention.Schedule,
		"retention_days": cfg.Retention.Days,
	}).Info("retention sweeper started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")
	sweeper.Stop()
	log.Info("sweeper stopped")
}
