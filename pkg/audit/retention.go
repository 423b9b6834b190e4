package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/warden-io/warden/pkg/observability"
)

// Archiver receives the export artifact for expiring entries before
// they are deleted.
type Archiver interface {
	Store(ctx context.Context, key string, data []byte) error
}

// ArchiveKeyFunc names the artifact for a sweep that starts at the
// given time.
type ArchiveKeyFunc func(now time.Time) string

// Sweeper runs retention cleanup: optionally archive expiring entries,
// then delete them in bounded batches. One sweep never overlaps
// another; the cron scheduler skips a tick while the previous run is
// still going.
type Sweeper struct {
	store    *Store
	policy   RetentionPolicy
	archiver Archiver
	keyFunc  ArchiveKeyFunc
	log      logrus.FieldLogger
	metrics  *observability.Metrics
	cron     *cron.Cron
}

// NewSweeper creates a retention sweeper. The archiver may be nil when
// the policy has archiving disabled.
func NewSweeper(store *Store, policy RetentionPolicy, archiver Archiver, keyFunc ArchiveKeyFunc, log logrus.FieldLogger, metrics *observability.Metrics) (*Sweeper, error) {
	if policy.RetentionDays <= 0 {
		return nil, fmt.Errorf("retention days must be positive, got %d", policy.RetentionDays)
	}
	if policy.ArchiveEnabled && archiver == nil {
		return nil, fmt.Errorf("archiving is enabled but no archiver was configured")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Sweeper{
		store:    store,
		policy:   policy,
		archiver: archiver,
		keyFunc:  keyFunc,
		log:      log,
		metrics:  metrics,
	}, nil
}

// RunOnce performs a single sweep and returns the number of entries
// deleted. When archiving is enabled the expiring entries are exported
// and stored first; an archive failure aborts the sweep so no entry is
// ever deleted without its archived copy.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	start := time.Now().UTC()

	if s.policy.ArchiveEnabled {
		if err := s.archiveExpiring(ctx, start); err != nil {
			return 0, err
		}
	}

	deleted, err := s.store.DeleteExpired(ctx, s.policy.RetentionDays)
	if err != nil {
		return deleted, err
	}

	if s.metrics != nil {
		s.metrics.AuditRetentionDeleted.Add(float64(deleted))
	}
	s.log.WithFields(logrus.Fields{
		"deleted":        deleted,
		"retention_days": s.policy.RetentionDays,
		"duration":       time.Since(start).String(),
	}).Info("retention sweep completed")
	return deleted, nil
}

// archiveExpiring exports entries past the cutoff in export-cap sized
// pages until none remain, one artifact per page. Deletion happens
// only after every page is archived, so nothing past the cutoff is
// ever lost to a partial sweep.
func (s *Sweeper) archiveExpiring(ctx context.Context, start time.Time) error {
	cutoff := start.AddDate(0, 0, -s.policy.RetentionDays)
	for page := 0; ; page++ {
		filter := Filter{
			EndDate: &cutoff,
			Limit:   MaxExportRecords,
			Offset:  page * MaxExportRecords,
		}
		data, count, err := s.store.Export(ctx, filter, ExportFormatJSON)
		if err != nil {
			return fmt.Errorf("failed to export expiring entries: %w", err)
		}
		if count == 0 {
			return nil
		}

		key := s.keyFunc(start.Add(time.Duration(page) * time.Second))
		if err := s.archiver.Store(ctx, key, data); err != nil {
			return fmt.Errorf("failed to archive expiring entries: %w", err)
		}
		s.log.WithFields(logrus.Fields{
			"key":     key,
			"records": count,
		}).Info("archived expiring audit entries")

		if count < MaxExportRecords {
			return nil
		}
	}
}

// Start schedules recurring sweeps with the given cron expression
// (e.g. "30 3 * * *" for 03:30 UTC daily).
func (s *Sweeper) Start(schedule string) error {
	if s.cron != nil {
		return fmt.Errorf("sweeper already started")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(schedule, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.log.WithError(err).Error("retention sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}

	c.Start()
	s.cron = c
	s.log.WithField("schedule", schedule).Info("retention sweeper started")
	return nil
}

// Stop halts the scheduler, waiting for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
}
