package guard

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/warden-io/warden/pkg/actors"
	"github.com/warden-io/warden/pkg/audit"
	"github.com/warden-io/warden/pkg/observability"
	"github.com/warden-io/warden/pkg/roles"
)

// AuditReader is the audit store surface the service consumes.
type AuditReader interface {
	Query(ctx context.Context, filter audit.Filter) ([]*audit.Entry, error)
	Count(ctx context.Context, filter audit.Filter) (int64, error)
	Export(ctx context.Context, filter audit.Filter, format audit.ExportFormat) ([]byte, int, error)
	Statistics(ctx context.Context) (*audit.Stats, error)
	DeleteByActor(ctx context.Context, actorID int64) (int64, error)
}

// AuditService wraps the audit store's read and purge operations in
// guard enforcement, and records the viewing and exporting themselves
// in the trail.
type AuditService struct {
	guard    *Guard
	store    AuditReader
	actors   ActorStore
	recorder *audit.Recorder
	log      logrus.FieldLogger
	metrics  *observability.Metrics
}

// NewAuditService creates the enforced audit read surface.
func NewAuditService(guard *Guard, store AuditReader, actorStore ActorStore, recorder *audit.Recorder, log logrus.FieldLogger, metrics *observability.Metrics) *AuditService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &AuditService{
		guard:    guard,
		store:    store,
		actors:   actorStore,
		recorder: recorder,
		log:      log,
		metrics:  metrics,
	}
}

// View returns audit entries for a viewer holding VIEW_AUDIT_LOGS and
// records the view.
func (s *AuditService) View(ctx context.Context, handle string, filter audit.Filter) ([]*audit.Entry, error) {
	actor, err := s.guard.RequirePermission(ctx, handle, roles.PermViewAuditLogs, "VIEW_AUDIT_LOGS")
	if err != nil {
		return nil, err
	}

	entries, err := s.store.Query(ctx, filter)
	if err != nil {
		return nil, err
	}

	s.recorder.AuditViewed(ctx, actor, filter)
	return entries, nil
}

// Count returns the matching entry count under the same permission as
// View, without recording a view event (no entry content is exposed).
func (s *AuditService) Count(ctx context.Context, handle string, filter audit.Filter) (int64, error) {
	if _, err := s.guard.RequirePermission(ctx, handle, roles.PermViewAuditLogs, "VIEW_AUDIT_LOGS"); err != nil {
		return 0, err
	}
	return s.store.Count(ctx, filter)
}

// Export serializes matching entries for an exporter holding the
// owner-only EXPORT_AUDIT_LOGS permission, and records the export with
// its record count and format.
func (s *AuditService) Export(ctx context.Context, handle string, filter audit.Filter, format audit.ExportFormat) ([]byte, error) {
	actor, err := s.guard.RequirePermission(ctx, handle, roles.PermExportAuditLogs, "EXPORT_AUDIT_LOGS")
	if err != nil {
		return nil, err
	}

	data, recordCount, err := s.store.Export(ctx, filter, format)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.AuditExportRecords.Add(float64(recordCount))
	}
	s.recorder.AuditExported(ctx, actor, filter, format, recordCount)
	return data, nil
}

// Statistics returns the monitoring view under VIEW_AUDIT_LOGS.
func (s *AuditService) Statistics(ctx context.Context, handle string) (*audit.Stats, error) {
	if _, err := s.guard.RequirePermission(ctx, handle, roles.PermViewAuditLogs, "VIEW_AUDIT_LOGS"); err != nil {
		return nil, err
	}
	return s.store.Statistics(ctx)
}

// PurgeActor hard-deletes every audit entry referencing the target
// handle's actor, for data-erasure requests. Owner-only.
func (s *AuditService) PurgeActor(ctx context.Context, handle, targetHandle string) (int64, error) {
	actor, err := s.guard.RequireRole(ctx, handle, roles.RoleOwner, "PURGE_AUDIT_HISTORY")
	if err != nil {
		return 0, err
	}

	target, err := s.actors.FindByHandle(ctx, targetHandle)
	if err != nil {
		if err == actors.ErrActorNotFound {
			return 0, fmt.Errorf("cannot purge history for %s: %w", targetHandle, err)
		}
		return 0, fmt.Errorf("failed to load target %s: %w", targetHandle, err)
	}

	deleted, err := s.store.DeleteByActor(ctx, target.ID)
	if err != nil {
		return 0, err
	}

	s.log.WithFields(logrus.Fields{
		"actor":   actor.Handle,
		"target":  targetHandle,
		"deleted": deleted,
	}).Warn("purged actor audit history")
	return deleted, nil
}
