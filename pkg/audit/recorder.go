package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/warden-io/warden/pkg/actors"
	"github.com/warden-io/warden/pkg/observability"
	"github.com/warden-io/warden/pkg/roles"
)

// Writer is the store dependency the recorder needs
type Writer interface {
	Create(ctx context.Context, entry *Entry) error
}

// Recorder is the fixed catalogue of typed audit event writers.
//
// Every recorder method is best-effort: a failed store write is
// reported to the operational log and counted, never returned. An
// audit store outage must not take down the action being audited.
type Recorder struct {
	store   Writer
	log     logrus.FieldLogger
	metrics *observability.Metrics
}

// NewRecorder creates a new audit recorder. The logger and metrics
// are optional; nil falls back to the standard logrus logger and
// no-op counting.
func NewRecorder(store Writer, log logrus.FieldLogger, metrics *observability.Metrics) *Recorder {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Recorder{store: store, log: log, metrics: metrics}
}

// write is the shared failure boundary for every recorder.
func (r *Recorder) write(ctx context.Context, entry *Entry) {
	if category, err := CategoryOf(entry.Action); err == nil {
		entry.Category = category
	}

	if err := r.store.Create(ctx, entry); err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"action": string(entry.Action),
			"handle": entry.Handle,
		}).Error("audit write failed")
		if r.metrics != nil {
			r.metrics.AuditWriteFailures.WithLabelValues(string(entry.Action)).Inc()
		}
		return
	}

	if r.metrics != nil {
		r.metrics.AuditWritesTotal.WithLabelValues(string(entry.Action)).Inc()
	}
}

// RoleChange records a successful role transition. The actor is the
// promoter; oldRole is the target's role captured before the mutation.
func (r *Recorder) RoleChange(ctx context.Context, actor *actors.Actor, target *actors.Actor, oldRole, newRole roles.Role) {
	r.write(ctx, &Entry{
		ActorID:     &actor.ID,
		Handle:      actor.Handle,
		Role:        string(actor.Role),
		Action:      ActionRoleChange,
		Description: fmt.Sprintf("Changed role from %s to %s for user %s", oldRole, newRole, target.Handle),
		Metadata: map[string]interface{}{
			"targetUserId": target.ID,
			"targetHandle": target.Handle,
			"oldRole":      string(oldRole),
			"newRole":      string(newRole),
		},
	})
}

// WhitelistAdd records adding a handle to the whitelist.
func (r *Recorder) WhitelistAdd(ctx context.Context, actor *actors.Actor, target *actors.Actor) {
	r.write(ctx, &Entry{
		ActorID:     &actor.ID,
		Handle:      actor.Handle,
		Role:        string(actor.Role),
		Action:      ActionWhitelistAdd,
		Description: fmt.Sprintf("Added %s to whitelist", target.Handle),
		Metadata: map[string]interface{}{
			"targetUserId": target.ID,
			"targetHandle": target.Handle,
		},
	})
}

// WhitelistRemove records removing a handle from the whitelist.
func (r *Recorder) WhitelistRemove(ctx context.Context, actor *actors.Actor, target *actors.Actor) {
	r.write(ctx, &Entry{
		ActorID:     &actor.ID,
		Handle:      actor.Handle,
		Role:        string(actor.Role),
		Action:      ActionWhitelistRemove,
		Description: fmt.Sprintf("Removed %s from whitelist", target.Handle),
		Metadata: map[string]interface{}{
			"targetUserId": target.ID,
			"targetHandle": target.Handle,
		},
	})
}

// PermissionDenied records a failed authorization attempt. The actor
// is the denied party when known; a denial before the account exists
// carries the handle with no actor id. The role falls back to UNKNOWN
// when neither an actor nor an explicit role string is supplied.
func (r *Recorder) PermissionDenied(ctx context.Context, actor *actors.Actor, handle, role, attemptedAction, reason string) {
	entry := &Entry{
		Handle: handle,
		Role:   role,
		Action: ActionPermissionDenied,
		Metadata: map[string]interface{}{
			"attemptedAction": attemptedAction,
			"reason":          reason,
		},
	}
	if actor != nil {
		entry.ActorID = &actor.ID
		entry.Handle = actor.Handle
		entry.Role = string(actor.Role)
	}
	if entry.Role == "" {
		entry.Role = UnknownRole
	}
	entry.Description = fmt.Sprintf("Permission denied for %s attempting %s: %s", entry.Handle, attemptedAction, reason)

	r.write(ctx, entry)
}

// ConfigChange records a configuration update. Old and new values may
// be any serializable shape, nil included.
func (r *Recorder) ConfigChange(ctx context.Context, actor *actors.Actor, setting string, oldValue, newValue interface{}) {
	r.write(ctx, &Entry{
		ActorID:     &actor.ID,
		Handle:      actor.Handle,
		Role:        string(actor.Role),
		Action:      ActionConfigUpdate,
		Description: fmt.Sprintf("Updated setting %s from %v to %v", setting, oldValue, newValue),
		Metadata: map[string]interface{}{
			"setting":  setting,
			"oldValue": oldValue,
			"newValue": newValue,
		},
	})
}

// RateLimitViolation records a rate limit breach. The actor id is
// always null: rate limiting runs before actor resolution, so the
// entry carries only the handle even when that handle is onboarded.
func (r *Recorder) RateLimitViolation(ctx context.Context, handle, limitType string, currentRate, limit, consumed int64) {
	r.write(ctx, &Entry{
		Handle:      handle,
		Role:        UnknownRole,
		Action:      ActionRateLimitViolation,
		Description: fmt.Sprintf("Rate limit exceeded (%s limit): %d of %d", limitType, currentRate, limit),
		Metadata: map[string]interface{}{
			"limitType":   limitType,
			"currentRate": currentRate,
			"limit":       limit,
			"consumed":    consumed,
		},
	})
}

// ModerationFlag records that a message was flagged. Only the flagged
// category names are stored, never the content itself.
func (r *Recorder) ModerationFlag(ctx context.Context, actor *actors.Actor, flaggedCategories []string) {
	r.write(ctx, &Entry{
		ActorID:     &actor.ID,
		Handle:      actor.Handle,
		Role:        string(actor.Role),
		Action:      ActionModerationFlag,
		Description: fmt.Sprintf("Message from %s flagged by moderation: %s", actor.Handle, strings.Join(flaggedCategories, ", ")),
		Metadata: map[string]interface{}{
			"flaggedCategories": flaggedCategories,
		},
	})
}

// CircuitBreakerOpen records a circuit breaker opening for a service.
func (r *Recorder) CircuitBreakerOpen(ctx context.Context, service string, failureCount int) {
	r.write(ctx, &Entry{
		Handle:      SystemHandle,
		Role:        SystemHandle,
		Action:      ActionCircuitBreakerOpen,
		Description: fmt.Sprintf("Circuit breaker opened for service %s after %d failures", service, failureCount),
		Metadata: map[string]interface{}{
			"service":      service,
			"state":        "open",
			"failureCount": failureCount,
		},
	})
}

// CircuitBreakerClosed records a circuit breaker recovering.
func (r *Recorder) CircuitBreakerClosed(ctx context.Context, service string) {
	r.write(ctx, &Entry{
		Handle:      SystemHandle,
		Role:        SystemHandle,
		Action:      ActionCircuitBreakerClose,
		Description: fmt.Sprintf("Circuit breaker closed for service %s", service),
		Metadata: map[string]interface{}{
			"service": service,
			"state":   "closed",
		},
	})
}

// CostThresholdBreach records spending crossing a configured
// threshold. The actor is optional (global thresholds are
// system-attributed).
func (r *Recorder) CostThresholdBreach(ctx context.Context, actor *actors.Actor, threshold, actual float64, period string) {
	entry := &Entry{
		Handle:      SystemHandle,
		Role:        SystemHandle,
		Action:      ActionCostThresholdBreach,
		Description: fmt.Sprintf("Cost threshold breached for period %s: %.2f actual vs %.2f threshold", period, actual, threshold),
		Metadata: map[string]interface{}{
			"threshold": threshold,
			"actual":    actual,
			"period":    period,
		},
	}
	if actor != nil {
		entry.ActorID = &actor.ID
		entry.Handle = actor.Handle
		entry.Role = string(actor.Role)
	}
	r.write(ctx, entry)
}

// AuditViewed records that an actor viewed the audit trail.
func (r *Recorder) AuditViewed(ctx context.Context, actor *actors.Actor, filter Filter) {
	r.write(ctx, &Entry{
		ActorID:     &actor.ID,
		Handle:      actor.Handle,
		Role:        string(actor.Role),
		Action:      ActionAuditLogViewed,
		Description: fmt.Sprintf("Viewed audit logs (limit %d)", filter.Limit),
		Metadata: map[string]interface{}{
			"filters": filterMetadata(filter),
		},
	})
}

// AuditExported records a completed export with its record count and
// format.
func (r *Recorder) AuditExported(ctx context.Context, actor *actors.Actor, filter Filter, format ExportFormat, recordCount int) {
	r.write(ctx, &Entry{
		ActorID:     &actor.ID,
		Handle:      actor.Handle,
		Role:        string(actor.Role),
		Action:      ActionAuditLogExported,
		Description: fmt.Sprintf("Exported %d audit log entries as %s", recordCount, format),
		Metadata: map[string]interface{}{
			"filters":     filterMetadata(filter),
			"recordCount": recordCount,
			"format":      string(format),
		},
	})
}

// ConversationReset records an actor resetting their conversation.
func (r *Recorder) ConversationReset(ctx context.Context, actor *actors.Actor) {
	r.write(ctx, &Entry{
		ActorID:     &actor.ID,
		Handle:      actor.Handle,
		Role:        string(actor.Role),
		Action:      ActionConversationReset,
		Description: fmt.Sprintf("Conversation reset for %s", actor.Handle),
		Metadata:    map[string]interface{}{},
	})
}

// UsageQuery records an actor querying usage figures.
func (r *Recorder) UsageQuery(ctx context.Context, actor *actors.Actor, scope string) {
	r.write(ctx, &Entry{
		ActorID:     &actor.ID,
		Handle:      actor.Handle,
		Role:        string(actor.Role),
		Action:      ActionUsageQuery,
		Description: fmt.Sprintf("Queried %s usage", scope),
		Metadata: map[string]interface{}{
			"scope": scope,
		},
	})
}

// filterMetadata flattens a filter into the metadata payload so an
// export or view event can be reproduced from its entry.
func filterMetadata(filter Filter) map[string]interface{} {
	out := map[string]interface{}{
		"limit":  filter.Limit,
		"offset": filter.Offset,
	}
	if filter.ActorID != nil {
		out["actorId"] = *filter.ActorID
	}
	if filter.Handle != "" {
		out["handle"] = filter.Handle
	}
	if filter.Category != "" {
		out["category"] = string(filter.Category)
	}
	if filter.Action != "" {
		out["action"] = string(filter.Action)
	}
	if filter.StartDate != nil {
		out["startDate"] = filter.StartDate.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	if filter.EndDate != nil {
		out["endDate"] = filter.EndDate.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return out
}
