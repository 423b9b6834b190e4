package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-io/warden/pkg/actors"
	"github.com/warden-io/warden/pkg/roles"
)

type captureWriter struct {
	entries []*Entry
	err     error
}

func (w *captureWriter) Create(_ context.Context, entry *Entry) error {
	if w.err != nil {
		return w.err
	}
	w.entries = append(w.entries, entry)
	return nil
}

func (w *captureWriter) last(t *testing.T) *Entry {
	t.Helper()
	require.NotEmpty(t, w.entries)
	return w.entries[len(w.entries)-1]
}

func testActor(role roles.Role) *actors.Actor {
	return &actors.Actor{
		ID:        101,
		Handle:    "+15550001111",
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
}

func newTestRecorder() (*Recorder, *captureWriter) {
	writer := &captureWriter{}
	logger, _ := logrustest.NewNullLogger()
	return NewRecorder(writer, logger, nil), writer
}

func TestRecorder_RoleChange(t *testing.T) {
	recorder, writer := newTestRecorder()
	actor := testActor(roles.RoleOwner)
	target := &actors.Actor{ID: 202, Handle: "+15550002222", Role: roles.RoleAdmin}

	recorder.RoleChange(context.Background(), actor, target, roles.RoleUser, roles.RoleAdmin)

	entry := writer.last(t)
	assert.Equal(t, ActionRoleChange, entry.Action)
	assert.Equal(t, CategoryAuth, entry.Category)
	assert.Equal(t, actor.ID, *entry.ActorID)
	assert.Equal(t, actor.Handle, entry.Handle)
	assert.Equal(t, "OWNER", entry.Role)
	assert.Equal(t, int64(202), entry.Metadata["targetUserId"])
	assert.Equal(t, "+15550002222", entry.Metadata["targetHandle"])
	assert.Equal(t, "USER", entry.Metadata["oldRole"])
	assert.Equal(t, "ADMIN", entry.Metadata["newRole"])
	assert.Contains(t, entry.Description, "from USER to ADMIN")
}

func TestRecorder_Whitelist(t *testing.T) {
	recorder, writer := newTestRecorder()
	actor := testActor(roles.RoleAdmin)
	target := &actors.Actor{ID: 303, Handle: "+15550003333", Role: roles.RoleUser}

	recorder.WhitelistAdd(context.Background(), actor, target)
	entry := writer.last(t)
	assert.Equal(t, ActionWhitelistAdd, entry.Action)
	assert.Equal(t, int64(303), entry.Metadata["targetUserId"])

	recorder.WhitelistRemove(context.Background(), actor, target)
	entry = writer.last(t)
	assert.Equal(t, ActionWhitelistRemove, entry.Action)
	assert.Contains(t, entry.Description, "Removed +15550003333")
}

func TestRecorder_PermissionDenied(t *testing.T) {
	recorder, writer := newTestRecorder()

	t.Run("known actor", func(t *testing.T) {
		actor := testActor(roles.RoleUser)
		recorder.PermissionDenied(context.Background(), actor, "", "", "EXPORT_AUDIT_LOGS", "insufficient role")

		entry := writer.last(t)
		assert.Equal(t, ActionPermissionDenied, entry.Action)
		assert.Equal(t, actor.ID, *entry.ActorID)
		assert.Equal(t, "USER", entry.Role)
		assert.Equal(t, "EXPORT_AUDIT_LOGS", entry.Metadata["attemptedAction"])
		assert.Equal(t, "insufficient role", entry.Metadata["reason"])
	})

	t.Run("unresolved actor falls back to UNKNOWN", func(t *testing.T) {
		recorder.PermissionDenied(context.Background(), nil, "+15559998888", "", "MANAGE_ADMINS", "actor not found")

		entry := writer.last(t)
		assert.Nil(t, entry.ActorID)
		assert.Equal(t, "+15559998888", entry.Handle)
		assert.Equal(t, UnknownRole, entry.Role)
	})
}

func TestRecorder_ConfigChange(t *testing.T) {
	recorder, writer := newTestRecorder()
	actor := testActor(roles.RoleAdmin)

	recorder.ConfigChange(context.Background(), actor, "maxTokens", 1000, 2000)

	entry := writer.last(t)
	assert.Equal(t, ActionConfigUpdate, entry.Action)
	assert.Equal(t, CategoryConfig, entry.Category)
	assert.Equal(t, "maxTokens", entry.Metadata["setting"])
	assert.Equal(t, 1000, entry.Metadata["oldValue"])
	assert.Equal(t, 2000, entry.Metadata["newValue"])
}

func TestRecorder_RateLimitViolation(t *testing.T) {
	recorder, writer := newTestRecorder()

	recorder.RateLimitViolation(context.Background(), "+15550001111", "per_user", 31, 30, 31)

	entry := writer.last(t)
	assert.Equal(t, ActionRateLimitViolation, entry.Action)
	assert.Equal(t, CategorySecurity, entry.Category)
	// Rate limit entries are never actor-attributed, even when the
	// handle is known.
	assert.Nil(t, entry.ActorID)
	assert.Equal(t, "+15550001111", entry.Handle)
	assert.Equal(t, UnknownRole, entry.Role)
	assert.Equal(t, "per_user", entry.Metadata["limitType"])
	assert.Equal(t, int64(31), entry.Metadata["currentRate"])
	assert.Equal(t, int64(30), entry.Metadata["limit"])
}

func TestRecorder_ModerationFlag(t *testing.T) {
	recorder, writer := newTestRecorder()
	actor := testActor(roles.RoleUser)

	recorder.ModerationFlag(context.Background(), actor, []string{"harassment", "hate"})

	entry := writer.last(t)
	assert.Equal(t, ActionModerationFlag, entry.Action)
	assert.Equal(t, []string{"harassment", "hate"}, entry.Metadata["flaggedCategories"])
	assert.Contains(t, entry.Description, "harassment, hate")
	// Only category names; flagged content itself must never be stored.
	assert.NotContains(t, entry.Metadata, "content")
	assert.NotContains(t, entry.Metadata, "message")
}

func TestRecorder_CircuitBreaker(t *testing.T) {
	recorder, writer := newTestRecorder()

	recorder.CircuitBreakerOpen(context.Background(), "completions-api", 5)
	entry := writer.last(t)
	assert.Equal(t, ActionCircuitBreakerOpen, entry.Action)
	assert.Nil(t, entry.ActorID)
	assert.Equal(t, SystemHandle, entry.Handle)
	assert.Equal(t, SystemHandle, entry.Role)
	assert.Equal(t, "open", entry.Metadata["state"])
	assert.Equal(t, 5, entry.Metadata["failureCount"])

	recorder.CircuitBreakerClosed(context.Background(), "completions-api")
	entry = writer.last(t)
	assert.Equal(t, ActionCircuitBreakerClose, entry.Action)
	assert.Equal(t, "closed", entry.Metadata["state"])
}

func TestRecorder_CostThresholdBreach(t *testing.T) {
	recorder, writer := newTestRecorder()

	recorder.CostThresholdBreach(context.Background(), nil, 100.0, 112.5, "daily")

	entry := writer.last(t)
	assert.Equal(t, ActionCostThresholdBreach, entry.Action)
	assert.Equal(t, SystemHandle, entry.Handle)
	assert.Contains(t, entry.Description, "112.50 actual vs 100.00 threshold")
	assert.Equal(t, 112.5, entry.Metadata["actual"])
}

func TestRecorder_AuditViewedAndExported(t *testing.T) {
	recorder, writer := newTestRecorder()
	actor := testActor(roles.RoleAdmin)

	recorder.AuditViewed(context.Background(), actor, Filter{Handle: "+15550002222", Limit: 50})
	entry := writer.last(t)
	assert.Equal(t, ActionAuditLogViewed, entry.Action)
	filters, ok := entry.Metadata["filters"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "+15550002222", filters["handle"])

	owner := testActor(roles.RoleOwner)
	recorder.AuditExported(context.Background(), owner, Filter{Limit: 500}, ExportFormatCSV, 137)
	entry = writer.last(t)
	assert.Equal(t, ActionAuditLogExported, entry.Action)
	assert.Equal(t, 137, entry.Metadata["recordCount"])
	assert.Equal(t, "csv", entry.Metadata["format"])
	assert.Contains(t, entry.Description, "Exported 137 audit log entries as csv")
}

func TestRecorder_ConversationResetAndUsage(t *testing.T) {
	recorder, writer := newTestRecorder()
	actor := testActor(roles.RoleUser)

	recorder.ConversationReset(context.Background(), actor)
	assert.Equal(t, ActionConversationReset, writer.last(t).Action)

	recorder.UsageQuery(context.Background(), actor, "own")
	entry := writer.last(t)
	assert.Equal(t, ActionUsageQuery, entry.Action)
	assert.Equal(t, "own", entry.Metadata["scope"])
}

func TestRecorder_SwallowsStoreFailures(t *testing.T) {
	writer := &captureWriter{err: errors.New("database is down")}
	logger, hook := logrustest.NewNullLogger()
	recorder := NewRecorder(writer, logger, nil)

	// Must not panic or surface the error in any way.
	recorder.RoleChange(context.Background(), testActor(roles.RoleOwner), testActor(roles.RoleUser), roles.RoleUser, roles.RoleAdmin)
	recorder.CircuitBreakerOpen(context.Background(), "completions-api", 3)

	require.Len(t, hook.Entries, 2)
	for _, logEntry := range hook.Entries {
		assert.Equal(t, logrus.ErrorLevel, logEntry.Level)
		assert.Equal(t, "audit write failed", logEntry.Message)
	}
	assert.Equal(t, string(ActionRoleChange), hook.Entries[0].Data["action"])
}
