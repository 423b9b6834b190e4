package guard

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warden-io/warden/pkg/actors"
	"github.com/warden-io/warden/pkg/audit"
)

type serviceFixture struct {
	service    *AuditService
	guard      *Guard
	auditStore *audit.Store
	actorStore *actors.Store
}

func newServiceFixture(t *testing.T, seeds SeedConfig) *serviceFixture {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE actors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			handle TEXT NOT NULL UNIQUE,
			role TEXT NOT NULL,
			whitelisted INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);
		CREATE TABLE audit_entries (
			id TEXT PRIMARY KEY,
			actor_id INTEGER,
			handle TEXT NOT NULL,
			role TEXT NOT NULL,
			action TEXT NOT NULL,
			category TEXT NOT NULL,
			description TEXT NOT NULL,
			metadata TEXT,
			created_at TIMESTAMP NOT NULL
		);
	`)
	require.NoError(t, err)

	actorStore := actors.NewStore(db)
	auditStore, err := audit.NewStore(db)
	require.NoError(t, err)

	logger, _ := logrustest.NewNullLogger()
	recorder := audit.NewRecorder(auditStore, logger, nil)
	g := New(actorStore, recorder, seeds, logger, nil)

	return &serviceFixture{
		service:    NewAuditService(g, auditStore, actorStore, recorder, logger, nil),
		guard:      g,
		auditStore: auditStore,
		actorStore: actorStore,
	}
}

func (f *serviceFixture) seed(t *testing.T, n int, action audit.Action) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, f.auditStore.Create(context.Background(), &audit.Entry{
			Handle: "+15552220000", Role: "ADMIN",
			Action: action, Description: "seeded",
		}))
	}
}

func TestAuditService_View(t *testing.T) {
	f := newServiceFixture(t, SeedConfig{
		AdminHandles: []string{"+15552220001"},
	})
	ctx := context.Background()
	f.seed(t, 3, audit.ActionConfigUpdate)

	entries, err := f.service.View(ctx, "+15552220001", audit.Filter{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	views, err := f.auditStore.FindByAction(ctx, audit.ActionAuditLogViewed, 10)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "+15552220001", views[0].Handle)
}

func TestAuditService_ViewDeniedForUser(t *testing.T) {
	f := newServiceFixture(t, SeedConfig{})
	ctx := context.Background()

	_, err := f.service.View(ctx, "+15552229999", audit.Filter{})
	require.Error(t, err)
	assert.True(t, IsDenied(err))

	denials, err := f.auditStore.FindByAction(ctx, audit.ActionPermissionDenied, 10)
	require.NoError(t, err)
	require.Len(t, denials, 1)
	assert.Equal(t, "+15552229999", denials[0].Handle)
	assert.Equal(t, "VIEW_AUDIT_LOGS", denials[0].Metadata["attemptedAction"])

	views, err := f.auditStore.FindByAction(ctx, audit.ActionAuditLogViewed, 10)
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestAuditService_ExportRecordsCount(t *testing.T) {
	f := newServiceFixture(t, SeedConfig{
		OwnerHandles: []string{"+15552220002"},
		AdminHandles: []string{"+15552220003"},
	})
	ctx := context.Background()
	f.seed(t, 37, audit.ActionConfigUpdate)

	t.Run("admin denial names OWNER", func(t *testing.T) {
		_, err := f.service.Export(ctx, "+15552220003", audit.Filter{}, audit.ExportFormatJSON)
		require.Error(t, err)
		assert.True(t, IsDenied(err))
		assert.Contains(t, err.Error(), "OWNER")

		denials, err := f.auditStore.FindByAction(ctx, audit.ActionPermissionDenied, 10)
		require.NoError(t, err)
		require.Len(t, denials, 1)
		assert.Equal(t, "+15552220003", denials[0].Handle)
	})

	t.Run("owner export yields recordCount", func(t *testing.T) {
		data, err := f.service.Export(ctx, "+15552220002",
			audit.Filter{Action: audit.ActionConfigUpdate}, audit.ExportFormatJSON)
		require.NoError(t, err)

		var decoded []map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Len(t, decoded, 37)

		exports, err := f.auditStore.FindByAction(ctx, audit.ActionAuditLogExported, 10)
		require.NoError(t, err)
		require.Len(t, exports, 1)
		assert.Equal(t, float64(37), exports[0].Metadata["recordCount"])
		assert.Equal(t, "json", exports[0].Metadata["format"])
	})
}

func TestAuditService_Count(t *testing.T) {
	f := newServiceFixture(t, SeedConfig{AdminHandles: []string{"+15552220004"}})
	ctx := context.Background()
	f.seed(t, 5, audit.ActionUsageQuery)

	count, err := f.service.Count(ctx, "+15552220004", audit.Filter{Action: audit.ActionUsageQuery})
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)

	_, err = f.service.Count(ctx, "+15552228888", audit.Filter{})
	assert.True(t, IsDenied(err))
}

func TestAuditService_Statistics(t *testing.T) {
	f := newServiceFixture(t, SeedConfig{AdminHandles: []string{"+15552220005"}})
	ctx := context.Background()
	f.seed(t, 4, audit.ActionConfigUpdate)

	stats, err := f.service.Statistics(ctx, "+15552220005")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.Total, int64(4))
}

func TestAuditService_PurgeActor(t *testing.T) {
	f := newServiceFixture(t, SeedConfig{
		OwnerHandles: []string{"+15552220006"},
		AdminHandles: []string{"+15552220007"},
	})
	ctx := context.Background()

	target, err := f.guard.ResolveActor(ctx, "+15552221111")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.auditStore.Create(ctx, &audit.Entry{
			ActorID: &target.ID, Handle: target.Handle, Role: "USER",
			Action: audit.ActionUsageQuery, Description: "q",
			CreatedAt: time.Now().UTC(),
		}))
	}

	t.Run("admin denied", func(t *testing.T) {
		_, err := f.service.PurgeActor(ctx, "+15552220007", "+15552221111")
		assert.True(t, IsDenied(err))
	})

	t.Run("owner purges", func(t *testing.T) {
		deleted, err := f.service.PurgeActor(ctx, "+15552220006", "+15552221111")
		require.NoError(t, err)
		assert.Equal(t, int64(3), deleted)
	})

	t.Run("missing target", func(t *testing.T) {
		_, err := f.service.PurgeActor(ctx, "+15552220006", "+15552223333")
		assert.ErrorIs(t, err, actors.ErrActorNotFound)
	})
}
