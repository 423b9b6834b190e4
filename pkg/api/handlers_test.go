package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warden-io/warden/pkg/actors"
	"github.com/warden-io/warden/pkg/audit"
	"github.com/warden-io/warden/pkg/guard"
)

const (
	ownerHandle = "+15559990001"
	adminHandle = "+15559990002"
	userHandle  = "+15559990003"
)

type apiFixture struct {
	handler    http.Handler
	auditStore *audit.Store
	actorStore *actors.Store
}

func newAPIFixture(t *testing.T) *apiFixture {
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
	seeds := guard.SeedConfig{
		OwnerHandles: []string{ownerHandle},
		AdminHandles: []string{adminHandle},
	}
	g := guard.New(actorStore, recorder, seeds, logger, nil)
	manager := guard.NewManager(g, actorStore, recorder, logger)
	audits := guard.NewAuditService(g, auditStore, actorStore, recorder, logger, nil)

	server := NewServer(g, manager, audits, logger)
	return &apiFixture{
		handler:    server.Handler(),
		auditStore: auditStore,
		actorStore: actorStore,
	}
}

func (f *apiFixture) do(method, path, actor, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if actor != "" {
		req.Header.Set("X-Warden-Handle", actor)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestAPI_MissingActorHeader(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do("GET", "/api/v1/audit", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_AuditList(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("admin sees entries", func(t *testing.T) {
		rec := f.do("GET", "/api/v1/audit?limit=10", adminHandle, "")
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Entries []json.RawMessage `json:"entries"`
			Count   int               `json:"count"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, len(body.Entries), body.Count)
	})

	t.Run("plain user is forbidden", func(t *testing.T) {
		rec := f.do("GET", "/api/v1/audit", userHandle, "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("bad limit is a 400", func(t *testing.T) {
		rec := f.do("GET", "/api/v1/audit?limit=abc", adminHandle, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAPI_AuditExport(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("owner exports csv", func(t *testing.T) {
		rec := f.do("GET", "/api/v1/audit/export?format=csv", ownerHandle, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
		assert.True(t, strings.HasPrefix(rec.Body.String(), "id,createdAt"))
	})

	t.Run("admin is forbidden and told why", func(t *testing.T) {
		rec := f.do("GET", "/api/v1/audit/export", adminHandle, "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "OWNER")
	})

	t.Run("unknown format is a 400", func(t *testing.T) {
		rec := f.do("GET", "/api/v1/audit/export?format=xml", ownerHandle, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAPI_AuditStats(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do("GET", "/api/v1/audit/stats", adminHandle, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats audit.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, audit.StatsSampleSize, stats.SampleSize)
}

func TestAPI_Promote(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("owner promotes a stranger", func(t *testing.T) {
		rec := f.do("POST", "/api/v1/actors/+15559991111/promote", ownerHandle, `{"role":"OPERATOR"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var body actorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "OPERATOR", body.Role)
		assert.Equal(t, "+15559991111", body.Handle)
	})

	t.Run("unknown role is a 400", func(t *testing.T) {
		rec := f.do("POST", "/api/v1/actors/+15559991112/promote", ownerHandle, `{"role":"WIZARD"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("admin may not mint admins", func(t *testing.T) {
		rec := f.do("POST", "/api/v1/actors/+15559991113/promote", adminHandle, `{"role":"ADMIN"}`)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("promote to same role is a 400", func(t *testing.T) {
		rec := f.do("POST", "/api/v1/actors/+15559991111/promote", ownerHandle, `{"role":"OPERATOR"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAPI_Demote(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("self-demotion is forbidden", func(t *testing.T) {
		rec := f.do("POST", "/api/v1/actors/"+ownerHandle+"/demote", ownerHandle, `{"role":"USER"}`)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("missing target is a 404", func(t *testing.T) {
		rec := f.do("POST", "/api/v1/actors/+15559992222/demote", ownerHandle, `{"role":"USER"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAPI_Whitelist(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do("POST", "/api/v1/actors/+15559993333/whitelist", adminHandle, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body actorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Whitelisted)

	rec = f.do("DELETE", "/api/v1/actors/+15559993333/whitelist", adminHandle, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Whitelisted)
}

func TestAPI_ActorGet(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do("GET", "/api/v1/actors/"+adminHandle, adminHandle, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body actorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ADMIN", body.Role)

	rec = f.do("GET", "/api/v1/actors/"+adminHandle, userHandle, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPI_AuditPurge(t *testing.T) {
	f := newAPIFixture(t)

	// Seed a target with history.
	rec := f.do("GET", "/api/v1/actors/+15559994444", adminHandle, "")
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("admin is forbidden", func(t *testing.T) {
		rec := f.do("DELETE", "/api/v1/actors/+15559994444/audit", adminHandle, "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("owner purges", func(t *testing.T) {
		rec := f.do("DELETE", "/api/v1/actors/+15559994444/audit", ownerHandle, "")
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]int64
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.GreaterOrEqual(t, body["deleted"], int64(0))
	})
}

func TestAuditFilterFromQuery_Actions(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/audit?actions=ROLE_CHANGE,%20PERMISSION_DENIED,", nil)
	filter, err := auditFilterFromQuery(req)
	require.NoError(t, err)
	assert.Equal(t, []audit.Action{"ROLE_CHANGE", "PERMISSION_DENIED"}, filter.Actions)

	req = httptest.NewRequest("GET", "/api/v1/audit", nil)
	filter, err = auditFilterFromQuery(req)
	require.NoError(t, err)
	assert.Nil(t, filter.Actions)
}
