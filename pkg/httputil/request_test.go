package httputil

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQueryInt(t *testing.T) {
	r := httptest.NewRequest("GET", "/?limit=25", nil)

	limit, err := ParseQueryInt(r, "limit", 50)
	require.NoError(t, err)
	assert.Equal(t, 25, limit)

	offset, err := ParseQueryInt(r, "offset", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, offset)

	r = httptest.NewRequest("GET", "/?limit=abc", nil)
	_, err = ParseQueryInt(r, "limit", 50)
	assert.Error(t, err)
}

func TestParseQueryTime(t *testing.T) {
	r := httptest.NewRequest("GET", "/?start=2026-07-01T00:00:00Z", nil)

	start, err := ParseQueryTime(r, "start")
	require.NoError(t, err)
	require.NotNil(t, start)
	assert.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), start.UTC())

	end, err := ParseQueryTime(r, "end")
	require.NoError(t, err)
	assert.Nil(t, end)

	r = httptest.NewRequest("GET", "/?start=yesterday", nil)
	_, err = ParseQueryTime(r, "start")
	assert.Error(t, err)
}

func TestParseJSONRejectsUnknownFields(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"handle":"+1555","extra":1}`))

	var dest struct {
		Handle string `json:"handle"`
	}
	assert.Error(t, ParseJSON(r, &dest))
}
