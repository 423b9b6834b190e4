package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ParseJSON decodes the request body into dest, rejecting unknown
// fields.
func ParseJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// ParseQueryInt parses an integer query parameter, returning the
// default when absent.
func ParseQueryInt(r *http.Request, key string, defaultVal int) (int, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultVal, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter: %q", key, value)
	}
	return parsed, nil
}

// ParseQueryString returns a query parameter or the default when
// absent.
func ParseQueryString(r *http.Request, key, defaultVal string) string {
	if value := r.URL.Query().Get(key); value != "" {
		return value
	}
	return defaultVal
}

// ParseQueryTime parses an RFC 3339 query parameter. An absent
// parameter returns a nil time with no error.
func ParseQueryTime(r *http.Request, key string) (*time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s parameter: %q (expected RFC 3339)", key, value)
	}
	return &parsed, nil
}
