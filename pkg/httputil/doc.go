// Package httputil provides JSON response helpers, query parsing, and
// common middleware for the admin API, including the mapping from the
// guard's error taxonomy to HTTP statuses.
package httputil
