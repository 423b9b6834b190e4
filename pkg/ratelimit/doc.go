// Package ratelimit provides a redis-backed fixed-window rate limiter
// that records violations in the audit trail. Redis outages fail open.
package ratelimit
