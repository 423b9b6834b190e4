// Package api exposes the admin HTTP surface: audit trail queries and
// exports, role promotion and demotion, whitelist management, and
// per-actor audit purges.
//
// Authentication is the edge's job; every request carries the already
// authenticated acting handle in the X-Warden-Handle header, and this
// package enforces authorization through the guard.
package api
