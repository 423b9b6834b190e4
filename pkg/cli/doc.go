// Package cli provides the warden command-line interface for role and
// audit administration.
//
// # Overview
//
// This package implements the `warden` CLI tool for operators to
// inspect the audit trail and manage roles and the whitelist from the
// terminal. Every command talks to the admin HTTP API and sends the
// acting handle in the X-Warden-Handle header; the server decides
// whether that handle is allowed to perform the operation.
//
// # Commands
//
// audit: List audit log entries
//
//	warden audit \
//		--as +15551234567 \
//		--category AUTH \
//		--limit 100
//
// export: Export the audit log (owner only)
//
//	warden export \
//		--as +15551234567 \
//		--format csv \
//		--out audit.csv
//
// promote / demote: Change a user's role
//
//	warden promote --as +15551234567 --handle +15559876543 --role ADMIN
//	warden demote --as +15551234567 --handle +15559876543 --role USER
//
// whitelist: Manage the access whitelist
//
//	warden whitelist --as +15551234567 --handle +15559876543
//	warden whitelist --as +15551234567 --handle +15559876543 --remove
//
// The server URL defaults to http://localhost:8080 and can be set with
// --server or the WARDEN_SERVER environment variable. The acting
// handle can be set once with WARDEN_AS instead of repeating --as.
package cli
