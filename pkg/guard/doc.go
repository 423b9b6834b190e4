// Package guard is the authorization decision point and the role
// management workflow built on top of it.
//
// The Guard resolves actors (creating them on first contact from
// configured seed lists), answers role and permission questions, and
// records a PERMISSION_DENIED audit entry for every enforcement
// denial. The Check* variants answer the same questions silently and
// exist for conditional rendering, not enforcement.
//
// The Manager performs promote, demote, and whitelist mutations. Each
// mutation is gated twice: by the permission that corresponds to the
// role being assigned, and by the target's current role (touching a
// sitting ADMIN or OWNER always requires an OWNER). The audit entry
// for a successful mutation is written strictly after the store
// confirms it.
package guard
