// Package actors persists the identities evaluated by the guard.
//
// Actors are created lazily on first contact (see pkg/guard) or
// explicitly by role management. The handle column carries a UNIQUE
// constraint; concurrent create races resolve through ErrHandleTaken
// followed by a re-read, never a caller-visible failure.
package actors
