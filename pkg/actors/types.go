package actors

import (
	"errors"
	"time"

	"github.com/warden-io/warden/pkg/roles"
)

// ErrActorNotFound is returned when no actor exists for a handle or id.
var ErrActorNotFound = errors.New("actor not found")

// ErrHandleTaken is returned by Create when the handle already has an
// actor record. Callers racing on first contact should re-read.
var ErrHandleTaken = errors.New("handle already registered")

// Actor is an identity evaluated by the authorization guard. The
// handle is the stable external identifier (a phone number in the
// messaging deployment) and is unique across the system.
type Actor struct {
	ID          int64      `json:"id"`
	Handle      string     `json:"handle"`
	Role        roles.Role `json:"role"`
	Whitelisted bool       `json:"whitelisted"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
