package guard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/warden-io/warden/pkg/actors"
	"github.com/warden-io/warden/pkg/audit"
	"github.com/warden-io/warden/pkg/observability"
	"github.com/warden-io/warden/pkg/roles"
)

const (
	actorCacheSize = 10000
	actorCacheTTL  = 5 * time.Minute
)

// ActorStore is the persistence surface the guard needs.
type ActorStore interface {
	Create(ctx context.Context, actor *actors.Actor) error
	FindByHandle(ctx context.Context, handle string) (*actors.Actor, error)
	UpdateRole(ctx context.Context, id int64, role roles.Role) error
	SetWhitelisted(ctx context.Context, id int64, whitelisted bool) error
}

// SeedConfig supplies the externally configured role assignments used
// when an actor is created on first contact. The lists are checked in
// privilege order, first match wins, default USER.
type SeedConfig struct {
	OwnerHandles    []string
	AdminHandles    []string
	OperatorHandles []string

	// WhitelistEnabled gates basic access by the whitelist below. When
	// disabled, every new actor is implicitly whitelisted.
	WhitelistEnabled bool
	WhitelistHandles []string
}

// RoleFor returns the seeded role for a handle.
func (c SeedConfig) RoleFor(handle string) roles.Role {
	for _, h := range c.OwnerHandles {
		if h == handle {
			return roles.RoleOwner
		}
	}
	for _, h := range c.AdminHandles {
		if h == handle {
			return roles.RoleAdmin
		}
	}
	for _, h := range c.OperatorHandles {
		if h == handle {
			return roles.RoleOperator
		}
	}
	return roles.RoleUser
}

// WhitelistedFor returns the initial whitelist flag for a handle.
func (c SeedConfig) WhitelistedFor(handle string) bool {
	if !c.WhitelistEnabled {
		return true
	}
	for _, h := range c.WhitelistHandles {
		if h == handle {
			return true
		}
	}
	return false
}

// Guard is the authorization decision point. It resolves actors
// (creating them on first contact), answers role and permission
// checks, and records a PERMISSION_DENIED audit entry for every
// enforcement denial.
type Guard struct {
	store    ActorStore
	recorder *audit.Recorder
	seeds    SeedConfig
	log      logrus.FieldLogger
	metrics  *observability.Metrics
	tracer   trace.Tracer

	cache   *expirable.LRU[string, *actors.Actor]
	resolve singleflight.Group
}

// New creates a guard. The logger and metrics are optional.
func New(store ActorStore, recorder *audit.Recorder, seeds SeedConfig, log logrus.FieldLogger, metrics *observability.Metrics) *Guard {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Guard{
		store:    store,
		recorder: recorder,
		seeds:    seeds,
		log:      log,
		metrics:  metrics,
		tracer:   otel.Tracer("github.com/warden-io/warden/pkg/guard"),
		cache:    expirable.NewLRU[string, *actors.Actor](actorCacheSize, nil, actorCacheTTL),
	}
}

// ResolveActor returns the actor for a handle, creating it on first
// contact with the seeded role and whitelist flag. Idempotent per
// handle: concurrent first contacts collapse onto one store round trip
// and a creation race resolves by re-reading the winner's row.
func (g *Guard) ResolveActor(ctx context.Context, handle string) (*actors.Actor, error) {
	if handle == "" {
		return nil, fmt.Errorf("handle is required")
	}

	ctx, span := g.tracer.Start(ctx, "guard.ResolveActor",
		trace.WithAttributes(attribute.String("actor.handle", handle)))
	defer span.End()

	if actor, ok := g.cache.Get(handle); ok {
		if g.metrics != nil {
			g.metrics.ActorCacheHitsTotal.Inc()
		}
		return actor, nil
	}
	if g.metrics != nil {
		g.metrics.ActorCacheMissesTotal.Inc()
	}

	result, err, _ := g.resolve.Do(handle, func() (interface{}, error) {
		return g.resolveFromStore(ctx, handle)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	actor := result.(*actors.Actor)
	g.cache.Add(handle, actor)
	return actor, nil
}

func (g *Guard) resolveFromStore(ctx context.Context, handle string) (*actors.Actor, error) {
	actor, err := g.store.FindByHandle(ctx, handle)
	if err == nil {
		return actor, nil
	}
	if err != actors.ErrActorNotFound {
		return nil, fmt.Errorf("failed to resolve actor %s: %w", handle, err)
	}

	actor = &actors.Actor{
		Handle:      handle,
		Role:        g.seeds.RoleFor(handle),
		Whitelisted: g.seeds.WhitelistedFor(handle),
	}
	err = g.store.Create(ctx, actor)
	if err == actors.ErrHandleTaken {
		// Lost the first-contact race; the winner's row is authoritative.
		return g.store.FindByHandle(ctx, handle)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create actor %s: %w", handle, err)
	}

	if g.metrics != nil {
		g.metrics.ActorsCreatedTotal.Inc()
	}
	g.log.WithFields(logrus.Fields{
		"handle": handle,
		"role":   actor.Role,
	}).Info("created actor on first contact")
	return actor, nil
}

// Invalidate drops a handle from the resolution cache. Role and
// whitelist mutations call this so the next resolve sees fresh state.
func (g *Guard) Invalidate(handle string) {
	g.cache.Remove(handle)
}

// CheckRole reports whether the actor meets a minimum role. It writes
// no audit entry: use it for conditional rendering, not enforcement.
func (g *Guard) CheckRole(actor *actors.Actor, minRole roles.Role) bool {
	return roles.IsEqualOrHigher(actor.Role, minRole)
}

// CheckPermission reports whether the actor holds a permission,
// without writing an audit entry.
func (g *Guard) CheckPermission(actor *actors.Actor, permission roles.Permission) bool {
	return roles.HasPermission(actor.Role, permission)
}

// RequireRole resolves the actor and enforces a minimum role. On
// denial it records one PERMISSION_DENIED entry and returns a
// *DeniedError naming the required role.
func (g *Guard) RequireRole(ctx context.Context, handle string, minRole roles.Role, action string) (*actors.Actor, error) {
	ctx, span := g.tracer.Start(ctx, "guard.RequireRole",
		trace.WithAttributes(
			attribute.String("actor.handle", handle),
			attribute.String("authz.action", action),
			attribute.String("authz.min_role", string(minRole)),
		))
	defer span.End()

	actor, err := g.ResolveActor(ctx, handle)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if !g.CheckRole(actor, minRole) {
		required := fmt.Sprintf("role %s or higher", minRole)
		return nil, g.deny(ctx, actor, action, required)
	}

	g.allow(action, "role")
	return actor, nil
}

// RequirePermission resolves the actor and enforces a single
// permission via the static matrix.
func (g *Guard) RequirePermission(ctx context.Context, handle string, permission roles.Permission, action string) (*actors.Actor, error) {
	ctx, span := g.tracer.Start(ctx, "guard.RequirePermission",
		trace.WithAttributes(
			attribute.String("actor.handle", handle),
			attribute.String("authz.action", action),
			attribute.String("authz.permission", string(permission)),
		))
	defer span.End()

	actor, err := g.ResolveActor(ctx, handle)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if !g.CheckPermission(actor, permission) {
		required := fmt.Sprintf("permission %s (minimum role %s)", permission, minimumRoleHint(permission))
		return nil, g.deny(ctx, actor, action, required)
	}

	g.allow(action, "permission")
	return actor, nil
}

// RequireAnyPermission enforces that the actor holds at least one of
// the permissions. The denial names the full candidate set.
func (g *Guard) RequireAnyPermission(ctx context.Context, handle string, permissions []roles.Permission, action string) (*actors.Actor, error) {
	ctx, span := g.tracer.Start(ctx, "guard.RequireAnyPermission",
		trace.WithAttributes(
			attribute.String("actor.handle", handle),
			attribute.String("authz.action", action),
			attribute.String("authz.permissions", joinPermissions(permissions)),
		))
	defer span.End()

	actor, err := g.ResolveActor(ctx, handle)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	for _, permission := range permissions {
		if g.CheckPermission(actor, permission) {
			g.allow(action, "permission")
			return actor, nil
		}
	}

	required := fmt.Sprintf("any of permissions [%s]", joinPermissions(permissions))
	return nil, g.deny(ctx, actor, action, required)
}

// RequireAllPermissions enforces that the actor holds every one of the
// permissions. The denial names the full required set.
func (g *Guard) RequireAllPermissions(ctx context.Context, handle string, permissions []roles.Permission, action string) (*actors.Actor, error) {
	ctx, span := g.tracer.Start(ctx, "guard.RequireAllPermissions",
		trace.WithAttributes(
			attribute.String("actor.handle", handle),
			attribute.String("authz.action", action),
			attribute.String("authz.permissions", joinPermissions(permissions)),
		))
	defer span.End()

	actor, err := g.ResolveActor(ctx, handle)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	for _, permission := range permissions {
		if !g.CheckPermission(actor, permission) {
			required := fmt.Sprintf("all of permissions [%s]", joinPermissions(permissions))
			return nil, g.deny(ctx, actor, action, required)
		}
	}

	g.allow(action, "permission")
	return actor, nil
}

// deny records exactly one PERMISSION_DENIED entry (best-effort) and
// builds the denial. Shared by every enforcement path, the manager
// included, so the one-denial-one-entry contract lives in one place.
func (g *Guard) deny(ctx context.Context, actor *actors.Actor, action, required string) error {
	denied := &DeniedError{Handle: actor.Handle, Action: action, Required: required}
	g.recorder.PermissionDenied(ctx, actor, "", "", action, denied.Reason())

	if g.metrics != nil {
		g.metrics.AuthzChecksTotal.WithLabelValues("enforce", "deny").Inc()
		g.metrics.AuthzDenialsTotal.WithLabelValues(action).Inc()
	}
	return denied
}

func (g *Guard) allow(action, kind string) {
	if g.metrics != nil {
		g.metrics.AuthzChecksTotal.WithLabelValues(kind, "allow").Inc()
	}
}

// minimumRoleHint names the lowest role holding a permission, for
// denial messages. Unknown permissions render as OWNER so the message
// never understates the requirement.
func minimumRoleHint(permission roles.Permission) roles.Role {
	if role, ok := roles.MinimumRoleFor(permission); ok {
		return role
	}
	return roles.RoleOwner
}

func joinPermissions(permissions []roles.Permission) string {
	names := make([]string, len(permissions))
	for i, p := range permissions {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}
