package guard

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/warden-io/warden/pkg/actors"
	"github.com/warden-io/warden/pkg/audit"
	"github.com/warden-io/warden/pkg/roles"
)

// Manager performs the state-changing role and whitelist operations.
// Every mutation is gated by the guard's permission and hierarchy
// rules and followed by exactly one audit entry, written strictly
// after the mutation is confirmed persisted.
type Manager struct {
	guard    *Guard
	store    ActorStore
	recorder *audit.Recorder
	log      logrus.FieldLogger
	tracer   trace.Tracer
}

// NewManager creates a role manager sharing the guard's store and
// recorder.
func NewManager(guard *Guard, store ActorStore, recorder *audit.Recorder, log logrus.FieldLogger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{
		guard:    guard,
		store:    store,
		recorder: recorder,
		log:      log,
		tracer:   otel.Tracer("github.com/warden-io/warden/pkg/guard"),
	}
}

// managePermissionFor maps a role being set to the permission that
// gates setting it. MANAGE_ADMINS and MANAGE_OWNERS are owner-only in
// the matrix, which is what restricts ADMIN and OWNER grants to
// owners.
func managePermissionFor(role roles.Role) (roles.Permission, error) {
	switch role {
	case roles.RoleOwner:
		return roles.PermManageOwners, nil
	case roles.RoleAdmin:
		return roles.PermManageAdmins, nil
	case roles.RoleOperator:
		return roles.PermManageOperators, nil
	case roles.RoleUser:
		return roles.PermManageUsers, nil
	default:
		return "", fmt.Errorf("unknown role: %q", role)
	}
}

// Promote raises the target handle to newRole. A never-seen handle is
// onboarded at USER first and then transitioned, so a promotion of a
// stranger still yields a ROLE_CHANGE entry with oldRole USER.
func (m *Manager) Promote(ctx context.Context, actor *actors.Actor, targetHandle string, newRole roles.Role) (*actors.Actor, error) {
	ctx, span := m.tracer.Start(ctx, "manager.Promote",
		trace.WithAttributes(
			attribute.String("actor.handle", actor.Handle),
			attribute.String("target.handle", targetHandle),
			attribute.String("target.new_role", string(newRole)),
		))
	defer span.End()

	action := fmt.Sprintf("PROMOTE_TO_%s", newRole)

	permission, err := managePermissionFor(newRole)
	if err != nil {
		return nil, err
	}
	if !m.guard.CheckPermission(actor, permission) {
		required := fmt.Sprintf("permission %s (minimum role %s)", permission, minimumRoleHint(permission))
		return nil, m.guard.deny(ctx, actor, action, required)
	}

	target, err := m.resolveTarget(ctx, targetHandle)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := m.checkHierarchy(ctx, actor, target, action); err != nil {
		return nil, err
	}

	oldRole := target.Role
	if !roles.IsHigher(newRole, oldRole) {
		return nil, fmt.Errorf("%w: cannot promote %s from %s to %s", ErrInvalidTransition, targetHandle, oldRole, newRole)
	}

	return m.applyTransition(ctx, actor, target, oldRole, newRole)
}

// Demote lowers the target handle to newRole. Demoting a handle with
// no actor record is a hard not-found, and self-demotion is denied
// before any permission check runs.
func (m *Manager) Demote(ctx context.Context, actor *actors.Actor, targetHandle string, newRole roles.Role) (*actors.Actor, error) {
	ctx, span := m.tracer.Start(ctx, "manager.Demote",
		trace.WithAttributes(
			attribute.String("actor.handle", actor.Handle),
			attribute.String("target.handle", targetHandle),
			attribute.String("target.new_role", string(newRole)),
		))
	defer span.End()

	action := fmt.Sprintf("DEMOTE_TO_%s", newRole)

	if actor.Handle == targetHandle {
		return nil, m.guard.deny(ctx, actor, action, "another actor (self-demotion is not allowed)")
	}

	permission, err := managePermissionFor(newRole)
	if err != nil {
		return nil, err
	}
	if !m.guard.CheckPermission(actor, permission) {
		required := fmt.Sprintf("permission %s (minimum role %s)", permission, minimumRoleHint(permission))
		return nil, m.guard.deny(ctx, actor, action, required)
	}

	target, err := m.store.FindByHandle(ctx, targetHandle)
	if err != nil {
		span.RecordError(err)
		if err == actors.ErrActorNotFound {
			return nil, fmt.Errorf("cannot demote %s: %w", targetHandle, err)
		}
		return nil, fmt.Errorf("failed to load target %s: %w", targetHandle, err)
	}

	if err := m.checkHierarchy(ctx, actor, target, action); err != nil {
		return nil, err
	}

	oldRole := target.Role
	if !roles.IsHigher(oldRole, newRole) {
		return nil, fmt.Errorf("%w: cannot demote %s from %s to %s", ErrInvalidTransition, targetHandle, oldRole, newRole)
	}

	return m.applyTransition(ctx, actor, target, oldRole, newRole)
}

// AddToWhitelist grants basic access to the target handle, onboarding
// it at USER when absent.
func (m *Manager) AddToWhitelist(ctx context.Context, actor *actors.Actor, targetHandle string) (*actors.Actor, error) {
	if !m.guard.CheckPermission(actor, roles.PermManageWhitelist) {
		required := fmt.Sprintf("permission %s (minimum role %s)", roles.PermManageWhitelist, minimumRoleHint(roles.PermManageWhitelist))
		return nil, m.guard.deny(ctx, actor, "WHITELIST_ADD", required)
	}

	target, err := m.resolveTarget(ctx, targetHandle)
	if err != nil {
		return nil, err
	}

	if err := m.store.SetWhitelisted(ctx, target.ID, true); err != nil {
		return nil, fmt.Errorf("failed to whitelist %s: %w", targetHandle, err)
	}
	target.Whitelisted = true
	m.guard.Invalidate(targetHandle)

	m.recorder.WhitelistAdd(ctx, actor, target)
	return target, nil
}

// RemoveFromWhitelist revokes basic access from the target handle.
// Unlike AddToWhitelist this never onboards: revoking access from a
// stranger is a not-found.
func (m *Manager) RemoveFromWhitelist(ctx context.Context, actor *actors.Actor, targetHandle string) (*actors.Actor, error) {
	if !m.guard.CheckPermission(actor, roles.PermManageWhitelist) {
		required := fmt.Sprintf("permission %s (minimum role %s)", roles.PermManageWhitelist, minimumRoleHint(roles.PermManageWhitelist))
		return nil, m.guard.deny(ctx, actor, "WHITELIST_REMOVE", required)
	}

	target, err := m.store.FindByHandle(ctx, targetHandle)
	if err != nil {
		if err == actors.ErrActorNotFound {
			return nil, fmt.Errorf("cannot remove %s from whitelist: %w", targetHandle, err)
		}
		return nil, fmt.Errorf("failed to load target %s: %w", targetHandle, err)
	}

	if err := m.store.SetWhitelisted(ctx, target.ID, false); err != nil {
		return nil, fmt.Errorf("failed to remove %s from whitelist: %w", targetHandle, err)
	}
	target.Whitelisted = false
	m.guard.Invalidate(targetHandle)

	m.recorder.WhitelistRemove(ctx, actor, target)
	return target, nil
}

// checkHierarchy enforces the current-role gate: touching an actor who
// is currently ADMIN or OWNER requires the acting party to be OWNER,
// whatever role is being assigned.
func (m *Manager) checkHierarchy(ctx context.Context, actor, target *actors.Actor, action string) error {
	if target.Role != roles.RoleAdmin && target.Role != roles.RoleOwner {
		return nil
	}
	if actor.Role == roles.RoleOwner {
		return nil
	}
	required := fmt.Sprintf("role %s (target is currently %s)", roles.RoleOwner, target.Role)
	return m.guard.deny(ctx, actor, action, required)
}

// resolveTarget loads the target, creating it at USER when absent.
// Creation losing a concurrent race re-reads the winner.
func (m *Manager) resolveTarget(ctx context.Context, targetHandle string) (*actors.Actor, error) {
	target, err := m.store.FindByHandle(ctx, targetHandle)
	if err == nil {
		return target, nil
	}
	if err != actors.ErrActorNotFound {
		return nil, fmt.Errorf("failed to load target %s: %w", targetHandle, err)
	}

	target = &actors.Actor{
		Handle:      targetHandle,
		Role:        roles.RoleUser,
		Whitelisted: m.guard.seeds.WhitelistedFor(targetHandle),
	}
	err = m.store.Create(ctx, target)
	if err == actors.ErrHandleTaken {
		return m.store.FindByHandle(ctx, targetHandle)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to onboard target %s: %w", targetHandle, err)
	}
	return target, nil
}

// applyTransition persists the role change and then, and only then,
// writes the ROLE_CHANGE entry. A store failure here leaves no audit
// record of a change that never happened.
func (m *Manager) applyTransition(ctx context.Context, actor, target *actors.Actor, oldRole, newRole roles.Role) (*actors.Actor, error) {
	if err := m.store.UpdateRole(ctx, target.ID, newRole); err != nil {
		return nil, fmt.Errorf("failed to update role for %s: %w", target.Handle, err)
	}
	target.Role = newRole
	m.guard.Invalidate(target.Handle)

	m.recorder.RoleChange(ctx, actor, target, oldRole, newRole)

	m.log.WithFields(logrus.Fields{
		"actor":    actor.Handle,
		"target":   target.Handle,
		"old_role": oldRole,
		"new_role": newRole,
	}).Info("role changed")
	return target, nil
}
