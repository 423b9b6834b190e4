package actors

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/warden-io/warden/pkg/roles"
)

// Store handles actor persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new actor store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the actors table if it doesn't exist
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS actors (
		id BIGSERIAL PRIMARY KEY,
		handle VARCHAR(64) NOT NULL UNIQUE,
		role VARCHAR(20) NOT NULL,
		whitelisted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_actors_role ON actors(role);
	`

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure actors table: %w", err)
	}
	return nil
}

// Create persists a new actor. The uniqueness constraint on handle is
// the arbiter for concurrent first-contact creation: the loser gets
// ErrHandleTaken and should re-read instead of failing.
func (s *Store) Create(ctx context.Context, actor *Actor) error {
	if actor.Handle == "" {
		return fmt.Errorf("actor handle is required")
	}
	if !roles.IsValid(actor.Role) {
		return fmt.Errorf("invalid role: %q", actor.Role)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO actors (handle, role, whitelisted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (handle) DO NOTHING
		RETURNING id
	`

	err := s.db.QueryRowContext(ctx, query,
		actor.Handle, string(actor.Role), actor.Whitelisted, now, now,
	).Scan(&actor.ID)

	if err == sql.ErrNoRows {
		return ErrHandleTaken
	}
	if err != nil {
		return fmt.Errorf("failed to create actor: %w", err)
	}

	actor.CreatedAt = now
	actor.UpdatedAt = now
	return nil
}

// FindByHandle retrieves an actor by its external handle.
func (s *Store) FindByHandle(ctx context.Context, handle string) (*Actor, error) {
	query := `
		SELECT id, handle, role, whitelisted, created_at, updated_at
		FROM actors
		WHERE handle = $1
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, handle))
}

// FindByID retrieves an actor by id.
func (s *Store) FindByID(ctx context.Context, id int64) (*Actor, error) {
	query := `
		SELECT id, handle, role, whitelisted, created_at, updated_at
		FROM actors
		WHERE id = $1
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, id))
}

// UpdateRole changes an actor's role.
func (s *Store) UpdateRole(ctx context.Context, id int64, role roles.Role) error {
	if !roles.IsValid(role) {
		return fmt.Errorf("invalid role: %q", role)
	}

	query := `UPDATE actors SET role = $1, updated_at = $2 WHERE id = $3`
	result, err := s.db.ExecContext(ctx, query, string(role), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update actor role: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return ErrActorNotFound
	}
	return nil
}

// SetWhitelisted changes an actor's whitelist flag.
func (s *Store) SetWhitelisted(ctx context.Context, id int64, whitelisted bool) error {
	query := `UPDATE actors SET whitelisted = $1, updated_at = $2 WHERE id = $3`
	result, err := s.db.ExecContext(ctx, query, whitelisted, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update whitelist flag: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return ErrActorNotFound
	}
	return nil
}

// ListByRole returns all actors holding a role, newest first.
func (s *Store) ListByRole(ctx context.Context, role roles.Role) ([]*Actor, error) {
	query := `
		SELECT id, handle, role, whitelisted, created_at, updated_at
		FROM actors
		WHERE role = $1
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, string(role))
	if err != nil {
		return nil, fmt.Errorf("failed to list actors: %w", err)
	}
	defer rows.Close()

	var out []*Actor
	for rows.Next() {
		var a Actor
		var roleStr string
		if err := rows.Scan(&a.ID, &a.Handle, &roleStr, &a.Whitelisted, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan actor: %w", err)
		}
		a.Role = roles.Role(roleStr)
		out = append(out, &a)
	}

	return out, rows.Err()
}

func (s *Store) scanOne(row *sql.Row) (*Actor, error) {
	var a Actor
	var roleStr string

	err := row.Scan(&a.ID, &a.Handle, &roleStr, &a.Whitelisted, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrActorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get actor: %w", err)
	}

	a.Role = roles.Role(roleStr)
	return &a, nil
}
