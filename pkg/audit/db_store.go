package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"
)

// deleteBatchSize bounds each retention delete statement so cleanup
// never holds a table-wide lock long enough to stall inserts.
const deleteBatchSize = 500

// Store persists audit entries in a relational database
type Store struct {
	db *sql.DB
}

// NewStore creates a new audit store
func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &Store{db: db}, nil
}

// EnsureSchema creates the audit_entries table if it doesn't exist
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_entries (
		id VARCHAR(36) PRIMARY KEY,
		actor_id BIGINT,
		handle VARCHAR(64) NOT NULL,
		role VARCHAR(20) NOT NULL,
		action VARCHAR(50) NOT NULL,
		category VARCHAR(20) NOT NULL,
		description TEXT NOT NULL,
		metadata TEXT,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_entries_created_at ON audit_entries(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_entries_handle ON audit_entries(handle);
	CREATE INDEX IF NOT EXISTS idx_audit_entries_actor_id ON audit_entries(actor_id);
	CREATE INDEX IF NOT EXISTS idx_audit_entries_category ON audit_entries(category);
	CREATE INDEX IF NOT EXISTS idx_audit_entries_action ON audit_entries(action);
	`

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure audit_entries table: %w", err)
	}
	return nil
}

// Create persists a new entry, assigning the id and timestamp when
// absent. Entries are append-only; there is no update path.
func (s *Store) Create(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Category == "" {
		category, err := CategoryOf(entry.Action)
		if err != nil {
			return err
		}
		entry.Category = category
	}

	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_entries (id, actor_id, handle, role, action, category, description, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.ActorID, entry.Handle, entry.Role,
		string(entry.Action), string(entry.Category),
		entry.Description, metadataJSON, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// Query returns entries matching the filter, newest first. The limit
// is clamped to [1, MaxQueryLimit] with DefaultQueryLimit as fallback.
func (s *Store) Query(ctx context.Context, filter Filter) ([]*Entry, error) {
	limit := clampLimit(filter.Limit, MaxQueryLimit)
	return s.fetch(ctx, filter, limit)
}

// FindByHandle returns the most recent entries for a handle.
func (s *Store) FindByHandle(ctx context.Context, handle string, limit int) ([]*Entry, error) {
	return s.Query(ctx, Filter{Handle: handle, Limit: limit})
}

// FindByCategory returns the most recent entries in a category.
func (s *Store) FindByCategory(ctx context.Context, category Category, limit int) ([]*Entry, error) {
	return s.Query(ctx, Filter{Category: category, Limit: limit})
}

// FindByAction returns the most recent entries for an action.
func (s *Store) FindByAction(ctx context.Context, action Action, limit int) ([]*Entry, error) {
	return s.Query(ctx, Filter{Action: action, Limit: limit})
}

// FindByDateRange returns the most recent entries in a date range.
func (s *Store) FindByDateRange(ctx context.Context, start, end time.Time, limit int) ([]*Entry, error) {
	return s.Query(ctx, Filter{StartDate: &start, EndDate: &end, Limit: limit})
}

// Count returns the number of entries matching the filter without
// materializing rows. Limit and Offset are ignored.
func (s *Store) Count(ctx context.Context, filter Filter) (int64, error) {
	where, args := buildWhere(filter)

	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_entries"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit entries: %w", err)
	}
	return count, nil
}

// Export serializes matching entries in the requested format. The
// result never contains more than MaxExportRecords entries.
func (s *Store) Export(ctx context.Context, filter Filter, format ExportFormat) ([]byte, int, error) {
	limit := filter.Limit
	if limit <= 0 || limit > MaxExportRecords {
		limit = MaxExportRecords
	}

	entries, err := s.fetch(ctx, filter, limit)
	if err != nil {
		return nil, 0, err
	}

	var data []byte
	switch format {
	case ExportFormatCSV:
		data, err = exportCSV(entries)
	case ExportFormatJSON, "":
		data, err = exportJSON(entries)
	default:
		return nil, 0, fmt.Errorf("unsupported export format: %q", format)
	}
	if err != nil {
		return nil, 0, err
	}
	return data, len(entries), nil
}

// DeleteExpired removes entries strictly older than
// now - retentionDays, in bounded batches so concurrent inserts are
// never starved behind one giant delete.
func (s *Store) DeleteExpired(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	query := `
		DELETE FROM audit_entries
		WHERE id IN (
			SELECT id FROM audit_entries WHERE created_at < $1 LIMIT $2
		)
	`

	var total int64
	for {
		result, err := s.db.ExecContext(ctx, query, cutoff, deleteBatchSize)
		if err != nil {
			return total, fmt.Errorf("failed to delete expired entries: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to read delete result: %w", err)
		}
		total += affected
		if affected < deleteBatchSize {
			return total, nil
		}
	}
}

// DeleteByActor hard-purges every entry referencing an actor id, for
// data-erasure requests.
func (s *Store) DeleteByActor(ctx context.Context, actorID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM audit_entries WHERE actor_id = $1", actorID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete entries for actor %d: %w", actorID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read delete result: %w", err)
	}
	return affected, nil
}

// Statistics returns the approximate monitoring view. The aggregate
// queries run concurrently; each is independently bounded.
func (s *Store) Statistics(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByCategory: make(map[Category]int64),
		ByAction:   make(map[Action]int64),
		SampleSize: StatsSampleSize,
	}
	now := time.Now().UTC()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_entries").Scan(&stats.Total)
	})

	g.Go(func() error {
		rows, err := s.db.QueryContext(ctx, "SELECT category, COUNT(*) FROM audit_entries GROUP BY category")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var category Category
			var count int64
			if err := rows.Scan(&category, &count); err != nil {
				return err
			}
			stats.ByCategory[category] = count
		}
		return rows.Err()
	})

	g.Go(func() error {
		// Sampled over the most recent entries only; a full-table
		// GROUP BY on action is not worth the scan for a monitoring
		// endpoint.
		rows, err := s.db.QueryContext(ctx, `
			SELECT action, COUNT(*) FROM (
				SELECT action FROM audit_entries ORDER BY created_at DESC LIMIT $1
			) recent GROUP BY action
		`, StatsSampleSize)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var action Action
			var count int64
			if err := rows.Scan(&action, &count); err != nil {
				return err
			}
			stats.ByAction[action] = count
		}
		return rows.Err()
	})

	g.Go(func() error {
		return s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM audit_entries WHERE created_at >= $1", now.Add(-24*time.Hour),
		).Scan(&stats.Last24Hours)
	})

	g.Go(func() error {
		return s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM audit_entries WHERE created_at >= $1", now.AddDate(0, 0, -7),
		).Scan(&stats.Last7Days)
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to gather audit statistics: %w", err)
	}
	return stats, nil
}

// fetch runs the filtered select with an explicit limit.
func (s *Store) fetch(ctx context.Context, filter Filter, limit int) ([]*Entry, error) {
	where, args := buildWhere(filter)

	query := `
		SELECT id, actor_id, handle, role, action, category, description, metadata, created_at
		FROM audit_entries
	` + where + " ORDER BY created_at DESC"

	argCount := len(args) + 1
	query += fmt.Sprintf(" LIMIT $%d", argCount)
	args = append(args, limit)
	argCount++

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}
	return entries, nil
}

// buildWhere assembles the WHERE clause shared by fetch and Count.
func buildWhere(filter Filter) (string, []interface{}) {
	where := " WHERE 1=1"
	args := []interface{}{}
	argCount := 1

	if filter.ActorID != nil {
		where += fmt.Sprintf(" AND actor_id = $%d", argCount)
		args = append(args, *filter.ActorID)
		argCount++
	}
	if filter.Handle != "" {
		where += fmt.Sprintf(" AND handle = $%d", argCount)
		args = append(args, filter.Handle)
		argCount++
	}
	if filter.Category != "" {
		where += fmt.Sprintf(" AND category = $%d", argCount)
		args = append(args, string(filter.Category))
		argCount++
	}
	if filter.Action != "" {
		where += fmt.Sprintf(" AND action = $%d", argCount)
		args = append(args, string(filter.Action))
		argCount++
	}
	if len(filter.Actions) > 0 {
		where += fmt.Sprintf(" AND action = ANY($%d)", argCount)
		actionStrs := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			actionStrs[i] = string(a)
		}
		args = append(args, pq.Array(actionStrs))
		argCount++
	}
	if filter.StartDate != nil {
		where += fmt.Sprintf(" AND created_at >= $%d", argCount)
		args = append(args, *filter.StartDate)
		argCount++
	}
	if filter.EndDate != nil {
		where += fmt.Sprintf(" AND created_at <= $%d", argCount)
		args = append(args, *filter.EndDate)
		argCount++
	}

	return where, args
}

func scanEntry(rows *sql.Rows) (*Entry, error) {
	entry := &Entry{}
	var actorID sql.NullInt64
	var metadataJSON sql.NullString
	var action, category string

	err := rows.Scan(
		&entry.ID, &actorID, &entry.Handle, &entry.Role,
		&action, &category, &entry.Description, &metadataJSON, &entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit entry: %w", err)
	}

	entry.Action = Action(action)
	entry.Category = Category(category)
	if actorID.Valid {
		id := actorID.Int64
		entry.ActorID = &id
	}

	// A corrupt metadata payload degrades to an empty object: the
	// entry's core fields stay authoritative even when the payload is
	// unreadable.
	entry.Metadata = map[string]interface{}{}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &entry.Metadata); err != nil {
			entry.Metadata = map[string]interface{}{}
		}
	}

	return entry, nil
}

func clampLimit(limit, max int) int {
	if limit <= 0 {
		return DefaultQueryLimit
	}
	if limit > max {
		return max
	}
	return limit
}
