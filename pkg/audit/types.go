package audit

import (
	"fmt"
	"time"
)

// Action identifies what kind of privileged event an entry records
type Action string

const (
	ActionRoleChange          Action = "ROLE_CHANGE"
	ActionWhitelistAdd        Action = "WHITELIST_ADD"
	ActionWhitelistRemove     Action = "WHITELIST_REMOVE"
	ActionPermissionDenied    Action = "PERMISSION_DENIED"
	ActionConfigUpdate        Action = "CONFIG_UPDATE"
	ActionUsageQuery          Action = "USAGE_QUERY"
	ActionAuditLogViewed      Action = "AUDIT_LOG_VIEWED"
	ActionAuditLogExported    Action = "AUDIT_LOG_EXPORTED"
	ActionCostThresholdBreach Action = "COST_THRESHOLD_BREACH"
	ActionConversationReset   Action = "CONVERSATION_RESET"
	ActionRateLimitViolation  Action = "RATE_LIMIT_VIOLATION"
	ActionModerationFlag      Action = "MODERATION_FLAG"
	ActionCircuitBreakerOpen  Action = "CIRCUIT_BREAKER_OPEN"
	ActionCircuitBreakerClose Action = "CIRCUIT_BREAKER_CLOSED"
)

// Category is the coarse grouping of actions
type Category string

const (
	CategoryAuth     Category = "AUTH"
	CategoryConfig   Category = "CONFIG"
	CategoryAdmin    Category = "ADMIN"
	CategorySecurity Category = "SECURITY"
)

// actionCategories fixes the one-to-one action-to-category mapping.
// A given action always lands in the same category; recorders never
// pick categories ad hoc.
var actionCategories = map[Action]Category{
	ActionRoleChange:          CategoryAuth,
	ActionWhitelistAdd:        CategoryAuth,
	ActionWhitelistRemove:     CategoryAuth,
	ActionPermissionDenied:    CategoryAuth,
	ActionConfigUpdate:        CategoryConfig,
	ActionUsageQuery:          CategoryAdmin,
	ActionAuditLogViewed:      CategoryAdmin,
	ActionAuditLogExported:    CategoryAdmin,
	ActionConversationReset:   CategoryAdmin,
	ActionCostThresholdBreach: CategorySecurity,
	ActionRateLimitViolation:  CategorySecurity,
	ActionModerationFlag:      CategorySecurity,
	ActionCircuitBreakerOpen:  CategorySecurity,
	ActionCircuitBreakerClose: CategorySecurity,
}

// CategoryOf returns the fixed category for an action.
func CategoryOf(action Action) (Category, error) {
	category, ok := actionCategories[action]
	if !ok {
		return "", fmt.Errorf("unknown audit action: %q", action)
	}
	return category, nil
}

// SystemHandle marks entries originated by the system itself rather
// than any actor (circuit breaker transitions and similar).
const SystemHandle = "SYSTEM"

// UnknownRole is recorded when a denial happens before the denied
// party's role could be established.
const UnknownRole = "UNKNOWN"

// Entry is a single immutable audit record. Handle and Role are
// denormalized copies of the actor's state at event time; a later role
// change must not retroactively alter history, so they are never
// recomputed from the actor row.
type Entry struct {
	ID          string                 `json:"id"`
	ActorID     *int64                 `json:"actorId,omitempty"`
	Handle      string                 `json:"handle"`
	Role        string                 `json:"role"`
	Action      Action                 `json:"action"`
	Category    Category               `json:"category"`
	Description string                 `json:"description"`
	Metadata    map[string]interface{} `json:"metadata"`
	CreatedAt   time.Time              `json:"createdAt"`
}

// Filter selects audit entries for query, count, and export
// operations. Limit and Offset are mandatory bounds: a zero or
// negative limit is replaced by DefaultQueryLimit, and no operation
// exposes an unbounded scan.
type Filter struct {
	ActorID   *int64
	Handle    string
	Category  Category
	Action    Action
	Actions   []Action
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

const (
	// DefaultQueryLimit bounds queries that don't ask for a limit.
	DefaultQueryLimit = 50

	// MaxQueryLimit is the hard ceiling for a single query page.
	MaxQueryLimit = 1000

	// MaxExportRecords caps every export regardless of the requested
	// range. The cap keeps worst-case export memory and latency
	// predictable and is enforced inside the store, not by callers.
	MaxExportRecords = 10000
)

// ExportFormat selects the export artifact encoding
type ExportFormat string

const (
	ExportFormatJSON ExportFormat = "json"
	ExportFormatCSV  ExportFormat = "csv"
)

// Stats is an approximate monitoring view of the audit table.
//
// ByAction is computed over a bounded recent sample (the most recent
// StatsSampleSize entries), not a full scan; treat it as a shape
// indicator, not an exact distribution.
type Stats struct {
	Total       int64              `json:"total"`
	ByCategory  map[Category]int64 `json:"by_category"`
	ByAction    map[Action]int64   `json:"by_action"`
	SampleSize  int                `json:"by_action_sample_size"`
	Last24Hours int64              `json:"last_24h"`
	Last7Days   int64              `json:"last_7d"`
}

// StatsSampleSize is how many recent entries the ByAction breakdown
// samples.
const StatsSampleSize = 1000

// RetentionPolicy defines how long audit entries are kept
type RetentionPolicy struct {
	// RetentionDays is the number of days to keep entries.
	RetentionDays int

	// ArchiveEnabled exports expiring entries to the archive before
	// they are deleted.
	ArchiveEnabled bool
}

// DefaultRetentionPolicy returns the default 90-day policy.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{RetentionDays: 90}
}
