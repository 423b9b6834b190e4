// Package roles defines the fixed role hierarchy and the static
// permission matrix used by every authorization decision in warden.
//
// The four roles form a total order (OWNER > ADMIN > OPERATOR > USER)
// expressed as numeric levels. Threshold and management decisions use
// levels; capability decisions use the explicit permission matrix,
// which is not derivable from levels alone.
//
// Validate should be called once at process startup; an inconsistent
// matrix is a configuration error, not a runtime denial.
package roles
