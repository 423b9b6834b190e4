// Package audit provides the append-only audit trail: a relational
// store for immutable entries and a typed recorder catalogue for
// producing them.
//
// Entries denormalize the acting user's handle and role at event time
// so history survives later role changes. Recorders are best-effort:
// a failed write is logged and counted but never surfaces to the
// caller, because the audited action must not fail on account of its
// own audit record.
package audit
