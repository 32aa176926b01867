// Package audit records an append-only trail of authorization and
// content-administration changes: role assignments and removals, role
// edits, space lifecycle events and direct permission grants.
//
// Entries are written to the audit_log table keyed by UUID. Recording is
// best-effort from the caller's point of view: services log and continue
// when the trail is unavailable rather than failing the mutation itself.
package audit
