// Package library persists the library model in SQLite: items and their
// files, collections, detected issues, duplicate groups, removal scores,
// acquisition recommendations, scan run history, the AI usage ledger, and
// the activity log.
//
// The store is the single source of truth for the "at most one running scan"
// rule: a partial unique index on the scans table rejects a second running
// row, so the constraint survives process restarts.
package library
