// Package history persists an audit trail of reconciliation runs in a local
// SQLite database. Every completed Reconcile call is recorded with its run
// id, per-bucket counts and full per-module outcomes, so operators can answer
// "what happened to tenant X last night" without runtime access.
package history
