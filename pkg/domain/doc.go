// Package domain holds the persisted game-session records shared by the tool
// executor, the approval workflow and the audit ledger.
//
// Invariants:
// - A PendingAction never re-enters StatusPending once it has left it.
// - Executed and failed AuditRecords always carry both state snapshots.
// - Repositories are reached through a Tx so that a handler's mutation and the
//   audit record describing it commit or roll back together.
package domain
