// Package entitlement decides whether a user may run the metered face swap
// action and keeps the usage counters consistent.
//
// The Engine holds the pure decision procedure and the conditional counter
// increment. The Meter wraps both in a per-user lock so the read, decide and
// increment sequence is atomic even across API replicas. DeriveStatus computes
// the user's entitlement status and the correcting mutation, if any, without
// touching a store.
package entitlement
