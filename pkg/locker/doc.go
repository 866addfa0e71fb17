// Package locker serializes work per key (in this service: per user).
//
// Memory is a process-local implementation for single-instance deployments
// and tests. Redis coordinates several instances with SET NX PX leases and a
// token-checked release, so an expired lease taken over by another holder is
// never released by the previous one.
package locker
