// Package redis connects to Redis with retries and provides a small
// namespaced key-value store with TTLs and one-shot reads.
package redis
