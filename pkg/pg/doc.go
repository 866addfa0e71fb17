// Package pg opens pgx connection pools with retries and applies goose
// migrations from an embedded filesystem.
package pg
