// Package mongo connects to MongoDB with retries and exposes a readiness
// check and an index bootstrap helper for the document stores.
package mongo
