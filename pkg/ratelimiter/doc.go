// Package ratelimiter provides keyed token bucket rate limiting and HTTP
// middleware on top of golang.org/x/time/rate.
//
// Each key (usually the client IP) gets its own bucket. Buckets that have not
// been used for Config.IdleTTL are dropped.
//
//	limiter, err := ratelimiter.New(ratelimiter.Config{RPS: 1, Burst: 10, IdleTTL: 10 * time.Minute})
//	if err != nil {
//		return err
//	}
//	r.Use(ratelimiter.Middleware(limiter, ratelimiter.ByIP, nil))
//
// The middleware sets X-RateLimit-Limit on every response and Retry-After on
// rejected ones.
package ratelimiter
