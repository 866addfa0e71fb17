package ratelimiter

import "errors"

// ErrInvalidConfig indicates that the provided configuration is invalid.
var ErrInvalidConfig = errors.New("ratelimiter: invalid configuration")
