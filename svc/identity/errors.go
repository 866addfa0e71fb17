package identity

import "errors"

var (
	ErrUserNotFound        = errors.New("identity: user not found")
	ErrEmailAlreadyExists  = errors.New("identity: email already registered")
	ErrInvalidCredentials  = errors.New("identity: invalid email or password")
	ErrInvalidToken        = errors.New("identity: invalid or expired token")
	ErrInactiveUser        = errors.New("identity: user is inactive")
	ErrProviderLinked      = errors.New("identity: email is linked to a different google account")
	ErrOAuthNotConfigured  = errors.New("identity: google oauth is not configured")
	ErrOAuthExchange       = errors.New("identity: google oauth exchange failed")
	ErrInvalidState        = errors.New("identity: invalid oauth state")
	ErrIncompleteProfile   = errors.New("identity: oauth profile is missing email or id")
	ErrUsageLimitReached   = errors.New("identity: usage counter is at its limit")
	ErrInvalidUsageCounter = errors.New("identity: unknown usage counter")
	ErrTokenIssue          = errors.New("identity: failed to issue tokens")
	ErrHashPassword        = errors.New("identity: failed to hash password")
)
