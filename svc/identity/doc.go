// Package identity owns user accounts and authentication.
//
// It defines the User record shared by the entitlement and billing services,
// the UserStore contract the persistence layer implements, and a Service that
// registers users, logs them in with a password or Google OAuth, and issues
// access and refresh token pairs.
//
// Google OAuth is optional. A Service built without an OAuthProvider reports
// ErrOAuthNotConfigured from the OAuth entry points.
package identity
