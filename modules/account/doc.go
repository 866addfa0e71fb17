// Package account mounts the authentication and profile endpoints:
// password registration and login, token refresh, Google OAuth and the
// current user's profile.
package account
