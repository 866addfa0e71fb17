// Package jwt issues and validates HS256 tokens with github.com/golang-jwt/jwt/v5.
//
// Tokens carry a "type" claim (access or refresh) so a refresh token can never
// be used to call the API and an access token can never be exchanged for a new
// pair. Middleware validates bearer access tokens and stores the claims in the
// request context.
package jwt
