package models

import "github.com/golang-jwt/jwt/v5"

// Claims describes the JWT payload issued by the auth provider. The subject
// claim carries the user id.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// UserID returns the subject claim.
func (c *Claims) UserID() string {
	return c.Subject
}
