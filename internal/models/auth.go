package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the operator access token issued by the school API.
type JWTClaims struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	jwt.RegisteredClaims
}

// Operator identifies the authenticated dashboard user and carries the raw
// bearer token so it can be forwarded to the school API.
type Operator struct {
	Claims *JWTClaims
	Token  string
}

// ID returns the operator's user id or an empty string.
func (o *Operator) ID() string {
	if o == nil || o.Claims == nil {
		return ""
	}
	return o.Claims.UserID
}
