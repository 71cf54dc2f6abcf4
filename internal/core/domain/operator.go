package domain

import "errors"

// ScopeSyncTrigger allows running sync batches through the HTTP API
const ScopeSyncTrigger = "sync:trigger"

// ErrInvalidToken indicates an operator token failed validation
var ErrInvalidToken = errors.New("invalid token")

// OperatorClaims identifies a service or operator calling the HTTP API
type OperatorClaims struct {
	Subject   string   `json:"sub"`
	Scopes    []string `json:"scopes"`
	IssuedAt  int64    `json:"iat"`
	ExpiresAt int64    `json:"exp"`
}

// HasScope returns true if the claims grant the scope.
func (c *OperatorClaims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
