// Package auth defines the API key model guarding rule management.
package auth

import "context"

// APIKeyInfo is a validated API key: identity plus the scopes it grants.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// Repository provides lookup of active API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
