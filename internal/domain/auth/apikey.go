package auth

import "context"

// APIKeyInfo holds the identity and permission data for a validated API key.
// OwnerEmail binds the key to a business identity; the redemption endpoint
// trusts it as the redeeming business.
type APIKeyInfo struct {
	ID         string
	KeyHash    string
	Name       string
	OwnerEmail string
	Scopes     []string
}

// HasScope reports whether the key grants the given scope.
func (k *APIKeyInfo) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
