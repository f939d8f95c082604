package cache

import "time"

const defaultAuthTTL = 30 * time.Second

// AuthResolverCache stores resolved API key lookups for the request hot path.
// Every authenticated request otherwise costs one key query; a short TTL keeps
// revocation latency bounded.
type AuthResolverCache interface {
	GetClientID(keyHash string) (string, bool)
	SetClientID(keyHash, clientID string)
	Invalidate(keyHash string)
}

type authResolverCache struct {
	clients Cache[string, string]
	ttl     time.Duration
}

// NewAuthResolverCache returns an in-memory cache tuned for API key auth.
func NewAuthResolverCache() AuthResolverCache {
	return &authResolverCache{
		clients: NewTTLCache[string, string](),
		ttl:     defaultAuthTTL,
	}
}

func (c *authResolverCache) GetClientID(keyHash string) (string, bool) {
	return c.clients.Get(keyHash)
}

func (c *authResolverCache) SetClientID(keyHash, clientID string) {
	c.clients.Set(keyHash, clientID, c.ttl)
}

func (c *authResolverCache) Invalidate(keyHash string) {
	c.clients.Delete(keyHash)
}
