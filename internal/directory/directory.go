// Package directory defines the pluggable public-key lookup interface
// witnesses use to resolve a sender's public key during signature
// verification. Key distribution itself is an external concern; this
// package only models the contract plus a bounded local cache in front
// of it.
package directory

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Lookup resolves a wallet id to its SPKI PEM public key. It returns
// ("", false) on a miss. A real deployment backs this with a gossiped or
// centrally-hosted directory service; here it is an injected interface
// so tests can drive it in isolation.
type Lookup interface {
	GetPublicKey(walletID string) (string, bool)
	RegisterPublicKey(walletID, publicKeyPEM string)
}

// MapLookup is a trivial in-memory Lookup, the "conceptually global
// directory" every Network instance shares across its agents.
type MapLookup struct {
	keys map[string]string
}

// NewMapLookup returns an empty MapLookup.
func NewMapLookup() *MapLookup {
	return &MapLookup{keys: make(map[string]string)}
}

// GetPublicKey implements Lookup.
func (m *MapLookup) GetPublicKey(walletID string) (string, bool) {
	v, ok := m.keys[walletID]
	return v, ok
}

// RegisterPublicKey implements Lookup.
func (m *MapLookup) RegisterPublicKey(walletID, publicKeyPEM string) {
	m.keys[walletID] = publicKeyPEM
}

// Unregister drops walletID's key, as a directory service would on
// revocation. Subsequent lookups miss.
func (m *MapLookup) Unregister(walletID string) {
	delete(m.keys, walletID)
}

// CachingLookup wraps an upstream Lookup with a bounded LRU: an agent's
// local key cache is consulted first, falling through to the upstream
// directory only on a miss.
type CachingLookup struct {
	upstream Lookup
	cache    *lru.Cache[string, string]
}

// NewCachingLookup wraps upstream with an LRU of the given capacity.
func NewCachingLookup(upstream Lookup, capacity int) (*CachingLookup, error) {
	cache, err := lru.New[string, string](capacity)
	if err != nil {
		return nil, err
	}
	return &CachingLookup{upstream: upstream, cache: cache}, nil
}

// GetPublicKey checks the local cache first, then the upstream directory,
// populating the cache on an upstream hit.
func (c *CachingLookup) GetPublicKey(walletID string) (string, bool) {
	if pem, ok := c.cache.Get(walletID); ok {
		return pem, true
	}
	pem, ok := c.upstream.GetPublicKey(walletID)
	if ok {
		c.cache.Add(walletID, pem)
	}
	return pem, ok
}

// RegisterPublicKey writes through to both the local cache and the
// upstream directory.
func (c *CachingLookup) RegisterPublicKey(walletID, publicKeyPEM string) {
	c.cache.Add(walletID, publicKeyPEM)
	c.upstream.RegisterPublicKey(walletID, publicKeyPEM)
}

// Snapshot returns every wallet_id/public_key pair currently cached
// locally, the "public_key_directory" field of a persisted agent state.
func (c *CachingLookup) Snapshot() map[string]string {
	out := make(map[string]string, c.cache.Len())
	for _, k := range c.cache.Keys() {
		if pem, ok := c.cache.Peek(k); ok {
			out[k] = pem
		}
	}
	return out
}

// SeedCache populates the local cache from a previously captured
// Snapshot without writing through to the upstream directory.
func (c *CachingLookup) SeedCache(entries map[string]string) {
	for k, v := range entries {
		c.cache.Add(k, v)
	}
}

// Purge empties the local cache so the next lookup goes upstream.
func (c *CachingLookup) Purge() {
	c.cache.Purge()
}
