package security

import (
	"sync"
	"time"

	"github.com/acolita/appliance-shell/internal/adapters/realclock"
	"github.com/acolita/appliance-shell/internal/ports"
)

// DefaultPasswordTTL is how long an interactively entered password is reused.
const DefaultPasswordTTL = 15 * time.Minute

// SecureCache stores one secret with TTL-based expiration.
type SecureCache struct {
	data      []byte
	createdAt time.Time
	ttl       time.Duration
	mu        sync.Mutex
	cleared   bool
	clock     ports.Clock
}

// NewSecureCache copies data into a cache that expires after ttl.
func NewSecureCache(data []byte, ttl time.Duration, clock ports.Clock) *SecureCache {
	if clock == nil {
		clock = realclock.New()
	}
	return &SecureCache{
		data:      append([]byte(nil), data...),
		ttl:       ttl,
		clock:     clock,
		createdAt: clock.Now(),
	}
}

// Get returns a copy of the cached data, or nil once expired.
func (sc *SecureCache) Get() []byte {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if !sc.validLocked() {
		return nil
	}
	return append([]byte(nil), sc.data...)
}

// IsValid returns true if the cache contains unexpired data.
func (sc *SecureCache) IsValid() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.validLocked()
}

func (sc *SecureCache) validLocked() bool {
	if sc.cleared || sc.data == nil {
		return false
	}
	if sc.clock.Now().Sub(sc.createdAt) > sc.ttl {
		sc.clearLocked()
		return false
	}
	return true
}

// Clear wipes the cached data.
func (sc *SecureCache) Clear() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.clearLocked()
}

func (sc *SecureCache) clearLocked() {
	if sc.data != nil {
		WipeBytes(sc.data)
		sc.data = nil
	}
	sc.cleared = true
}

// PasswordCache holds interactively entered passwords per appliance so
// reconnects do not prompt again.
type PasswordCache struct {
	mu     sync.RWMutex
	caches map[string]*SecureCache
	ttl    time.Duration
	clock  ports.Clock
}

// NewPasswordCache creates a cache whose entries expire after ttl.
func NewPasswordCache(ttl time.Duration, clock ports.Clock) *PasswordCache {
	if ttl <= 0 {
		ttl = DefaultPasswordTTL
	}
	if clock == nil {
		clock = realclock.New()
	}
	return &PasswordCache{
		caches: make(map[string]*SecureCache),
		ttl:    ttl,
		clock:  clock,
	}
}

// Set stores a password for appliance, wiping any previous one.
func (c *PasswordCache) Set(appliance string, password []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.caches[appliance]; ok {
		existing.Clear()
	}
	c.caches[appliance] = NewSecureCache(password, c.ttl, c.clock)
}

// Get returns the cached password for appliance, or nil.
func (c *PasswordCache) Get(appliance string) []byte {
	c.mu.RLock()
	cache, ok := c.caches[appliance]
	c.mu.RUnlock()

	if !ok {
		return nil
	}
	return cache.Get()
}

// Clear wipes the password for appliance.
func (c *PasswordCache) Clear(appliance string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cache, ok := c.caches[appliance]; ok {
		cache.Clear()
		delete(c.caches, appliance)
	}
}

// ClearAll wipes every cached password.
func (c *PasswordCache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, cache := range c.caches {
		cache.Clear()
	}
	c.caches = make(map[string]*SecureCache)
}
