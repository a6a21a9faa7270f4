package keys

import (
	"sync"

	"github.com/dmitrijs2005/gophnotes/internal/common"
)

// SecretCache holds unwrapped keys for the lifetime of a session. It is
// owned by whoever builds the Manager and must be cleared on logout.
type SecretCache struct {
	mu      sync.Mutex
	dbKey   []byte
	userKey []byte
}

func (c *SecretCache) databaseKey() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dbKey
}

func (c *SecretCache) setDatabaseKey(k []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dbKey = k
}

func (c *SecretCache) userKeyValue() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userKey
}

func (c *SecretCache) setUserKey(k []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userKey = k
}

func (c *SecretCache) clearUserKey() {
	c.mu.Lock()
	defer c.mu.Unlock()
	common.WipeByteArray(c.userKey)
	c.userKey = nil
}

// Clear wipes and drops every cached key.
func (c *SecretCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	common.WipeByteArray(c.dbKey)
	common.WipeByteArray(c.userKey)
	c.dbKey = nil
	c.userKey = nil
}
