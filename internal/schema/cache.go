package schema

import (
	"sync/atomic"

	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

// Cache publishes the current Snapshot. Readers never block and never observe
// a partially built snapshot.
type Cache struct {
	current atomic.Pointer[Snapshot]
	version atomic.Uint64
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Current returns the installed snapshot, or nil before the first Store.
func (c *Cache) Current() *Snapshot {
	return c.current.Load()
}

// Require returns the installed snapshot or dbapi.ErrSchemaUnavailable.
func (c *Cache) Require() (*Snapshot, error) {
	s := c.current.Load()
	if s == nil {
		return nil, dbapi.ErrSchemaUnavailable
	}
	return s, nil
}

// Store installs a copy of s stamped with the next version and returns it.
func (c *Cache) Store(s *Snapshot) *Snapshot {
	published := *s
	published.version = c.version.Add(1)
	c.current.Store(&published)
	return &published
}
