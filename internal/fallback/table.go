package fallback

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

// Table is an explicit name-to-operation registry. Safe for concurrent use.
type Table struct {
	mu  sync.RWMutex
	ops map[string]dbapi.Operation
}

// NewTable returns an empty registry.
func NewTable() *Table {
	return &Table{ops: make(map[string]dbapi.Operation)}
}

// Register adds or replaces name.
func (t *Table) Register(name string, op dbapi.Operation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ops[name] = op
}

// Resolve returns the operation for name or an error wrapping dbapi.ErrNotImplemented.
func (t *Table) Resolve(name string) (dbapi.Operation, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	op, ok := t.ops[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", dbapi.ErrNotImplemented, name)
	}
	return op, nil
}

// Names returns the registered names, sorted.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.ops))
	for name := range t.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var _ dbapi.Backend = (*Table)(nil)
