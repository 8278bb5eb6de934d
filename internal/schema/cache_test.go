package schema

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

func TestCache_EmptyUntilStored(t *testing.T) {
	c := NewCache()

	assert.Nil(t, c.Current())
	_, err := c.Require()
	assert.ErrorIs(t, err, dbapi.ErrSchemaUnavailable)
}

func TestCache_StoreAssignsIncreasingVersions(t *testing.T) {
	c := NewCache()
	raw := NewSnapshot(nil)

	first := c.Store(raw)
	second := c.Store(raw)

	assert.Equal(t, uint64(1), first.Version())
	assert.Equal(t, uint64(2), second.Version())
	assert.Equal(t, uint64(0), raw.Version(), "the stored value is a copy")
	assert.Same(t, second, c.Current())
}

func TestCache_ReadersSeeWholeSnapshots(t *testing.T) {
	c := NewCache()
	c.Store(NewSnapshot([]Table{instancesTable("public")}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				s := c.Current()
				names, ok := s.ColumnNames("instances")
				if !ok || len(names) != 3 {
					t.Errorf("observed partial snapshot: %v", names)
					return
				}
			}
		}()
	}
	for i := 0; i < 200; i++ {
		c.Store(NewSnapshot([]Table{instancesTable("public")}))
	}
	wg.Wait()

	s, err := c.Require()
	require.NoError(t, err)
	assert.Equal(t, uint64(201), s.Version())
}
