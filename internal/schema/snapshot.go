// Package schema keeps an immutable, periodically refreshed description of
// the database tables the data API reads and writes.
package schema

import (
	"slices"
	"sort"
	"time"
)

// Column describes one table column.
type Column struct {
	Name     string
	DataType string
	Nullable bool
	Ordinal  int
}

// Table is a table and its columns in ordinal order.
type Table struct {
	Schema  string
	Name    string
	Columns []Column
}

// ColumnNames returns the column names in ordinal order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the named column.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Snapshot is an immutable view of the schema at one point in time.
// Readers may hold a Snapshot indefinitely; refreshes publish a new one.
type Snapshot struct {
	tables   map[string]Table
	version  uint64
	loadedAt time.Time
}

// NewSnapshot builds a snapshot. Each table is reachable by its bare name and
// by schema.name; when several schemas define the same bare name the first
// occurrence in tables wins.
func NewSnapshot(tables []Table) *Snapshot {
	s := &Snapshot{
		tables:   make(map[string]Table, len(tables)*2),
		loadedAt: time.Now(),
	}
	for _, t := range tables {
		cols := slices.Clone(t.Columns)
		sort.SliceStable(cols, func(i, j int) bool { return cols[i].Ordinal < cols[j].Ordinal })
		t.Columns = cols

		if _, exists := s.tables[t.Name]; !exists {
			s.tables[t.Name] = t
		}
		if t.Schema != "" {
			s.tables[t.Schema+"."+t.Name] = t
		}
	}
	return s
}

// Version is assigned by Cache.Store; zero for snapshots never published.
func (s *Snapshot) Version() uint64 { return s.version }

// LoadedAt is when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Table returns a copy of the named table.
func (s *Snapshot) Table(name string) (Table, bool) {
	t, ok := s.tables[name]
	if !ok {
		return Table{}, false
	}
	t.Columns = slices.Clone(t.Columns)
	return t, true
}

// HasTable reports whether name is known.
func (s *Snapshot) HasTable(name string) bool {
	_, ok := s.tables[name]
	return ok
}

// HasColumn reports whether table has column.
func (s *Snapshot) HasColumn(table, column string) bool {
	t, ok := s.tables[table]
	if !ok {
		return false
	}
	_, ok = t.Column(column)
	return ok
}

// ColumnNames returns the ordered column names of table.
func (s *Snapshot) ColumnNames(table string) ([]string, bool) {
	t, ok := s.tables[table]
	if !ok {
		return nil, false
	}
	return t.ColumnNames(), true
}

// TableNames returns the schema-qualified table names, sorted.
func (s *Snapshot) TableNames() []string {
	var names []string
	for key, t := range s.tables {
		if t.Schema == "" || key == t.Schema+"."+t.Name {
			names = append(names, key)
		}
	}
	sort.Strings(names)
	return names
}

// Equal reports whether both snapshots describe the same tables and columns.
func (s *Snapshot) Equal(other *Snapshot) bool {
	if s == nil || other == nil {
		return s == other
	}
	if len(s.tables) != len(other.tables) {
		return false
	}
	for key, t := range s.tables {
		o, ok := other.tables[key]
		if !ok || o.Schema != t.Schema || !slices.Equal(o.Columns, t.Columns) {
			return false
		}
	}
	return true
}
