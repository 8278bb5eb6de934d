package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func instancesTable(schemaName string) Table {
	return Table{
		Schema: schemaName,
		Name:   "instances",
		Columns: []Column{
			{Name: "uuid", DataType: "character varying", Ordinal: 2},
			{Name: "id", DataType: "integer", Ordinal: 1},
			{Name: "deleted", DataType: "integer", Nullable: true, Ordinal: 3},
		},
	}
}

func TestNewSnapshot_OrdersColumnsByOrdinal(t *testing.T) {
	s := NewSnapshot([]Table{instancesTable("public")})

	names, ok := s.ColumnNames("instances")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "uuid", "deleted"}, names)

	qualified, ok := s.ColumnNames("public.instances")
	require.True(t, ok)
	assert.Equal(t, names, qualified)
}

func TestNewSnapshot_FirstSchemaWinsForBareName(t *testing.T) {
	shadow := Table{Schema: "legacy", Name: "instances", Columns: []Column{{Name: "old", Ordinal: 1}}}
	s := NewSnapshot([]Table{instancesTable("public"), shadow})

	assert.True(t, s.HasColumn("instances", "uuid"))
	assert.False(t, s.HasColumn("instances", "old"))
	assert.True(t, s.HasColumn("legacy.instances", "old"))
	assert.Equal(t, []string{"legacy.instances", "public.instances"}, s.TableNames())
}

func TestSnapshot_TableReturnsCopy(t *testing.T) {
	s := NewSnapshot([]Table{instancesTable("public")})

	tbl, ok := s.Table("instances")
	require.True(t, ok)
	tbl.Columns[0].Name = "mutated"

	again, _ := s.Table("instances")
	assert.Equal(t, "id", again.Columns[0].Name)
}

func TestSnapshot_Lookups(t *testing.T) {
	s := NewSnapshot([]Table{instancesTable("public")})

	assert.True(t, s.HasTable("instances"))
	assert.False(t, s.HasTable("volumes"))
	assert.False(t, s.HasColumn("volumes", "id"))

	_, ok := s.ColumnNames("volumes")
	assert.False(t, ok)

	col, ok := s.Table("instances")
	require.True(t, ok)
	deleted, ok := col.Column("deleted")
	require.True(t, ok)
	assert.True(t, deleted.Nullable)
}

func TestSnapshot_Equal(t *testing.T) {
	a := NewSnapshot([]Table{instancesTable("public")})
	b := NewSnapshot([]Table{instancesTable("public")})

	changed := instancesTable("public")
	changed.Columns = append(changed.Columns, Column{Name: "host", Ordinal: 4})
	c := NewSnapshot([]Table{changed})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
}
