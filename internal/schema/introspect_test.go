package schema

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/pgdbapi/internal/testing/fakedb"
)

func TestIntrospect_GroupsColumnsByTable(t *testing.T) {
	script := fakedb.NewScript()
	script.On("information_schema.columns").Return(
		[]any{"public", "instances", "id", "integer", false, int32(1)},
		[]any{"public", "instances", "uuid", "character varying", false, int32(2)},
		[]any{"public", "instance_info_caches", "network_info", "text", true, int32(1)},
	)
	conn := fakedb.NewConn(1, script)

	s, err := Introspect(context.Background(), conn, nil)
	require.NoError(t, err)

	names, ok := s.ColumnNames("instances")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "uuid"}, names)
	assert.True(t, s.HasColumn("instance_info_caches", "network_info"))

	log := script.Log()
	require.Len(t, log, 1)
	assert.Equal(t, []any{[]string{"public"}}, log[0].Args)
}

func TestIntrospect_QueryError(t *testing.T) {
	script := fakedb.NewScript()
	boom := errors.New("boom")
	script.On("information_schema.columns").Fail(boom)

	_, err := Introspect(context.Background(), fakedb.NewConn(1, script), []string{"nova"})
	assert.ErrorIs(t, err, boom)
}
