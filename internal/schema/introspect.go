package schema

import (
	"context"
	"fmt"

	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

const columnsQuery = `
SELECT table_schema, table_name, column_name, data_type,
       is_nullable = 'YES' AS nullable, ordinal_position::int4
FROM information_schema.columns
WHERE table_schema = ANY($1::text[])
ORDER BY array_position($1::text[], table_schema::text), table_name, ordinal_position`

// Introspect loads every table of the given schemas. Schemas are listed in
// lookup order; an empty list means dbapi.DefaultSchemaName.
func Introspect(ctx context.Context, q dbapi.Querier, schemas []string) (*Snapshot, error) {
	if len(schemas) == 0 {
		schemas = []string{dbapi.DefaultSchemaName}
	}

	rows, err := q.Query(ctx, columnsQuery, schemas)
	if err != nil {
		return nil, fmt.Errorf("query information_schema.columns: %w", err)
	}
	defer rows.Close()

	var tables []Table
	index := make(map[string]int)
	for rows.Next() {
		var (
			schemaName, tableName string
			col                   Column
			ordinal               int32
		)
		if err := rows.Scan(&schemaName, &tableName, &col.Name, &col.DataType, &col.Nullable, &ordinal); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		col.Ordinal = int(ordinal)

		key := schemaName + "." + tableName
		i, ok := index[key]
		if !ok {
			i = len(tables)
			index[key] = i
			tables = append(tables, Table{Schema: schemaName, Name: tableName})
		}
		tables[i].Columns = append(tables[i].Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read column rows: %w", err)
	}

	return NewSnapshot(tables), nil
}
