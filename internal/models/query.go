package models

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vvka-141/pgdbapi/internal/schema"
	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

// Scope limits which rows a caller may see.
type Scope struct {
	// ProjectID restricts rows to one project unless AllProjects is set.
	ProjectID   string
	AllProjects bool
	// ReadDeleted is one of the dbapi.ReadDeleted* values; empty means "no".
	ReadDeleted string
}

// ScopeFor derives the row scope of cc. Admins see every project.
func ScopeFor(cc *dbapi.CallerContext, isAdmin bool) Scope {
	if cc == nil {
		return Scope{AllProjects: isAdmin}
	}
	return Scope{
		ProjectID:   cc.ProjectID,
		AllProjects: isAdmin,
		ReadDeleted: cc.ReadDeleted,
	}
}

// builder accumulates positional arguments and WHERE predicates.
type builder struct {
	args       []any
	predicates []string
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *builder) where(predicate string) {
	b.predicates = append(b.predicates, predicate)
}

func (b *builder) whereSQL() string {
	if len(b.predicates) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.predicates, " AND ")
}

// applyScope adds project and soft-delete filters for columns that table has.
func (b *builder) applyScope(snap *schema.Snapshot, table, alias string, scope Scope) error {
	if !scope.AllProjects && snap.HasColumn(table, "project_id") {
		b.where(qualify(alias, "project_id") + " = " + b.arg(scope.ProjectID))
	}
	if !snap.HasColumn(table, "deleted") {
		return nil
	}
	switch scope.ReadDeleted {
	case "", dbapi.ReadDeletedNo:
		b.where(qualify(alias, "deleted") + " = 0")
	case dbapi.ReadDeletedOnly:
		b.where(qualify(alias, "deleted") + " <> 0")
	case dbapi.ReadDeletedYes:
	default:
		return fmt.Errorf("%w: unknown read_deleted mode %q", dbapi.ErrInvalidArgument, scope.ReadDeleted)
	}
	return nil
}

func qualify(alias, column string) string {
	if alias == "" {
		return pgx.Identifier{column}.Sanitize()
	}
	return pgx.Identifier{alias, column}.Sanitize()
}

func tableColumns(snap *schema.Snapshot, table string) ([]string, error) {
	if snap == nil {
		return nil, dbapi.ErrSchemaUnavailable
	}
	cols, ok := snap.ColumnNames(table)
	if !ok {
		return nil, fmt.Errorf("%w: table %s not found", dbapi.ErrSchemaMismatch, table)
	}
	return cols, nil
}

func selectList(alias string, cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = qualify(alias, c)
	}
	return strings.Join(quoted, ", ")
}

func scanRecord(row dbapi.Row, cols []string) (Record, error) {
	values := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	rec := make(Record, len(cols))
	for i, c := range cols {
		rec[c] = values[i]
	}
	return rec, nil
}

func scanRecords(rows dbapi.Rows, cols []string) ([]Record, error) {
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows, cols)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// notFound converts pgx.ErrNoRows into dbapi.ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", dbapi.ErrNotFound, what)
	}
	return err
}

func validateUUID(s string) error {
	if _, err := uuid.Parse(s); err != nil {
		return fmt.Errorf("%w: %q is not a valid UUID", dbapi.ErrInvalidArgument, s)
	}
	return nil
}

// readOnlyColumns may never be assigned by an update.
var readOnlyColumns = map[string]bool{
	"id":         true,
	"uuid":       true,
	"created_at": true,
	"deleted":    true,
	"deleted_at": true,
}

// assignments renders "col = $n" pairs for values in sorted key order.
func assignments(snap *schema.Snapshot, table string, values map[string]any, b *builder) ([]string, error) {
	var sets []string
	for _, k := range sortedKeys(values) {
		if readOnlyColumns[k] {
			return nil, fmt.Errorf("%w: column %s cannot be updated", dbapi.ErrInvalidArgument, k)
		}
		if !snap.HasColumn(table, k) {
			return nil, fmt.Errorf("%w: unknown column %s.%s", dbapi.ErrInvalidArgument, table, k)
		}
		sets = append(sets, pgx.Identifier{k}.Sanitize()+" = "+b.arg(values[k]))
	}
	if snap.HasColumn(table, "updated_at") {
		if _, explicit := values["updated_at"]; !explicit {
			sets = append(sets, `"updated_at" = now()`)
		}
	}
	return sets, nil
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
