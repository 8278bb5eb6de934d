package models

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/vvka-141/pgdbapi/internal/schema"
	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

// GetInfoCache returns the info cache of an instance, or nil when it has none.
func GetInfoCache(ctx context.Context, q dbapi.Querier, snap *schema.Snapshot, scope Scope, instanceUUID string) (Record, error) {
	if err := validateUUID(instanceUUID); err != nil {
		return nil, err
	}
	cols, err := tableColumns(snap, TableInfoCaches)
	if err != nil {
		return nil, err
	}

	b := &builder{}
	b.where(`"instance_uuid" = ` + b.arg(instanceUUID))
	// Info caches carry no project; scope only by deletion state.
	if err := b.applyScope(snap, TableInfoCaches, "", Scope{AllProjects: true, ReadDeleted: scope.ReadDeleted}); err != nil {
		return nil, err
	}

	rec, err := scanRecord(q.QueryRow(ctx, "SELECT "+selectList("", cols)+" FROM "+TableInfoCaches+b.whereSQL()+" LIMIT 1", b.args...), cols)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateInfoCache applies values to the live info cache of an instance,
// creating the cache when none exists, and returns it.
func UpdateInfoCache(ctx context.Context, q dbapi.Querier, snap *schema.Snapshot, instanceUUID string, values map[string]any) (Record, error) {
	if err := validateUUID(instanceUUID); err != nil {
		return nil, err
	}
	cols, err := tableColumns(snap, TableInfoCaches)
	if err != nil {
		return nil, err
	}
	if _, ok := values["instance_uuid"]; ok {
		return nil, fmt.Errorf("%w: instance_uuid cannot be updated", dbapi.ErrInvalidArgument)
	}

	b := &builder{}
	sets, err := assignments(snap, TableInfoCaches, values, b)
	if err != nil {
		return nil, err
	}

	if len(sets) > 0 {
		b.where(`"instance_uuid" = ` + b.arg(instanceUUID))
		if snap.HasColumn(TableInfoCaches, "deleted") {
			b.where(`"deleted" = 0`)
		}
		sql := "UPDATE " + TableInfoCaches + " SET " + strings.Join(sets, ", ") + b.whereSQL() + " RETURNING " + selectList("", cols)
		rec, err := scanRecord(q.QueryRow(ctx, sql, b.args...), cols)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
	}

	return insertInfoCache(ctx, q, snap, instanceUUID, values, cols)
}

func insertInfoCache(ctx context.Context, q dbapi.Querier, snap *schema.Snapshot, instanceUUID string, values map[string]any, cols []string) (Record, error) {
	b := &builder{}
	names := []string{`"instance_uuid"`}
	placeholders := []string{b.arg(instanceUUID)}
	for _, k := range sortedKeys(values) {
		names = append(names, pgx.Identifier{k}.Sanitize())
		placeholders = append(placeholders, b.arg(values[k]))
	}
	if snap.HasColumn(TableInfoCaches, "created_at") {
		names = append(names, `"created_at"`)
		placeholders = append(placeholders, "now()")
	}
	sql := "INSERT INTO " + TableInfoCaches + " (" + strings.Join(names, ", ") + ") VALUES (" +
		strings.Join(placeholders, ", ") + ") RETURNING " + selectList("", cols)
	return scanRecord(q.QueryRow(ctx, sql, b.args...), cols)
}

// SoftDeleteInfoCache marks the live info cache of an instance deleted.
// Deleting an absent cache is not an error.
func SoftDeleteInfoCache(ctx context.Context, q dbapi.Querier, snap *schema.Snapshot, instanceUUID string) error {
	if _, err := tableColumns(snap, TableInfoCaches); err != nil {
		return err
	}
	sets := `"deleted" = "id", "deleted_at" = now()`
	if snap.HasColumn(TableInfoCaches, "updated_at") {
		sets += `, "updated_at" = now()`
	}
	_, err := q.Exec(ctx, "UPDATE "+TableInfoCaches+" SET "+sets+` WHERE "instance_uuid" = $1 AND "deleted" = 0`, instanceUUID)
	return err
}
