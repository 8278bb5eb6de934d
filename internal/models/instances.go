package models

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/vvka-141/pgdbapi/internal/schema"
	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

// Joinable relations of an instance, keyed by the name callers pass in
// columns_to_join.
const (
	JoinInfoCache      = "info_cache"
	JoinMetadata       = "metadata"
	JoinSystemMetadata = "system_metadata"
)

var joinTables = map[string]string{
	JoinInfoCache:      TableInfoCaches,
	JoinMetadata:       TableInstanceMetadata,
	JoinSystemMetadata: TableInstanceSystemMetadata,
}

// GetInstanceByUUID returns the instance visible to scope.
func GetInstanceByUUID(ctx context.Context, q dbapi.Querier, snap *schema.Snapshot, scope Scope, instanceUUID string) (Record, error) {
	if err := validateUUID(instanceUUID); err != nil {
		return nil, err
	}
	cols, err := tableColumns(snap, TableInstances)
	if err != nil {
		return nil, err
	}

	b := &builder{}
	b.where(`"uuid" = ` + b.arg(instanceUUID))
	if err := b.applyScope(snap, TableInstances, "", scope); err != nil {
		return nil, err
	}

	sql := "SELECT " + selectList("", cols) + " FROM " + TableInstances + b.whereSQL()
	rec, err := scanRecord(q.QueryRow(ctx, sql, b.args...), cols)
	if err != nil {
		return nil, notFound(err, "instance "+instanceUUID)
	}
	return rec, nil
}

// GetAllInstances returns every instance visible to scope ordered by id,
// with the requested relations attached under their join names.
func GetAllInstances(ctx context.Context, q dbapi.Querier, snap *schema.Snapshot, scope Scope, columnsToJoin []string) ([]Record, error) {
	cols, err := tableColumns(snap, TableInstances)
	if err != nil {
		return nil, err
	}
	for _, join := range columnsToJoin {
		table, ok := joinTables[join]
		if !ok {
			return nil, fmt.Errorf("%w: cannot join %q", dbapi.ErrInvalidArgument, join)
		}
		if !snap.HasTable(table) {
			return nil, fmt.Errorf("%w: table %s not found", dbapi.ErrSchemaMismatch, table)
		}
	}

	b := &builder{}
	if err := b.applyScope(snap, TableInstances, "", scope); err != nil {
		return nil, err
	}
	order := ""
	if slices.Contains(cols, "id") {
		order = ` ORDER BY "id"`
	}

	sql := "SELECT " + selectList("", cols) + " FROM " + TableInstances + b.whereSQL() + order
	rows, err := q.Query(ctx, sql, b.args...)
	if err != nil {
		return nil, err
	}
	instances, err := scanRecords(rows, cols)
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 || len(columnsToJoin) == 0 {
		return instances, nil
	}

	uuids := make([]string, 0, len(instances))
	for _, inst := range instances {
		uuids = append(uuids, inst.String("uuid"))
	}
	for _, join := range columnsToJoin {
		if err := attachJoin(ctx, q, snap, join, uuids, instances); err != nil {
			return nil, err
		}
	}
	return instances, nil
}

func attachJoin(ctx context.Context, q dbapi.Querier, snap *schema.Snapshot, join string, uuids []string, instances []Record) error {
	table := joinTables[join]
	cols, err := tableColumns(snap, table)
	if err != nil {
		return err
	}

	b := &builder{}
	b.where(`"instance_uuid" = ANY(` + b.arg(uuids) + `::text[])`)
	if snap.HasColumn(table, "deleted") {
		b.where(`"deleted" = 0`)
	}
	rows, err := q.Query(ctx, "SELECT "+selectList("", cols)+" FROM "+table+b.whereSQL(), b.args...)
	if err != nil {
		return fmt.Errorf("join %s: %w", join, err)
	}
	related, err := scanRecords(rows, cols)
	if err != nil {
		return fmt.Errorf("join %s: %w", join, err)
	}

	byInstance := make(map[string][]Record)
	for _, r := range related {
		key := r.String("instance_uuid")
		byInstance[key] = append(byInstance[key], r)
	}
	for _, inst := range instances {
		matches := byInstance[inst.String("uuid")]
		if join == JoinInfoCache {
			// One info cache per instance.
			if len(matches) > 0 {
				inst[join] = matches[0]
			} else {
				inst[join] = nil
			}
			continue
		}
		if matches == nil {
			matches = []Record{}
		}
		inst[join] = matches
	}
	return nil
}

// lockInstance selects the instance FOR UPDATE inside tx.
func lockInstance(ctx context.Context, tx dbapi.Querier, snap *schema.Snapshot, scope Scope, instanceUUID string, cols []string) (Record, error) {
	b := &builder{}
	b.where(`"uuid" = ` + b.arg(instanceUUID))
	if err := b.applyScope(snap, TableInstances, "", scope); err != nil {
		return nil, err
	}
	sql := "SELECT " + selectList("", cols) + " FROM " + TableInstances + b.whereSQL() + " FOR UPDATE"
	rec, err := scanRecord(tx.QueryRow(ctx, sql, b.args...), cols)
	if err != nil {
		return nil, notFound(err, "instance "+instanceUUID)
	}
	return rec, nil
}

// inTx runs fn in a transaction on conn, committing on success.
func inTx(ctx context.Context, conn dbapi.Conn, fn func(tx dbapi.Tx) error) (err error) {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpdateInstanceAndGetOriginal applies values to the instance and returns its
// state before and after, both read inside one transaction.
func UpdateInstanceAndGetOriginal(ctx context.Context, conn dbapi.Conn, snap *schema.Snapshot, scope Scope, instanceUUID string, values map[string]any) (orig, updated Record, err error) {
	if err := validateUUID(instanceUUID); err != nil {
		return nil, nil, err
	}
	cols, err := tableColumns(snap, TableInstances)
	if err != nil {
		return nil, nil, err
	}

	b := &builder{}
	sets, err := assignments(snap, TableInstances, values, b)
	if err != nil {
		return nil, nil, err
	}

	err = inTx(ctx, conn, func(tx dbapi.Tx) error {
		orig, err = lockInstance(ctx, tx, snap, scope, instanceUUID, cols)
		if err != nil {
			return err
		}
		if len(values) == 0 {
			updated = orig.Clone()
			return nil
		}

		b.where(`"uuid" = ` + b.arg(instanceUUID))
		sql := "UPDATE " + TableInstances + " SET " + strings.Join(sets, ", ") + b.whereSQL() + " RETURNING " + selectList("", cols)
		updated, err = scanRecord(tx.QueryRow(ctx, sql, b.args...), cols)
		return notFound(err, "instance "+instanceUUID)
	})
	if err != nil {
		return nil, nil, err
	}
	return orig, updated, nil
}

// UpdateInstance applies values and returns the updated instance.
func UpdateInstance(ctx context.Context, conn dbapi.Conn, snap *schema.Snapshot, scope Scope, instanceUUID string, values map[string]any) (Record, error) {
	_, updated, err := UpdateInstanceAndGetOriginal(ctx, conn, snap, scope, instanceUUID, values)
	return updated, err
}

// DestroyInstance soft-deletes the instance and its info cache when
// constraint holds, and returns the instance as it was before deletion.
func DestroyInstance(ctx context.Context, conn dbapi.Conn, snap *schema.Snapshot, scope Scope, instanceUUID string, constraint *Constraint) (Record, error) {
	if err := validateUUID(instanceUUID); err != nil {
		return nil, err
	}
	cols, err := tableColumns(snap, TableInstances)
	if err != nil {
		return nil, err
	}

	var orig Record
	err = inTx(ctx, conn, func(tx dbapi.Tx) error {
		orig, err = lockInstance(ctx, tx, snap, scope, instanceUUID, cols)
		if err != nil {
			return err
		}

		b := &builder{}
		b.where(`"uuid" = ` + b.arg(instanceUUID))
		if err := constraint.apply(snap, TableInstances, b); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, "UPDATE "+TableInstances+` SET "deleted" = "id", "deleted_at" = now()`+b.whereSQL(), b.args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: instance %s", dbapi.ErrConstraintNotMet, instanceUUID)
		}

		if snap.HasTable(TableInfoCaches) {
			return SoftDeleteInfoCache(ctx, tx, snap, instanceUUID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return orig, nil
}

// PurgeInstance permanently removes a soft-deleted instance and its info cache.
func PurgeInstance(ctx context.Context, conn dbapi.Conn, snap *schema.Snapshot, instanceUUID string) error {
	if err := validateUUID(instanceUUID); err != nil {
		return err
	}
	if _, err := tableColumns(snap, TableInstances); err != nil {
		return err
	}

	return inTx(ctx, conn, func(tx dbapi.Tx) error {
		for _, table := range []string{TableInfoCaches, TableInstanceMetadata, TableInstanceSystemMetadata} {
			if !snap.HasTable(table) {
				continue
			}
			if _, err := tx.Exec(ctx, "DELETE FROM "+table+` WHERE "instance_uuid" = $1`, instanceUUID); err != nil {
				return fmt.Errorf("purge %s: %w", table, err)
			}
		}
		tag, err := tx.Exec(ctx, "DELETE FROM "+TableInstances+` WHERE "uuid" = $1 AND "deleted" <> 0`, instanceUUID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: deleted instance %s", dbapi.ErrNotFound, instanceUUID)
		}
		return nil
	})
}
