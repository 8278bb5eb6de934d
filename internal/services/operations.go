package services

import (
	"context"

	"github.com/vvka-141/pgdbapi/internal/models"
	"github.com/vvka-141/pgdbapi/internal/operation"
	"github.com/vvka-141/pgdbapi/internal/schema"
	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

// Operation names served directly by the data API.
const (
	OpCheckSchema                  = "check_schema"
	OpBwUsageUpdate                = "bw_usage_update"
	OpInstanceGetByUUID            = "instance_get_by_uuid"
	OpInstanceGetAll               = "instance_get_all"
	OpInstanceDestroy              = "instance_destroy"
	OpInstanceUpdate               = "instance_update"
	OpInstanceUpdateAndGetOriginal = "instance_update_and_get_original"
	OpInstanceInfoCacheGet         = "instance_info_cache_get"
	OpInstanceInfoCacheUpdate      = "instance_info_cache_update"
	OpInstanceInfoCacheDelete      = "instance_info_cache_delete"
	OpInstancePurge                = "instance_purge"
)

var policies = map[string]operation.Options{
	OpCheckSchema:                  {Name: OpCheckSchema, Retry: true},
	OpBwUsageUpdate:                operation.Defaults(OpBwUsageUpdate),
	OpInstanceGetByUUID:            operation.Defaults(OpInstanceGetByUUID),
	OpInstanceGetAll:               operation.Defaults(OpInstanceGetAll),
	OpInstanceDestroy:              operation.Defaults(OpInstanceDestroy),
	OpInstanceUpdate:               operation.Defaults(OpInstanceUpdate),
	OpInstanceUpdateAndGetOriginal: operation.Defaults(OpInstanceUpdateAndGetOriginal),
	OpInstanceInfoCacheGet:         operation.Defaults(OpInstanceInfoCacheGet),
	OpInstanceInfoCacheUpdate:      operation.Defaults(OpInstanceInfoCacheUpdate),
	OpInstanceInfoCacheDelete:      operation.Defaults(OpInstanceInfoCacheDelete),
	OpInstancePurge:                operation.Admin(OpInstancePurge),
}

// BwUsageUpdate records a bandwidth sample, inserting it if the period is new.
func (d *DataAPI) BwUsageUpdate(ctx context.Context, cc *dbapi.CallerContext, u models.BwUsageUpdate) (models.BandwidthUsage, error) {
	return operation.Call(ctx, d.wrapper, policies[OpBwUsageUpdate], cc, func(ctx context.Context) (models.BandwidthUsage, error) {
		return d.bwUsageUpdate(ctx, cc, u)
	})
}

func (d *DataAPI) bwUsageUpdate(ctx context.Context, cc *dbapi.CallerContext, u models.BwUsageUpdate) (models.BandwidthUsage, error) {
	return withConn(ctx, d, cc, func(conn dbapi.Conn, snap *schema.Snapshot, _ models.Scope) (models.BandwidthUsage, error) {
		return models.UpdateBwUsage(ctx, conn, snap, u)
	})
}

// InstanceGetByUUID returns one instance visible to cc.
func (d *DataAPI) InstanceGetByUUID(ctx context.Context, cc *dbapi.CallerContext, instanceUUID string) (models.Record, error) {
	return operation.Call(ctx, d.wrapper, policies[OpInstanceGetByUUID], cc, func(ctx context.Context) (models.Record, error) {
		return d.instanceGetByUUID(ctx, cc, instanceUUID)
	})
}

func (d *DataAPI) instanceGetByUUID(ctx context.Context, cc *dbapi.CallerContext, instanceUUID string) (models.Record, error) {
	return withConn(ctx, d, cc, func(conn dbapi.Conn, snap *schema.Snapshot, scope models.Scope) (models.Record, error) {
		return models.GetInstanceByUUID(ctx, conn, snap, scope, instanceUUID)
	})
}

// InstanceGetAll returns every instance visible to cc with the named
// relations attached.
func (d *DataAPI) InstanceGetAll(ctx context.Context, cc *dbapi.CallerContext, columnsToJoin []string) ([]models.Record, error) {
	return operation.Call(ctx, d.wrapper, policies[OpInstanceGetAll], cc, func(ctx context.Context) ([]models.Record, error) {
		return d.instanceGetAll(ctx, cc, columnsToJoin)
	})
}

func (d *DataAPI) instanceGetAll(ctx context.Context, cc *dbapi.CallerContext, columnsToJoin []string) ([]models.Record, error) {
	return withConn(ctx, d, cc, func(conn dbapi.Conn, snap *schema.Snapshot, scope models.Scope) ([]models.Record, error) {
		return models.GetAllInstances(ctx, conn, snap, scope, columnsToJoin)
	})
}

// InstanceDestroy soft-deletes an instance if constraint holds and returns
// the instance as it was. A nil constraint always holds.
func (d *DataAPI) InstanceDestroy(ctx context.Context, cc *dbapi.CallerContext, instanceUUID string, constraint *models.Constraint) (models.Record, error) {
	return operation.Call(ctx, d.wrapper, policies[OpInstanceDestroy], cc, func(ctx context.Context) (models.Record, error) {
		return d.instanceDestroy(ctx, cc, instanceUUID, constraint)
	})
}

func (d *DataAPI) instanceDestroy(ctx context.Context, cc *dbapi.CallerContext, instanceUUID string, constraint *models.Constraint) (models.Record, error) {
	return withConn(ctx, d, cc, func(conn dbapi.Conn, snap *schema.Snapshot, scope models.Scope) (models.Record, error) {
		return models.DestroyInstance(ctx, conn, snap, scope, instanceUUID, constraint)
	})
}

// InstanceUpdate applies values to an instance and returns it.
func (d *DataAPI) InstanceUpdate(ctx context.Context, cc *dbapi.CallerContext, instanceUUID string, values map[string]any) (models.Record, error) {
	return operation.Call(ctx, d.wrapper, policies[OpInstanceUpdate], cc, func(ctx context.Context) (models.Record, error) {
		return d.instanceUpdate(ctx, cc, instanceUUID, values)
	})
}

func (d *DataAPI) instanceUpdate(ctx context.Context, cc *dbapi.CallerContext, instanceUUID string, values map[string]any) (models.Record, error) {
	return withConn(ctx, d, cc, func(conn dbapi.Conn, snap *schema.Snapshot, scope models.Scope) (models.Record, error) {
		return models.UpdateInstance(ctx, conn, snap, scope, instanceUUID, values)
	})
}

// InstanceUpdateAndGetOriginal applies values and returns the instance before
// and after the update.
func (d *DataAPI) InstanceUpdateAndGetOriginal(ctx context.Context, cc *dbapi.CallerContext, instanceUUID string, values map[string]any) (orig, updated models.Record, err error) {
	pair, err := operation.Call(ctx, d.wrapper, policies[OpInstanceUpdateAndGetOriginal], cc, func(ctx context.Context) ([2]models.Record, error) {
		return d.instanceUpdateAndGetOriginal(ctx, cc, instanceUUID, values)
	})
	return pair[0], pair[1], err
}

func (d *DataAPI) instanceUpdateAndGetOriginal(ctx context.Context, cc *dbapi.CallerContext, instanceUUID string, values map[string]any) ([2]models.Record, error) {
	return withConn(ctx, d, cc, func(conn dbapi.Conn, snap *schema.Snapshot, scope models.Scope) ([2]models.Record, error) {
		orig, updated, err := models.UpdateInstanceAndGetOriginal(ctx, conn, snap, scope, instanceUUID, values)
		return [2]models.Record{orig, updated}, err
	})
}

// InstanceInfoCacheGet returns the info cache of an instance, or nil when
// the instance has none.
func (d *DataAPI) InstanceInfoCacheGet(ctx context.Context, cc *dbapi.CallerContext, instanceUUID string) (models.Record, error) {
	return operation.Call(ctx, d.wrapper, policies[OpInstanceInfoCacheGet], cc, func(ctx context.Context) (models.Record, error) {
		return d.instanceInfoCacheGet(ctx, cc, instanceUUID)
	})
}

func (d *DataAPI) instanceInfoCacheGet(ctx context.Context, cc *dbapi.CallerContext, instanceUUID string) (models.Record, error) {
	return withConn(ctx, d, cc, func(conn dbapi.Conn, snap *schema.Snapshot, scope models.Scope) (models.Record, error) {
		return models.GetInfoCache(ctx, conn, snap, scope, instanceUUID)
	})
}

// InstanceInfoCacheUpdate applies values to an instance's info cache,
// creating it when absent.
func (d *DataAPI) InstanceInfoCacheUpdate(ctx context.Context, cc *dbapi.CallerContext, instanceUUID string, values map[string]any) (models.Record, error) {
	return operation.Call(ctx, d.wrapper, policies[OpInstanceInfoCacheUpdate], cc, func(ctx context.Context) (models.Record, error) {
		return d.instanceInfoCacheUpdate(ctx, cc, instanceUUID, values)
	})
}

func (d *DataAPI) instanceInfoCacheUpdate(ctx context.Context, cc *dbapi.CallerContext, instanceUUID string, values map[string]any) (models.Record, error) {
	return withConn(ctx, d, cc, func(conn dbapi.Conn, snap *schema.Snapshot, _ models.Scope) (models.Record, error) {
		return models.UpdateInfoCache(ctx, conn, snap, instanceUUID, values)
	})
}

// InstanceInfoCacheDelete soft-deletes an instance's info cache.
func (d *DataAPI) InstanceInfoCacheDelete(ctx context.Context, cc *dbapi.CallerContext, instanceUUID string) error {
	_, err := operation.Call(ctx, d.wrapper, policies[OpInstanceInfoCacheDelete], cc, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, d.instanceInfoCacheDelete(ctx, cc, instanceUUID)
	})
	return err
}

func (d *DataAPI) instanceInfoCacheDelete(ctx context.Context, cc *dbapi.CallerContext, instanceUUID string) error {
	_, err := withConn(ctx, d, cc, func(conn dbapi.Conn, snap *schema.Snapshot, _ models.Scope) (struct{}, error) {
		return struct{}{}, models.SoftDeleteInfoCache(ctx, conn, snap, instanceUUID)
	})
	return err
}

// InstancePurge permanently removes a soft-deleted instance. Admin only.
func (d *DataAPI) InstancePurge(ctx context.Context, cc *dbapi.CallerContext, instanceUUID string) error {
	_, err := operation.Call(ctx, d.wrapper, policies[OpInstancePurge], cc, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, d.instancePurge(ctx, cc, instanceUUID)
	})
	return err
}

func (d *DataAPI) instancePurge(ctx context.Context, cc *dbapi.CallerContext, instanceUUID string) error {
	_, err := withConn(ctx, d, cc, func(conn dbapi.Conn, snap *schema.Snapshot, _ models.Scope) (struct{}, error) {
		return struct{}{}, models.PurgeInstance(ctx, conn, snap, instanceUUID)
	})
	return err
}
