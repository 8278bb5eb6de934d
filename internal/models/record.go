// Package models implements the SQL behind each data operation.
//
// Functions take a dbapi.Querier (or a dbapi.Conn when they need a
// transaction), the current schema.Snapshot and a Scope, and return detached
// Records that stay valid after the connection is released.
package models

import (
	"maps"
	"time"
)

// Table names.
const (
	TableInstances              = "instances"
	TableInfoCaches             = "instance_info_caches"
	TableInstanceMetadata       = "instance_metadata"
	TableInstanceSystemMetadata = "instance_system_metadata"
	TableBwUsage                = "bw_usage_cache"
)

// Record is one row keyed by column name. Joined rows are nested as Record or []Record.
type Record map[string]any

// Clone returns a deep copy of r, including nested records.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		switch val := v.(type) {
		case Record:
			out[k] = val.Clone()
		case []Record:
			list := make([]Record, len(val))
			for i, item := range val {
				list[i] = item.Clone()
			}
			out[k] = list
		case map[string]any:
			out[k] = maps.Clone(val)
		case []byte:
			out[k] = append([]byte(nil), val...)
		default:
			out[k] = v
		}
	}
	return out
}

// String returns the string value of key, or "" when absent or not a string.
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Int64 returns the integer value of key widened to int64.
func (r Record) Int64(key string) (int64, bool) {
	switch v := r[key].(type) {
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case int:
		return int64(v), true
	case int16:
		return int64(v), true
	default:
		return 0, false
	}
}

// Time returns the time value of key.
func (r Record) Time(key string) (time.Time, bool) {
	t, ok := r[key].(time.Time)
	return t, ok
}
