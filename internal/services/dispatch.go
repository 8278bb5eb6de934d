package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/vvka-141/pgdbapi/internal/models"
	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

// register fills the direct table. Each entry converts loosely typed
// arguments, such as decoded JSON, inside the wrapper so authorization is
// checked first and conversion errors are never retried.
func (d *DataAPI) register() {
	add := func(name string, op dbapi.Operation) {
		d.direct.Register(name, d.wrapper.Wrap(policies[name], op))
	}

	add(OpBwUsageUpdate, func(ctx context.Context, cc *dbapi.CallerContext, args ...any) (any, error) {
		u, err := bwUsageArgs(args)
		if err != nil {
			return nil, err
		}
		return d.bwUsageUpdate(ctx, cc, u)
	})
	add(OpInstanceGetByUUID, func(ctx context.Context, cc *dbapi.CallerContext, args ...any) (any, error) {
		if err := arity(OpInstanceGetByUUID, args, 1, 1); err != nil {
			return nil, err
		}
		id, err := stringArg(args, 0, "instance_uuid")
		if err != nil {
			return nil, err
		}
		return d.instanceGetByUUID(ctx, cc, id)
	})
	add(OpInstanceGetAll, func(ctx context.Context, cc *dbapi.CallerContext, args ...any) (any, error) {
		if err := arity(OpInstanceGetAll, args, 0, 1); err != nil {
			return nil, err
		}
		joins, err := stringsArg(args, 0, "columns_to_join")
		if err != nil {
			return nil, err
		}
		return d.instanceGetAll(ctx, cc, joins)
	})
	add(OpInstanceDestroy, func(ctx context.Context, cc *dbapi.CallerContext, args ...any) (any, error) {
		if err := arity(OpInstanceDestroy, args, 1, 2); err != nil {
			return nil, err
		}
		id, err := stringArg(args, 0, "instance_uuid")
		if err != nil {
			return nil, err
		}
		constraint, err := constraintArg(args, 1)
		if err != nil {
			return nil, err
		}
		return d.instanceDestroy(ctx, cc, id, constraint)
	})
	add(OpInstanceUpdate, func(ctx context.Context, cc *dbapi.CallerContext, args ...any) (any, error) {
		id, values, err := uuidAndValues(OpInstanceUpdate, args)
		if err != nil {
			return nil, err
		}
		return d.instanceUpdate(ctx, cc, id, values)
	})
	add(OpInstanceUpdateAndGetOriginal, func(ctx context.Context, cc *dbapi.CallerContext, args ...any) (any, error) {
		id, values, err := uuidAndValues(OpInstanceUpdateAndGetOriginal, args)
		if err != nil {
			return nil, err
		}
		pair, err := d.instanceUpdateAndGetOriginal(ctx, cc, id, values)
		if err != nil {
			return nil, err
		}
		return []models.Record{pair[0], pair[1]}, nil
	})
	add(OpInstanceInfoCacheGet, func(ctx context.Context, cc *dbapi.CallerContext, args ...any) (any, error) {
		if err := arity(OpInstanceInfoCacheGet, args, 1, 1); err != nil {
			return nil, err
		}
		id, err := stringArg(args, 0, "instance_uuid")
		if err != nil {
			return nil, err
		}
		rec, err := d.instanceInfoCacheGet(ctx, cc, id)
		if err != nil || rec == nil {
			return nil, err
		}
		return rec, nil
	})
	add(OpInstanceInfoCacheUpdate, func(ctx context.Context, cc *dbapi.CallerContext, args ...any) (any, error) {
		id, values, err := uuidAndValues(OpInstanceInfoCacheUpdate, args)
		if err != nil {
			return nil, err
		}
		return d.instanceInfoCacheUpdate(ctx, cc, id, values)
	})
	add(OpInstanceInfoCacheDelete, func(ctx context.Context, cc *dbapi.CallerContext, args ...any) (any, error) {
		if err := arity(OpInstanceInfoCacheDelete, args, 1, 1); err != nil {
			return nil, err
		}
		id, err := stringArg(args, 0, "instance_uuid")
		if err != nil {
			return nil, err
		}
		return nil, d.instanceInfoCacheDelete(ctx, cc, id)
	})
	add(OpInstancePurge, func(ctx context.Context, cc *dbapi.CallerContext, args ...any) (any, error) {
		if err := arity(OpInstancePurge, args, 1, 1); err != nil {
			return nil, err
		}
		id, err := stringArg(args, 0, "instance_uuid")
		if err != nil {
			return nil, err
		}
		return nil, d.instancePurge(ctx, cc, id)
	})
}

func arity(name string, args []any, minArgs, maxArgs int) error {
	if len(args) < minArgs || len(args) > maxArgs {
		if minArgs == maxArgs {
			return fmt.Errorf("%w: %s takes %d argument(s), got %d", dbapi.ErrInvalidArgument, name, minArgs, len(args))
		}
		return fmt.Errorf("%w: %s takes %d to %d arguments, got %d", dbapi.ErrInvalidArgument, name, minArgs, maxArgs, len(args))
	}
	return nil
}

func badArg(param string, v any) error {
	return fmt.Errorf("%w: %s has unsupported type %T", dbapi.ErrInvalidArgument, param, v)
}

func stringArg(args []any, i int, param string) (string, error) {
	switch v := args[i].(type) {
	case string:
		return v, nil
	case uuid.UUID:
		return v.String(), nil
	default:
		return "", badArg(param, v)
	}
}

func stringsArg(args []any, i int, param string) ([]string, error) {
	if i >= len(args) || args[i] == nil {
		return nil, nil
	}
	switch v := args[i].(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, len(v))
		for j, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, badArg(fmt.Sprintf("%s[%d]", param, j), item)
			}
			out[j] = s
		}
		return out, nil
	default:
		return nil, badArg(param, v)
	}
}

func valuesArg(args []any, i int, param string) (map[string]any, error) {
	switch v := args[i].(type) {
	case map[string]any:
		return v, nil
	case models.Record:
		return v, nil
	default:
		return nil, badArg(param, v)
	}
}

func uuidAndValues(name string, args []any) (string, map[string]any, error) {
	if err := arity(name, args, 2, 2); err != nil {
		return "", nil, err
	}
	id, err := stringArg(args, 0, "instance_uuid")
	if err != nil {
		return "", nil, err
	}
	values, err := valuesArg(args, 1, "values")
	if err != nil {
		return "", nil, err
	}
	return id, values, nil
}

// constraintArg accepts a *models.Constraint or a decoded JSON object of the
// form {"vm_state": {"equal_any": ["stopped"]}, "task_state": {"not_equal": [null]}}.
func constraintArg(args []any, i int) (*models.Constraint, error) {
	if i >= len(args) || args[i] == nil {
		return nil, nil
	}
	switch v := args[i].(type) {
	case *models.Constraint:
		return v, nil
	case map[string]models.Condition:
		return models.NewConstraint(v), nil
	case map[string]any:
		conditions := make(map[string]models.Condition, len(v))
		for col, raw := range v {
			cond, err := conditionArg(col, raw)
			if err != nil {
				return nil, err
			}
			conditions[col] = cond
		}
		return models.NewConstraint(conditions), nil
	default:
		return nil, badArg("constraint", v)
	}
}

func conditionArg(column string, raw any) (models.Condition, error) {
	if cond, ok := raw.(models.Condition); ok {
		return cond, nil
	}
	spec, ok := raw.(map[string]any)
	if !ok || len(spec) != 1 {
		return models.Condition{}, fmt.Errorf("%w: constraint on %s must be {\"equal_any\": [...]} or {\"not_equal\": [...]}", dbapi.ErrInvalidArgument, column)
	}
	for op, values := range spec {
		list, ok := values.([]any)
		if !ok {
			return models.Condition{}, badArg("constraint."+column+"."+op, values)
		}
		switch op {
		case "equal_any":
			return models.EqualAny(list...), nil
		case "not_equal":
			return models.NotEqual(list...), nil
		}
		return models.Condition{}, fmt.Errorf("%w: unknown constraint operator %q", dbapi.ErrInvalidArgument, op)
	}
	return models.Condition{}, nil
}

// bwUsageArgs accepts either one BwUsageUpdate (value, pointer or decoded
// JSON object) or the positional form
// (uuid, mac, start_period, bw_in, bw_out, last_ctr_in, last_ctr_out[, last_refreshed]).
func bwUsageArgs(args []any) (models.BwUsageUpdate, error) {
	if len(args) == 1 {
		switch v := args[0].(type) {
		case models.BwUsageUpdate:
			return v, nil
		case *models.BwUsageUpdate:
			if v == nil {
				return models.BwUsageUpdate{}, badArg("bw_usage", v)
			}
			return *v, nil
		case map[string]any:
			var u models.BwUsageUpdate
			raw, err := json.Marshal(v)
			if err == nil {
				err = json.Unmarshal(raw, &u)
			}
			if err != nil {
				return models.BwUsageUpdate{}, fmt.Errorf("%w: bw_usage: %v", dbapi.ErrInvalidArgument, err)
			}
			return u, nil
		default:
			return models.BwUsageUpdate{}, badArg("bw_usage", v)
		}
	}

	if err := arity(OpBwUsageUpdate, args, 7, 8); err != nil {
		return models.BwUsageUpdate{}, err
	}
	var (
		u   models.BwUsageUpdate
		err error
	)
	if u.UUID, err = stringArg(args, 0, "uuid"); err != nil {
		return u, err
	}
	if u.MAC, err = stringArg(args, 1, "mac"); err != nil {
		return u, err
	}
	if u.StartPeriod, err = timeArg(args[2], "start_period"); err != nil {
		return u, err
	}
	counters := []*int64{&u.BwIn, &u.BwOut, &u.LastCtrIn, &u.LastCtrOut}
	names := []string{"bw_in", "bw_out", "last_ctr_in", "last_ctr_out"}
	for j, dst := range counters {
		if *dst, err = int64Arg(args[3+j], names[j]); err != nil {
			return u, err
		}
	}
	if len(args) == 8 && args[7] != nil {
		t, err := timeArg(args[7], "last_refreshed")
		if err != nil {
			return u, err
		}
		u.LastRefreshed = &t
	}
	return u, nil
}

func int64Arg(v any, param string) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%w: %s must be an integer, got %v", dbapi.ErrInvalidArgument, param, n)
		}
		return int64(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", dbapi.ErrInvalidArgument, param, err)
		}
		return i, nil
	default:
		return 0, badArg(param, v)
	}
}

func timeArg(v any, param string) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %s: %v", dbapi.ErrInvalidArgument, param, err)
		}
		return parsed, nil
	default:
		return time.Time{}, badArg(param, v)
	}
}
