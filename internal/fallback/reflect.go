package fallback

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	callerType  = reflect.TypeOf((*dbapi.CallerContext)(nil))
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Reflect adapts a value whose methods follow the data API calling convention
// to dbapi.Backend. The name instance_get_all resolves to method InstanceGetAll.
//
// Methods must take (context.Context, *dbapi.CallerContext, args...) and return
// (T, error), error, or T. Arguments are passed positionally without conversion
// except that nil becomes the zero value of the parameter type.
func Reflect(target any) dbapi.Backend {
	return &reflectBackend{target: reflect.ValueOf(target)}
}

type reflectBackend struct {
	target reflect.Value
}

func (b *reflectBackend) Resolve(name string) (dbapi.Operation, error) {
	if !b.target.IsValid() {
		return nil, fmt.Errorf("%w: %s", dbapi.ErrNotImplemented, name)
	}
	method := b.target.MethodByName(MethodName(name))
	if !method.IsValid() {
		return nil, fmt.Errorf("%w: %s", dbapi.ErrNotImplemented, name)
	}
	mt := method.Type()
	if mt.NumIn() < 2 || mt.In(0) != contextType || mt.In(1) != callerType {
		return nil, fmt.Errorf("%w: %s has an incompatible signature %s", dbapi.ErrNotImplemented, name, mt)
	}

	return func(ctx context.Context, cc *dbapi.CallerContext, args ...any) (any, error) {
		in, err := buildArgs(mt, ctx, cc, args)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", dbapi.ErrInvalidArgument, name, err)
		}
		var out []reflect.Value
		if mt.IsVariadic() {
			out = method.CallSlice(in)
		} else {
			out = method.Call(in)
		}
		return splitResults(out)
	}, nil
}

func buildArgs(mt reflect.Type, ctx context.Context, cc *dbapi.CallerContext, args []any) ([]reflect.Value, error) {
	fixed := mt.NumIn() - 2
	if mt.IsVariadic() {
		fixed--
		if len(args) < fixed {
			return nil, fmt.Errorf("expected at least %d arguments, got %d", fixed, len(args))
		}
	} else if len(args) != fixed {
		return nil, fmt.Errorf("expected %d arguments, got %d", fixed, len(args))
	}

	in := []reflect.Value{reflect.Zero(contextType), reflect.ValueOf(cc)}
	if ctx != nil {
		in[0] = reflect.ValueOf(ctx)
	}
	for i := 0; i < fixed; i++ {
		v, err := argValue(args[i], mt.In(i+2))
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		in = append(in, v)
	}
	if mt.IsVariadic() {
		sliceType := mt.In(mt.NumIn() - 1)
		rest := reflect.MakeSlice(sliceType, 0, len(args)-fixed)
		for i := fixed; i < len(args); i++ {
			v, err := argValue(args[i], sliceType.Elem())
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			rest = reflect.Append(rest, v)
		}
		in = append(in, rest)
	}
	return in, nil
}

func argValue(arg any, want reflect.Type) (reflect.Value, error) {
	if arg == nil {
		return reflect.Zero(want), nil
	}
	v := reflect.ValueOf(arg)
	if !v.Type().AssignableTo(want) {
		return reflect.Value{}, fmt.Errorf("%T is not assignable to %s", arg, want)
	}
	return v, nil
}

func splitResults(out []reflect.Value) (any, error) {
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if out[0].Type() == errorType {
			return nil, asError(out[0])
		}
		return out[0].Interface(), nil
	default:
		last := out[len(out)-1]
		var err error
		if last.Type() == errorType {
			err = asError(last)
			out = out[:len(out)-1]
		}
		if len(out) == 1 {
			return out[0].Interface(), err
		}
		values := make([]any, len(out))
		for i, v := range out {
			values[i] = v.Interface()
		}
		return values, err
	}
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}

// MethodName converts a snake_case operation name to its exported Go method name.
// Segments equal to a common initialism are upper-cased: instance_get_by_uuid
// becomes InstanceGetByUUID.
func MethodName(name string) string {
	var b strings.Builder
	for _, part := range strings.Split(name, "_") {
		if part == "" {
			continue
		}
		if initialisms[part] {
			b.WriteString(strings.ToUpper(part))
			continue
		}
		r := []rune(part)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	return b.String()
}

var initialisms = map[string]bool{
	"id":   true,
	"ip":   true,
	"uuid": true,
	"url":  true,
	"sql":  true,
	"api":  true,
}
