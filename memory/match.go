package memory

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/jacentio/lattice/store"
)

// matches evaluates a predicate against a record using reflection.
// Fields are resolved by json tag first, then by struct field name,
// matching how the serializing contexts name fields. A condition on a
// field the record does not have matches nothing.
func matches(rec store.Record, pred *store.Predicate) (bool, error) {
	for _, cond := range pred.Conditions() {
		field, ok := lookupField(rec, cond.Field)
		if !ok {
			return false, nil
		}
		hit, err := compare(field, cond)
		if err != nil {
			return false, err
		}
		if !hit {
			return false, nil
		}
	}
	return true, nil
}

func lookupField(rec store.Record, name string) (reflect.Value, bool) {
	v := reflect.ValueOf(rec)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}

	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
		if tag == name || (tag == "" && sf.Name == name) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func compare(field reflect.Value, cond store.Condition) (bool, error) {
	switch cond.Op {
	case store.Contains, store.BeginsWith:
		return compareString(field, cond)
	case store.Eq, store.Ne, store.Lt, store.Le, store.Gt, store.Ge:
		return compareOrdered(field, cond)
	default:
		return false, fmt.Errorf("memory: unsupported operator %q", cond.Op)
	}
}

func compareString(field reflect.Value, cond store.Condition) (bool, error) {
	want, ok := cond.Value.(string)
	if !ok {
		return false, fmt.Errorf("memory: operator %q requires a string value, got %T", cond.Op, cond.Value)
	}
	if field.Kind() != reflect.String {
		return false, nil
	}
	if cond.Op == store.Contains {
		return strings.Contains(field.String(), want), nil
	}
	return strings.HasPrefix(field.String(), want), nil
}

func compareOrdered(field reflect.Value, cond store.Condition) (bool, error) {
	if fn, fok := asFloat(field); fok {
		wn, wok := asFloat(reflect.ValueOf(cond.Value))
		if !wok {
			return false, nil
		}
		return ordered(fn == wn, fn < wn, cond.Op), nil
	}

	switch field.Kind() {
	case reflect.String:
		want, ok := cond.Value.(string)
		if !ok {
			return false, nil
		}
		got := field.String()
		return ordered(got == want, got < want, cond.Op), nil
	case reflect.Bool:
		want, ok := cond.Value.(bool)
		if !ok {
			return false, nil
		}
		switch cond.Op {
		case store.Eq:
			return field.Bool() == want, nil
		case store.Ne:
			return field.Bool() != want, nil
		default:
			return false, fmt.Errorf("memory: operator %q is not defined for booleans", cond.Op)
		}
	default:
		return false, fmt.Errorf("memory: cannot compare field of kind %s", field.Kind())
	}
}

func ordered(eq, lt bool, op store.Op) bool {
	switch op {
	case store.Eq:
		return eq
	case store.Ne:
		return !eq
	case store.Lt:
		return lt
	case store.Le:
		return lt || eq
	case store.Gt:
		return !lt && !eq
	case store.Ge:
		return !lt
	default:
		return false
	}
}

func asFloat(v reflect.Value) (float64, bool) {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	default:
		return 0, false
	}
}
