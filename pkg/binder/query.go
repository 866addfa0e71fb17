package binder

import (
	"fmt"
	"net/http"
	"reflect"
)

// Query creates a binder for URL query parameters tagged `query:"name"`.
// Missing parameters leave the field untouched.
func Query() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
			return ErrInvalidTarget
		}
		rv = rv.Elem()
		rt := rv.Type()
		values := r.URL.Query()

		for i := range rv.NumField() {
			field := rv.Field(i)
			sf := rt.Field(i)
			name := tagName(sf.Tag.Get("query"))
			if name == "" || !field.CanSet() {
				continue
			}
			if vals := values[name]; len(vals) > 0 {
				if err := setFieldValue(field, sf.Type, vals); err != nil {
					return fmt.Errorf("%w: parameter %s: %v", ErrFailedToParseQuery, name, err)
				}
			}
		}
		return nil
	}
}
