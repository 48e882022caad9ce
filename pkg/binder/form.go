package binder

import (
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/dmitrymomot/trevia/pkg/sanitizer"
)

// DefaultMaxMemory bounds multipart parsing.
const DefaultMaxMemory = 10 << 20

// Form binds url-encoded and multipart bodies using `form:"name"` tags.
func Form() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		var values url.Values
		switch mediaType(r) {
		case "application/x-www-form-urlencoded":
			if err := r.ParseForm(); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidForm, err)
			}
			values = r.PostForm
		case "multipart/form-data":
			if err := r.ParseMultipartForm(DefaultMaxMemory); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidForm, err)
			}
			values = url.Values(r.MultipartForm.Value)
		default:
			return ErrBinderNotApplicable
		}
		return bindValues(v, "form", values, ErrInvalidForm)
	}
}

// Query binds the URL query string using `query:"name"` tags.
func Query() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		if r.URL.RawQuery == "" {
			return ErrBinderNotApplicable
		}
		return bindValues(v, "query", r.URL.Query(), ErrInvalidQuery)
	}
}

// bindValues sets tagged string, bool, integer and pointer-to-those fields.
// Fields without the tag are left untouched so several binders can share a
// struct.
func bindValues(v any, tag string, values url.Values, bindErr error) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return ErrInvalidTarget
	}
	rv = rv.Elem()
	rt := rv.Type()

	for i := range rt.NumField() {
		sf := rt.Field(i)
		name, _, _ := strings.Cut(sf.Tag.Get(tag), ",")
		if name == "" || name == "-" || !sf.IsExported() {
			continue
		}
		raw, ok := values[name]
		if !ok || len(raw) == 0 {
			continue
		}
		if err := setField(rv.Field(i), sanitizer.RemoveControlChars(raw[0])); err != nil {
			return fmt.Errorf("%w: field %s: %v", bindErr, name, err)
		}
	}
	return nil
}

func setField(field reflect.Value, value string) error {
	if field.Kind() == reflect.Pointer {
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		return setField(field.Elem(), value)
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		switch strings.ToLower(value) {
		case "on", "yes":
			field.SetBool(true)
			return nil
		case "off", "no", "":
			field.SetBool(false)
			return nil
		}
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid bool %q", value)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid int %q", value)
		}
		field.SetInt(n)
	default:
		return fmt.Errorf("unsupported kind %s", field.Kind())
	}
	return nil
}
