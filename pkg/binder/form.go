package binder

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"reflect"
	"strings"
)

// DefaultMaxMemory is the default maximum memory used for parsing multipart forms (10MB).
const DefaultMaxMemory = 10 << 20

var fileHeaderType = reflect.TypeOf((*multipart.FileHeader)(nil))

// Form creates a binder for application/x-www-form-urlencoded and
// multipart/form-data bodies.
//
// Supported struct tags:
//   - `form:"name"` binds the form value "name"
//   - `file:"name"` binds the uploaded file "name" into *multipart.FileHeader
//     or []*multipart.FileHeader
//   - "-" skips the field
func Form() func(r *http.Request, v any) error {
	return FormWithMaxMemory(DefaultMaxMemory)
}

// FormWithMaxMemory is Form with a custom in-memory limit for multipart parts.
// Larger parts spill to temporary files.
func FormWithMaxMemory(maxMemory int64) func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		mediaType, err := requestMediaType(r)
		if err != nil {
			return err
		}

		var (
			values map[string][]string
			files  map[string][]*multipart.FileHeader
		)

		switch mediaType {
		case "application/x-www-form-urlencoded":
			if err := r.ParseForm(); err != nil {
				return fmt.Errorf("%w: %v", ErrFailedToParseForm, err)
			}
			values = r.PostForm

		case "multipart/form-data":
			if err := r.ParseMultipartForm(maxMemory); err != nil {
				return fmt.Errorf("%w: %v", ErrFailedToParseForm, err)
			}
			values = r.MultipartForm.Value
			files = r.MultipartForm.File

		default:
			return fmt.Errorf("%w: got %s, expected application/x-www-form-urlencoded or multipart/form-data", ErrUnsupportedMediaType, mediaType)
		}

		return bindFormAndFiles(v, values, files)
	}
}

func bindFormAndFiles(v any, values map[string][]string, files map[string][]*multipart.FileHeader) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return ErrInvalidTarget
	}
	rv = rv.Elem()
	rt := rv.Type()

	for i := range rv.NumField() {
		field := rv.Field(i)
		sf := rt.Field(i)
		if !field.CanSet() {
			continue
		}

		if name := tagName(sf.Tag.Get("form")); name != "" {
			if vals := values[name]; len(vals) > 0 {
				if err := setFieldValue(field, sf.Type, vals); err != nil {
					return fmt.Errorf("%w: field %s: %v", ErrFailedToParseForm, sf.Name, err)
				}
			}
		}

		if name := tagName(sf.Tag.Get("file")); name != "" {
			if headers := files[name]; len(headers) > 0 {
				if err := setFileField(field, sf.Type, headers); err != nil {
					return fmt.Errorf("%w: field %s: %v", ErrFailedToParseForm, sf.Name, err)
				}
			}
		}
	}

	return nil
}

// tagName returns the name part of a struct tag, or "" for missing and "-".
func tagName(tag string) string {
	name, _, _ := strings.Cut(tag, ",")
	if name == "-" {
		return ""
	}
	return name
}

func setFileField(field reflect.Value, fieldType reflect.Type, headers []*multipart.FileHeader) error {
	for _, fh := range headers {
		fh.Filename = sanitizeFilename(fh.Filename)
	}

	switch {
	case fieldType == fileHeaderType:
		field.Set(reflect.ValueOf(headers[0]))
	case fieldType.Kind() == reflect.Slice && fieldType.Elem() == fileHeaderType:
		field.Set(reflect.ValueOf(headers))
	default:
		return fmt.Errorf("unsupported type for file field: %v", fieldType)
	}
	return nil
}

// sanitizeFilename strips directory components and NUL bytes from a client
// supplied filename.
func sanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "\\", "/")
	filename = filepath.Base(filename)
	filename = strings.ReplaceAll(filename, "\x00", "")
	if filename == "." || filename == ".." || filename == "" || filename == "/" {
		filename = "unnamed"
	}
	return filename
}
