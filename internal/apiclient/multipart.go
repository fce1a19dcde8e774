package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"reflect"
	"sort"
	"strings"
)

// File is binary upload data. A request body that is a *File, a *Form, or a
// string-keyed map holding a *File is sent as multipart/form-data.
type File struct {
	Filename    string
	ContentType string // default application/octet-stream
	Reader      io.Reader
}

// NewFile wraps raw bytes as an upload.
func NewFile(filename string, data []byte) *File {
	return &File{Filename: filename, Reader: bytes.NewReader(data)}
}

// Form is an explicit multipart body.
type Form struct {
	Fields map[string]string
	Files  map[string]*File
}

// defaultFileField is the form field used when the body is a bare *File.
const defaultFileField = "file"

// isMultipart reports whether body is, or contains, file data.
func isMultipart(body interface{}) bool {
	switch b := body.(type) {
	case *File, *Form:
		return b != nil
	case nil:
		return false
	}

	v := reflect.ValueOf(body)
	if v.Kind() != reflect.Map || v.Type().Key().Kind() != reflect.String {
		return false
	}
	iter := v.MapRange()
	for iter.Next() {
		if _, ok := iter.Value().Interface().(*File); ok {
			return true
		}
	}
	return false
}

// encodeMultipart renders body as multipart/form-data and returns the payload
// and its Content-Type (with boundary).
func encodeMultipart(body interface{}) (*bytes.Buffer, string, error) {
	form, err := toForm(body)
	if err != nil {
		return nil, "", err
	}

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	for _, name := range sortedKeys(form.Fields) {
		if err := w.WriteField(name, form.Fields[name]); err != nil {
			return nil, "", fmt.Errorf("writing form field %s: %w", name, err)
		}
	}

	for _, name := range sortedKeys(form.Files) {
		f := form.Files[name]
		if f == nil || f.Reader == nil {
			continue
		}
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		filename := f.Filename
		if filename == "" {
			filename = name
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, name, filename))
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("creating form file %s: %w", name, err)
		}
		if _, err := io.Copy(part, f.Reader); err != nil {
			return nil, "", fmt.Errorf("copying form file %s: %w", name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart writer: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}

// toForm normalises the three multipart body shapes into a Form.
func toForm(body interface{}) (*Form, error) {
	switch b := body.(type) {
	case *Form:
		return b, nil
	case *File:
		return &Form{Files: map[string]*File{defaultFileField: b}}, nil
	}

	form := &Form{Fields: map[string]string{}, Files: map[string]*File{}}
	iter := reflect.ValueOf(body).MapRange()
	for iter.Next() {
		name := iter.Key().String()
		value := iter.Value().Interface()

		if f, ok := value.(*File); ok {
			form.Files[name] = f
			continue
		}
		s, err := formValue(value)
		if err != nil {
			return nil, fmt.Errorf("encoding form field %s: %w", name, err)
		}
		form.Fields[name] = s
	}
	return form, nil
}

// formValue renders scalars as text and composite values as JSON.
func formValue(v interface{}) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case fmt.Stringer:
		return val.String(), nil
	case bool, int, int32, int64, float32, float64, json.Number:
		return strings.TrimSpace(fmt.Sprint(val)), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
