package resource

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Shape tags the wrapper a response body arrived in.
type Shape int

const (
	// ShapeEmpty is an empty or null body.
	ShapeEmpty Shape = iota
	// ShapeList is a bare JSON array of items.
	ShapeList
	// ShapePage is {results: [...], count, next, previous}.
	ShapePage
	// ShapeData is {success, data}; data holds another envelope.
	ShapeData
	// ShapeObject is a single item.
	ShapeObject
)

func (s Shape) String() string {
	switch s {
	case ShapeEmpty:
		return "empty"
	case ShapeList:
		return "list"
	case ShapePage:
		return "page"
	case ShapeData:
		return "data"
	case ShapeObject:
		return "object"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// Envelope is a decoded response body.
type Envelope struct {
	Shape Shape

	items  []Item
	object Item
	inner  *Envelope

	// Page metadata, set for ShapePage.
	Count    *int
	Next     string
	Previous string

	// Success is the flag of a ShapeData body.
	Success bool
}

// DecodeEnvelope classifies and decodes a JSON body.
func DecodeEnvelope(body []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Envelope{Shape: ShapeEmpty}, nil
	}

	switch trimmed[0] {
	case '[':
		items, err := decodeItems(trimmed)
		if err != nil {
			return Envelope{}, err
		}
		return Envelope{Shape: ShapeList, items: items}, nil
	case '{':
		return decodeObject(trimmed)
	default:
		return Envelope{}, fmt.Errorf("response body is neither an object nor an array")
	}
}

func decodeObject(data []byte) (Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Envelope{}, fmt.Errorf("decoding response object: %w", err)
	}

	if raw, ok := fields["results"]; ok && isArray(raw) {
		items, err := decodeItems(raw)
		if err != nil {
			return Envelope{}, fmt.Errorf("decoding results: %w", err)
		}
		env := Envelope{Shape: ShapePage, items: items}
		if rawCount, ok := fields["count"]; ok {
			var count int
			if err := json.Unmarshal(rawCount, &count); err == nil {
				env.Count = &count
			}
		}
		env.Next = optionalString(fields["next"])
		env.Previous = optionalString(fields["previous"])
		return env, nil
	}

	if raw, ok := fields["data"]; ok {
		_, hasSuccess := fields["success"]
		if hasSuccess || len(fields) == 1 {
			inner, err := DecodeEnvelope(raw)
			if err != nil {
				return Envelope{}, fmt.Errorf("decoding data: %w", err)
			}
			env := Envelope{Shape: ShapeData, inner: &inner}
			if hasSuccess {
				_ = json.Unmarshal(fields["success"], &env.Success)
			}
			return env, nil
		}
	}

	var obj Item
	if err := json.Unmarshal(data, &obj); err != nil {
		return Envelope{}, fmt.Errorf("decoding response object: %w", err)
	}
	return Envelope{Shape: ShapeObject, object: obj}, nil
}

// Items unwraps the envelope into a collection. A single object is a
// collection of one. The result is never nil.
func (e Envelope) Items() []Item {
	switch e.Shape {
	case ShapeEmpty:
		return []Item{}
	case ShapeList, ShapePage:
		if e.items == nil {
			return []Item{}
		}
		return e.items
	case ShapeData:
		if e.inner == nil {
			return []Item{}
		}
		return e.inner.Items()
	case ShapeObject:
		return []Item{e.object}
	default:
		return []Item{}
	}
}

// Item unwraps the envelope into a single record. It reports false when the
// body holds no single object.
func (e Envelope) Item() (Item, bool) {
	switch e.Shape {
	case ShapeObject:
		return e.object, true
	case ShapeData:
		if e.inner == nil {
			return nil, false
		}
		return e.inner.Item()
	case ShapeEmpty, ShapeList, ShapePage:
		return nil, false
	default:
		return nil, false
	}
}

// Inner returns the wrapped envelope of a ShapeData body.
func (e Envelope) Inner() (Envelope, bool) {
	if e.Shape != ShapeData || e.inner == nil {
		return Envelope{}, false
	}
	return *e.inner, true
}

func decodeItems(data []byte) ([]Item, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decoding response array: %w", err)
	}
	items := make([]Item, 0, len(raws))
	for i, raw := range raws {
		var it Item
		if err := json.Unmarshal(raw, &it); err != nil {
			return nil, fmt.Errorf("element %d is not an object: %w", i, err)
		}
		if it == nil {
			return nil, fmt.Errorf("element %d is null", i)
		}
		items = append(items, it)
	}
	return items, nil
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func optionalString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
