// Package resource is the role-scoped access object over one portal
// collection. A Store keeps a transient local copy of the collection and
// applies successful server responses to it; failures never corrupt it.
package resource

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Item is an untyped server record. Numbers decode as float64.
type Item map[string]interface{}

// ID renders the id field as a string. Integral numbers render without a
// fractional part. A missing id renders as "".
func (it Item) ID() string {
	return scalarString(it["id"])
}

// Clone returns a copy that shares no maps or slices with it.
func (it Item) Clone() Item {
	if it == nil {
		return nil
	}
	out := make(Item, len(it))
	for k, v := range it {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue copies the containers a JSON decode produces. Other values are
// returned as they are.
func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			out[k] = cloneValue(inner)
		}
		return out
	case Item:
		return val.Clone()
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = cloneValue(inner)
		}
		return out
	default:
		return v
	}
}

// Merge returns a copy of it with patch applied on top.
func (it Item) Merge(patch Item) Item {
	out := it.Clone()
	if out == nil {
		out = Item{}
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// scalarString renders a JSON scalar for display and comparison.
func scalarString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1e15 {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case int, int32, int64, uint, uint32, uint64:
		return fmt.Sprint(val)
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}

// cloneItems copies the slice and every item in it.
func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}
