package resource

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Direction is a sort order.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// ParseDirection accepts asc/ascending and desc/descending.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "asc", "ascending":
		return Ascending, nil
	case "desc", "descending":
		return Descending, nil
	default:
		return Ascending, fmt.Errorf("unknown sort direction %q", s)
	}
}

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// FilterItems keeps the items whose field value contains substr, ignoring
// case. An empty field searches every field. An empty substr keeps all items.
// The input is not modified.
func FilterItems(items []Item, field, substr string) []Item {
	out := make([]Item, 0, len(items))
	needle := strings.ToLower(substr)
	for _, it := range items {
		if needle == "" || matches(it, field, needle) {
			out = append(out, it)
		}
	}
	return out
}

func matches(it Item, field, needle string) bool {
	if field != "" {
		v, ok := it[field]
		if !ok || v == nil {
			return false
		}
		return strings.Contains(strings.ToLower(scalarString(v)), needle)
	}
	for _, v := range it {
		if v != nil && strings.Contains(strings.ToLower(scalarString(v)), needle) {
			return true
		}
	}
	return false
}

// SortItems returns a copy of items stably ordered by field. Numbers compare
// numerically and sort before strings; strings use Unicode collation.
// Items missing the field sort last in either direction.
func SortItems(items []Item, field string, dir Direction) []Item {
	out := cloneItems(items)
	col := collate.New(language.Und, collate.IgnoreCase)

	sort.SliceStable(out, func(i, j int) bool {
		a, aok := sortKeyOf(out[i][field])
		b, bok := sortKeyOf(out[j][field])
		switch {
		case !aok && !bok:
			return false
		case !aok:
			return false
		case !bok:
			return true
		}

		c := compareKeys(col, a, b)
		if dir == Descending {
			return c > 0
		}
		return c < 0
	})
	return out
}

type sortKey struct {
	numeric bool
	num     float64
	text    string
}

func sortKeyOf(v interface{}) (sortKey, bool) {
	switch val := v.(type) {
	case nil:
		return sortKey{}, false
	case float64:
		return sortKey{numeric: true, num: val}, true
	case int:
		return sortKey{numeric: true, num: float64(val)}, true
	case int64:
		return sortKey{numeric: true, num: float64(val)}, true
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return sortKey{numeric: true, num: f}, true
		}
		return sortKey{text: val.String()}, true
	default:
		return sortKey{text: scalarString(val)}, true
	}
}

func compareKeys(col *collate.Collator, a, b sortKey) int {
	switch {
	case a.numeric && b.numeric:
		switch {
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		}
		return 0
	case a.numeric:
		return -1
	case b.numeric:
		return 1
	}
	return col.CompareString(a.text, b.text)
}
