package resource_test

import (
	"testing"

	"github.com/campus/portal/internal/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(items []resource.Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID())
	}
	return out
}

func TestFilterItems(t *testing.T) {
	items := []resource.Item{
		{"id": 1, "title": "Homecoming Gala", "location": "Main Hall"},
		{"id": 2, "title": "Career fair", "location": "Gym"},
		{"id": 3, "title": "Alumni GALA dinner"},
		{"id": 4, "title": nil, "year": float64(2024)},
	}

	tests := []struct {
		name   string
		field  string
		substr string
		want   []string
	}{
		{"case insensitive", "title", "gala", []string{"1", "3"}},
		{"missing field excluded", "location", "h", []string{"1"}},
		{"numeric field", "year", "202", []string{"4"}},
		{"any field", "", "gym", []string{"2"}},
		{"empty substring keeps all", "title", "", []string{"1", "2", "3", "4"}},
		{"no match", "title", "picnic", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(resource.FilterItems(items, tt.field, tt.substr)))
		})
	}
	assert.Len(t, items, 4, "input is not modified")
}

func TestSortItems(t *testing.T) {
	items := []resource.Item{
		{"id": 1, "name": "cherry", "amount": float64(30)},
		{"id": 2, "name": "Apple", "amount": float64(5)},
		{"id": 3, "amount": float64(100)},
		{"id": 4, "name": "banana", "amount": "12"},
		{"id": 5, "name": "apple", "amount": nil},
	}

	tests := []struct {
		name  string
		field string
		dir   resource.Direction
		want  []string
	}{
		{"strings ascending, stable on ties, missing last", "name", resource.Ascending, []string{"2", "5", "4", "1", "3"}},
		{"strings descending, missing still last", "name", resource.Descending, []string{"1", "4", "2", "5", "3"}},
		{"numbers before strings", "amount", resource.Ascending, []string{"2", "1", "3", "4", "5"}},
		{"numbers descending", "amount", resource.Descending, []string{"4", "3", "1", "2", "5"}},
		{"unknown field keeps order", "nope", resource.Ascending, []string{"1", "2", "3", "4", "5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(resource.SortItems(items, tt.field, tt.dir)))
		})
	}
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, ids(items), "input is not modified")
}

func TestSortItems_NumericNotLexical(t *testing.T) {
	items := []resource.Item{{"id": "a", "n": float64(10)}, {"id": "b", "n": float64(9)}, {"id": "c", "n": float64(100)}}
	assert.Equal(t, []string{"b", "a", "c"}, ids(resource.SortItems(items, "n", resource.Ascending)))
}

func TestParseDirection(t *testing.T) {
	d, err := resource.ParseDirection("DESC")
	require.NoError(t, err)
	assert.Equal(t, resource.Descending, d)
	assert.Equal(t, "desc", d.String())

	d, err = resource.ParseDirection("")
	require.NoError(t, err)
	assert.Equal(t, resource.Ascending, d)

	_, err = resource.ParseDirection("sideways")
	assert.Error(t, err)
}
