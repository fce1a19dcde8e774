package endpoint

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// idPlaceholder is the single substitution point of a member pattern.
const idPlaceholder = "{id}"

// Collection is a path with no placeholder, used by list and create.
type Collection struct {
	pattern string
}

// NewCollection validates a collection pattern.
func NewCollection(pattern string) (Collection, error) {
	if err := checkPattern(pattern); err != nil {
		return Collection{}, err
	}
	if strings.Contains(pattern, "{") || strings.Contains(pattern, "}") {
		return Collection{}, fmt.Errorf("collection pattern %q must not contain placeholders", pattern)
	}
	return Collection{pattern: pattern}, nil
}

// Path returns the collection path.
func (c Collection) Path() string {
	return c.pattern
}

// IsZero reports whether the collection is unset.
func (c Collection) IsZero() bool {
	return c.pattern == ""
}

// Member is a path with exactly one {id}, used by detail, update and delete.
type Member struct {
	prefix string
	suffix string
}

// NewMember validates a member pattern such as "/admin/news/{id}/".
func NewMember(pattern string) (Member, error) {
	if err := checkPattern(pattern); err != nil {
		return Member{}, err
	}
	if n := strings.Count(pattern, idPlaceholder); n != 1 {
		return Member{}, fmt.Errorf("member pattern %q must contain exactly one %s, found %d", pattern, idPlaceholder, n)
	}
	prefix, suffix, _ := strings.Cut(pattern, idPlaceholder)
	if strings.ContainsAny(prefix, "{}") || strings.ContainsAny(suffix, "{}") {
		return Member{}, fmt.Errorf("member pattern %q has an unknown placeholder", pattern)
	}
	return Member{prefix: prefix, suffix: suffix}, nil
}

// MustMember is NewMember for static tables. It panics on a malformed pattern.
func MustMember(pattern string) Member {
	m, err := NewMember(pattern)
	if err != nil {
		panic(err)
	}
	return m
}

// MustCollection is NewCollection for static tables. It panics on a malformed pattern.
func MustCollection(pattern string) Collection {
	c, err := NewCollection(pattern)
	if err != nil {
		panic(err)
	}
	return c
}

// ErrInvalidID reports an id that cannot address a member path.
var ErrInvalidID = errors.New("invalid item id")

// CheckID rejects ids that would not name a single member once substituted:
// the empty id and the dot segments, which url.PathEscape leaves intact and
// servers resolve against the parent path.
func CheckID(id string) error {
	switch strings.TrimSpace(id) {
	case "":
		return fmt.Errorf("%w: empty", ErrInvalidID)
	case ".", "..":
		return fmt.Errorf("%w: %q is a dot segment", ErrInvalidID, id)
	}
	return nil
}

// Path substitutes id, path-escaped. Callers validate id with CheckID.
func (m Member) Path(id string) string {
	return m.prefix + url.PathEscape(id) + m.suffix
}

// Pattern returns the unsubstituted pattern.
func (m Member) Pattern() string {
	if m.IsZero() {
		return ""
	}
	return m.prefix + idPlaceholder + m.suffix
}

// IsZero reports whether the member is unset.
func (m Member) IsZero() bool {
	return m.prefix == "" && m.suffix == ""
}

func checkPattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("empty path pattern")
	}
	if !strings.HasPrefix(pattern, "/") {
		return fmt.Errorf("path pattern %q must start with /", pattern)
	}
	if strings.ContainsAny(pattern, "?#") {
		return fmt.Errorf("path pattern %q must not carry a query or fragment", pattern)
	}
	return nil
}
