package endpoint

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNotConfigured reports a (role, resource, action) triple with no route.
// It is a configuration defect, not a runtime condition.
var ErrNotConfigured = errors.New("no endpoint configured")

// Template is a resolved route. Pattern carries {id} for member actions.
type Template struct {
	Action  Action
	Method  string
	Pattern string
}

// Routes are the typed path builders of one (role, resource) pair.
type Routes struct {
	Role       Role
	Resource   Resource
	Collection Collection
	Member     Member
	actions    map[Action]bool
}

// Allows reports whether the action is routed.
func (r Routes) Allows(a Action) bool {
	return r.actions[a]
}

// Actions returns the routed actions in canonical order.
func (r Routes) Actions() []Action {
	out := make([]Action, 0, len(r.actions))
	for _, a := range Actions {
		if r.actions[a] {
			out = append(out, a)
		}
	}
	return out
}

// Path builds the concrete path for a, substituting id on member actions.
// It returns false when the action is not routed.
func (r Routes) Path(a Action, id string) (string, bool) {
	if !r.actions[a] {
		return "", false
	}
	if a.OnMember() {
		return r.Member.Path(id), true
	}
	return r.Collection.Path(), true
}

// Template returns the unsubstituted route for a.
func (r Routes) Template(a Action) (Template, bool) {
	if !r.actions[a] {
		return Template{}, false
	}
	pattern := r.Collection.Path()
	if a.OnMember() {
		pattern = r.Member.Pattern()
	}
	return Template{Action: a, Method: a.Method(), Pattern: pattern}, true
}

// Table maps roles and resources to routes. A Table is immutable once built
// and safe for concurrent reads.
type Table struct {
	routes map[Role]map[Resource]Routes
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{routes: make(map[Role]map[Resource]Routes)}
}

// Register adds routes for (role, res). memberPattern may be empty when no
// member action is listed.
func (t *Table) Register(role Role, res Resource, collectionPattern, memberPattern string, actions ...Action) error {
	if len(actions) == 0 {
		return fmt.Errorf("%s/%s: no actions", role, res)
	}

	routes := Routes{Role: role, Resource: res, actions: make(map[Action]bool, len(actions))}
	needCollection, needMember := false, false
	for _, a := range actions {
		routes.actions[a] = true
		if a.OnMember() {
			needMember = true
		} else {
			needCollection = true
		}
	}

	if needCollection {
		c, err := NewCollection(collectionPattern)
		if err != nil {
			return fmt.Errorf("%s/%s: %w", role, res, err)
		}
		routes.Collection = c
	}
	if needMember {
		m, err := NewMember(memberPattern)
		if err != nil {
			return fmt.Errorf("%s/%s: %w", role, res, err)
		}
		routes.Member = m
	}

	if t.routes[role] == nil {
		t.routes[role] = make(map[Resource]Routes)
	}
	t.routes[role][res] = routes
	return nil
}

// Routes returns the builders for (role, res).
func (t *Table) Routes(role Role, res Resource) (Routes, bool) {
	if t == nil {
		return Routes{}, false
	}
	r, ok := t.routes[role][res]
	return r, ok
}

// Resolve looks up the route for (role, res, action). An undefined
// combination returns false.
func (t *Table) Resolve(role Role, res Resource, action Action) (Template, bool) {
	r, ok := t.Routes(role, res)
	if !ok {
		return Template{}, false
	}
	return r.Template(action)
}

// Resources returns the resources routed for role, sorted by name.
func (t *Table) Resources(role Role) []Resource {
	if t == nil {
		return nil
	}
	out := make([]Resource, 0, len(t.routes[role]))
	for res := range t.routes[role] {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NotConfigured wraps ErrNotConfigured with the offending triple.
func NotConfigured(role Role, res Resource, action Action) error {
	return fmt.Errorf("%w: role=%s resource=%s action=%s", ErrNotConfigured, role, res, action)
}

var allActions = Actions

var readOnly = []Action{ActionList, ActionDetail}

// DefaultTable returns the portal's route table.
//
//	admin   every resource, all actions, under /admin/<res>/
//	tutor   courses (no delete), assignments, students (read), submissions (no create/delete)
//	student courses and tutors (read), assignments (read), submissions (read, create)
//	alumni  news, events, executives (read), donations (read, create), groups
func DefaultTable() *Table {
	t := NewTable()

	for _, res := range Resources {
		mustRegister(t, RoleAdmin, res, allActions...)
	}

	mustRegister(t, RoleTutor, Courses, ActionList, ActionDetail, ActionCreate, ActionUpdate)
	mustRegister(t, RoleTutor, Assignments, allActions...)
	mustRegister(t, RoleTutor, Students, readOnly...)
	mustRegister(t, RoleTutor, Submissions, ActionList, ActionDetail, ActionUpdate)

	mustRegister(t, RoleStudent, Courses, readOnly...)
	mustRegister(t, RoleStudent, Tutors, readOnly...)
	mustRegister(t, RoleStudent, Assignments, readOnly...)
	mustRegister(t, RoleStudent, Submissions, ActionList, ActionDetail, ActionCreate)

	mustRegister(t, RoleAlumni, News, readOnly...)
	mustRegister(t, RoleAlumni, Events, readOnly...)
	mustRegister(t, RoleAlumni, Executives, readOnly...)
	mustRegister(t, RoleAlumni, Donations, ActionList, ActionDetail, ActionCreate)
	mustRegister(t, RoleAlumni, Groups, allActions...)

	return t
}

// mustRegister registers the conventional /<role>/<res>/ and /<role>/<res>/{id}/ paths.
func mustRegister(t *Table, role Role, res Resource, actions ...Action) {
	collection := fmt.Sprintf("/%s/%s/", role, res)
	member := fmt.Sprintf("/%s/%s/{id}/", role, res)
	if err := t.Register(role, res, collection, member, actions...); err != nil {
		panic(err)
	}
}

// Resolve looks up (role, res, action) in the default table.
func Resolve(role Role, res Resource, action Action) (Template, bool) {
	return defaultTable.Resolve(role, res, action)
}

var defaultTable = DefaultTable()
