// Package endpoint maps (role, resource, action) to the portal REST path that
// serves it. The table is static; an absent entry is reported explicitly and
// never guessed.
package endpoint

import (
	"fmt"
	"net/http"
	"strings"
)

// Role is the access-control classification of the signed-in user.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTutor   Role = "tutor"
	RoleStudent Role = "student"
	RoleAlumni  Role = "alumni"
)

// Roles lists every known role.
var Roles = []Role{RoleAdmin, RoleTutor, RoleStudent, RoleAlumni}

// ParseRole validates a role name. Matching is case-insensitive.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Roles {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Resource is a server-managed record category.
type Resource string

const (
	Tutors      Resource = "tutors"
	Students    Resource = "students"
	Courses     Resource = "courses"
	Assignments Resource = "assignments"
	Submissions Resource = "submissions"
	News        Resource = "news"
	Events      Resource = "events"
	Donations   Resource = "donations"
	Executives  Resource = "executives"
	Groups      Resource = "groups"
	Finances    Resource = "finances"
)

// Resources lists every known resource type.
var Resources = []Resource{
	Tutors, Students, Courses, Assignments, Submissions,
	News, Events, Donations, Executives, Groups, Finances,
}

// ParseResource validates a resource type name.
func ParseResource(s string) (Resource, error) {
	r := Resource(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Resources {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown resource type %q", s)
}

// Action is one of the five CRUD verbs a route table can expose.
type Action string

const (
	ActionList   Action = "list"
	ActionDetail Action = "detail"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Actions lists every action.
var Actions = []Action{ActionList, ActionDetail, ActionCreate, ActionUpdate, ActionDelete}

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Actions {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Method returns the HTTP method used for the action.
func (a Action) Method() string {
	switch a {
	case ActionCreate:
		return http.MethodPost
	case ActionUpdate:
		return http.MethodPatch
	case ActionDelete:
		return http.MethodDelete
	default:
		return http.MethodGet
	}
}

// OnMember reports whether the action addresses a single item by id.
func (a Action) OnMember() bool {
	return a == ActionDetail || a == ActionUpdate || a == ActionDelete
}
