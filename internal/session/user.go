package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/campus/portal/internal/endpoint"
)

// ID is a user id sent either as a JSON number or a string.
type ID string

// UnmarshalJSON accepts numbers and strings.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("user id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// User is the signed-in account as reported by the portal.
type User struct {
	ID        ID     `json:"id"`
	Email     string `json:"email"`
	Username  string `json:"username,omitempty"`
	Name      string `json:"name,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	RoleName  string `json:"role"`
}

// Role parses the account role. Unknown roles are an error so callers fail
// closed.
func (u *User) Role() (endpoint.Role, error) {
	return endpoint.ParseRole(u.RoleName)
}

// DashboardPath returns the landing route for the user's role.
func (u *User) DashboardPath() string {
	role, err := u.Role()
	if err != nil {
		return endpoint.DashboardPath("")
	}
	return endpoint.DashboardPath(role)
}

// DisplayName picks the best human-readable name.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	if full := strings.TrimSpace(u.FirstName + " " + u.LastName); full != "" {
		return full
	}
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}
