package identity

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Role represents the portal role of a signed-in user
type Role string

const (
	RoleAdmin       Role = "admin"       // Manages users, records and reports
	RoleCoordinator Role = "coordinator" // Manages records and reports in the field
	RoleStaff       Role = "staff"       // Read-mostly field staff
)

// Roles lists every known role
var Roles = []Role{RoleAdmin, RoleCoordinator, RoleStaff}

// ParseRole maps a remote role string onto a known Role.
// Anything unrecognised becomes RoleStaff, the most restrictive role.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleCoordinator:
		return RoleCoordinator
	default:
		return RoleStaff
	}
}

func (r Role) String() string {
	return string(r)
}

// Home returns the landing destination for the role
func Home(r Role) string {
	switch r {
	case RoleAdmin:
		return "/admin"
	case RoleCoordinator:
		return "/coordinator"
	default:
		return "/staff"
	}
}

// Identity is the authenticated user's profile as returned by the remote profile endpoint
type Identity struct {
	ID          string `json:"id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"full_name,omitempty"`
	Role        Role   `json:"role"`
	Email       string `json:"email,omitempty"`
	IsActive    bool   `json:"is_active"`
}

// Name is what the dashboards greet the user with
func (i *Identity) Name() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	return i.Username
}

func (i *Identity) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

// UnmarshalJSON accepts numeric or string ids and normalises the role.
func (i *Identity) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          json.RawMessage `json:"id"`
		Username    string          `json:"username"`
		DisplayName string          `json:"full_name"`
		Role        string          `json:"role"`
		Email       string          `json:"email"`
		IsActive    *bool           `json:"is_active"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	id, err := rawID(raw.ID)
	if err != nil {
		return err
	}

	*i = Identity{
		ID:          id,
		Username:    raw.Username,
		DisplayName: raw.DisplayName,
		Role:        ParseRole(raw.Role),
		Email:       raw.Email,
		IsActive:    raw.IsActive == nil || *raw.IsActive,
	}
	return nil
}

func rawID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	return n.String(), nil
}
