package domain

import (
	"encoding/json"
	"strings"
)

// UserType is the role a job board account is registered with.
type UserType int

const (
	UserTypeUnknown UserType = iota
	Candidat
	Recruteur
	Prestataire
)

// AllUserTypes returns every known role.
func AllUserTypes() []UserType {
	return []UserType{Candidat, Recruteur, Prestataire}
}

// ParseUserType parses a role name case-insensitively.
func ParseUserType(s string) (UserType, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CANDIDAT":
		return Candidat, true
	case "RECRUTEUR":
		return Recruteur, true
	case "PRESTATAIRE":
		return Prestataire, true
	default:
		return UserTypeUnknown, false
	}
}

func (t UserType) String() string {
	switch t {
	case Candidat:
		return "CANDIDAT"
	case Recruteur:
		return "RECRUTEUR"
	case Prestataire:
		return "PRESTATAIRE"
	case UserTypeUnknown:
		return ""
	}
	return ""
}

// HomePath returns the landing page of a role.
func HomePath(t UserType) string {
	switch t {
	case Candidat:
		return "/candidat"
	case Recruteur:
		return "/recruteur/dashboard"
	case Prestataire:
		return "/prestataire/home"
	case UserTypeUnknown:
		return "/home"
	}
	return "/home"
}

func (t UserType) MarshalJSON() ([]byte, error) {
	if t == UserTypeUnknown {
		return []byte("null"), nil
	}
	return json.Marshal(t.String())
}

// UnmarshalJSON never fails on an unrecognised role; it decodes to
// UserTypeUnknown so that every role check fails closed.
func (t *UserType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*t = UserTypeUnknown
		return nil
	}
	*t, _ = ParseUserType(s)
	return nil
}

func (t UserType) MarshalYAML() (interface{}, error) {
	return t.String(), nil
}

func (t *UserType) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, ok := ParseUserType(s)
	if !ok {
		return &ValidationError{Fields: map[string]string{"user_type": "unknown user type " + s}}
	}
	*t = parsed
	return nil
}

// User is the account record cached for an authenticated instance.
// IsApproved and EmailVerified are nil when the backend omitted them.
type User struct {
	ID            string   `json:"id"`
	Username      string   `json:"username"`
	Email         string   `json:"email"`
	UserType      UserType `json:"user_type"`
	IsApproved    *bool    `json:"is_approved,omitempty"`
	EmailVerified *bool    `json:"email_verified,omitempty"`
	FirstName     string   `json:"first_name,omitempty"`
	LastName      string   `json:"last_name,omitempty"`
	Phone         string   `json:"phone,omitempty"`
}

// Clone returns a deep copy so callers never share the cached record.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.IsApproved != nil {
		v := *u.IsApproved
		c.IsApproved = &v
	}
	if u.EmailVerified != nil {
		v := *u.EmailVerified
		c.EmailVerified = &v
	}
	return &c
}

// Merge shallow-merges the set fields of patch into a copy of u.
func (u *User) Merge(patch *User) *User {
	if u == nil {
		return patch.Clone()
	}
	merged := u.Clone()
	if patch == nil {
		return merged
	}
	if patch.ID != "" {
		merged.ID = patch.ID
	}
	if patch.Username != "" {
		merged.Username = patch.Username
	}
	if patch.Email != "" {
		merged.Email = patch.Email
	}
	if patch.UserType != UserTypeUnknown {
		merged.UserType = patch.UserType
	}
	if patch.IsApproved != nil {
		v := *patch.IsApproved
		merged.IsApproved = &v
	}
	if patch.EmailVerified != nil {
		v := *patch.EmailVerified
		merged.EmailVerified = &v
	}
	if patch.FirstName != "" {
		merged.FirstName = patch.FirstName
	}
	if patch.LastName != "" {
		merged.LastName = patch.LastName
	}
	if patch.Phone != "" {
		merged.Phone = patch.Phone
	}
	return merged
}

// Bool returns a pointer to v, for building users in code.
func Bool(v bool) *bool {
	return &v
}
