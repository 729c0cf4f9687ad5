package domain

import "time"

// Credentials is the login form payload. Login accepts an email or a username.
type Credentials struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Registration is the sign-up form payload.
type Registration struct {
	Username      string   `json:"username"`
	Email         string   `json:"email"`
	Password      string   `json:"password"`
	Password2     string   `json:"password2"`
	UserType      UserType `json:"user_type"`
	FirstName     string   `json:"first_name,omitempty"`
	LastName      string   `json:"last_name,omitempty"`
	TermsAccepted bool     `json:"terms_accepted"`
}

// ProfileUpdate is a partial update; nil fields are left untouched.
type ProfileUpdate struct {
	Username  *string `json:"username,omitempty"`
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Phone     *string `json:"phone,omitempty"`
}

type PasswordChange struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type PasswordResetConfirm struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// AuthResult is what the backend returns on login and registration.
type AuthResult struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

// StoredCredential is the persisted credential token of one instance,
// together with the user cached at the time it was issued.
type StoredCredential struct {
	ClientID  string    `json:"client_id"`
	Token     string    `json:"token"`
	User      *User     `json:"user"`
	UpdatedAt time.Time `json:"updated_at"`
}
