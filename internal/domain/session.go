package domain

// State is the lifecycle position of an instance's session.
type State int

const (
	StateUnknown State = iota
	StateAuthenticated
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	}
	return "unknown"
}

// Snapshot is an immutable copy of the session held for one instance.
type Snapshot struct {
	User    *User `json:"user"`
	Loading bool  `json:"loading"`
}

// IsAuthenticated is derived from the user so the two cannot diverge.
func (s Snapshot) IsAuthenticated() bool {
	return s.User != nil
}

func (s Snapshot) State() State {
	switch {
	case s.User != nil:
		return StateAuthenticated
	case s.Loading:
		return StateUnknown
	default:
		return StateAnonymous
	}
}

// HasUserType compares the user's role against name case-insensitively.
func (s Snapshot) HasUserType(name string) bool {
	if s.User == nil {
		return false
	}
	t, ok := ParseUserType(name)
	return ok && s.User.UserType == t
}

func (s Snapshot) HasAnyUserType(names ...string) bool {
	for _, name := range names {
		if s.HasUserType(name) {
			return true
		}
	}
	return false
}

// HasRole is the typed form of HasUserType.
func (s Snapshot) HasRole(types ...UserType) bool {
	if s.User == nil || s.User.UserType == UserTypeUnknown {
		return false
	}
	for _, t := range types {
		if s.User.UserType == t {
			return true
		}
	}
	return false
}

// IsApproved is true only when the backend explicitly sent is_approved=true.
func (s Snapshot) IsApproved() bool {
	return s.User != nil && s.User.IsApproved != nil && *s.User.IsApproved
}

// IsEmailVerified is true only when the backend explicitly sent email_verified=true.
func (s Snapshot) IsEmailVerified() bool {
	return s.User != nil && s.User.EmailVerified != nil && *s.User.EmailVerified
}
