// Package guard decides, for each navigation, whether a view is rendered or
// the visitor is sent elsewhere. Decisions only read an already loaded
// session snapshot.
package guard

import (
	"fmt"
	"strings"

	"jobboard-portal/internal/domain"
)

const DefaultRedirectTarget = "/login"

// Policy is the access rule of one view.
type Policy struct {
	Name                     string
	RequireAuth              bool
	AllowedUserTypes         []domain.UserType
	RequireApproval          bool
	RequireEmailVerification bool
	RedirectTarget           string
	// ReasonRedirects switches redirects to the reason-code form
	// (?redirected=true&reason=...) delivered as a replace navigation.
	ReasonRedirects bool
}

type Option func(*Policy)

func WithName(name string) Option {
	return func(p *Policy) {
		p.Name = name
	}
}

func WithUserTypes(types ...domain.UserType) Option {
	return func(p *Policy) {
		p.AllowedUserTypes = append([]domain.UserType(nil), types...)
	}
}

func WithApproval() Option {
	return func(p *Policy) {
		p.RequireApproval = true
	}
}

func WithEmailVerification() Option {
	return func(p *Policy) {
		p.RequireEmailVerification = true
	}
}

func WithRedirectTarget(target string) Option {
	return func(p *Policy) {
		p.RedirectTarget = target
	}
}

func WithReasonRedirects() Option {
	return func(p *Policy) {
		p.ReasonRedirects = true
	}
}

// Protected is the generic role-gated guard. Anonymous visitors are sent to
// the login page with the requested location in ?from=.
func Protected(opts ...Option) Policy {
	p := Policy{
		Name:           "protected",
		RequireAuth:    true,
		RedirectTarget: DefaultRedirectTarget,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// PublicOnly guards login and registration pages: authenticated users are
// sent to their home.
func PublicOnly() Policy {
	return Policy{Name: "public-only", RedirectTarget: DefaultRedirectTarget}
}

func CandidateOnly() Policy {
	return Protected(WithName("candidate-only"), WithUserTypes(domain.Candidat), WithReasonRedirects())
}

func ProviderOnly() Policy {
	return Protected(WithName("provider-only"), WithUserTypes(domain.Prestataire), WithReasonRedirects())
}

// Authenticated admits any signed-in user.
func Authenticated() Policy {
	return Protected(WithName("authenticated"), WithReasonRedirects())
}

// Preset returns a named built-in policy.
func Preset(name string) (Policy, error) {
	switch strings.ToLower(name) {
	case "protected":
		return Protected(), nil
	case "public-only":
		return PublicOnly(), nil
	case "candidate-only":
		return CandidateOnly(), nil
	case "provider-only":
		return ProviderOnly(), nil
	case "authenticated":
		return Authenticated(), nil
	}
	return Policy{}, fmt.Errorf("unknown policy preset %q", name)
}

func (p Policy) allows(t domain.UserType) bool {
	if len(p.AllowedUserTypes) == 0 {
		return true
	}
	for _, allowed := range p.AllowedUserTypes {
		if allowed == t && t != domain.UserTypeUnknown {
			return true
		}
	}
	return false
}

func (p Policy) target() string {
	if p.RedirectTarget == "" {
		return DefaultRedirectTarget
	}
	return p.RedirectTarget
}
