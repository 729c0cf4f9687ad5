package guard

import (
	"net/url"

	"jobboard-portal/internal/domain"
)

// Fixed destinations of guard redirects.
const (
	UnauthorizedPath   = "/unauthorized"
	AccountPendingPath = "/account-pending"
	VerifyEmailPath    = "/verify-email"
)

type Action string

const (
	ActionRender   Action = "render"
	ActionLoading  Action = "loading"
	ActionRedirect Action = "redirect"
)

type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonLoading              Reason = "loading"
	ReasonNotAuthenticated     Reason = "not_authenticated"
	ReasonAlreadyAuthenticated Reason = "already_authenticated"
	ReasonWrongUserType        Reason = "wrong_user_type"
	ReasonAccountPending       Reason = "account_pending"
	ReasonEmailNotVerified     Reason = "email_not_verified"
)

// Decision is the outcome of evaluating a policy.
type Decision struct {
	Action   Action `json:"action"`
	Location string `json:"location,omitempty"`
	Replace  bool   `json:"replace"`
	Reason   Reason `json:"reason,omitempty"`
}

// Evaluate applies p to the session for a navigation to requested. Checks
// run in a fixed order and the first that fails decides.
func Evaluate(s domain.Snapshot, p Policy, requested string) Decision {
	if s.Loading {
		return Decision{Action: ActionLoading, Reason: ReasonLoading}
	}

	authenticated := s.IsAuthenticated()

	if p.RequireAuth && !authenticated {
		return p.redirect(p.target(), ReasonNotAuthenticated, requested)
	}

	if !p.RequireAuth {
		if authenticated {
			return Decision{
				Action:   ActionRedirect,
				Location: domain.HomePath(s.User.UserType),
				Replace:  p.ReasonRedirects,
				Reason:   ReasonAlreadyAuthenticated,
			}
		}
		return Decision{Action: ActionRender}
	}

	if !p.allows(s.User.UserType) {
		return p.redirect(UnauthorizedPath, ReasonWrongUserType, "")
	}
	if p.RequireApproval && !s.IsApproved() {
		return p.redirect(AccountPendingPath, ReasonAccountPending, "")
	}
	if p.RequireEmailVerification && !s.IsEmailVerified() {
		return p.redirect(VerifyEmailPath, ReasonEmailNotVerified, "")
	}
	return Decision{Action: ActionRender}
}

func (p Policy) redirect(location string, reason Reason, from string) Decision {
	d := Decision{Action: ActionRedirect, Location: location, Reason: reason, Replace: p.ReasonRedirects}

	switch {
	case p.ReasonRedirects && (reason == ReasonNotAuthenticated || reason == ReasonWrongUserType):
		d.Location = appendQuery(location, "redirected=true&reason="+url.QueryEscape(string(reason)))
	case reason == ReasonNotAuthenticated && from != "":
		d.Location = appendQuery(location, "from="+url.QueryEscape(from))
	}
	return d
}

// appendQuery adds an encoded query to location, keeping any query and
// fragment it already has.
func appendQuery(location, query string) string {
	u, err := url.Parse(location)
	if err != nil {
		return location
	}
	if u.RawQuery != "" {
		u.RawQuery += "&" + query
	} else {
		u.RawQuery = query
	}
	return u.String()
}
