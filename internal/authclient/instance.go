package authclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"jobboard-portal/internal/domain"
	"jobboard-portal/internal/events"
	"jobboard-portal/internal/observability"
)

// Instance is the auth client of a single client instance.
type Instance struct {
	client   *Client
	clientID string
}

func (i *Instance) ClientID() string {
	return i.clientID
}

// credential returns the stored credential, or nil when there is none or
// its token has expired.
func (i *Instance) credential(ctx context.Context) *domain.StoredCredential {
	cred, err := i.client.store.Get(ctx, i.clientID)
	if err != nil {
		if !errors.Is(err, domain.ErrCredentialNotFound) {
			observability.FromContext(ctx).Error("failed to read credential",
				"client_id", i.clientID,
				"error", err,
			)
		}
		return nil
	}
	if cred.Token == "" || tokenExpired(cred.Token, i.client.now()) {
		return nil
	}
	return cred
}

// Token returns the bearer token of the instance, or "" when there is none.
func (i *Instance) Token(ctx context.Context) string {
	if cred := i.credential(ctx); cred != nil {
		return cred.Token
	}
	return ""
}

func (i *Instance) IsAuthenticated(ctx context.Context) bool {
	return i.credential(ctx) != nil
}

func (i *Instance) GetCurrentUser(ctx context.Context) *domain.User {
	cred, err := i.client.store.Get(ctx, i.clientID)
	if err != nil {
		return nil
	}
	return cred.User
}

func (i *Instance) ClearAuthData(ctx context.Context) error {
	if err := i.client.store.Delete(ctx, i.clientID); err != nil && !errors.Is(err, domain.ErrCredentialNotFound) {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

func (i *Instance) Login(ctx context.Context, creds domain.Credentials) (*domain.AuthResult, error) {
	return i.authenticate(ctx, "login", PathLogin, creds)
}

func (i *Instance) Register(ctx context.Context, reg domain.Registration) (*domain.AuthResult, error) {
	return i.authenticate(ctx, "register", PathRegister, reg)
}

func (i *Instance) authenticate(ctx context.Context, endpoint, path string, body interface{}) (*domain.AuthResult, error) {
	resp, err := i.client.do(ctx, request{
		method:   http.MethodPost,
		path:     path,
		body:     body,
		endpoint: endpoint,
	})
	if err != nil {
		return nil, err
	}
	if resp.status >= http.StatusBadRequest {
		return nil, decodeAuthError(resp.status, resp.body)
	}

	var result domain.AuthResult
	if err := decodeJSON(resp.body, &result); err != nil {
		return nil, err
	}
	if result.Token == "" || result.User == nil {
		return nil, fmt.Errorf("%w: %s response without token or user", domain.ErrBackendUnavailable, endpoint)
	}

	if err := i.client.store.Put(ctx, &domain.StoredCredential{
		ClientID:  i.clientID,
		Token:     result.Token,
		User:      result.User,
		UpdatedAt: i.client.now(),
	}); err != nil {
		return nil, fmt.Errorf("failed to persist credential: %w", err)
	}
	return &result, nil
}

// Logout revokes the token remotely. Without a token it does nothing. A 401
// means the token was already dead, which is what logout wants.
func (i *Instance) Logout(ctx context.Context) error {
	return i.revoke(ctx, "logout", PathLogout)
}

func (i *Instance) LogoutAllSessions(ctx context.Context) error {
	return i.revoke(ctx, "logout_all", PathLogoutAll)
}

func (i *Instance) revoke(ctx context.Context, endpoint, path string) error {
	token := i.Token(ctx)
	if token == "" {
		return nil
	}
	resp, err := i.client.do(ctx, request{
		method:   http.MethodPost,
		path:     path,
		token:    token,
		endpoint: endpoint,
	})
	if err != nil {
		return err
	}
	if resp.status >= http.StatusBadRequest && resp.status != http.StatusUnauthorized {
		return decodeAuthError(resp.status, resp.body)
	}
	return nil
}

func (i *Instance) GetProfile(ctx context.Context) (*domain.User, error) {
	cred := i.credential(ctx)
	if cred == nil {
		return nil, domain.ErrUnauthorized
	}
	resp, err := i.client.do(ctx, request{
		method:   http.MethodGet,
		path:     PathProfile,
		token:    cred.Token,
		endpoint: "profile",
	})
	if err != nil {
		return nil, err
	}
	if err := i.checkAuthenticated(ctx, resp, PathProfile); err != nil {
		return nil, err
	}

	var user domain.User
	if err := decodeJSON(resp.body, &user); err != nil {
		return nil, err
	}
	i.cacheUser(ctx, cred, &user)
	return &user, nil
}

func (i *Instance) UpdateProfile(ctx context.Context, update domain.ProfileUpdate) (*domain.User, error) {
	cred := i.credential(ctx)
	if cred == nil {
		return nil, domain.ErrUnauthorized
	}
	resp, err := i.client.do(ctx, request{
		method:   http.MethodPatch,
		path:     PathProfile,
		body:     update,
		token:    cred.Token,
		endpoint: "profile_update",
	})
	if err != nil {
		return nil, err
	}
	if err := i.checkAuthenticated(ctx, resp, PathProfile); err != nil {
		return nil, err
	}

	var user domain.User
	if err := decodeJSON(resp.body, &user); err != nil {
		return nil, err
	}
	i.cacheUser(ctx, cred, cred.User.Merge(&user))
	return &user, nil
}

func (i *Instance) ChangePassword(ctx context.Context, change domain.PasswordChange) error {
	cred := i.credential(ctx)
	if cred == nil {
		return domain.ErrUnauthorized
	}
	resp, err := i.client.do(ctx, request{
		method:   http.MethodPost,
		path:     PathChangePassword,
		body:     change,
		token:    cred.Token,
		endpoint: "change_password",
	})
	if err != nil {
		return err
	}
	return i.checkAuthenticated(ctx, resp, PathChangePassword)
}

func (i *Instance) ResetPassword(ctx context.Context, email string) error {
	return i.anonymousForm(ctx, "password_reset", PathPasswordReset, map[string]string{"email": email})
}

func (i *Instance) ResetPasswordConfirm(ctx context.Context, confirm domain.PasswordResetConfirm) error {
	return i.anonymousForm(ctx, "password_reset_confirm", PathPasswordResetConfirm, confirm)
}

func (i *Instance) anonymousForm(ctx context.Context, endpoint, path string, body interface{}) error {
	resp, err := i.client.do(ctx, request{
		method:   http.MethodPost,
		path:     path,
		body:     body,
		endpoint: endpoint,
	})
	if err != nil {
		return err
	}
	if resp.status >= http.StatusBadRequest {
		return decodeAuthError(resp.status, resp.body)
	}
	return nil
}

// checkAuthenticated maps the response of a call made with the bearer token.
// A 401 is reported on the bus so the session gets invalidated.
func (i *Instance) checkAuthenticated(ctx context.Context, resp *response, path string) error {
	switch {
	case resp.status == http.StatusUnauthorized:
		i.signalUnauthorized(ctx, path)
		return domain.NewStatusError(http.StatusUnauthorized, domain.ErrUnauthorized)
	case resp.status >= http.StatusBadRequest:
		return decodeAuthError(resp.status, resp.body)
	}
	return nil
}

func (i *Instance) signalUnauthorized(ctx context.Context, path string) {
	if i.client.publisher == nil {
		return
	}
	err := i.client.publisher.Publish(ctx, events.Event{
		Kind:     events.KindFetchUnauthorized,
		ClientID: i.clientID,
		Status:   http.StatusUnauthorized,
		Source:   signalSourceTag + ":" + path,
	})
	if err != nil {
		observability.FromContext(ctx).Warn("failed to publish unauthorized signal",
			"client_id", i.clientID,
			"error", err,
		)
	}
}

func (i *Instance) cacheUser(ctx context.Context, cred *domain.StoredCredential, user *domain.User) {
	updated := *cred
	updated.User = user
	updated.UpdatedAt = i.client.now()
	if err := i.client.store.Put(ctx, &updated); err != nil {
		observability.FromContext(ctx).Warn("failed to cache refreshed user",
			"client_id", i.clientID,
			"error", err,
		)
	}
}
