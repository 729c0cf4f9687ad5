package middleware

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"jobboard-portal/internal/domain"
	"jobboard-portal/internal/session"
	"jobboard-portal/internal/testutil"
)

// newTestManager returns an initialized manager, authenticated as user when
// user is non-nil.
func newTestManager(t *testing.T, user *domain.User) *session.Manager {
	t.Helper()
	client := testutil.NewMockAuthClient()
	if user != nil {
		client.WithStoredCredential(testutil.NewTestToken(), user)
	}
	m := session.NewManager(testutil.NewClientID(), client, nil)
	require.NoError(t, m.CheckAuthState(context.Background()))
	return m
}

func withManager(r *http.Request, m *session.Manager) *http.Request {
	return r.WithContext(WithManager(r.Context(), m))
}

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}
