package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"jobboard-portal/internal/domain"
	"jobboard-portal/internal/middleware"
	"jobboard-portal/internal/session"
	"jobboard-portal/internal/testutil"
)

// newTestManager returns an initialized manager over client, authenticated
// when client holds a stored credential.
func newTestManager(t *testing.T, client *testutil.MockAuthClient) *session.Manager {
	t.Helper()
	m := session.NewManager(testutil.NewClientID(), client, nil)
	require.NoError(t, m.CheckAuthState(context.Background()))
	return m
}

func authenticatedClient(user *domain.User) *testutil.MockAuthClient {
	return testutil.NewMockAuthClient().WithStoredCredential(testutil.NewTestToken(), user)
}

func withManager(r *http.Request, m *session.Manager) *http.Request {
	return r.WithContext(middleware.WithManager(r.Context(), m))
}
