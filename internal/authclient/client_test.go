package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobboard-portal/internal/domain"
	"jobboard-portal/internal/events"
	"jobboard-portal/internal/session"
	"jobboard-portal/internal/testutil"
)

var _ session.AuthClient = (*Instance)(nil)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "42",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type fixture struct {
	server *httptest.Server
	repo   *testutil.MockCredentialRepository
	pub    *testutil.RecordingPublisher
	client *Client
}

func newFixture(t *testing.T, handler http.HandlerFunc) *fixture {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	repo := testutil.NewMockCredentialRepository()
	pub := &testutil.RecordingPublisher{}
	return &fixture{
		server: server,
		repo:   repo,
		pub:    pub,
		client: NewClient(server.URL, repo, pub, WithBackoff(time.Millisecond)),
	}
}

func TestInstance_Login(t *testing.T) {
	t.Run("success_persists_credential", func(t *testing.T) {
		f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, PathLogin, r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)

			var creds domain.Credentials
			require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
			assert.Equal(t, "ada@example.com", creds.Login)

			writeJSON(w, http.StatusOK, map[string]interface{}{
				"token": "opaque-token",
				"user": map[string]interface{}{
					"id":          "42",
					"username":    "ada",
					"email":       "ada@example.com",
					"user_type":   "RECRUTEUR",
					"is_approved": true,
				},
			})
		})
		inst := f.client.Instance("tab-1")

		result, err := inst.Login(context.Background(), domain.Credentials{Login: "ada@example.com", Password: "secret1"})

		require.NoError(t, err)
		assert.Equal(t, domain.Recruteur, result.User.UserType)
		assert.True(t, inst.IsAuthenticated(context.Background()))
		assert.Equal(t, "opaque-token", inst.Token(context.Background()))
		assert.Equal(t, "42", inst.GetCurrentUser(context.Background()).ID)
		assert.Contains(t, f.repo.Credentials, "tab-1")
	})

	t.Run("rejection_decodes_field_errors", func(t *testing.T) {
		f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"non_field_errors": []string{"Identifiants invalides"},
			})
		})
		inst := f.client.Instance("tab-1")

		_, err := inst.Login(context.Background(), domain.Credentials{Login: "ada", Password: "wrong1"})

		var authErr *domain.AuthError
		require.True(t, errors.As(err, &authErr))
		assert.Equal(t, http.StatusBadRequest, authErr.Status)
		assert.Equal(t, "Identifiants invalides", authErr.Error())
		assert.False(t, inst.IsAuthenticated(context.Background()))
		assert.Empty(t, f.pub.Published(), "a rejected login is not an auth-error signal")
	})

	t.Run("server_error_is_backend_unavailable", func(t *testing.T) {
		var calls atomic.Int32
		f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		})

		_, err := f.client.Instance("tab-1").Login(context.Background(), domain.Credentials{Login: "a", Password: "secret1"})

		assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
		assert.Equal(t, int32(1), calls.Load(), "POST is not retried")
	})

	t.Run("transport_error_is_backend_unavailable", func(t *testing.T) {
		repo := testutil.NewMockCredentialRepository()
		c := NewClient("http://127.0.0.1:1", repo, nil)

		_, err := c.Instance("tab").Login(context.Background(), domain.Credentials{Login: "a", Password: "secret1"})

		assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
	})
}

func TestInstance_Register(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		var reg map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reg))
		assert.Equal(t, "PRESTATAIRE", reg["user_type"])

		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"email":    []string{"Un utilisateur avec cet email existe déjà."},
			"username": "Nom déjà pris",
		})
	})

	_, err := f.client.Instance("tab").Register(context.Background(), testutil.NewTestRegistration(domain.Prestataire))

	var authErr *domain.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, []string{"Un utilisateur avec cet email existe déjà."}, authErr.Fields["email"])
	assert.Equal(t, []string{"Nom déjà pris"}, authErr.Fields["username"])
}

func TestInstance_GetProfile(t *testing.T) {
	t.Run("retries_then_caches_user", func(t *testing.T) {
		var calls atomic.Int32
		f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{"id": "42", "username": "ada", "user_type": "CANDIDAT", "email_verified": true})
		})
		require.NoError(t, f.repo.Put(context.Background(), testutil.NewTestCredential(
			testutil.WithClientID("tab"), testutil.WithToken("tok"))))
		inst := f.client.Instance("tab")

		user, err := inst.GetProfile(context.Background())

		require.NoError(t, err)
		assert.Equal(t, int32(3), calls.Load())
		assert.True(t, *user.EmailVerified)
		assert.Equal(t, "ada", inst.GetCurrentUser(context.Background()).Username)
	})

	t.Run("gives_up_after_three_attempts", func(t *testing.T) {
		var calls atomic.Int32
		f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		})
		require.NoError(t, f.repo.Put(context.Background(), testutil.NewTestCredential(testutil.WithClientID("tab"))))

		_, err := f.client.Instance("tab").GetProfile(context.Background())

		assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("unauthorized_publishes_signal", func(t *testing.T) {
		f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token invalide"})
		})
		require.NoError(t, f.repo.Put(context.Background(), testutil.NewTestCredential(testutil.WithClientID("tab"))))

		_, err := f.client.Instance("tab").GetProfile(context.Background())

		assert.ErrorIs(t, err, domain.ErrUnauthorized)
		status, ok := domain.StatusOf(err)
		assert.True(t, ok)
		assert.Equal(t, http.StatusUnauthorized, status)

		published := f.pub.Published()
		require.Len(t, published, 1)
		assert.Equal(t, events.KindFetchUnauthorized, published[0].Kind)
		assert.Equal(t, "tab", published[0].ClientID)
	})

	t.Run("without_token_skips_network", func(t *testing.T) {
		f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("unexpected request")
		})

		_, err := f.client.Instance("tab").GetProfile(context.Background())

		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})
}

func TestInstance_UpdateProfile(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]interface{}{"phone": "0601"}, body)
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": "42", "phone": "0601"})
	})
	cached := testutil.NewTestUser(testutil.WithUserID("42"), testutil.WithName("Ada", "Lovelace"))
	require.NoError(t, f.repo.Put(context.Background(), testutil.NewTestCredential(
		testutil.WithClientID("tab"), testutil.WithCredentialUser(cached))))
	inst := f.client.Instance("tab")

	phone := "0601"
	_, err := inst.UpdateProfile(context.Background(), domain.ProfileUpdate{Phone: &phone})

	require.NoError(t, err)
	user := inst.GetCurrentUser(context.Background())
	assert.Equal(t, "0601", user.Phone)
	assert.Equal(t, "Ada", user.FirstName)
}

func TestInstance_Logout(t *testing.T) {
	t.Run("no_token_is_noop", func(t *testing.T) {
		f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("unexpected request")
		})
		assert.NoError(t, f.client.Instance("tab").Logout(context.Background()))
	})

	t.Run("dead_token_is_success", func(t *testing.T) {
		f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, PathLogoutAll, r.URL.Path)
			w.WriteHeader(http.StatusUnauthorized)
		})
		require.NoError(t, f.repo.Put(context.Background(), testutil.NewTestCredential(testutil.WithClientID("tab"))))

		assert.NoError(t, f.client.Instance("tab").LogoutAllSessions(context.Background()))
		assert.Empty(t, f.pub.Published())
	})

	t.Run("clear_removes_credential", func(t *testing.T) {
		f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {})
		require.NoError(t, f.repo.Put(context.Background(), testutil.NewTestCredential(testutil.WithClientID("tab"))))
		inst := f.client.Instance("tab")

		require.NoError(t, inst.ClearAuthData(context.Background()))
		require.NoError(t, inst.ClearAuthData(context.Background()))

		assert.False(t, inst.IsAuthenticated(context.Background()))
		assert.Nil(t, inst.GetCurrentUser(context.Background()))
	})
}

func TestInstance_PasswordFlows(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case PathPasswordReset:
			writeJSON(w, http.StatusOK, map[string]string{"message": "sent"})
		case PathPasswordResetConfirm:
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Lien expiré"})
		case PathChangePassword:
			writeJSON(w, http.StatusBadRequest, map[string][]string{"old_password": {"Mot de passe incorrect"}})
		}
	})
	require.NoError(t, f.repo.Put(context.Background(), testutil.NewTestCredential(testutil.WithClientID("tab"))))
	inst := f.client.Instance("tab")

	assert.NoError(t, inst.ResetPassword(context.Background(), "ada@example.com"))

	err := inst.ResetPasswordConfirm(context.Background(), domain.PasswordResetConfirm{Token: "t", NewPassword: "secret123"})
	assert.EqualError(t, err, "Lien expiré")

	err = inst.ChangePassword(context.Background(), domain.PasswordChange{OldPassword: "bad", NewPassword: "secret123"})
	var authErr *domain.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, []string{"Mot de passe incorrect"}, authErr.Fields["old_password"])
}

func TestInstance_ExpiredJWTCountsAsAbsent(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.client.now = func() time.Time { return now }

	require.NoError(t, f.repo.Put(context.Background(), testutil.NewTestCredential(
		testutil.WithClientID("expired"), testutil.WithToken(signedToken(t, now.Add(-time.Minute))))))
	require.NoError(t, f.repo.Put(context.Background(), testutil.NewTestCredential(
		testutil.WithClientID("valid"), testutil.WithToken(signedToken(t, now.Add(time.Hour))))))

	assert.False(t, f.client.Instance("expired").IsAuthenticated(context.Background()))
	assert.Empty(t, f.client.Instance("expired").Token(context.Background()))
	assert.True(t, f.client.Instance("valid").IsAuthenticated(context.Background()))
}

func TestDecodeAuthError(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
		fields  map[string][]string
	}{
		{"detail", `{"detail":"Non autorisé"}`, "Non autorisé", map[string][]string{}},
		{"message", `{"message":"Compte suspendu"}`, "Compte suspendu", map[string][]string{}},
		{"fields", `{"password":["Trop court"]}`, "", map[string][]string{"password": {"Trop court"}}},
		{"plain_text", `Bad Request`, "Bad Request", map[string][]string{}},
		{"empty", ``, "Bad Request", map[string][]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := decodeAuthError(http.StatusBadRequest, []byte(tt.body))
			assert.Equal(t, tt.message, err.Message)
			assert.Equal(t, tt.fields, err.Fields)
		})
	}
}

func TestClient_Ping(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	assert.NoError(t, f.client.Ping(context.Background()))

	down := NewClient("http://127.0.0.1:1", f.repo, nil)
	assert.ErrorIs(t, down.Ping(context.Background()), domain.ErrBackendUnavailable)
}
