package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"jobboard-portal/internal/events"
)

// ClientCookieName mirrors the cookie the client-instance middleware reads.
const ClientCookieName = "portal_client"

// AssertStatusCode fails if the response status code doesn't match expected
func AssertStatusCode(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSONError fails if the response body doesn't carry the expected message
func AssertJSONError(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedMsg string) {
	t.Helper()
	AssertStatusCode(t, w, expectedStatus)

	body := w.Body.String()
	if !strings.Contains(body, expectedMsg) {
		t.Errorf("expected error message %q in response, got: %s", expectedMsg, body)
	}
}

// AssertCookie returns the named response cookie or fails the test
func AssertCookie(t *testing.T, w *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Errorf("expected cookie %q not found", name)
	return nil
}

// NewJSONRequest creates a new HTTP request with JSON body
func NewJSONRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = strings.NewReader(string(data))
	}
	req := httptest.NewRequest(method, url, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithClientCookie attaches the client instance cookie to req
func WithClientCookie(req *http.Request, clientID string) *http.Request {
	req.AddCookie(&http.Cookie{Name: ClientCookieName, Value: clientID})
	return req
}

// DecodeJSON decodes JSON response body into the given type
func DecodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var result T
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode JSON response: %v. Body: %s", err, w.Body.String())
	}
	return result
}

// WaitForEvent reads from sub until an event arrives or timeout passes
func WaitForEvent(t *testing.T, sub *events.Subscription, timeout time.Duration) events.Event {
	t.Helper()
	select {
	case e := <-sub.Events():
		return e
	case <-time.After(timeout):
		t.Fatalf("no event within %s", timeout)
		return events.Event{}
	}
}

// AssertNoEvent fails if sub delivers anything within wait
func AssertNoEvent(t *testing.T, sub *events.Subscription, wait time.Duration) {
	t.Helper()
	select {
	case e := <-sub.Events():
		t.Errorf("unexpected event %+v", e)
	case <-time.After(wait):
	}
}
