package handler

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"jobboard-portal/internal/events"
	"jobboard-portal/internal/middleware"
	"jobboard-portal/internal/observability"
)

// TokenSource hands out the bearer token stored for an instance.
type TokenSource interface {
	Token(ctx context.Context, clientID string) string
}

// BackendProxy forwards page data requests to the REST backend with the
// instance's bearer token. The browser never sees the token; a 401 from the
// backend is reported as fetch_unauthorized.
type BackendProxy struct {
	prefix    string
	tokens    TokenSource
	publisher events.Publisher
	proxy     *httputil.ReverseProxy
}

func NewBackendProxy(target *url.URL, prefix string, tokens TokenSource, publisher events.Publisher) *BackendProxy {
	p := &BackendProxy{
		prefix:    strings.TrimSuffix(prefix, "/"),
		tokens:    tokens,
		publisher: publisher,
	}
	p.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = strings.TrimPrefix(pr.In.URL.Path, p.prefix)
			pr.Out.URL.RawPath = ""
			if pr.Out.URL.Path == "" {
				pr.Out.URL.Path = "/"
			}
			pr.SetURL(target)
			pr.SetXForwarded()

			pr.Out.Header.Del("Cookie")
			pr.Out.Header.Del("Authorization")
			pr.Out.Header.Del("X-CSRF-Token")

			if clientID, ok := middleware.GetClientID(pr.In.Context()); ok {
				if token := p.tokens.Token(pr.In.Context(), clientID); token != "" {
					pr.Out.Header.Set("Authorization", "Bearer "+token)
				}
			}
		},
		ModifyResponse: p.inspect,
		ErrorHandler:   p.fail,
	}
	return p
}

func (p *BackendProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.proxy.ServeHTTP(w, r)
}

func (p *BackendProxy) inspect(resp *http.Response) error {
	resp.Header.Del("Set-Cookie")
	if resp.StatusCode != http.StatusUnauthorized {
		return nil
	}

	clientID, ok := middleware.GetClientID(resp.Request.Context())
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(resp.Request.Context()), signalTimeout)
	defer cancel()

	err := p.publisher.Publish(ctx, events.Event{
		Kind:     events.KindFetchUnauthorized,
		ClientID: clientID,
		Status:   http.StatusUnauthorized,
		Source:   "proxy:" + resp.Request.URL.Path,
		At:       time.Now(),
	})
	if err != nil {
		observability.FromContext(resp.Request.Context()).Error("failed to publish fetch_unauthorized",
			"error", err,
		)
	}
	return nil
}

func (p *BackendProxy) fail(w http.ResponseWriter, r *http.Request, err error) {
	observability.FromContext(r.Context()).Error("backend proxy failed",
		"path", r.URL.Path,
		"error", err,
	)
	writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: "Backend unavailable"})
}
