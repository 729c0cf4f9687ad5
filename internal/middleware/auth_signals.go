package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"jobboard-portal/internal/domain"
	"jobboard-portal/internal/events"
	"jobboard-portal/internal/observability"
)

const signalPublishTimeout = 2 * time.Second

// AuthSignals converts an unhandled 401 failure raised by a handler into a
// runtime_error signal for the instance and answers 401. Other panics keep
// propagating to the outer recoverer.
func AuthSignals(publisher events.Publisher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				err, ok := rec.(error)
				if !ok {
					panic(rec)
				}
				if status, ok := domain.StatusOf(err); !ok || status != http.StatusUnauthorized {
					panic(rec)
				}

				clientID, _ := GetClientID(r.Context())
				logger := observability.FromContext(r.Context())
				logger.Warn("unhandled unauthorized error",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()))

				if clientID != "" {
					ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), signalPublishTimeout)
					defer cancel()
					pubErr := publisher.Publish(ctx, events.Event{
						Kind:     events.KindRuntimeError,
						ClientID: clientID,
						Status:   http.StatusUnauthorized,
						Source:   "handler:" + r.URL.Path,
						At:       time.Now(),
					})
					if pubErr != nil {
						logger.Error("failed to publish auth signal", slog.String("error", pubErr.Error()))
					}
				}

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "Not authenticated"})
			}()

			next.ServeHTTP(w, r)
		})
	}
}
