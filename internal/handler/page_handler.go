package handler

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"jobboard-portal/internal/middleware"
	"jobboard-portal/internal/observability"
)

//go:embed templates/shell.html
var templateFS embed.FS

var shellTemplate = template.Must(template.ParseFS(templateFS, "templates/shell.html"))

type shellData struct {
	Title      string
	APIBase    string
	SocketPath string
	AssetBase  string
	Session    SessionResponse
}

// PageHandler serves the single page application shell with the session
// of the instance embedded, so the page starts without a round trip.
type PageHandler struct {
	title     string
	assetBase string
}

func NewPageHandler(title, assetBase string) *PageHandler {
	return &PageHandler{title: title, assetBase: assetBase}
}

// Shell renders the page shell. Route guarding happens before it.
func (h *PageHandler) Shell(w http.ResponseWriter, r *http.Request) {
	m, ok := middleware.GetManager(r.Context())
	if !ok {
		http.Error(w, "Session unavailable", http.StatusServiceUnavailable)
		return
	}

	var buf bytes.Buffer
	err := shellTemplate.Execute(&buf, shellData{
		Title:      h.title,
		APIBase:    "/api/v1",
		SocketPath: "/ws/session",
		AssetBase:  h.assetBase,
		Session:    newSessionResponse(m.Snapshot()),
	})
	if err != nil {
		observability.FromContext(r.Context()).Error("failed to render page shell", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
