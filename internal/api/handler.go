// Package api serves the dreamhouse REST, websocket and MCP surfaces.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/dreamhouse/internal/activity"
	"github.com/kalambet/dreamhouse/internal/capability"
	"github.com/kalambet/dreamhouse/internal/generation"
	"github.com/kalambet/dreamhouse/internal/pipeline"
	"github.com/kalambet/dreamhouse/internal/project"
	"github.com/kalambet/dreamhouse/internal/recolor"
	"github.com/kalambet/dreamhouse/internal/video"
)

const maxRequestBodySize = 1 << 20 // 1MB

type Deps struct {
	Controller *pipeline.Controller
	Projects   *project.Collection
	Broker     *project.Broker
	Videos     *video.Poller
	Recolor    *recolor.Recolorer
	Gate       *capability.Gate
	Activity   *activity.Log
	MediaDir   string       // optional; serves /media/* when set
	Metrics    http.Handler // optional
}

func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Post("/projects", handleSubmit(deps))
	r.Get("/projects", handleListProjects(deps))
	r.Get("/projects/{id}", handleGetProject(deps))
	r.Delete("/projects/{id}", handleDeleteProject(deps))
	r.Post("/projects/{id}/rooms/{index}/video", handleStartVideo(deps))
	r.Post("/projects/{id}/rooms/{index}/recolor", handleRecolor(deps))
	r.Get("/projects/{id}/ws", handleProjectEvents(deps))

	r.Get("/capability", handleCapability(deps))
	r.Post("/capability/probe", handleProbe(deps))
	r.Post("/capability/grant", handleGrant(deps))

	r.Get("/activity", handleActivity(deps))

	if deps.MediaDir != "" {
		r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(deps.MediaDir))))
	}

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// writeFailure maps domain errors onto HTTP statuses.
func writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, project.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
		return
	case errors.Is(err, recolor.ErrInProgress):
		httpError(w, http.StatusConflict, "conflict_error", "%v", err)
		return
	case generation.IsCredentialRejected(err):
		httpError(w, http.StatusUnauthorized, "credential_error", "%v", err)
		return
	}

	kind, ok := generation.KindOf(err)
	if !ok {
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
		return
	}
	switch kind {
	case generation.KindValidation:
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	default:
		httpError(w, http.StatusBadGateway, "api_error", "%v", err)
	}
}

func roomIndex(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "index")
	i, err := strconv.Atoi(raw)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("invalid room index %q", raw)
	}
	return i, nil
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
