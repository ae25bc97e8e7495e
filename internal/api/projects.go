package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/dreamhouse/internal/design"
	"github.com/kalambet/dreamhouse/internal/project"
)

// ProjectResponse is a project snapshot with its session state.
type ProjectResponse struct {
	Project    design.Project    `json:"project"`
	Committed  bool              `json:"committed"`
	Recoloring *int              `json:"recoloring,omitempty"`
	Progress   *project.Progress `json:"progress,omitempty"`
}

type RecolorRequest struct {
	Directive string `json:"directive"`
	Palette   string `json:"palette"`
}

func handleSubmit(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var prefs design.Preferences
		if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if r.URL.Query().Get("wait") == "true" {
			p, err := deps.Controller.Submit(r.Context(), prefs)
			if err != nil {
				writeFailure(w, err)
				return
			}
			writeJSON(w, http.StatusOK, projectResponse(deps, p))
			return
		}

		run, err := deps.Controller.Start(r.Context(), prefs)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, projectResponse(deps, run.Skeleton))
	}
}

func handleListProjects(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projects := deps.Projects.List()
		if limit := parseIntParam(r, "limit", 0, 0); limit > 0 && len(projects) > limit {
			projects = projects[:limit]
		}
		writeJSON(w, http.StatusOK, projects)
	}
}

func handleGetProject(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Projects.Get(chi.URLParam(r, "id"))
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, projectResponse(deps, p))
	}
}

func handleDeleteProject(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Projects.Delete(chi.URLParam(r, "id")); err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleStartVideo(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		index, err := roomIndex(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		attempt, err := deps.Videos.Start(r.Context(), chi.URLParam(r, "id"), index)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, projectResponse(deps, attempt.Project))
	}
}

func handleRecolor(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		index, err := roomIndex(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()
		var req RecolorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		directive := req.Directive
		if strings.TrimSpace(directive) == "" {
			directive = req.Palette
		}

		p, err := deps.Recolor.Recolor(r.Context(), chi.URLParam(r, "id"), index, directive)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, projectResponse(deps, p))
	}
}

func projectResponse(deps Deps, p design.Project) ProjectResponse {
	resp := ProjectResponse{
		Project:   p,
		Committed: deps.Projects.Committed(p.ID),
	}
	if deps.Recolor != nil {
		if i, ok := deps.Recolor.InFlight(p.ID); ok {
			resp.Recoloring = &i
		}
	}
	if deps.Controller != nil && deps.Controller.Active() == p.ID {
		if prog, ok := deps.Controller.CurrentProgress(); ok {
			resp.Progress = &prog
		}
	}
	return resp
}
