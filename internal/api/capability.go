package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kalambet/dreamhouse/internal/capability"
)

type GrantRequest struct {
	Key string `json:"key"`
}

type capabilityResponse struct {
	State     capability.State `json:"state"`
	Available bool             `json:"available"`
}

func capabilityState(g *capability.Gate) capabilityResponse {
	s := g.State()
	return capabilityResponse{State: s, Available: s == capability.StateAvailable}
}

func handleCapability(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, capabilityState(deps.Gate))
	}
}

func handleProbe(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := deps.Gate.Probe(r.Context()); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "probing capability: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, capabilityState(deps.Gate))
	}
}

func handleGrant(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req GrantRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Key) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "key is required")
			return
		}

		ctx := capability.WithCredential(r.Context(), req.Key)
		if err := deps.Gate.RequestGrant(ctx); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, capabilityState(deps.Gate))
	}
}

func handleActivity(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := deps.Activity.Recent()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read activity: %v", err)
			return
		}
		if limit := parseIntParam(r, "limit", 0, 0); limit > 0 && len(entries) > limit {
			entries = entries[:limit]
		}
		writeJSON(w, http.StatusOK, entries)
	}
}
