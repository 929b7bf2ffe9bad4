// Package api exposes the evaluation engine over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kazmin/rubrica/internal/config"
	"github.com/kazmin/rubrica/internal/evalstore"
	"github.com/kazmin/rubrica/internal/llm"
	"github.com/kazmin/rubrica/internal/standard"
)

const maxRequestBodySize = 10 << 20 // 10MB; article bodies can be large

// ModelLister lists the models the scoring endpoint serves.
type ModelLister interface {
	ListModels(ctx context.Context) ([]llm.Model, error)
}

// StandardGenerator drafts a rubric from a topic.
type StandardGenerator interface {
	Generate(ctx context.Context, topic string, criteria, levels int) (standard.Standard, error)
}

type Deps struct {
	Standards *standard.Repository
	Evals     *evalstore.Store
	Runs      *RunRegistry
	Models    ModelLister
	Generator StandardGenerator
	LLM       config.LLMConfig
}

// NewHandler returns the REST API handler.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Get("/v1/models", handleModels(deps))

	r.Get("/standards", handleListStandards(deps))
	r.Post("/standards", handleSaveStandard(deps))
	r.Post("/standards/generate", handleGenerateStandard(deps))
	r.Get("/standards/{id}", handleGetStandard(deps))
	r.Delete("/standards/{id}", handleDeleteStandard(deps))

	r.Post("/runs", handleStartRun(deps))
	r.Get("/runs/{id}", handleGetRun(deps))
	r.Post("/runs/{id}/cancel", handleCancelRun(deps))

	r.Get("/groups", handleListGroups(deps))
	r.Get("/groups/{id}", handleGetGroup(deps))
	r.Delete("/groups/{id}", handleDeleteGroup(deps))
	r.Delete("/evaluations/{id}", handleDeleteEvaluation(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleModels(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		models, err := deps.Models.ListModels(r.Context())
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "failed to list models: %v", err)
			return
		}
		writeJSON(w, map[string]any{"object": "list", "data": models})
	}
}

func handleListStandards(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		standards, err := deps.Standards.List()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing standards: %v", err)
			return
		}
		writeJSON(w, standards)
	}
}

func handleGetStandard(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.Standards.Get(chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, standard.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found_error", "standard not found")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "getting standard: %v", err)
			return
		}
		writeJSON(w, s)
	}
}

func handleSaveStandard(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var s standard.Standard
		if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if s.ID == "" || s.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "standard id and name are required")
			return
		}
		if len(s.Criteria) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "standard must have at least one criterion")
			return
		}
		if err := deps.Standards.Save(s); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving standard: %v", err)
			return
		}
		writeJSON(w, s)
	}
}

func handleGenerateStandard(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req struct {
			Topic    string `json:"topic"`
			Criteria int    `json:"criteria"`
			Levels   int    `json:"levels"`
			Save     bool   `json:"save"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Topic) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "topic is required")
			return
		}
		if err := deps.LLM.Validate(); err != nil {
			httpError(w, http.StatusBadRequest, "configuration_error", "%v", err)
			return
		}

		s, err := deps.Generator.Generate(r.Context(), req.Topic, req.Criteria, req.Levels)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "generating standard: %v", err)
			return
		}
		if req.Save {
			if err := deps.Standards.Save(s); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "saving generated standard: %v", err)
				return
			}
		}
		writeJSON(w, s)
	}
}

func handleDeleteStandard(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Standards.Delete(chi.URLParam(r, "id")); err != nil {
			if errors.Is(err, standard.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found_error", "standard not found")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "deleting standard: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type startRunRequest struct {
	StandardIDs []string           `json:"standard_ids"`
	Content     string             `json:"content"`
	Title       string             `json:"title,omitempty"`
	Weights     map[string]float64 `json:"weights,omitempty"`
	AbortOnFail bool               `json:"abort_on_failure,omitempty"`
}

func handleStartRun(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req startRunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		// Configuration and input checks happen before anything is queued.
		if err := deps.LLM.Validate(); err != nil {
			httpError(w, http.StatusBadRequest, "configuration_error", "%v", err)
			return
		}
		if len(req.StandardIDs) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "standard_ids is required and must not be empty")
			return
		}
		if strings.TrimSpace(req.Content) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content must not be empty")
			return
		}

		standards := make([]standard.Standard, 0, len(req.StandardIDs))
		for _, id := range req.StandardIDs {
			s, err := deps.Standards.Get(id)
			if err != nil {
				if errors.Is(err, standard.ErrNotFound) {
					httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown standard id %q", id)
					return
				}
				httpError(w, http.StatusInternalServerError, "api_error", "loading standard %q: %v", id, err)
				return
			}
			standards = append(standards, s)
		}

		state := deps.Runs.Start(StartOptions{
			Standards:   standards,
			Content:     req.Content,
			Title:       req.Title,
			Weights:     req.Weights,
			AbortOnFail: req.AbortOnFail,
		})

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(state.Snapshot())
	}
}

func handleGetRun(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, ok := deps.Runs.Get(chi.URLParam(r, "id"))
		if !ok {
			httpError(w, http.StatusNotFound, "not_found_error", "run not found")
			return
		}
		writeJSON(w, state.Snapshot())
	}
}

func handleCancelRun(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, ok := deps.Runs.Get(chi.URLParam(r, "id"))
		if !ok {
			httpError(w, http.StatusNotFound, "not_found_error", "run not found")
			return
		}
		state.Cancel()
		writeJSON(w, state.Snapshot())
	}
}

func handleListGroups(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groups, err := deps.Evals.Groups()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing groups: %v", err)
			return
		}
		writeJSON(w, groups)
	}
}

func handleGetGroup(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, err := deps.Evals.Group(chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, evalstore.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found_error", "group not found")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "getting group: %v", err)
			return
		}
		writeJSON(w, g)
	}
}

func handleDeleteGroup(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Evals.DeleteGroup(chi.URLParam(r, "id")); err != nil {
			if errors.Is(err, evalstore.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found_error", "group not found")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "deleting group: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleDeleteEvaluation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Evals.DeleteEvaluation(chi.URLParam(r, "id")); err != nil {
			if errors.Is(err, evalstore.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found_error", "evaluation not found")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "deleting evaluation: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
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
