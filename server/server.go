// Package server is the thin HTTP façade over the context registry. Route
// handlers accept requests, delegate to the Manager, and serialize a run's
// event stream as line-delimited JSON with a single well-known terminator
// line per response.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tailored-agentic-units/interpreter/contexts"
	"github.com/tailored-agentic-units/interpreter/execution"
	"github.com/tailored-agentic-units/interpreter/observability"
)

// Server event types emitted to the observer.
const (
	EventRequest     observability.EventType = "server.request"
	EventStreamError observability.EventType = "server.stream.error"
)

// Option configures a Server.
type Option func(*Server)

// WithObserver sets the observability sink. Defaults to NoOpObserver.
func WithObserver(o observability.Observer) Option {
	return func(s *Server) { s.observer = o }
}

// WithDefaultLanguage sets the language used by execute requests that name
// neither a context nor a language.
func WithDefaultLanguage(language string) Option {
	return func(s *Server) { s.defaultLanguage = language }
}

// Server exposes the registry over HTTP.
type Server struct {
	manager         *contexts.Manager
	observer        observability.Observer
	defaultLanguage string
	mux             *http.ServeMux
}

// New creates the façade over the given registry.
func New(manager *contexts.Manager, opts ...Option) *Server {
	s := &Server{
		manager:         manager,
		observer:        observability.NoOpObserver{},
		defaultLanguage: defaultLanguage,
		mux:             http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("POST /contexts", s.handleCreateContext)
	s.mux.HandleFunc("GET /contexts", s.handleListContexts)
	s.mux.HandleFunc("POST /contexts/{id}/restart", s.handleRestartContext)
	s.mux.HandleFunc("DELETE /contexts/{id}", s.handleRemoveContext)
	s.mux.HandleFunc("POST /execute", s.handleExecute)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	observability.Emit(r.Context(), s.observer, EventRequest, observability.LevelVerbose, "server", map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
	})
	s.mux.ServeHTTP(w, r)
}

type createContextRequest struct {
	Language string `json:"language"`
	CWD      string `json:"cwd"`
}

func (s *Server) handleCreateContext(w http.ResponseWriter, r *http.Request) {
	var req createContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Language == "" || req.CWD == "" {
		writeError(w, http.StatusBadRequest, "language and cwd are required")
		return
	}

	created, err := s.manager.Create(r.Context(), req.Language, req.CWD)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListContexts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.List())
}

func (s *Server) handleRestartContext(w http.ResponseWriter, r *http.Request) {
	err := s.manager.Restart(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, contexts.ErrContextNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleRemoveContext(w http.ResponseWriter, r *http.Request) {
	err := s.manager.Remove(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, contexts.ErrContextNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

type executeRequest struct {
	Code      string `json:"code"`
	ContextID string `json:"context_id,omitempty"`
	Language  string `json:"language,omitempty"`
}

// handleExecute streams a run's events as one JSON object per line. The
// terminator line is appended after the stream ends regardless of which
// terminal event caused it, so every response has exactly one end marker.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	target, err := s.resolveContext(r.Context(), req)
	if err != nil {
		if errors.Is(err, contexts.ErrContextNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
		} else {
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	stream, err := s.manager.Run(r.Context(), target.ID, req.Code)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	for ev := range stream {
		line, err := execution.MarshalEvent(ev)
		if err != nil {
			observability.Emit(r.Context(), s.observer, EventStreamError, observability.LevelError, "server.execute", map[string]any{
				"error": err.Error(),
			})
			continue
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			// Client went away; drain the stream so the run is reclaimed.
			for range stream {
			}
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	terminator, _ := execution.MarshalEvent(execution.End{})
	_, _ = w.Write(append(terminator, '\n'))
	if flusher != nil {
		flusher.Flush()
	}
}

// resolveContext picks the execution context for a run: an explicit context
// id wins, then an explicit language's default context, then the server's
// default language.
func (s *Server) resolveContext(ctx context.Context, req executeRequest) (contexts.Context, error) {
	if req.ContextID != "" {
		c, ok := s.manager.Get(req.ContextID)
		if !ok {
			return contexts.Context{}, contexts.ErrContextNotFound
		}
		return c, nil
	}

	language := req.Language
	if language == "" {
		language = s.defaultLanguage
	}
	return s.manager.GetOrCreateDefault(ctx, language)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
