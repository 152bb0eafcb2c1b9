// Package api serves ingestion, question answering and data reset over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fabfab/filing-agent/agent"
	"github.com/fabfab/filing-agent/ingestion"
)

// Ingester loads a filing directory into the stores.
type Ingester interface {
	IngestDirectory(ctx context.Context, dir string, force bool) (ingestion.Summary, error)
}

// Asker answers a single question.
type Asker interface {
	Ask(ctx context.Context, question string) (agent.Answer, error)
}

// ClearFunc removes every ingested filing from the stores.
type ClearFunc func(ctx context.Context) error

// Deps are the services behind the handlers. A nil dependency makes its
// endpoint answer 503.
type Deps struct {
	Ingester Ingester
	Asker    Asker
	Clear    ClearFunc
	// DataDir is ingested when a request does not name a directory.
	DataDir string
}

// Server exposes HTTP handlers for the filing agent workflows.
type Server struct {
	deps    Deps
	logger  *log.Logger
	handler http.Handler
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type ingestRequest struct {
	Dir   string `json:"dir"`
	Force bool   `json:"force"`
}

type ingestResponse struct {
	Message string            `json:"message"`
	Summary ingestion.Summary `json:"summary"`
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Kind    string        `json:"kind"`
	Message string        `json:"message,omitempty"`
	Report  *agent.Report `json:"report,omitempty"`
	Steps   []agent.Step  `json:"steps"`
}

type clearRequest struct {
	Confirm bool `json:"confirm"`
}

// New constructs a Server around deps.
func New(deps Deps, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{deps: deps, logger: logger}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed on %s", r.Method, r.URL.Path))
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("no route for %s", r.URL.Path))
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/openapi.yaml", s.handleOpenAPI)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/ingest", s.handleIngest)
		r.Post("/ask", s.handleAsk)
		r.Post("/clear", s.handleClear)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Printf("%s %s -> %d (request %s)", r.Method, r.URL.Path, ww.Status(), middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/yaml; charset=utf-8")
	w.Header().Set("Content-Disposition", "inline; filename=\"openapi.yaml\"")
	_, _ = w.Write(openAPISpecYAML)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ingester == nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("ingestion is not configured"))
		return
	}

	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	dir := strings.TrimSpace(req.Dir)
	if dir == "" {
		dir = s.deps.DataDir
	}
	if dir == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("dir is required"))
		return
	}

	s.logger.Printf("ingesting filings from %s (force=%t)", dir, req.Force)
	summary, err := s.deps.Ingester.IngestDirectory(r.Context(), dir, req.Force)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("ingestion failed: %w", err))
		return
	}

	message := "ingestion complete"
	if summary.Skipped {
		message = "vector store already populated; set force to re-ingest"
	}
	s.writeJSON(w, http.StatusOK, ingestResponse{Message: message, Summary: summary})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if s.deps.Asker == nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("question answering is not configured"))
		return
	}

	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	answer, err := s.deps.Asker.Ask(r.Context(), req.Question)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, agent.ErrEmptyQuestion) {
			status = http.StatusBadRequest
		}
		s.writeError(w, status, fmt.Errorf("ask failed: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, toAskResponse(answer))
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if s.deps.Clear == nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("clear is not configured"))
		return
	}

	var req clearRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	if !req.Confirm {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("confirm must be true to clear data"))
		return
	}

	if err := s.deps.Clear(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("clear failed: %w", err))
		return
	}

	s.logger.Println("ingested filings removed")
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "filing data cleared"})
}

func toAskResponse(answer agent.Answer) askResponse {
	resp := askResponse{Steps: answer.Steps}
	if resp.Steps == nil {
		resp.Steps = []agent.Step{}
	}
	if answer.Kind == agent.AnswerPlain {
		resp.Kind = "plain"
		resp.Message = answer.Message
		return resp
	}
	resp.Kind = "structured"
	resp.Report = answer.Report
	return resp
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Printf("api error (%d): %v", status, err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}
