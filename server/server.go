// Package server exposes the agent over HTTP. Each conversation thread is a
// resource; posting a message to a thread runs one full turn and returns the
// assistant's reply.
package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/careline/careline/agent"
	"github.com/careline/careline/session"
)

// Server wraps an Agent and a session store behind a chi router.
type Server struct {
	agent  *agent.Agent
	store  session.Store
	logger *slog.Logger
	http   *http.Server
}

func New(addr string, a *agent.Agent, store session.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{agent: a, store: store, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Route("/threads/{threadID}", func(r chi.Router) {
		r.Get("/", s.handleGetThread)
		r.Post("/messages", s.handlePostMessage)
	})

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		// Turns can spend several model round trips; keep the write
		// timeout generous.
		WriteTimeout: 5 * time.Minute,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight turns.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type messageRequest struct {
	Message string `json:"message"`
}

type messageResponse struct {
	Reply  string `json:"reply"`
	Status string `json:"status"`
}

type threadResponse struct {
	ThreadID string            `json:"thread_id"`
	Status   string            `json:"status"`
	Messages []session.Message `json:"messages"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be JSON with a message field")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message must not be empty")
		return
	}

	reply, err := s.agent.Submit(r.Context(), threadID, req.Message)
	if err != nil && reply == nil {
		s.logger.Error("submit failed", "thread", threadID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to process message")
		return
	}
	if err != nil && !stderrors.Is(err, agent.ErrLoopLimit) {
		s.logger.Warn("turn ended in failure", "thread", threadID, "error", err)
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Reply:  reply.Text,
		Status: string(reply.Status),
	})
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	state, err := s.store.Load(r.Context(), threadID)
	if err != nil {
		s.logger.Error("load failed", "thread", threadID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load thread")
		return
	}
	writeJSON(w, http.StatusOK, threadResponse{
		ThreadID: state.ThreadID,
		Status:   string(state.Status),
		Messages: state.Messages,
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
