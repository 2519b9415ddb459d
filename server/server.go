package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"chatppt_studio/generator"
	"chatppt_studio/history"
	"chatppt_studio/imagery"
	"chatppt_studio/preview"
	"chatppt_studio/refine"
)

const maxBodyBytes = 1 << 20

// Illustrator runs the image pipeline over a document.
type Illustrator interface {
	Run(ctx context.Context, document, run string) (imagery.Result, error)
}

type Options struct {
	Engine *refine.Engine
	// Illustrator may be nil when imaging is not configured.
	Illustrator Illustrator
	// Renderer defaults to one that inlines no local files.
	Renderer *preview.Renderer
	// Catalog enables session listing and deletion when set.
	Catalog history.Catalog
	// Timeout bounds refinement and chat requests; illustration gets four times as long.
	Timeout time.Duration
	Logger  *slog.Logger
}

type Server struct {
	engine      *refine.Engine
	illustrator Illustrator
	renderer    *preview.Renderer
	catalog     history.Catalog
	timeout     time.Duration
	logger      *slog.Logger
}

func New(opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, errors.New("refine engine required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Renderer == nil {
		opts.Renderer = preview.NewRenderer(opts.Logger, "")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	return &Server{
		engine:      opts.Engine,
		illustrator: opts.Illustrator,
		renderer:    opts.Renderer,
		catalog:     opts.Catalog,
		timeout:     opts.Timeout,
		logger:      opts.Logger,
	}, nil
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logMiddleware)

	r.Get("/health", s.health)
	r.Route("/api", func(r chi.Router) {
		r.Post("/sessions", s.handleSessionCreate)
		r.Get("/sessions", s.handleSessionList)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleSessionGet)
			r.Delete("/", s.handleSessionDelete)
			r.Post("/refine", s.handleRefine)
			r.Post("/chat", s.handleChat)
		})
		r.Post("/illustrate", s.handleIllustrate)
		r.Post("/preview", s.handlePreview)
	})
	return r
}

// --- Handlers ---

type sessionResp struct {
	SessionID string              `json:"session_id"`
	Messages  []generator.Message `json:"messages"`
}

type refineReq struct {
	Input string `json:"input"`
}

type chatReq struct {
	Message string `json:"message"`
}

type chatResp struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
}

type illustrateReq struct {
	Document string `json:"document"`
	Run      string `json:"run"`
}

type previewReq struct {
	Document string `json:"document"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, sessionResp{SessionID: uuid.NewString(), Messages: []generator.Message{}})
}

func (s *Server) handleSessionList(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeError(w, http.StatusNotImplemented, "session listing not supported by this store")
		return
	}
	infos, err := s.catalog.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if infos == nil {
		infos = []history.SessionInfo{}
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	msgs, err := s.engine.History(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if msgs == nil {
		msgs = []generator.Message{}
	}
	writeJSON(w, http.StatusOK, sessionResp{SessionID: id, Messages: msgs})
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeError(w, http.StatusNotImplemented, "session deletion not supported by this store")
		return
	}
	if err := s.catalog.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefine(w http.ResponseWriter, r *http.Request) {
	var req refineReq
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		writeError(w, http.StatusBadRequest, "input is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	res, err := s.engine.Refine(ctx, chi.URLParam(r, "id"), req.Input)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatReq
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	reply, err := s.engine.Chat(ctx, id, req.Message)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResp{SessionID: id, Reply: reply})
}

func (s *Server) handleIllustrate(w http.ResponseWriter, r *http.Request) {
	if s.illustrator == nil {
		writeError(w, http.StatusServiceUnavailable, "image pipeline is not configured")
		return
	}
	var req illustrateReq
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Document) == "" {
		writeError(w, http.StatusBadRequest, "document is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 4*s.timeout)
	defer cancel()
	res, err := s.illustrator.Run(ctx, req.Document, req.Run)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewReq
	if !decode(w, r, &req) {
		return
	}
	page, err := s.renderer.Render(req.Document, "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(page.HTML))
}

// --- Helpers ---

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return false
	}
	return true
}

func (s *Server) writeUpstreamError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, generator.ErrUnauthorized):
		s.logger.Error("provider rejected credentials", "error", err)
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
