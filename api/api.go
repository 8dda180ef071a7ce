// Package api serves sessions, share links and options over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/hazyhaar/commentlink/config"
	"github.com/hazyhaar/commentlink/controller"
	"github.com/hazyhaar/commentlink/fingerprint"
	"github.com/hazyhaar/commentlink/inspect"
	"github.com/hazyhaar/commentlink/kit"
	"github.com/hazyhaar/commentlink/metrics"
	"github.com/hazyhaar/commentlink/platform"
	"github.com/hazyhaar/commentlink/session"
	"github.com/hazyhaar/commentlink/sharelink"
)

const maxBody = 4 << 20

// SaveFunc persists options. When set, PUT /v1/options goes through it
// and the store picks the change up from the settings watcher.
type SaveFunc func(ctx context.Context, o config.Options) error

// Server holds the HTTP handlers.
type Server struct {
	sessions  *session.Manager
	store     *config.Store
	save      SaveFunc
	inspector *inspect.Inspector
	metrics   *metrics.Metrics
	cfg       config.APIConfig
	logger    *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a Server. sessions may be nil, in which case the session
// routes answer 503.
func New(sessions *session.Manager, store *config.Store, save SaveFunc, m *metrics.Metrics, cfg config.APIConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MessageRate <= 0 {
		cfg.MessageRate = 2
	}
	if cfg.MessageBurst <= 0 {
		cfg.MessageBurst = 4
	}
	return &Server{
		sessions:  sessions,
		store:     store,
		save:      save,
		inspector: inspect.New(logger),
		metrics:   m,
		cfg:       cfg,
		logger:    logger,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(maxBytes(maxBody))
	r.Use(withKit)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/links", s.handleBuildLink)
		r.Get("/links/parse", s.handleParseLink)
		r.Get("/platforms", s.handlePlatforms)

		r.Get("/options", s.handleGetOptions)
		r.Put("/options", s.handlePutOptions)

		r.Route("/sessions", func(r chi.Router) {
			r.Use(s.requireSessions)
			r.Post("/", s.handleOpen)
			r.Get("/", s.handleList)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleStatus)
				r.Delete("/", s.handleClose)
				r.Get("/comments", s.handleComments)
				r.Post("/share", s.handleShare)
				r.Post("/messages", s.handleMessage)
			})
		})
	})
	return r
}

// --- links ---

func (s *Server) handleBuildLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL     string                  `json:"url"`
		Comment fingerprint.Fingerprint `json:"comment"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, ok := platform.Identify(req.URL)
	if !ok {
		s.writeError(w, r, fmt.Errorf("%w: %s", session.ErrUnsupported, req.URL))
		return
	}
	if req.Comment.Hash == "" {
		req.Comment.Hash = fingerprint.HashOf(req.Comment.Text)
	}
	link, err := sharelink.Build(sharelink.Strip(req.URL), req.Comment, p)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", sharelink.ErrMalformed, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"link": link, "platform": p.Name})
}

func (s *Server) handleParseLink(w http.ResponseWriter, r *http.Request) {
	link := r.URL.Query().Get("link")
	fp, ok, err := sharelink.Parse(link)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := map[string]any{"shared": ok, "page": sharelink.Strip(link)}
	if ok {
		resp["comment"] = fp
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePlatforms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"platforms": platform.Names()})
}

// --- options ---

func (s *Server) handleGetOptions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Current())
}

func (s *Server) handlePutOptions(w http.ResponseWriter, r *http.Request) {
	var o config.Options
	if err := decode(r, &o); err != nil {
		s.writeError(w, r, err)
		return
	}
	o = o.Normalize()
	if s.save != nil {
		if err := s.save(r.Context(), o); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, o)
		return
	}
	writeJSON(w, http.StatusOK, s.store.Update(o))
}

// --- sessions ---

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.sessions.Open(r.Context(), req.URL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("api: session opened", "session", sess.ID(), "url", req.URL)
	writeJSON(w, http.StatusCreated, sess.Status())
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.sessions.List()})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if sess, ok := s.session(w, r); ok {
		writeJSON(w, http.StatusOK, sess.Status())
	}
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.Close(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.mu.Lock()
	delete(s.limiters, id)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleComments(w http.ResponseWriter, r *http.Request) {
	if sess, ok := s.session(w, r); ok {
		writeJSON(w, http.StatusOK, map[string]any{"comments": sess.Comments(r.Context())})
	}
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Hash string `json:"hash"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	link, err := sess.ShareByHash(r.Context(), req.Hash)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"link": link})
}

func (s *Server) limiter(id string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.limiters[id]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(s.cfg.MessageRate), s.cfg.MessageBurst)
	s.limiters[id] = l
	return l
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if !s.limiter(sess.ID()).Allow() {
		s.metrics.Message("", "throttled")
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many messages"})
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	msg, err := sharelink.DecodeMessage(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := sess.HandleMessage(msg); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// --- helpers ---

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: body: %v", sharelink.ErrMalformed, err)
	}
	return nil
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, sharelink.ErrMalformed):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrUnsupported):
		return http.StatusUnprocessableEntity
	case errors.Is(err, controller.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	case errors.Is(err, session.ErrLimit):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("api: request failed", "path", r.URL.Path, "request_id", kit.GetRequestID(r.Context()), "error", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
