package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimealarm/internal/alarm"
	"github.com/hamed0406/uptimealarm/internal/domain"
	apimw "github.com/hamed0406/uptimealarm/internal/httpapi/middleware"
)

// Monitor is the application surface the HTTP layer drives.
type Monitor interface {
	AddEndpoint(ctx context.Context, raw string) (string, error)
	RemoveEndpoint(ctx context.Context, url string) error
	SetInterval(ctx context.Context, seconds int) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Snooze() alarm.State
	Snapshot(ctx context.Context) domain.Snapshot
}

type Server struct {
	Logger  *zap.Logger
	Monitor Monitor
	Hub     *Hub
}

func NewServer(l *zap.Logger, m Monitor, hub *Hub) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Logger: l, Monitor: m, Hub: hub}
}

// Router builds the HTTP handler. Reads need a public or admin key and
// mutations an admin key; each group has its own per-IP rate limit.
func (s *Server) Router(keys apimw.Keys, allowedOrigins []string, pubRPM, pubBurst, admRPM, admBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(corsHandler(allowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(pubRPM, pubBurst, s.Logger))
			r.Use(apimw.RequireAny(keys))
			r.Get("/state", s.handleState)
			if s.Hub != nil {
				r.Get("/ws", s.handleWS)
			}
		})
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(admRPM, admBurst, s.Logger))
			r.Use(apimw.RequireAdmin(keys))
			r.Post("/endpoints", s.handleAddEndpoint)
			r.Delete("/endpoints", s.handleRemoveEndpoint)
			r.Put("/interval", s.handleSetInterval)
			r.Post("/monitoring/start", s.handleStart)
			r.Post("/monitoring/stop", s.handleStop)
			r.Post("/alarm/snooze", s.handleSnooze)
		})
	})
	return r
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return cors.AllowAll().Handler
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// statusFor maps validation errors to their HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrEmptyURL),
		errors.Is(err, domain.ErrInvalidURL),
		errors.Is(err, domain.ErrInvalidInterval):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDuplicateEndpoint):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnknownEndpoint):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.Logger.Error("api_error", zap.String("op", op), zap.Error(err))
		writeError(w, code, "internal error")
		return
	}
	writeError(w, code, err.Error())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Monitor.Snapshot(r.Context()))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.Hub.Serve(w, r, s.Monitor.Snapshot(r.Context()))
}

type endpointPayload struct {
	URL string `json:"url"`
}

func (s *Server) handleAddEndpoint(w http.ResponseWriter, r *http.Request) {
	var p endpointPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	u, err := s.Monitor.AddEndpoint(r.Context(), p.URL)
	if err != nil {
		s.fail(w, "add_endpoint", err)
		return
	}
	writeJSON(w, http.StatusCreated, endpointPayload{URL: u})
}

func (s *Server) handleRemoveEndpoint(w http.ResponseWriter, r *http.Request) {
	u := strings.TrimSpace(r.URL.Query().Get("url"))
	if u == "" {
		writeError(w, http.StatusBadRequest, domain.ErrEmptyURL.Error())
		return
	}
	if err := s.Monitor.RemoveEndpoint(r.Context(), u); err != nil {
		s.fail(w, "remove_endpoint", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// intervalPayload takes seconds as a JSON number or a numeric string, the
// way a text field submits it.
type intervalPayload struct {
	Seconds json.RawMessage `json:"seconds"`
}

func (p intervalPayload) value() (int, error) {
	raw := strings.TrimSpace(string(p.Seconds))
	if unq, err := jsonString(raw); err == nil {
		raw = unq
	}
	return domain.ParseInterval(raw)
}

func jsonString(raw string) (string, error) {
	var s string
	err := json.Unmarshal([]byte(raw), &s)
	return s, err
}

func (s *Server) handleSetInterval(w http.ResponseWriter, r *http.Request) {
	var p intervalPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	n, err := p.value()
	if err != nil {
		s.fail(w, "set_interval", err)
		return
	}
	if err := s.Monitor.SetInterval(r.Context(), n); err != nil {
		s.fail(w, "set_interval", err)
		return
	}
	writeJSON(w, http.StatusOK, s.Monitor.Snapshot(r.Context()))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.Monitor.Start(r.Context()); err != nil {
		s.fail(w, "start", err)
		return
	}
	writeJSON(w, http.StatusOK, s.Monitor.Snapshot(r.Context()))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.Monitor.Stop(r.Context()); err != nil {
		s.fail(w, "stop", err)
		return
	}
	writeJSON(w, http.StatusOK, s.Monitor.Snapshot(r.Context()))
}

func (s *Server) handleSnooze(w http.ResponseWriter, r *http.Request) {
	st := s.Monitor.Snooze()
	writeJSON(w, http.StatusOK, map[string]string{"alarm": st.String()})
}
