// Package api serves the pipeline over HTTP.
//
// Routes:
//
//	GET    /healthz
//	POST   /v1/process?name=&golden=&save_golden=   body: PDF or image bytes
//	GET    /v1/golden
//	GET    /v1/golden/{name}
//	DELETE /v1/golden/{name}
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"finscan/internal/logger"
	"finscan/internal/pipeline"
	"finscan/internal/snapshot"
	"finscan/pkg/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Config tunes request limits
type Config struct {
	// MaxBodyBytes bounds an uploaded document.
	MaxBodyBytes int64

	// RateEvery and RateBurst shape the per-client limiter.
	RateEvery time.Duration
	RateBurst int

	// MaxConcurrent bounds documents processed at once.
	MaxConcurrent int
}

// DefaultConfig returns the stock limits
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:  100 << 20,
		RateEvery:     6 * time.Second,
		RateBurst:     5,
		MaxConcurrent: 2,
	}
}

// clientLimiter is one client's token bucket and the last time it was used
type clientLimiter struct {
	lim  *rate.Limiter
	seen atomic.Int64 // unix nanoseconds
}

// Server handles the HTTP API
type Server struct {
	pipe     *pipeline.Pipeline
	store    *snapshot.Store
	cfg      Config
	limiters sync.Map
	slots    chan struct{}
	log      zerolog.Logger
}

// New creates a server. store may be nil, which disables the golden routes.
func New(pipe *pipeline.Pipeline, store *snapshot.Store, cfg Config) *Server {
	d := DefaultConfig()
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = d.MaxBodyBytes
	}
	if cfg.RateEvery <= 0 {
		cfg.RateEvery = d.RateEvery
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = d.RateBurst
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = d.MaxConcurrent
	}
	return &Server{
		pipe:  pipe,
		store: store,
		cfg:   cfg,
		slots: make(chan struct{}, cfg.MaxConcurrent),
		log:   logger.WithComponent("api"),
	}
}

// Router builds the chi router
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.withLogging)

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.withRateLimit)
		r.Post("/process", s.handleProcess)
		r.Get("/golden", s.handleGoldenList)
		r.Get("/golden/{name}", s.handleGoldenGet)
		r.Delete("/golden/{name}", s.handleGoldenDelete)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.sweepLimiters(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("Listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.log.Info().Msg("Shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"active": len(s.slots),
	})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	default:
		w.Header().Set("Retry-After", "30")
		writeErr(w, http.StatusServiceUnavailable, "busy", "too many documents in progress")
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErr(w, http.StatusRequestEntityTooLarge, "too_large", fmt.Sprintf("document exceeds %d bytes", s.cfg.MaxBodyBytes))
			return
		}
		writeErr(w, http.StatusBadRequest, "bad_request", "could not read body")
		return
	}
	if len(data) == 0 {
		writeErr(w, http.StatusBadRequest, "bad_request", "empty body")
		return
	}

	q := r.URL.Query()
	name := q.Get("name")
	if name == "" {
		name = "upload"
	}

	pipe := s.pipe
	if golden := q.Get("golden"); golden != "" {
		doc, ok := s.loadGolden(w, r, golden)
		if !ok {
			return
		}
		pipe = pipe.WithGoldenDocument(doc)
	}

	in, err := pipeline.ReadInput(data, pipe.Config().ImageDPI)
	if err != nil {
		writeErr(w, http.StatusUnprocessableEntity, "unreadable_input", err.Error())
		return
	}

	res, err := pipe.Run(r.Context(), in, name)
	switch {
	case errors.Is(err, pipeline.ErrNoPages):
		writeErr(w, http.StatusUnprocessableEntity, "no_pages", err.Error())
		return
	case err != nil:
		s.log.Warn().Err(err).Str("name", name).Msg("Run aborted")
		writeErr(w, http.StatusInternalServerError, "run_failed", err.Error())
		return
	}

	if save := q.Get("save_golden"); save != "" {
		if s.store == nil {
			writeErr(w, http.StatusServiceUnavailable, "no_store", "golden snapshot store not configured")
			return
		}
		if err := s.store.Save(r.Context(), save, res.Document); err != nil {
			writeErr(w, http.StatusInternalServerError, "save_failed", err.Error())
			return
		}
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) loadGolden(w http.ResponseWriter, r *http.Request, name string) (*models.Document, bool) {
	if s.store == nil {
		writeErr(w, http.StatusServiceUnavailable, "no_store", "golden snapshot store not configured")
		return nil, false
	}
	doc, err := s.store.Load(r.Context(), name)
	if errors.Is(err, snapshot.ErrNotFound) {
		writeErr(w, http.StatusNotFound, "not_found", fmt.Sprintf("no golden snapshot %q", name))
		return nil, false
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "store_failed", err.Error())
		return nil, false
	}
	return doc, true
}

func (s *Server) handleGoldenList(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeErr(w, http.StatusServiceUnavailable, "no_store", "golden snapshot store not configured")
		return
	}
	list, err := s.store.List(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "store_failed", err.Error())
		return
	}
	if list == nil {
		list = []snapshot.Snapshot{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGoldenGet(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.loadGolden(w, r, chi.URLParam(r, "name"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleGoldenDelete(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeErr(w, http.StatusServiceUnavailable, "no_store", "golden snapshot store not configured")
		return
	}
	name := chi.URLParam(r, "name")
	err := s.store.Delete(r.Context(), name)
	switch {
	case errors.Is(err, snapshot.ErrNotFound):
		writeErr(w, http.StatusNotFound, "not_found", fmt.Sprintf("no golden snapshot %q", name))
	case err != nil:
		writeErr(w, http.StatusInternalServerError, "store_failed", err.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter(clientIP(r)).Allow() {
			w.Header().Set("Retry-After", fmt.Sprint(int(s.cfg.RateEvery.Seconds())+1))
			writeErr(w, http.StatusTooManyRequests, "rate_limit", "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) limiter(ip string) *rate.Limiter {
	return s.limiterAt(ip, time.Now())
}

func (s *Server) limiterAt(ip string, now time.Time) *rate.Limiter {
	v, ok := s.limiters.Load(ip)
	if !ok {
		v, _ = s.limiters.LoadOrStore(ip, &clientLimiter{lim: rate.NewLimiter(rate.Every(s.cfg.RateEvery), s.cfg.RateBurst)})
	}
	cl := v.(*clientLimiter)
	cl.seen.Store(now.UnixNano())
	return cl.lim
}

// limiterIdle is how long a client must be quiet before its bucket is full
// again, after which a fresh limiter is equivalent
func (s *Server) limiterIdle() time.Duration {
	return s.cfg.RateEvery * time.Duration(s.cfg.RateBurst)
}

// sweep drops limiters unused for longer than idle and returns how many
func (s *Server) sweep(now time.Time, idle time.Duration) int {
	cutoff := now.Add(-idle).UnixNano()
	n := 0
	s.limiters.Range(func(k, v any) bool {
		if v.(*clientLimiter).seen.Load() < cutoff {
			s.limiters.Delete(k)
			n++
		}
		return true
	})
	return n
}

func (s *Server) sweepLimiters(ctx context.Context) {
	idle := s.limiterIdle()
	ticker := time.NewTicker(idle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.sweep(now, idle); n > 0 {
				s.log.Debug().Int("evicted", n).Msg("Idle rate limiters evicted")
			}
		}
	}
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Dur("duration", time.Since(start)).
			Msg("Request")
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(ip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": message,
		"code":  code,
	})
}
