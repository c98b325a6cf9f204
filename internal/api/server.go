// Package api serves the certification pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"hypcert/internal/certify"
	"hypcert/internal/logging"
	"hypcert/internal/presentation"
	"hypcert/internal/store"
)

// DefaultMaxBodyBytes caps request bodies.
const DefaultMaxBodyBytes = 1 << 20

// Server answers certification requests. Results are cached in the store
// when one is configured.
type Server struct {
	criteria []certify.Criterion
	opts     certify.Options
	results  *store.ResultStore
	timeout  time.Duration
	maxBody  int64
}

// NewServer builds a server. results may be nil; timeout zero means requests
// are bounded only by the client.
func NewServer(criteria []certify.Criterion, opts certify.Options, results *store.ResultStore, timeout time.Duration) *Server {
	return &Server{
		criteria: criteria,
		opts:     opts,
		results:  results,
		timeout:  timeout,
		maxBody:  DefaultMaxBodyBytes,
	}
}

// CertifyRequest is the body of POST /v1/certify. Nil options fall back to
// the server defaults.
type CertifyRequest struct {
	Relator    string   `json:"relator"`
	Generators []string `json:"generators,omitempty"`
	External   *bool    `json:"external,omitempty"`
	CrossCheck *bool    `json:"cross_check,omitempty"`
	Minimize   *bool    `json:"minimize,omitempty"`
}

// ErrorResponse is the body of every non-2xx response. Result is set when a
// partial result exists.
type ErrorResponse struct {
	Error  string          `json:"error"`
	Result *certify.Result `json:"result,omitempty"`
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(s.limitRequestBody)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/certify", s.handleCertify)
		r.Get("/results", s.handleResults)
		r.Get("/results/stats", s.handleStats)
	})
	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.API("listening on %s", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logging.API("shutting down")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		<-errCh
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, len(s.criteria))
	for i, c := range s.criteria {
		names[i] = c.Describe().Name
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"criteria": names,
		"store":    s.results != nil,
	})
}

func (s *Server) handleCertify(w http.ResponseWriter, r *http.Request) {
	var req CertifyRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	pres, err := presentation.Parse(req.Relator, req.Generators)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := s.opts
	if req.External != nil {
		opts.EnableExternalTools = *req.External
	}
	if req.CrossCheck != nil {
		opts.CrossCheck = *req.CrossCheck
	}
	if req.Minimize != nil {
		opts.Minimize = *req.Minimize
	}

	ctx := r.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	res, err := certify.New(s.criteria, opts).Certify(ctx, pres)
	var conflict *certify.ConflictError
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: conflict.Error(), Result: res})
		return
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, ErrorResponse{Error: err.Error(), Result: res})
		return
	case errors.Is(err, context.Canceled):
		logging.APIWarn("client went away while certifying %s", pres)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if s.results != nil {
		saved, err := s.results.Save(store.RecordFromResult(res, ""))
		switch {
		case err != nil:
			logging.APIWarn("failed to store result for %s: %v", pres, err)
		case !saved:
			logging.APIDebug("kept stored conclusive verdict for %s", pres)
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		writeError(w, http.StatusServiceUnavailable, "no result store configured")
		return
	}
	q := r.URL.Query()
	opts := store.ListOptions{
		Outcome: certify.Outcome(q.Get("outcome")),
		BatchID: q.Get("batch"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", v))
			return
		}
		opts.Limit = n
	}
	switch opts.Outcome {
	case "", certify.Hyperbolic, certify.NotHyperbolic, certify.Undetermined:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid outcome %q", opts.Outcome))
		return
	}

	records, err := s.results.List(opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		writeError(w, http.StatusServiceUnavailable, "no result store configured")
		return
	}
	stats, err := s.results.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) limitRequestBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logging.APIDebug("%s %s %d %s request_id=%s", r.Method, r.URL.Path, ww.Status(),
			time.Since(start).Round(time.Microsecond), middleware.GetReqID(r.Context()))
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
