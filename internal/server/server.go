// Package server exposes a fitted pipeline over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/YuminosukeSato/creditrisk/pipeline"
	"github.com/YuminosukeSato/creditrisk/pkg/errors"
	"github.com/YuminosukeSato/creditrisk/pkg/log"
	"github.com/YuminosukeSato/creditrisk/scoring"
)

// MaxBodyBytes limits the size of a prediction request.
const MaxBodyBytes = 1 << 20

// Reloader loads a fresh artifact, typically from the configured model path.
type Reloader func(ctx context.Context) (*pipeline.Artifact, error)

// Server routes HTTP requests to the artifact published in a Slot.
type Server struct {
	slot   *pipeline.Slot
	reload Reloader
	router chi.Router
	logger log.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithReloader enables POST /v1/reload.
func WithReloader(fn Reloader) Option {
	return func(s *Server) { s.reload = fn }
}

// New builds the router.
func New(slot *pipeline.Slot, opts ...Option) *Server {
	s := &Server{
		slot:   slot,
		router: chi.NewRouter(),
		logger: log.GetLoggerWithName("server"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.logRequests)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/predict", s.handlePredict)
		r.Get("/artifact", s.handleArtifact)
		if s.reload != nil {
			r.Post("/reload", s.handleReload)
		}
	})
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "server failed")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown failed")
		}
		return nil
	}
}

type healthResponse struct {
	Status     string `json:"status"`
	Ready      bool   `json:"ready"`
	ArtifactID string `json:"artifact_id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if a, err := s.slot.Load(); err == nil {
		resp.Ready = true
		resp.ArtifactID = a.ID
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	a, err := s.slot.Load()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, a.Metadata())
}

type predictResponse struct {
	ArtifactID  string               `json:"artifact_id"`
	Prediction  *scoring.Prediction  `json:"prediction,omitempty"`
	Predictions []scoring.Prediction `json:"predictions,omitempty"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	a, err := s.slot.Load()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	records, batch, err := decodeRecords(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		s.writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	resp := predictResponse{ArtifactID: a.ID}
	if batch {
		resp.Predictions, err = pipeline.PredictRecords(a, records)
	} else {
		var p scoring.Prediction
		p, err = pipeline.PredictRecord(a, records[0])
		resp.Prediction = &p
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	a, err := s.reload(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	prev := s.slot.Publish(a)
	attrs := []any{log.ArtifactIDKey, a.ID}
	if prev != nil {
		attrs = append(attrs, "previous", prev.ID)
	}
	s.logger.Info("artifact reloaded", attrs...)
	s.writeJSON(w, r, http.StatusOK, a.Metadata())
}

// decodeRecords accepts a JSON object or an array of objects. Values may be
// strings or numbers; null leaves the column at its default.
func decodeRecords(body io.Reader) ([]map[string]string, bool, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, false, errors.Wrap(err, "reading body")
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, false, errors.New("empty body")
	}

	var objects []map[string]any
	batch := raw[0] == '['
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if batch {
		err = dec.Decode(&objects)
	} else {
		var one map[string]any
		err = dec.Decode(&one)
		objects = []map[string]any{one}
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "invalid JSON")
	}

	records := make([]map[string]string, len(objects))
	for i, obj := range objects {
		rec := make(map[string]string, len(obj))
		for k, v := range obj {
			switch x := v.(type) {
			case nil:
			case string:
				rec[k] = x
			case json.Number:
				rec[k] = x.String()
			case bool:
				rec[k] = strconv.FormatBool(x)
			default:
				return nil, false, errors.Newf("record %d: column %q must be a string or number", i, k)
			}
		}
		records[i] = rec
	}
	return records, batch, nil
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// statusFor maps an error to its HTTP status and the kind reported in the body.
func statusFor(err error) (int, string) {
	kind := log.ErrorKind(err)
	switch kind {
	case "schema", "dimension":
		return http.StatusUnprocessableEntity, kind
	case "not_fitted":
		return http.StatusServiceUnavailable, kind
	default:
		return http.StatusInternalServerError, kind
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			log.RequestIDKey, middleware.GetReqID(r.Context()),
			log.RouteKey, r.URL.Path,
			"error", err,
		)
	}
	s.writeJSON(w, r, status, errorResponse{Error: err.Error(), Kind: kind})
}

// writeJSON encodes v before touching the response, so a value json cannot
// represent (NaN, Inf) becomes a 500 with an error body instead of an empty 200.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to encode response",
			log.RequestIDKey, middleware.GetReqID(r.Context()),
			log.RouteKey, r.URL.Path,
			"error", err,
		)
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorResponse{Error: "failed to encode response: " + err.Error(), Kind: "internal"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			log.RequestIDKey, middleware.GetReqID(r.Context()),
			log.RouteKey, r.URL.Path,
			log.StatusKey, ww.Status(),
			log.DurationMsKey, time.Since(start).Milliseconds(),
		)
	})
}
