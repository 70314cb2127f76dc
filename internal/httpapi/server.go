package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mkuchak/get-youtube-transcription/internal/config"
	"github.com/mkuchak/get-youtube-transcription/internal/model"
	"github.com/mkuchak/get-youtube-transcription/internal/selector"
	"github.com/mkuchak/get-youtube-transcription/internal/transcript"
	"github.com/mkuchak/get-youtube-transcription/internal/upstream/youtube"
)

type SelectorService interface {
	Select(ctx context.Context, in selector.Input) (transcript.Result, error)
}

type ProxyDecoder interface {
	Decode(ciphertext string) (*url.URL, error)
}

type MetricsObserver interface {
	ObserveHTTP(route, method string, status int, duration time.Duration)
	IncProxyDecodeFailure()
}

type Dependencies struct {
	Selector       SelectorService
	ProxyDecoder   ProxyDecoder
	Metrics        MetricsObserver
	MetricsHandler http.Handler
}

type server struct {
	cfg          config.Config
	logger       *slog.Logger
	selector     SelectorService
	proxyDecoder ProxyDecoder
	metrics      MetricsObserver
	metricsRoute http.Handler
}

type ctxKey string

const (
	requestIDHeader  = "X-Request-Id"
	requestIDContext = ctxKey("request_id")
)

func NewServer(cfg config.Config, logger *slog.Logger, deps Dependencies) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Selector == nil || deps.ProxyDecoder == nil {
		panic("httpapi: selector and proxy decoder are required")
	}

	s := &server{
		cfg:          cfg,
		logger:       logger,
		selector:     deps.Selector,
		proxyDecoder: deps.ProxyDecoder,
		metrics:      deps.Metrics,
		metricsRoute: deps.MetricsHandler,
	}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, "not_found", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	})

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if s.metricsRoute != nil {
		r.Handle("/metrics", s.metricsRoute)
	}

	r.Post("/transcript", s.handleTranscriptPost)
	r.Get("/transcript", s.handleTranscriptGet)

	return r
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.HealthResponse{OK: true})
}

func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.ReadyResponse{OK: true, ServiceName: "get-youtube-transcription"})
}

func (s *server) handleTranscriptPost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxJSONBytes)
	defer func() { _ = r.Body.Close() }()

	var req model.TranscriptRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		s.handleJSONDecodeError(w, r, err)
		return
	}
	if err := ensureBodyFullyConsumed(decoder); err != nil {
		s.handleJSONDecodeError(w, r, err)
		return
	}

	s.serveTranscript(w, r, req)
}

// handleTranscriptGet is the simplified variant: no proxy, no
// formatting options. Also the path minimal probes use for liveness.
func (s *server) handleTranscriptGet(w http.ResponseWriter, r *http.Request) {
	s.serveTranscript(w, r, model.TranscriptRequest{
		VideoID:  strings.TrimSpace(r.URL.Query().Get("videoId")),
		Language: strings.TrimSpace(r.URL.Query().Get("language")),
	})
}

func (s *server) serveTranscript(w http.ResponseWriter, r *http.Request, req model.TranscriptRequest) {
	videoID := strings.TrimSpace(req.VideoID)
	if videoID == "" {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "videoId is required", nil)
		return
	}

	var proxy *url.URL
	if ciphertext := strings.TrimSpace(req.Proxy); ciphertext != "" {
		decoded, err := s.proxyDecoder.Decode(ciphertext)
		if err != nil {
			if s.metrics != nil && errors.Is(err, transcript.ErrInvalidProxyCiphertext) {
				s.metrics.IncProxyDecodeFailure()
			}
			s.writeMappedError(w, r, err)
			return
		}
		proxy = decoded
	}

	s.logger.Info("transcript request",
		"request_id", requestIDFromContext(r.Context()),
		"video_id", videoID,
		"language", req.Language,
		"proxied", proxy != nil,
	)

	result, err := s.selector.Select(r.Context(), selector.Input{
		VideoID:            videoID,
		Language:           req.Language,
		Proxy:              proxy,
		PreserveFormatting: req.PreserveFormatting,
	})
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toTranscriptResponse(result))
}

func (s *server) handleJSONDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		s.writeError(w, r, http.StatusRequestEntityTooLarge, "request_too_large", "JSON body too large", nil)
		return
	}
	s.writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body", nil)
}

func (s *server) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	message := "request failed"
	var details map[string]any

	var upstreamErr *youtube.Error
	switch {
	case errors.Is(err, transcript.ErrInvalidProxyCiphertext):
		status = http.StatusBadRequest
		code = "invalid_proxy_ciphertext"
		message = "proxy credential could not be decrypted"
	case errors.Is(err, transcript.ErrProxyDecryptionUnavailable):
		status = http.StatusServiceUnavailable
		code = "proxy_decryption_unavailable"
		message = "proxy decryption is not configured on this server"
	case errors.Is(err, transcript.ErrTranscriptsDisabled):
		status = http.StatusNotFound
		code = "transcripts_disabled"
		message = "transcripts are disabled for this video"
	case errors.Is(err, transcript.ErrNoTranscriptAvailable):
		status = http.StatusNotFound
		code = "no_transcript_available"
		message = "no transcript found for this video after multiple attempts"
	case errors.As(err, &upstreamErr):
		status = http.StatusBadGateway
		code = "upstream_request_failed"
		message = "upstream request failed"
		details = map[string]any{"upstream_status": upstreamErr.StatusCode}
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		code = "timeout"
		message = "request timed out"
	case errors.Is(err, context.Canceled):
		status = 499
		code = "canceled"
		message = "request canceled"
	}

	s.writeError(w, r, status, code, message, details)
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	if rid := requestIDFromContext(r.Context()); rid != "" {
		w.Header().Set(requestIDHeader, rid)
	}
	writeJSON(w, status, model.ErrorResponse{
		Error:     model.APIError{Code: code, Message: message, Details: details},
		RequestID: requestIDFromContext(r.Context()),
	})
}

func (s *server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = newRequestID()
		}
		w.Header().Set(requestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), requestIDContext, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		duration := time.Since(started)
		if s.metrics != nil {
			s.metrics.ObserveHTTP(route, r.Method, status, duration)
		}

		s.logger.Info("http_request",
			"request_id", requestIDFromContext(r.Context()),
			"method", r.Method,
			"route", route,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", duration.Milliseconds(),
		)
	})
}

func (s *server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "request_id", requestIDFromContext(r.Context()), "panic", rec)
				s.writeError(w, r, http.StatusInternalServerError, "internal_error", "internal server error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func toTranscriptResponse(result transcript.Result) model.TranscriptResponse {
	segments := make([]model.TranscriptSegment, 0, len(result.Segments))
	for _, seg := range result.Segments {
		segments = append(segments, model.TranscriptSegment{
			Text:     seg.Text,
			Start:    seg.Start,
			Duration: seg.Duration,
		})
	}
	return model.TranscriptResponse{
		Transcript:       segments,
		Language:         result.Language,
		IsGenerated:      result.IsGenerated,
		Translated:       result.Translated,
		OriginalLanguage: result.OriginalLanguage,
	}
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func ensureBodyFullyConsumed(decoder *json.Decoder) error {
	var extra any
	if err := decoder.Decode(&extra); err != io.EOF {
		if err == nil {
			return fmt.Errorf("multiple JSON values")
		}
		return err
	}
	return nil
}

func requestIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(requestIDContext).(string)
	return value
}

func newRequestID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "req-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return hex.EncodeToString(buf)
}
