package core

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"astroscope/internal/types"
)

// RateLimit enforces RateLimitRequests per RateLimitWindow for each client
// IP. It is disabled when no store is attached or the limit is zero. Store
// errors fail open so a Redis outage never blocks the API.
func (s *Server) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, window := s.Config.Security.RateLimitRequests, s.Config.Security.RateLimitWindow
		if s.RateLimitStore == nil || limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ip, ok := types.GetClientIP(r.Context())
		if !ok {
			ip = extractClientIP(r, false)
		}

		result, err := s.RateLimitStore.IncrementAndCheck(r.Context(), ip, limit, window)
		if err != nil {
			s.Logger.ErrorContext(r.Context(), "rate limit store error",
				slog.String("client_ip", ip),
				slog.String("error", err.Error()),
			)
			next.ServeHTTP(w, r)
			return
		}

		setRateLimitHeaders(w, limit, result)
		if !result.Allowed {
			s.Logger.WarnContext(r.Context(), "rate limit exceeded",
				slog.String("client_ip", ip),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			retryAfter := int(time.Until(result.ResetAt).Round(time.Second).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			Error(w, r, types.NewAppError(types.ErrCodeRateLimit, "rate limit exceeded, retry after the reset time", nil))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func setRateLimitHeaders(w http.ResponseWriter, limit int, result RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

// ResponseCapturer buffers a handler's response so it can be stored before it
// is sent. Nothing reaches the client until Flush.
type ResponseCapturer struct {
	underlying http.ResponseWriter
	statusCode int
	body       bytes.Buffer
	headers    http.Header
	written    bool
}

func newResponseCapturer(w http.ResponseWriter) *ResponseCapturer {
	return &ResponseCapturer{
		underlying: w,
		statusCode: http.StatusOK,
		headers:    make(http.Header),
	}
}

func (rc *ResponseCapturer) Header() http.Header { return rc.headers }

func (rc *ResponseCapturer) WriteHeader(code int) {
	if !rc.written {
		rc.statusCode = code
		rc.written = true
	}
}

func (rc *ResponseCapturer) Write(b []byte) (int, error) {
	rc.written = true
	return rc.body.Write(b)
}

// Flush copies the buffered headers, status and body to the client.
func (rc *ResponseCapturer) Flush() {
	dst := rc.underlying.Header()
	for key, values := range rc.headers {
		for _, v := range values {
			dst.Add(key, v)
		}
	}
	rc.underlying.WriteHeader(rc.statusCode)
	_, _ = rc.underlying.Write(rc.body.Bytes())
}

func (rc *ResponseCapturer) Unwrap() http.ResponseWriter { return rc.underlying }

// StatusCode returns the captured status.
func (rc *ResponseCapturer) StatusCode() int { return rc.statusCode }

// Body returns the captured body.
func (rc *ResponseCapturer) Body() []byte { return rc.body.Bytes() }

// IdempotencyKeyHeader carries the client's idempotency key.
const IdempotencyKeyHeader = "Idempotency-Key"

const maxIdempotencyKeyLength = 255

// IdempotencyMiddleware makes POST requests carrying an Idempotency-Key run
// at most once per key and path. A completed key replays its stored response;
// a key still in flight answers 409. Responses below 500 are stored; a 5xx
// releases the key so the client can retry. Store errors fail open.
func (s *Server) IdempotencyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.IdempotencyStore == nil || r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		clientKey := r.Header.Get(IdempotencyKeyHeader)
		if clientKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(clientKey) > maxIdempotencyKeyLength {
			Error(w, r, types.NewAppErrorWithDetails(
				types.ErrCodeValidationInvalidField,
				"Idempotency-Key is too long",
				nil,
				map[string]any{"field": IdempotencyKeyHeader, "max_length": maxIdempotencyKeyLength},
			))
			return
		}

		ctx := r.Context()
		key := r.URL.Path + "|" + clientKey
		log := s.Logger.With(slog.String("idempotency_key", clientKey), slog.String("path", r.URL.Path))

		record, err := s.IdempotencyStore.Get(ctx, key)
		if err != nil {
			log.ErrorContext(ctx, "idempotency store get error", slog.String("error", err.Error()))
			next.ServeHTTP(w, r)
			return
		}
		if record != nil {
			s.answerExisting(w, r, log, record)
			return
		}

		if err := s.IdempotencyStore.Create(ctx, key); err != nil {
			if errors.Is(err, ErrIdempotencyKeyExists) {
				s.conflict(w, r, log)
				return
			}
			log.ErrorContext(ctx, "idempotency store create error", slog.String("error", err.Error()))
			next.ServeHTTP(w, r)
			return
		}

		// The request context may be expired by now; persist regardless.
		storeCtx := context.WithoutCancel(ctx)

		// A panicking handler never reaches Complete or Release; free the key
		// before Recoverer answers 500.
		defer func() {
			if rvr := recover(); rvr != nil {
				if err := s.IdempotencyStore.Release(storeCtx, key); err != nil {
					log.ErrorContext(ctx, "idempotency store release error", slog.String("error", err.Error()))
				}
				panic(rvr)
			}
		}()

		capturer := newResponseCapturer(w)
		next.ServeHTTP(capturer, r)

		if status := capturer.StatusCode(); status < http.StatusInternalServerError {
			rec := IdempotencyRecord{
				Status:       IdempotencyStatusCompleted,
				ResponseCode: status,
				ContentType:  capturer.Header().Get("Content-Type"),
				Disposition:  capturer.Header().Get("Content-Disposition"),
				ResponseBody: bytes.Clone(capturer.Body()),
			}
			if err := s.IdempotencyStore.Complete(storeCtx, key, rec); err != nil {
				log.ErrorContext(ctx, "idempotency store complete error", slog.String("error", err.Error()))
			}
		} else if err := s.IdempotencyStore.Release(storeCtx, key); err != nil {
			log.ErrorContext(ctx, "idempotency store release error", slog.String("error", err.Error()))
		}

		capturer.Flush()
	})
}

func (s *Server) answerExisting(w http.ResponseWriter, r *http.Request, log *slog.Logger, rec *IdempotencyRecord) {
	if rec.Status != IdempotencyStatusCompleted {
		s.conflict(w, r, log)
		return
	}

	log.InfoContext(r.Context(), "replaying idempotent response", slog.Int("cached_status", rec.ResponseCode))
	contentType := rec.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	if rec.Disposition != "" {
		w.Header().Set("Content-Disposition", rec.Disposition)
	}
	w.Header().Set("X-Idempotent-Replayed", "true")
	w.WriteHeader(rec.ResponseCode)
	_, _ = w.Write(rec.ResponseBody)
}

func (s *Server) conflict(w http.ResponseWriter, r *http.Request, log *slog.Logger) {
	log.WarnContext(r.Context(), "idempotency key in progress")
	Error(w, r, types.NewAppError(
		types.ErrCodeConflictIdempotency,
		"a request with this idempotency key is currently being processed",
		nil,
	))
}
