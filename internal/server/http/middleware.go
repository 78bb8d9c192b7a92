package http

import (
	"net/http"
	"time"

	"taskpilot/internal/logging"
	id "taskpilot/internal/utils/id"
)

// CORSMiddleware answers preflight requests and stamps the CORS headers for
// the configured origins. An empty origin list allows any origin.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				if len(allowed) == 0 {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else if _, ok := allowed[origin]; ok {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin")
				}
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-Id, X-User-Email")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IdentityMiddleware lifts the caller's opaque identity headers onto the
// request context. The values are never validated here; the identity
// provider upstream owns that.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := r.Header.Get("X-User-Id")
		if userID == "" {
			userID = "anonymous"
		}
		ctx = id.WithUserID(ctx, userID)
		if email := r.Header.Get("X-User-Email"); email != "" {
			ctx = id.WithUserEmail(ctx, email)
		}
		ctx, _ = id.EnsureRequestID(ctx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestLogMiddleware logs method, path, status, and latency per request.
func RequestLogMiddleware(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			logger.Debug("%s %s -> %d (%v)", r.Method, r.URL.Path, recorder.status, time.Since(started))
		})
	}
}

// statusRecorder captures the response status while passing Flush through so
// SSE streaming keeps working behind the middleware chain.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
