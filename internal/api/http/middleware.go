package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"toolshare-backend/internal/logger"
	"toolshare-backend/internal/security"

	"github.com/google/uuid"
)

type ctxKey int

const actorKey ctxKey = iota

const requestIDHeader = "X-Request-ID"

// ActorFromContext returns the authenticated user id.
func ActorFromContext(ctx context.Context) (int32, bool) {
	id, ok := ctx.Value(actorKey).(int32)
	return id, ok
}

// requestLogging tags the request context with a request id and logs the
// outcome of every call.
func requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, reqID)
		ctx := logger.WithRequest(r.Context(), "requestID", reqID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))
		logger.FromContext(ctx).Info("HTTP request",
			"method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// bearerAuth validates the access token and stores the actor id.
func bearerAuth(tm security.TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token := strings.TrimPrefix(header, "Bearer ")
			if header == "" || token == header {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "UNAUTHENTICATED", Message: "authorization token is not provided"})
				return
			}
			claims, err := tm.ValidateToken(token)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "UNAUTHENTICATED", Message: err.Error()})
				return
			}
			ctx := context.WithValue(r.Context(), actorKey, claims.UserID)
			ctx = logger.WithRequest(ctx, "actorID", claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
