package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/voicelocal/voicelocal/internal/ctxutil"
	"github.com/voicelocal/voicelocal/internal/logger"
	"github.com/voicelocal/voicelocal/internal/models"
)

// Headers carrying the mock identity of the caller.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserName  = "X-User-Name"
	HeaderUserRole  = "X-User-Role"
	HeaderRequestID = "X-Request-ID"
)

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", strings.Join([]string{
			"Content-Type", HeaderUserID, HeaderUserName, HeaderUserRole, HeaderRequestID,
		}, ", "))
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// actorMiddleware puts the user named by the identity headers in the
// request context. Requests without them stay anonymous.
func actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}
		u := &models.User{
			ID:          id,
			DisplayName: strings.TrimSpace(r.Header.Get(HeaderUserName)),
			Role:        models.UserRole(strings.ToLower(r.Header.Get(HeaderUserRole))),
		}
		if u.DisplayName == "" {
			u.DisplayName = id
		}
		switch u.Role {
		case models.UserRoleAdmin, models.UserRoleModerator:
		default:
			u.Role = models.UserRoleUser
		}
		ctx := ctxutil.WithActor(r.Context(), u)
		ctx = logger.WithLogFields(ctx, logger.LogFields{UserID: id})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireActor(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	u := ctxutil.ActorFromContext(r.Context())
	if u == nil {
		writeError(w, http.StatusUnauthorized, "missing "+HeaderUserID+" header")
		return nil, false
	}
	return u, true
}

func requireAdmin(w http.ResponseWriter, u *models.User) bool {
	if !u.IsAdmin() {
		writeError(w, http.StatusForbidden, "admin role required")
		return false
	}
	return true
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// logRequests tags each request with an id and logs its outcome.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get(HeaderRequestID)
		if reqID == "" {
			reqID = ulid.Make().String()
		}
		w.Header().Set(HeaderRequestID, reqID)
		ctx := logger.WithLogFields(r.Context(), logger.LogFields{RequestID: reqID})

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		s.log.InfoContext(ctx, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
