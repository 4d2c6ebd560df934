package authtest

import (
	"context"
	"net/http"
)

// Principal is the authenticated caller of a protected route.
type Principal struct {
	UserID    string
	SessionID string
	Role      string
}

type principalContextKey struct{}

// PrincipalFromContext returns the caller injected by the guard.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}

// guard rejects requests without a valid, current access cookie with 401.
func (s *Server) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.protectedCalls.Add(1)

		cookie, err := r.Cookie(AccessCookie)
		if err != nil || cookie.Value == "" {
			s.reject(w, r, "missing session")
			return
		}
		claims, err := s.tokens.Parse(cookie.Value)
		if err != nil {
			s.reject(w, r, "invalid session")
			return
		}
		if claims.Generation != s.generation.Load() {
			s.reject(w, r, "session expired")
			return
		}

		ctx := context.WithValue(r.Context(), principalContextKey{}, Principal{
			UserID:    claims.UID,
			SessionID: claims.SID,
			Role:      claims.Role,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request, msg string) {
	s.rejected.Add(1)
	s.logRequest(r, http.StatusUnauthorized)
	WriteError(w, http.StatusUnauthorized, msg)
}
