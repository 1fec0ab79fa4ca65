package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const userHeader = "X-User-ID"

// authMiddleware returns a middleware that validates bearer tokens.
// If token is empty, no authentication is required and all requests pass through.
// Otherwise, requests must include "Authorization: Bearer <token>" header.
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	if s.token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			s.writeFailure(w, r, http.StatusUnauthorized, ErrorBody{Code: "unauthorized", Message: "missing bearer token"})
			return
		}
		presented := strings.TrimPrefix(auth, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(presented), []byte(s.token)) != 1 {
			s.writeFailure(w, r, http.StatusUnauthorized, ErrorBody{Code: "unauthorized", Message: "invalid bearer token"})
			return
		}
		next(w, r)
	}
}

// actingUser returns the X-User-ID header.
func actingUser(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(userHeader))
}
