package devserver

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/storefront/client"
	"github.com/jmcleod/storefront/internal/util"
)

type contextKey int

const claimsKey contextKey = iota

// handleLogin verifies credentials and issues a bearer token. The user
// profile rides along so well-behaved clients skip the follow-up /me call.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[client.LoginRequest](w, r)
	if !ok {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, "email and password are required")
		return
	}

	s.mu.Lock()
	acct := s.accounts[util.NormalizeEmail(req.Email)]
	s.mu.Unlock()
	if acct == nil {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(util.Normalize(req.Password))) != nil {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	token, _, err := s.tokens.issue(acct.user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue session token")
		return
	}

	s.logger.Info("login", slog.Int64("user_id", acct.user.ID))
	user := acct.user
	writeJSON(w, http.StatusOK, client.LoginResponse{Token: token, User: &user})
}

// authMiddleware validates the bearer token and rejects revoked sessions.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := s.tokens.validate(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid session token")
			return
		}
		s.mu.Lock()
		_, revoked := s.revoked[claims.ID]
		s.mu.Unlock()
		if revoked {
			writeError(w, http.StatusUnauthorized, "session has ended")
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFrom(r *http.Request) *sessionClaims {
	return r.Context().Value(claimsKey).(*sessionClaims)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acct := range s.accounts {
		if acct.user.ID == claims.UserID {
			writeJSON(w, http.StatusOK, acct.user)
			return
		}
	}
	writeError(w, http.StatusUnauthorized, "account no longer exists")
}

// handleLogout revokes the presented session. The user's cart is kept; it
// is durable server state that the next login merges into.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	s.mu.Lock()
	s.revoked[claims.ID] = struct{}{}
	s.mu.Unlock()
	s.logger.Info("logout", slog.Int64("user_id", claims.UserID))
	w.WriteHeader(http.StatusNoContent)
}
