package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// UserIDHeader carries the owner identity when no JWT secret is configured.
const UserIDHeader = "X-User-ID"

type ownerKey struct{}

// OwnerFromContext returns the authenticated owner set by requireOwner.
func OwnerFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ownerKey{}).(string)
	return id, ok && id != ""
}

func withOwner(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ownerKey{}, id)
}

// requireOwner authenticates the request. With a configured secret only an HS256 bearer token
// whose subject names the owner is accepted; otherwise the X-User-ID header is trusted.
func (s *Server) requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, err := s.authenticate(r)
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, codeUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(withOwner(r.Context(), owner)))
	})
}

func (s *Server) authenticate(r *http.Request) (string, error) {
	secret := s.config.Auth.JWTSecret
	if secret == "" {
		id := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if id == "" {
			return "", errors.New("missing " + UserIDHeader + " header")
		}
		return id, nil
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("missing authorization header")
	}
	tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || strings.TrimSpace(tokenString) == "" {
		return "", errors.New("invalid authorization header format")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.config.Auth.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Auth.Issuer))
	}
	token, err := jwt.Parse(strings.TrimSpace(tokenString), func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil || !token.Valid {
		return "", errors.New("invalid or expired token")
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}
