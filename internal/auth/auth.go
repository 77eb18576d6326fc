// Package auth verifies bearer tokens issued by the identity provider and
// attaches the calling user to the request context.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"freelance/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var ErrInvalidToken = errors.New("invalid or expired token")

type contextKey struct{}

// NewToken signs an HS256 token whose subject is userId.
func NewToken(secret, userId string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userId,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("auth.NewToken: %w", err)
	}
	return token, nil
}

// ParseToken verifies token and returns its subject.
func ParseToken(secret, token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("auth.ParseToken: %w: %w", ErrInvalidToken, err)
	}
	if len(claims.Subject) == 0 {
		return "", fmt.Errorf("auth.ParseToken: missing subject: %w", ErrInvalidToken)
	}
	return claims.Subject, nil
}

type Authenticator interface {
	Authenticate(ctx context.Context, userId string) (models.User, error)
}

// Middleware rejects requests without a valid bearer token of a known user
// with 401.
func Middleware(secret string, users Authenticator, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if len(header) == 0 || !ok || len(token) == 0 {
				unauthorized(w, "missing or malformed authorization header")
				return
			}

			userId, err := ParseToken(secret, token)
			if err != nil {
				log.Debug("rejected token", zap.Error(err))
				unauthorized(w, ErrInvalidToken.Error())
				return
			}

			user, err := users.Authenticate(r.Context(), userId)
			switch {
			case errors.Is(err, models.ErrInvalidUser):
				unauthorized(w, "user does not exist")
				return
			case err != nil:
				log.Error("could not load user", zap.String("user_id", userId), zap.Error(err))
				writeReason(w, http.StatusInternalServerError, "could not authenticate user")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func WithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(contextKey{}).(models.User)
	return user, ok
}

func unauthorized(w http.ResponseWriter, reason string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeReason(w, http.StatusUnauthorized, reason)
}

func writeReason(w http.ResponseWriter, status int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"reason": reason})
}
