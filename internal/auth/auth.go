// Package auth issues and verifies admin bearer tokens and handles login.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/sonpython/sms-api/internal/logging"
	"github.com/sonpython/sms-api/internal/metrics"
	"github.com/sonpython/sms-api/internal/protocol"
)

// TokenTTL is how long an issued admin token stays valid. There is no
// revocation: a token remains usable for its full lifetime.
const TokenTTL = 24 * time.Hour

// Subject is the only principal this gateway knows.
const Subject = "admin"

// ErrInvalidToken covers malformed, badly signed, and expired tokens.
var ErrInvalidToken = errors.New("invalid token")

// Claims holds the admin token claims.
type Claims struct {
	jwt.RegisteredClaims
}

// Auth issues and verifies tokens and checks the admin key.
type Auth struct {
	secret   []byte
	adminKey []byte
}

// New creates an Auth from the configured signing secret and admin key.
func New(secretKey, adminKey string) *Auth {
	return &Auth{
		secret:   []byte(secretKey),
		adminKey: []byte(adminKey),
	}
}

// Issue signs a new HS256 admin token valid for TokenTTL.
func (a *Auth) Issue() (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   Subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry and returns the token subject.
func (a *Auth) Verify(tokenStr string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// CheckAdminKey compares a caller-supplied key against the configured
// admin key in constant time.
func (a *Auth) CheckAdminKey(key string) bool {
	return subtle.ConstantTimeCompare([]byte(key), a.adminKey) == 1
}

// HandleLogin handles POST /admin/login: form field admin_key, returns a
// fresh token on match.
func (a *Auth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		sendAuthError(w, http.StatusUnprocessableEntity, "MISSING_FIELD")
		return
	}
	// An empty value that was submitted still reaches the compare; only
	// an absent field is a validation error.
	if !r.PostForm.Has("admin_key") {
		sendAuthError(w, http.StatusUnprocessableEntity, "MISSING_FIELD")
		return
	}
	key := r.PostFormValue("admin_key")

	if !a.CheckAdminKey(key) {
		metrics.RecordAuthAttempt(false)
		logging.Warn("login failed: wrong admin key", zap.String("remote_addr", r.RemoteAddr))
		sendAuthError(w, http.StatusForbidden, "INVALID_ADMIN_KEY")
		return
	}

	token, err := a.Issue()
	if err != nil {
		metrics.RecordAuthAttempt(false)
		logging.Error("failed to sign token", zap.Error(err))
		sendAuthError(w, http.StatusInternalServerError, "TOKEN_SIGNING_FAILED")
		return
	}

	metrics.RecordAuthAttempt(true)
	logging.Info("admin login successful", zap.String("remote_addr", r.RemoteAddr))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(protocol.LoginResponse{Token: token})
}

// Middleware returns HTTP middleware that requires a valid bearer token.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := ExtractToken(r)
		if tokenStr == "" {
			metrics.RecordAuthAttempt(false)
			sendAuthError(w, http.StatusUnauthorized, "INVALID_TOKEN")
			return
		}
		if _, err := a.Verify(tokenStr); err != nil {
			metrics.RecordAuthAttempt(false)
			sendAuthError(w, http.StatusUnauthorized, "INVALID_TOKEN")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ExtractToken pulls the bearer token from the Authorization header, with
// a query-parameter fallback for WebSocket connections.
func ExtractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func sendAuthError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(protocol.ErrorResponse{
		Error: message,
		Code:  code,
	})
}
