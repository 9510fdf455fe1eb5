package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/danghamo/tourguide/internal/api/jsonrpcx"
	"github.com/danghamo/tourguide/pkg/config"
	"github.com/danghamo/tourguide/pkg/logger"
)

// UserContextKey is the key for storing user info in request context
type UserContextKey string

const (
	// UserIDContextKey stores the user ID in context
	UserIDContextKey UserContextKey = "user_id"
	// UserNameContextKey stores the user name in context
	UserNameContextKey UserContextKey = "user_name"
)

// Claims are the JWT claims issued by the account service
type Claims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware verifies bearer tokens. When auth is disabled every request
// runs as the configured device user.
type AuthMiddleware struct {
	enabled      bool
	secret       []byte
	issuer       string
	deviceUserID string
	logger       *logger.Logger
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(cfg config.AuthConfig, logger *logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		enabled:      cfg.Enabled,
		secret:       []byte(cfg.JWTSecret),
		issuer:       cfg.Issuer,
		deviceUserID: cfg.DeviceUserID,
		logger:       logger.WithComponent("auth-middleware"),
	}
}

// ValidateToken parses and verifies an HS256 token
func (m *AuthMiddleware) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no user id")
	}
	return claims, nil
}

// RequireAuth returns a middleware that requires a bearer token
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.enabled {
			next.ServeHTTP(w, r.WithContext(m.withDevice(r.Context())))
			return
		}

		tokenString, ok := bearerToken(r)
		if !ok {
			m.logger.Debug("Missing or malformed Authorization header")
			jsonrpcx.WithError(r, nil, jsonrpcx.Unauthorized, "Missing Authorization header")
			return
		}

		claims, err := m.ValidateToken(tokenString)
		if err != nil {
			m.logger.Debug("Invalid JWT token", zap.Error(err))
			jsonrpcx.WithError(r, nil, jsonrpcx.Unauthorized, "Invalid or expired token")
			return
		}

		m.logger.Debug("JWT authentication successful", zap.String("userId", claims.UserID))
		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

// RequireSSEAuth authenticates streaming endpoints. Browsers cannot set
// headers on EventSource or WebSocket, so the token may come as ?token=.
func (m *AuthMiddleware) RequireSSEAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.enabled {
			next.ServeHTTP(w, r.WithContext(m.withDevice(r.Context())))
			return
		}

		tokenString, ok := bearerToken(r)
		if !ok {
			tokenString = r.URL.Query().Get("token")
		}
		if tokenString == "" {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		claims, err := m.ValidateToken(tokenString)
		if err != nil {
			m.logger.Debug("Invalid stream token", zap.Error(err))
			http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

func (m *AuthMiddleware) withDevice(ctx context.Context) context.Context {
	return context.WithValue(ctx, UserIDContextKey, m.deviceUserID)
}

func withClaims(ctx context.Context, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, UserIDContextKey, claims.UserID)
	return context.WithValue(ctx, UserNameContextKey, claims.Name)
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// GetUserID extracts user ID from request context
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDContextKey).(string)
	return userID, ok && userID != ""
}

// GetUserName extracts user name from request context
func GetUserName(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(UserNameContextKey).(string)
	return name, ok
}
