package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"ecoquote/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const staffIDKey contextKey = "staffID"
const roleKey contextKey = "role"

const staffIssuer = "ecoquote/staff"

// SessionTTL bounds every staff session; expiry is enforced here, not by clients.
const SessionTTL = 24 * time.Hour

var ErrInvalidToken = errors.New("invalid token")

// StaffClaims are carried by staff bearer tokens
type StaffClaims struct {
	Role model.Role `json:"role"`
	jwt.RegisteredClaims
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SecretKey string
	TTL       time.Duration
	now       func() time.Time
}

// NewJWTConfig creates a new JWT config
func NewJWTConfig(secretKey string) *JWTConfig {
	if secretKey == "" {
		secretKey = "default-secret-key-change-in-production" // Default for development
	}
	return &JWTConfig{SecretKey: secretKey, TTL: SessionTTL, now: time.Now}
}

// Issue signs a bearer token for a staff member
func (c *JWTConfig) Issue(staffID string, role model.Role) (string, time.Time, error) {
	now := c.now()
	expiresAt := now.Add(c.TTL)
	claims := StaffClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    staffIssuer,
			Subject:   staffID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.SecretKey))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse verifies signature, issuer, expiry and role of a bearer token
func (c *JWTConfig) Parse(tokenString string) (*StaffClaims, error) {
	claims := &StaffClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(c.SecretKey), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(staffIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// BearerToken extracts the token from "Authorization: Bearer <token>"
func BearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// Middleware attaches staff identity to the request context when a bearer
// token is present. Requests without Authorization pass through anonymously;
// a present but invalid token is rejected.
func (c *JWTConfig) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			next.ServeHTTP(w, r)
			return
		}

		tokenString, ok := BearerToken(r)
		if !ok {
			writeAuthError(w, http.StatusUnauthorized, "Invalid authorization header")
			return
		}

		claims, err := c.Parse(tokenString)
		if err != nil {
			writeAuthError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx := WithStaff(r.Context(), claims.Subject, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireStaff rejects anonymous requests and, when roles are given, staff
// whose role is not listed.
func RequireStaff(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetStaffID(r.Context()) == "" {
				writeAuthError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if len(roles) > 0 {
				role := GetRole(r.Context())
				allowed := false
				for _, want := range roles {
					if role == want {
						allowed = true
						break
					}
				}
				if !allowed {
					writeAuthError(w, http.StatusForbidden, "Insufficient role")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithStaff stores staff identity in context
func WithStaff(ctx context.Context, staffID string, role model.Role) context.Context {
	ctx = context.WithValue(ctx, staffIDKey, staffID)
	return context.WithValue(ctx, roleKey, role)
}

// GetStaffID extracts staff ID from context
func GetStaffID(ctx context.Context) string {
	if staffID, ok := ctx.Value(staffIDKey).(string); ok {
		return staffID
	}
	return ""
}

// GetRole extracts staff role from context
func GetRole(ctx context.Context) model.Role {
	if role, ok := ctx.Value(roleKey).(model.Role); ok {
		return role
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"code":  "unauthorized",
	})
}
