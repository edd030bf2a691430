package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/colitas-felices/clinic/internal/shared/config"
	"github.com/colitas-felices/clinic/internal/shared/types"
)

type contextKey string

const userContextKey contextKey = "auth.user"

// Claims carried in every access token.
type Claims struct {
	UserID      types.ID `json:"uid"`
	Username    string   `json:"username"`
	Role        string   `json:"role"`
	ProfileID   types.ID `json:"profile_id"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// User is the authenticated principal extracted from the token.
type User struct {
	ID          types.ID
	Username    string
	Role        string
	ProfileID   types.ID
	Permissions []string
}

func (u User) Can(perm string) bool {
	return HasPermission(u.Permissions, perm)
}

// GenerateToken signs a new access token for the given user.
func GenerateToken(cfg config.AuthConfig, user User) (string, time.Time, error) {
	expiresAt := time.Now().Add(cfg.AccessTokenTTL)
	claims := Claims{
		UserID:      user.ID,
		Username:    user.Username,
		Role:        user.Role,
		ProfileID:   user.ProfileID,
		Permissions: user.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    "clinic-api",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseToken validates a signed token and returns its claims.
func ParseToken(cfg config.AuthConfig, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// Middleware authenticates requests via the Authorization bearer header
// and stores the resulting User in the request context.
func Middleware(cfg config.AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				unauthorized(w, "falta el encabezado Authorization")
				return
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				unauthorized(w, "formato de autorizacion invalido")
				return
			}

			claims, err := ParseToken(cfg, parts[1])
			if err != nil {
				unauthorized(w, "token invalido o expirado")
				return
			}

			user := User{
				ID:          claims.UserID,
				Username:    claims.Username,
				Role:        claims.Role,
				ProfileID:   claims.ProfileID,
				Permissions: claims.Permissions,
			}
			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUser returns the authenticated user stored by Middleware.
func GetUser(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(userContextKey).(User)
	return user, ok
}

// WithUser returns a context carrying the given user. Intended for tests.
func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// RequireRoles allows the request only when the user's role matches one
// of the given roles.
func RequireRoles(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUser(r.Context())
			if !ok {
				unauthorized(w, "no autenticado")
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			forbidden(w, "rol sin acceso a este recurso")
		})
	}
}

// RequirePermissions allows the request only when the user holds every
// listed permission.
func RequirePermissions(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUser(r.Context())
			if !ok {
				unauthorized(w, "no autenticado")
				return
			}
			for _, perm := range perms {
				if !user.Can(perm) {
					forbidden(w, "permiso insuficiente: "+perm)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", msg)
}

func forbidden(w http.ResponseWriter, msg string) {
	writeAuthError(w, http.StatusForbidden, "FORBIDDEN", msg)
}

func writeAuthError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": msg,
		},
	})
}
