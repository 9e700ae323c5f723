package auth

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
	UserNameKey  contextKey = "user_name"
)

// Roles recognised by the review API.
const (
	RoleClinician = "clinician"
	RoleAuditor   = "auditor"
	RoleAdmin     = "admin"
)

type Claims struct {
	jwt.RegisteredClaims
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles"`
}

type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// SigningKey selects HS256 validation; otherwise RS256 against the JWKS.
	SigningKey []byte
	Skipper    middleware.Skipper
}

// keySource resolves the JWKS lazily so an identity provider that is down at
// boot does not take the server with it.
type keySource struct {
	mu      sync.Mutex
	issuer  string
	jwksURL string
	cache   *JWKSCache
}

func (k *keySource) keyfunc(token *jwt.Token) (interface{}, error) {
	k.mu.Lock()
	if k.cache == nil {
		url := k.jwksURL
		if url == "" {
			var err error
			if url, err = DiscoverJWKSURL(k.issuer); err != nil {
				k.mu.Unlock()
				return nil, err
			}
		}
		k.cache = NewJWKSCache(url, defaultJWKSCacheTTL)
	}
	cache := k.cache
	k.mu.Unlock()
	return cache.Keyfunc(token)
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	skipper := cfg.Skipper
	if skipper == nil {
		skipper = middleware.DefaultSkipper
	}

	opts := []jwt.ParserOption{}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	var keyfunc jwt.Keyfunc
	if len(cfg.SigningKey) > 0 {
		opts = append(opts, jwt.WithValidMethods([]string{"HS256"}))
		keyfunc = func(*jwt.Token) (interface{}, error) { return cfg.SigningKey, nil }
	} else {
		opts = append(opts, jwt.WithValidMethods([]string{"RS256"}))
		keyfunc = (&keySource{issuer: cfg.Issuer, jwksURL: cfg.JWKSURL}).keyfunc
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper(c) {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(strings.TrimSpace(parts[1]), claims, keyfunc, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if claims.Subject == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "token has no subject")
			}

			setIdentity(c, claims.Subject, claims.Name, claims.Roles)
			return next(c)
		}
	}
}

// DevAuthMiddleware lets unauthenticated requests through as an admin
// "dev-user". Only wired when AUTH_MODE=development.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid := c.Request().Header.Get("X-Dev-User")
			if uid == "" {
				uid = "dev-user"
			}
			setIdentity(c, uid, "Development User", []string{RoleAdmin})
			return next(c)
		}
	}
}

// setIdentity stores the caller on both the request context (for services)
// and the echo context (for the logger and rate limiter).
func setIdentity(c echo.Context, uid, name string, roles []string) {
	c.Set(string(UserIDKey), uid)

	ctx := c.Request().Context()
	ctx = context.WithValue(ctx, UserIDKey, uid)
	ctx = context.WithValue(ctx, UserNameKey, name)
	ctx = context.WithValue(ctx, UserRolesKey, roles)
	c.SetRequest(c.Request().WithContext(ctx))
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func UserNameFromContext(ctx context.Context) string {
	name, _ := ctx.Value(UserNameKey).(string)
	return name
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}
