package runtime

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/earshotfm/earshot/config"
)

// ScopeAdmin marks tokens allowed to call administrative endpoints.
const ScopeAdmin = "admin"

// LoadJWTSecret resolves the shared JWT secret from config.
func LoadJWTSecret(cfg *config.Config) ([]byte, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if cfg.General.JWTSecret != "" {
		return []byte(cfg.General.JWTSecret), nil
	}
	return nil, errors.New("jwt secret not configured (general.jwt_secret)")
}

// SignJWT issues a signed token with the provided subject and TTL.
func SignJWT(subject string, secret []byte, ttl time.Duration, scopes ...string) (string, error) {
	claims := jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(ttl).Unix(),
	}
	if len(scopes) > 0 {
		claims["scopes"] = scopes
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// AccessChecker reports whether a subject may still use the API. A deleted
// account answers exists=false; a disabled one revoked=true.
type AccessChecker interface {
	Check(ctx context.Context, userID string) (exists bool, revoked bool, err error)
}

// EchoAuthMiddleware validates JWT tokens from the Authorization header or
// the auth cookie, then consults access for revocation. Tokens stay valid
// until expiry, so a disabled account is cut off by the access check rather
// than by the signature.
func EchoAuthMiddleware(secret []byte, access AccessChecker) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tok := extractToken(c)
			if tok == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
			}
			parsed, err := jwt.Parse(tok, func(t *jwt.Token) (interface{}, error) { return secret, nil })
			if err != nil || !parsed.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			claims, ok := parsed.Claims.(jwt.MapClaims)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
			}
			sub, ok := claims["sub"].(string)
			if !ok || sub == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
			}

			if access != nil {
				exists, revoked, err := access.Check(c.Request().Context(), sub)
				if err != nil {
					return echo.NewHTTPError(http.StatusServiceUnavailable, "authorization unavailable")
				}
				if !exists {
					return echo.NewHTTPError(http.StatusUnauthorized, "unknown account")
				}
				if revoked {
					return echo.NewHTTPError(http.StatusForbidden, "account disabled")
				}
			}

			c.Set("user_id", sub)
			if scopes := extractScopes(claims); len(scopes) > 0 {
				c.Set("scopes", scopes)
			}
			return next(c)
		}
	}
}

// UserID returns the authenticated subject set by EchoAuthMiddleware.
func UserID(c echo.Context) string {
	if v, ok := c.Get("user_id").(string); ok {
		return v
	}
	return ""
}

// IsAdmin reports whether the request token carries the admin scope.
func IsAdmin(c echo.Context) bool {
	return containsScope(getScopes(c), ScopeAdmin)
}

// RequireScopes ensures the caller token includes all required scopes.
func RequireScopes(required ...string) echo.MiddlewareFunc {
	reqSet := make([]string, 0, len(required))
	for _, scope := range required {
		scope = strings.TrimSpace(scope)
		if scope == "" {
			continue
		}
		reqSet = append(reqSet, scope)
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if len(reqSet) == 0 {
				return next(c)
			}
			existing := getScopes(c)
			for _, scope := range reqSet {
				if !containsScope(existing, scope) {
					return echo.NewHTTPError(http.StatusForbidden, "missing scope: "+scope)
				}
			}
			return next(c)
		}
	}
}

func extractToken(c echo.Context) string {
	if h := c.Request().Header.Get("Authorization"); len(h) > 7 && h[:7] == "Bearer " {
		return h[7:]
	}
	if ck, err := c.Cookie("auth"); err == nil {
		return ck.Value
	}
	return ""
}

func extractScopes(claims jwt.MapClaims) []string {
	if raw, ok := claims["scopes"]; ok {
		return normaliseScopes(raw)
	}
	if raw, ok := claims["scope"]; ok {
		return normaliseScopes(raw)
	}
	return nil
}

func normaliseScopes(raw interface{}) []string {
	switch v := raw.(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				s = strings.TrimSpace(s)
				if s != "" {
					out = append(out, s)
				}
			}
		}
		return out
	case []string:
		out := make([]string, 0, len(v))
		for _, s := range v {
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		return strings.Fields(v)
	default:
		return nil
	}
}

func getScopes(c echo.Context) []string {
	if c == nil {
		return nil
	}
	if raw := c.Get("scopes"); raw != nil {
		if scopes, ok := raw.([]string); ok {
			return scopes
		}
	}
	return nil
}

func containsScope(scopes []string, target string) bool {
	for _, scope := range scopes {
		if scope == target {
			return true
		}
	}
	return false
}
