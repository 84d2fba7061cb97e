package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"go.pilab.hu/trustgate/cookies"
	"go.pilab.hu/trustgate/domain"
	"go.pilab.hu/trustgate/internal/metrics"
)

// Decision is the guard's verdict for a single request.
type Decision int

const (
	Allow Decision = iota
	Redirect
)

// Guard is the edge access gate. It reads only the two session cookies and
// never calls out, which is what makes it deployable per-request with zero
// added latency. Revocation detection is deliberately not its job; that
// belongs to the device trust watcher.
type Guard struct {
	protected []string
	loginPath string
}

// NewGuard creates a Guard for the given protected path prefixes. loginPath
// defaults to "/login".
func NewGuard(protectedPrefixes []string, loginPath string) *Guard {
	if loginPath == "" {
		loginPath = "/login"
	}
	prefixes := make([]string, 0, len(protectedPrefixes))
	for _, p := range protectedPrefixes {
		p = strings.TrimSuffix(p, "/")
		if p != "" {
			prefixes = append(prefixes, p)
		}
	}
	return &Guard{protected: prefixes, loginPath: loginPath}
}

// Protected reports whether the path falls under a protected prefix. A prefix
// matches itself and its sub-paths, never unrelated siblings ("/dashboard"
// does not protect "/dashboard-public").
func (g *Guard) Protected(path string) bool {
	for _, p := range g.protected {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// Decide implements the access table. Access is allowed iff the path is
// unprotected, or an authenticated cookie is present with no pending second
// factor. A pending factor blocks even alongside an authenticated cookie.
func (g *Guard) Decide(path string, hasSession, hasMFAPending bool) Decision {
	if !g.Protected(path) {
		return Allow
	}
	if domain.DeriveTrustState(hasSession, hasMFAPending) == domain.TrustAuthenticated {
		return Allow
	}
	return Redirect
}

// LoginRedirect builds the login URL carrying the originally requested path
// as the return parameter.
func (g *Guard) LoginRedirect(path string) string {
	return g.loginPath + "?redirect=" + url.QueryEscape(path)
}

// Middleware returns the echo middleware enforcing the guard.
func (g *Guard) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if !g.Protected(path) {
				return next(c)
			}

			hasSession := hasCookie(c, cookies.SessionCookie)
			hasMFAPending := hasCookie(c, cookies.MFAPendingCookie)
			if g.Decide(path, hasSession, hasMFAPending) == Redirect {
				metrics.GuardRedirectsTotal.Inc()
				return c.Redirect(http.StatusFound, g.LoginRedirect(path))
			}

			// Responses behind the guard carry per-user state; shared caches
			// must never serve them to the next visitor.
			c.Response().Header().Set("Cache-Control", "no-store")
			metrics.GuardAllowsTotal.Inc()
			return next(c)
		}
	}
}

func hasCookie(c echo.Context, name string) bool {
	ck, err := c.Cookie(name)
	return err == nil && ck.Value != ""
}
