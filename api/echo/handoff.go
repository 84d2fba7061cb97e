package echo

import (
	stderrors "errors"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/trustgate/cookies"
	"go.pilab.hu/trustgate/errors"
	"go.pilab.hu/trustgate/services"
)

// OAuthStartHandler begins the handoff: it binds a fresh CSRF nonce to the
// state cookie and redirects the browser to the external provider.
func (a *TrustAPI) OAuthStartHandler(c echo.Context) error {
	jar := cookies.NewEchoJar(c, a.codec)
	authURL, err := a.handoff.Begin(jar, c.QueryParam("redirect"))
	if err != nil {
		log.Error().Err(err).Msg("Failed to begin OAuth handoff")
		return a.loginError(c, "Could not start sign-in, please try again")
	}
	return c.Redirect(http.StatusFound, authURL)
}

// OAuthCallbackHandler completes the handshake. Every failure redirects to
// the login surface with a human-readable error; a session is never left
// half-applied.
func (a *TrustAPI) OAuthCallbackHandler(c echo.Context) error {
	if provErr := c.QueryParam("error"); provErr != "" {
		log.Warn().Str("error", provErr).Msg("External provider returned an error on callback")
		return a.loginError(c, "Sign-in was cancelled or rejected")
	}

	jar := cookies.NewEchoJar(c, a.codec)
	_, redirectTo, err := a.handoff.Complete(
		c.Request().Context(),
		jar,
		c.QueryParam("state"),
		c.QueryParam("code"),
	)
	if err != nil {
		switch {
		case stderrors.Is(err, errors.ErrStateMissing):
			return a.loginError(c, "Your sign-in attempt expired, please try again")
		case stderrors.Is(err, errors.ErrStateMismatch):
			return a.loginError(c, "Sign-in could not be verified, please try again")
		default:
			log.Error().Err(err).Msg("OAuth handoff failed")
			return a.loginError(c, "Sign-in failed, please try again")
		}
	}

	finalize := a.finalizePath + "?redirect=" + url.QueryEscape(redirectTo)
	return c.Redirect(http.StatusFound, finalize)
}

// OAuthFinalizeHandler consumes the staged credential exactly once and
// applies it as the active session, then routes either to MFA completion or
// to the originally intended path.
func (a *TrustAPI) OAuthFinalizeHandler(c echo.Context) error {
	jar := cookies.NewEchoJar(c, a.codec)

	tokens, err := a.handoff.Finalize(jar)
	if err != nil {
		// Already consumed, expired, or never staged: fail closed.
		return a.loginError(c, "Your sign-in attempt expired, please try again")
	}

	result, err := a.sessions.ApplySession(c.Request().Context(), jar, *tokens)
	if err != nil {
		log.Error().Err(err).Msg("Failed to apply staged session")
		return a.loginError(c, "Sign-in failed, please try again")
	}

	if result.MFAPending {
		return c.Redirect(http.StatusFound, a.mfaPath)
	}

	return c.Redirect(http.StatusFound, services.SanitizeRedirect(c.QueryParam("redirect")))
}

func (a *TrustAPI) loginError(c echo.Context, message string) error {
	return c.Redirect(http.StatusFound, a.loginPath+"?error="+url.QueryEscape(message))
}
