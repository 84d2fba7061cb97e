package echo

import (
	stderrors "errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/trustgate/errors"
)

// MFAStateHandler reports the caller's enrollment state.
func (a *TrustAPI) MFAStateHandler(c echo.Context) error {
	info, err := a.authenticate(c)
	if err != nil {
		return a.authError(c, err)
	}

	state, err := a.mfa.State(c.Request().Context(), info.UserID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errors.NewServerError("Failed to read MFA state"))
	}
	return c.JSON(http.StatusOK, echo.Map{"state": state})
}

type mfaEnrollRequest struct {
	FriendlyName string `json:"friendlyName"`
}

// MFAEnrollHandler starts enrollment and returns the factor secret and QR
// URI. Stale unverified factors from abandoned attempts are cleaned up first.
func (a *TrustAPI) MFAEnrollHandler(c echo.Context) error {
	info, err := a.authenticate(c)
	if err != nil {
		return a.authError(c, err)
	}

	var req mfaEnrollRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("Malformed request body"))
	}

	enrollment, err := a.mfa.BeginEnrollment(c.Request().Context(), info.UserID, req.FriendlyName)
	if err != nil {
		log.Error().Err(err).Str("user_id", info.UserID).Msg("MFA enrollment failed")
		return c.JSON(http.StatusInternalServerError, errors.NewServerError("Failed to begin enrollment"))
	}
	return c.JSON(http.StatusOK, enrollment)
}

type mfaVerifyRequest struct {
	FactorID string `json:"factorId"`
	Code     string `json:"code"`
}

// MFAVerifyHandler verifies a code against a factor. A fresh challenge is
// issued server-side immediately before the verify call.
func (a *TrustAPI) MFAVerifyHandler(c echo.Context) error {
	info, err := a.authenticate(c)
	if err != nil {
		return a.authError(c, err)
	}

	var req mfaVerifyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("Malformed request body"))
	}
	if req.FactorID == "" || req.Code == "" {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("factorId and code are required"))
	}

	if err := a.mfa.Verify(c.Request().Context(), info.UserID, req.FactorID, req.Code); err != nil {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("Verification failed"))
	}
	return c.JSON(http.StatusOK, echo.Map{"verified": true})
}

// MFADisableHandler removes the caller's verified factor. The absence of one
// is a 400, not a silent success.
func (a *TrustAPI) MFADisableHandler(c echo.Context) error {
	info, err := a.authenticate(c)
	if err != nil {
		return a.authError(c, err)
	}

	if err := a.mfa.Disable(c.Request().Context(), info.UserID); err != nil {
		if stderrors.Is(err, errors.ErrFactorNotFound) {
			return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("No verified factor to disable"))
		}
		log.Error().Err(err).Str("user_id", info.UserID).Msg("MFA disable failed")
		return c.JSON(http.StatusInternalServerError, errors.NewServerError("Failed to disable MFA"))
	}
	return c.JSON(http.StatusOK, echo.Map{"disabled": true})
}
