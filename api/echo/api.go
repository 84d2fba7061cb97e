// Package echo exposes the trust layer over HTTP: session issuance, the
// device directory, MFA orchestration and the OAuth handoff endpoints.
package echo

import (
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/trustgate/cookies"
	"go.pilab.hu/trustgate/domain"
	"go.pilab.hu/trustgate/errors"
	"go.pilab.hu/trustgate/services"
	"go.pilab.hu/trustgate/signalbus"
)

// TrustAPI holds the handler dependencies.
type TrustAPI struct {
	sessions *services.SessionService
	handoff  *services.HandoffService
	mfa      *services.MFAService
	devices  domain.DeviceRepository
	provider domain.IdentityProvider
	bus      signalbus.Bus
	codec    cookies.Codec

	loginPath    string
	mfaPath      string
	finalizePath string
}

// NewTrustAPI initializes the trust API.
func NewTrustAPI(
	sessions *services.SessionService,
	handoff *services.HandoffService,
	mfa *services.MFAService,
	devices domain.DeviceRepository,
	provider domain.IdentityProvider,
	bus signalbus.Bus,
	codec cookies.Codec,
	loginPath string,
) *TrustAPI {
	if loginPath == "" {
		loginPath = "/login"
	}
	return &TrustAPI{
		sessions:     sessions,
		handoff:      handoff,
		mfa:          mfa,
		devices:      devices,
		provider:     provider,
		bus:          bus,
		codec:        codec,
		loginPath:    loginPath,
		mfaPath:      loginPath + "/mfa",
		finalizePath: "/auth/oauth/finalize",
	}
}

// RegisterRoutes registers the trust routes.
func (a *TrustAPI) RegisterRoutes(e *echo.Echo) {
	e.POST("/auth/session", a.EstablishHandler)
	e.DELETE("/auth/session", a.ClearHandler)

	e.GET("/auth/devices", a.ListDevicesHandler)
	e.POST("/auth/devices", a.RegisterDeviceHandler)
	e.POST("/auth/devices/:id/revoke", a.RevokeDeviceHandler)

	e.GET("/auth/identities", a.ListIdentitiesHandler)
	e.POST("/auth/identities", a.LinkIdentityHandler)
	e.DELETE("/auth/identities/:id", a.UnlinkIdentityHandler)

	e.GET("/auth/mfa/state", a.MFAStateHandler)
	e.POST("/auth/mfa/enroll", a.MFAEnrollHandler)
	e.POST("/auth/mfa/verify", a.MFAVerifyHandler)
	e.DELETE("/auth/mfa", a.MFADisableHandler)

	e.GET("/auth/oauth/start", a.OAuthStartHandler)
	e.GET("/auth/oauth/callback", a.OAuthCallbackHandler)
	e.GET("/auth/oauth/finalize", a.OAuthFinalizeHandler)

	e.GET("/auth/signout/flag", a.SignOutFlagHandler)
	e.GET("/healthz", a.HealthHandler)
}

type establishRequest struct {
	MFAPending bool `json:"mfaPending"`
}

// EstablishHandler converts a verified bearer credential into the session
// cookie pair. Responds 200 with the verified subject, 401 on a missing or
// invalid credential, and 503 when the identity provider is unreachable, so
// an outage never masquerades as a logout.
func (a *TrustAPI) EstablishHandler(c echo.Context) error {
	bearer, ok := bearerFromHeader(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, errors.NewInvalidToken("Missing bearer credential"))
	}

	var req establishRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("Malformed request body"))
	}

	jar := cookies.NewEchoJar(c, a.codec)
	result, err := a.sessions.Establish(c.Request().Context(), jar, bearer, req.MFAPending)
	if err != nil {
		if stderrors.Is(err, errors.ErrProviderUnavailable) {
			return c.JSON(http.StatusServiceUnavailable, errors.NewTemporarilyUnavailable("Identity provider unavailable"))
		}
		return c.JSON(http.StatusUnauthorized, errors.NewInvalidToken("Invalid or expired credential"))
	}

	return c.JSON(http.StatusOK, echo.Map{
		"ok":         true,
		"userId":     result.UserID,
		"mfaPending": result.MFAPending,
	})
}

// ClearHandler deletes both session cookies. Idempotent; always 200, with or
// without a prior session.
func (a *TrustAPI) ClearHandler(c echo.Context) error {
	jar := cookies.NewEchoJar(c, a.codec)
	a.sessions.Clear(jar)
	return c.JSON(http.StatusOK, echo.Map{"cleared": true})
}

type registerDeviceRequest struct {
	ID        string `json:"id"`
	UserAgent string `json:"userAgent"`
	Platform  string `json:"platform"`
	Locale    string `json:"locale"`
	Timezone  string `json:"timezone"`
}

// RegisterDeviceHandler records the caller's device in the directory. The
// device id is client-generated; one is minted only when the client did not
// supply its own.
func (a *TrustAPI) RegisterDeviceHandler(c echo.Context) error {
	info, err := a.authenticate(c)
	if err != nil {
		return a.authError(c, err)
	}

	var req registerDeviceRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("Malformed request body"))
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	device := &domain.Device{
		ID:           req.ID,
		UserID:       info.UserID,
		UserAgent:    req.UserAgent,
		Platform:     req.Platform,
		Locale:       req.Locale,
		Timezone:     req.Timezone,
		RegisteredAt: time.Now().UTC(),
	}
	if err := a.devices.RegisterDevice(c.Request().Context(), device); err != nil {
		log.Error().Err(err).Str("device_id", device.ID).Msg("Failed to register device")
		return c.JSON(http.StatusInternalServerError, errors.NewServerError("Failed to register device"))
	}

	return c.JSON(http.StatusOK, device)
}

// ListDevicesHandler returns the caller's devices with their revocation
// state. The device trust watcher reads this through the provider.
func (a *TrustAPI) ListDevicesHandler(c echo.Context) error {
	info, err := a.authenticate(c)
	if err != nil {
		return a.authError(c, err)
	}

	devices, err := a.devices.ListDevicesByUser(c.Request().Context(), info.UserID)
	if err != nil {
		log.Error().Err(err).Str("user_id", info.UserID).Msg("Failed to list devices")
		return c.JSON(http.StatusInternalServerError, errors.NewServerError("Failed to list devices"))
	}

	return c.JSON(http.StatusOK, echo.Map{"devices": devices})
}

// RevokeDeviceHandler is the account owner's revocation action. Revoking an
// already-revoked device succeeds and returns the stored record; revoked_at
// is set exactly once.
func (a *TrustAPI) RevokeDeviceHandler(c echo.Context) error {
	info, err := a.authenticate(c)
	if err != nil {
		return a.authError(c, err)
	}

	id := c.Param("id")
	ctx := c.Request().Context()

	device, err := a.devices.GetDeviceByID(ctx, id)
	if err != nil {
		if stderrors.Is(err, errors.ErrDeviceNotFound) {
			return c.JSON(http.StatusNotFound, errors.NewInvalidRequest("Unknown device"))
		}
		return c.JSON(http.StatusInternalServerError, errors.NewServerError("Failed to look up device"))
	}
	if device.UserID != info.UserID {
		return c.JSON(http.StatusForbidden, errors.NewAccessDenied("Device belongs to another account"))
	}

	revoked, err := a.devices.RevokeDevice(ctx, id, time.Now().UTC())
	if err != nil {
		log.Error().Err(err).Str("device_id", id).Msg("Failed to revoke device")
		return c.JSON(http.StatusInternalServerError, errors.NewServerError("Failed to revoke device"))
	}

	return c.JSON(http.StatusOK, revoked)
}

// ListIdentitiesHandler returns the external identities linked to the
// caller's account.
func (a *TrustAPI) ListIdentitiesHandler(c echo.Context) error {
	info, err := a.authenticate(c)
	if err != nil {
		return a.authError(c, err)
	}

	identities, err := a.provider.GetIdentities(c.Request().Context(), info.UserID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errors.NewServerError("Failed to list identities"))
	}
	return c.JSON(http.StatusOK, echo.Map{"identities": identities})
}

type linkIdentityRequest struct {
	Provider string `json:"provider"`
}

// LinkIdentityHandler starts linking an external identity to the caller's
// account. The provider drives the linking flow; the response carries the URL
// the client must visit to complete it.
func (a *TrustAPI) LinkIdentityHandler(c echo.Context) error {
	info, err := a.authenticate(c)
	if err != nil {
		return a.authError(c, err)
	}

	var req linkIdentityRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("Malformed request body"))
	}
	if req.Provider == "" {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("provider is required"))
	}

	redirectURL, err := a.provider.LinkIdentity(c.Request().Context(), info.UserID, req.Provider)
	if err != nil {
		log.Error().Err(err).Str("user_id", info.UserID).Str("provider", req.Provider).Msg("Failed to start identity linking")
		return c.JSON(http.StatusInternalServerError, errors.NewServerError("Failed to link identity"))
	}
	return c.JSON(http.StatusOK, echo.Map{"redirectUrl": redirectURL})
}

// UnlinkIdentityHandler detaches an external identity from the caller's
// account.
func (a *TrustAPI) UnlinkIdentityHandler(c echo.Context) error {
	info, err := a.authenticate(c)
	if err != nil {
		return a.authError(c, err)
	}

	if err := a.provider.UnlinkIdentity(c.Request().Context(), info.UserID, c.Param("id")); err != nil {
		return c.JSON(http.StatusInternalServerError, errors.NewServerError("Failed to unlink identity"))
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

// SignOutFlagHandler consumes the remote sign-out flag for the session-ended
// surface. The first caller gets the reason; later callers get 204.
func (a *TrustAPI) SignOutFlagHandler(c echo.Context) error {
	flag, err := a.bus.Consume(c.Request().Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to consume sign-out flag")
		return c.JSON(http.StatusInternalServerError, errors.NewServerError("Failed to read sign-out flag"))
	}
	if flag == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, flag)
}

// HealthHandler reports liveness.
func (a *TrustAPI) HealthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

// authenticate validates the request's bearer credential with the identity
// provider and returns its claims.
func (a *TrustAPI) authenticate(c echo.Context) (*domain.TokenInfo, error) {
	bearer, ok := bearerFromHeader(c)
	if !ok {
		return nil, errors.ErrInvalidCredential
	}
	return a.provider.VerifyToken(c.Request().Context(), bearer)
}

func (a *TrustAPI) authError(c echo.Context, err error) error {
	if stderrors.Is(err, errors.ErrProviderUnavailable) {
		return c.JSON(http.StatusServiceUnavailable, errors.NewTemporarilyUnavailable("Identity provider unavailable"))
	}
	return c.JSON(http.StatusUnauthorized, errors.NewInvalidToken("Invalid or expired credential"))
}

func bearerFromHeader(c echo.Context) (string, bool) {
	header := c.Request().Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
