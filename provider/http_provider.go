// Package provider contains the HTTP client for the external identity
// provider's REST surface. It is the only place that knows that surface's
// paths and status conventions; everything else consumes
// domain.IdentityProvider.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"go.pilab.hu/trustgate/domain"
	"go.pilab.hu/trustgate/errors"
)

const defaultTimeout = 10 * time.Second

// HTTPProvider implements domain.IdentityProvider against a remote identity
// provider API authenticated with a service API key.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPProvider creates a provider client. httpClient may be nil, in which
// case a 10s-timeout client is used.
func NewHTTPProvider(baseURL, apiKey string, httpClient *http.Client) *HTTPProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &HTTPProvider{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// providerError is the provider's JSON error body.
type providerError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (p *HTTPProvider) do(ctx context.Context, method, path string, body, out any, bearer string) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.apiKey != "" {
		req.Header.Set("X-Api-Key", p.apiKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		// Transport failures are outages, not logouts.
		return fmt.Errorf("%w: %v", errors.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode provider response: %w", err)
		}
		return nil
	}

	return p.mapError(resp)
}

func (p *HTTPProvider) mapError(resp *http.Response) error {
	var perr providerError
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &perr)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		if perr.Code == "device_revoked" {
			return fmt.Errorf("%w: %s", errors.ErrDeviceRevoked, perr.Description)
		}
		return fmt.Errorf("%w: %s", errors.ErrInvalidCredential, perr.Description)
	case resp.StatusCode >= 500:
		log.Warn().Int("status", resp.StatusCode).Str("code", perr.Code).Msg("Identity provider returned server error")
		return fmt.Errorf("%w: status %d", errors.ErrProviderUnavailable, resp.StatusCode)
	default:
		if perr.Code != "" {
			return fmt.Errorf("provider error %s: %s", perr.Code, perr.Description)
		}
		return fmt.Errorf("provider error: status %d", resp.StatusCode)
	}
}

type tokenInfoResponse struct {
	UserID       string    `json:"userId"`
	Email        string    `json:"email"`
	ExpiresAt    time.Time `json:"expiresAt"`
	MFACompleted bool      `json:"mfaCompleted"`
}

func (p *HTTPProvider) VerifyToken(ctx context.Context, accessToken string) (*domain.TokenInfo, error) {
	var resp tokenInfoResponse
	if err := p.do(ctx, http.MethodPost, "/v1/token/verify", nil, &resp, accessToken); err != nil {
		return nil, err
	}
	return &domain.TokenInfo{
		UserID:       resp.UserID,
		Email:        resp.Email,
		ExpiresAt:    resp.ExpiresAt,
		MFACompleted: resp.MFACompleted,
	}, nil
}

type sessionResponse struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	UserID       string    `json:"userId"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func (r sessionResponse) toSession() *domain.Session {
	return &domain.Session{
		Tokens: domain.SessionTokens{
			AccessToken:  r.AccessToken,
			RefreshToken: r.RefreshToken,
		},
		UserID:    r.UserID,
		ExpiresAt: r.ExpiresAt,
	}
}

func (p *HTTPProvider) RefreshSession(ctx context.Context, refreshToken string) (*domain.Session, error) {
	body := map[string]string{"refreshToken": refreshToken}
	var resp sessionResponse
	if err := p.do(ctx, http.MethodPost, "/v1/token/refresh", body, &resp, ""); err != nil {
		return nil, err
	}
	return resp.toSession(), nil
}

func (p *HTTPProvider) SignOut(ctx context.Context, accessToken string) error {
	return p.do(ctx, http.MethodPost, "/v1/logout", nil, nil, accessToken)
}

func (p *HTTPProvider) ExchangeOAuthCode(ctx context.Context, external domain.SessionTokens) (*domain.Session, error) {
	body := map[string]string{
		"providerAccessToken":  external.AccessToken,
		"providerRefreshToken": external.RefreshToken,
	}
	var resp sessionResponse
	if err := p.do(ctx, http.MethodPost, "/v1/token/federated", body, &resp, ""); err != nil {
		return nil, err
	}
	return resp.toSession(), nil
}

func (p *HTTPProvider) ListFactors(ctx context.Context, userID string) ([]*domain.Factor, error) {
	var resp struct {
		Factors []*domain.Factor `json:"factors"`
	}
	if err := p.do(ctx, http.MethodGet, "/v1/users/"+userID+"/factors", nil, &resp, ""); err != nil {
		return nil, err
	}
	return resp.Factors, nil
}

func (p *HTTPProvider) EnrollFactor(ctx context.Context, userID, factorType, friendlyName string) (*domain.Enrollment, error) {
	body := map[string]string{
		"type":         factorType,
		"friendlyName": friendlyName,
	}
	var resp domain.Enrollment
	if err := p.do(ctx, http.MethodPost, "/v1/users/"+userID+"/factors", body, &resp, ""); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (p *HTTPProvider) ChallengeFactor(ctx context.Context, factorID string) (string, error) {
	var resp struct {
		ChallengeID string `json:"challengeId"`
	}
	if err := p.do(ctx, http.MethodPost, "/v1/factors/"+factorID+"/challenge", nil, &resp, ""); err != nil {
		return "", err
	}
	return resp.ChallengeID, nil
}

func (p *HTTPProvider) VerifyFactor(ctx context.Context, factorID, challengeID, code string) error {
	body := map[string]string{
		"challengeId": challengeID,
		"code":        code,
	}
	return p.do(ctx, http.MethodPost, "/v1/factors/"+factorID+"/verify", body, nil, "")
}

func (p *HTTPProvider) UnenrollFactor(ctx context.Context, factorID string) error {
	return p.do(ctx, http.MethodDelete, "/v1/factors/"+factorID, nil, nil, "")
}

func (p *HTTPProvider) GetIdentities(ctx context.Context, userID string) ([]*domain.Identity, error) {
	var resp struct {
		Identities []*domain.Identity `json:"identities"`
	}
	if err := p.do(ctx, http.MethodGet, "/v1/users/"+userID+"/identities", nil, &resp, ""); err != nil {
		return nil, err
	}
	return resp.Identities, nil
}

func (p *HTTPProvider) LinkIdentity(ctx context.Context, userID, provider string) (string, error) {
	body := map[string]string{"provider": provider}
	var resp struct {
		RedirectURL string `json:"redirectUrl"`
	}
	if err := p.do(ctx, http.MethodPost, "/v1/users/"+userID+"/identities", body, &resp, ""); err != nil {
		return "", err
	}
	return resp.RedirectURL, nil
}

func (p *HTTPProvider) UnlinkIdentity(ctx context.Context, userID, identityID string) error {
	return p.do(ctx, http.MethodDelete, "/v1/users/"+userID+"/identities/"+identityID, nil, nil, "")
}

func (p *HTTPProvider) ListDevices(ctx context.Context, userID string) ([]*domain.Device, error) {
	var resp struct {
		Devices []*domain.Device `json:"devices"`
	}
	if err := p.do(ctx, http.MethodGet, "/v1/users/"+userID+"/devices", nil, &resp, ""); err != nil {
		return nil, err
	}
	return resp.Devices, nil
}

var _ domain.IdentityProvider = (*HTTPProvider)(nil)
