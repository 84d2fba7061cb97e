package cookies

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.pilab.hu/trustgate/domain"
)

// Cookie names. The pair of session cookies is the only state the edge guard
// ever reads; the handshake and staging cookies exist solely to bridge the
// OAuth redirect.
const (
	SessionCookie      = "tg_session"
	MFAPendingCookie   = "tg_mfa_pending"
	OAuthStateCookie   = "tg_oauth_state"
	StagedTokensCookie = "tg_staged_tokens"
)

// Cookie lifetimes.
const (
	SessionTTL      = 7 * 24 * time.Hour
	MFAPendingTTL   = 10 * time.Minute
	OAuthStateTTL   = 10 * time.Minute
	StagedTokensTTL = 60 * time.Second
)

// Codec builds and parses the trust cookies. It is pure: no I/O, no clock,
// just cookie attributes. All cookies are httpOnly, SameSite=Lax, path "/",
// Secure when the deployment is.
type Codec struct {
	Secure bool
	Domain string
}

func (c Codec) build(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   int(ttl.Seconds()),
		Secure:   c.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// Session builds the long-lived authenticated cookie.
func (c Codec) Session(value string) *http.Cookie {
	return c.build(SessionCookie, value, SessionTTL)
}

// MFAPending builds the short-lived cookie marking a verified credential that
// still awaits its second factor.
func (c Codec) MFAPending(value string) *http.Cookie {
	return c.build(MFAPendingCookie, value, MFAPendingTTL)
}

// OAuthState encodes the CSRF handshake into its cookie.
func (c Codec) OAuthState(hs domain.HandshakeState) (*http.Cookie, error) {
	value, err := encodeJSON(hs)
	if err != nil {
		return nil, fmt.Errorf("encode handshake state: %w", err)
	}
	return c.build(OAuthStateCookie, value, OAuthStateTTL), nil
}

// StagedTokens encodes the single-use credential bridge into its cookie.
func (c Codec) StagedTokens(tokens domain.SessionTokens) (*http.Cookie, error) {
	value, err := encodeJSON(tokens)
	if err != nil {
		return nil, fmt.Errorf("encode staged tokens: %w", err)
	}
	return c.build(StagedTokensCookie, value, StagedTokensTTL), nil
}

// Expired builds a deletion cookie for name. Attributes must match the
// original write or browsers keep the old cookie alive.
func (c Codec) Expired(name string) *http.Cookie {
	ck := c.build(name, "", 0)
	ck.MaxAge = -1
	return ck
}

// DecodeHandshake parses an OAuth state cookie value.
func DecodeHandshake(value string) (*domain.HandshakeState, error) {
	var hs domain.HandshakeState
	if err := decodeJSON(value, &hs); err != nil {
		return nil, fmt.Errorf("decode handshake state: %w", err)
	}
	return &hs, nil
}

// DecodeStagedTokens parses a staged credential cookie value.
func DecodeStagedTokens(value string) (*domain.SessionTokens, error) {
	var tokens domain.SessionTokens
	if err := decodeJSON(value, &tokens); err != nil {
		return nil, fmt.Errorf("decode staged tokens: %w", err)
	}
	return &tokens, nil
}

// JSON payloads are base64url-wrapped: raw JSON contains characters that are
// not valid in a cookie value.
func encodeJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeJSON(value string, v any) error {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
