package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/adoption-client/internal/domain"
	"github.com/spec-kit/adoption-client/pkg/util"
)

// Auth endpoints. These are on the public allow-list and bypass the gateway
// pipeline so a failing refresh can never recurse into another refresh.
const (
	loginPath   = "/user/login"
	refreshPath = "/user/refresh-token"
	profilePath = "/user/profile"
)

// RoleHeader tags a request with the resolved role.
const RoleHeader = "X-Session-Role"

// AuthClient performs the raw auth calls for the session manager.
type AuthClient struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewAuthClient builds an auth client against the given base URL.
func NewAuthClient(baseURL string, httpClient *http.Client, logger *zap.Logger) *AuthClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}
}

// envelope is the backend's response wrapper.
type envelope struct {
	Code    json.Number     `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type tokenPayload struct {
	AccessToken  string                  `json:"access_token"`
	RefreshToken string                  `json:"refresh_token"`
	ExpiresAt    int64                   `json:"expires_at"`
	Role         string                  `json:"role"`
	UserInfo     *domain.ProfileSnapshot `json:"user_info"`
}

// Login posts credentials and decodes the session grant.
func (c *AuthClient) Login(ctx context.Context, creds domain.Credentials) (*domain.SessionGrant, error) {
	var payload tokenPayload
	if err := c.post(ctx, loginPath, nil, creds, &payload); err != nil {
		return nil, err
	}

	grant := &domain.SessionGrant{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresAt:    expiry(payload.AccessToken, payload.ExpiresAt),
	}
	if role, ok := domain.ParseRole(payload.Role); ok {
		grant.DeclaredRole = role
	}
	if payload.UserInfo != nil {
		grant.Profile = *payload.UserInfo
	}
	return grant, nil
}

// RefreshToken redeems a refresh token for a new access token.
func (c *AuthClient) RefreshToken(ctx context.Context, role domain.Role, refreshToken string) (*domain.TokenGrant, error) {
	body := map[string]string{"refresh_token": refreshToken}
	headers := map[string]string{RoleHeader: string(role)}

	var payload tokenPayload
	if err := c.post(ctx, refreshPath, headers, body, &payload); err != nil {
		return nil, err
	}
	return &domain.TokenGrant{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresAt:    expiry(payload.AccessToken, payload.ExpiresAt),
	}, nil
}

// Profile fetches the profile snapshot for a role.
func (c *AuthClient) Profile(ctx context.Context, role domain.Role, accessToken string) (*domain.ProfileSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+profilePath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set(RoleHeader, string(role))

	var profile domain.ProfileSnapshot
	if err := c.do(req, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (c *AuthClient) post(ctx context.Context, path string, headers map[string]string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.do(req, out)
}

func (c *AuthClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return util.NewTransportError(0, "network error", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return util.NewTransportError(resp.StatusCode, "reading response failed", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return util.NewTransportError(resp.StatusCode, util.TransportMessage(resp.StatusCode), err)
	}
	if resp.StatusCode >= 400 || env.Code.String() != "200" {
		message := env.Message
		if message == "" {
			message = util.TransportMessage(resp.StatusCode)
		}
		return util.NewAuthError(message)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decoding %s response: %w", req.URL.Path, err)
		}
	}
	return nil
}

// expiry converts the wire timestamp, falling back to the JWT exp claim when
// the server omits it.
func expiry(accessToken string, unix int64) time.Time {
	if unix > 0 {
		return time.Unix(unix, 0)
	}
	if accessToken == "" {
		return time.Time{}
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
