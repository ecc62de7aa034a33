// internal/credentials/refresher.go
package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fusion-sh/fusion/internal/drivers"
)

// HubTokenRefresher exchanges the hub's refresh token for a new access
// token via the vendor's OAuth-style token endpoint.
type HubTokenRefresher struct {
	Client *http.Client
}

func NewHubTokenRefresher() *HubTokenRefresher {
	return &HubTokenRefresher{Client: &http.Client{Timeout: 15 * time.Second}}
}

type hubRefreshRequest struct {
	GrantType    string `json:"grantType"`
	RefreshToken string `json:"refreshToken"`
}

type hubRefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	HomeID       string `json:"homeId,omitempty"`
}

func (r *HubTokenRefresher) Refresh(ctx context.Context, cfg json.RawMessage) (json.RawMessage, error) {
	var hc drivers.HubConfig
	if err := json.Unmarshal(cfg, &hc); err != nil {
		return nil, fmt.Errorf("%w: invalid hub config: %v", drivers.ErrTerminal, err)
	}

	reqBody, _ := json.Marshal(hubRefreshRequest{
		GrantType:    "refresh_token",
		RefreshToken: hc.Credentials.RefreshToken,
	})
	url := hc.APIBaseURL + "/oauth/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", drivers.ErrTerminal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", drivers.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: refresh token rejected (status %d)", drivers.ErrTerminal, resp.StatusCode)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: hub token endpoint status %d", drivers.ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: hub token endpoint status %d", drivers.ErrTerminal, resp.StatusCode)
	}

	var out hubRefreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode refresh response: %v", drivers.ErrTransient, err)
	}

	expiresAt := expiryFromResponse(out)

	hc.Credentials.AccessToken = out.AccessToken
	hc.Credentials.RefreshToken = out.RefreshToken
	hc.Credentials.TokenExpiresAt = expiresAt
	if out.HomeID != "" {
		hc.AccountID = out.HomeID
	}

	return json.Marshal(hc)
}

// expiryFromResponse prefers the access token's own exp claim (when it is a
// JWT) over the endpoint's expiresIn hint, since clock skew between the
// vendor's token-issuance clock and its expiresIn accounting has been
// observed to drift.
func expiryFromResponse(out hubRefreshResponse) time.Time {
	if claims, err := unverifiedClaims(out.AccessToken); err == nil {
		if exp, ok := claims["exp"].(float64); ok {
			return time.Unix(int64(exp), 0).UTC()
		}
	}
	return time.Now().Add(time.Duration(out.ExpiresIn) * time.Second).UTC()
}

func unverifiedClaims(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}
