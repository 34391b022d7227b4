package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jrsteele09/betul-abla-portal/internal/errors"
)

// TokenPair is the token endpoint's response.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access string `json:"access"`
}

// Login exchanges raw credentials for a token pair. It does not touch the store.
// A 400 or 401 from the token endpoint is reported as ErrInvalidCredentials.
func (c *Client) Login(ctx context.Context, identifier, secret string) (TokenPair, error) {
	var pair TokenPair
	status, err := c.postJSON(ctx, c.cfg.LoginEndpoint, loginRequest{Username: identifier, Password: secret}, &pair)
	if err != nil {
		if status == http.StatusUnauthorized || status == http.StatusBadRequest {
			return TokenPair{}, fmt.Errorf("[apiclient Login] %w: %w", errors.ErrInvalidCredentials, err)
		}
		return TokenPair{}, fmt.Errorf("[apiclient Login] %w", err)
	}
	if pair.Access == "" || pair.Refresh == "" {
		return TokenPair{}, fmt.Errorf("[apiclient Login] token endpoint returned an incomplete pair")
	}
	return pair, nil
}

// Refresh trades a refresh token for a new access token. The refresh token
// itself does not rotate.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", errors.ErrNoRefreshToken
	}
	var out refreshResponse
	if _, err := c.postJSON(ctx, c.cfg.RefreshEndpoint, refreshRequest{Refresh: refreshToken}, &out); err != nil {
		return "", fmt.Errorf("%w: %w", errors.ErrRefreshFailed, err)
	}
	if out.Access == "" {
		return "", fmt.Errorf("%w: empty access token", errors.ErrRefreshFailed)
	}
	return out.Access, nil
}

// postJSON sends an unauthenticated JSON POST and decodes a 2xx body into out.
func (c *Client) postJSON(ctx context.Context, endpoint string, in, out any) (int, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return 0, err
	}
	req, err := c.newRequest(ctx, endpoint, RequestOptions{Method: http.MethodPost, Body: body})
	if err != nil {
		return 0, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return resp.StatusCode, NewStatusError(endpoint, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("%s: decode response: %w", endpoint, err)
	}
	return resp.StatusCode, nil
}
