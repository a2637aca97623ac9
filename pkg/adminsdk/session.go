package adminsdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/passport/pkg/credstore"
	"github.com/aussiebroadwan/passport/pkg/httpx"
)

// Login exchanges a username and password for a session and stores it.
func (c *Client) Login(ctx context.Context, username, password string) error {
	return c.LoginWithCode(ctx, username, password, "")
}

// LoginWithCode logs in an account that also requires a TOTP code.
func (c *Client) LoginWithCode(ctx context.Context, username, password, code string) error {
	body, err := json.Marshal(LoginRequest{Username: username, Password: password, OTP: code})
	if err != nil {
		return fmt.Errorf("adminsdk: encode login: %w", err)
	}

	tokens, err := c.exchange(ctx, c.isolated(), &httpx.Request{
		Method: http.MethodPost,
		Path:   LoginPath,
		Body:   body,
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			c.msgs.apiError(apiErr.Code, apiErr.Message)
		}
		return err
	}

	if err := c.store.Set(ctx, tokens); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "logged in", "username", username)
	return nil
}

// Logout ends the session. The server is told on a best-effort basis; the
// local credentials are always cleared and LogoutFunc runs.
func (c *Client) Logout(ctx context.Context) error {
	creds, err := c.store.Get(ctx)
	if err != nil {
		return err
	}

	if creds.Active() {
		body, _ := json.Marshal(LogoutRequest{RefreshToken: creds.RefreshToken})
		rc := c.isolated(HeaderAuthorization, "Bearer "+creds.AccessToken)
		if _, err := rc.Do(ctx, &httpx.Request{Method: http.MethodPost, Path: LogoutPath, Body: body}); err != nil {
			c.logger.WarnContext(ctx, "server logout failed", "err", err)
		}
	}

	if err := c.store.Clear(ctx); err != nil {
		return err
	}
	if c.logout != nil {
		c.logout(ctx)
	}
	return nil
}

// Credentials returns the stored session.
func (c *Client) Credentials(ctx context.Context) (credstore.Credentials, error) {
	return c.store.Get(ctx)
}

// LoggedIn reports whether a session is stored.
func (c *Client) LoggedIn(ctx context.Context) bool {
	creds, err := c.store.Get(ctx)
	return err == nil && creds.Active()
}

// Profile fetches the authenticated admin.
func (c *Client) Profile(ctx context.Context) (*Profile, error) {
	if !c.LoggedIn(ctx) {
		return nil, ErrNotLoggedIn
	}
	resp, err := c.Get(ctx, ProfilePath, nil)
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := Decode(resp, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// refresh swaps a refresh token for a new token set on a client that
// carries nothing but the refresh token.
func (c *Client) refresh(ctx context.Context, refreshToken string) (credstore.Credentials, error) {
	rc := c.isolated(HeaderAuthorization, "Bearer "+refreshToken)
	return c.exchange(ctx, rc, &httpx.Request{Method: http.MethodPost, Path: RefreshPath})
}

// exchange sends a login or refresh call and decodes the token set.
func (c *Client) exchange(ctx context.Context, rc *httpx.Client, req *httpx.Request) (credstore.Credentials, error) {
	raw, err := rc.Do(ctx, req)
	if err != nil {
		return credstore.Credentials{}, err
	}

	resp := &Response{Response: raw}
	env, ok := parseEnvelope(raw.Body)
	if !ok {
		return credstore.Credentials{}, &HTTPError{StatusCode: raw.StatusCode, Response: resp}
	}
	resp.Envelope = env

	if env.Code != httpx.CodeSuccess {
		return credstore.Credentials{}, &APIError{Code: env.Code, Message: env.Message, Response: resp}
	}

	var tokens TokenData
	if err := Decode(resp, &tokens); err != nil {
		return credstore.Credentials{}, err
	}
	if tokens.AccessToken == "" {
		return credstore.Credentials{}, errors.New("adminsdk: token response without access_token")
	}
	return tokens.Credentials(c.now()), nil
}

// forceLogout clears the session and schedules the coalesced logout.
func (c *Client) forceLogout(ctx context.Context) {
	if err := c.store.Clear(context.WithoutCancel(ctx)); err != nil {
		c.logger.WarnContext(ctx, "clear credentials", "err", err)
	}
	c.msgs.sessionExpired()
}
