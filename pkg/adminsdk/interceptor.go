package adminsdk

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/passport/pkg/hooks"
	"github.com/aussiebroadwan/passport/pkg/httpx"
	"github.com/aussiebroadwan/passport/pkg/idx"
	"github.com/aussiebroadwan/passport/pkg/slogx"
)

const (
	HeaderAuthorization  = "Authorization"
	HeaderAcceptLanguage = "Accept-Language"
	HeaderRequestID      = slogx.HeaderRequestID
)

// intercept prepares req for sending. The stored access token always
// replaces any Authorization header; other headers set by the caller win.
func (c *Client) intercept(ctx context.Context, req *httpx.Request) error {
	if req.Header == nil {
		req.Header = make(http.Header)
	}

	creds, err := c.store.Get(ctx)
	if err != nil {
		return err
	}
	if creds.Active() {
		req.Header.Set(HeaderAuthorization, "Bearer "+creds.AccessToken)
		if req.Header.Get(HeaderAcceptLanguage) == "" {
			req.Header.Set(HeaderAcceptLanguage, c.locale)
		}
	}
	if req.Header.Get(HeaderRequestID) == "" {
		id, ok := slogx.RequestID(ctx)
		if !ok {
			id = idx.New().String()
		}
		req.Header.Set(HeaderRequestID, id)
	}

	if err := c.hooks.Call(ctx, hooks.NetworkRequest, req); err != nil {
		return fmt.Errorf("%w: %w", ErrHookFailed, err)
	}
	return nil
}

// roundTrip sends an intercepted request and classifies the response. A
// replayed request that is still unauthorized is not refreshed again.
func (c *Client) roundTrip(ctx context.Context, req *httpx.Request, replayed bool) (*Response, error) {
	raw, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	resp := &Response{Response: raw}
	if raw.IsJSON() {
		resp.Envelope, _ = parseEnvelope(raw.Body)
	}

	if err := c.hooks.Call(ctx, hooks.NetworkResponse, resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHookFailed, err)
	}
	return c.classify(ctx, req, resp, replayed)
}

func (c *Client) classify(ctx context.Context, req *httpx.Request, resp *Response, replayed bool) (*Response, error) {
	env := resp.Envelope

	switch {
	case env == nil && resp.IsSuccess():
		return resp, nil

	case env == nil:
		herr := &HTTPError{StatusCode: resp.StatusCode, Response: resp}
		if herr.ServerFault() {
			c.msgs.serverFault()
		}
		return nil, herr

	case env.Code == httpx.CodeSuccess:
		return resp, nil

	case env.Code == httpx.CodeUnauthorized && !replayed:
		return c.coord.handle(ctx, req, resp)

	case resp.StatusCode >= http.StatusInternalServerError:
		c.msgs.serverFault()
		return nil, &APIError{Code: env.Code, Message: env.Message, Response: resp}

	default:
		c.msgs.apiError(env.Code, env.Message)
		return nil, &APIError{Code: env.Code, Message: env.Message, Response: resp}
	}
}
