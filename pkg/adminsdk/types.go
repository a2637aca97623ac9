package adminsdk

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aussiebroadwan/passport/pkg/credstore"
	"github.com/aussiebroadwan/passport/pkg/httpx"
	"github.com/aussiebroadwan/passport/pkg/jwtx"
	"github.com/tidwall/gjson"
)

// Endpoints of the passport service.
const (
	LoginPath   = "/admin/passport/login"
	RefreshPath = "/admin/passport/refresh"
	LogoutPath  = "/admin/passport/logout"
	ProfilePath = "/admin/profile"
)

// Response is a transport response with its envelope, if it had one.
// Envelope is nil for non-JSON payloads.
type Response struct {
	*httpx.Response
	Envelope *httpx.Envelope
}

// Decode unmarshals the envelope data of resp into v. Responses without an
// envelope are decoded from the raw body.
func Decode(resp *Response, v any) error {
	raw := resp.Body
	if resp.Envelope != nil {
		raw = resp.Envelope.Data
	}
	if len(raw) == 0 {
		return fmt.Errorf("adminsdk: decode: empty payload")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("adminsdk: decode: %w", err)
	}
	return nil
}

// parseEnvelope reads {code, message, data} from a JSON body. It reports
// false when the body is not an envelope.
func parseEnvelope(body []byte) (*httpx.Envelope, bool) {
	if !gjson.ValidBytes(body) {
		return nil, false
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return nil, false
	}
	code := doc.Get("code")
	if code.Type != gjson.Number {
		return nil, false
	}

	env := &httpx.Envelope{
		Code:    int(code.Int()),
		Message: doc.Get("message").String(),
	}
	if data := doc.Get("data"); data.Exists() && data.Type != gjson.Null {
		env.Data = json.RawMessage(data.Raw)
	}
	return env, true
}

// LoginRequest is the body of POST /admin/passport/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	OTP      string `json:"otp,omitempty"` // required when the account has TOTP enabled
}

// LogoutRequest is the body of POST /admin/passport/logout.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// TokenData is returned by login and refresh.
type TokenData struct {
	AccessToken  string `json:"access_token"`
	ExpireAt     int64  `json:"expire_at"` // seconds until the access token expires
	RefreshToken string `json:"refresh_token"`
}

// Credentials converts the relative expiry into an absolute one. When the
// server omits expire_at, the exp claim of the access token is used.
func (t TokenData) Credentials(now time.Time) credstore.Credentials {
	creds := credstore.Credentials{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
	}
	switch {
	case t.ExpireAt > 0:
		creds.ExpiresAt = now.Add(time.Duration(t.ExpireAt) * time.Second).Unix()
	default:
		if exp, err := jwtx.PeekExpiry(t.AccessToken); err == nil && !exp.IsZero() {
			creds.ExpiresAt = exp.Unix()
		}
	}
	return creds
}

// Profile is the authenticated admin as seen by GET /admin/profile.
type Profile struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Scopes   []string `json:"scopes"`
}
