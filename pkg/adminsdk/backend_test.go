package adminsdk_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/passport/pkg/adminsdk"
	"github.com/aussiebroadwan/passport/pkg/credstore"
	"github.com/aussiebroadwan/passport/pkg/httpx"
	"github.com/aussiebroadwan/passport/pkg/slogx"
	"github.com/stretchr/testify/require"
)

type refreshMode int

const (
	refreshOK refreshMode = iota
	refreshRejected
	refreshAbort
)

// fakeAdmin is a passport backend with a scripted refresh endpoint.
type fakeAdmin struct {
	mu           sync.Mutex
	valid        string // access token accepted by data endpoints
	refreshToken string // refresh token accepted by the refresh endpoint
	next         adminsdk.TokenData
	mode         refreshMode
	gate         chan struct{}
	dataAuth     []string
	arrivals     []string // X-Caller of data requests carrying the new token
	refreshAuth  []string
	logoutBodies []string

	refreshCalls atomic.Int32
	dataCalls    atomic.Int32
}

func newFakeAdmin() *fakeAdmin {
	return &fakeAdmin{
		valid:        "T2",
		refreshToken: "R1",
		next:         adminsdk.TokenData{AccessToken: "T2", ExpireAt: 900, RefreshToken: "R2"},
	}
}

func (f *fakeAdmin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	auth := r.Header.Get("Authorization")

	switch r.URL.Path {
	case adminsdk.RefreshPath:
		f.refreshCalls.Add(1)
		f.mu.Lock()
		f.refreshAuth = append(f.refreshAuth, auth+"|"+r.Header.Get("Accept-Language"))
		gate, mode, want, next := f.gate, f.mode, f.refreshToken, f.next
		f.mu.Unlock()

		if gate != nil {
			<-gate
		}
		switch {
		case mode == refreshAbort:
			panic(http.ErrAbortHandler)
		case mode == refreshRejected || auth != "Bearer "+want:
			httpx.WriteEnvelope(w, httpx.CodeUnauthorized, "refresh token expired", nil)
		default:
			f.mu.Lock()
			f.refreshToken = next.RefreshToken
			f.mu.Unlock()
			httpx.WriteSuccess(w, next)
		}

	case adminsdk.LoginPath:
		var req adminsdk.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Username != "admin" || req.Password != "secret" {
			httpx.WriteEnvelope(w, httpx.CodeFail, "invalid username or password", nil)
			return
		}
		f.mu.Lock()
		f.valid, f.refreshToken = "T1", "R1"
		f.mu.Unlock()
		httpx.WriteSuccess(w, adminsdk.TokenData{AccessToken: "T1", ExpireAt: 900, RefreshToken: "R1"})

	case adminsdk.LogoutPath:
		var req adminsdk.LogoutRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.logoutBodies = append(f.logoutBodies, auth+"|"+req.RefreshToken)
		f.mu.Unlock()
		httpx.WriteSuccess(w, nil)

	case "/admin/forbidden":
		httpx.WriteEnvelope(w, httpx.CodeForbidden, "insufficient scope", nil)

	case "/admin/boom":
		http.Error(w, "bad gateway", http.StatusBadGateway)

	case "/admin/unavailable":
		httpx.WriteEnvelopeStatus(w, http.StatusServiceUnavailable, httpx.CodeFail, "database unavailable", nil)

	case "/admin/file":
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte{0x1, 0x2, 0x3})

	case "/admin/echo":
		httpx.WriteSuccess(w, map[string]string{
			"authorization": auth,
			"locale":        r.Header.Get("Accept-Language"),
			"request_id":    r.Header.Get("X-Request-ID"),
			"custom":        r.Header.Get("X-Custom"),
		})

	default:
		f.dataCalls.Add(1)
		f.mu.Lock()
		f.dataAuth = append(f.dataAuth, auth)
		valid := f.valid
		if caller := r.Header.Get("X-Caller"); caller != "" && auth == "Bearer "+valid {
			f.arrivals = append(f.arrivals, caller)
		}
		f.mu.Unlock()

		if auth != "Bearer "+valid {
			httpx.WriteEnvelope(w, httpx.CodeUnauthorized, "token expired", nil)
			return
		}
		httpx.WriteSuccess(w, map[string]string{"path": r.URL.Path, "token": strings.TrimPrefix(auth, "Bearer ")})
	}
}

func (f *fakeAdmin) hold() chan struct{} {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
	return gate
}

func (f *fakeAdmin) setMode(m refreshMode) {
	f.mu.Lock()
	f.mode = m
	f.mu.Unlock()
}

func (f *fakeAdmin) authsSeen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.dataAuth...)
}

func (f *fakeAdmin) arrivalOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.arrivals...)
}

// recorder collects what the client shows the user.
type recorder struct {
	mu       sync.Mutex
	messages []adminsdk.Message
	logouts  atomic.Int32
}

func (r *recorder) Notify(m adminsdk.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
}

func (r *recorder) count(kind adminsdk.MessageKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages {
		if m.Kind == kind {
			n++
		}
	}
	return n
}

type harness struct {
	admin  *fakeAdmin
	srv    *httptest.Server
	store  credstore.Store
	rec    *recorder
	client *adminsdk.Client
}

// newHarness starts a backend and a client logged in with T1/R1. The
// backend only accepts T2, so the first call of every test expires.
func newHarness(t *testing.T, mutate ...func(*adminsdk.Options)) *harness {
	t.Helper()

	h := &harness{
		admin: newFakeAdmin(),
		rec:   &recorder{},
	}
	h.srv = httptest.NewServer(h.admin)
	t.Cleanup(h.srv.Close)

	opts := adminsdk.Options{
		BaseURL:        h.srv.URL,
		Store:          credstore.NewMemory(),
		Notifier:       h.rec,
		LogoutFunc:     func(context.Context) { h.rec.logouts.Add(1) },
		Locale:         "en-AU",
		MessageWait:    50 * time.Millisecond,
		MessageMaxWait: 200 * time.Millisecond,
		Logger:         slogx.Discard(),
	}
	for _, m := range mutate {
		m(&opts)
	}

	h.store = opts.Store
	require.NoError(t, h.store.Set(context.Background(), credstore.Credentials{
		AccessToken:  "T1",
		RefreshToken: "R1",
		ExpiresAt:    time.Now().Add(time.Second).Unix(),
	}))

	client, err := adminsdk.New(opts)
	require.NoError(t, err)
	h.client = client
	return h
}

func (h *harness) creds(t *testing.T) credstore.Credentials {
	t.Helper()
	c, err := h.store.Get(context.Background())
	require.NoError(t, err)
	return c
}

func tokenOf(t *testing.T, resp *adminsdk.Response) string {
	t.Helper()
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, adminsdk.Decode(resp, &data))
	return data.Token
}

// slowClear is a store whose Clear waits until release is closed.
type slowClear struct {
	credstore.Store
	clearing chan struct{}
	release  chan struct{}
	once     sync.Once
}

func newSlowClear() *slowClear {
	return &slowClear{
		Store:    credstore.NewMemory(),
		clearing: make(chan struct{}),
		release:  make(chan struct{}),
	}
}

func (s *slowClear) Clear(ctx context.Context) error {
	s.once.Do(func() { close(s.clearing) })
	<-s.release
	return s.Store.Clear(ctx)
}
