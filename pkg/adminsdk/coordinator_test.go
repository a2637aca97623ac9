package adminsdk_test

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/passport/pkg/adminsdk"
	"github.com/aussiebroadwan/passport/pkg/credstore"
	"github.com/aussiebroadwan/passport/pkg/hooks"
	"github.com/aussiebroadwan/passport/pkg/httpx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type outcome struct {
	resp *adminsdk.Response
	err  error
}

// call starts a named request in the background.
func call(h *harness, ctx context.Context, name string) <-chan outcome {
	out := make(chan outcome, 1)
	go func() {
		resp, err := h.client.Do(ctx, &httpx.Request{
			Method: http.MethodGet,
			Path:   "/admin/data/" + name,
			Header: http.Header{"X-Caller": {name}},
		})
		out <- outcome{resp, err}
	}()
	return out
}

func waitQueued(t *testing.T, h *harness, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.client.Coordinator().Pending() == n },
		2*time.Second, 5*time.Millisecond, "expected %d queued requests", n)
}

func TestConcurrentUnauthorizedRefreshesOnce(t *testing.T) {
	h := newHarness(t)
	const n = 16

	var g errgroup.Group
	tokens := make([]string, n)
	for i := range n {
		g.Go(func() error {
			resp, err := h.client.Get(context.Background(), "/admin/data/item", nil)
			if err != nil {
				return err
			}
			var data struct {
				Token string `json:"token"`
			}
			if err := adminsdk.Decode(resp, &data); err != nil {
				return err
			}
			tokens[i] = data.Token
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.Equal(t, int32(1), h.admin.refreshCalls.Load())
	for _, tok := range tokens {
		require.Equal(t, "T2", tok)
	}

	creds := h.creds(t)
	require.Equal(t, "T2", creds.AccessToken)
	require.Equal(t, "R2", creds.RefreshToken)
	require.Greater(t, creds.ExpiresAt, time.Now().Unix())
	require.Equal(t, adminsdk.Idle, h.client.Coordinator().State())
}

func TestRefreshUsesIsolatedClient(t *testing.T) {
	h := newHarness(t)

	_, err := h.client.Get(context.Background(), "/admin/data/x", nil)
	require.NoError(t, err)

	h.admin.mu.Lock()
	defer h.admin.mu.Unlock()
	require.Equal(t, []string{"Bearer R1|"}, h.admin.refreshAuth,
		"refresh carries only the refresh token")
}

func TestReplayPreservesQueueOrder(t *testing.T) {
	h := newHarness(t)

	var mu sync.Mutex
	var replayed []string
	h.client.Hooks().Register(hooks.NetworkRequest, func(_ context.Context, payload any) error {
		req := payload.(*httpx.Request)
		if req.Header.Get("Authorization") == "Bearer T2" {
			mu.Lock()
			replayed = append(replayed, req.Header.Get("X-Caller"))
			mu.Unlock()
		}
		return nil
	})

	gate := h.admin.hold()
	leader := call(h, context.Background(), "L")
	require.Eventually(t, func() bool { return h.admin.refreshCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, adminsdk.Refreshing, h.client.Coordinator().State())

	a := call(h, context.Background(), "A")
	waitQueued(t, h, 1)
	b := call(h, context.Background(), "B")
	waitQueued(t, h, 2)
	c := call(h, context.Background(), "C")
	waitQueued(t, h, 3)

	close(gate)

	for _, ch := range []<-chan outcome{leader, a, b, c} {
		o := <-ch
		require.NoError(t, o.err)
		require.Equal(t, "T2", tokenOf(t, o.resp))
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"L", "A", "B", "C"}, replayed)
	require.Equal(t, int32(1), h.admin.refreshCalls.Load())
	require.Equal(t, 0, h.client.Coordinator().Pending())
}

func TestThreeExpiredCallsReplayWithNewToken(t *testing.T) {
	h := newHarness(t)

	gate := h.admin.hold()
	first := call(h, context.Background(), "one")
	require.Eventually(t, func() bool { return h.admin.refreshCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	second := call(h, context.Background(), "two")
	third := call(h, context.Background(), "three")
	waitQueued(t, h, 2)
	close(gate)

	paths := map[string]bool{}
	for _, ch := range []<-chan outcome{first, second, third} {
		o := <-ch
		require.NoError(t, o.err)
		var data struct {
			Path  string `json:"path"`
			Token string `json:"token"`
		}
		require.NoError(t, adminsdk.Decode(o.resp, &data))
		require.Equal(t, "T2", data.Token)
		paths[data.Path] = true
	}
	require.Len(t, paths, 3, "every caller receives its own response")

	var withT2 int
	for _, auth := range h.admin.authsSeen() {
		if auth == "Bearer T2" {
			withT2++
		}
	}
	require.Equal(t, 3, withT2)

	// Later calls use the new token straight away.
	resp, err := h.client.Get(context.Background(), "/admin/data/later", nil)
	require.NoError(t, err)
	require.Equal(t, "T2", tokenOf(t, resp))
	require.Equal(t, int32(1), h.admin.refreshCalls.Load())
}

func TestRefreshRejectedClearsStoreAndRejectsQueue(t *testing.T) {
	h := newHarness(t)
	h.admin.setMode(refreshRejected)

	gate := h.admin.hold()
	leader := call(h, context.Background(), "L")
	require.Eventually(t, func() bool { return h.admin.refreshCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	a := call(h, context.Background(), "A")
	waitQueued(t, h, 1)
	b := call(h, context.Background(), "B")
	waitQueued(t, h, 2)
	close(gate)

	for _, ch := range []<-chan outcome{leader, a, b} {
		o := <-ch
		require.Nil(t, o.resp)
		require.ErrorIs(t, o.err, adminsdk.ErrSessionExpired)
		require.True(t, adminsdk.IsCode(o.err, httpx.CodeUnauthorized), "cause carries the refresh response")
	}

	require.False(t, h.creds(t).Active())
	require.Equal(t, adminsdk.Idle, h.client.Coordinator().State())
	require.Equal(t, int32(1), h.admin.refreshCalls.Load())

	h.client.Close()
	require.Equal(t, int32(1), h.rec.logouts.Load())
	require.Equal(t, 1, h.rec.count(adminsdk.KindSessionExpired))
}

func TestRefreshTransportErrorLogsOutOnce(t *testing.T) {
	h := newHarness(t, func(o *adminsdk.Options) {
		o.MessageWait = 200 * time.Millisecond
		o.MessageMaxWait = time.Second
	})
	h.admin.setMode(refreshAbort)

	gate := h.admin.hold()
	calls := []<-chan outcome{call(h, context.Background(), "one")}
	require.Eventually(t, func() bool { return h.admin.refreshCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	calls = append(calls, call(h, context.Background(), "two"), call(h, context.Background(), "three"))
	waitQueued(t, h, 2)
	close(gate)

	for _, ch := range calls {
		o := <-ch
		require.ErrorIs(t, o.err, adminsdk.ErrSessionExpired)
		require.True(t, adminsdk.IsTransport(o.err))
	}
	require.False(t, h.creds(t).Active())

	require.Eventually(t, func() bool { return h.rec.logouts.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	require.Equal(t, int32(1), h.rec.logouts.Load())
	require.Equal(t, 1, h.rec.count(adminsdk.KindSessionExpired))
}

func TestNoRefreshTokenForcesLogoutWithoutNetwork(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Set(context.Background(), credstore.Credentials{AccessToken: "T1"}))

	_, err := h.client.Get(context.Background(), "/admin/data/x", nil)
	require.ErrorIs(t, err, adminsdk.ErrSessionExpired)

	require.Equal(t, int32(0), h.admin.refreshCalls.Load())
	require.False(t, h.creds(t).Active())

	h.client.Close()
	require.Equal(t, int32(1), h.rec.logouts.Load())
}

func TestUnauthorizedWhileLoggedOutIsFatal(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Clear(context.Background()))

	_, err := h.client.Get(context.Background(), "/admin/data/x", nil)
	require.ErrorIs(t, err, adminsdk.ErrSessionExpired)

	var apiErr *adminsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.NotNil(t, apiErr.Response)
	require.Equal(t, int32(0), h.admin.refreshCalls.Load())

	h.client.Close()
	require.Equal(t, int32(1), h.rec.logouts.Load())
}

func TestReplayStillUnauthorizedIsSurfaced(t *testing.T) {
	h := newHarness(t)
	h.admin.mu.Lock()
	h.admin.valid = "never"
	h.admin.mu.Unlock()

	_, err := h.client.Get(context.Background(), "/admin/data/x", nil)
	require.Error(t, err)
	require.False(t, errors.Is(err, adminsdk.ErrSessionExpired))
	require.True(t, adminsdk.IsCode(err, httpx.CodeUnauthorized))

	require.Equal(t, int32(1), h.admin.refreshCalls.Load())
	require.Equal(t, "T2", h.creds(t).AccessToken, "session is kept")
	require.Equal(t, 1, h.rec.count(adminsdk.KindError))
}

func TestStaleTokenIsReplayedWithoutSecondRefresh(t *testing.T) {
	h := newHarness(t)

	// The first call refreshes; the request below was "issued" with T1
	// before that refresh completed.
	_, err := h.client.Get(context.Background(), "/admin/data/first", nil)
	require.NoError(t, err)

	var sawStale bool
	id := h.client.Hooks().Register(hooks.NetworkRequest, func(_ context.Context, payload any) error {
		req := payload.(*httpx.Request)
		if !sawStale {
			sawStale = true
			req.Header.Set("Authorization", "Bearer T1")
		}
		return nil
	})
	defer h.client.Hooks().Unregister(id)

	resp, err := h.client.Get(context.Background(), "/admin/data/stale", nil)
	require.NoError(t, err)
	require.Equal(t, "T2", tokenOf(t, resp))
	require.Equal(t, int32(1), h.admin.refreshCalls.Load())
}

func TestCancelledWaiterStopsWaiting(t *testing.T) {
	h := newHarness(t)

	gate := h.admin.hold()
	leader := call(h, context.Background(), "L")
	require.Eventually(t, func() bool { return h.admin.refreshCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	waiter := call(h, ctx, "W")
	waitQueued(t, h, 1)
	cancel()

	o := <-waiter
	require.ErrorIs(t, o.err, context.Canceled)

	close(gate)
	o = <-leader
	require.NoError(t, o.err)
	assert.Equal(t, "T2", tokenOf(t, o.resp))
	require.Equal(t, 0, h.client.Coordinator().Pending())
}

func TestCancelledLeaderStillSavesRefreshedSession(t *testing.T) {
	store, err := credstore.NewSQLite("file:" + filepath.Join(t.TempDir(), "cache.db") + "?_pragma=busy_timeout(5000)")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	h := newHarness(t, func(o *adminsdk.Options) { o.Store = store })

	gate := h.admin.hold()
	ctx, cancel := context.WithCancel(context.Background())
	leader := call(h, ctx, "L")
	require.Eventually(t, func() bool { return h.admin.refreshCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	b := call(h, context.Background(), "B")
	waitQueued(t, h, 1)

	cancel()
	close(gate)

	o := <-leader
	require.ErrorIs(t, o.err, context.Canceled)

	o = <-b
	require.NoError(t, o.err)
	require.Equal(t, "T2", tokenOf(t, o.resp))

	creds := h.creds(t)
	require.Equal(t, "T2", creds.AccessToken)
	require.Equal(t, "R2", creds.RefreshToken)
	require.Equal(t, int32(1), h.admin.refreshCalls.Load())
}

func TestUnauthorizedWhileRefreshFailsDoesNotRefreshAgain(t *testing.T) {
	store := newSlowClear()
	h := newHarness(t, func(o *adminsdk.Options) { o.Store = store })
	h.admin.setMode(refreshRejected)

	leader := call(h, context.Background(), "L")
	select {
	case <-store.clearing:
	case <-time.After(2 * time.Second):
		t.Fatal("session was never cleared")
	}

	// Still holding T1: the store has not finished clearing.
	d := call(h, context.Background(), "D")
	waitQueued(t, h, 1)
	close(store.release)

	for _, ch := range []<-chan outcome{leader, d} {
		o := <-ch
		require.Nil(t, o.resp)
		require.ErrorIs(t, o.err, adminsdk.ErrSessionExpired)
	}
	require.Equal(t, int32(1), h.admin.refreshCalls.Load())
	require.False(t, h.creds(t).Active())
	require.Equal(t, adminsdk.Idle, h.client.Coordinator().State())
}

func TestStalledReplayHookHoldsUpOnlyItsRequest(t *testing.T) {
	h := newHarness(t, func(o *adminsdk.Options) { o.ReplayTurnWait = 100 * time.Millisecond })

	stuck := make(chan struct{})
	t.Cleanup(func() { close(stuck) })
	h.client.Hooks().Register(hooks.NetworkRequest, func(_ context.Context, payload any) error {
		req := payload.(*httpx.Request)
		if req.Header.Get("X-Caller") == "A" && req.Header.Get("Authorization") == "Bearer T2" {
			<-stuck
		}
		return nil
	})

	gate := h.admin.hold()
	leader := call(h, context.Background(), "L")
	require.Eventually(t, func() bool { return h.admin.refreshCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	a := call(h, context.Background(), "A")
	waitQueued(t, h, 1)
	b := call(h, context.Background(), "B")
	waitQueued(t, h, 2)
	close(gate)

	for name, ch := range map[string]<-chan outcome{"L": leader, "B": b} {
		select {
		case o := <-ch:
			require.NoError(t, o.err, name)
			require.Equal(t, "T2", tokenOf(t, o.resp), name)
		case <-time.After(2 * time.Second):
			t.Fatalf("%s is stuck behind A", name)
		}
	}

	select {
	case <-a:
		t.Fatal("A finished while its hook is stalled")
	default:
	}
}

func TestReplaysReachServerInQueueOrder(t *testing.T) {
	for range 3 {
		h := newHarness(t)

		gate := h.admin.hold()
		calls := []<-chan outcome{call(h, context.Background(), "L")}
		require.Eventually(t, func() bool { return h.admin.refreshCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
		for i, name := range []string{"A", "B", "C", "D", "E"} {
			calls = append(calls, call(h, context.Background(), name))
			waitQueued(t, h, i+1)
		}
		close(gate)

		for _, ch := range calls {
			o := <-ch
			require.NoError(t, o.err)
		}
		require.Equal(t, []string{"L", "A", "B", "C", "D", "E"}, h.admin.arrivalOrder())
	}
}

func TestStateString(t *testing.T) {
	require.Equal(t, "idle", adminsdk.Idle.String())
	require.Equal(t, "refreshing", adminsdk.Refreshing.String())
}
