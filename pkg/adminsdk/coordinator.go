package adminsdk

import (
	"context"
	"log/slog"
	"net/http/httptrace"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/passport/pkg/credstore"
	"github.com/aussiebroadwan/passport/pkg/httpx"
)

// State is the refresh state of a Coordinator.
type State int

const (
	Idle State = iota
	Refreshing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Refreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

type result struct {
	resp *Response
	err  error
}

// pending is a request blocked behind an in-flight refresh. done is
// buffered so settling never blocks on a caller that stopped waiting.
type pending struct {
	ctx  context.Context
	req  *httpx.Request
	done chan result
}

func (p *pending) settle(resp *Response, err error) {
	p.done <- result{resp: resp, err: err}
}

// DefaultReplayTurnWait bounds how long a replay holds up the ones queued
// behind it before it reaches the wire.
const DefaultReplayTurnWait = time.Second

// turn is passed once its replay is on the wire, has finished, or has held
// its place for longer than the turn wait.
type turn struct {
	done chan struct{}
	once sync.Once
}

func newTurn() *turn { return &turn{done: make(chan struct{})} }

func (t *turn) pass() { t.once.Do(func() { close(t.done) }) }

// Coordinator makes sure only one refresh is in flight and replays every
// request that was blocked behind it.
type Coordinator struct {
	store   credstore.Store
	refresh func(ctx context.Context, refreshToken string) (credstore.Credentials, error)
	prepare func(ctx context.Context, req *httpx.Request) error
	replay  func(ctx context.Context, req *httpx.Request) (*Response, error)
	expire  func(ctx context.Context)
	logger  *slog.Logger

	turnWait time.Duration

	mu         sync.Mutex
	state      State
	queue      []*pending
	generation uint64 // refreshes finished so far, failed or not
}

// State returns the current refresh state.
func (co *Coordinator) State() State {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.state
}

// Pending returns the number of requests waiting on the refresh.
func (co *Coordinator) Pending() int {
	co.mu.Lock()
	defer co.mu.Unlock()
	return len(co.queue)
}

// handle deals with an UNAUTHORIZED response to req.
func (co *Coordinator) handle(ctx context.Context, req *httpx.Request, resp *Response) (*Response, error) {
	unauthorized := &APIError{Code: resp.Envelope.Code, Message: resp.Envelope.Message, Response: resp}

	co.mu.Lock()
	seen := co.generation
	co.mu.Unlock()

	creds, err := co.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !creds.Active() {
		co.logger.DebugContext(ctx, "unauthorized without a session")
		co.expire(ctx)
		return nil, sessionExpired(unauthorized)
	}

	sent := bearer(req)
	if sent != creds.AccessToken {
		// Issued before the last refresh; the stored token is newer.
		return co.resend(ctx, req)
	}

	co.mu.Lock()
	if co.state == Refreshing {
		p := &pending{ctx: ctx, req: req, done: make(chan result, 1)}
		co.queue = append(co.queue, p)
		co.mu.Unlock()

		select {
		case r := <-p.done:
			return r.resp, r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if co.generation != seen {
		// A refresh finished after the store was read.
		co.mu.Unlock()
		return co.settled(ctx, req, unauthorized)
	}
	if creds.RefreshToken == "" {
		co.mu.Unlock()
		co.logger.InfoContext(ctx, "no refresh token, forcing logout")
		co.expire(ctx)
		return nil, sessionExpired(unauthorized)
	}
	co.state = Refreshing
	co.mu.Unlock()

	co.logger.DebugContext(ctx, "refreshing session")

	// The refresh outlives a cancelled leader; queued callers depend on it.
	next, err := co.refresh(context.WithoutCancel(ctx), creds.RefreshToken)
	if err == nil {
		err = co.store.Set(context.WithoutCancel(ctx), next)
	}
	if err != nil {
		return nil, co.fail(ctx, err)
	}

	co.mu.Lock()
	queue := co.queue
	co.queue = nil
	co.generation++
	co.state = Idle
	co.mu.Unlock()

	co.logger.InfoContext(ctx, "session refreshed", "replaying", len(queue)+1)
	return co.replayAll(ctx, req, queue)
}

// resend replays a single request with the current credentials.
func (co *Coordinator) resend(ctx context.Context, req *httpx.Request) (*Response, error) {
	if err := co.prepare(ctx, req); err != nil {
		return nil, err
	}
	return co.replay(ctx, req)
}

// settled handles a request whose refresh finished elsewhere: it is resent
// if that refresh left a session behind.
func (co *Coordinator) settled(ctx context.Context, req *httpx.Request, unauthorized *APIError) (*Response, error) {
	creds, err := co.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !creds.Active() {
		return nil, sessionExpired(unauthorized)
	}
	return co.resend(ctx, req)
}

// replayAll resends the leader and then every queued request in queue
// order. Each replay is prepared and put on the wire only after the one
// ahead of it, while responses are awaited concurrently. A replay stuck in
// a hook gives up its place after turnWait.
func (co *Coordinator) replayAll(ctx context.Context, req *httpx.Request, queue []*pending) (*Response, error) {
	first := make(chan struct{})
	close(first)

	lead := newTurn()
	ahead := lead
	for _, p := range queue {
		own := newTurn()
		go func(p *pending, ahead <-chan struct{}, own *turn) {
			p.settle(co.replayInTurn(p.ctx, p.req, ahead, own))
		}(p, ahead.done, own)
		ahead = own
	}
	return co.replayInTurn(ctx, req, first, lead)
}

func (co *Coordinator) replayInTurn(ctx context.Context, req *httpx.Request, ahead <-chan struct{}, own *turn) (*Response, error) {
	select {
	case <-ahead:
	case <-ctx.Done():
		// Keep the place so later replays still go out in order.
		go func() {
			<-ahead
			own.pass()
		}()
		return nil, ctx.Err()
	}
	defer own.pass()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	held := time.AfterFunc(co.turnWait, own.pass)
	defer held.Stop()

	if err := co.prepare(ctx, req); err != nil {
		return nil, err
	}
	ctx = httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
		WroteRequest: func(httptrace.WroteRequestInfo) { own.pass() },
	})
	return co.replay(ctx, req)
}

// fail ends a refresh that did not produce credentials: the session is
// cleared and every queued caller is rejected. The store is cleared before
// leaving Refreshing so a 401 racing the failure queues here instead of
// starting a refresh with the old token.
func (co *Coordinator) fail(ctx context.Context, cause error) error {
	co.logger.WarnContext(ctx, "session refresh failed", "err", cause)

	co.expire(ctx)

	co.mu.Lock()
	queue := co.queue
	co.queue = nil
	co.generation++
	co.state = Idle
	co.mu.Unlock()

	err := sessionExpired(cause)
	for _, p := range queue {
		p.settle(nil, err)
	}
	if len(queue) > 0 {
		co.logger.InfoContext(ctx, "rejected queued requests", "count", len(queue))
	}
	return err
}

func bearer(req *httpx.Request) string {
	token, ok := strings.CutPrefix(req.Header.Get(HeaderAuthorization), "Bearer ")
	if !ok {
		return ""
	}
	return token
}
