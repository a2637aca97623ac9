package adminsdk

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/passport/pkg/debounce"
	"github.com/aussiebroadwan/passport/pkg/httpx"
	"golang.org/x/time/rate"
)

// MessageKind classifies a user-visible message.
type MessageKind string

const (
	KindError          MessageKind = "error"
	KindServerError    MessageKind = "server_error"
	KindSessionExpired MessageKind = "session_expired"
)

// Message is something the user should see.
type Message struct {
	Kind MessageKind
	Code int
	Text string
}

// Notifier shows messages to the user.
type Notifier interface {
	Notify(Message)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Message)

func (f NotifierFunc) Notify(m Message) { f(m) }

type logNotifier struct{ logger *slog.Logger }

func (n logNotifier) Notify(m Message) {
	n.logger.Warn(m.Text, "kind", m.Kind, "code", m.Code)
}

const (
	DefaultMessageWait    = 300 * time.Millisecond
	DefaultMessageMaxWait = time.Second
	DefaultMessageRate    = rate.Limit(1)
	DefaultMessageBurst   = 3
)

const (
	msgServerError    = "The server is having trouble, please try again later."
	msgSessionExpired = "Your session has expired, please log in again."
)

// messenger keeps bursts of failures from flooding the user. Server faults
// and forced logouts are coalesced; envelope errors are rate limited.
type messenger struct {
	notifier Notifier
	limiter  *rate.Limiter

	serverError *debounce.Debouncer
	expired     *debounce.Debouncer
}

func newMessenger(n Notifier, wait, maxWait time.Duration, limit rate.Limit, burst int, logout func(context.Context)) *messenger {
	m := &messenger{
		notifier: n,
		limiter:  rate.NewLimiter(limit, burst),
	}
	m.serverError = debounce.New(wait, maxWait, func() {
		m.notifier.Notify(Message{Kind: KindServerError, Code: httpx.CodeFail, Text: msgServerError})
	})
	m.expired = debounce.New(wait, maxWait, func() {
		m.notifier.Notify(Message{Kind: KindSessionExpired, Code: httpx.CodeUnauthorized, Text: msgSessionExpired})
		if logout != nil {
			logout(context.Background())
		}
	})
	return m
}

// apiError shows an envelope failure unless the flood limit is exhausted.
func (m *messenger) apiError(code int, text string) {
	if !m.limiter.Allow() {
		return
	}
	if text == "" {
		text = codeText(code)
	}
	m.notifier.Notify(Message{Kind: KindError, Code: code, Text: text})
}

func (m *messenger) serverFault() { m.serverError.Trigger() }

func (m *messenger) sessionExpired() { m.expired.Trigger() }

// flush runs anything still waiting in a debounce window.
func (m *messenger) flush() {
	m.serverError.Flush()
	m.expired.Flush()
}

func codeText(code int) string {
	switch code {
	case httpx.CodeUnauthorized:
		return "Authentication required."
	case httpx.CodeForbidden:
		return "You do not have permission to do that."
	case httpx.CodeNotFound:
		return "The requested resource was not found."
	case httpx.CodeMethodNotAllowed:
		return "That operation is not allowed."
	case httpx.CodeFail:
		return "The request failed."
	default:
		if text := http.StatusText(code); text != "" {
			return text
		}
		return "Unknown error."
	}
}
