package hooks_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aussiebroadwan/passport/pkg/hooks"
	"github.com/stretchr/testify/require"
)

func TestCallRunsInRegistrationOrder(t *testing.T) {
	t.Parallel()

	r := hooks.NewRegistry()
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		r.Register(hooks.NetworkRequest, func(_ context.Context, _ any) error {
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, r.Call(context.Background(), hooks.NetworkRequest, nil))
	require.Equal(t, []string{"a", "b", "c"}, order)

	// Other events are untouched
	require.NoError(t, r.Call(context.Background(), hooks.NetworkResponse, nil))
	require.Len(t, order, 3)
}

func TestHooksCanMutatePayload(t *testing.T) {
	t.Parallel()

	type payload struct{ n int }

	var r hooks.Registry
	r.Register(hooks.NetworkRequest, func(_ context.Context, p any) error {
		p.(*payload).n++
		return nil
	})
	r.Register(hooks.NetworkRequest, func(_ context.Context, p any) error {
		p.(*payload).n *= 10
		return nil
	})

	p := &payload{n: 1}
	require.NoError(t, r.Call(context.Background(), hooks.NetworkRequest, p))
	require.Equal(t, 20, p.n)
}

func TestErrorStopsChain(t *testing.T) {
	t.Parallel()

	r := hooks.NewRegistry()
	boom := errors.New("boom")
	ranSecond := false
	r.Register(hooks.NetworkResponse, func(context.Context, any) error { return boom })
	r.Register(hooks.NetworkResponse, func(context.Context, any) error {
		ranSecond = true
		return nil
	})

	err := r.Call(context.Background(), hooks.NetworkResponse, nil)
	require.ErrorIs(t, err, boom)
	require.False(t, ranSecond)
}

func TestUnregister(t *testing.T) {
	t.Parallel()

	r := hooks.NewRegistry()
	calls := 0
	id := r.Register(hooks.NetworkRequest, func(context.Context, any) error {
		calls++
		return nil
	})
	require.Equal(t, 1, r.Len(hooks.NetworkRequest))

	require.True(t, r.Unregister(id))
	require.False(t, r.Unregister(id))
	require.Equal(t, 0, r.Len(hooks.NetworkRequest))

	require.NoError(t, r.Call(context.Background(), hooks.NetworkRequest, nil))
	require.Zero(t, calls)
}

func TestCancelledContextStopsChain(t *testing.T) {
	t.Parallel()

	r := hooks.NewRegistry()
	r.Register(hooks.NetworkRequest, func(context.Context, any) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, r.Call(ctx, hooks.NetworkRequest, nil), context.Canceled)
}
