package repository

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// flightGroup collapses concurrent calls for the same key into one execution.
//
// The shared call runs on its own context, detached from whichever caller
// started it. That context is canceled only once every waiter has left, so
// one caller giving up never fails the others.
type flightGroup[T any] struct {
	group singleflight.Group

	mu    sync.Mutex
	calls map[string]*flightCall
}

type flightCall struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// do runs fn once per key among concurrent callers. Each caller stops waiting
// when its own context ends. shared reports whether the result was produced
// for another caller too.
func (g *flightGroup[T]) do(ctx context.Context, key string, fn func(ctx context.Context) (T, error)) (result T, shared bool, err error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}

	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[string]*flightCall)
	}
	call, ok := g.calls[key]
	if !ok {
		callCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		call = &flightCall{ctx: callCtx, cancel: cancel}
		g.calls[key] = call
	}
	call.waiters++
	ch := g.group.DoChan(key, func() (any, error) {
		return fn(call.ctx)
	})
	g.mu.Unlock()

	select {
	case res := <-ch:
		g.leave(key, call, false)
		if res.Err != nil {
			return zero, res.Shared, res.Err
		}
		v, _ := res.Val.(T)
		return v, res.Shared, nil
	case <-ctx.Done():
		g.leave(key, call, true)
		return zero, false, ctx.Err()
	}
}

// leave drops one waiter. The last waiter out cancels the shared call; if it
// abandoned the call, later callers start a fresh one instead of joining it.
func (g *flightGroup[T]) leave(key string, call *flightCall, abandoned bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	call.waiters--
	if call.waiters > 0 {
		return
	}
	if g.calls[key] == call {
		delete(g.calls, key)
	}
	if abandoned {
		g.group.Forget(key)
	}
	call.cancel()
}
