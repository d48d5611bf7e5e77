package component

import (
	"context"
	"sync"
)

// Base carries the lifecycle state every broker component shares: a
// context derived at start, its cancel function and a wait group
// covering goroutines launched through Go. Components embed it and call
// StartContext/StopContext from their Start and Stop.
type Base struct {
	name   string
	Ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBase(name string) *Base {
	return &Base{name: name}
}

func (b *Base) Name() string {
	return b.name
}

func (b *Base) StartContext(parentCtx context.Context) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	b.Ctx, b.cancel = context.WithCancel(parentCtx)
}

// StopContext cancels the component context and waits for every
// goroutine started through Go to return.
func (b *Base) StopContext() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
}

// Go runs fn on a tracked goroutine; StopContext blocks until it exits.
func (b *Base) Go(fn func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn()
	}()
}
