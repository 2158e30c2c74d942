package workerchannel

import (
	"context"
	"sync"
)

// pendingCall bridges a push-style call completion into a pull-style await.
// It resolves exactly once, with a success, a translated worker error, or the
// awaiting context's cancellation. A resolution after the first is discarded.
type pendingCall struct {
	once sync.Once
	done chan error
}

func newPendingCall() *pendingCall {
	return &pendingCall{
		// Buffered so a late resolver never blocks after the awaiter has
		// already returned with a cancellation.
		done: make(chan error, 1),
	}
}

// resolve records the call's outcome. Only the first resolution counts.
func (p *pendingCall) resolve(err error) {
	p.once.Do(func() {
		p.done <- err
	})
}

// await blocks until the call resolves or ctx is cancelled, whichever comes
// first, and returns exactly one outcome.
func (p *pendingCall) await(ctx context.Context) error {
	select {
	case err := <-p.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
