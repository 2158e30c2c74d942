// Package workerchannel maintains a reconnecting JSON-RPC handle to the
// out-of-process suggestion worker.
package workerchannel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os/exec"
	"sync"
	"time"

	"github.com/codeassist/suggestd/src/suggestd/internal/clock"
	"github.com/codeassist/suggestd/src/suggestd/internal/executor"
	tally "github.com/uber-go/tally"
	"go.lsp.dev/jsonrpc2"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	_configKeyAddress       = "worker.address"
	_configKeyLaunchCommand = "worker.launchCommand"

	_dialAttempts      = 3
	_dialRetryInterval = 200 * time.Millisecond
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// State describes the lifecycle of the worker connection handle.
type State int

const (
	// StateDisconnected indicates no transport has been established yet.
	StateDisconnected State = iota
	// StateConnecting indicates a transport is being established.
	StateConnecting
	// StateLive indicates the transport is established and usable.
	StateLive
	// StateInvalidated indicates the transport is permanently dead and will be rebuilt on next access.
	StateInvalidated
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateInvalidated:
		return "invalidated"
	}
	return "unknown"
}

// Delegate receives connection lifecycle notifications.
type Delegate interface {
	// Invalidated is called when the transport is permanently dead. The
	// handle rebuilds itself on the next call, so no caller action is needed.
	Invalidated(err error)
	// Interrupted is called on a transient fault. The same transport may
	// recover on its own and is not rebuilt.
	Interrupted(err error)
}

// DialFunc establishes the raw transport to the worker.
type DialFunc func(ctx context.Context) (io.ReadWriteCloser, error)

// Channel is a reconnecting handle to the suggestion worker. A single logical
// handle is shared by all callers needing the worker; rebuilds happen under
// the channel's own lock so no caller ever observes a live handle whose
// transport has already been invalidated.
type Channel interface {
	// Call performs exactly one request/response exchange with the worker,
	// transparently rebuilding the connection first if it has been
	// invalidated. It returns nil and populates result on success, a
	// translated worker error on remote failure, or the context's error on
	// cancellation. Exactly one of the three occurs per call.
	Call(ctx context.Context, method string, params, result interface{}) error

	// State returns the current connection state.
	State() State

	// SetDelegate registers the delegate notified of invalidation and interruption.
	SetDelegate(delegate Delegate)

	// Close tears down the current transport, if any.
	Close() error
}

// Params define values to be used by the channel.
type Params struct {
	fx.In

	Config    config.Provider
	Lifecycle fx.Lifecycle
	Logger    *zap.SugaredLogger
	Stats     tally.Scope
	Executor  executor.Executor
	Clock     clock.Clock
}

type channel struct {
	mu         sync.Mutex
	state      State
	conn       jsonrpc2.Conn
	generation uint64
	delegate   Delegate

	dial          DialFunc
	address       string
	launchCommand []string
	launchOnce    sync.Once

	executor executor.Executor
	clock    clock.Clock
	logger   *zap.SugaredLogger
	stats    tally.Scope
}

// New creates a Channel dialing the worker address from configuration.
func New(p Params) (Channel, error) {
	c := &channel{
		state:    StateDisconnected,
		executor: p.Executor,
		clock:    p.Clock,
		logger:   p.Logger,
		stats:    p.Stats.SubScope("worker_channel"),
	}

	if err := c.processConfig(p.Config); err != nil {
		return nil, err
	}

	c.dial = func(ctx context.Context) (io.ReadWriteCloser, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", c.address)
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return c.Close()
		},
	})

	return c, nil
}

// NewWithDial creates a Channel over a custom transport. Used by tests and
// alternative worker transports.
func NewWithDial(dial DialFunc, logger *zap.SugaredLogger, stats tally.Scope) Channel {
	return &channel{
		state:  StateDisconnected,
		dial:   dial,
		clock:  clock.New(),
		logger: logger,
		stats:  stats.SubScope("worker_channel"),
	}
}

func (c *channel) Call(ctx context.Context, method string, params, result interface{}) error {
	conn, err := c.ensureConn(ctx)
	if err != nil {
		return err
	}

	c.stats.Counter("calls").Inc(1)
	pc := newPendingCall()
	go func() {
		_, callErr := conn.Call(ctx, method, params, result)
		pc.resolve(c.translateOutcome(method, callErr))
	}()
	return pc.await(ctx)
}

func (c *channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *channel) SetDelegate(delegate Delegate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate = delegate
}

func (c *channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Bump the generation so a pending Done monitor for this conn becomes a no-op.
	c.generation++
	c.state = StateDisconnected
	if c.conn == nil {
		return nil
	}
	conn := c.conn
	c.conn = nil
	return conn.Close()
}

// ensureConn returns a live connection, rebuilding it first if the previous
// one was invalidated. The rebuild runs under the channel's lock, serializing
// concurrent callers behind a single dial.
func (c *channel) ensureConn(ctx context.Context) (jsonrpc2.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateLive {
		return c.conn, nil
	}

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = StateConnecting

	rwc, err := c.dialWorker(ctx)
	if err != nil {
		c.state = StateDisconnected
		return nil, fmt.Errorf("connecting to suggestion worker: %w", err)
	}

	conn := jsonrpc2.NewConn(jsonrpc2.NewStream(rwc))
	conn.Go(context.Background(), jsonrpc2.MethodNotFoundHandler)

	c.conn = conn
	c.generation++
	c.state = StateLive
	c.stats.Counter("rebuilds").Inc(1)
	c.logger.Infow("suggestion worker connection established")

	gen := c.generation
	go func() {
		<-conn.Done()
		c.invalidate(gen, conn.Err())
	}()

	return conn, nil
}

// dialWorker attempts to dial, launching the configured worker command once
// if the first attempt fails.
func (c *channel) dialWorker(ctx context.Context) (io.ReadWriteCloser, error) {
	var lastErr error
	for attempt := 0; attempt < _dialAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rwc, err := c.dial(ctx)
		if err == nil {
			return rwc, nil
		}
		lastErr = err
		c.maybeLaunchWorker()
		c.clock.Sleep(_dialRetryInterval)
	}
	return nil, lastErr
}

// maybeLaunchWorker starts the configured worker command, once per process.
// Single attempt: a worker that fails to come up surfaces as dial errors.
func (c *channel) maybeLaunchWorker() {
	if len(c.launchCommand) == 0 || c.executor == nil {
		return
	}
	c.launchOnce.Do(func() {
		c.logger.Infow("launching suggestion worker", "command", c.launchCommand)
		go func() {
			cmd := exec.Command(c.launchCommand[0], c.launchCommand[1:]...)
			if err := c.executor.RunCommand(cmd, nil); err != nil {
				c.logger.Warnf("suggestion worker exited: %v", err)
			}
		}()
	})
}

// invalidate marks the handle dead if gen still identifies the current
// connection, and notifies the delegate.
func (c *channel) invalidate(gen uint64, err error) {
	c.mu.Lock()
	if c.generation != gen || c.state != StateLive {
		c.mu.Unlock()
		return
	}
	c.state = StateInvalidated
	delegate := c.delegate
	c.mu.Unlock()

	c.stats.Counter("invalidations").Inc(1)
	c.logger.Warnw("suggestion worker connection invalidated", "error", err)
	if delegate != nil {
		delegate.Invalidated(err)
	}
}

// translateOutcome maps a raw call error onto the channel's outcome taxonomy.
func (c *channel) translateOutcome(method string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		c.stats.Counter("cancelled").Inc(1)
		return err
	}

	var respErr *jsonrpc2.Error
	if errors.As(err, &respErr) {
		// Remote-side failure. The transport itself is still healthy.
		c.stats.Counter("call_errors").Inc(1)
		return fmt.Errorf("worker call %q: %w", method, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		// Transient fault; the transport may recover without a rebuild.
		c.mu.Lock()
		delegate := c.delegate
		c.mu.Unlock()
		if delegate != nil {
			delegate.Interrupted(err)
		}
		c.stats.Counter("interruptions").Inc(1)
		return fmt.Errorf("worker call %q interrupted: %w", method, err)
	}

	// Anything else means the transport is gone. Mark the handle dead so the
	// next access rebuilds it.
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()
	c.invalidate(gen, err)
	return fmt.Errorf("worker call %q failed: %w", method, err)
}

func (c *channel) processConfig(cfg config.Provider) error {
	if err := cfg.Get(_configKeyAddress).Populate(&c.address); err != nil {
		return fmt.Errorf("getting config field %q: %w", _configKeyAddress, err)
	}
	if c.address == "" {
		return fmt.Errorf("missing field %q in config", _configKeyAddress)
	}

	if err := cfg.Get(_configKeyLaunchCommand).Populate(&c.launchCommand); err != nil {
		return fmt.Errorf("getting config field %q: %w", _configKeyLaunchCommand, err)
	}

	return nil
}
