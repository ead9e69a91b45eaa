package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"articlereview/internal/logging"
)

// BridgeOptions tunes a Bridge.
type BridgeOptions struct {
	// CallTimeout applies when CallTool is given a zero timeout.
	CallTimeout time.Duration
	// SessionTimeout bounds connect plus initialize.
	SessionTimeout time.Duration
	// SlowCallThreshold is the duration above which a tool call is logged
	// as a warning.
	SlowCallThreshold time.Duration
}

// DefaultBridgeOptions returns the defaults used by the CLI.
func DefaultBridgeOptions() BridgeOptions {
	return BridgeOptions{
		CallTimeout:       60 * time.Second,
		SessionTimeout:    30 * time.Second,
		SlowCallThreshold: 5 * time.Second,
	}
}

// Session describes the live connection.
type Session struct {
	Server   ServerInfo
	OpenedAt time.Time
}

type opKind int

const (
	opOpen opKind = iota
	opCall
	opListTools
	opClose
)

// request is a unit of work for the worker. reply is a one-shot future.
type request struct {
	ctx   context.Context
	kind  opKind
	name  string
	args  map[string]interface{}
	reply chan reply
}

type reply struct {
	session *Session
	raw     json.RawMessage
	tools   []ToolSchema
	err     error
}

// Bridge lets any number of goroutines make blocking tool calls over one
// long-lived MCP session. A single worker goroutine owns the transport and
// runs requests one at a time; callers hand it a request with a reply
// channel and wait.
type Bridge struct {
	factory TransportFactory
	opts    BridgeOptions

	sessMu sync.Mutex
	live   atomic.Pointer[Session]

	reqs      chan *request
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	// worker-owned
	transport Transport
}

// NewBridge starts the worker. No connection is made until the first
// EnsureSession or CallTool.
func NewBridge(factory TransportFactory, opts BridgeOptions) *Bridge {
	def := DefaultBridgeOptions()
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = def.CallTimeout
	}
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = def.SessionTimeout
	}
	if opts.SlowCallThreshold <= 0 {
		opts.SlowCallThreshold = def.SlowCallThreshold
	}
	b := &Bridge{
		factory: factory,
		opts:    opts,
		reqs:    make(chan *request),
		done:    make(chan struct{}),
	}
	b.wg.Add(1)
	go b.run()
	return b
}

// EnsureSession returns the live session, opening one if needed. Concurrent
// callers share a single open.
func (b *Bridge) EnsureSession(ctx context.Context) (*Session, error) {
	b.sessMu.Lock()
	defer b.sessMu.Unlock()

	if s := b.live.Load(); s != nil {
		return s, nil
	}

	ctx, cancel := context.WithTimeout(ctx, b.opts.SessionTimeout)
	defer cancel()
	rep, err := b.submit(ctx, &request{kind: opOpen})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: opening session after %v", ErrTimeout, b.opts.SessionTimeout)
		}
		return nil, err
	}
	return rep.session, nil
}

// Session returns the live session or nil.
func (b *Bridge) Session() *Session {
	return b.live.Load()
}

// CallTool calls a tool and waits up to timeout for the unwrapped result.
// A zero timeout uses BridgeOptions.CallTimeout.
func (b *Bridge) CallTool(ctx context.Context, name string, args map[string]interface{}, timeout time.Duration) (any, error) {
	raw, err := b.CallToolRaw(ctx, name, args, timeout)
	if err != nil {
		return nil, err
	}
	v, err := UnwrapResult(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

// CallToolRaw is CallTool without unwrapping.
func (b *Bridge) CallToolRaw(ctx context.Context, name string, args map[string]interface{}, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = b.opts.CallTimeout
	}
	if _, err := b.EnsureSession(ctx); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	timer := logging.StartTimer(logging.CategoryTools, "tools/call "+name)
	rep, err := b.submit(callCtx, &request{kind: opCall, name: name, args: args})
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			logging.ToolsWarn("Tool %s timed out after %v", name, timeout)
			return nil, fmt.Errorf("%w: %s after %v", ErrTimeout, name, timeout)
		}
		return nil, err
	}
	timer.StopWithThreshold(b.opts.SlowCallThreshold)
	return rep.raw, nil
}

// ListTools lists the tools of the live session, opening it if needed.
func (b *Bridge) ListTools(ctx context.Context) ([]ToolSchema, error) {
	if _, err := b.EnsureSession(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, b.opts.CallTimeout)
	defer cancel()
	rep, err := b.submit(ctx, &request{kind: opListTools})
	if err != nil {
		return nil, err
	}
	return rep.tools, nil
}

// CloseSession tears down the session and its connection. It is a no-op
// when no session is open or the bridge is closed.
func (b *Bridge) CloseSession() error {
	b.sessMu.Lock()
	defer b.sessMu.Unlock()

	select {
	case <-b.done:
		return nil
	default:
	}
	_, err := b.submit(context.Background(), &request{kind: opClose})
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// Close closes the session and stops the worker. Further calls fail with
// ErrClosed.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		close(b.done)
	})
	b.wg.Wait()
	return nil
}

// submit hands req to the worker and waits for its reply.
func (b *Bridge) submit(ctx context.Context, req *request) (reply, error) {
	req.ctx = ctx
	req.reply = make(chan reply, 1)

	select {
	case b.reqs <- req:
	case <-ctx.Done():
		return reply{}, ctx.Err()
	case <-b.done:
		return reply{}, ErrClosed
	}

	select {
	case rep := <-req.reply:
		return rep, rep.err
	case <-ctx.Done():
		return reply{}, ctx.Err()
	case <-b.done:
		return reply{}, ErrClosed
	}
}

func (b *Bridge) run() {
	defer b.wg.Done()
	for {
		select {
		case req := <-b.reqs:
			req.reply <- b.handle(req)
		case <-b.done:
			b.closeTransport()
			return
		}
	}
}

func (b *Bridge) handle(req *request) reply {
	if err := req.ctx.Err(); err != nil {
		return reply{err: err}
	}

	switch req.kind {
	case opOpen:
		return b.open(req.ctx)
	case opCall:
		if b.transport == nil {
			return reply{err: transportErr("no open session")}
		}
		raw, err := b.transport.CallTool(req.ctx, req.name, req.args)
		b.checkAlive()
		return reply{raw: raw, err: err}
	case opListTools:
		if b.transport == nil {
			return reply{err: transportErr("no open session")}
		}
		tools, err := b.transport.ListTools(req.ctx)
		b.checkAlive()
		return reply{tools: tools, err: err}
	case opClose:
		b.closeTransport()
		return reply{}
	default:
		return reply{err: fmt.Errorf("unknown bridge op %d", req.kind)}
	}
}

func (b *Bridge) open(ctx context.Context) reply {
	if s := b.live.Load(); s != nil && b.transport != nil && b.transport.IsConnected() {
		return reply{session: s}
	}
	b.closeTransport()

	t, err := b.factory()
	if err != nil {
		return reply{err: fmt.Errorf("%w: failed to create transport: %w", ErrTransport, err)}
	}
	if err := t.Connect(ctx); err != nil {
		_ = t.Disconnect()
		return reply{err: err}
	}
	info, err := t.Initialize(ctx)
	if err != nil {
		_ = t.Disconnect()
		return reply{err: err}
	}

	s := &Session{Server: *info, OpenedAt: time.Now()}
	b.transport = t
	b.live.Store(s)
	logging.Tools("MCP session opened: %s %s (protocol %s)", info.Name, info.Version, info.ProtocolVersion)
	return reply{session: s}
}

// checkAlive drops a session whose connection has gone away so the next
// EnsureSession reconnects.
func (b *Bridge) checkAlive() {
	if b.transport != nil && !b.transport.IsConnected() {
		logging.ToolsWarn("MCP connection lost; session dropped")
		b.closeTransport()
	}
}

func (b *Bridge) closeTransport() {
	b.live.Store(nil)
	if b.transport == nil {
		return
	}
	if err := b.transport.Disconnect(); err != nil {
		logging.ToolsWarn("MCP disconnect: %v", err)
	}
	b.transport = nil
	logging.Tools("MCP session closed")
}
