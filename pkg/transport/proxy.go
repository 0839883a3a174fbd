package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"sync"

	"github.com/nats-io/nuid"

	"github.com/morezero/wallet-router/pkg/wire"
)

const proxyLogPrefix = "transport:proxy"

// Proxy turns the fire-and-forget Transport into an awaitable call API.
// It assigns a unique local id per call and matches responses strictly by
// id, never by arrival order. Any number of calls may be outstanding at
// once; they complete independently.
type Proxy struct {
	tr Transport

	mu       sync.Mutex
	pending  map[string]chan callResult
	closed   bool
	closeErr error
}

type callResult struct {
	resp *wire.Response
	err  error
}

// NewProxy wraps tr, registers its message and disconnect handlers, and
// connects it.
func NewProxy(tr Transport) (*Proxy, error) {
	p := &Proxy{
		tr:      tr,
		pending: make(map[string]chan callResult),
	}
	tr.OnMessage(p.handleMessage)
	tr.OnDisconnect(p.handleDisconnect)
	if err := tr.Connect(); err != nil {
		return nil, fmt.Errorf("%s - failed to connect transport: %w", proxyLogPrefix, err)
	}
	return p, nil
}

// Call sends method/params over the wrapped transport and suspends until a
// matching response arrives, the timeout elapses, or the transport
// disconnects. On timeout the call id is retired; a response arriving later
// for a retired id is discarded.
func (p *Proxy) Call(ctx context.Context, method string, params json.RawMessage, timeout time.Duration) (*wire.Response, error) {
	id := nuid.Next()
	ch := make(chan callResult, 1)

	p.mu.Lock()
	if p.closed {
		err := p.closeErr
		p.mu.Unlock()
		return nil, err
	}
	p.pending[id] = ch
	p.mu.Unlock()

	req := &wire.Request{ID: id, Method: method, Params: params}
	data, err := json.Marshal(req)
	if err != nil {
		p.retire(id)
		return nil, fmt.Errorf("%s - failed to encode request: %w", proxyLogPrefix, err)
	}
	if err := p.tr.Send(data); err != nil {
		p.retire(id)
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.resp, res.err
	case <-timer.C:
		if p.retire(id) {
			return nil, wire.NewRouterError(wire.CodeTimeout, fmt.Sprintf("call %q timed out after %s", method, timeout))
		}
		// Lost the race: a settlement arrived between timer firing and retire.
		res := <-ch
		return res.resp, res.err
	case <-ctx.Done():
		if p.retire(id) {
			return nil, wire.NewRouterError(wire.CodeTimeout, fmt.Sprintf("call %q cancelled: %v", method, ctx.Err()))
		}
		res := <-ch
		return res.resp, res.err
	}
}

// PendingCount reports the number of outstanding calls.
func (p *Proxy) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Close disconnects the wrapped transport, failing all outstanding calls.
func (p *Proxy) Close() error {
	return p.tr.Disconnect()
}

// retire removes id from the pending set. Reports whether this caller won
// the settlement race.
func (p *Proxy) retire(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.pending[id]; !ok {
		return false
	}
	delete(p.pending, id)
	return true
}

func (p *Proxy) handleMessage(msg []byte) {
	var resp wire.Response
	if err := json.Unmarshal(msg, &resp); err != nil {
		slog.Warn(fmt.Sprintf("%s - discarding undecodable frame: %v", proxyLogPrefix, err))
		return
	}

	p.mu.Lock()
	ch, ok := p.pending[resp.ID]
	if ok {
		delete(p.pending, resp.ID)
	}
	p.mu.Unlock()

	if !ok {
		// Retired id (timed out or never issued). There is no live caller to
		// deliver to, so the response is logged and dropped.
		slog.Debug(fmt.Sprintf("%s - discarding response for retired id %s", proxyLogPrefix, resp.ID))
		return
	}
	ch <- callResult{resp: &resp}
}

func (p *Proxy) handleDisconnect(cause error) {
	err := wire.NewRouterError(wire.CodeTransportDisconnected, "transport disconnected")
	if cause != nil {
		err = wire.NewRouterError(wire.CodeTransportDisconnected, fmt.Sprintf("transport disconnected: %v", cause))
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.closeErr = err
	outstanding := p.pending
	p.pending = make(map[string]chan callResult)
	p.mu.Unlock()

	if len(outstanding) > 0 {
		slog.Info(fmt.Sprintf("%s - failing %d outstanding calls on disconnect", proxyLogPrefix, len(outstanding)))
	}
	for _, ch := range outstanding {
		ch <- callResult{err: err}
	}
}
