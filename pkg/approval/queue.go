// Package approval holds requests whose method is Ask-gated until an
// external approver explicitly allows or denies each request instance.
//
// Pending entries are keyed by the request's unique identifier, never by
// method name: two concurrent requests for the same method each get their
// own entry and their own suspension, and resolving one has no effect on
// the other.
package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nats-io/nuid"

	"github.com/morezero/wallet-router/pkg/wire"
)

const logPrefix = "approval:queue"

// Notification is handed to the Notifier when a request starts waiting for
// approval. The correlation token lets the approver UI reference this
// pending approval without exposing the wire-level request id.
type Notification struct {
	SessionID        string          `json:"sessionId"`
	RequestID        string          `json:"requestId"`
	CorrelationToken string          `json:"correlationToken"`
	ChainID          string          `json:"chainId,omitempty"`
	Method           string          `json:"method"`
	Params           json.RawMessage `json:"params,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// Notifier is the fire-and-forget callback informing the approver UI of a
// new pending approval. The decision does not come back through it; the
// approver resolves via Resolve.
type Notifier func(n *Notification)

// Config holds queue configuration.
type Config struct {
	// Timeout is how long an entry may stay pending before it is cancelled
	// and the suspended call fails with APPROVAL_TIMEOUT.
	Timeout time.Duration
}

// DefaultConfig returns the default queue configuration.
func DefaultConfig() Config {
	return Config{Timeout: 2 * time.Minute}
}

// Queue manages pending approvals. Only the queue mutates the pending set;
// exactly one of explicit resolve, timeout, or cancel settles a given entry.
type Queue struct {
	cfg      Config
	notifier Notifier

	mu      sync.Mutex
	pending map[string]*entry
}

type entry struct {
	sessionID string
	requestID string
	token     string
	chainID   string
	method    string
	params    json.RawMessage
	createdAt time.Time
	timer     *time.Timer
	done      chan settlement
}

type settlement struct {
	approved bool
	err      error
}

// NewQueue creates a Queue. notifier may be nil for embeddings that poll
// PendingList instead.
func NewQueue(cfg Config, notifier Notifier) *Queue {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Queue{
		cfg:      cfg,
		notifier: notifier,
		pending:  make(map[string]*entry),
	}
}

// Pending is a live approval suspension returned by Enqueue.
type Pending struct {
	q     *Queue
	reqID string
	token string
	done  <-chan settlement
}

// Token returns the correlation token for this pending approval.
func (p *Pending) Token() string { return p.token }

// Wait suspends until the approval is resolved, cancelled, or times out.
// It reports the decision; denial by timeout or cancellation carries the
// corresponding RouterError. Context expiry cancels the entry.
func (p *Pending) Wait(ctx context.Context) (bool, error) {
	select {
	case s := <-p.done:
		return s.approved, s.err
	case <-ctx.Done():
		// Settle the entry so a late resolve is reported as stale. If the
		// cancel loses the race, take the real settlement.
		if err := p.q.Cancel(p.reqID, wire.CodeApprovalTimeout, "request context expired while awaiting approval"); err != nil {
			s := <-p.done
			return s.approved, s.err
		}
		s := <-p.done
		return s.approved, s.err
	}
}

// Enqueue creates a pending entry for req owned by sessionID, generates a
// fresh correlation token, and notifies the approver. The caller suspends
// via Pending.Wait; other in-flight requests are unaffected.
func (q *Queue) Enqueue(sessionID string, session *wire.SessionContext, req *wire.Request) (*Pending, error) {
	if req.ID == "" {
		return nil, wire.NewRouterError(wire.CodeInvalidRequest, "request id is required")
	}

	e := &entry{
		sessionID: sessionID,
		requestID: req.ID,
		token:     nuid.Next(),
		method:    req.Method,
		params:    req.Params,
		createdAt: time.Now().UTC(),
		done:      make(chan settlement, 1),
	}
	if session != nil {
		e.chainID = session.ChainID
	}

	q.mu.Lock()
	if _, exists := q.pending[req.ID]; exists {
		q.mu.Unlock()
		return nil, wire.NewRouterError(wire.CodeInvalidState,
			fmt.Sprintf("request id %q already has a pending approval", req.ID))
	}
	q.pending[req.ID] = e
	e.timer = time.AfterFunc(q.cfg.Timeout, func() { q.expire(req.ID) })
	q.mu.Unlock()

	slog.Info(fmt.Sprintf("%s - pending approval created request=%s method=%s token=%s", logPrefix, req.ID, req.Method, e.token))

	if q.notifier != nil {
		q.notifier(&Notification{
			SessionID:        sessionID,
			RequestID:        e.requestID,
			CorrelationToken: e.token,
			ChainID:          e.chainID,
			Method:           e.method,
			Params:           e.params,
			CreatedAt:        e.createdAt,
		})
	}

	return &Pending{q: q, reqID: req.ID, token: e.token, done: e.done}, nil
}

// Resolve settles the pending approval for requestID with the approver's
// decision. A requestID with no live entry (already resolved, timed out, or
// never enqueued) yields STALE_APPROVAL.
func (q *Queue) Resolve(requestID string, approved bool) error {
	e := q.take(requestID)
	if e == nil {
		return wire.NewRouterError(wire.CodeStaleApproval,
			fmt.Sprintf("no pending approval for request id %q", requestID))
	}
	slog.Info(fmt.Sprintf("%s - resolved request=%s approved=%t", logPrefix, requestID, approved))
	e.done <- settlement{approved: approved}
	return nil
}

// Cancel settles the pending approval for requestID with a denial carrying
// the given error code. Cancelling an already-settled id yields
// STALE_APPROVAL, never a crash or a double notification.
func (q *Queue) Cancel(requestID, code, message string) error {
	e := q.take(requestID)
	if e == nil {
		return wire.NewRouterError(wire.CodeStaleApproval,
			fmt.Sprintf("no pending approval for request id %q", requestID))
	}
	slog.Info(fmt.Sprintf("%s - cancelled request=%s code=%s", logPrefix, requestID, code))
	e.done <- settlement{err: wire.NewRouterError(code, message)}
	return nil
}

// CancelSession cancels every pending approval owned by sessionID with a
// SESSION_CLOSED reason, so no suspended call leaks past teardown. Returns
// the number of entries cancelled.
func (q *Queue) CancelSession(sessionID string) int {
	q.mu.Lock()
	var ids []string
	for id, e := range q.pending {
		if e.sessionID == sessionID {
			ids = append(ids, id)
		}
	}
	q.mu.Unlock()

	n := 0
	for _, id := range ids {
		if err := q.Cancel(id, wire.CodeSessionClosed, "owning session disconnected"); err == nil {
			n++
		}
	}
	if n > 0 {
		slog.Info(fmt.Sprintf("%s - cancelled %d pending approvals for session %s", logPrefix, n, sessionID))
	}
	return n
}

// PendingInfo describes one pending approval for status reporting.
type PendingInfo struct {
	RequestID        string    `json:"requestId"`
	CorrelationToken string    `json:"correlationToken"`
	SessionID        string    `json:"sessionId"`
	ChainID          string    `json:"chainId,omitempty"`
	Method           string    `json:"method"`
	CreatedAt        time.Time `json:"createdAt"`
}

// PendingList returns a snapshot of all pending approvals, oldest first.
func (q *Queue) PendingList() []PendingInfo {
	q.mu.Lock()
	out := make([]PendingInfo, 0, len(q.pending))
	for _, e := range q.pending {
		out = append(out, PendingInfo{
			RequestID:        e.requestID,
			CorrelationToken: e.token,
			SessionID:        e.sessionID,
			ChainID:          e.chainID,
			Method:           e.method,
			CreatedAt:        e.createdAt,
		})
	}
	q.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// PendingCount reports the number of live pending approvals.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// take atomically removes and returns the entry for requestID, stopping its
// timer. Whoever takes the entry wins the settlement race.
func (q *Queue) take(requestID string) *entry {
	q.mu.Lock()
	e, ok := q.pending[requestID]
	if ok {
		delete(q.pending, requestID)
	}
	q.mu.Unlock()
	if !ok {
		return nil
	}
	e.timer.Stop()
	return e
}

func (q *Queue) expire(requestID string) {
	e := q.take(requestID)
	if e == nil {
		return
	}
	slog.Info(fmt.Sprintf("%s - approval timed out request=%s method=%s", logPrefix, requestID, e.method))
	e.done <- settlement{err: wire.NewRouterError(wire.CodeApprovalTimeout,
		fmt.Sprintf("approval for request %q timed out", requestID))}
}
