package transport

import (
	"fmt"
	"log/slog"
	"sync"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/wallet-router/pkg/wire"
)

const natsLogPrefix = "transport:nats"

// NATSTransport is a Transport to one wallet node over a COMMS subject pair:
// frames are published on sendSubject and received via a subscription on
// recvSubject. Several transports may share one connection.
type NATSTransport struct {
	nc          *comms.Conn
	sendSubject string
	recvSubject string

	mu       sync.Mutex
	sub      *comms.Subscription
	onMsg    MessageHandler
	onDisc   DisconnectHandler
	discOnce sync.Once
}

// NewNATSTransport creates a transport over nc for the given subject pair.
func NewNATSTransport(nc *comms.Conn, sendSubject, recvSubject string) *NATSTransport {
	return &NATSTransport{nc: nc, sendSubject: sendSubject, recvSubject: recvSubject}
}

// Connect subscribes to the receive subject. Idempotent.
func (t *NATSTransport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sub != nil {
		return nil
	}
	sub, err := t.nc.Subscribe(t.recvSubject, func(msg *comms.Msg) {
		t.mu.Lock()
		h := t.onMsg
		t.mu.Unlock()
		if h == nil {
			slog.Debug(fmt.Sprintf("%s - dropped frame on %s: no message handler registered", natsLogPrefix, t.recvSubject))
			return
		}
		h(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("%s - failed to subscribe to %s: %w", natsLogPrefix, t.recvSubject, err)
	}
	t.sub = sub
	slog.Debug(fmt.Sprintf("%s - connected send=%s recv=%s", natsLogPrefix, t.sendSubject, t.recvSubject))
	return nil
}

// Disconnect unsubscribes and notifies the disconnect handler. Idempotent.
func (t *NATSTransport) Disconnect() error {
	t.teardown()
	t.fireDisconnect(nil)
	return nil
}

// Fail tears the transport down and notifies the disconnect handler with the
// given cause. Used when the wallet node goes away or the connection drops.
func (t *NATSTransport) Fail(cause error) {
	t.teardown()
	t.fireDisconnect(cause)
}

// Send publishes one frame to the wallet node.
func (t *NATSTransport) Send(msg []byte) error {
	if t.nc.IsClosed() {
		return wire.NewRouterError(wire.CodeTransportDisconnected, "comms connection is closed")
	}
	if err := t.nc.Publish(t.sendSubject, msg); err != nil {
		return wire.NewRouterError(wire.CodeTransportError, fmt.Sprintf("publish to %s failed: %v", t.sendSubject, err))
	}
	return nil
}

func (t *NATSTransport) OnMessage(h MessageHandler) {
	t.mu.Lock()
	t.onMsg = h
	t.mu.Unlock()
}

func (t *NATSTransport) OnDisconnect(h DisconnectHandler) {
	t.mu.Lock()
	t.onDisc = h
	t.mu.Unlock()
}

func (t *NATSTransport) teardown() {
	t.mu.Lock()
	sub := t.sub
	t.sub = nil
	t.mu.Unlock()
	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			slog.Warn(fmt.Sprintf("%s - unsubscribe %s: %v", natsLogPrefix, t.recvSubject, err))
		}
	}
}

func (t *NATSTransport) fireDisconnect(err error) {
	t.discOnce.Do(func() {
		t.mu.Lock()
		h := t.onDisc
		t.mu.Unlock()
		if h != nil {
			h(err)
		}
	})
}
