package transport

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/morezero/wallet-router/pkg/wire"
)

const localLogPrefix = "transport:local"

// localInboxSize bounds how many frames may sit undelivered per direction
// before Send suspends.
const localInboxSize = 64

// NewLocalPair creates two connected in-process transports. Messages sent on
// one are delivered as received messages on the other, preserving send order
// per direction. Disconnecting either side tears down the pair.
func NewLocalPair() (Transport, Transport) {
	closed := make(chan struct{})
	closeOnce := &sync.Once{}
	a := &localEndpoint{name: "local-a", inbox: make(chan []byte, localInboxSize), closed: closed, closeOnce: closeOnce}
	b := &localEndpoint{name: "local-b", inbox: make(chan []byte, localInboxSize), closed: closed, closeOnce: closeOnce}
	a.peer = b
	b.peer = a
	return a, b
}

type localEndpoint struct {
	name  string
	peer  *localEndpoint
	inbox chan []byte

	// closed and closeOnce are shared by both ends of the pair.
	closed    chan struct{}
	closeOnce *sync.Once

	mu       sync.Mutex
	onMsg    MessageHandler
	onDisc   DisconnectHandler
	pumpOnce sync.Once
	discOnce sync.Once
}

// Connect starts delivering inbound messages to the registered handler.
// Idempotent.
func (e *localEndpoint) Connect() error {
	e.pumpOnce.Do(func() {
		go e.pump()
	})
	return nil
}

// Disconnect tears down the pair and notifies both disconnect handlers.
// Idempotent.
func (e *localEndpoint) Disconnect() error {
	e.closeOnce.Do(func() {
		close(e.closed)
	})
	e.fireDisconnect(nil)
	e.peer.fireDisconnect(nil)
	return nil
}

// Send delivers msg to the peer endpoint, suspending until the frame is
// queued for delivery or the pair is torn down.
func (e *localEndpoint) Send(msg []byte) error {
	select {
	case <-e.closed:
		return wire.NewRouterError(wire.CodeTransportDisconnected, "local transport pair is closed")
	default:
	}
	select {
	case e.peer.inbox <- msg:
		return nil
	case <-e.closed:
		return wire.NewRouterError(wire.CodeTransportDisconnected, "local transport pair is closed")
	}
}

func (e *localEndpoint) OnMessage(h MessageHandler) {
	e.mu.Lock()
	e.onMsg = h
	e.mu.Unlock()
}

func (e *localEndpoint) OnDisconnect(h DisconnectHandler) {
	e.mu.Lock()
	e.onDisc = h
	e.mu.Unlock()
}

func (e *localEndpoint) pump() {
	for {
		select {
		case <-e.closed:
			return
		case msg := <-e.inbox:
			e.mu.Lock()
			h := e.onMsg
			e.mu.Unlock()
			if h == nil {
				slog.Debug(fmt.Sprintf("%s - %s dropped frame: no message handler registered", localLogPrefix, e.name))
				continue
			}
			h(msg)
		}
	}
}

func (e *localEndpoint) fireDisconnect(err error) {
	e.discOnce.Do(func() {
		e.mu.Lock()
		h := e.onDisc
		e.mu.Unlock()
		if h != nil {
			h(err)
		}
	})
}
