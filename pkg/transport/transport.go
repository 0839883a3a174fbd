// Package transport defines the bidirectional channel contract between the
// router and wallet nodes, plus the in-process and NATS implementations.
package transport

// MessageHandler receives one inbound message frame.
type MessageHandler func(msg []byte)

// DisconnectHandler is invoked once when the transport stops delivering,
// with the error that caused it (nil on orderly disconnect).
type DisconnectHandler func(err error)

// Transport is a bidirectional message channel to a single counterpart.
// Connect and Disconnect are idempotent. Send suspends until the message is
// handed off for delivery or the transport has failed.
type Transport interface {
	Connect() error
	Disconnect() error
	Send(msg []byte) error
	OnMessage(h MessageHandler)
	OnDisconnect(h DisconnectHandler)
}
