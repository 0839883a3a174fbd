package events

import "context"

// EventPublisher is the interface for publishing request lifecycle events.
type EventPublisher interface {
	PublishRequest(ctx context.Context, event *RequestEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing (for in-process usage without events).
type NoOpPublisher struct{}

// PublishRequest is a no-op.
func (p *NoOpPublisher) PublishRequest(_ context.Context, _ *RequestEvent) error {
	return nil
}

// CallbackPublisher is an EventPublisher that calls a callback function (for testing).
type CallbackPublisher struct {
	callback func(ctx context.Context, event *RequestEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *RequestEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishRequest calls the callback.
func (p *CallbackPublisher) PublishRequest(ctx context.Context, event *RequestEvent) error {
	return p.callback(ctx, event)
}
