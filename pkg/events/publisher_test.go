package events

import (
	"context"
	"testing"
)

func TestNoOpPublisher(t *testing.T) {
	p := &NoOpPublisher{}
	if err := p.PublishRequest(context.Background(), &RequestEvent{Type: TypeRequestStarted}); err != nil {
		t.Errorf("noop publish returned error: %v", err)
	}
}

func TestCallbackPublisher(t *testing.T) {
	var got *RequestEvent
	p := NewCallbackPublisher(func(_ context.Context, event *RequestEvent) error {
		got = event
		return nil
	})

	event := &RequestEvent{
		Type:      TypeRequestDenied,
		SessionID: "sess-1",
		RequestID: "req-1",
		ChainID:   "eip155:1",
		Method:    "eth_sendTransaction",
		Code:      "PERMISSION_DENIED",
	}
	if err := p.PublishRequest(context.Background(), event); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if got == nil {
		t.Fatal("callback was not invoked")
	}
	if got.Type != TypeRequestDenied || got.RequestID != "req-1" {
		t.Errorf("unexpected event: %+v", got)
	}
}
