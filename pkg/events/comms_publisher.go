package events

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/wallet-router/pkg/natsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// GlobalEventSubject overrides the global lifecycle event subject.
	GlobalEventSubject string
}

// CommsPublisher publishes request lifecycle events to COMMS subjects.
type CommsPublisher struct {
	nc                 *comms.Conn
	globalEventSubject string
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	globalSubject := natsutil.SubjectEvents
	if opts != nil && opts.GlobalEventSubject != "" {
		globalSubject = opts.GlobalEventSubject
	}
	return &CommsPublisher{nc: nc, globalEventSubject: globalSubject}
}

// PublishRequest publishes a RequestEvent to both the granular and global
// event subjects. Publishing is best-effort; dispatch never depends on it.
func (p *CommsPublisher) PublishRequest(_ context.Context, event *RequestEvent) error {
	data, err := natsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	granularSubject := natsutil.BuildEventSubject(event.ChainID, event.Method)
	if err := p.nc.Publish(granularSubject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, granularSubject, err))
		return err
	}

	if err := p.nc.Publish(p.globalEventSubject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, p.globalEventSubject, err))
		return err
	}

	slog.Debug(fmt.Sprintf("%s - Published %s for request %s", commsPublisherLogPrefix, event.Type, event.RequestID))
	return nil
}
