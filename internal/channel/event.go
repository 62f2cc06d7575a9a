package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"xapi/internal/core"
	apperrors "xapi/pkg/errors"
	"xapi/pkg/logging"
	"xapi/pkg/telemetry"
)

// EventChannel multiplexes caller-issued stream commands with a single listen loop.
// Once the listen loop ends on an error the channel is terminated for good.
type EventChannel struct {
	transport core.ITransport

	terminated atomic.Bool
	listening  atomic.Bool

	logger  core.ILogger
	metrics *telemetry.MetricsHolder
}

// NewEventChannel wraps a transport
func NewEventChannel(transport core.ITransport, logger core.ILogger) *EventChannel {
	return &EventChannel{
		transport: transport,
		logger:    logging.OrGlobal(logger).WithField("component", "event_channel"),
		metrics:   telemetry.GetGlobalMetrics(),
	}
}

// Open connects the underlying transport
func (c *EventChannel) Open(ctx context.Context, endpoint string) error {
	if c.terminated.Load() {
		return fmt.Errorf("%w: event channel terminated", apperrors.ErrConnectionClosed)
	}
	return c.transport.Connect(ctx, endpoint)
}

// Issue sends a subscribe, unsubscribe or ping command. No reply is awaited.
// It is safe to call concurrently with Listen.
func (c *EventChannel) Issue(ctx context.Context, cmd core.StreamCommand) error {
	if c.terminated.Load() {
		return fmt.Errorf("%w: %s: event channel terminated", apperrors.ErrConnectionClosed, cmd.Name())
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode %s: %w", cmd.Name(), err)
	}

	if err := c.transport.Send(ctx, payload); err != nil {
		if errors.Is(err, apperrors.ErrConnectionClosed) {
			c.terminate("issue failed")
		}
		return fmt.Errorf("%s: %w", cmd.Name(), err)
	}

	c.metrics.StreamCommandsTotal.Add(context.WithoutCancel(ctx), 1,
		metric.WithAttributes(attribute.String("command", cmd.Name())))
	c.logger.Debug("Stream command issued", "command", cmd.Name())
	return nil
}

// Listen returns the lazy sequence of push events. Each iteration pulls one frame.
// Receive failures, malformed frames and ctx cancellation end the sequence with an
// error wrapping ErrConnectionClosed and terminate the channel. Stopping the loop
// early leaves the channel usable.
func (c *EventChannel) Listen(ctx context.Context) iter.Seq2[core.PushEvent, error] {
	return func(yield func(core.PushEvent, error) bool) {
		if !c.listening.CompareAndSwap(false, true) {
			yield(core.PushEvent{}, apperrors.ErrListenerBusy)
			return
		}
		defer c.listening.Store(false)

		if c.terminated.Load() {
			yield(core.PushEvent{}, fmt.Errorf("%w: event channel terminated", apperrors.ErrConnectionClosed))
			return
		}

		for {
			data, err := c.transport.ReceiveOne(ctx)
			if err != nil {
				yield(core.PushEvent{}, c.end(err))
				return
			}

			var event core.PushEvent
			if err := json.Unmarshal(data, &event); err != nil {
				yield(core.PushEvent{}, c.end(fmt.Errorf("decode push event: %w", err)))
				return
			}

			c.metrics.PushEventsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", event.Command)))
			if !yield(event, nil) {
				return
			}
		}
	}
}

// Close terminates the channel and releases the socket
func (c *EventChannel) Close() error {
	c.terminated.Store(true)
	return c.transport.Disconnect()
}

// Terminated reports whether the channel can still issue commands
func (c *EventChannel) Terminated() bool {
	return c.terminated.Load() || c.transport.State() != core.LinkConnected
}

// Healthy is a health check for the event channel
func (c *EventChannel) Healthy() error {
	if c.Terminated() {
		return apperrors.ErrConnectionClosed
	}
	return nil
}

func (c *EventChannel) end(err error) error {
	c.terminate("listen ended")
	c.logger.Warn("Listen loop ended", "error", err)
	if errors.Is(err, apperrors.ErrConnectionClosed) {
		return err
	}
	return fmt.Errorf("%w: %w", apperrors.ErrConnectionClosed, err)
}

func (c *EventChannel) terminate(reason string) {
	if !c.terminated.CompareAndSwap(false, true) {
		return
	}
	c.logger.Info("Event channel terminated", "reason", reason)
	if err := c.transport.Disconnect(); err != nil {
		c.logger.Debug("Disconnect after termination", "error", err)
	}
}
