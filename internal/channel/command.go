// Package channel implements the request/response and push-event channels over a transport link
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"xapi/internal/core"
	"xapi/internal/safety"
	apperrors "xapi/pkg/errors"
	"xapi/pkg/logging"
	"xapi/pkg/telemetry"
)

// DefaultRequestTimeout bounds the wait for a single reply
const DefaultRequestTimeout = 5 * time.Second

// CommandChannel carries one command at a time and matches replies in send order.
// A transport or decode failure fails the channel permanently.
type CommandChannel struct {
	transport core.ITransport
	throttle  core.IThrottle
	guard     *safety.TradeGuard
	session   *core.Session
	timeout   time.Duration

	mu     sync.Mutex // held for the whole send/receive of one call
	seq    atomic.Uint64
	failed atomic.Bool

	logger  core.ILogger
	tracer  trace.Tracer
	metrics *telemetry.MetricsHolder
}

// NewCommandChannel binds a transport, throttle and guard to a session
func NewCommandChannel(
	transport core.ITransport,
	throttle core.IThrottle,
	guard *safety.TradeGuard,
	session *core.Session,
	timeout time.Duration,
	logger core.ILogger,
) *CommandChannel {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &CommandChannel{
		transport: transport,
		throttle:  throttle,
		guard:     guard,
		session:   session,
		timeout:   timeout,
		logger:    logging.OrGlobal(logger).WithField("component", "command_channel"),
		tracer:    telemetry.GetTracer("command-channel"),
		metrics:   telemetry.GetGlobalMetrics(),
	}
}

// Open connects the underlying transport
func (c *CommandChannel) Open(ctx context.Context, endpoint string) error {
	if c.failed.Load() {
		return fmt.Errorf("%w: command channel already failed", apperrors.ErrConnectionClosed)
	}
	return c.transport.Connect(ctx, endpoint)
}

// Call sends cmd and returns its reply. Trade transactions are checked against
// safe mode before any I/O or throttle wait.
func (c *CommandChannel) Call(ctx context.Context, cmd core.Command) (core.Reply, error) {
	if reply, blocked := c.guard.Check(cmd, c.session.SafeMode()); blocked {
		c.count(ctx, cmd, "rejected")
		return reply, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failed.Load() || c.transport.State() != core.LinkConnected {
		c.count(ctx, cmd, "closed")
		return core.Reply{}, fmt.Errorf("%w: %s: command channel not connected", apperrors.ErrConnectionClosed, cmd.Name())
	}

	seq := c.seq.Add(1)
	ctx, span := c.tracer.Start(ctx, "xapi "+cmd.Name(),
		trace.WithAttributes(
			attribute.String("xapi.command", cmd.Name()),
			attribute.Int64("xapi.seq", int64(seq)),
		),
	)
	defer span.End()

	if err := c.throttle.Wait(ctx); err != nil {
		span.RecordError(err)
		c.count(ctx, cmd, "cancelled")
		return core.Reply{}, fmt.Errorf("%s: throttle wait: %w", cmd.Name(), err)
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		span.RecordError(err)
		return core.Reply{}, fmt.Errorf("encode %s: %w", cmd.Name(), err)
	}

	start := time.Now()
	if err := c.transport.Send(ctx, payload); err != nil {
		if !errors.Is(err, apperrors.ErrConnectionClosed) {
			// nothing reached the wire
			c.count(ctx, cmd, "cancelled")
			return core.Reply{}, fmt.Errorf("%s: %w", cmd.Name(), err)
		}
		return core.Reply{}, c.fail(ctx, span, cmd, seq, err)
	}

	recvCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := c.transport.ReceiveOne(recvCtx)
	if err != nil {
		return core.Reply{}, c.fail(ctx, span, cmd, seq, err)
	}

	var reply core.Reply
	if err := json.Unmarshal(data, &reply); err != nil {
		return core.Reply{}, c.fail(ctx, span, cmd, seq, fmt.Errorf("decode reply: %w", err))
	}

	latency := time.Since(start)
	c.metrics.CommandLatency.Record(ctx, float64(latency.Microseconds())/1000,
		metric.WithAttributes(attribute.String("command", cmd.Name())))
	span.SetAttributes(attribute.Bool("xapi.status", reply.Status))

	if reply.Status {
		c.count(ctx, cmd, "ok")
	} else {
		c.count(ctx, cmd, "error")
		c.logger.Debug("Command returned error status", "command", cmd.Name(), "seq", seq,
			"error_code", reply.ErrorCode, "error_descr", reply.ErrorDescr)
	}
	return reply, nil
}

// Close tears down the transport; an in-flight Call returns promptly with ErrConnectionClosed
func (c *CommandChannel) Close() error {
	c.failed.Store(true)
	return c.transport.Disconnect()
}

// Failed reports whether the channel can no longer carry commands
func (c *CommandChannel) Failed() bool {
	return c.failed.Load() || c.transport.State() != core.LinkConnected
}

// Healthy is a health check for the command channel
func (c *CommandChannel) Healthy() error {
	if c.Failed() {
		return apperrors.ErrConnectionClosed
	}
	return nil
}

func (c *CommandChannel) fail(ctx context.Context, span trace.Span, cmd core.Command, seq uint64, err error) error {
	c.failed.Store(true)
	if dErr := c.transport.Disconnect(); dErr != nil {
		c.logger.Debug("Disconnect after failure", "error", dErr)
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "channel failed")
	c.count(ctx, cmd, "failed")
	c.logger.Error("Command channel failed", "command", cmd.Name(), "seq", seq, "error", err)

	if errors.Is(err, apperrors.ErrConnectionClosed) {
		return fmt.Errorf("%s: %w", cmd.Name(), err)
	}
	return fmt.Errorf("%w: %s: %w", apperrors.ErrConnectionClosed, cmd.Name(), err)
}

func (c *CommandChannel) count(ctx context.Context, cmd core.Command, outcome string) {
	c.metrics.CommandsTotal.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(
		attribute.String("command", cmd.Name()),
		attribute.String("outcome", outcome),
	))
}
