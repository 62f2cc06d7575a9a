// Package websocket provides the framed, encrypted transport link used by the xAPI channels
package websocket

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"xapi/internal/core"
	apperrors "xapi/pkg/errors"
	"xapi/pkg/logging"
	"xapi/pkg/telemetry"
)

// Options configures a Link
type Options struct {
	// Name labels the link in logs and metrics, e.g. "command" or "stream"
	Name             string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// ReadTimeout bounds ReceiveOne when ctx carries no deadline; zero waits for ctx only
	ReadTimeout  time.Duration
	CloseTimeout time.Duration
	TLSConfig    *tls.Config
}

// DefaultOptions returns the options used when none are configured
func DefaultOptions(name string) Options {
	return Options{
		Name:             name,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		CloseTimeout:     time.Second,
	}
}

// Link is one WebSocket connection. It never reconnects: any failed read or write
// moves it to Disconnected and every later operation fails with ErrConnectionClosed.
type Link struct {
	id     string
	opts   Options
	dialer *websocket.Dialer

	state atomic.Int32

	mu   sync.Mutex // guards conn
	conn *websocket.Conn

	writeMu sync.Mutex
	readMu  sync.Mutex

	logger  core.ILogger
	tracer  trace.Tracer
	metrics *telemetry.MetricsHolder
	attrs   metric.MeasurementOption
}

// NewLink creates a disconnected link
func NewLink(opts Options, logger core.ILogger) *Link {
	if opts.Name == "" {
		opts.Name = "link"
	}
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = time.Second
	}

	id := uuid.NewString()
	l := &Link{
		id:   id,
		opts: opts,
		dialer: &websocket.Dialer{
			HandshakeTimeout: opts.HandshakeTimeout,
			TLSClientConfig:  opts.TLSConfig,
		},
		logger: logging.OrGlobal(logger).WithFields(map[string]interface{}{
			"component": "ws_link",
			"link":      opts.Name,
			"link_id":   id,
		}),
		tracer:  telemetry.GetTracer("ws-link"),
		metrics: telemetry.GetGlobalMetrics(),
		attrs:   metric.WithAttributes(attribute.String("link", opts.Name)),
	}
	l.setState(core.LinkDisconnected)
	return l
}

// ID returns the unique identifier of this link
func (l *Link) ID() string { return l.id }

// State returns the current lifecycle state
func (l *Link) State() core.LinkState { return core.LinkState(l.state.Load()) }

func (l *Link) setState(s core.LinkState) {
	l.state.Store(int32(s))
	l.metrics.SetLinkState(l.opts.Name, int64(s))
}

func (l *Link) casState(from, to core.LinkState) bool {
	if !l.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	l.metrics.SetLinkState(l.opts.Name, int64(to))
	return true
}

// Connect performs the TLS and WebSocket handshakes
func (l *Link) Connect(ctx context.Context, endpoint string) error {
	if !l.casState(core.LinkDisconnected, core.LinkConnecting) {
		return fmt.Errorf("%w: link %s is %s", apperrors.ErrAlreadyConnected, l.opts.Name, l.State())
	}

	ctx, span := l.tracer.Start(ctx, "WS Connect",
		trace.WithAttributes(
			attribute.String("ws.url", endpoint),
			attribute.String("ws.link_id", l.id),
		),
	)
	defer span.End()

	conn, _, err := l.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		l.setState(core.LinkDisconnected)
		l.metrics.LinkConnectsTotal.Add(ctx, 1, l.attrs, metric.WithAttributes(attribute.String("outcome", "failure")))
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		l.logger.Error("WebSocket connect failed", "url", endpoint, "error", err)
		return fmt.Errorf("%w: %s: %w", apperrors.ErrConnectionFailure, endpoint, err)
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()

	// Disconnect may have run while dialing
	if !l.casState(core.LinkConnecting, core.LinkConnected) {
		l.takeConn()
		conn.Close()
		return fmt.Errorf("%w: link closed during connect", apperrors.ErrConnectionClosed)
	}

	l.metrics.LinkConnectsTotal.Add(ctx, 1, l.attrs, metric.WithAttributes(attribute.String("outcome", "success")))
	l.logger.Info("WebSocket connected", "url", endpoint)
	return nil
}

// Send writes one text frame. Concurrent callers are serialized.
func (l *Link) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	conn := l.current()
	if conn == nil {
		return fmt.Errorf("%w: link %s not connected", apperrors.ErrConnectionClosed, l.opts.Name)
	}

	if err := conn.SetWriteDeadline(l.deadline(ctx, l.opts.WriteTimeout)); err != nil {
		return l.fail(ctx, "write", err)
	}

	stop := context.AfterFunc(ctx, func() { l.teardown("write cancelled") })
	defer stop()

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return l.fail(ctx, "write", err)
	}

	l.metrics.LinkFramesTotal.Add(ctx, 1, l.attrs, metric.WithAttributes(attribute.String("direction", "sent")))
	return nil
}

// ReceiveOne blocks for the next complete frame. Only one reader may wait at a time.
func (l *Link) ReceiveOne(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.readMu.Lock()
	defer l.readMu.Unlock()

	conn := l.current()
	if conn == nil {
		return nil, fmt.Errorf("%w: link %s not connected", apperrors.ErrConnectionClosed, l.opts.Name)
	}

	if err := conn.SetReadDeadline(l.deadline(ctx, l.opts.ReadTimeout)); err != nil {
		return nil, l.fail(ctx, "read", err)
	}

	stop := context.AfterFunc(ctx, func() { l.teardown("read cancelled") })
	defer stop()

	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, l.fail(ctx, "read", err)
	}

	l.metrics.LinkFramesTotal.Add(ctx, 1, l.attrs, metric.WithAttributes(attribute.String("direction", "received")))
	return data, nil
}

// Disconnect sends a close frame on a best-effort basis and releases the socket.
// It is idempotent.
func (l *Link) Disconnect() error {
	l.setState(core.LinkDisconnected)
	conn := l.takeConn()
	if conn == nil {
		return nil
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(l.opts.CloseTimeout)); err != nil {
		l.logger.Debug("Close frame not delivered", "error", err)
	}

	l.logger.Info("WebSocket disconnected")
	if err := conn.Close(); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("close %s link: %w", l.opts.Name, err)
	}
	return nil
}

func (l *Link) current() *websocket.Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.State() != core.LinkConnected {
		return nil
	}
	return l.conn
}

func (l *Link) takeConn() *websocket.Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	conn := l.conn
	l.conn = nil
	return conn
}

// teardown drops the socket without a close handshake
func (l *Link) teardown(reason string) {
	l.setState(core.LinkDisconnected)
	if conn := l.takeConn(); conn != nil {
		l.logger.Warn("WebSocket link torn down", "reason", reason)
		conn.Close()
	}
}

func (l *Link) fail(ctx context.Context, op string, err error) error {
	l.teardown(op + " failed")
	l.metrics.LinkFailuresTotal.Add(context.WithoutCancel(ctx), 1, l.attrs, metric.WithAttributes(attribute.String("op", op)))

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %s: %w", apperrors.ErrConnectionClosed, op, ctxErr)
	}
	return fmt.Errorf("%w: %s: %w", apperrors.ErrConnectionClosed, op, err)
}

// deadline picks the earlier of the ctx deadline and now+timeout; zero means none
func (l *Link) deadline(ctx context.Context, timeout time.Duration) time.Time {
	var d time.Time
	if timeout > 0 {
		d = time.Now().Add(timeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (d.IsZero() || ctxDeadline.Before(d)) {
		d = ctxDeadline
	}
	return d
}
