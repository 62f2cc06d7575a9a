package xapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"golang.org/x/sync/errgroup"

	"xapi/internal/bootstrap"
	"xapi/internal/core"
	"xapi/internal/infrastructure/health"
	apperrors "xapi/pkg/errors"
	"xapi/pkg/logging"
	"xapi/pkg/telemetry"
)

// EventHandler receives each push event delivered by Client.Run. Returning an
// error stops Run.
type EventHandler func(ctx context.Context, event core.PushEvent) error

// Client owns a Socket and a Stream for one account and keeps them alive
type Client struct {
	cfg    *Config
	logger core.ILogger
	socket *Socket
	stream *Stream
	health *health.HealthManager

	shutdownTelemetry func(context.Context) error
}

// NewClient builds a client from configuration; nothing is connected yet
func NewClient(cfg *Config, opts Options, logger core.ILogger) *Client {
	logger = logging.OrGlobal(logger).WithField("component", "client")
	c := &Client{
		cfg:               cfg,
		logger:            logger,
		socket:            NewSocket(opts, logger),
		stream:            NewStream(opts, logger),
		health:            health.NewHealthManager(logger),
		shutdownTelemetry: func(context.Context) error { return nil },
	}
	c.socket.SetSafeMode(cfg.XAPI.IsSafeMode())
	c.health.Register("socket", c.socket.Healthy)
	c.health.Register("stream", c.stream.Healthy)
	return c
}

// NewClientFromConfig initializes logging and telemetry from cfg and builds a client
func NewClientFromConfig(cfg *Config) (*Client, error) {
	logger, err := bootstrap.InitLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	shutdown, err := bootstrap.InitTelemetry(cfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	c := NewClient(cfg, OptionsFromConfig(cfg), logger)
	c.shutdownTelemetry = shutdown
	return c, nil
}

func (c *Client) Socket() *Socket { return c.socket }

func (c *Client) Stream() *Stream { return c.stream }

// Health exposes the aggregated channel health
func (c *Client) Health() core.IHealthMonitor { return c.health }

// Connect opens the socket, logs in and opens the stream with the issued token.
// Handshake failures are retried timing.connect_retries times; any other error
// is returned immediately.
func (c *Client) Connect(ctx context.Context) error {
	return c.connectPolicy().WithContext(ctx).Run(func() error {
		return c.connect(ctx)
	})
}

func (c *Client) connectPolicy() failsafe.Executor[any] {
	timing := c.cfg.Timing
	builder := retrypolicy.NewBuilder[any]().
		HandleIf(func(_ any, err error) bool {
			return errors.Is(err, apperrors.ErrConnectionFailure)
		}).
		WithMaxRetries(timing.ConnectRetries).
		ReturnLastFailure().
		OnRetry(func(e failsafe.ExecutionEvent[any]) {
			c.logger.Warn("Connect failed, retrying", "attempt", e.Attempts(), "error", e.LastError())
		})
	if backoff := timing.ConnectBackoff(); backoff > 0 {
		builder = builder.WithBackoff(backoff, 8*backoff)
	}
	return failsafe.With[any](builder.Build())
}

func (c *Client) connect(ctx context.Context) error {
	xc := c.cfg.XAPI
	if err := c.socket.InitSession(ctx, xc.Host, xc.AccountType); err != nil {
		return fmt.Errorf("socket: %w", err)
	}

	token, err := c.socket.Login(ctx, xc.AccountID, xc.Password.Reveal())
	if err != nil {
		c.socket.CloseSession()
		return fmt.Errorf("login: %w", err)
	}

	if err := c.stream.InitSession(ctx, xc.Host, xc.AccountType, token); err != nil {
		c.socket.CloseSession()
		return fmt.Errorf("stream: %w", err)
	}

	c.logger.Info("Client connected", "account_id", xc.AccountID, "safe_mode", c.socket.SafeMode())
	return nil
}

// Run dispatches push events to handler until ctx is cancelled or a channel
// fails. When configured it also pings both channels and serves metrics.
func (c *Client) Run(ctx context.Context, handler EventHandler) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for event, err := range c.stream.Listen(gctx) {
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("listen: %w", err)
			}
			if err := handler(gctx, event); err != nil {
				return fmt.Errorf("handler %s: %w", event.Command, err)
			}
		}
		return nil
	})

	if interval := c.cfg.Timing.PingInterval(); interval > 0 {
		g.Go(func() error {
			return c.keepAlive(gctx, interval)
		})
	}

	if port := c.cfg.Telemetry.MetricsPort; port > 0 {
		srv := telemetry.NewServer(port, c.health, c.logger)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	return g.Wait()
}

func (c *Client) keepAlive(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := c.socket.Ping(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("socket ping: %w", err)
			}
			if err := c.stream.Ping(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("stream ping: %w", err)
			}
			c.logger.Debug("Keep-alive ping sent")
		}
	}
}

// Close logs out when possible, closes both sessions and flushes telemetry
func (c *Client) Close(ctx context.Context) error {
	var errs []error
	if c.socket.Healthy() == nil {
		if _, err := c.socket.Logout(ctx); err != nil {
			c.logger.Warn("Logout failed", "error", err)
		}
	}
	if err := c.stream.CloseSession(); err != nil {
		errs = append(errs, fmt.Errorf("close stream: %w", err))
	}
	if err := c.socket.CloseSession(); err != nil {
		errs = append(errs, fmt.Errorf("close socket: %w", err))
	}
	if err := c.shutdownTelemetry(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
	}
	return errors.Join(errs...)
}
