// Package xapi is a client for the xAPI trading platform: a request/response Socket,
// a push-event Stream, and a Client that runs both for one account.
package xapi

import (
	"crypto/tls"
	"net/url"
	"time"

	"xapi/internal/bootstrap"
	"xapi/internal/channel"
	"xapi/internal/core"
	"xapi/internal/throttle"
	"xapi/pkg/websocket"
)

// Config is the client configuration loaded from YAML
type Config = bootstrap.Config

// Logger is the structured logger accepted by every constructor
type Logger = core.ILogger

// LoadConfig reads a YAML configuration file, validates it and runs pre-flight checks
func LoadConfig(path string) (*Config, error) {
	return bootstrap.LoadConfig(path)
}

// Options tunes pacing, timeouts and TLS of a Socket or Stream
type Options struct {
	RequestInterval  time.Duration
	RequestTimeout   time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	CloseTimeout     time.Duration
	TLSConfig        *tls.Config
}

// DefaultOptions returns the platform defaults: 200ms between requests, 5s per reply
func DefaultOptions() Options {
	link := websocket.DefaultOptions("")
	return Options{
		RequestInterval:  throttle.DefaultInterval,
		RequestTimeout:   channel.DefaultRequestTimeout,
		HandshakeTimeout: link.HandshakeTimeout,
		WriteTimeout:     link.WriteTimeout,
		CloseTimeout:     link.CloseTimeout,
	}
}

// OptionsFromConfig maps the timing section of the configuration
func OptionsFromConfig(cfg *Config) Options {
	return Options{
		RequestInterval:  cfg.Timing.RequestInterval(),
		RequestTimeout:   cfg.Timing.RequestTimeout(),
		HandshakeTimeout: cfg.Timing.ConnectTimeout(),
		WriteTimeout:     cfg.Timing.WriteTimeout(),
		CloseTimeout:     cfg.Timing.CloseTimeout(),
	}
}

func (o Options) link(name string) websocket.Options {
	return websocket.Options{
		Name:             name,
		HandshakeTimeout: o.HandshakeTimeout,
		WriteTimeout:     o.WriteTimeout,
		CloseTimeout:     o.CloseTimeout,
		TLSConfig:        o.TLSConfig,
	}
}

// endpoint builds wss://<host>/<accountType><suffix>
func endpoint(host string, accountType core.AccountType, suffix string) string {
	u := url.URL{Scheme: "wss", Host: host, Path: "/" + string(accountType) + suffix}
	return u.String()
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
