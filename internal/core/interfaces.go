// Package core defines the shared types and capability interfaces of the xAPI client
package core

import (
	"context"
	"time"
)

// LinkState is the lifecycle state of a transport link
type LinkState int32

const (
	LinkDisconnected LinkState = iota
	LinkConnecting
	LinkConnected
)

func (s LinkState) String() string {
	switch s {
	case LinkConnecting:
		return "connecting"
	case LinkConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ITransport is a single framed, full-duplex, encrypted socket
type ITransport interface {
	Connect(ctx context.Context, endpoint string) error
	Send(ctx context.Context, data []byte) error
	ReceiveOne(ctx context.Context) ([]byte, error)
	Disconnect() error
	State() LinkState
}

// IThrottle paces outbound requests
type IThrottle interface {
	Wait(ctx context.Context) error
	Last() time.Time
}

// IHealthMonitor defines the interface for health monitoring
type IHealthMonitor interface {
	Register(component string, check func() error)
	GetStatus() map[string]string
	IsHealthy() bool
}

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
