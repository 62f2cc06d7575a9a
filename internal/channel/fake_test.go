package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"xapi/internal/core"
	apperrors "xapi/pkg/errors"
)

// fakeTransport is an in-memory transport that records writes and detects overlap
type fakeTransport struct {
	mu     sync.Mutex
	state  core.LinkState
	sent   [][]byte
	closed chan struct{}

	frames    chan []byte
	respond   func(sent []byte) []byte
	sendDelay time.Duration

	ops      atomic.Int32
	inWrite  atomic.Int32
	overlaps atomic.Int32
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		closed: make(chan struct{}),
		frames: make(chan []byte, 64),
	}
}

// echoCommand replies with the command name as returnData
func echoCommand(sent []byte) []byte {
	var cmd core.Command
	if err := json.Unmarshal(sent, &cmd); err != nil {
		return []byte(`not json`)
	}
	return []byte(fmt.Sprintf(`{"status":true,"returnData":%q}`, cmd.Name()))
}

func (f *fakeTransport) Connect(ctx context.Context, endpoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = core.LinkConnected
	return nil
}

func (f *fakeTransport) Send(ctx context.Context, data []byte) error {
	f.ops.Add(1)
	if f.State() != core.LinkConnected {
		return apperrors.ErrConnectionClosed
	}

	if f.inWrite.Add(1) > 1 {
		f.overlaps.Add(1)
	}
	if f.sendDelay > 0 {
		time.Sleep(f.sendDelay)
	}
	f.inWrite.Add(-1)

	f.mu.Lock()
	f.sent = append(f.sent, append([]byte(nil), data...))
	respond := f.respond
	f.mu.Unlock()

	if respond != nil {
		f.frames <- respond(data)
	}
	return nil
}

func (f *fakeTransport) ReceiveOne(ctx context.Context) ([]byte, error) {
	f.ops.Add(1)
	if f.State() != core.LinkConnected {
		return nil, apperrors.ErrConnectionClosed
	}
	select {
	case data := <-f.frames:
		return data, nil
	case <-f.closed:
		return nil, fmt.Errorf("%w: remote closed", apperrors.ErrConnectionClosed)
	case <-ctx.Done():
		f.Disconnect()
		return nil, fmt.Errorf("%w: %w", apperrors.ErrConnectionClosed, ctx.Err())
	}
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == core.LinkConnected {
		close(f.closed)
	}
	f.state = core.LinkDisconnected
	return nil
}

func (f *fakeTransport) State() core.LinkState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTransport) Sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

// countingThrottle records waits without pacing
type countingThrottle struct {
	waits atomic.Int32
}

func (c *countingThrottle) Wait(ctx context.Context) error {
	c.waits.Add(1)
	return ctx.Err()
}

func (c *countingThrottle) Last() time.Time { return time.Time{} }
