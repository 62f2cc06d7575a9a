package channel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xapi/internal/core"
	apperrors "xapi/pkg/errors"
	"xapi/pkg/logging"
)

func newTestEventChannel(t *testing.T) (*EventChannel, *fakeTransport) {
	t.Helper()
	logger, _ := logging.NewZapLogger("DEBUG")
	ft := newFakeTransport()
	ch := NewEventChannel(ft, logger)
	require.NoError(t, ch.Open(context.Background(), "wss://example/demoStream"))
	return ch, ft
}

func TestEventChannel_ListenYieldsInOrder(t *testing.T) {
	ch, ft := newTestEventChannel(t)
	ft.frames <- []byte(`{"command":"tickPrices","data":{"symbol":"EURUSD","ask":1.1}}`)
	ft.frames <- []byte(`{"command":"tickPrices","data":{"symbol":"EURUSD","ask":1.2}}`)
	ft.frames <- []byte(`{"command":"balance","data":{"balance":1000}}`)

	var topics []string
	var asks []float64
	for event, err := range ch.Listen(context.Background()) {
		require.NoError(t, err)
		topics = append(topics, event.Command)
		if event.Command == "tickPrices" {
			var tick struct {
				Ask float64 `json:"ask"`
			}
			require.NoError(t, event.Decode(&tick))
			asks = append(asks, tick.Ask)
		}
		if len(topics) == 3 {
			break
		}
	}

	assert.Equal(t, []string{"tickPrices", "tickPrices", "balance"}, topics)
	assert.Equal(t, []float64{1.1, 1.2}, asks)
	assert.False(t, ch.Terminated(), "breaking out of the loop must not terminate the channel")

	require.NoError(t, ch.Issue(context.Background(), core.NewStreamCommand("getBalance", "tok")))
}

func TestEventChannel_IssueAfterTerminationHasNoIO(t *testing.T) {
	ch, ft := newTestEventChannel(t)

	go func() {
		time.Sleep(20 * time.Millisecond)
		ft.Disconnect()
	}()

	var lastErr error
	for _, err := range ch.Listen(context.Background()) {
		lastErr = err
	}
	require.Error(t, lastErr)
	assert.ErrorIs(t, lastErr, apperrors.ErrConnectionClosed)
	assert.True(t, ch.Terminated())

	opsBefore := ft.ops.Load()
	err := ch.Issue(context.Background(), core.NewStreamCommand("getTrades", "tok"))
	assert.ErrorIs(t, err, apperrors.ErrConnectionClosed)
	assert.Equal(t, opsBefore, ft.ops.Load())
}

func TestEventChannel_MalformedFrameTerminates(t *testing.T) {
	ch, ft := newTestEventChannel(t)
	ft.frames <- []byte(`{"command":"news","data":`)

	var events int
	var lastErr error
	for _, err := range ch.Listen(context.Background()) {
		if err != nil {
			lastErr = err
			continue
		}
		events++
	}
	assert.Zero(t, events)
	assert.ErrorIs(t, lastErr, apperrors.ErrConnectionClosed)
	assert.True(t, ch.Terminated())
}

func TestEventChannel_CancelTerminates(t *testing.T) {
	ch, _ := newTestEventChannel(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	var lastErr error
	for _, err := range ch.Listen(ctx) {
		lastErr = err
	}
	assert.ErrorIs(t, lastErr, apperrors.ErrConnectionClosed)
	assert.True(t, errors.Is(lastErr, context.Canceled))
	assert.True(t, ch.Terminated())
}

func TestEventChannel_SingleListener(t *testing.T) {
	ch, ft := newTestEventChannel(t)

	ft.frames <- []byte(`{"command":"keepAlive","data":{"timestamp":1}}`)

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		first := true
		for _, err := range ch.Listen(context.Background()) {
			if err == nil && first {
				first = false
				close(started)
			}
		}
	}()
	<-started

	var second error
	for _, err := range ch.Listen(context.Background()) {
		second = err
	}
	assert.ErrorIs(t, second, apperrors.ErrListenerBusy)

	ft.Disconnect()
	<-done
}

func TestEventChannel_ConcurrentIssueDuringListen(t *testing.T) {
	ch, ft := newTestEventChannel(t)
	ft.sendDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listenDone := make(chan int)
	go func() {
		n := 0
		for _, err := range ch.Listen(ctx) {
			if err != nil {
				break
			}
			n++
			if n == 10 {
				break
			}
		}
		listenDone <- n
	}()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, ch.Issue(ctx, core.NewStreamCommand("getKeepAlive", "tok")))
			ft.frames <- []byte(`{"command":"keepAlive","data":{"timestamp":1}}`)
		}()
	}
	wg.Wait()

	select {
	case n := <-listenDone:
		assert.Equal(t, 10, n)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not receive all events")
	}
	assert.Len(t, ft.Sent(), 10)
	assert.False(t, ch.Terminated())
}

func TestEventChannel_CloseEndsListen(t *testing.T) {
	ch, _ := newTestEventChannel(t)

	done := make(chan error, 1)
	go func() {
		var lastErr error
		for _, err := range ch.Listen(context.Background()) {
			lastErr = err
		}
		done <- lastErr
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, ch.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, apperrors.ErrConnectionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not end after Close")
	}
}
