package xapi

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"xapi/internal/channel"
	"xapi/internal/core"
	apperrors "xapi/pkg/errors"
	"xapi/pkg/logging"
	"xapi/pkg/websocket"
)

// Stream is the push side of the API. Subscribe and unsubscribe calls are
// fire-and-forget; events arrive through Listen.
type Stream struct {
	opts   Options
	logger core.ILogger
	subs   *subscriptions

	mu      sync.Mutex
	channel *channel.EventChannel
	token   string
}

// NewStream creates a stream that is not yet connected
func NewStream(opts Options, logger core.ILogger) *Stream {
	s := &Stream{
		opts:   opts,
		logger: logging.OrGlobal(logger).WithField("component", "stream"),
		subs:   newSubscriptions(),
	}
	s.channel = s.newChannel()
	return s
}

func (s *Stream) newChannel() *channel.EventChannel {
	return channel.NewEventChannel(websocket.NewLink(s.opts.link("stream"), s.logger), s.logger)
}

func (s *Stream) current() (*channel.EventChannel, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel, s.token
}

// Healthy reports whether the event channel is usable
func (s *Stream) Healthy() error {
	ch, _ := s.current()
	return ch.Healthy()
}

// InitSession connects to wss://<host>/<accountType>Stream with the token returned by login
func (s *Stream) InitSession(ctx context.Context, host, accountType, streamSessionID string) error {
	at, err := core.ParseAccountType(accountType)
	if err != nil {
		return err
	}
	if streamSessionID == "" {
		return apperrors.ErrNotLoggedIn
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.channel.Terminated() {
		return fmt.Errorf("%w: stream session already open", apperrors.ErrAlreadyConnected)
	}

	ch := s.newChannel()
	if err := ch.Open(ctx, endpoint(host, at, "Stream")); err != nil {
		return err
	}
	s.channel = ch
	s.token = streamSessionID
	s.subs.reset()
	return nil
}

// CloseSession closes the stream socket and ends any active Listen
func (s *Stream) CloseSession() error {
	ch, _ := s.current()
	return ch.Close()
}

// Listen returns the lazy sequence of push events. Events for topics or symbols
// that were unsubscribed are dropped. The sequence ends with an error wrapping
// ErrConnectionClosed when the connection fails or ctx is cancelled.
func (s *Stream) Listen(ctx context.Context) iter.Seq2[core.PushEvent, error] {
	ch, _ := s.current()
	return func(yield func(core.PushEvent, error) bool) {
		for event, err := range ch.Listen(ctx) {
			if err != nil {
				yield(event, err)
				return
			}
			if !s.subs.accepts(event) {
				s.subs.dropped(ctx, event)
				continue
			}
			if !yield(event, nil) {
				return
			}
		}
	}
}

func (s *Stream) issue(ctx context.Context, name string, fields ...core.Arg) error {
	ch, token := s.current()
	return ch.Issue(ctx, core.NewStreamCommand(name, token, fields...))
}

func (s *Stream) subscribe(ctx context.Context, topic, symbol, name string, fields ...core.Arg) error {
	if err := s.issue(ctx, name, fields...); err != nil {
		return err
	}
	s.subs.add(topic, symbol)
	return nil
}

func (s *Stream) unsubscribe(ctx context.Context, topic, symbol, name string, fields ...core.Arg) error {
	s.subs.remove(topic, symbol)
	return s.issue(ctx, name, fields...)
}

func (s *Stream) SubscribeBalance(ctx context.Context) error {
	return s.subscribe(ctx, TopicBalance, "", "getBalance")
}

func (s *Stream) UnsubscribeBalance(ctx context.Context) error {
	return s.unsubscribe(ctx, TopicBalance, "", "stopBalance")
}

func (s *Stream) SubscribeCandles(ctx context.Context, symbol string) error {
	return s.subscribe(ctx, TopicCandle, symbol, "getCandles", core.String("symbol", symbol))
}

func (s *Stream) UnsubscribeCandles(ctx context.Context, symbol string) error {
	return s.unsubscribe(ctx, TopicCandle, symbol, "stopCandles", core.String("symbol", symbol))
}

func (s *Stream) SubscribeKeepAlive(ctx context.Context) error {
	return s.subscribe(ctx, TopicKeepAlive, "", "getKeepAlive")
}

func (s *Stream) UnsubscribeKeepAlive(ctx context.Context) error {
	return s.unsubscribe(ctx, TopicKeepAlive, "", "stopKeepAlive")
}

func (s *Stream) SubscribeNews(ctx context.Context) error {
	return s.subscribe(ctx, TopicNews, "", "getNews")
}

func (s *Stream) UnsubscribeNews(ctx context.Context) error {
	return s.unsubscribe(ctx, TopicNews, "", "stopNews")
}

func (s *Stream) SubscribeProfits(ctx context.Context) error {
	return s.subscribe(ctx, TopicProfit, "", "getProfits")
}

func (s *Stream) UnsubscribeProfits(ctx context.Context) error {
	return s.unsubscribe(ctx, TopicProfit, "", "stopProfits")
}

// SubscribeTickPrices streams quotes for symbol no more often than minArrivalTime,
// up to maxLevel of market depth
func (s *Stream) SubscribeTickPrices(ctx context.Context, symbol string, minArrivalTime time.Duration, maxLevel int64) error {
	return s.subscribe(ctx, TopicTickPrices, symbol, "getTickPrices",
		core.String("symbol", symbol),
		core.Int("minArrivalTime", minArrivalTime.Milliseconds()),
		core.Int("maxLevel", maxLevel),
	)
}

func (s *Stream) UnsubscribeTickPrices(ctx context.Context, symbol string) error {
	return s.unsubscribe(ctx, TopicTickPrices, symbol, "stopTickPrices", core.String("symbol", symbol))
}

func (s *Stream) SubscribeTrades(ctx context.Context) error {
	return s.subscribe(ctx, TopicTrade, "", "getTrades")
}

func (s *Stream) UnsubscribeTrades(ctx context.Context) error {
	return s.unsubscribe(ctx, TopicTrade, "", "stopTrades")
}

func (s *Stream) SubscribeTradeStatus(ctx context.Context) error {
	return s.subscribe(ctx, TopicTradeStatus, "", "getTradeStatus")
}

func (s *Stream) UnsubscribeTradeStatus(ctx context.Context) error {
	return s.unsubscribe(ctx, TopicTradeStatus, "", "stopTradeStatus")
}

// Ping keeps the stream connection alive
func (s *Stream) Ping(ctx context.Context) error {
	return s.issue(ctx, "ping")
}
