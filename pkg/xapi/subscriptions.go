package xapi

import (
	"context"
	"encoding/json"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"xapi/internal/core"
	"xapi/pkg/telemetry"
)

// Push topics
const (
	TopicBalance     = "balance"
	TopicCandle      = "candle"
	TopicKeepAlive   = "keepAlive"
	TopicNews        = "news"
	TopicProfit      = "profit"
	TopicTickPrices  = "tickPrices"
	TopicTrade       = "trade"
	TopicTradeStatus = "tradeStatus"
)

// symbolTopics are subscribed per symbol
var symbolTopics = map[string]bool{
	TopicCandle:     true,
	TopicTickPrices: true,
}

// subscriptions tracks what the stream asked for so that events still in
// flight after an unsubscribe can be dropped
type subscriptions struct {
	mu     sync.Mutex
	active map[string]map[string]struct{}
	known  map[string]bool

	metrics *telemetry.MetricsHolder
}

func newSubscriptions() *subscriptions {
	return &subscriptions{
		active:  make(map[string]map[string]struct{}),
		known:   make(map[string]bool),
		metrics: telemetry.GetGlobalMetrics(),
	}
}

func (s *subscriptions) add(topic, symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.active[topic]
	if !ok {
		set = make(map[string]struct{})
		s.active[topic] = set
	}
	set[symbol] = struct{}{}
	s.known[topic] = true
	s.metrics.SetActiveSubscriptions(topic, int64(len(set)))
}

func (s *subscriptions) remove(topic, symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.active[topic]
	delete(set, symbol)
	s.metrics.SetActiveSubscriptions(topic, int64(len(set)))
}

func (s *subscriptions) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for topic := range s.active {
		s.metrics.SetActiveSubscriptions(topic, 0)
	}
	s.active = make(map[string]map[string]struct{})
	s.known = make(map[string]bool)
}

// accepts reports whether event belongs to a live subscription. Topics this
// stream never subscribed to pass through.
func (s *subscriptions) accepts(event core.PushEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.known[event.Command] {
		return true
	}
	set := s.active[event.Command]
	if !symbolTopics[event.Command] {
		return len(set) > 0
	}

	var payload struct {
		Symbol string `json:"symbol"`
	}
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return len(set) > 0
	}
	_, ok := set[payload.Symbol]
	return ok
}

func (s *subscriptions) dropped(ctx context.Context, event core.PushEvent) {
	s.metrics.PushEventsDroppedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", event.Command)))
}
