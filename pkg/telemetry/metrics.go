package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricLinkConnectsTotal       = "xapi_link_connects_total"
	MetricLinkFramesTotal         = "xapi_link_frames_total"
	MetricLinkFailuresTotal       = "xapi_link_failures_total"
	MetricLinkState               = "xapi_link_state"
	MetricCommandsTotal           = "xapi_commands_total"
	MetricCommandLatency          = "xapi_command_latency_ms"
	MetricThrottleWait            = "xapi_throttle_wait_ms"
	MetricSafeModeRejectionsTotal = "xapi_safe_mode_rejections_total"
	MetricStreamCommandsTotal     = "xapi_stream_commands_total"
	MetricPushEventsTotal         = "xapi_push_events_total"
	MetricPushEventsDroppedTotal  = "xapi_push_events_dropped_total"
	MetricActiveSubscriptions     = "xapi_active_subscriptions"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	LinkConnectsTotal       metric.Int64Counter
	LinkFramesTotal         metric.Int64Counter
	LinkFailuresTotal       metric.Int64Counter
	LinkState               metric.Int64ObservableGauge
	CommandsTotal           metric.Int64Counter
	CommandLatency          metric.Float64Histogram
	ThrottleWait            metric.Float64Histogram
	SafeModeRejectionsTotal metric.Int64Counter
	StreamCommandsTotal     metric.Int64Counter
	PushEventsTotal         metric.Int64Counter
	PushEventsDroppedTotal  metric.Int64Counter
	ActiveSubscriptions     metric.Int64ObservableGauge

	// State for observable gauges
	mu               sync.RWMutex
	linkStateMap     map[string]int64
	subscriptionsMap map[string]int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder. Instruments are created from the
// global meter provider, which forwards to whatever provider Setup installs later.
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			linkStateMap:     make(map[string]int64),
			subscriptionsMap: make(map[string]int64),
		}
		if err := globalMetrics.InitMetrics(GetMeter(ScopeName)); err != nil {
			otel.Handle(err)
		}
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.LinkConnectsTotal, err = meter.Int64Counter(MetricLinkConnectsTotal, metric.WithDescription("WebSocket connect attempts by outcome"))
	if err != nil {
		return err
	}

	m.LinkFramesTotal, err = meter.Int64Counter(MetricLinkFramesTotal, metric.WithDescription("Frames sent and received"))
	if err != nil {
		return err
	}

	m.LinkFailuresTotal, err = meter.Int64Counter(MetricLinkFailuresTotal, metric.WithDescription("Links torn down by a read or write failure"))
	if err != nil {
		return err
	}

	m.CommandsTotal, err = meter.Int64Counter(MetricCommandsTotal, metric.WithDescription("Commands issued on the command channel by outcome"))
	if err != nil {
		return err
	}

	m.CommandLatency, err = meter.Float64Histogram(MetricCommandLatency, metric.WithDescription("Round trip time of a command excluding throttle wait"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	m.ThrottleWait, err = meter.Float64Histogram(MetricThrottleWait, metric.WithDescription("Time spent waiting for the request throttle"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	m.SafeModeRejectionsTotal, err = meter.Int64Counter(MetricSafeModeRejectionsTotal, metric.WithDescription("Trade transactions rejected locally by safe mode"))
	if err != nil {
		return err
	}

	m.StreamCommandsTotal, err = meter.Int64Counter(MetricStreamCommandsTotal, metric.WithDescription("Subscribe and unsubscribe commands issued"))
	if err != nil {
		return err
	}

	m.PushEventsTotal, err = meter.Int64Counter(MetricPushEventsTotal, metric.WithDescription("Push events delivered by topic"))
	if err != nil {
		return err
	}

	m.PushEventsDroppedTotal, err = meter.Int64Counter(MetricPushEventsDroppedTotal, metric.WithDescription("Push events dropped after unsubscribe"))
	if err != nil {
		return err
	}

	// Observables
	m.LinkState, err = meter.Int64ObservableGauge(MetricLinkState, metric.WithDescription("Link state (0=disconnected, 1=connecting, 2=connected)"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for link, val := range m.linkStateMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("link", link)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.ActiveSubscriptions, err = meter.Int64ObservableGauge(MetricActiveSubscriptions, metric.WithDescription("Active stream subscriptions by topic"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for topic, val := range m.subscriptionsMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("topic", topic)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// Helpers to update observable state

func (m *MetricsHolder) SetLinkState(link string, state int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.linkStateMap[link] = state
}

func (m *MetricsHolder) SetActiveSubscriptions(topic string, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptionsMap[topic] = count
}

func (m *MetricsHolder) GetLinkStates() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]int64, len(m.linkStateMap))
	for k, v := range m.linkStateMap {
		res[k] = v
	}
	return res
}

func (m *MetricsHolder) GetActiveSubscriptions() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]int64, len(m.subscriptionsMap))
	for k, v := range m.subscriptionsMap {
		res[k] = v
	}
	return res
}
