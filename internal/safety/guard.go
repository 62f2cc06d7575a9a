// Package safety provides the local trading guard applied before any trade command is sent
package safety

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"xapi/internal/core"
	"xapi/pkg/logging"
	"xapi/pkg/telemetry"
)

// CommandTradeTransaction is the only command the guard intercepts
const CommandTradeTransaction = "tradeTransaction"

// Canned rejection returned while safe mode is on
const (
	RejectionCode  = "N/A"
	RejectionDescr = "Trading is disabled when safe=True"
)

// Rejection returns the synthetic reply produced for a blocked trade
func Rejection() core.Reply {
	return core.Reply{
		Status:     false,
		ErrorCode:  RejectionCode,
		ErrorDescr: RejectionDescr,
	}
}

// TradeGuard blocks trade transactions locally while safe mode is enabled
type TradeGuard struct {
	logger     core.ILogger
	rejections metric.Int64Counter
}

// NewTradeGuard creates a new trade guard
func NewTradeGuard(logger core.ILogger) *TradeGuard {
	return &TradeGuard{
		logger:     logging.OrGlobal(logger).WithField("component", "trade_guard"),
		rejections: telemetry.GetGlobalMetrics().SafeModeRejectionsTotal,
	}
}

// Check returns the rejection reply and true when cmd must not reach the network.
// It performs no I/O.
func (g *TradeGuard) Check(cmd core.Command, safeMode bool) (core.Reply, bool) {
	if !safeMode || cmd.Name() != CommandTradeTransaction {
		return core.Reply{}, false
	}

	symbol := ""
	if info, ok := cmd.Arg("tradeTransInfo"); ok {
		if obj, ok := info.(core.Object); ok {
			if v, ok := obj.Get("symbol"); ok {
				symbol, _ = v.(string)
			}
		}
	}

	g.logger.Warn("Trade transaction blocked by safe mode", "symbol", symbol)
	g.rejections.Add(context.Background(), 1, metric.WithAttributes(attribute.String("symbol", symbol)))
	return Rejection(), true
}
