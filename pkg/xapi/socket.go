package xapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"xapi/internal/channel"
	"xapi/internal/core"
	"xapi/internal/safety"
	"xapi/internal/throttle"
	apperrors "xapi/pkg/errors"
	"xapi/pkg/logging"
	"xapi/pkg/websocket"
)

// Socket is the request/response side of the API. Every operation returns the
// parsed reply; transport failures return a zero Reply and an error wrapping
// ErrConnectionClosed. Safe mode is on until SetSafeMode(false).
type Socket struct {
	opts     Options
	logger   core.ILogger
	session  *core.Session
	guard    *safety.TradeGuard
	throttle *throttle.Throttle

	mu      sync.Mutex
	channel *channel.CommandChannel
}

// NewSocket creates a socket that is not yet connected
func NewSocket(opts Options, logger core.ILogger) *Socket {
	logger = logging.OrGlobal(logger).WithField("component", "socket")
	s := &Socket{
		opts:     opts,
		logger:   logger,
		session:  core.NewSession(""),
		guard:    safety.NewTradeGuard(logger),
		throttle: throttle.New(opts.RequestInterval),
	}
	s.channel = s.newChannel()
	return s
}

func (s *Socket) newChannel() *channel.CommandChannel {
	link := websocket.NewLink(s.opts.link("command"), s.logger)
	return channel.NewCommandChannel(link, s.throttle, s.guard, s.session, s.opts.RequestTimeout, s.logger)
}

// SafeMode reports whether trade transactions are blocked locally
func (s *Socket) SafeMode() bool { return s.session.SafeMode() }

// SetSafeMode enables or disables the local trade block
func (s *Socket) SetSafeMode(enabled bool) {
	s.session.SetSafeMode(enabled)
	s.logger.Info("Safe mode changed", "safe_mode", enabled)
}

// StreamSessionID returns the token captured by the last successful login
func (s *Socket) StreamSessionID() string { return s.session.StreamSessionID() }

// Healthy reports whether the command channel is usable
func (s *Socket) Healthy() error { return s.current().Healthy() }

func (s *Socket) current() *channel.CommandChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

// InitSession validates the account type and connects to wss://<host>/<accountType>.
// An unknown account type fails before any socket is opened.
func (s *Socket) InitSession(ctx context.Context, host, accountType string) error {
	at, err := core.ParseAccountType(accountType)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.channel.Failed() {
		return fmt.Errorf("%w: socket session already open", apperrors.ErrAlreadyConnected)
	}

	ch := s.newChannel()
	s.session.Bind(at)
	if err := ch.Open(ctx, endpoint(host, at, "")); err != nil {
		return err
	}
	s.channel = ch
	return nil
}

// CloseSession closes the socket; it is safe to call repeatedly
func (s *Socket) CloseSession() error {
	s.session.ClearLogin()
	return s.current().Close()
}

func (s *Socket) request(ctx context.Context, cmd core.Command) (core.Reply, error) {
	return s.current().Call(ctx, cmd)
}

// Login authenticates and returns the stream session token
func (s *Socket) Login(ctx context.Context, accountID, password string) (string, error) {
	reply, err := s.request(ctx, core.NewCommand("login",
		core.String("userId", accountID),
		core.String("password", password),
	))
	if err != nil {
		return "", err
	}
	if !reply.Status {
		return "", fmt.Errorf("%w: %w", apperrors.ErrLoginFailed, reply.Err())
	}

	s.session.SetLogin(accountID, reply.StreamSessionID)
	s.logger.Info("Logged in", "account_id", accountID)
	return reply.StreamSessionID, nil
}

// Logout ends the authenticated session
func (s *Socket) Logout(ctx context.Context) (core.Reply, error) {
	reply, err := s.request(ctx, core.NewCommand("logout"))
	if err == nil {
		s.session.ClearLogin()
	}
	return reply, err
}

func (s *Socket) GetAllSymbols(ctx context.Context) (core.Reply, error) {
	return s.request(ctx, core.NewCommand("getAllSymbols"))
}

func (s *Socket) GetCalendar(ctx context.Context) (core.Reply, error) {
	return s.request(ctx, core.NewCommand("getCalendar"))
}

// GetChartLastRequest returns candles from start until now
func (s *Socket) GetChartLastRequest(ctx context.Context, symbol string, start time.Time, period core.PeriodCode) (core.Reply, error) {
	return s.request(ctx, core.NewCommand("getChartLastRequest", core.Nested("info",
		core.Int("period", int64(period)),
		core.Int("start", millis(start)),
		core.String("symbol", symbol),
	)))
}

// GetChartRangeRequest returns candles for a range; a non-zero ticks overrides end
func (s *Socket) GetChartRangeRequest(ctx context.Context, symbol string, start, end time.Time, period core.PeriodCode, ticks int64) (core.Reply, error) {
	return s.request(ctx, core.NewCommand("getChartRangeRequest", core.Nested("info",
		core.Int("end", millis(end)),
		core.Int("period", int64(period)),
		core.Int("start", millis(start)),
		core.String("symbol", symbol),
		core.Int("ticks", ticks),
	)))
}

func (s *Socket) GetCommissionDef(ctx context.Context, symbol string, volume decimal.Decimal) (core.Reply, error) {
	return s.request(ctx, core.NewCommand("getCommissionDef",
		core.String("symbol", symbol),
		core.Decimal("volume", volume),
	))
}

func (s *Socket) GetCurrentUserData(ctx context.Context) (core.Reply, error) {
	return s.request(ctx, core.NewCommand("getCurrentUserData"))
}

func (s *Socket) GetIbsHistory(ctx context.Context, start, end time.Time) (core.Reply, error) {
	return s.request(ctx, core.NewCommand("getIbsHistory",
		core.Int("end", millis(end)),
		core.Int("start", millis(start)),
	))
}

func (s *Socket) GetMarginLevel(ctx context.Context) (core.Reply, error) {
	return s.request(ctx, core.NewCommand("getMarginLevel"))
}

func (s *Socket) GetMarginTrade(ctx context.Context, symbol string, volume decimal.Decimal) (core.Reply, error) {
	return s.request(ctx, core.NewCommand("getMarginTrade",
		core.String("symbol", symbol),
		core.Decimal("volume", volume),
	))
}

func (s *Socket) GetNews(ctx context.Context, start, end time.Time) (core.Reply, error) {
	return s.request(ctx, core.NewCommand("getNews",
		core.Int("end", millis(end)),
		core.Int("start", millis(start)),
	))
}

func (s *Socket) GetProfitCalculation(ctx context.Context, symbol string, cmd core.TradeCmd, openPrice, closePrice, volume decimal.Decimal) (core.Reply, error) {
	return s.request(ctx, core.NewCommand("getProfitCalculation",
		core.Decimal("closePrice", closePrice),
		core.Int("cmd", int64(cmd)),
		core.Decimal("openPrice", openPrice),
		core.String("symbol", symbol),
		core.Decimal("volume", volume),
	))
}

func (s *Socket) GetServerTime(ctx context.Context) (core.Reply, error) {
	return s.request(ctx, core.NewCommand("getServerTime"))
}

func (s *Socket) GetStepRules(ctx context.Context) (core.Reply, error) {
	return s.request(ctx, core.NewCommand("getStepRules"))
}

func (s *Socket) GetSymbol(ctx context.Context, symbol string) (core.Reply, error) {
	return s.request(ctx, core.NewCommand("getSymbol", core.String("symbol", symbol)))
}

func (s *Socket) GetTickPrices(ctx context.Context, symbols []string, timestamp time.Time, level int64) (core.Reply, error) {
	return s.request(ctx, core.NewCommand("getTickPrices",
		core.Int("level", level),
		core.Strings("symbols", symbols),
		core.Int("timestamp", millis(timestamp)),
	))
}

func (s *Socket) GetTradeRecords(ctx context.Context, orders []int64) (core.Reply, error) {
	return s.request(ctx, core.NewCommand("getTradeRecords", core.Ints("orders", orders)))
}

func (s *Socket) GetTrades(ctx context.Context, openedOnly bool) (core.Reply, error) {
	return s.request(ctx, core.NewCommand("getTrades", core.Bool("openedOnly", openedOnly)))
}

func (s *Socket) GetTradesHistory(ctx context.Context, start, end time.Time) (core.Reply, error) {
	return s.request(ctx, core.NewCommand("getTradesHistory",
		core.Int("end", millis(end)),
		core.Int("start", millis(start)),
	))
}

func (s *Socket) GetTradingHours(ctx context.Context, symbols []string) (core.Reply, error) {
	return s.request(ctx, core.NewCommand("getTradingHours", core.Strings("symbols", symbols)))
}

func (s *Socket) GetVersion(ctx context.Context) (core.Reply, error) {
	return s.request(ctx, core.NewCommand("getVersion"))
}

func (s *Socket) Ping(ctx context.Context) (core.Reply, error) {
	return s.request(ctx, core.NewCommand("ping"))
}

// TradeTransInfo describes one trade transaction
type TradeTransInfo struct {
	Cmd           core.TradeCmd
	Type          core.TradeType
	Symbol        string
	Price         decimal.Decimal
	Volume        decimal.Decimal
	StopLoss      decimal.Decimal
	TakeProfit    decimal.Decimal
	Order         int64
	Expiration    time.Time
	Offset        int64
	CustomComment string
}

func (t TradeTransInfo) command() core.Command {
	return core.NewCommand(safety.CommandTradeTransaction, core.Nested("tradeTransInfo",
		core.Int("cmd", int64(t.Cmd)),
		core.String("customComment", t.CustomComment),
		core.Int("expiration", millis(t.Expiration)),
		core.Int("offset", t.Offset),
		core.Int("order", t.Order),
		core.Decimal("price", t.Price),
		core.Decimal("sl", t.StopLoss),
		core.String("symbol", t.Symbol),
		core.Decimal("tp", t.TakeProfit),
		core.Int("type", int64(t.Type)),
		core.Decimal("volume", t.Volume),
	))
}

// TradeTransaction submits a trade. In safe mode it returns the local rejection
// {status:false, errorCode:"N/A"} without touching the network.
func (s *Socket) TradeTransaction(ctx context.Context, info TradeTransInfo) (core.Reply, error) {
	return s.request(ctx, info.command())
}

func (s *Socket) TradeTransactionStatus(ctx context.Context, order int64) (core.Reply, error) {
	return s.request(ctx, core.NewCommand("tradeTransactionStatus", core.Int("order", order)))
}
