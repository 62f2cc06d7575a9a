package core

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "xapi/pkg/errors"
)

func TestCommand_MarshalPreservesOrder(t *testing.T) {
	cmd := NewCommand("getTickPrices",
		Int("level", 0),
		Strings("symbols", []string{"EURUSD", "GBPUSD"}),
		Int("timestamp", 1700000000000),
	)

	data, err := json.Marshal(cmd)
	require.NoError(t, err)
	assert.Equal(t,
		`{"command":"getTickPrices","arguments":{"level":0,"symbols":["EURUSD","GBPUSD"],"timestamp":1700000000000}}`,
		string(data))
}

func TestCommand_OmitsEmptyArguments(t *testing.T) {
	data, err := json.Marshal(NewCommand("getVersion"))
	require.NoError(t, err)
	assert.Equal(t, `{"command":"getVersion"}`, string(data))
}

func TestCommand_NestedTradeInfo(t *testing.T) {
	cmd := NewCommand("tradeTransaction", Nested("tradeTransInfo",
		Int("cmd", int64(CmdBuy)),
		String("customComment", ""),
		Decimal("price", decimal.RequireFromString("1.0842")),
		String("symbol", "EURUSD"),
		Decimal("volume", decimal.RequireFromString("0.1")),
	))

	data, err := json.Marshal(cmd)
	require.NoError(t, err)
	assert.Equal(t,
		`{"command":"tradeTransaction","arguments":{"tradeTransInfo":{"cmd":0,"customComment":"","price":1.0842,"symbol":"EURUSD","volume":0.1}}}`,
		string(data))
}

func TestCommand_RoundTrip(t *testing.T) {
	original := NewCommand("getChartRangeRequest", Nested("info",
		Int("end", 1700000000000),
		Int("period", int64(PeriodH1)),
		Int("start", 1600000000000),
		String("symbol", "US500"),
		Int("ticks", -10),
	), Bool("flag", true), Float("ratio", 0.5))

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Command
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original.Name(), decoded.Name())

	again, err := json.Marshal(decoded)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
	assert.Equal(t, string(data), string(again))

	info, ok := decoded.Arg("info")
	require.True(t, ok)
	symbol, ok := info.(Object).Get("symbol")
	require.True(t, ok)
	assert.Equal(t, "US500", symbol)
}

func TestCommand_Immutable(t *testing.T) {
	symbols := []string{"EURUSD"}
	args := []Arg{Strings("symbols", symbols)}
	cmd := NewCommand("getTradingHours", args...)

	symbols[0] = "CHANGED"
	args[0] = String("other", "x")

	data, err := json.Marshal(cmd)
	require.NoError(t, err)
	assert.Equal(t, `{"command":"getTradingHours","arguments":{"symbols":["EURUSD"]}}`, string(data))
}

func TestCommand_UnmarshalRejectsMissingName(t *testing.T) {
	var cmd Command
	assert.Error(t, json.Unmarshal([]byte(`{"arguments":{}}`), &cmd))
	assert.Error(t, json.Unmarshal([]byte(`{"command":"x","arguments":[1]}`), &cmd))
}

func TestStreamCommand_Marshal(t *testing.T) {
	cmd := NewStreamCommand("getTickPrices", "token-1",
		String("symbol", "EURUSD"), Int("minArrivalTime", 0), Int("maxLevel", 2))

	data, err := json.Marshal(cmd)
	require.NoError(t, err)
	assert.Equal(t,
		`{"command":"getTickPrices","streamSessionId":"token-1","symbol":"EURUSD","minArrivalTime":0,"maxLevel":2}`,
		string(data))

	data, err = json.Marshal(NewStreamCommand("getBalance", "token-1"))
	require.NoError(t, err)
	assert.Equal(t, `{"command":"getBalance","streamSessionId":"token-1"}`, string(data))
}

func TestReply_DecodeAndErr(t *testing.T) {
	var ok Reply
	require.NoError(t, json.Unmarshal([]byte(`{"status":true,"returnData":{"version":"2.5.0"}}`), &ok))
	assert.NoError(t, ok.Err())

	var v struct {
		Version string `json:"version"`
	}
	require.NoError(t, ok.Decode(&v))
	assert.Equal(t, "2.5.0", v.Version)

	var failed Reply
	require.NoError(t, json.Unmarshal([]byte(`{"status":false,"errorCode":"BE005","errorDescr":"userPasswordCheck: Invalid login or password"}`), &failed))
	var replyErr *ReplyError
	require.ErrorAs(t, failed.Err(), &replyErr)
	assert.Equal(t, "BE005", replyErr.Code)
	assert.Error(t, failed.Decode(&v))
}

func TestParseAccountType(t *testing.T) {
	at, err := ParseAccountType("demo")
	require.NoError(t, err)
	assert.Equal(t, AccountDemo, at)

	at, err = ParseAccountType("real")
	require.NoError(t, err)
	assert.Equal(t, AccountReal, at)

	_, err = ParseAccountType("REAL")
	assert.ErrorIs(t, err, apperrors.ErrInvalidAccountType)

	_, err = ParseAccountType("paper")
	assert.ErrorIs(t, err, apperrors.ErrInvalidAccountType)
}

func TestSession_Defaults(t *testing.T) {
	s := NewSession(AccountDemo)
	assert.True(t, s.SafeMode())
	assert.Empty(t, s.StreamSessionID())

	s.SetLogin("12345", "tok")
	assert.Equal(t, "12345", s.AccountID())
	assert.Equal(t, "tok", s.StreamSessionID())

	s.SetSafeMode(false)
	assert.False(t, s.SafeMode())

	s.ClearLogin()
	assert.Empty(t, s.StreamSessionID())

	s.SetLogin("12345", "tok")
	s.Bind(AccountReal)
	assert.Equal(t, AccountReal, s.AccountType())
	assert.Empty(t, s.AccountID())
	assert.Empty(t, s.StreamSessionID())
	assert.False(t, s.SafeMode(), "binding keeps the safe mode choice")
}
