package safety

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xapi/internal/core"
	"xapi/pkg/logging"
)

func tradeCommand() core.Command {
	return core.NewCommand(CommandTradeTransaction, core.Nested("tradeTransInfo",
		core.Int("cmd", int64(core.CmdBuy)),
		core.String("symbol", "EURUSD"),
		core.Float("volume", 0.1),
	))
}

func TestTradeGuard_SafeModeRejectsTrade(t *testing.T) {
	logger, _ := logging.NewZapLogger("DEBUG")
	g := NewTradeGuard(logger)

	reply, blocked := g.Check(tradeCommand(), true)
	require.True(t, blocked)
	assert.False(t, reply.Status)
	assert.Equal(t, "N/A", reply.ErrorCode)
	assert.Equal(t, "Trading is disabled when safe=True", reply.ErrorDescr)

	data, err := json.Marshal(reply)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":false,"errorCode":"N/A","errorDescr":"Trading is disabled when safe=True"}`, string(data))
}

func TestTradeGuard_SafeModeOffPasses(t *testing.T) {
	g := NewTradeGuard(nil)

	reply, blocked := g.Check(tradeCommand(), false)
	assert.False(t, blocked)
	assert.Equal(t, core.Reply{}, reply)
}

func TestTradeGuard_OtherCommandsPass(t *testing.T) {
	g := NewTradeGuard(nil)

	for _, name := range []string{"getVersion", "tradeTransactionStatus", "getTrades", "login"} {
		_, blocked := g.Check(core.NewCommand(name), true)
		assert.False(t, blocked, name)
	}
}
