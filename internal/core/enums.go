package core

import (
	"fmt"

	apperrors "xapi/pkg/errors"
)

// AccountType selects the server environment
type AccountType string

const (
	AccountDemo AccountType = "demo"
	AccountReal AccountType = "real"
)

// ParseAccountType checks a raw account type against the known set
func ParseAccountType(s string) (AccountType, error) {
	switch t := AccountType(s); t {
	case AccountDemo, AccountReal:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q (expected demo or real)", apperrors.ErrInvalidAccountType, s)
}

// PeriodCode is a chart candle period in minutes
type PeriodCode int64

const (
	PeriodM1  PeriodCode = 1
	PeriodM5  PeriodCode = 5
	PeriodM15 PeriodCode = 15
	PeriodM30 PeriodCode = 30
	PeriodH1  PeriodCode = 60
	PeriodH4  PeriodCode = 240
	PeriodD1  PeriodCode = 1440
	PeriodW1  PeriodCode = 10080
	PeriodMN1 PeriodCode = 43200
)

// TradeCmd is the operation code of a trade transaction
type TradeCmd int64

const (
	CmdBuy TradeCmd = iota
	CmdSell
	CmdBuyLimit
	CmdSellLimit
	CmdBuyStop
	CmdSellStop
	CmdBalance
	CmdCredit
)

func (c TradeCmd) String() string {
	switch c {
	case CmdBuy:
		return "BUY"
	case CmdSell:
		return "SELL"
	case CmdBuyLimit:
		return "BUY_LIMIT"
	case CmdSellLimit:
		return "SELL_LIMIT"
	case CmdBuyStop:
		return "BUY_STOP"
	case CmdSellStop:
		return "SELL_STOP"
	case CmdBalance:
		return "BALANCE"
	case CmdCredit:
		return "CREDIT"
	default:
		return fmt.Sprintf("TradeCmd(%d)", int64(c))
	}
}

// TradeType is the kind of a trade transaction
type TradeType int64

const (
	TypeOpen TradeType = iota
	TypePending
	TypeClose
	TypeModify
	TypeDelete
)

// TradeStatus is the request status reported by tradeTransactionStatus and tradeStatus pushes
type TradeStatus int64

const (
	StatusError    TradeStatus = 0
	StatusPending  TradeStatus = 1
	StatusAccepted TradeStatus = 3
	StatusRejected TradeStatus = 4
)

func (s TradeStatus) String() string {
	switch s {
	case StatusError:
		return "ERROR"
	case StatusPending:
		return "PENDING"
	case StatusAccepted:
		return "ACCEPTED"
	case StatusRejected:
		return "REJECTED"
	default:
		return fmt.Sprintf("TradeStatus(%d)", int64(s))
	}
}
