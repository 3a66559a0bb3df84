// Package events defines the normalized event record consumed by the scoring
// pipeline, and the adapter that decodes raw Aave V2 transaction dumps into it.
package events

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Action is one of the lending-protocol interactions a wallet can perform.
type Action string

const (
	ActionDeposit     Action = "deposit"
	ActionBorrow      Action = "borrow"
	ActionRepay       Action = "repay"
	ActionRedeem      Action = "redeem"
	ActionLiquidation Action = "liquidation"

	// ActionUnknown marks a record whose action was missing or unrecognized.
	ActionUnknown Action = ""
)

// AllActions lists the defined action types in a fixed order.
var AllActions = []Action{
	ActionDeposit,
	ActionBorrow,
	ActionRepay,
	ActionRedeem,
	ActionLiquidation,
}

// Valid reports whether a is one of the defined action types.
func (a Action) Valid() bool {
	switch a {
	case ActionDeposit, ActionBorrow, ActionRepay, ActionRedeem, ActionLiquidation:
		return true
	}
	return false
}

// ParseAction maps protocol action names onto Action. Aave's own names
// (redeemunderlying, liquidationcall) are accepted alongside the short forms.
func ParseAction(s string) Action {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "deposit":
		return ActionDeposit
	case "borrow":
		return ActionBorrow
	case "repay":
		return ActionRepay
	case "redeem", "redeemunderlying":
		return ActionRedeem
	case "liquidation", "liquidationcall":
		return ActionLiquidation
	default:
		return ActionUnknown
	}
}

// Event is one protocol interaction attributed to a wallet.
//
// Fields that failed to parse upstream are carried as absent: ActionUnknown,
// a non-positive Timestamp, or an invalid NullDecimal.
type Event struct {
	Wallet      string
	Action      Action
	Timestamp   int64 // seconds since epoch, <= 0 when missing
	Amount      decimal.NullDecimal
	AssetSymbol string
	PriceUSD    decimal.NullDecimal
}

// HasTimestamp reports whether the event carries a usable timestamp.
func (e *Event) HasTimestamp() bool {
	return e.Timestamp > 0
}

// HasAmount reports whether the event carries a usable, non-negative amount.
func (e *Event) HasAmount() bool {
	return e.Amount.Valid && !e.Amount.Decimal.IsNegative()
}

// HasPrice reports whether the event carries a strictly positive USD price.
func (e *Event) HasPrice() bool {
	return e.PriceUSD.Valid && e.PriceUSD.Decimal.IsPositive()
}

// USDValue returns amount * price, or zero when either is unusable.
func (e *Event) USDValue() decimal.Decimal {
	if !e.HasAmount() || !e.HasPrice() {
		return decimal.Zero
	}
	return e.Amount.Decimal.Mul(e.PriceUSD.Decimal)
}

// NormalizeWallet canonicalizes a wallet identifier. Hex addresses are
// lower-cased so checksum variants group together; anything else is only
// trimmed and otherwise treated as opaque.
func NormalizeWallet(raw string) string {
	w := strings.TrimSpace(raw)
	if common.IsHexAddress(w) {
		return strings.ToLower(common.HexToAddress(w).Hex())
	}
	return w
}
