package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidDump = errors.New("invalid transaction dump")
)

// DefaultDecimals is the scale applied to raw amounts of assets missing from
// the decimals table.
const DefaultDecimals = 6

// AssetDecimals maps asset symbols to the number of decimals their raw
// on-chain amounts carry.
var AssetDecimals = map[string]int32{
	"USDC":   6,
	"USDT":   6,
	"WBTC":   8,
	"DAI":    18,
	"WETH":   18,
	"WMATIC": 18,
	"WPOL":   18,
	"AAVE":   18,
	"LINK":   18,
}

// DecimalsFor returns the raw-amount scale for symbol.
func DecimalsFor(symbol string) int32 {
	if d, ok := AssetDecimals[strings.ToUpper(symbol)]; ok {
		return d
	}
	return DefaultDecimals
}

// rawTransaction mirrors one record of an Aave V2 transaction dump. Every
// field stays raw so a wrongly typed value only loses that field.
type rawTransaction struct {
	UserWallet json.RawMessage `json:"userWallet"`
	Action     json.RawMessage `json:"action"`
	Timestamp  json.RawMessage `json:"timestamp"`
	ActionData json.RawMessage `json:"actionData"`
}

type rawActionData struct {
	Amount        json.RawMessage `json:"amount"`
	AssetSymbol   json.RawMessage `json:"assetSymbol"`
	AssetPriceUSD json.RawMessage `json:"assetPriceUSD"`
}

// DecodeStats counts field-level problems seen while decoding a dump.
type DecodeStats struct {
	Records          int `json:"records"`
	MalformedRecords int `json:"malformedRecords"` // record or actionData not an object
	BadTimestamps    int `json:"badTimestamps"`
	BadAmounts       int `json:"badAmounts"`
	BadPrices        int `json:"badPrices"`
	UnknownActions   int `json:"unknownActions"`
	MissingWallets   int `json:"missingWallets"`
	MissingAssetData int `json:"missingAssetData"`
}

// DecodeAave reads a JSON array of Aave V2 transactions. Each element is
// decoded on its own: fields that are missing or of the wrong type are left
// absent on the resulting Event. Only a document that is not a JSON array
// is an error.
func DecodeAave(r io.Reader) ([]Event, DecodeStats, error) {
	var stats DecodeStats

	var elems []json.RawMessage
	if err := json.NewDecoder(r).Decode(&elems); err != nil {
		return nil, stats, fmt.Errorf("%w: %w", ErrInvalidDump, err)
	}

	out := make([]Event, 0, len(elems))
	for _, elem := range elems {
		var raw rawTransaction
		if err := json.Unmarshal(elem, &raw); err != nil {
			raw = rawTransaction{}
			stats.MalformedRecords++
		}
		out = append(out, convert(&raw, &stats))
	}
	stats.Records = len(elems)
	return out, stats, nil
}

// LoadAaveFile decodes the dump stored at path.
func LoadAaveFile(path string) ([]Event, DecodeStats, error) {
	f, err := os.Open(path) // #nosec G304 -- operator-supplied input path
	if err != nil {
		return nil, DecodeStats{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return DecodeAave(f)
}

func convert(raw *rawTransaction, stats *DecodeStats) Event {
	var data rawActionData
	if len(raw.ActionData) > 0 {
		if err := json.Unmarshal(raw.ActionData, &data); err != nil {
			data = rawActionData{}
			stats.MalformedRecords++
		}
	}

	ev := Event{
		Wallet:      NormalizeWallet(jsonString(raw.UserWallet)),
		Action:      ParseAction(jsonString(raw.Action)),
		AssetSymbol: strings.TrimSpace(jsonString(data.AssetSymbol)),
	}
	if ev.Wallet == "" {
		stats.MissingWallets++
	}
	if ev.Action == ActionUnknown {
		stats.UnknownActions++
	}
	if ev.AssetSymbol == "" {
		stats.MissingAssetData++
	}

	if ts, ok := parseTimestamp(raw.Timestamp); ok {
		ev.Timestamp = ts
	} else {
		stats.BadTimestamps++
	}

	if amt, ok := parseDecimal(data.Amount); ok && !amt.IsNegative() {
		ev.Amount = decimal.NewNullDecimal(amt.Shift(-DecimalsFor(ev.AssetSymbol)))
	} else {
		stats.BadAmounts++
	}

	if price, ok := parseDecimal(data.AssetPriceUSD); ok && price.IsPositive() {
		ev.PriceUSD = decimal.NewNullDecimal(price)
	} else {
		stats.BadPrices++
	}

	return ev
}

// parseTimestamp accepts a JSON number or a numeric string.
func parseTimestamp(raw json.RawMessage) (int64, bool) {
	s := unquote(raw)
	if s == "" {
		return 0, false
	}
	ts, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Some exports write float seconds.
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f < 1 || f > float64(1<<62) {
			return 0, false
		}
		ts = int64(f)
	}
	if ts <= 0 {
		return 0, false
	}
	return ts, true
}

// parseDecimal accepts a JSON number or a numeric string.
func parseDecimal(raw json.RawMessage) (decimal.Decimal, bool) {
	s := unquote(raw)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// jsonString returns raw when it is a JSON string and "" for any other type.
func jsonString(raw json.RawMessage) string {
	b := bytes.TrimSpace(raw)
	if len(b) == 0 || b[0] != '"' {
		return ""
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return ""
	}
	return s
}

func unquote(raw json.RawMessage) string {
	b := bytes.TrimSpace(raw)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return ""
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	return string(b)
}
