// Package models defines the core data types shared across the application.
package models

import (
	"fmt"
	"strings"
)

// OptionSide identifies the option type using NSE notation.
type OptionSide string

const (
	// SidePut is a put option ("PE" on the NSE).
	SidePut OptionSide = "PE"
	// SideCall is a call option ("CE" on the NSE).
	SideCall OptionSide = "CE"
)

// ParseSide parses an option side string. Accepts "PE"/"CE" in any case
// and the aliases "PUT"/"CALL".
func ParseSide(s string) (OptionSide, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PE", "PUT":
		return SidePut, nil
	case "CE", "CALL":
		return SideCall, nil
	default:
		return "", fmt.Errorf("invalid option side: %q (must be PE or CE)", s)
	}
}

// Valid reports whether the side is one of the two known values.
func (s OptionSide) Valid() bool {
	return s == SidePut || s == SideCall
}

// TransactionType is the direction of a trade as the brokerage API expects it.
type TransactionType string

const (
	TransactionBuy  TransactionType = "BUY"
	TransactionSell TransactionType = "SELL"
)

// PriceForSide selects the quoted price for a premium-selling workflow:
// the bid for a put, the ask for a call. Exactly one of the two quotes is
// ever used for a given side.
func PriceForSide(side OptionSide, bid, ask float64) float64 {
	if side == SidePut {
		return bid
	}
	return ask
}

// TransactionForSide maps an option side to the trade direction used for
// margin calculation: puts are bought, calls are sold.
func TransactionForSide(side OptionSide) TransactionType {
	if side == SidePut {
		return TransactionBuy
	}
	return TransactionSell
}

// OptionQuoteRow is one market quote for a single (instrument, expiry,
// strike, side) contract. Rows are immutable once produced by the chain
// fetcher; enrichment only appends fields.
type OptionQuoteRow struct {
	InstrumentName string     `json:"instrument_name" csv:"instrument_name"`
	ExpiryDate     Date       `json:"expiry_date" csv:"expiry_date"`
	StrikePrice    float64    `json:"strike_price" csv:"strike_price"`
	Side           OptionSide `json:"side" csv:"side"`

	// Price is the side-selected quote: bid for PE, ask for CE.
	Price float64 `json:"price" csv:"price"`

	// Raw exchange fields passed through unmodified.
	OpenInterest      int64   `json:"open_interest" csv:"open_interest"`
	ChangeInOI        int64   `json:"change_in_oi" csv:"change_in_oi"`
	TotalTradedVolume int64   `json:"total_traded_volume" csv:"total_traded_volume"`
	ImpliedVolatility float64 `json:"implied_volatility" csv:"implied_volatility"`
	LastPrice         float64 `json:"last_price" csv:"last_price"`
	UnderlyingValue   float64 `json:"underlying_value" csv:"underlying_value"`
}

// TradingSymbol renders the contract identifier in the format the instrument
// reference file publishes, e.g. "BANKNIFTY 48000 PE 24 DEC 24".
func (r OptionQuoteRow) TradingSymbol() string {
	return TradingSymbol(r.InstrumentName, r.StrikePrice, r.Side, r.ExpiryDate)
}

// TradingSymbol builds "{NAME} {STRIKE} {SIDE} {DD MON YY}". Whole-number
// strikes render without a decimal point.
func TradingSymbol(name string, strike float64, side OptionSide, expiry Date) string {
	strikeStr := fmt.Sprintf("%g", strike)
	dateStr := strings.ToUpper(expiry.Format("02 Jan 06"))
	return fmt.Sprintf("%s %s %s %s", name, strikeStr, side, dateStr)
}

// EnrichedRow is an OptionQuoteRow with the two computed columns appended.
// Terminal: exported to a table or file, never fed back into the pipeline.
type EnrichedRow struct {
	OptionQuoteRow
	MarginRequired float64 `json:"margin_required" csv:"margin_required"`
	PremiumEarned  float64 `json:"premium_earned" csv:"premium_earned"`
}

// RowKey identifies a row in errors and diagnostics.
type RowKey struct {
	InstrumentName string
	ExpiryDate     Date
	StrikePrice    float64
	Side           OptionSide
}

// Key returns the identifying key of a row.
func (r OptionQuoteRow) Key() RowKey {
	return RowKey{
		InstrumentName: r.InstrumentName,
		ExpiryDate:     r.ExpiryDate,
		StrikePrice:    r.StrikePrice,
		Side:           r.Side,
	}
}

func (k RowKey) String() string {
	return fmt.Sprintf("%s %g %s %s", k.InstrumentName, k.StrikePrice, k.Side, k.ExpiryDate.Format("2006-01-02"))
}
