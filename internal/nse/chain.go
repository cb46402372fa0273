package nse

import (
	"fmt"
	"time"

	"premium-scanner/internal/models"
)

// exchangeDateLayout is how the NSE renders expiry dates, e.g. "24-Dec-2024".
const exchangeDateLayout = "02-Jan-2006"

// chainDocument mirrors the option-chain-indices response shape.
type chainDocument struct {
	Records struct {
		ExpiryDates     []string       `json:"expiryDates"`
		Data            []strikeRecord `json:"data"`
		UnderlyingValue float64        `json:"underlyingValue"`
	} `json:"records"`
}

// strikeRecord is one per-strike entry with nested put and call quotes.
type strikeRecord struct {
	StrikePrice float64    `json:"strikePrice"`
	ExpiryDate  string     `json:"expiryDate"`
	PE          *sideQuote `json:"PE"`
	CE          *sideQuote `json:"CE"`
}

// sideQuote is the nested quote record for one side of a strike. Field names
// follow the NSE payload, including its inconsistent "bidprice" casing.
type sideQuote struct {
	StrikePrice       float64 `json:"strikePrice"`
	ExpiryDate        string  `json:"expiryDate"`
	OpenInterest      int64   `json:"openInterest"`
	ChangeInOI        int64   `json:"changeinOpenInterest"`
	TotalTradedVolume int64   `json:"totalTradedVolume"`
	ImpliedVolatility float64 `json:"impliedVolatility"`
	LastPrice         float64 `json:"lastPrice"`
	BidQty            int64   `json:"bidQty"`
	BidPrice          float64 `json:"bidprice"`
	AskQty            int64   `json:"askQty"`
	AskPrice          float64 `json:"askPrice"`
	UnderlyingValue   float64 `json:"underlyingValue"`
}

func parseExchangeDate(s string) (models.Date, error) {
	t, err := time.Parse(exchangeDateLayout, s)
	if err != nil {
		return models.Date{}, fmt.Errorf("parsing exchange date %q: %w", s, err)
	}
	return models.DateOf(t), nil
}

// flattenChain normalizes the nested per-strike records into flat rows,
// keeping only the requested expiry and side. When side is empty, all put
// rows are emitted first, then all call rows, each group in source strike
// order.
func flattenChain(symbol string, doc *chainDocument, expiry models.Date, side models.OptionSide) []models.OptionQuoteRow {
	rows := []models.OptionQuoteRow{}
	if side == "" || side == models.SidePut {
		rows = append(rows, flattenSide(symbol, doc, expiry, models.SidePut)...)
	}
	if side == "" || side == models.SideCall {
		rows = append(rows, flattenSide(symbol, doc, expiry, models.SideCall)...)
	}
	return rows
}

func flattenSide(symbol string, doc *chainDocument, expiry models.Date, side models.OptionSide) []models.OptionQuoteRow {
	var rows []models.OptionQuoteRow
	for _, rec := range doc.Records.Data {
		recExpiry, err := parseExchangeDate(rec.ExpiryDate)
		if err != nil || !recExpiry.SameDay(expiry) {
			continue
		}

		var q *sideQuote
		switch side {
		case models.SidePut:
			q = rec.PE
		case models.SideCall:
			q = rec.CE
		}
		if q == nil {
			continue
		}

		rows = append(rows, models.OptionQuoteRow{
			InstrumentName:    symbol,
			ExpiryDate:        recExpiry,
			StrikePrice:       rec.StrikePrice,
			Side:              side,
			Price:             models.PriceForSide(side, q.BidPrice, q.AskPrice),
			OpenInterest:      q.OpenInterest,
			ChangeInOI:        q.ChangeInOI,
			TotalTradedVolume: q.TotalTradedVolume,
			ImpliedVolatility: q.ImpliedVolatility,
			LastPrice:         q.LastPrice,
			UnderlyingValue:   q.UnderlyingValue,
		})
	}
	return rows
}
