package analytics

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// fieldMap lists, per canonical field, the raw keys accepted by a source in priority order.
type fieldMap struct {
	date       []string
	segment    []string
	tradeType  []string
	quantity   []string
	entry      []string
	exit       []string
	profit     []string
	clientName []string
	id         []string
	userID     []string
}

var sourceFields = map[Source]fieldMap{
	SourceLedger: {
		date:      []string{"date", "tradeDate", "trade_date"},
		segment:   []string{"symbol", "segment"},
		tradeType: []string{"tradeType", "trade_type", "type", "side"},
		quantity:  []string{"quantity", "qty"},
		entry:     []string{"entry", "entryPrice", "entry_price"},
		exit:      []string{"exit", "exitPrice", "exit_price"},
		profit:    []string{"profit", "pnl", "pl"},
		id:        []string{"id"},
	},
	SourceConsolidated: {
		date:       []string{"tradeDate", "date", "trade_date"},
		segment:    []string{"segment", "symbol"},
		tradeType:  []string{"tradeType", "trade_type", "type", "side"},
		quantity:   []string{"quantity", "qty"},
		entry:      []string{"entryPrice", "entry", "entry_price"},
		exit:       []string{"exitPrice", "exit", "exit_price"},
		profit:     []string{"profit", "pnl", "pl"},
		clientName: []string{"clientName", "client_name", "client"},
		id:         []string{"id"},
		userID:     []string{"uid", "userId", "user_id"},
	},
	SourceManual: {
		date:      []string{"date"},
		segment:   []string{"symbol"},
		tradeType: []string{"tradeType"},
		quantity:  []string{"quantity"},
		entry:     []string{"entry"},
		exit:      []string{"exit"},
		profit:    []string{"profit"},
		userID:    []string{"uid"},
	},
}

// dateLayouts are tried in order when a date arrives as text.
var dateLayouts = []string{
	DateLayout,
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02/01/2006",
	"2 Jan 2006",
	"Jan 2, 2006",
}

// Normalize maps raw records of one source onto TradeRecord values.
// The output has the same length and order as the input and never fails:
// unusable numbers become 0 and unusable dates leave Date zero with RawDate kept.
func Normalize(source Source, raws []RawTrade) []TradeRecord {
	fields, ok := sourceFields[source]
	if !ok {
		fields = sourceFields[SourceLedger]
	}

	out := make([]TradeRecord, len(raws))
	for i, raw := range raws {
		out[i] = normalizeOne(fields, raw)
	}
	return out
}

// NormalizeOne is Normalize for a single record.
func NormalizeOne(source Source, raw RawTrade) TradeRecord {
	fields, ok := sourceFields[source]
	if !ok {
		fields = sourceFields[SourceLedger]
	}
	return normalizeOne(fields, raw)
}

func normalizeOne(f fieldMap, raw RawTrade) TradeRecord {
	rec := TradeRecord{
		ID:         stringField(raw, f.id),
		UserID:     stringField(raw, f.userID),
		Segment:    stringField(raw, f.segment),
		TradeType:  normalizeTradeType(stringField(raw, f.tradeType)),
		ClientName: stringField(raw, f.clientName),
	}

	if v, ok := lookup(raw, f.date); ok {
		rec.Date, rec.RawDate = ParseDate(v)
	}

	if v, ok := lookup(raw, f.quantity); ok {
		if q, ok := ToFloat(v); ok && q > 0 {
			rec.Quantity = q
		}
	}
	if v, ok := lookup(raw, f.entry); ok {
		if p, ok := ToFloat(v); ok {
			rec.EntryPrice = &p
		}
	}
	if v, ok := lookup(raw, f.exit); ok {
		if p, ok := ToFloat(v); ok {
			rec.ExitPrice = &p
		}
	}
	if v, ok := lookup(raw, f.profit); ok {
		if p, ok := ToFloat(v); ok {
			rec.Profit = p
		}
	}
	return rec
}

func lookup(raw RawTrade, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
				continue
			}
			return v, true
		}
	}
	return nil, false
}

func stringField(raw RawTrade, keys []string) string {
	v, ok := lookup(raw, keys)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func normalizeTradeType(s string) string {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "B", "LONG":
		return TradeBuy
	case "SELL", "S", "SHORT":
		return TradeSell
	default:
		return ""
	}
}

// ToFloat coerces numbers and numeric strings. NaN, Inf and unparseable values report false.
func ToFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case uint:
		f = float64(t)
	case uint64:
		f = float64(t)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(t), ",", "")
		if s == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseDate reduces a raw date value to a calendar day in UTC.
// When the value cannot be interpreted the zero time is returned together with its text.
func ParseDate(v any) (time.Time, string) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, ""
		}
		return Day(t), t.Format(DateLayout)
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, ""
		}
		return Day(*t), t.Format(DateLayout)
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return Day(parsed), s
			}
		}
		return time.Time{}, s
	default:
		return time.Time{}, fmt.Sprint(v)
	}
}

// Day truncates a timestamp to its calendar day, keeping the day as seen in the value's own zone.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
