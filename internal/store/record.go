package store

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FieldCount 每行记录的字段数：symbol,price,volume,timestamp
const FieldCount = 4

// Record 单个 symbol 的行情快照，写入后不可变，更新时整体替换。
type Record struct {
	Symbol    string
	Price     decimal.Decimal
	Volume    int64
	Timestamp time.Time
}

// Equal reports whether two records carry the same values.
func (r Record) Equal(o Record) bool {
	return r.Symbol == o.Symbol &&
		r.Price.Equal(o.Price) &&
		r.Volume == o.Volume &&
		r.Timestamp.Equal(o.Timestamp)
}

// Validate checks the record fields are within range.
func (r Record) Validate() error {
	if err := ValidateSymbol(r.Symbol); err != nil {
		return err
	}
	if !r.Price.IsPositive() {
		return &ValidationError{Symbol: r.Symbol, Field: "price", Reason: "must be > 0, got " + r.Price.String()}
	}
	if r.Volume < 0 {
		return &ValidationError{Symbol: r.Symbol, Field: "volume", Reason: fmt.Sprintf("must be >= 0, got %d", r.Volume)}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Symbol: r.Symbol, Field: "timestamp", Reason: "is required"}
	}
	// FormatLine 输出 RFC3339，年份必须是四位数才能被 ParseTimestamp 读回
	if y := r.Timestamp.UTC().Year(); y < 0 || y > 9999 {
		return &ValidationError{Symbol: r.Symbol, Field: "timestamp", Reason: fmt.Sprintf("year %d out of range 0..9999", y)}
	}
	return nil
}

// ValidateSymbol 要求非空、全大写，只允许 A-Z 0-9 . - _
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return &ValidationError{Field: "symbol", Reason: "must not be empty"}
	}
	for _, c := range symbol {
		switch {
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.', c == '-', c == '_':
		default:
			return &ValidationError{Field: "symbol", Reason: fmt.Sprintf("%q must be uppercase alphanumeric", symbol)}
		}
	}
	return nil
}

// NormalizeSymbol trims whitespace and upper-cases user input.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp 支持 RFC3339、无时区的 ISO 时间（按 UTC）以及纯日期。
func ParseTimestamp(raw string) (time.Time, error) {
	var firstErr error
	for _, layout := range timestampLayouts {
		ts, err := time.Parse(layout, raw)
		if err == nil {
			return ts.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// ParseRecord builds a validated Record from raw field strings. Conversion
// failures come back as *ValidationError with the original error attached.
func ParseRecord(symbol, price, volume, timestamp string) (Record, error) {
	symbol = strings.TrimSpace(symbol)
	if err := ValidateSymbol(symbol); err != nil {
		return Record{}, err
	}
	p, err := decimal.NewFromString(strings.TrimSpace(price))
	if err != nil {
		return Record{}, &ValidationError{Symbol: symbol, Field: "price", Err: err}
	}
	v, err := strconv.ParseInt(strings.TrimSpace(volume), 10, 64)
	if err != nil {
		return Record{}, &ValidationError{Symbol: symbol, Field: "volume", Err: err}
	}
	ts, err := ParseTimestamp(strings.TrimSpace(timestamp))
	if err != nil {
		return Record{}, &ValidationError{Symbol: symbol, Field: "timestamp", Err: err}
	}
	rec := Record{Symbol: symbol, Price: p, Volume: v, Timestamp: ts}
	if err := rec.Validate(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

var errFieldCount = errors.New("wrong field count")

// ParseLine 解析一行 "symbol,price,volume,timestamp"。
func ParseLine(line string) (Record, error) {
	fields := strings.Split(line, ",")
	if len(fields) != FieldCount {
		return Record{}, fmt.Errorf("%w: want %d, got %d", errFieldCount, FieldCount, len(fields))
	}
	return ParseRecord(fields[0], fields[1], fields[2], fields[3])
}

// FormatLine is the inverse of ParseLine.
func FormatLine(r Record) string {
	return strings.Join([]string{
		r.Symbol,
		r.Price.String(),
		strconv.FormatInt(r.Volume, 10),
		r.Timestamp.UTC().Format(time.RFC3339Nano),
	}, ",")
}
