package store

import (
	"bufio"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
)

const (
	maxLineBytes = 1 << 20
	utf8BOM      = "\ufeff"
)

// EventSink 接收结构化事件（由容器绑定到 zap 日志）。
type EventSink func(string, map[string]interface{})

// Store 维护 symbol -> Record 映射。
// 单把读写锁：Set/Load/Delete 与 Get 互斥，读之间并发。
type Store struct {
	mu      sync.RWMutex
	records map[string]Record

	sink EventSink
}

// LoadReport 汇总一次加载的结果。
type LoadReport struct {
	Source     string
	Loaded     int
	Duplicates int
	Errors     []*ParseError
}

// Rejected returns the number of malformed lines skipped.
func (r LoadReport) Rejected() int { return len(r.Errors) }

func New(sink EventSink) *Store {
	return &Store{
		records: make(map[string]Record),
		sink:    sink,
	}
}

// Get 返回 symbol 对应的记录；不存在时返回 *NotFoundError，绝不返回默认值。
func (s *Store) Get(symbol string) (Record, error) {
	s.mu.RLock()
	rec, ok := s.records[symbol]
	s.mu.RUnlock()
	if !ok {
		return Record{}, &NotFoundError{Symbol: symbol}
	}
	return rec, nil
}

// Set 插入或整体替换一条记录。校验失败时映射保持不变。
func (s *Store) Set(symbol string, rec Record) error {
	if err := ValidateSymbol(symbol); err != nil {
		return err
	}
	if rec.Symbol != symbol {
		return &ValidationError{Symbol: symbol, Field: "symbol", Reason: "record symbol " + rec.Symbol + " does not match key"}
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	_, replaced := s.records[symbol]
	s.records[symbol] = rec
	s.mu.Unlock()
	s.logEvent("record_set", map[string]interface{}{
		"symbol":    symbol,
		"price":     rec.Price.String(),
		"volume":    rec.Volume,
		"timestamp": rec.Timestamp,
		"replaced":  replaced,
	})
	return nil
}

// Delete removes symbol and reports whether it was present.
func (s *Store) Delete(symbol string) bool {
	s.mu.Lock()
	_, ok := s.records[symbol]
	delete(s.records, symbol)
	count := len(s.records)
	s.mu.Unlock()
	if ok {
		s.logEvent("record_removed", map[string]interface{}{
			"symbol":  symbol,
			"records": count,
		})
	}
	return ok
}

// Len 当前记录数
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Symbols returns all keys in ascending order.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.records))
	for sym := range s.records {
		out = append(out, sym)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Snapshot 返回按 symbol 排序的记录副本。
func (s *Store) Snapshot() []Record {
	s.mu.RLock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Load 从分隔文本读取记录并整体替换当前映射。
// 格式错误的行被跳过并记入 report.Errors；读取失败返回 *SourceError 且映射不变。
// 同一 source 中重复的 symbol 以最后一行为准。
func (s *Store) Load(ctx context.Context, r io.Reader, source string) (LoadReport, error) {
	report := LoadReport{Source: source}
	next := make(map[string]Record)

	br := bufio.NewReaderSize(r, 64*1024)
	line := 0
	for {
		raw, tooLong, err := readLine(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return report, &SourceError{Source: source, Line: line, Err: err}
		}
		if err := ctx.Err(); err != nil {
			return report, &SourceError{Source: source, Line: line, Err: err}
		}
		line++
		text := string(raw)
		if line == 1 {
			text = strings.TrimPrefix(text, utf8BOM)
		}
		text = strings.TrimSpace(text)
		if tooLong {
			text = text[:min(len(text), 64)] + "..."
			s.rejectLine(&report, &ParseError{Source: source, Line: line, Text: text, Err: errLineTooLong})
			continue
		}
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		rec, err := ParseLine(text)
		if err != nil {
			s.rejectLine(&report, &ParseError{Source: source, Line: line, Text: text, Err: err})
			continue
		}
		if _, dup := next[rec.Symbol]; dup {
			report.Duplicates++
		}
		next[rec.Symbol] = rec
		report.Loaded++
	}

	s.mu.Lock()
	s.records = next
	count := len(s.records)
	s.mu.Unlock()

	s.logEvent("source_loaded", map[string]interface{}{
		"source":     source,
		"loaded":     report.Loaded,
		"rejected":   report.Rejected(),
		"duplicates": report.Duplicates,
		"records":    count,
	})
	return report, nil
}

func (s *Store) rejectLine(report *LoadReport, perr *ParseError) {
	report.Errors = append(report.Errors, perr)
	s.logEvent("parse_error", map[string]interface{}{
		"source": perr.Source,
		"line":   perr.Line,
		"text":   perr.Text,
		"error":  perr.Err.Error(),
	})
}

// readLine 读取一行（不含换行符）。超过 maxLineBytes 的行会被读到换行为止，
// 只保留开头 maxLineBytes 字节并返回 tooLong=true，下一次调用从下一行开始。
func readLine(br *bufio.Reader) ([]byte, bool, error) {
	var buf []byte
	tooLong := false
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err != nil {
			if err == io.EOF && (len(buf) > 0 || tooLong) {
				return buf, tooLong, nil
			}
			return buf, tooLong, err
		}
		if !tooLong {
			if len(buf)+len(chunk) > maxLineBytes {
				tooLong = true
				if rest := maxLineBytes - len(buf); rest > 0 {
					buf = append(buf, chunk[:rest]...)
				}
			} else {
				buf = append(buf, chunk...)
			}
		}
		if !isPrefix {
			return buf, tooLong, nil
		}
	}
}

// WriteTo 以 Load 可读取的格式输出全部记录（按 symbol 排序）。
func (s *Store) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var total int64
	for _, rec := range s.Snapshot() {
		n, err := bw.WriteString(FormatLine(rec) + "\n")
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, bw.Flush()
}

func (s *Store) logEvent(event string, fields map[string]interface{}) {
	if s == nil || s.sink == nil {
		return
	}
	s.sink(event, fields)
}
