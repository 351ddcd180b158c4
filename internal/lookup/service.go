// Package lookup is the caller-facing façade over a store.Store.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"stock-lookup/internal/store"
)

// Recorder 指标记录接口，由 infrastructure/monitor.Monitor 实现。
type Recorder interface {
	RecordLookup(result string)
	RecordSet(ok bool)
	RecordLoad(seconds float64, parseErrors int, err error)
	SetRecordCount(n int)
}

// Result is what callers see from Lookup. A miss is a normal outcome,
// reported with Found=false and a human readable Message.
type Result struct {
	Symbol  string
	Found   bool
	Record  store.Record
	Message string
}

// Service 持有唯一的 Store 引用，不维护其他状态。
type Service struct {
	store   *store.Store
	metrics Recorder
	sink    store.EventSink
}

// NewService wires a service around st. rec and sink may be nil.
func NewService(st *store.Store, rec Recorder, sink store.EventSink) *Service {
	return &Service{store: st, metrics: rec, sink: sink}
}

// Store exposes the underlying store.
func (s *Service) Store() *store.Store { return s.store }

// Lookup 查询 symbol；未命中转换为 Found=false 的结果，而不是错误。
// 仅当 symbol 本身不合法时返回 *store.ValidationError。
func (s *Service) Lookup(symbol string) (Result, error) {
	sym := store.NormalizeSymbol(symbol)
	if err := store.ValidateSymbol(sym); err != nil {
		s.recordLookup("invalid")
		return Result{Symbol: sym}, err
	}
	rec, err := s.store.Get(sym)
	if err != nil {
		var nf *store.NotFoundError
		if errors.As(err, &nf) {
			s.recordLookup("miss")
			s.logEvent("lookup_miss", map[string]interface{}{"symbol": sym})
			return Result{Symbol: sym, Message: fmt.Sprintf("no data for symbol %s", sym)}, nil
		}
		return Result{Symbol: sym}, err
	}
	s.recordLookup("hit")
	return Result{Symbol: sym, Found: true, Record: rec}, nil
}

// Set 以 symbol 为键写入记录；symbol 按 Lookup 的方式规范化。
// rec.Symbol 与键不一致或字段越界时返回 *store.ValidationError。
func (s *Service) Set(symbol string, rec store.Record) error {
	err := s.store.Set(store.NormalizeSymbol(symbol), rec)
	if s.metrics != nil {
		s.metrics.RecordSet(err == nil)
		if err == nil {
			s.metrics.SetRecordCount(s.store.Len())
		}
	}
	return err
}

// Remove 删除 symbol，返回是否存在过。symbol 非法时返回 *store.ValidationError。
func (s *Service) Remove(symbol string) (bool, error) {
	sym := store.NormalizeSymbol(symbol)
	if err := store.ValidateSymbol(sym); err != nil {
		return false, err
	}
	removed := s.store.Delete(sym)
	if s.metrics != nil {
		s.metrics.SetRecordCount(s.store.Len())
	}
	return removed, nil
}

// Reload 从文件重新加载。打开失败返回 *store.SourceError（Line=0）。
func (s *Service) Reload(ctx context.Context, path string) (store.LoadReport, error) {
	f, err := os.Open(path)
	if err != nil {
		err = &store.SourceError{Source: path, Err: err}
		s.recordLoad(0, store.LoadReport{Source: path}, err)
		return store.LoadReport{Source: path}, err
	}
	defer f.Close()
	return s.ReloadFrom(ctx, f, path)
}

// ReloadFrom loads from an arbitrary reader; source names it in errors.
func (s *Service) ReloadFrom(ctx context.Context, r io.Reader, source string) (store.LoadReport, error) {
	start := time.Now()
	report, err := s.store.Load(ctx, r, source)
	s.recordLoad(time.Since(start).Seconds(), report, err)
	return report, err
}

// Save 将当前映射写入 path（先写临时文件再 rename）。
func (s *Service) Save(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	// CreateTemp 使用 0600；沿用已有文件的权限，否则 0644
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod snapshot %s: %w", path, err)
	}
	if _, err := s.store.WriteTo(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close snapshot %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename snapshot %s: %w", path, err)
	}
	return nil
}

// Report 输出简单的文本报表。
func (s *Service) Report(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "Stock Report"); err != nil {
		return err
	}
	for _, rec := range s.store.Snapshot() {
		_, err := fmt.Fprintf(w, "%s -> price=%s volume=%d at=%s\n",
			rec.Symbol, rec.Price.String(), rec.Volume, rec.Timestamp.UTC().Format(time.RFC3339))
		if err != nil {
			return err
		}
	}
	return nil
}

// LowVolume returns the symbols whose volume is below threshold, sorted.
func (s *Service) LowVolume(threshold int64) []string {
	var out []string
	for _, rec := range s.store.Snapshot() {
		if rec.Volume < threshold {
			out = append(out, rec.Symbol)
		}
	}
	return out
}

func (s *Service) recordLookup(result string) {
	if s.metrics != nil {
		s.metrics.RecordLookup(result)
	}
}

func (s *Service) recordLoad(seconds float64, report store.LoadReport, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordLoad(seconds, report.Rejected(), err)
	if err == nil {
		s.metrics.SetRecordCount(s.store.Len())
	}
}

func (s *Service) logEvent(event string, fields map[string]interface{}) {
	if s.sink != nil {
		s.sink(event, fields)
	}
}
