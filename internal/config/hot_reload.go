package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// HotReloadConfig 热更新配置
type HotReloadConfig struct {
	Enabled      bool          // 是否启用热更新
	CooldownTime time.Duration // 最后一次文件事件后的静默时间，合并连续写入
}

// DefaultHotReloadConfig 默认热更新配置
func DefaultHotReloadConfig() HotReloadConfig {
	return HotReloadConfig{
		Enabled:      true,
		CooldownTime: 500 * time.Millisecond,
	}
}

// SourceWatcher 监听数据源文件，变化后调用 reload handler。
// 监听的是文件所在目录：编辑器/同步工具常用 rename 替换文件，直接监听文件会丢失后续事件。
type SourceWatcher struct {
	config  HotReloadConfig
	watcher *fsnotify.Watcher

	mu            sync.RWMutex
	target        string
	dirs          map[string]bool
	lastReload    time.Time
	started       bool
	reloadHandler func(path string) error
	errorHandler  func(error)

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewSourceWatcher 创建数据源监听器
func NewSourceWatcher(path string, cfg HotReloadConfig) (*SourceWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return &SourceWatcher{
		config:   cfg,
		watcher:  watcher,
		target:   filepath.Clean(path),
		dirs:     make(map[string]bool),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}, nil
}

// SetReloadHandler 设置重载处理函数
func (h *SourceWatcher) SetReloadHandler(handler func(path string) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reloadHandler = handler
}

// SetErrorHandler receives watcher and reload errors; the watcher keeps running.
func (h *SourceWatcher) SetErrorHandler(handler func(error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errorHandler = handler
}

// Start 启动热更新监听
func (h *SourceWatcher) Start(ctx context.Context) error {
	if !h.config.Enabled {
		return nil
	}
	if err := h.addDir(h.Target()); err != nil {
		return err
	}
	h.mu.Lock()
	h.started = true
	h.mu.Unlock()
	go h.watch(ctx)
	return nil
}

// Retarget 切换监听的文件（配置变更时使用）。
func (h *SourceWatcher) Retarget(path string) error {
	path = filepath.Clean(path)
	if err := h.addDir(path); err != nil {
		return err
	}
	h.mu.Lock()
	h.target = path
	h.mu.Unlock()
	return nil
}

// Target 当前监听的文件
func (h *SourceWatcher) Target() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.target
}

// Stop 停止热更新
func (h *SourceWatcher) Stop() error {
	h.stopOnce.Do(func() { close(h.stopChan) })

	h.mu.RLock()
	started := h.started
	h.mu.RUnlock()
	if started {
		// 等待 goroutine 结束（带超时）
		select {
		case <-h.doneChan:
		case <-time.After(1 * time.Second):
		}
	}
	return h.watcher.Close()
}

// GetLastReloadTime 获取最后重载时间
func (h *SourceWatcher) GetLastReloadTime() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastReload
}

func (h *SourceWatcher) addDir(path string) error {
	dir := filepath.Dir(path)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dirs[dir] {
		return nil
	}
	if err := h.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	h.dirs[dir] = true
	return nil
}

// watch 监听文件变化，静默 CooldownTime 后触发一次重载
func (h *SourceWatcher) watch(ctx context.Context) {
	defer close(h.doneChan)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopChan:
			return
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != h.Target() {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				pending = time.After(h.config.CooldownTime)
			}
		case <-pending:
			pending = nil
			h.handleSourceChange()
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.reportError(fmt.Errorf("watcher error: %w", err))
		}
	}
}

// handleSourceChange 处理数据源变化
func (h *SourceWatcher) handleSourceChange() {
	h.mu.RLock()
	handler := h.reloadHandler
	target := h.target
	h.mu.RUnlock()

	if handler != nil {
		if err := handler(target); err != nil {
			h.reportError(fmt.Errorf("reload %s: %w", target, err))
			return
		}
	}

	h.mu.Lock()
	h.lastReload = time.Now()
	h.mu.Unlock()
}

func (h *SourceWatcher) reportError(err error) {
	h.mu.RLock()
	handler := h.errorHandler
	h.mu.RUnlock()
	if handler != nil {
		handler(err)
	}
}
