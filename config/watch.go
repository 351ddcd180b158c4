package config

import (
	"context"
	"os"
	"time"
)

// Watcher polls the config file mtime and re-loads it on change. Invalid
// configs are reported through OnError and otherwise ignored, so the running
// process keeps the last good config.
type Watcher struct {
	Path     string
	Interval time.Duration
	OnError  func(error)
}

// Start blocks until ctx is done; callback receives the latest valid config.
func (w Watcher) Start(ctx context.Context, onUpdate func(AppConfig)) error {
	if w.Interval <= 0 {
		w.Interval = 2 * time.Second
	}
	// 以启动时的 mtime 为基准，避免启动后立即重复应用
	var lastMod time.Time
	if info, err := readFileInfo(w.Path); err == nil {
		lastMod = info.ModTime()
	}
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			info, err := readFileInfo(w.Path)
			if err != nil {
				continue
			}
			if !info.ModTime().After(lastMod) {
				continue
			}
			lastMod = info.ModTime()
			cfg, err := LoadWithEnvOverrides(w.Path)
			if err != nil {
				if w.OnError != nil {
					w.OnError(err)
				}
				continue
			}
			if onUpdate != nil {
				onUpdate(cfg)
			}
		}
	}
}

// readFileInfo is extracted for testing/mocking.
var readFileInfo = func(path string) (info interface{ ModTime() time.Time }, err error) {
	return os.Stat(path)
}
