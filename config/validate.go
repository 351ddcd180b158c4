package config

import (
	"errors"
	"fmt"
	"net/url"
)

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }

// Validate ensures required fields are present and within range.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Source.Path == "" {
		return ErrInvalid("source.path is required (or STOCK_SOURCE_PATH)")
	}
	if cfg.Source.CooldownMs < 0 {
		return ErrInvalid("source.cooldownMs must be >= 0")
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalid(fmt.Sprintf("log.level %q must be one of debug/info/warn/error", cfg.Log.Level))
	}
	switch cfg.Log.Format {
	case "json", "console":
	default:
		return ErrInvalid(fmt.Sprintf("log.format %q must be json or console", cfg.Log.Format))
	}
	for _, out := range cfg.Log.Outputs {
		if out != "stdout" && out != "file" {
			return ErrInvalid(fmt.Sprintf("log.outputs entry %q must be stdout or file", out))
		}
		if out == "file" && cfg.Log.OutputFile == "" {
			return ErrInvalid("log.outputFile is required when outputs contains file")
		}
	}
	if cfg.Feed.URL != "" {
		u, err := url.Parse(cfg.Feed.URL)
		if err != nil {
			return fmt.Errorf("feed.url: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return ErrInvalid(fmt.Sprintf("feed.url scheme %q must be ws or wss", u.Scheme))
		}
	}
	if cfg.Feed.ReconnectMs < 0 {
		return ErrInvalid("feed.reconnectMs must be >= 0")
	}
	if cfg.Feed.MaxRetries < 0 {
		return ErrInvalid("feed.maxRetries must be >= 0")
	}
	if cfg.Report.LowVolumeThreshold < 0 {
		return ErrInvalid("report.lowVolumeThreshold must be >= 0")
	}
	return nil
}
