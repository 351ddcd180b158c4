package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env      string         `yaml:"env"`
	Source   SourceConfig   `yaml:"source"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Feed     FeedConfig     `yaml:"feed"`
	Report   ReportConfig   `yaml:"report"`
}

// SourceConfig 数据源（symbol,price,volume,timestamp 分隔文本）。
type SourceConfig struct {
	Path       string `yaml:"path"`
	Watch      bool   `yaml:"watch"`      // 文件变更时自动重新加载
	CooldownMs int    `yaml:"cooldownMs"` // 两次重载之间的最小间隔（毫秒）
}

type SnapshotConfig struct {
	Path string `yaml:"path"` // 为空则退出时不写快照
}

type LogConfig struct {
	Level      string   `yaml:"level"`
	Outputs    []string `yaml:"outputs"`
	OutputFile string   `yaml:"outputFile"`
	ErrorFile  string   `yaml:"errorFile"`
	Format     string   `yaml:"format"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // 留空则关闭 /metrics
}

// FeedConfig 可选的 WebSocket 推送源，每条文本消息为一行或多行记录。
type FeedConfig struct {
	URL         string `yaml:"url"`
	ReconnectMs int    `yaml:"reconnectMs"`
	MaxRetries  int    `yaml:"maxRetries"`
}

type ReportConfig struct {
	LowVolumeThreshold int64 `yaml:"lowVolumeThreshold"`
}

const (
	defaultCooldownMs  = 500
	defaultReconnectMs = 3000
	defaultMaxRetries  = 5
)

// Load reads YAML config from path, fills defaults and applies basic validation.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides deployment fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("STOCK_SOURCE_PATH"); v != "" {
		cfg.Source.Path = v
	}
	if v := os.Getenv("STOCK_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("STOCK_FEED_URL"); v != "" {
		cfg.Feed.URL = v
	}
	return cfg, Validate(cfg)
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Source.CooldownMs == 0 {
		cfg.Source.CooldownMs = defaultCooldownMs
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if len(cfg.Log.Outputs) == 0 {
		cfg.Log.Outputs = []string{"stdout"}
	}
	if cfg.Feed.ReconnectMs == 0 {
		cfg.Feed.ReconnectMs = defaultReconnectMs
	}
	if cfg.Feed.MaxRetries == 0 {
		cfg.Feed.MaxRetries = defaultMaxRetries
	}
}
