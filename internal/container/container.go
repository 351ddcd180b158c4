package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stock-lookup/config"
	"stock-lookup/infrastructure/logger"
	"stock-lookup/infrastructure/monitor"
	internalconfig "stock-lookup/internal/config"
	"stock-lookup/internal/feed"
	"stock-lookup/internal/lookup"
	"stock-lookup/internal/store"
)

// Container 依赖注入容器，管理所有组件的生命周期。
// 进程内唯一的 Store 在此创建并注入 Service，不使用包级全局变量。
type Container struct {
	cfgPath string

	cfgMu sync.RWMutex
	cfg   config.AppConfig

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor

	// 核心服务
	store   *store.Store
	service *lookup.Service

	sourceWatcher *internalconfig.SourceWatcher
	feedClient    *feed.Client

	// 生命周期管理
	lifecycle *LifecycleManager
}

// New 创建新的Container实例
func New(configPath string) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return NewWithConfig(configPath, cfg), nil
}

// NewWithConfig builds a container from an already loaded config. configPath
// may be empty, in which case config hot reload is disabled.
func NewWithConfig(configPath string, cfg config.AppConfig) *Container {
	return &Container{
		cfgPath:   configPath,
		cfg:       cfg,
		lifecycle: NewLifecycleManager(),
	}
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}
	c.buildCoreServices()
	if err := c.buildWatchers(); err != nil {
		return fmt.Errorf("build watchers failed: %w", err)
	}
	c.registerLifecycleComponents()
	c.logger.Info("container built successfully")
	return nil
}

func (c *Container) buildInfrastructure() error {
	cfg := c.Config()
	logCfg := logger.Config{
		Level:      cfg.Log.Level,
		Outputs:    cfg.Log.Outputs,
		OutputFile: cfg.Log.OutputFile,
		ErrorFile:  cfg.Log.ErrorFile,
		Format:     cfg.Log.Format,
	}

	var err error
	c.logger, err = logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}
	c.logger = c.logger.WithFields(map[string]interface{}{"env": cfg.Env})

	c.monitor = monitor.New(monitor.DefaultConfig())
	return nil
}

func (c *Container) buildCoreServices() {
	sink := c.logger.Sink()
	c.store = store.New(sink)
	c.service = lookup.NewService(c.store, c.monitor, sink)

	if url := c.Config().Feed.URL; url != "" {
		c.feedClient = feed.NewClient(url, c.service, c.monitor, sink)
		c.feedClient.ReconnectDelay = time.Duration(c.Config().Feed.ReconnectMs) * time.Millisecond
		c.feedClient.MaxRetries = c.Config().Feed.MaxRetries
	}
}

func (c *Container) buildWatchers() error {
	src := c.Config().Source
	if !src.Watch {
		return nil
	}
	w, err := internalconfig.NewSourceWatcher(src.Path, internalconfig.HotReloadConfig{
		Enabled:      true,
		CooldownTime: time.Duration(src.CooldownMs) * time.Millisecond,
	})
	if err != nil {
		return err
	}
	w.SetReloadHandler(func(path string) error {
		_, err := c.service.Reload(context.Background(), path)
		return err
	})
	w.SetErrorHandler(func(err error) {
		c.logger.LogError(err, map[string]interface{}{"component": "source_watcher"})
	})
	c.sourceWatcher = w
	return nil
}

func (c *Container) registerLifecycleComponents() {
	cfg := c.Config()
	if cfg.Metrics.Addr != "" {
		c.lifecycle.Register(&httpServerComponent{
			name:    "metrics_server",
			handler: c.monitor.Handler(),
			addr:    cfg.Metrics.Addr,
			logger:  c.logger,
		})
	}
	if c.sourceWatcher != nil {
		c.lifecycle.Register(&watcherComponent{w: c.sourceWatcher})
	}
	if c.feedClient != nil {
		c.lifecycle.Register(&runnerComponent{
			name:   "feed",
			run:    c.feedClient.Run,
			logger: c.logger,
		})
	}
	if c.cfgPath != "" {
		watcher := config.Watcher{
			Path: c.cfgPath,
			OnError: func(err error) {
				c.logger.LogError(err, map[string]interface{}{"component": "config_watcher"})
			},
		}
		c.lifecycle.Register(&runnerComponent{
			name:   "config_watcher",
			run:    func(ctx context.Context) error { return watcher.Start(ctx, c.applyConfig) },
			logger: c.logger,
		})
	}
}

// Start 先完成首次加载，再启动后台组件。首次加载的 I/O 失败是致命的。
func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")

	if _, err := c.Load(ctx); err != nil {
		return err
	}

	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	c.logger.Info("container started")
	return nil
}

// Load 从配置的数据源加载一次，不启动后台组件。
func (c *Container) Load(ctx context.Context) (store.LoadReport, error) {
	path := c.Config().Source.Path
	report, err := c.service.Reload(ctx, path)
	if err != nil {
		return report, fmt.Errorf("initial load failed: %w", err)
	}
	c.logger.Info(fmt.Sprintf("loaded %d records from %s (%d rejected)", report.Loaded, path, report.Rejected()))
	return report, nil
}

// Stop 停止组件，并在配置了 snapshot.path 时写出快照。
func (c *Container) Stop() error {
	c.logger.Info("stopping container...")

	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}

	if path := c.Config().Snapshot.Path; path != "" {
		if serr := c.service.Save(path); serr != nil {
			c.logger.LogError(serr, map[string]interface{}{"action": "snapshot", "path": path})
			if err == nil {
				err = serr
			}
		} else {
			c.logger.Info(fmt.Sprintf("snapshot written to %s (%d records)", path, c.store.Len()))
		}
	}

	c.logger.Close()
	return err
}

func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

// Service 返回查询服务
func (c *Container) Service() *lookup.Service { return c.service }

// Monitor exposes the metrics collector.
func (c *Container) Monitor() *monitor.Monitor { return c.monitor }

// Config returns the config currently in effect.
func (c *Container) Config() config.AppConfig {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return c.cfg
}

// applyConfig 配置文件变更：数据源路径变化时切换监听并立即重新加载。
// 日志、指标地址、推送源等需要重启才能生效。
func (c *Container) applyConfig(next config.AppConfig) {
	c.cfgMu.Lock()
	prev := c.cfg
	c.cfg = next
	c.cfgMu.Unlock()

	c.logger.Info("config reloaded")
	if next.Source.Path == prev.Source.Path {
		return
	}
	if c.sourceWatcher != nil {
		if err := c.sourceWatcher.Retarget(next.Source.Path); err != nil {
			c.logger.LogError(err, map[string]interface{}{"action": "retarget", "path": next.Source.Path})
		}
	}
	if _, err := c.service.Reload(context.Background(), next.Source.Path); err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "reload", "path": next.Source.Path})
	}
}

// watcherComponent 适配 SourceWatcher 到 Lifecycle
type watcherComponent struct {
	w *internalconfig.SourceWatcher
}

func (w *watcherComponent) Start(ctx context.Context) error { return w.w.Start(ctx) }
func (w *watcherComponent) Stop() error                     { return w.w.Stop() }
func (w *watcherComponent) Health() error                   { return nil }
