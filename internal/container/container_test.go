package container

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-lookup/config"
	"stock-lookup/infrastructure/logger"
	"stock-lookup/internal/store"
)

func testConfig(t *testing.T) (config.AppConfig, string) {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "quotes.csv")
	require.NoError(t, os.WriteFile(src, []byte("AAPL,150.25,1000,2024-01-01T00:00:00\nBAD,notanumber,1000,2024-01-01\n"), 0o644))
	return config.AppConfig{
		Env:      "test",
		Source:   config.SourceConfig{Path: src, Watch: true, CooldownMs: 20},
		Snapshot: config.SnapshotConfig{Path: filepath.Join(dir, "snapshot.csv")},
		Log:      config.LogConfig{Level: "error", Format: "json", Outputs: []string{"stdout"}},
		Metrics:  config.MetricsConfig{Addr: "127.0.0.1:0"},
	}, dir
}

func TestContainerLifecycle(t *testing.T) {
	cfg, dir := testConfig(t)
	c := NewWithConfig("", cfg)
	require.NoError(t, c.Build())
	require.NoError(t, c.Start(context.Background()))

	res, err := c.Service().Lookup("AAPL")
	require.NoError(t, err)
	assert.True(t, res.Found)
	require.NoError(t, c.HealthCheck())

	// 修改数据源，watcher 触发重新加载
	require.NoError(t, os.WriteFile(cfg.Source.Path, []byte("MSFT,410,5,2024-01-02\n"), 0o644))
	require.Eventually(t, func() bool {
		r, err := c.Service().Lookup("MSFT")
		return err == nil && r.Found
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, c.Stop())

	raw, err := os.ReadFile(filepath.Join(dir, "snapshot.csv"))
	require.NoError(t, err)
	assert.Equal(t, "MSFT,410,5,2024-01-02T00:00:00Z\n", string(raw))
}

func TestContainerLoadThenStopWithoutStart(t *testing.T) {
	cfg, dir := testConfig(t)
	c := NewWithConfig("", cfg)
	require.NoError(t, c.Build())

	report, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Loaded)

	removed, err := c.Service().Remove("AAPL")
	require.NoError(t, err)
	assert.True(t, removed)
	require.NoError(t, c.Stop(), "components that never started stop cleanly")

	raw, err := os.ReadFile(filepath.Join(dir, "snapshot.csv"))
	require.NoError(t, err)
	assert.Empty(t, string(raw))
}

func TestContainerInitialLoadFailureIsFatal(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Source.Path = filepath.Join(t.TempDir(), "missing.csv")
	cfg.Source.Watch = false
	c := NewWithConfig("", cfg)
	require.NoError(t, c.Build())

	err := c.Start(context.Background())
	var serr *store.SourceError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, cfg.Source.Path, serr.Source)
}

func TestApplyConfigSwitchesSource(t *testing.T) {
	cfg, dir := testConfig(t)
	cfg.Metrics.Addr = ""
	c := NewWithConfig("", cfg)
	require.NoError(t, c.Build())
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	other := filepath.Join(dir, "other.csv")
	require.NoError(t, os.WriteFile(other, []byte("GOOG,140,1,2024-01-01\n"), 0o644))
	next := cfg
	next.Source.Path = other
	c.applyConfig(next)

	res, err := c.Service().Lookup("GOOG")
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, other, c.Config().Source.Path)
}

type fakeComponent struct {
	started, stopped bool
	startErr         error
}

func (f *fakeComponent) Start(context.Context) error {
	f.started = true
	return f.startErr
}

func (f *fakeComponent) Stop() error {
	f.stopped = true
	return nil
}

func (f *fakeComponent) Health() error { return nil }

func TestLifecycleManagerRollsBackOnStartFailure(t *testing.T) {
	m := NewLifecycleManager()
	first := &fakeComponent{}
	second := &fakeComponent{startErr: errors.New("nope")}
	m.Register(first)
	m.Register(second)

	err := m.StartAll(context.Background())
	require.Error(t, err)
	assert.True(t, first.stopped, "already started components must be stopped")
}

func TestRunnerComponentStopsOnCancel(t *testing.T) {
	r := &runnerComponent{
		name: "block",
		run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		logger: logger.NewNop(),
	}
	assert.Error(t, r.Health())
	require.NoError(t, r.Start(context.Background()))
	assert.NoError(t, r.Health())
	require.NoError(t, r.Stop())
	assert.Error(t, r.Health())
}
