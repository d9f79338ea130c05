package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type reloads struct {
	mu   sync.Mutex
	seen []*Config
}

func (r *reloads) add(cfg *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, cfg)
}

func (r *reloads) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func (r *reloads) last() *Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen[len(r.seen)-1]
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	defer goleak.VerifyNone(t)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "tablekeeper.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"data_dir": "`+tmpDir+`"}`), 0644))

	got := &reloads{}
	w, err := NewWatcher(configPath, 20*time.Millisecond, got.add)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(configPath, []byte(`{
		"data_dir": "`+tmpDir+`",
		"approval": {"expiry_seconds": 120, "sweep_schedule": "@every 5s"}
	}`), 0644))

	require.Eventually(t, func() bool { return got.count() > 0 }, 3*time.Second, 10*time.Millisecond)
	cfg := got.last()
	assert.Equal(t, 120, cfg.Approval.ExpirySeconds)
	assert.Equal(t, "@every 5s", cfg.Approval.SweepSchedule)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}

func TestWatcher_SkipsInvalidChanges(t *testing.T) {
	defer goleak.VerifyNone(t)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "tablekeeper.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{}`), 0644))

	got := &reloads{}
	w, err := NewWatcher(configPath, 20*time.Millisecond, got.add)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(configPath, []byte(`{not json`), 0644))
	require.NoError(t, os.WriteFile(configPath, []byte(`{"approval": {"expiry_seconds": -1}}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "other.json"), []byte(`{}`), 0644))

	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, got.count())
}

func TestNewWatcher_Validates(t *testing.T) {
	_, err := NewWatcher("", 0, func(*Config) {})
	assert.Error(t, err)

	_, err = NewWatcher("tablekeeper.json", 0, nil)
	assert.Error(t, err)
}
