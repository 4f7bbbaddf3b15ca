package app

import (
	"os"
	"testing"
	"time"

	"github.com/gonewx/gekmascot/pkg/behavior"
	"github.com/gonewx/gekmascot/pkg/config"
	"github.com/gonewx/gekmascot/pkg/embedded"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	// 仓库根目录下的 data/ 即内置数据
	embedded.Init(os.DirFS("../.."))
	os.Exit(m.Run())
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	cfg.Manifest.Sources = nil
	cfg.Manifest.Persist = false
	return cfg
}

func TestLoadBuiltInConfig(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestNewAppStartsAsleepOnBaseManifest(t *testing.T) {
	a, err := NewApp(Options{Config: testConfig(t)})
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, behavior.Asleep, a.State())
	assert.Equal(t, "sleep", a.Mascot().Key())
	assert.Equal(t, "embed:data/manifest-base.json", a.manifestSource)
	require.NotNil(t, a.background)
	assert.Equal(t, "background", a.background.player.Key())
	assert.NotNil(t, a.mascot.plane.Texture(), "first frame is on screen")
}

func TestLayoutRefitsPlanes(t *testing.T) {
	a, err := NewApp(Options{Config: testConfig(t)})
	require.NoError(t, err)
	defer a.Close()

	w, h := a.Layout(400, 800)
	assert.Equal(t, 400, w)
	assert.Equal(t, 800, h)
	assert.InDelta(t, 0.5, a.camera.Aspect, 1e-9)

	// 吉祥物底边贴住屏幕底部
	_, y, _, ph, ok := a.mascot.plane.ScreenRect(a.camera, 400, 800)
	require.True(t, ok)
	assert.InDelta(t, 800, y+ph, 1e-6)

	// 背景铺满屏幕
	x, y, bw, bh, ok := a.background.plane.ScreenRect(a.camera, 400, 800)
	require.True(t, ok)
	assert.InDelta(t, 0, x, 1e-6)
	assert.InDelta(t, 0, y, 1e-6)
	assert.InDelta(t, 400, bw, 1e-6)
	assert.InDelta(t, 800, bh, 1e-6)
}

func TestInteractWakesMascot(t *testing.T) {
	a, err := NewApp(Options{Config: testConfig(t)})
	require.NoError(t, err)
	defer a.Close()

	a.Interact()
	assert.Equal(t, behavior.Waking, a.State())
	assert.Eventually(t, func() bool { return a.State() == behavior.Awake }, 3*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return a.Mascot().Key() == "idle" }, 3*time.Second, 10*time.Millisecond)
}

func TestNewAppWithoutManifest(t *testing.T) {
	cfg := testConfig(t)
	cfg.Manifest.Fallback = "embed:data/missing.json"
	_, err := NewApp(Options{Config: cfg})
	assert.Error(t, err)
}
