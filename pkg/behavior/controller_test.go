package behavior

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gonewx/gekmascot/internal/clock"
	"github.com/gonewx/gekmascot/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSequencer struct {
	mu     sync.Mutex
	calls  []string
	errs   map[string]error
	frames map[string]int
}

func newFakeSequencer() *fakeSequencer {
	return &fakeSequencer{
		errs: map[string]error{},
		frames: map[string]int{
			"sleep":           2,
			"wake":            3,
			"idle":            2,
			"sleepTransition": 6,
		},
	}
}

func (f *fakeSequencer) SwitchTo(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key)
	return f.errs[key]
}

func (f *fakeSequencer) FrameCount(key string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.frames[key]
	if !ok {
		return 0, errors.New("unknown")
	}
	return n, nil
}

func (f *fakeSequencer) FPS() float64 { return 24 }

func (f *fakeSequencer) switched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

const (
	wakeDuration  = 125 * time.Millisecond // 3 帧 @ 24fps
	sleepDuration = 250 * time.Millisecond // 6 帧 @ 24fps
	idleTimeout   = 10 * time.Second
)

func newTestController(t *testing.T, seq *fakeSequencer, opts ...Option) (*Controller, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Unix(0, 0))
	cfg := config.Default().Behavior
	cfg.IdleTimeout = config.Duration(idleTimeout)

	opts = append([]Option{WithClock(clk), WithAsync(func(f func()) { f() })}, opts...)
	c := New(seq, cfg, opts...)
	t.Cleanup(c.Dispose)
	require.NoError(t, c.Start(context.Background()))
	return c, clk
}

func TestStartsAsleep(t *testing.T) {
	seq := newFakeSequencer()
	c, _ := newTestController(t, seq)
	assert.Equal(t, Asleep, c.State())
	assert.Equal(t, []string{"sleep"}, seq.switched())
}

func TestStartFailure(t *testing.T) {
	seq := newFakeSequencer()
	seq.errs["sleep"] = errors.New("no frames")
	c := New(seq, config.Default().Behavior)
	defer c.Dispose()
	assert.Error(t, c.Start(context.Background()))

	c.Interact()
	assert.Equal(t, Asleep, c.State(), "interaction before start is ignored")
}

func TestWakeThenIdleBackToSleep(t *testing.T) {
	seq := newFakeSequencer()
	c, clk := newTestController(t, seq)

	c.Interact()
	assert.Equal(t, Waking, c.State())
	assert.Equal(t, []string{"sleep", "wake"}, seq.switched())

	clk.Advance(wakeDuration - time.Millisecond)
	assert.Equal(t, Waking, c.State())
	clk.Advance(time.Millisecond)
	assert.Equal(t, Awake, c.State())
	assert.Equal(t, []string{"sleep", "wake", "idle"}, seq.switched())

	clk.Advance(idleTimeout - wakeDuration - time.Millisecond)
	assert.Equal(t, Awake, c.State())
	clk.Advance(time.Millisecond)
	assert.Equal(t, FallingAsleep, c.State())

	clk.Advance(sleepDuration)
	assert.Equal(t, Asleep, c.State())
	assert.Equal(t, []string{"sleep", "wake", "idle", "sleepTransition", "sleep"}, seq.switched())
	assert.Zero(t, clk.Pending())
}

func TestInteractionResetsIdleTimer(t *testing.T) {
	seq := newFakeSequencer()
	c, clk := newTestController(t, seq)

	c.Interact()
	clk.Advance(9 * time.Second)
	c.Interact()
	clk.Advance(9 * time.Second)
	assert.Equal(t, Awake, c.State())

	clk.Advance(time.Second)
	assert.Equal(t, FallingAsleep, c.State())
}

func TestWakeIsIdempotentWhileAwake(t *testing.T) {
	seq := newFakeSequencer()
	c, clk := newTestController(t, seq)

	c.Interact()
	c.Interact()
	clk.Advance(wakeDuration)
	c.Interact()

	assert.Equal(t, Awake, c.State())
	assert.Equal(t, []string{"sleep", "wake", "idle"}, seq.switched())
}

func TestInteractionWhileFallingAsleepWakesAgain(t *testing.T) {
	seq := newFakeSequencer()
	c, clk := newTestController(t, seq)

	c.Interact()
	clk.Advance(idleTimeout)
	require.Equal(t, FallingAsleep, c.State())

	clk.Advance(sleepDuration / 2)
	c.Interact()
	assert.Equal(t, Waking, c.State())

	// 入睡动画原本的结束时间已过，过期的计时器不能把状态改回 Asleep
	clk.Advance(wakeDuration)
	assert.Equal(t, Awake, c.State())
	assert.Equal(t, []string{"sleep", "wake", "idle", "sleepTransition", "wake", "idle"}, seq.switched())
}

func TestWakeFailureFallsBackToIdle(t *testing.T) {
	seq := newFakeSequencer()
	seq.errs["wake"] = errors.New("first frame unavailable")
	c, _ := newTestController(t, seq)

	c.Interact()
	assert.Equal(t, Awake, c.State())
	assert.Equal(t, []string{"sleep", "wake", "idle"}, seq.switched())
}

func TestSleepTransitionFailureFallsBackToSleep(t *testing.T) {
	seq := newFakeSequencer()
	seq.errs["sleepTransition"] = errors.New("first frame unavailable")
	c, clk := newTestController(t, seq)

	c.Interact()
	clk.Advance(idleTimeout)
	assert.Equal(t, Asleep, c.State())
	assert.Equal(t, []string{"sleep", "wake", "idle", "sleepTransition", "sleep"}, seq.switched())
}

func TestFailedIdleSwitchRetriedOnInteraction(t *testing.T) {
	seq := newFakeSequencer()
	seq.errs["idle"] = errors.New("first frame unavailable")
	c, clk := newTestController(t, seq)

	c.Interact()
	clk.Advance(wakeDuration)
	assert.Equal(t, Awake, c.State())
	assert.Equal(t, []string{"sleep", "wake", "idle"}, seq.switched())

	c.Interact()
	assert.Equal(t, []string{"sleep", "wake", "idle", "idle"}, seq.switched(), "still failing, retried")

	seq.mu.Lock()
	delete(seq.errs, "idle")
	seq.mu.Unlock()
	c.Interact()
	c.Interact()
	assert.Equal(t, []string{"sleep", "wake", "idle", "idle", "idle"}, seq.switched(), "no retry once shown")
	assert.Equal(t, Awake, c.State())
}

func TestPendingRetryDroppedOnTransition(t *testing.T) {
	seq := newFakeSequencer()
	c, clk := newTestController(t, seq)

	c.Interact()
	clk.Advance(idleTimeout)
	require.Equal(t, FallingAsleep, c.State())
	seq.mu.Lock()
	seq.errs["sleep"] = errors.New("first frame unavailable")
	seq.mu.Unlock()
	clk.Advance(sleepDuration)
	require.Equal(t, Asleep, c.State())

	// 唤醒本身会切换序列，待重试的 sleep 作废
	c.Interact()
	clk.Advance(wakeDuration)
	c.Interact()
	assert.Equal(t, Awake, c.State())
	assert.Equal(t, []string{"sleep", "wake", "idle", "sleepTransition", "sleep", "wake", "idle"}, seq.switched())
}

func TestStateListener(t *testing.T) {
	var changes []string
	seq := newFakeSequencer()
	c, clk := newTestController(t, seq, WithStateListener(func(from, to State) {
		changes = append(changes, from.String()+">"+to.String())
	}))

	c.Interact()
	clk.Advance(idleTimeout + sleepDuration)
	assert.Equal(t, Asleep, c.State())
	assert.Equal(t, []string{
		"asleep>waking",
		"waking>awake",
		"awake>falling-asleep",
		"falling-asleep>asleep",
	}, changes)
}

func TestDisposeStopsTimers(t *testing.T) {
	seq := newFakeSequencer()
	c, clk := newTestController(t, seq)

	c.Interact()
	c.Dispose()
	assert.Zero(t, clk.Pending())

	clk.Advance(time.Minute)
	c.Interact()
	assert.Equal(t, Waking, c.State())
	assert.Equal(t, []string{"sleep", "wake"}, seq.switched())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "falling-asleep", FallingAsleep.String())
	assert.Equal(t, "State(9)", State(9).String())
}
