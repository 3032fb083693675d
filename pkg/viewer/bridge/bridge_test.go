package bridge

import (
	"errors"
	"sort"
	"testing"
	"time"

	"medviewer-be/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTimer struct {
	at      time.Duration
	fn      func()
	stopped bool
	fired   bool
	clock   *fakeClock
}

func (t *fakeTimer) Stop() bool {
	if t.clock.leakyStop {
		return false
	}
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

// fakeClock fires timers only on Advance. With leakyStop, Stop has no effect,
// like a timer that already fired and is queued on the loop.
type fakeClock struct {
	now       time.Duration
	timers    []*fakeTimer
	leakyStop bool
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	t := &fakeTimer{at: c.now + d, fn: fn, clock: c}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now += d
	due := make([]*fakeTimer, 0)
	for _, t := range c.timers {
		if !t.fired && !t.stopped && t.at <= c.now {
			due = append(due, t)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].at < due[j].at })
	for _, t := range due {
		t.fired = true
		t.fn()
	}
}

type recordingPublisher struct {
	deltas []map[string]interface{}
}

func (p *recordingPublisher) PublishState(_ string, delta map[string]interface{}) {
	p.deltas = append(p.deltas, delta)
}

func newBridge() (*Bridge, *store.State, *recordingPublisher, *fakeClock) {
	pub := &recordingPublisher{}
	st := store.NewState("test", pub)
	clock := &fakeClock{}
	return New(st, clock, DefaultDebounce, nil), st, pub, clock
}

func TestContinuousWritesCollapseToOneFlush(t *testing.T) {
	b, st, pub, clock := newBridge()

	for i := 1; i <= 5; i++ {
		require.True(t, b.Interact(store.KeyPosition, []float64{float64(i), 0, 0}))
		v, _ := st.Get(store.KeyPosition)
		assert.Equal(t, []float64{float64(i), 0, 0}, v, "value must be written immediately")
		clock.Advance(50 * time.Millisecond)
	}
	assert.Empty(t, pub.deltas)
	assert.True(t, b.Pending())

	clock.Advance(DefaultDebounce)

	require.Len(t, pub.deltas, 1)
	assert.Equal(t, []float64{5, 0, 0}, pub.deltas[0][store.KeyPosition])
	assert.False(t, b.Pending())
}

func TestEachWriteRestartsWindow(t *testing.T) {
	b, _, pub, clock := newBridge()

	b.Interact(store.KeyPosition, []float64{1, 0, 0})
	clock.Advance(250 * time.Millisecond)
	b.Interact(store.KeyPosition, []float64{2, 0, 0})
	clock.Advance(250 * time.Millisecond)
	assert.Empty(t, pub.deltas)

	clock.Advance(60 * time.Millisecond)
	assert.Len(t, pub.deltas, 1)
}

func TestEndInteractionFlushesImmediately(t *testing.T) {
	b, _, pub, clock := newBridge()

	b.Interact(store.KeyPosition, []float64{1, 0, 0})
	b.Interact(store.KeyPosition, []float64{2, 0, 0})
	b.EndInteraction(map[string]interface{}{store.KeyPosition: []float64{3, 0, 0}})

	require.Len(t, pub.deltas, 1)
	assert.Equal(t, []float64{3, 0, 0}, pub.deltas[0][store.KeyPosition])

	clock.Advance(time.Second)
	assert.Len(t, pub.deltas, 1, "cancelled debounce must not flush again")
}

func TestPublishIsImmediate(t *testing.T) {
	b, _, pub, _ := newBridge()

	b.Publish(store.KeyBusy, true)
	b.Publish(store.KeyBusy, false)

	require.Len(t, pub.deltas, 2)
	assert.Equal(t, true, pub.deltas[0][store.KeyBusy])
	assert.Equal(t, false, pub.deltas[1][store.KeyBusy])
}

func TestNoPingPong(t *testing.T) {
	b, _, _, _ := newBridge()

	applied := 0
	echoes := 0
	b.Bind(store.KeyPosition, func(v interface{}) (interface{}, error) {
		applied++
		// applying moves the cursor, which raises an interaction callback
		if b.Interact(store.KeyPosition, v) {
			echoes++
		}
		return v, nil
	})

	t.Run("external write applies once without echo", func(t *testing.T) {
		require.NoError(t, b.SetExternal(store.KeyPosition, []float64{7, 7, 7}))
		assert.Equal(t, 1, applied)
		assert.Equal(t, 0, echoes)
		assert.False(t, b.Pending())
	})

	t.Run("interaction write does not re-apply", func(t *testing.T) {
		require.True(t, b.Interact(store.KeyPosition, []float64{8, 8, 8}))
		assert.Equal(t, 1, applied)
	})

	assert.Equal(t, Idle, b.Guard(store.KeyPosition))
}

func TestExternalWriteDuringInteractionIsSuppressed(t *testing.T) {
	b, st, _, _ := newBridge()

	applied := 0
	b.Bind(store.KeyNormals, func(v interface{}) (interface{}, error) {
		applied++
		return v, nil
	})

	// an interaction handler that reacts by forwarding to the UI side
	var forwarded error
	st.OnChange(func(_ string, v interface{}) {
		forwarded = b.SetExternal(store.KeyNormals, v)
	}, store.KeyNormals)

	b.Interact(store.KeyNormals, [][]float64{{1, 0, 0}})
	assert.Equal(t, 0, applied)
	assert.ErrorIs(t, forwarded, ErrSuppressed)
}

func TestSetExternalStoresAppliedValue(t *testing.T) {
	clamp := func(v interface{}) (interface{}, error) {
		n, ok := v.(int)
		if !ok {
			return nil, errors.New("not a number")
		}
		if n > 9 {
			n = 9
		}
		return n, nil
	}

	tests := []struct {
		name    string
		key     string
		value   interface{}
		wantErr error
		want    interface{}
		flushed bool
	}{
		{name: "accepted as is", key: "slider", value: 4, want: 4, flushed: true},
		{name: "clamped", key: "slider", value: 9999, want: 9, flushed: true},
		{name: "rejected keeps previous", key: "slider", value: "nope", want: 2},
		{name: "unbound key", key: "anything_at_all", value: 42, wantErr: ErrUnbound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, st, pub, _ := newBridge()
			b.Bind("slider", clamp)
			st.Set("slider", 2)
			st.Flush()
			pub.deltas = nil

			err := b.SetExternal(tt.key, tt.value)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}

			if tt.key != "slider" {
				_, stored := st.Get(tt.key)
				assert.False(t, stored)
				assert.Empty(t, pub.deltas)
				return
			}
			v, _ := st.Get("slider")
			assert.Equal(t, tt.want, v)
			if tt.flushed {
				require.NoError(t, err)
				require.Len(t, pub.deltas, 1)
				assert.Equal(t, tt.want, pub.deltas[0]["slider"])
			} else {
				assert.Error(t, err)
				assert.Empty(t, pub.deltas)
				assert.Empty(t, st.Pending())
			}
			assert.Equal(t, Idle, b.Guard("slider"))
		})
	}
}

func TestStaleTimerIsIgnored(t *testing.T) {
	b, _, pub, clock := newBridge()
	clock.leakyStop = true

	b.Interact(store.KeyPosition, []float64{1, 0, 0})
	clock.Advance(100 * time.Millisecond)
	b.Interact(store.KeyPosition, []float64{2, 0, 0})

	clock.Advance(220 * time.Millisecond)
	assert.Empty(t, pub.deltas, "first timer belongs to an old generation")

	clock.Advance(100 * time.Millisecond)
	require.Len(t, pub.deltas, 1)
	assert.Equal(t, []float64{2, 0, 0}, pub.deltas[0][store.KeyPosition])
}

func TestCloseUnbinds(t *testing.T) {
	b, _, pub, clock := newBridge()
	applied := 0
	b.Bind("k", func(v interface{}) (interface{}, error) {
		applied++
		return v, nil
	})
	b.Interact("k", 1)

	b.Close()
	assert.False(t, b.Bound("k"))
	assert.ErrorIs(t, b.SetExternal("k", 2), ErrUnbound)
	clock.Advance(time.Second)

	assert.Equal(t, 0, applied)
	assert.Empty(t, pub.deltas)
}
