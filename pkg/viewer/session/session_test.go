package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"medviewer-be/pkg/dataset"
	"medviewer-be/pkg/events"
	"medviewer-be/pkg/store"
	"medviewer-be/pkg/viewer/scene"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

type fakeNotifier struct {
	mu      sync.Mutex
	deltas  []map[string]interface{}
	renders [][]string
}

func (n *fakeNotifier) PublishState(_ string, delta map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deltas = append(n.deltas, delta)
}

func (n *fakeNotifier) PublishRender(_ string, views []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.renders = append(n.renders, views)
}

// busyValues lists every published value of the busy flag.
func (n *fakeNotifier) busyValues() []interface{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []interface{}
	for _, d := range n.deltas {
		if v, ok := d[store.KeyBusy]; ok {
			out = append(out, v)
		}
	}
	return out
}

func (n *fakeNotifier) renderCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.renders)
}

type fakeDispatcher struct {
	jobs []LoadJob
	err  error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, job LoadJob) error {
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

type fakeEvents struct {
	mu    sync.Mutex
	types []string
}

func (e *fakeEvents) Publish(_ context.Context, ev events.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.types = append(e.types, ev.EventType())
	return nil
}

func (e *fakeEvents) has(t string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, existing := range e.types {
		if existing == t {
			return true
		}
	}
	return false
}

type fixture struct {
	s          *Session
	notifier   *fakeNotifier
	dispatcher *fakeDispatcher
	events     *fakeEvents
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{notifier: &fakeNotifier{}, dispatcher: &fakeDispatcher{}, events: &fakeEvents{}}
	f.s = New(Options{
		ID:         "s1",
		UserID:     "u1",
		Token:      "tok",
		Notifier:   f.notifier,
		Dispatcher: f.dispatcher,
		Events:     f.events,
	})
	t.Cleanup(f.s.Close)
	return f
}

// sync waits until every task posted so far has run.
func (f *fixture) sync(t *testing.T) {
	t.Helper()
	require.NoError(t, f.s.Do(context.Background(), func(*scene.Collection) error { return nil }))
}

func volume() dataset.Loaded {
	v := &dataset.Volume{
		Dims:    [3]int{4, 4, 4},
		Spacing: r3.Vec{X: 1, Y: 1, Z: 1},
		Data:    make([]float64, 64),
	}
	for i := range v.Data {
		v.Data[i] = float64(i)
	}
	return dataset.Loaded{Kind: dataset.KindVolume, Volume: v, Path: "/tmp/a.nii"}
}

func displayed(t *testing.T, s *Session) []string {
	t.Helper()
	var ids []string
	require.NoError(t, s.Do(context.Background(), func(c *scene.Collection) error {
		ids = c.Displayed()
		return nil
	}))
	return ids
}

func TestLoadWhileBusy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.s.Load(ctx, "a"))
	assert.True(t, f.s.Busy())
	assert.Equal(t, []interface{}{false, true}, f.notifier.busyValues())

	assert.ErrorIs(t, f.s.Load(ctx, "b"), ErrBusy)
	require.Len(t, f.dispatcher.jobs, 1)
	assert.Equal(t, LoadJob{SessionID: "s1", ItemID: "a", Generation: 1, Token: "tok"}, f.dispatcher.jobs[0])
}

func TestCompleteDisplaysDataset(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.s.Load(context.Background(), "a"))

	require.True(t, f.s.Complete(LoadResult{ItemID: "a", Generation: 1, Loaded: volume()}))
	f.sync(t)

	assert.False(t, f.s.Busy())
	assert.Equal(t, []string{"a"}, displayed(t, f.s))
	assert.Equal(t, []interface{}{false, true, false}, f.notifier.busyValues())
	assert.Eventually(t, func() bool { return f.events.has(events.DatasetLoaded) }, time.Second, 10*time.Millisecond)
	assert.Positive(t, f.notifier.renderCount())
}

func TestCompleteWithError(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.s.Load(context.Background(), "a"))

	f.s.Complete(LoadResult{ItemID: "a", Generation: 1, Err: errors.New("download failed")})
	f.sync(t)

	assert.False(t, f.s.Busy())
	assert.Empty(t, displayed(t, f.s))
	selected, _ := f.s.Snapshot()[store.KeySelected].([]string)
	assert.Empty(t, selected)
	assert.Eventually(t, func() bool { return f.events.has(events.DatasetLoadFailed) }, time.Second, 10*time.Millisecond)
}

func TestCompleteAfterRemoveIsDiscarded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.s.Load(ctx, "a"))
	require.NoError(t, f.s.Remove(ctx, "a"))

	f.s.Complete(LoadResult{ItemID: "a", Generation: 1, Loaded: volume()})
	f.sync(t)

	assert.Empty(t, displayed(t, f.s))
	assert.False(t, f.s.Busy())
	assert.Eventually(t, func() bool { return f.events.has(events.DatasetDiscarded) }, time.Second, 10*time.Millisecond)
}

func TestStaleGenerationIsDropped(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.s.Load(context.Background(), "a"))

	f.s.Complete(LoadResult{ItemID: "a", Generation: 7, Loaded: volume()})
	f.sync(t)

	assert.Empty(t, displayed(t, f.s))
	assert.True(t, f.s.Busy())
}

func TestDispatchFailureClearsBusy(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.err = errors.New("queue down")

	err := f.s.Load(context.Background(), "a")
	require.Error(t, err)
	assert.False(t, f.s.Busy())
	assert.Equal(t, []interface{}{false, true, false}, f.notifier.busyValues())
}

func TestLoadOfDisplayedItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.s.Load(ctx, "a"))
	f.s.Complete(LoadResult{ItemID: "a", Generation: 1, Loaded: volume()})
	f.sync(t)

	assert.ErrorIs(t, f.s.Load(ctx, "a"), scene.ErrDuplicateID)
	assert.False(t, f.s.Busy())
}

func TestRenderAndLayout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.s.SetQuadView(ctx, false))
	require.NoError(t, f.s.SetObliqueVisible(ctx, false))
	snap := f.s.Snapshot()
	assert.Equal(t, false, snap[store.KeyQuadView])
	assert.Equal(t, false, snap[store.KeyObliquesVisibility])

	img, err := f.s.Render(ctx, scene.ViewAxial, 32, 32)
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())

	require.NoError(t, f.s.Clear(ctx))
	require.NoError(t, f.s.Reset(ctx))
	n, err := f.s.RedrawCount(ctx)
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestLoop(t *testing.T) {
	t.Run("panic becomes error", func(t *testing.T) {
		l := NewLoop(1, nil)
		defer l.Close()
		err := l.Do(context.Background(), func() error { panic("boom") })
		assert.Error(t, err)
		assert.NoError(t, l.Do(context.Background(), func() error { return nil }))
	})

	t.Run("context cancel", func(t *testing.T) {
		l := NewLoop(1, nil)
		defer l.Close()
		block := make(chan struct{})
		l.Post(func() { <-block })
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, l.Do(ctx, func() error { return nil }), context.DeadlineExceeded)
		close(block)
	})

	t.Run("defer runs after the task even with a full queue", func(t *testing.T) {
		l := NewLoop(1, nil)
		defer l.Close()
		var order []string
		require.NoError(t, l.Do(context.Background(), func() error {
			for i := 0; i < 3; i++ {
				l.Defer(func() { order = append(order, "deferred") })
			}
			order = append(order, "task")
			return nil
		}))
		require.NoError(t, l.Do(context.Background(), func() error { return nil }))
		assert.Equal(t, []string{"task", "deferred", "deferred", "deferred"}, order)
	})

	t.Run("close runs the final task", func(t *testing.T) {
		l := NewLoop(1, nil)
		ran := false
		l.CloseWith(func() { ran = true })
		<-l.Done()
		assert.True(t, ran)
	})

	t.Run("closed", func(t *testing.T) {
		l := NewLoop(1, nil)
		l.Close()
		assert.True(t, l.Closed())
		assert.False(t, l.Post(func() {}))
		assert.ErrorIs(t, l.Do(context.Background(), func() error { return nil }), ErrClosed)
	})
}

func TestManyConcurrentCallers(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	const callers = 400
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- f.s.SetQuadView(ctx, i%2 == 0)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	f.sync(t)
	assert.Positive(t, f.notifier.renderCount())

	closed := make(chan struct{})
	go func() {
		f.s.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("session close did not return")
	}
	assert.ErrorIs(t, f.s.SetQuadView(context.Background(), true), ErrClosed)
}
