// Package session runs one viewer session: its loop, its shared state and
// the background dataset loads feeding its views.
package session

import (
	"context"
	"errors"
	"image"
	"time"

	"medviewer-be/pkg/dataset"
	"medviewer-be/pkg/events"
	"medviewer-be/pkg/render"
	"medviewer-be/pkg/store"
	"medviewer-be/pkg/viewer/bridge"
	"medviewer-be/pkg/viewer/scene"

	"go.uber.org/zap"
)

var ErrBusy = errors.New("a dataset is already loading")

// Notifier pushes state deltas and render hints to the session's clients.
type Notifier interface {
	store.Publisher
	PublishRender(sessionID string, views []string)
}

// LoadJob asks a worker to fetch and decode one item.
type LoadJob struct {
	SessionID  string `json:"session_id"`
	ItemID     string `json:"item_id"`
	Generation uint64 `json:"generation"`
	Token      string `json:"token"`
}

// LoadResult is what a worker hands back to the session.
type LoadResult struct {
	ItemID     string
	Generation uint64
	Loaded     dataset.Loaded
	Err        error
}

// Dispatcher runs load jobs off the session loop.
type Dispatcher interface {
	Dispatch(ctx context.Context, job LoadJob) error
}

// EventPublisher records viewer activity.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type Options struct {
	ID         string
	UserID     string
	Token      string
	Debounce   time.Duration
	Presets    *render.PresetBook
	Notifier   Notifier
	Dispatcher Dispatcher
	Events     EventPublisher
	Logger     *zap.Logger
}

type Session struct {
	id        string
	userID    string
	token     string
	createdAt time.Time

	loop       *Loop
	state      *store.State
	collection *scene.Collection
	renders    *renderCoalescer
	dispatcher Dispatcher
	events     EventPublisher
	log        *zap.Logger

	busy     bool
	gen      uint64
	inflight string
}

func New(opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("session_id", opts.ID))

	s := &Session{
		id:         opts.ID,
		userID:     opts.UserID,
		token:      opts.Token,
		createdAt:  time.Now(),
		loop:       NewLoop(0, log),
		dispatcher: opts.Dispatcher,
		events:     opts.Events,
		log:        log,
	}
	var pub store.Publisher
	if opts.Notifier != nil {
		pub = opts.Notifier
	}
	s.state = store.NewState(opts.ID, pub)
	s.renders = newRenderCoalescer(s.loop.Defer, func(views []string) {
		if opts.Notifier != nil {
			opts.Notifier.PublishRender(s.id, views)
		}
	})
	s.collection = scene.NewCollection(scene.Options{
		State:     s.state,
		Scheduler: bridge.NewLoopScheduler(s.post),
		Debounce:  opts.Debounce,
		Redrawer:  s.renders,
		Presets:   opts.Presets,
		Logger:    log,
	})
	return s
}

func (s *Session) post(fn func()) {
	s.loop.Post(fn)
}

func (s *Session) ID() string           { return s.id }
func (s *Session) UserID() string       { return s.userID }
func (s *Session) Token() string        { return s.token }
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Snapshot returns the current shared state.
func (s *Session) Snapshot() map[string]interface{} {
	return s.state.Snapshot()
}

// Busy reports whether a load is in flight.
func (s *Session) Busy() bool {
	return s.state.GetBool(store.KeyBusy)
}

// Do runs fn against the views on the session loop.
func (s *Session) Do(ctx context.Context, fn func(c *scene.Collection) error) error {
	return s.loop.Do(ctx, func() error {
		return fn(s.collection)
	})
}

// Load selects itemID and starts fetching it in the background. Only one
// load runs at a time; a second call while busy returns ErrBusy.
func (s *Session) Load(ctx context.Context, itemID string) error {
	return s.loop.Do(ctx, func() error {
		if s.busy {
			return ErrBusy
		}
		if _, shown := s.collection.Kind(itemID); shown {
			return scene.ErrDuplicateID
		}
		s.setBusy(true)
		s.gen++
		s.inflight = itemID
		s.collection.Select(itemID)

		job := LoadJob{SessionID: s.id, ItemID: itemID, Generation: s.gen, Token: s.token}
		if s.dispatcher == nil {
			s.abortLoad(itemID)
			return errors.New("no load dispatcher configured")
		}
		if err := s.dispatcher.Dispatch(ctx, job); err != nil {
			s.abortLoad(itemID)
			return err
		}
		s.log.Info("dataset load started", zap.String("item_id", itemID), zap.Uint64("generation", s.gen))
		return nil
	})
}

func (s *Session) abortLoad(itemID string) {
	s.collection.Deselect(itemID)
	s.inflight = ""
	s.setBusy(false)
}

func (s *Session) setBusy(busy bool) {
	s.busy = busy
	s.collection.Bridge().Publish(store.KeyBusy, busy)
}

// Complete hands a worker result back to the loop. Results of a superseded
// load, or of an item deselected while it was loading, are dropped.
func (s *Session) Complete(res LoadResult) bool {
	return s.loop.Post(func() { s.complete(res) })
}

func (s *Session) complete(res LoadResult) {
	if res.Generation != s.gen || res.ItemID != s.inflight {
		s.log.Warn("stale load result dropped",
			zap.String("item_id", res.ItemID),
			zap.Uint64("generation", res.Generation),
			zap.Uint64("current", s.gen))
		return
	}
	defer func() {
		s.inflight = ""
		s.setBusy(false)
	}()

	if res.Err != nil {
		s.log.Error("dataset load failed", zap.String("item_id", res.ItemID), zap.Error(res.Err))
		s.collection.Deselect(res.ItemID)
		s.emit(events.DatasetLoadFailed, map[string]interface{}{"item_id": res.ItemID, "error": res.Err.Error()})
		return
	}
	if !s.collection.IsSelected(res.ItemID) {
		s.log.Info("load result discarded, item no longer selected", zap.String("item_id", res.ItemID))
		s.emit(events.DatasetDiscarded, map[string]interface{}{"item_id": res.ItemID})
		return
	}
	if err := s.collection.Load(res.ItemID, res.Loaded); err != nil {
		s.log.Error("dataset could not be displayed", zap.String("item_id", res.ItemID), zap.Error(err))
		s.collection.Deselect(res.ItemID)
		s.emit(events.DatasetLoadFailed, map[string]interface{}{"item_id": res.ItemID, "error": err.Error()})
		return
	}

	payload := map[string]interface{}{
		"item_id": res.ItemID,
		"kind":    res.Loaded.Kind.String(),
		"path":    res.Loaded.Path,
	}
	if res.Loaded.Volume != nil {
		stats := res.Loaded.Volume.Stats()
		payload["dims"] = res.Loaded.Volume.Dims
		payload["min"] = stats.Min
		payload["max"] = stats.Max
		payload["mean"] = stats.Mean
		payload["std_dev"] = stats.StdDev
	}
	if res.Loaded.Mesh != nil {
		payload["triangles"] = len(res.Loaded.Mesh.Triangles)
	}
	s.emit(events.DatasetLoaded, payload)
}

// Remove takes itemID out of every view. Unknown ids are ignored.
func (s *Session) Remove(ctx context.Context, itemID string) error {
	return s.loop.Do(ctx, func() error {
		_, shown := s.collection.Kind(itemID)
		s.collection.Remove(itemID)
		if shown {
			s.emit(events.DatasetRemoved, map[string]interface{}{"item_id": itemID})
		}
		return nil
	})
}

func (s *Session) Clear(ctx context.Context) error {
	return s.loop.Do(ctx, func() error {
		s.collection.Clear()
		s.emit(events.ViewerCleared, map[string]interface{}{})
		return nil
	})
}

func (s *Session) Reset(ctx context.Context) error {
	return s.loop.Do(ctx, func() error {
		s.collection.Reset()
		s.emit(events.ViewerReset, map[string]interface{}{})
		return nil
	})
}

func (s *Session) SetObliqueVisible(ctx context.Context, visible bool) error {
	return s.Do(ctx, func(c *scene.Collection) error {
		c.SetObliqueVisible(visible)
		return nil
	})
}

func (s *Session) SetQuadView(ctx context.Context, quad bool) error {
	return s.Do(ctx, func(c *scene.Collection) error {
		c.SetQuadView(quad)
		return nil
	})
}

// SetExternal applies a state change coming from a client widget.
func (s *Session) SetExternal(ctx context.Context, key string, value interface{}) error {
	return s.Do(ctx, func(c *scene.Collection) error {
		return c.SetExternal(key, value)
	})
}

func (s *Session) Render(ctx context.Context, view string, w, h int) (image.Image, error) {
	var img image.Image
	err := s.Do(ctx, func(c *scene.Collection) error {
		var err error
		img, err = c.Render(view, w, h)
		return err
	})
	return img, err
}

// RedrawCount is the number of redraw requests the views made.
func (s *Session) RedrawCount(ctx context.Context) (int, error) {
	var n int
	err := s.loop.Do(ctx, func() error {
		n = s.renders.requests
		return nil
	})
	return n, err
}

func (s *Session) emit(eventType string, data map[string]interface{}) {
	if s.events == nil {
		return
	}
	data["session_id"] = s.id
	data["user_id"] = s.userID
	evt := events.BaseEvent{
		Type:       eventType,
		Data:       data,
		OccurredAt: time.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.events.Publish(ctx, evt); err != nil {
			s.log.Warn("failed to publish viewer event", zap.String("type", eventType), zap.Error(err))
		}
	}()
}

// Close stops the loop. Pending results are dropped.
func (s *Session) Close() {
	s.loop.CloseWith(s.collection.Close)
	select {
	case <-s.loop.Done():
	case <-time.After(time.Second):
		s.log.Warn("session loop did not stop in time")
	}
}
