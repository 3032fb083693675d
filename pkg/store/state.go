package store

import (
	"reflect"
	"sort"
	"sync"
)

// Keys written by the viewer core.
const (
	KeyPosition           = "position"
	KeyNormals            = "normals"
	KeyBusy               = "file_loading_busy"
	KeyObliquesVisibility = "obliques_visibility"
	KeyQuadView           = "quad_view"
	KeyFullscreen         = "fullscreen"
	KeyWindowLevel        = "window_level"
	KeyDisplayed          = "displayed"
	KeySelected           = "selected"
	KeyPreset             = "preset"
	KeyObliqueMode        = "oblique_mode"

	// Per-plane slider keys are suffixed with the plane name.
	KeySliderValuePrefix = "slider_value_"
	KeySliderMaxPrefix   = "slider_max_"
)

// ChangeHandler is called synchronously from Set with the new value.
type ChangeHandler func(key string, value interface{})

// Publisher receives the pending delta on Flush. The websocket hub implements it.
type Publisher interface {
	PublishState(sessionID string, delta map[string]interface{})
}

type subscription struct {
	keys    map[string]struct{}
	handler ChangeHandler
	active  bool
}

// State is the shared key/value store of one viewer session.
// Writes notify local handlers immediately; remote observers only see
// them on Flush.
type State struct {
	id        string
	mu        sync.Mutex
	values    map[string]interface{}
	dirty     map[string]struct{}
	subs      []*subscription
	publisher Publisher
}

func NewState(sessionID string, publisher Publisher) *State {
	return &State{
		id:        sessionID,
		values:    make(map[string]interface{}),
		dirty:     make(map[string]struct{}),
		publisher: publisher,
	}
}

func (s *State) ID() string {
	return s.id
}

// SetPublisher replaces the flush target. A nil publisher makes Flush only clear the dirty set.
func (s *State) SetPublisher(p Publisher) {
	s.mu.Lock()
	s.publisher = p
	s.mu.Unlock()
}

func (s *State) Get(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *State) GetBool(key string) bool {
	v, _ := s.Get(key)
	b, _ := v.(bool)
	return b
}

// Set stores value and reports whether it changed. Handlers run only on change.
func (s *State) Set(key string, value interface{}) bool {
	s.mu.Lock()
	if old, ok := s.values[key]; ok && reflect.DeepEqual(old, value) {
		s.mu.Unlock()
		return false
	}
	s.values[key] = value
	s.dirty[key] = struct{}{}
	handlers := s.handlersFor(key)
	s.mu.Unlock()

	for _, h := range handlers {
		h(key, value)
	}
	return true
}

// Update sets several keys in sorted order so handler order is stable.
func (s *State) Update(values map[string]interface{}) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.Set(k, values[k])
	}
}

// Delete drops a key. Observers see it as a nil value on the next flush.
func (s *State) Delete(key string) {
	s.mu.Lock()
	if _, ok := s.values[key]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.values, key)
	s.dirty[key] = struct{}{}
	s.mu.Unlock()
}

// OnChange subscribes handler to the given keys, or to every key when none
// are given. The returned func unsubscribes.
func (s *State) OnChange(handler ChangeHandler, keys ...string) func() {
	sub := &subscription{handler: handler, active: true}
	if len(keys) > 0 {
		sub.keys = make(map[string]struct{}, len(keys))
		for _, k := range keys {
			sub.keys[k] = struct{}{}
		}
	}

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		sub.active = false
		for i, existing := range s.subs {
			if existing == sub {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				break
			}
		}
	}
}

func (s *State) handlersFor(key string) []ChangeHandler {
	var out []ChangeHandler
	for _, sub := range s.subs {
		if !sub.active {
			continue
		}
		if sub.keys != nil {
			if _, ok := sub.keys[key]; !ok {
				continue
			}
		}
		out = append(out, sub.handler)
	}
	return out
}

// Flush publishes the keys written since the last flush. It reports whether
// anything was pending.
func (s *State) Flush() bool {
	s.mu.Lock()
	if len(s.dirty) == 0 {
		s.mu.Unlock()
		return false
	}
	delta := make(map[string]interface{}, len(s.dirty))
	for k := range s.dirty {
		delta[k] = s.values[k]
	}
	s.dirty = make(map[string]struct{})
	publisher := s.publisher
	s.mu.Unlock()

	if publisher != nil {
		publisher.PublishState(s.id, delta)
	}
	return true
}

// Pending lists the keys not yet flushed.
func (s *State) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.dirty))
	for k := range s.dirty {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns a copy of every value.
func (s *State) Snapshot() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]interface{}, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
