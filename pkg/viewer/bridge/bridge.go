// Package bridge connects high frequency interaction geometry to the shared
// session state, debouncing publication and suppressing echo loops.
package bridge

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// DefaultDebounce is the quiescence window before a continuous write is flushed.
const DefaultDebounce = 300 * time.Millisecond

var (
	ErrUnbound    = errors.New("state key is not writable")
	ErrSuppressed = errors.New("state key is being written by an interaction")
)

// Guard tells who is currently writing a quantity.
type Guard int

const (
	Idle Guard = iota
	DrivingFromInteraction
	DrivingFromExternal
)

func (g Guard) String() string {
	switch g {
	case DrivingFromInteraction:
		return "interaction"
	case DrivingFromExternal:
		return "external"
	default:
		return "idle"
	}
}

// Store is the part of store.State the bridge writes to.
type Store interface {
	Set(key string, value interface{}) bool
	Flush() bool
}

// ApplyFunc applies an external value to the views and returns the value
// actually in effect, which may be clamped or normalized.
type ApplyFunc func(value interface{}) (interface{}, error)

type Bridge struct {
	store    Store
	debounce *Debouncer
	guards   map[string]Guard
	bindings map[string]ApplyFunc
	log      *zap.Logger
}

func New(st Store, sched Scheduler, wait time.Duration, log *zap.Logger) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	if wait <= 0 {
		wait = DefaultDebounce
	}
	b := &Bridge{
		store:    st,
		guards:   make(map[string]Guard),
		bindings: make(map[string]ApplyFunc),
		log:      log,
	}
	b.debounce = NewDebouncer(sched, wait, b.flush)
	return b
}

// Guard returns the current driver of key.
func (b *Bridge) Guard(key string) Guard {
	return b.guards[key]
}

func (b *Bridge) write(key string, value interface{}, g Guard) bool {
	if current := b.guards[key]; current != Idle {
		b.log.Debug("write suppressed", zap.String("key", key), zap.Stringer("driver", current), zap.Stringer("attempt", g))
		return false
	}
	b.guards[key] = g
	defer delete(b.guards, key)
	b.store.Set(key, value)
	return true
}

// Interact writes a continuous interaction value now and schedules the
// debounced flush.
func (b *Bridge) Interact(key string, value interface{}) bool {
	if !b.write(key, value, DrivingFromInteraction) {
		return false
	}
	b.debounce.Trigger()
	return true
}

// EndInteraction writes the final values and flushes immediately, dropping
// any pending debounce.
func (b *Bridge) EndInteraction(values map[string]interface{}) {
	b.PublishAll(values)
}

// PublishAll writes several discrete values with one flush.
func (b *Bridge) PublishAll(values map[string]interface{}) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.write(k, values[k], DrivingFromInteraction)
	}
	b.Flush()
}

// Publish writes a discrete value and flushes it at once.
func (b *Bridge) Publish(key string, value interface{}) bool {
	if !b.write(key, value, DrivingFromInteraction) {
		return false
	}
	b.Flush()
	return true
}

// SetExternal applies a value coming from a UI widget through the handler
// bound to key. The store only ever holds what the handler accepted;
// interaction echoes raised while applying are ignored.
func (b *Bridge) SetExternal(key string, value interface{}) error {
	apply, ok := b.bindings[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnbound, key)
	}
	if current := b.guards[key]; current != Idle {
		b.log.Debug("external write suppressed", zap.String("key", key), zap.Stringer("driver", current))
		return fmt.Errorf("%w: %s", ErrSuppressed, key)
	}

	b.guards[key] = DrivingFromExternal
	applied, err := func() (interface{}, error) {
		defer delete(b.guards, key)
		applied, err := apply(value)
		if err != nil {
			return nil, err
		}
		b.store.Set(key, applied)
		return applied, nil
	}()
	if err != nil {
		b.log.Debug("external write rejected", zap.String("key", key), zap.Error(err))
		return err
	}
	b.log.Debug("external write applied", zap.String("key", key), zap.Any("value", applied))
	b.Flush()
	return nil
}

// Bind makes key writable from outside. Keys without a binding are rejected
// by SetExternal.
func (b *Bridge) Bind(key string, apply ApplyFunc) {
	b.bindings[key] = apply
}

// Bound reports whether key accepts external writes.
func (b *Bridge) Bound(key string) bool {
	_, ok := b.bindings[key]
	return ok
}

// Flush cancels any pending debounce and publishes now.
func (b *Bridge) Flush() {
	b.debounce.Cancel()
	b.flush()
}

func (b *Bridge) flush() {
	b.store.Flush()
}

func (b *Bridge) Pending() bool {
	return b.debounce.Pending()
}

// Close stops timers and removes every binding.
func (b *Bridge) Close() {
	b.debounce.Cancel()
	b.bindings = make(map[string]ApplyFunc)
}
