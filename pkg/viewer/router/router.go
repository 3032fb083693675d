// Package router fans interaction events from one view out to its siblings.
package router

import (
	"go.uber.org/zap"
)

type EventKind int

const (
	WindowLevelChanged EventKind = iota
	CursorMoved
	AxesChanged
	CameraChanged
)

func (k EventKind) String() string {
	switch k {
	case WindowLevelChanged:
		return "window_level"
	case CursorMoved:
		return "cursor"
	case AxesChanged:
		return "axes"
	case CameraChanged:
		return "camera"
	default:
		return "unknown"
	}
}

// Style is the identity handle of a view's interaction style. Events are
// matched to their originating view by pointer.
type Style struct {
	owner string
}

func NewStyle(owner string) *Style {
	return &Style{owner: owner}
}

func (s *Style) Owner() string {
	if s == nil {
		return ""
	}
	return s.owner
}

// Member is a view taking part in routing.
type Member interface {
	Style() *Style
}

// WindowLeveler is implemented by members sharing the slice color mapping.
type WindowLeveler interface {
	WindowLevel() (window, level float64, ok bool)
	SetWindowLevel(window, level float64) bool
}

// Subscription is a member's handle on the router.
type Subscription struct {
	router *Router
	member Member
	active bool
}

// Activate starts routing for the member. Call once its widgets are wired.
func (s *Subscription) Activate() {
	s.active = true
}

func (s *Subscription) Active() bool {
	return s.active
}

// Close removes the member from the router.
func (s *Subscription) Close() {
	s.active = false
	s.router.remove(s)
}

// Router synchronizes window/level across views and coalesces the sibling
// redraw into one request. All calls happen on the session loop.
type Router struct {
	subs        []*Subscription
	redraw      func()
	dispatching bool
	dropped     int
	log         *zap.Logger
}

func New(redraw func(), log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	if redraw == nil {
		redraw = func() {}
	}
	return &Router{redraw: redraw, log: log}
}

// Subscribe adds m in the inactive state.
func (r *Router) Subscribe(m Member) *Subscription {
	sub := &Subscription{router: r, member: m}
	r.subs = append(r.subs, sub)
	return sub
}

func (r *Router) remove(sub *Subscription) {
	for i, existing := range r.subs {
		if existing == sub {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			return
		}
	}
}

// Notify routes an event from the view owning origin. Events raised while a
// dispatch is running are dropped.
func (r *Router) Notify(origin *Style, kind EventKind) {
	if r.dispatching {
		r.dropped++
		return
	}
	r.dispatching = true
	defer func() { r.dispatching = false }()

	var source Member
	for _, sub := range r.subs {
		if sub.member.Style() != origin {
			continue
		}
		if !sub.active {
			r.log.Debug("event from inactive member ignored", zap.String("owner", origin.Owner()), zap.Stringer("kind", kind))
			return
		}
		source = sub.member
		break
	}

	if source == nil {
		r.log.Debug("global event", zap.Stringer("kind", kind))
	} else if kind == WindowLevelChanged {
		r.syncWindowLevel(source)
	}
	r.redraw()
}

func (r *Router) syncWindowLevel(source Member) {
	src, ok := source.(WindowLeveler)
	if !ok {
		return
	}
	window, level, ok := src.WindowLevel()
	if !ok {
		return
	}
	for _, sub := range r.subs {
		if !sub.active || sub.member == source {
			continue
		}
		if wl, ok := sub.member.(WindowLeveler); ok {
			wl.SetWindowLevel(window, level)
		}
	}
}

// Dropped counts reentrant notifications that were ignored.
func (r *Router) Dropped() int {
	return r.dropped
}
