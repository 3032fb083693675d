package scene

import (
	"medviewer-be/pkg/store"
	"medviewer-be/pkg/viewer/bridge"
)

// ObliqueTarget is a view drawing cursor lines.
type ObliqueTarget interface {
	SetObliqueVisible(visible bool)
}

// Layout owns the layout flags every view observes: quad or single view,
// the fullscreen view and the cursor line visibility.
type Layout struct {
	bridge  *bridge.Bridge
	redraw  func()
	targets []ObliqueTarget
	views   map[string]struct{}

	oblique    bool
	quad       bool
	fullscreen string
}

func NewLayout(b *bridge.Bridge, redraw func(), views []string, targets ...ObliqueTarget) *Layout {
	if redraw == nil {
		redraw = func() {}
	}
	known := make(map[string]struct{}, len(views))
	for _, id := range views {
		known[id] = struct{}{}
	}
	return &Layout{
		bridge:  b,
		redraw:  redraw,
		targets: targets,
		views:   known,
		oblique: true,
		quad:    true,
	}
}

func (l *Layout) ObliqueVisible() bool { return l.oblique }
func (l *Layout) QuadView() bool       { return l.quad }
func (l *Layout) Fullscreen() string   { return l.fullscreen }

// Values is the published form of the layout.
func (l *Layout) Values() map[string]interface{} {
	return map[string]interface{}{
		store.KeyObliquesVisibility: l.oblique,
		store.KeyQuadView:           l.quad,
		store.KeyFullscreen:         l.fullscreen,
	}
}

// SetObliqueVisible shows or hides the cursor lines of every slice view,
// then requests one redraw.
func (l *Layout) SetObliqueVisible(visible bool) {
	l.oblique = visible
	for _, t := range l.targets {
		t.SetObliqueVisible(visible)
	}
	l.bridge.Publish(store.KeyObliquesVisibility, visible)
	l.redraw()
}

// SetQuadView switches between the quad layout and the fullscreen view.
// Going back to quad clears the fullscreen view.
func (l *Layout) SetQuadView(quad bool) {
	l.quad = quad
	l.bridge.Publish(store.KeyQuadView, quad)
	if quad && l.fullscreen != "" {
		l.fullscreen = ""
		l.bridge.Publish(store.KeyFullscreen, "")
	}
	l.redraw()
}

// SetFullscreen extends one view over the layout. An empty id returns to
// the quad layout.
func (l *Layout) SetFullscreen(view string) error {
	if view == "" {
		l.SetQuadView(true)
		return nil
	}
	if _, ok := l.views[view]; !ok {
		return ErrUnknownView
	}
	l.fullscreen = view
	l.bridge.Publish(store.KeyFullscreen, view)
	l.quad = false
	l.bridge.Publish(store.KeyQuadView, false)
	l.redraw()
	return nil
}
