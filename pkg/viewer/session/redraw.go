package session

import (
	"sort"

	"medviewer-be/pkg/viewer/scene"
)

var allViews = []string{scene.ViewSagittal, scene.View3D, scene.ViewCoronal, scene.ViewAxial}

// renderCoalescer gathers the redraw requests of one loop task into a single
// render hint sent after the task. Only used on the loop; after runs fn once
// the current task returns and must not block.
type renderCoalescer struct {
	after     func(func())
	notify    func(views []string)
	pending   map[string]struct{}
	scheduled bool
	requests  int
}

func newRenderCoalescer(after func(func()), notify func([]string)) *renderCoalescer {
	return &renderCoalescer{
		after:   after,
		notify:  notify,
		pending: make(map[string]struct{}),
	}
}

func (r *renderCoalescer) Redraw(views ...string) {
	r.requests++
	if len(views) == 0 {
		views = allViews
	}
	for _, v := range views {
		r.pending[v] = struct{}{}
	}
	if r.scheduled {
		return
	}
	r.scheduled = true
	r.after(r.fire)
}

func (r *renderCoalescer) fire() {
	r.scheduled = false
	if len(r.pending) == 0 {
		return
	}
	views := make([]string, 0, len(r.pending))
	for v := range r.pending {
		views = append(views, v)
	}
	sort.Strings(views)
	r.pending = make(map[string]struct{})
	r.notify(views)
}
