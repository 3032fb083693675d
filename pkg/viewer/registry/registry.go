// Package registry tracks, per view, which rendering props each loaded
// dataset produced so they can be torn down by dataset id.
package registry

// Kind selects how a prop is detached from its scene.
type Kind int

const (
	KindVolume Kind = iota
	KindSurface
	KindWidget
)

func (k Kind) String() string {
	switch k {
	case KindVolume:
		return "volume"
	case KindSurface:
		return "surface"
	case KindWidget:
		return "widget"
	default:
		return "unknown"
	}
}

// Prop is a rendering object owned by one view.
type Prop interface {
	PropKind() Kind
}

// Widget is an interactive prop bound to an interactor.
type Widget interface {
	Prop
	ClearInteractor()
}

// Scene is the view side of teardown.
type Scene interface {
	RemoveVolume(p Prop)
	RemoveActor(p Prop)
	RemoveWidget(w Widget)
}

// Registry maps dataset ids to the ordered props they produced in one view.
// It is not safe for concurrent use; the owning session loop serializes access.
type Registry struct {
	scene   Scene
	redraw  func()
	ids     []string
	entries map[string][]Prop
}

func New(scene Scene, redraw func()) *Registry {
	if redraw == nil {
		redraw = func() {}
	}
	return &Registry{
		scene:   scene,
		redraw:  redraw,
		entries: make(map[string][]Prop),
	}
}

// Register appends p to the props of id.
func (r *Registry) Register(id string, p Prop) {
	if _, ok := r.entries[id]; !ok {
		r.ids = append(r.ids, id)
	}
	r.entries[id] = append(r.entries[id], p)
}

// Unregister tears down every prop of id and drops the entry. Unknown ids
// are ignored. It reports whether anything was removed.
func (r *Registry) Unregister(id string, suppressRedraw bool) bool {
	props, ok := r.entries[id]
	if !ok {
		return false
	}
	for _, p := range props {
		r.teardown(p)
	}
	r.drop(id)
	if !suppressRedraw {
		r.redraw()
	}
	return true
}

// UnregisterProp removes a single prop of id, dropping the entry once empty.
func (r *Registry) UnregisterProp(id string, p Prop, suppressRedraw bool) bool {
	props, ok := r.entries[id]
	if !ok {
		return false
	}
	for i, existing := range props {
		if existing != p {
			continue
		}
		r.teardown(p)
		props = append(props[:i:i], props[i+1:]...)
		if len(props) == 0 {
			r.drop(id)
		} else {
			r.entries[id] = props
		}
		if !suppressRedraw {
			r.redraw()
		}
		return true
	}
	return false
}

// UnregisterAll empties the registry with at most one redraw.
func (r *Registry) UnregisterAll(suppressRedraw bool) {
	for _, id := range r.IDs() {
		r.Unregister(id, true)
	}
	if !suppressRedraw {
		r.redraw()
	}
}

func (r *Registry) teardown(p Prop) {
	if r.scene == nil {
		return
	}
	switch p.PropKind() {
	case KindVolume:
		r.scene.RemoveVolume(p)
	case KindWidget:
		if w, ok := p.(Widget); ok {
			w.ClearInteractor()
			r.scene.RemoveWidget(w)
			return
		}
		r.scene.RemoveActor(p)
	default:
		r.scene.RemoveActor(p)
	}
}

func (r *Registry) drop(id string) {
	delete(r.entries, id)
	for i, existing := range r.ids {
		if existing == id {
			r.ids = append(r.ids[:i], r.ids[i+1:]...)
			break
		}
	}
}

// IDs returns the registered ids in registration order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

func (r *Registry) Props(id string) []Prop {
	props := r.entries[id]
	out := make([]Prop, len(props))
	copy(out, props)
	return out
}

func (r *Registry) Has(id string) bool {
	_, ok := r.entries[id]
	return ok
}

func (r *Registry) Len() int {
	return len(r.ids)
}

// FindID returns the id owning p.
func (r *Registry) FindID(p Prop) (string, bool) {
	for _, id := range r.ids {
		for _, existing := range r.entries[id] {
			if existing == p {
				return id, true
			}
		}
	}
	return "", false
}
