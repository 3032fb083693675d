package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeView struct {
	style  *Style
	window float64
	level  float64
	hasWL  bool
}

func newFakeView(name string, window, level float64) *fakeView {
	return &fakeView{style: NewStyle(name), window: window, level: level, hasWL: true}
}

func (v *fakeView) Style() *Style { return v.style }

func (v *fakeView) WindowLevel() (float64, float64, bool) {
	return v.window, v.level, v.hasWL
}

func (v *fakeView) SetWindowLevel(window, level float64) bool {
	changed := v.window != window || v.level != level
	v.window, v.level = window, level
	return changed
}

type camera3D struct{ style *Style }

func (c *camera3D) Style() *Style { return c.style }

func TestWindowLevelSync(t *testing.T) {
	redraws := 0
	r := New(func() { redraws++ }, nil)
	views := []*fakeView{
		newFakeView("sagittal", 100, 50),
		newFakeView("coronal", 10, 5),
		newFakeView("axial", 20, 10),
	}
	threeD := &camera3D{style: NewStyle("3d")}
	for _, v := range views {
		r.Subscribe(v).Activate()
	}
	r.Subscribe(threeD).Activate()

	for i, origin := range views {
		origin.window, origin.level = float64(200+i), float64(80+i)
		r.Notify(origin.Style(), WindowLevelChanged)

		for _, v := range views {
			assert.Equal(t, origin.window, v.window)
			assert.Equal(t, origin.level, v.level)
		}
	}
	assert.Equal(t, 3, redraws)
}

func TestCursorEventOnlyRedraws(t *testing.T) {
	redraws := 0
	r := New(func() { redraws++ }, nil)
	a := newFakeView("a", 1, 1)
	b := newFakeView("b", 2, 2)
	r.Subscribe(a).Activate()
	r.Subscribe(b).Activate()

	r.Notify(a.Style(), CursorMoved)

	assert.Equal(t, 1, redraws)
	assert.Equal(t, 2.0, b.window)
}

func TestUnknownOriginRedrawsConservatively(t *testing.T) {
	redraws := 0
	r := New(func() { redraws++ }, nil)
	a := newFakeView("a", 1, 1)
	b := newFakeView("b", 2, 2)
	r.Subscribe(a).Activate()
	r.Subscribe(b).Activate()

	r.Notify(NewStyle("stranger"), WindowLevelChanged)

	assert.Equal(t, 1, redraws)
	assert.Equal(t, 1.0, a.window)
	assert.Equal(t, 2.0, b.window)
	assert.Zero(t, r.Dropped())
}

func TestInactiveMemberIsSilent(t *testing.T) {
	redraws := 0
	r := New(func() { redraws++ }, nil)
	a := newFakeView("a", 1, 1)
	b := newFakeView("b", 2, 2)
	r.Subscribe(a).Activate()
	subB := r.Subscribe(b)

	r.Notify(b.Style(), WindowLevelChanged)
	assert.Equal(t, 0, redraws)

	r.Notify(a.Style(), WindowLevelChanged)
	assert.Equal(t, 2.0, b.window, "inactive member must not receive copies")

	subB.Activate()
	r.Notify(a.Style(), WindowLevelChanged)
	assert.Equal(t, 1.0, b.window)
	assert.Equal(t, 2, redraws)
}

func TestNotifyDuringDispatchIsDropped(t *testing.T) {
	redraws := 0
	var r *Router
	a := newFakeView("a", 1, 1)
	r = New(func() {
		redraws++
		r.Notify(a.Style(), CursorMoved)
	}, nil)
	r.Subscribe(a).Activate()

	r.Notify(a.Style(), CursorMoved)

	assert.Equal(t, 1, redraws)
	assert.Equal(t, 1, r.Dropped())
}

func TestCloseRemovesMember(t *testing.T) {
	r := New(nil, nil)
	a := newFakeView("a", 1, 1)
	b := newFakeView("b", 2, 2)
	r.Subscribe(a).Activate()
	sub := r.Subscribe(b)
	sub.Activate()
	sub.Close()

	a.window = 9
	r.Notify(a.Style(), WindowLevelChanged)

	assert.Equal(t, 2.0, b.window)
}
