package scene

import (
	"image"
	"image/color"
	"math"

	"medviewer-be/pkg/dataset"
	"medviewer-be/pkg/render"
	"medviewer-be/pkg/viewer/cursor"
	"medviewer-be/pkg/viewer/registry"
	"medviewer-be/pkg/viewer/router"

	"gonum.org/v1/gonum/spatial/r3"
)

// maxSampleSide caps the resolution volumes are resliced at before scaling
// onto the canvas.
const maxSampleSide = 256

// SliceView reslices the displayed volumes along one plane of the shared
// cursor. The first volume becomes the primary one and carries the reslice
// widget; later volumes are overlays.
type SliceView struct {
	id       string
	plane    cursor.Plane
	cursor   *cursor.Model
	registry *registry.Registry
	style    *router.Style
	sub      *router.Subscription
	redraw   func()

	widget         *ResliceWidget
	overlays       []*ImageSlice
	meshes         []*MeshSlice
	obliqueVisible bool
}

// NewSliceView builds an inactive view; the caller activates its
// subscription once every view is wired.
func NewSliceView(plane cursor.Plane, cur *cursor.Model, rt *router.Router, redraw func()) *SliceView {
	if redraw == nil {
		redraw = func() {}
	}
	v := &SliceView{
		id:             plane.String(),
		plane:          plane,
		cursor:         cur,
		style:          router.NewStyle(plane.String()),
		redraw:         redraw,
		obliqueVisible: true,
	}
	v.registry = registry.New(v, redraw)
	v.sub = rt.Subscribe(v)
	return v
}

func (v *SliceView) ID() string                         { return v.id }
func (v *SliceView) Plane() cursor.Plane                { return v.plane }
func (v *SliceView) Style() *router.Style               { return v.style }
func (v *SliceView) Registry() *registry.Registry       { return v.registry }
func (v *SliceView) Subscription() *router.Subscription { return v.sub }
func (v *SliceView) Widget() *ResliceWidget             { return v.widget }
func (v *SliceView) HasPrimary() bool                   { return v.widget != nil }
func (v *SliceView) Overlays() int                      { return len(v.overlays) }
func (v *SliceView) MeshSlices() int                    { return len(v.meshes) }

// PrimaryVolume is the volume carried by the reslice widget.
func (v *SliceView) PrimaryVolume() *dataset.Volume {
	if v.widget == nil {
		return nil
	}
	return v.widget.volume
}

func (v *SliceView) AddVolume(id string, vol *dataset.Volume) error {
	if err := vol.Validate(); err != nil {
		return err
	}
	if v.widget == nil {
		v.widget = newResliceWidget(vol, v.obliqueVisible)
		v.registry.Register(id, v.widget)
		return nil
	}
	s := newImageSlice(vol)
	v.overlays = append(v.overlays, s)
	v.registry.Register(id, s)
	return nil
}

func (v *SliceView) AddMesh(id string, mesh *dataset.Mesh) error {
	if len(mesh.Triangles) == 0 {
		return dataset.ErrInvalidDataset
	}
	s := newMeshSlice(mesh)
	v.meshes = append(v.meshes, s)
	v.registry.Register(id, s)
	return nil
}

func (v *SliceView) RemoveVolume(p registry.Prop) {
	v.RemoveActor(p)
}

func (v *SliceView) RemoveActor(p registry.Prop) {
	switch prop := p.(type) {
	case *ImageSlice:
		for i, s := range v.overlays {
			if s == prop {
				v.overlays = append(v.overlays[:i], v.overlays[i+1:]...)
				return
			}
		}
	case *MeshSlice:
		for i, s := range v.meshes {
			if s == prop {
				v.meshes = append(v.meshes[:i], v.meshes[i+1:]...)
				return
			}
		}
	}
}

func (v *SliceView) RemoveWidget(w registry.Widget) {
	if rw, ok := w.(*ResliceWidget); ok && rw == v.widget {
		v.widget = nil
	}
}

// Remove unregisters id. When the primary volume goes away the first
// overlay is promoted in its place; with no volume left, mesh slices are
// dropped too since they are cut by the widget planes.
func (v *SliceView) Remove(id string, suppressRedraw bool) {
	v.registry.Unregister(id, true)

	if v.widget == nil && len(v.overlays) > 0 {
		s := v.overlays[0]
		if sid, ok := v.registry.FindID(s); ok {
			v.registry.UnregisterProp(sid, s, true)
			v.widget = newResliceWidget(s.volume, v.obliqueVisible)
			v.registry.Register(sid, v.widget)
		}
	}

	if v.widget == nil {
		for _, m := range append([]*MeshSlice(nil), v.meshes...) {
			if mid, ok := v.registry.FindID(m); ok {
				v.registry.UnregisterProp(mid, m, true)
			}
		}
	}

	if !suppressRedraw {
		v.redraw()
	}
}

func (v *SliceView) Clear(suppressRedraw bool) {
	v.registry.UnregisterAll(suppressRedraw)
}

func (v *SliceView) Reset() {
	if v.widget != nil {
		v.widget.Reset()
	}
}

// SetObliqueVisible shows or hides the cursor lines. The flag is kept for
// widgets created later.
func (v *SliceView) SetObliqueVisible(visible bool) {
	v.obliqueVisible = visible
	if v.widget != nil {
		v.widget.SetObliqueVisible(visible)
	}
}

func (v *SliceView) ObliqueVisible() bool {
	return v.obliqueVisible
}

func (v *SliceView) WindowLevel() (window, level float64, ok bool) {
	if v.widget == nil {
		return 0, 0, false
	}
	return v.widget.wl.Window, v.widget.wl.Level, true
}

func (v *SliceView) SetWindowLevel(window, level float64) bool {
	if v.widget == nil {
		return false
	}
	wl := render.WindowLevel{Window: window, Level: level}
	if v.widget.wl == wl {
		return false
	}
	v.widget.wl = wl
	return true
}

// SetDatasetWindowLevel changes the color mapping of the props of id only.
func (v *SliceView) SetDatasetWindowLevel(id string, wl render.WindowLevel) bool {
	modified := false
	for _, p := range v.registry.Props(id) {
		switch prop := p.(type) {
		case *ResliceWidget:
			if prop.wl != wl {
				prop.wl = wl
				modified = true
			}
		case *ImageSlice:
			if prop.wl != wl {
				prop.wl = wl
				modified = true
			}
		}
	}
	return modified
}

func (v *SliceView) SetOpacity(id string, opacity float64) bool {
	modified := false
	for _, p := range v.registry.Props(id) {
		switch prop := p.(type) {
		case *ResliceWidget:
			modified = setOpacity(&prop.opacity, opacity) || modified
		case *ImageSlice:
			modified = setOpacity(&prop.opacity, opacity) || modified
		case *MeshSlice:
			modified = setOpacity(&prop.opacity, opacity) || modified
		}
	}
	return modified
}

func (v *SliceView) SetMeshColor(id string, col color.RGBA) bool {
	modified := false
	for _, p := range v.registry.Props(id) {
		if s, ok := p.(*MeshSlice); ok && s.color != col {
			s.color = col
			modified = true
		}
	}
	return modified
}

// Zoom scales the field of view of the primary volume.
func (v *SliceView) Zoom(factor float64) bool {
	if v.widget == nil || factor <= 0 {
		return false
	}
	v.widget.zoom = math.Max(0.1, math.Min(20, v.widget.zoom*factor))
	return true
}

func setOpacity(dst *float64, opacity float64) bool {
	if *dst == opacity {
		return false
	}
	*dst = opacity
	return true
}

func (v *SliceView) bounds() (r3.Box, bool) {
	if b, ok := v.cursor.Bounds(); ok {
		return b, true
	}
	if v.widget != nil {
		return v.widget.volume.Bounds(), true
	}
	if len(v.meshes) > 0 {
		return v.meshes[0].mesh.Bounds(), true
	}
	return r3.Box{}, false
}

// ImagePlane is the plane the view currently shows.
func (v *SliceView) ImagePlane() render.Plane {
	zoom := 1.0
	if v.widget != nil {
		zoom = v.widget.zoom
	}
	fov := 1.0
	if b, ok := v.bounds(); ok {
		fov = fieldOfView(b) / zoom
	}
	return render.Plane{
		Center:      v.cursor.Center(),
		Normal:      v.cursor.Normal(v.plane),
		ViewUp:      v.cursor.ViewUp(v.plane),
		FieldOfView: fov,
	}
}

func (v *SliceView) Render(w, h int) image.Image {
	c := render.NewCanvas(w, h)
	plane := v.ImagePlane()
	sw, sh := sampleSize(w, h)

	if v.widget != nil {
		g := render.Reslice(v.widget.volume, plane, sw, sh)
		c.DrawLayer(render.Colorize(g, v.widget.wl, white, v.widget.opacity))
	}
	for _, o := range v.overlays {
		g := render.Reslice(o.volume, plane, sw, sh)
		c.DrawLayer(render.Colorize(g, o.wl, overlayTint, o.opacity))
	}
	for _, m := range v.meshes {
		for _, seg := range render.CutMesh(m.mesh, plane) {
			x0, y0 := plane.Project(seg[0], w, h)
			x1, y1 := plane.Project(seg[1], w, h)
			c.Segment(x0, y0, x1, y1, m.color, m.opacity)
		}
	}
	if v.widget != nil {
		x, y := plane.Project(v.cursor.Center(), w, h)
		n := v.cursor.Normal(v.plane)
		for q := cursor.Sagittal; q <= cursor.Axial; q++ {
			if q == v.plane {
				continue
			}
			dx, dy := plane.Direction(r3.Cross(n, v.cursor.Normal(q)))
			c.Line(x, y, dx, dy, axisColors[q], v.widget.lineOpacity[q])
		}
	}
	c.Label(v.id)
	return c.Image()
}

// fieldOfView fits the largest extent of b into the screen share.
func fieldOfView(b r3.Box) float64 {
	s := b.Size()
	side := math.Max(s.X, math.Max(s.Y, s.Z))
	if side <= 0 {
		return 1
	}
	return side / ScreenSpaceFit
}

func sampleSize(w, h int) (int, int) {
	side := w
	if h > side {
		side = h
	}
	if side <= maxSampleSide {
		return w, h
	}
	scale := float64(maxSampleSide) / float64(side)
	sw := int(math.Max(1, math.Round(float64(w)*scale)))
	sh := int(math.Max(1, math.Round(float64(h)*scale)))
	return sw, sh
}
