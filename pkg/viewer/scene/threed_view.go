package scene

import (
	"image"
	"image/color"
	"math"

	"medviewer-be/pkg/dataset"
	"medviewer-be/pkg/render"
	"medviewer-be/pkg/viewer/registry"
	"medviewer-be/pkg/viewer/router"

	"gonum.org/v1/gonum/spatial/r3"
)

// ThreeDView renders volumes as maximum intensity projections and meshes as
// wireframes.
type ThreeDView struct {
	id       string
	registry *registry.Registry
	style    *router.Style
	sub      *router.Subscription
	redraw   func()
	presets  *render.PresetBook

	camera  render.Camera
	zoom    float64
	volumes []*VolumeProp
	meshes  []*MeshActor
}

func NewThreeDView(rt *router.Router, presets *render.PresetBook, redraw func()) *ThreeDView {
	if redraw == nil {
		redraw = func() {}
	}
	if presets == nil {
		presets = render.DefaultPresets()
	}
	v := &ThreeDView{
		id:      View3D,
		style:   router.NewStyle(View3D),
		redraw:  redraw,
		presets: presets,
		zoom:    1,
		camera:  render.Camera{Position: r3.Vec{Z: 1}, ViewUp: r3.Vec{Y: 1}},
	}
	v.registry = registry.New(v, redraw)
	v.sub = rt.Subscribe(v)
	return v
}

func (v *ThreeDView) ID() string                         { return v.id }
func (v *ThreeDView) Style() *router.Style               { return v.style }
func (v *ThreeDView) Registry() *registry.Registry       { return v.registry }
func (v *ThreeDView) Subscription() *router.Subscription { return v.sub }
func (v *ThreeDView) Camera() render.Camera              { return v.camera }

func (v *ThreeDView) AddVolume(id string, vol *dataset.Volume) error {
	if err := vol.Validate(); err != nil {
		return err
	}
	p := &VolumeProp{volume: vol}
	if preset, ok := v.presets.Find(v.presets.Default); ok {
		p.applyPreset(preset)
	} else {
		p.wl = render.FromRange(vol.ScalarRange())
	}
	first := v.registry.Len() == 0
	v.volumes = append(v.volumes, p)
	v.registry.Register(id, p)
	if first {
		v.Reset()
	}
	return nil
}

func (v *ThreeDView) AddMesh(id string, mesh *dataset.Mesh) error {
	if len(mesh.Triangles) == 0 {
		return dataset.ErrInvalidDataset
	}
	first := v.registry.Len() == 0
	a := newMeshActor(mesh)
	v.meshes = append(v.meshes, a)
	v.registry.Register(id, a)
	if first {
		v.Reset()
	}
	return nil
}

func (v *ThreeDView) RemoveVolume(p registry.Prop) {
	for i, existing := range v.volumes {
		if existing == p {
			v.volumes = append(v.volumes[:i], v.volumes[i+1:]...)
			return
		}
	}
}

func (v *ThreeDView) RemoveActor(p registry.Prop) {
	for i, existing := range v.meshes {
		if existing == p {
			v.meshes = append(v.meshes[:i], v.meshes[i+1:]...)
			return
		}
	}
}

func (v *ThreeDView) RemoveWidget(registry.Widget) {}

func (v *ThreeDView) Remove(id string, suppressRedraw bool) {
	if !v.registry.Unregister(id, suppressRedraw) && !suppressRedraw {
		v.redraw()
	}
}

func (v *ThreeDView) Clear(suppressRedraw bool) {
	v.registry.UnregisterAll(suppressRedraw)
}

func (v *ThreeDView) bounds() (r3.Box, bool) {
	var b r3.Box
	found := false
	add := func(o r3.Box) {
		if !found {
			b, found = o, true
			return
		}
		b = dataset.UnionBounds(b, o)
	}
	for _, p := range v.volumes {
		add(p.volume.Bounds())
	}
	for _, a := range v.meshes {
		add(a.mesh.Bounds())
	}
	return b, found
}

// Reset looks at the data center from the (xmax, ymin) corner with +Z up.
func (v *ThreeDView) Reset() {
	v.zoom = 1
	b, ok := v.bounds()
	if !ok {
		return
	}
	center := b.Center()
	v.camera = render.Camera{
		FocalPoint: center,
		Position:   r3.Vec{X: b.Max.X, Y: b.Min.Y, Z: center.Z},
		ViewUp:     r3.Vec{Z: 1},
	}
	if v.camera.Position == center {
		v.camera.Position = r3.Add(center, r3.Vec{X: 1})
	}
}

// Orbit turns the camera around its focal point, angles in degrees.
func (v *ThreeDView) Orbit(azimuth, elevation float64) bool {
	if azimuth == 0 && elevation == 0 {
		return false
	}
	cam := v.camera
	offset := r3.Sub(cam.Position, cam.FocalPoint)
	if azimuth != 0 {
		offset = r3.Rotate(offset, azimuth*math.Pi/180, cam.ViewUp)
	}
	if elevation != 0 {
		right := r3.Cross(r3.Scale(-1, offset), cam.ViewUp)
		if r3.Norm(right) > 1e-12 {
			axis := r3.Unit(right)
			offset = r3.Rotate(offset, elevation*math.Pi/180, axis)
			cam.ViewUp = r3.Unit(r3.Rotate(cam.ViewUp, elevation*math.Pi/180, axis))
		}
	}
	cam.Position = r3.Add(cam.FocalPoint, offset)
	v.camera = cam
	return true
}

func (v *ThreeDView) Zoom(factor float64) bool {
	if factor <= 0 {
		return false
	}
	v.zoom = math.Max(0.1, math.Min(20, v.zoom*factor))
	return true
}

// SetPreset applies a preset to the volumes of id, or to every volume when
// id is empty.
func (v *ThreeDView) SetPreset(id, name string) (bool, error) {
	preset, ok := v.presets.Find(name)
	if !ok {
		return false, ErrUnknownPreset
	}
	modified := false
	for _, p := range v.volumes {
		if id != "" {
			if owner, _ := v.registry.FindID(p); owner != id {
				continue
			}
		}
		modified = p.applyPreset(preset) || modified
	}
	return modified, nil
}

func (v *ThreeDView) Presets() *render.PresetBook {
	return v.presets
}

func (v *ThreeDView) SetOpacity(id string, opacity float64) bool {
	modified := false
	for _, p := range v.registry.Props(id) {
		if a, ok := p.(*MeshActor); ok {
			modified = setOpacity(&a.opacity, opacity) || modified
		}
	}
	return modified
}

func (v *ThreeDView) SetMeshColor(id string, col color.RGBA) bool {
	modified := false
	for _, p := range v.registry.Props(id) {
		if a, ok := p.(*MeshActor); ok && a.color != col {
			a.color = col
			modified = true
		}
	}
	return modified
}

func (v *ThreeDView) Render(w, h int) image.Image {
	c := render.NewCanvas(w, h)
	b, ok := v.bounds()
	if !ok {
		c.Label(v.id)
		return c.Image()
	}
	fov := fieldOfView(b) / v.zoom
	sw, sh := sampleSize(w, h)

	for _, p := range v.volumes {
		g := render.MaxIntensity(p.volume, v.camera, fov, sw, sh)
		tint := color.RGBA{R: p.preset.Color[0], G: p.preset.Color[1], B: p.preset.Color[2], A: 255}
		if p.preset.Name == "" {
			tint = white
		}
		opacity := p.preset.Opacity
		if opacity == 0 {
			opacity = 1
		}
		c.DrawLayer(render.Colorize(g, p.wl, tint, opacity))
	}

	plane := render.Plane{
		Center:      v.camera.FocalPoint,
		Normal:      r3.Scale(-1, v.camera.Direction()),
		ViewUp:      v.camera.ViewUp,
		FieldOfView: fov,
	}
	for _, a := range v.meshes {
		for _, tri := range a.mesh.Triangles {
			for i := 0; i < 3; i++ {
				x0, y0 := plane.Project(tri[i], w, h)
				x1, y1 := plane.Project(tri[(i+1)%3], w, h)
				c.Segment(x0, y0, x1, y1, a.color, a.opacity*0.5)
			}
		}
	}
	c.Label(v.id)
	return c.Image()
}
