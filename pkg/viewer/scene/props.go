package scene

import (
	"image/color"

	"medviewer-be/pkg/dataset"
	"medviewer-be/pkg/render"
	"medviewer-be/pkg/viewer/registry"
)

// OverlayOpacity is the opacity of secondary volumes drawn over the primary one.
const OverlayOpacity = 0.8

var (
	axisColors = [3]color.RGBA{
		{R: 230, G: 60, B: 60, A: 255},
		{R: 60, G: 200, B: 60, A: 255},
		{R: 70, G: 110, B: 240, A: 255},
	}
	overlayTint    = color.RGBA{R: 255, G: 170, B: 60, A: 255}
	sliceMeshColor = color.RGBA{R: 255, A: 255}
	surfaceColor   = color.RGBA{R: 230, G: 230, B: 230, A: 255}
	white          = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// ResliceWidget shows the primary volume of a slice view together with the
// reslice cursor lines.
type ResliceWidget struct {
	volume        *dataset.Volume
	wl            render.WindowLevel
	opacity       float64
	lineOpacity   [3]float64
	processEvents bool
	interactor    bool
	zoom          float64
}

func newResliceWidget(vol *dataset.Volume, obliqueVisible bool) *ResliceWidget {
	w := &ResliceWidget{
		volume:     vol,
		wl:         render.FromRange(vol.ScalarRange()),
		opacity:    1,
		interactor: true,
		zoom:       1,
	}
	w.SetObliqueVisible(obliqueVisible)
	return w
}

func (w *ResliceWidget) PropKind() registry.Kind { return registry.KindWidget }

func (w *ResliceWidget) ClearInteractor() {
	w.interactor = false
	w.processEvents = false
}

// SetObliqueVisible shows or hides the three centerlines. Hidden lines do not
// take events.
func (w *ResliceWidget) SetObliqueVisible(visible bool) {
	opacity := 0.0
	if visible {
		opacity = 1.0
	}
	for i := range w.lineOpacity {
		w.lineOpacity[i] = opacity
	}
	w.processEvents = visible && w.interactor
}

func (w *ResliceWidget) LineOpacity(axis int) float64 { return w.lineOpacity[axis] }
func (w *ResliceWidget) ProcessEvents() bool          { return w.processEvents }
func (w *ResliceWidget) Bound() bool                  { return w.interactor }
func (w *ResliceWidget) Volume() *dataset.Volume      { return w.volume }
func (w *ResliceWidget) WindowLevel() render.WindowLevel {
	return w.wl
}

func (w *ResliceWidget) Opacity() float64 { return w.opacity }
func (w *ResliceWidget) Zoom() float64    { return w.zoom }

func (w *ResliceWidget) Reset() {
	w.zoom = 1
}

// ImageSlice draws a secondary volume over the primary one.
type ImageSlice struct {
	volume  *dataset.Volume
	wl      render.WindowLevel
	opacity float64
}

func newImageSlice(vol *dataset.Volume) *ImageSlice {
	return &ImageSlice{
		volume:  vol,
		wl:      render.FromRange(vol.ScalarRange()),
		opacity: OverlayOpacity,
	}
}

func (s *ImageSlice) PropKind() registry.Kind { return registry.KindSurface }
func (s *ImageSlice) Opacity() float64        { return s.opacity }

// MeshSlice is the intersection of a mesh with a slice plane.
type MeshSlice struct {
	mesh    *dataset.Mesh
	color   color.RGBA
	opacity float64
}

func newMeshSlice(m *dataset.Mesh) *MeshSlice {
	return &MeshSlice{mesh: m, color: sliceMeshColor, opacity: 1}
}

func (s *MeshSlice) PropKind() registry.Kind { return registry.KindSurface }

// VolumeProp is a volume rendered in the 3D view.
type VolumeProp struct {
	volume *dataset.Volume
	preset render.Preset
	wl     render.WindowLevel
}

func (p *VolumeProp) PropKind() registry.Kind { return registry.KindVolume }

func (p *VolumeProp) applyPreset(preset render.Preset) bool {
	if p.preset.Name == preset.Name {
		return false
	}
	p.preset = preset
	p.wl = preset.Apply(p.volume.ScalarRange())
	return true
}

// MeshActor is a mesh surface in the 3D view.
type MeshActor struct {
	mesh    *dataset.Mesh
	color   color.RGBA
	opacity float64
}

func newMeshActor(m *dataset.Mesh) *MeshActor {
	return &MeshActor{mesh: m, color: surfaceColor, opacity: 1}
}

func (a *MeshActor) PropKind() registry.Kind { return registry.KindSurface }
