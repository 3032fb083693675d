// Package scene holds the four views of a viewer session and the collection
// that fans dataset lifecycle and layout changes out to them.
package scene

import (
	"errors"
	"image"

	"medviewer-be/pkg/dataset"
	"medviewer-be/pkg/viewer/registry"
	"medviewer-be/pkg/viewer/router"
)

// View ids, also used as fullscreen targets.
const (
	ViewSagittal = "sagittal"
	ViewCoronal  = "coronal"
	ViewAxial    = "axial"
	View3D       = "3d"
)

// ScreenSpaceFit is the share of the viewport the data covers after a reset.
const ScreenSpaceFit = 0.8

var (
	ErrUnknownView     = errors.New("unknown view")
	ErrNoPrimaryVolume = errors.New("no volume is displayed")
	ErrWidgetDisabled  = errors.New("cursor lines are hidden")
	ErrDuplicateID     = errors.New("dataset id already displayed")
	ErrUnknownDataset  = errors.New("dataset id not displayed")
	ErrUnknownPreset   = errors.New("unknown preset")
	ErrBadOpacity      = errors.New("opacity must be within [0, 1]")
)

// View is one rendering surface of the quad layout.
type View interface {
	router.Member
	ID() string
	Registry() *registry.Registry
	AddVolume(id string, vol *dataset.Volume) error
	AddMesh(id string, mesh *dataset.Mesh) error
	// Remove unregisters id and applies any follow-up rule of the view.
	Remove(id string, suppressRedraw bool)
	Clear(suppressRedraw bool)
	Reset()
	SetOpacity(id string, opacity float64) bool
	Render(w, h int) image.Image
}

// Redrawer receives redraw requests. No view ids means every view. Requests
// are idempotent and may be coalesced.
type Redrawer interface {
	Redraw(views ...string)
}

// RedrawFunc adapts a function to Redrawer.
type RedrawFunc func(views ...string)

func (f RedrawFunc) Redraw(views ...string) { f(views...) }

func addToView(v View, id string, l dataset.Loaded) error {
	switch l.Kind {
	case dataset.KindVolume:
		if l.Volume == nil {
			return dataset.ErrInvalidDataset
		}
		return v.AddVolume(id, l.Volume)
	case dataset.KindMesh:
		if l.Mesh == nil {
			return dataset.ErrInvalidDataset
		}
		return v.AddMesh(id, l.Mesh)
	default:
		return dataset.ErrUnsupportedFormat
	}
}

func validOpacity(o float64) bool {
	return o >= 0 && o <= 1
}
