package scene

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"time"

	"medviewer-be/pkg/dataset"
	"medviewer-be/pkg/render"
	"medviewer-be/pkg/store"
	"medviewer-be/pkg/viewer/bridge"
	"medviewer-be/pkg/viewer/cursor"
	"medviewer-be/pkg/viewer/router"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
)

type Options struct {
	State     *store.State
	Scheduler bridge.Scheduler
	Debounce  time.Duration
	Redrawer  Redrawer
	Presets   *render.PresetBook
	Logger    *zap.Logger
}

// Collection is the quad layout of one session: three slice views sharing a
// cursor and a 3D view. Dataset lifecycle and layout changes enter here and
// are fanned out to every view. It must only be used from the session loop.
type Collection struct {
	cursor   *cursor.Model
	router   *router.Router
	bridge   *bridge.Bridge
	layout   *Layout
	redrawer Redrawer
	log      *zap.Logger

	slices [3]*SliceView
	threeD *ThreeDView
	views  []View
	byID   map[string]View

	displayed []string
	kinds     map[string]dataset.Kind
	selected  []string
}

func NewCollection(opts Options) *Collection {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	redrawer := opts.Redrawer
	if redrawer == nil {
		redrawer = RedrawFunc(func(...string) {})
	}
	c := &Collection{
		cursor:   cursor.New(),
		redrawer: redrawer,
		log:      log,
		byID:     make(map[string]View),
		kinds:    make(map[string]dataset.Kind),
	}
	c.cursor.SetOblique(true)
	c.router = router.New(func() { c.redrawer.Redraw() }, log)
	c.bridge = bridge.New(opts.State, opts.Scheduler, opts.Debounce, log)

	for p := cursor.Sagittal; p <= cursor.Axial; p++ {
		id := p.String()
		c.slices[p] = NewSliceView(p, c.cursor, c.router, func() { c.redrawer.Redraw(id) })
	}
	c.threeD = NewThreeDView(c.router, opts.Presets, func() { c.redrawer.Redraw(View3D) })
	c.views = []View{c.slices[cursor.Sagittal], c.threeD, c.slices[cursor.Coronal], c.slices[cursor.Axial]}
	ids := make([]string, 0, len(c.views))
	for _, v := range c.views {
		c.byID[v.ID()] = v
		ids = append(ids, v.ID())
	}
	c.layout = NewLayout(c.bridge, func() { c.redrawer.Redraw() }, ids,
		c.slices[cursor.Sagittal], c.slices[cursor.Coronal], c.slices[cursor.Axial])

	c.publishInitial()
	c.bind()

	c.slices[cursor.Sagittal].Subscription().Activate()
	c.slices[cursor.Coronal].Subscription().Activate()
	c.slices[cursor.Axial].Subscription().Activate()
	c.threeD.Subscription().Activate()
	return c
}

func (c *Collection) Cursor() *cursor.Model  { return c.cursor }
func (c *Collection) Router() *router.Router { return c.router }
func (c *Collection) Bridge() *bridge.Bridge { return c.bridge }
func (c *Collection) Layout() *Layout        { return c.layout }
func (c *Collection) ThreeD() *ThreeDView    { return c.threeD }
func (c *Collection) Views() []View          { return append([]View(nil), c.views...) }
func (c *Collection) Slice(p cursor.Plane) *SliceView {
	return c.slices[p]
}

func (c *Collection) View(id string) (View, error) {
	v, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownView, id)
	}
	return v, nil
}

// Displayed returns the dataset ids in load order.
func (c *Collection) Displayed() []string {
	return append([]string{}, c.displayed...)
}

func (c *Collection) Kind(id string) (dataset.Kind, bool) {
	k, ok := c.kinds[id]
	return k, ok
}

func (c *Collection) primary() *dataset.Volume {
	for _, v := range c.slices {
		if vol := v.PrimaryVolume(); vol != nil {
			return vol
		}
	}
	return nil
}

// Load registers a decoded dataset in every view. Either every view shows
// the dataset or none does.
func (c *Collection) Load(id string, l dataset.Loaded) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", dataset.ErrInvalidDataset)
	}
	if _, ok := c.kinds[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	if l.Kind != dataset.KindVolume && l.Kind != dataset.KindMesh {
		return fmt.Errorf("%w: %s", dataset.ErrUnsupportedFormat, l.Kind)
	}

	hadPrimary := c.primary() != nil
	added := make([]View, 0, len(c.views))
	for _, v := range c.views {
		if err := addToView(v, id, l); err != nil {
			for _, a := range added {
				a.Registry().Unregister(id, true)
			}
			c.log.Warn("dataset rejected", zap.String("id", id), zap.String("view", v.ID()), zap.Error(err))
			return err
		}
		added = append(added, v)
	}
	c.kinds[id] = l.Kind
	c.displayed = append(c.displayed, id)

	_, hasBounds := c.cursor.Bounds()
	if (l.Kind == dataset.KindVolume && !hadPrimary) || !hasBounds {
		if b, ok := l.Bounds(); ok {
			c.cursor.Reset(b)
		}
	}

	c.redrawer.Redraw()
	values := c.cursorValues()
	values[store.KeyDisplayed] = c.Displayed()
	if wl, ok := c.windowLevel(); ok {
		values[store.KeyWindowLevel] = windowLevelValue(wl)
	}
	c.bridge.PublishAll(values)
	c.log.Info("dataset displayed", zap.String("id", id), zap.Stringer("kind", l.Kind))
	return nil
}

// Remove tears down id in every view with a single redraw. Unknown ids are
// ignored.
func (c *Collection) Remove(id string) {
	for _, v := range c.views {
		v.Remove(id, true)
	}
	delete(c.kinds, id)
	c.displayed = without(c.displayed, id)
	c.selected = without(c.selected, id)
	if c.primary() == nil && len(c.displayed) == 0 {
		c.cursor.ClearBounds()
	}

	c.redrawer.Redraw()
	values := c.cursorValues()
	values[store.KeyDisplayed] = c.Displayed()
	values[store.KeySelected] = c.Selected()
	values[store.KeyWindowLevel] = c.windowLevelState()
	c.bridge.PublishAll(values)
}

// Clear empties every view with one redraw and drops the selection.
func (c *Collection) Clear() {
	for _, v := range c.views {
		v.Clear(true)
	}
	c.kinds = make(map[string]dataset.Kind)
	c.displayed = nil
	c.selected = nil
	c.cursor.ClearBounds()

	c.redrawer.Redraw()
	values := c.cursorValues()
	values[store.KeyDisplayed] = []string{}
	values[store.KeySelected] = []string{}
	values[store.KeyWindowLevel] = nil
	c.bridge.PublishAll(values)
}

// Reset recenters the cursor on the data, resets the reslice widgets and
// the 3D camera.
func (c *Collection) Reset() {
	if vol := c.primary(); vol != nil {
		c.cursor.Reset(vol.Bounds())
	} else if b, ok := c.cursor.Bounds(); ok {
		c.cursor.Reset(b)
	}
	for _, v := range c.views {
		v.Reset()
	}
	c.redrawer.Redraw()
	c.bridge.PublishAll(c.cursorValues())
}

func (c *Collection) Selected() []string {
	return append([]string{}, c.selected...)
}

func (c *Collection) IsSelected(id string) bool {
	for _, s := range c.selected {
		if s == id {
			return true
		}
	}
	return false
}

// Select marks id as requested for display.
func (c *Collection) Select(id string) bool {
	if c.IsSelected(id) {
		return false
	}
	c.selected = append(c.selected, id)
	c.bridge.Publish(store.KeySelected, c.Selected())
	return true
}

func (c *Collection) Deselect(id string) bool {
	if !c.IsSelected(id) {
		return false
	}
	c.selected = without(c.selected, id)
	c.bridge.Publish(store.KeySelected, c.Selected())
	return true
}

func (c *Collection) SetObliqueVisible(visible bool) {
	c.layout.SetObliqueVisible(visible)
}

func (c *Collection) SetQuadView(quad bool) {
	c.layout.SetQuadView(quad)
}

func (c *Collection) SetFullscreen(view string) error {
	return c.layout.SetFullscreen(view)
}

// SetObliqueMode allows or forbids rotating the cursor. Leaving oblique mode
// pins the planes back to the axes.
func (c *Collection) SetObliqueMode(enabled bool) {
	c.cursor.SetOblique(enabled)
	c.router.Notify(nil, router.AxesChanged)
	values := c.cursorValues()
	values[store.KeyObliqueMode] = enabled
	c.bridge.PublishAll(values)
}

func (c *Collection) slice(view string) (*SliceView, error) {
	p, ok := cursor.ParsePlane(view)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownView, view)
	}
	return c.slices[p], nil
}

// Scroll moves the cursor by delta slices along the normal of view.
func (c *Collection) Scroll(view string, delta int) error {
	v, err := c.slice(view)
	if err != nil {
		return err
	}
	vol := c.primary()
	if vol == nil {
		return ErrNoPrimaryVolume
	}
	idx, ok := c.cursor.SliceIndex(v.plane, c.cursor.Center(), vol.Spacing)
	if !ok {
		return nil
	}
	return c.moveToSlice(v, idx+delta)
}

// SetSlice moves the cursor to a slice index of view.
func (c *Collection) SetSlice(view string, index int) error {
	v, err := c.slice(view)
	if err != nil {
		return err
	}
	return c.moveToSlice(v, index)
}

func (c *Collection) moveToSlice(v *SliceView, index int) error {
	vol := c.primary()
	if vol == nil {
		return ErrNoPrimaryVolume
	}
	count := c.cursor.SliceCount(v.plane, vol.Spacing)
	if index < 0 {
		index = 0
	}
	if index > count {
		index = count
	}
	pos, ok := c.cursor.PositionFromIndex(v.plane, index, vol.Spacing)
	if !ok || pos == c.cursor.Center() {
		return nil
	}
	c.cursor.SetCenter(pos)
	c.router.Notify(v.style, router.CursorMoved)
	c.interactCursor()
	return nil
}

// DragCursor moves the cursor center to pixel (x, y) of a w×h image of view.
func (c *Collection) DragCursor(view string, x, y float64, w, h int) error {
	v, err := c.interactive(view)
	if err != nil {
		return err
	}
	c.cursor.SetCenter(v.ImagePlane().World(x, y, w, h))
	c.router.Notify(v.style, router.CursorMoved)
	c.interactCursor()
	return nil
}

// RotateCursor turns the other two planes around the normal of view.
func (c *Collection) RotateCursor(view string, degrees float64) error {
	v, err := c.interactive(view)
	if err != nil {
		return err
	}
	if err := c.cursor.Rotate(v.plane, degrees*math.Pi/180); err != nil {
		return err
	}
	c.router.Notify(v.style, router.AxesChanged)
	c.interactCursor()
	return nil
}

func (c *Collection) interactive(view string) (*SliceView, error) {
	v, err := c.slice(view)
	if err != nil {
		return nil, err
	}
	if v.widget == nil {
		return nil, ErrNoPrimaryVolume
	}
	if !v.widget.ProcessEvents() {
		return nil, ErrWidgetDisabled
	}
	return v, nil
}

// WindowLevelDrag adjusts the color mapping of view; siblings follow
// through the router.
func (c *Collection) WindowLevelDrag(view string, dWindow, dLevel float64) error {
	v, err := c.slice(view)
	if err != nil {
		return err
	}
	if v.widget == nil {
		return ErrNoPrimaryVolume
	}
	wl := v.widget.wl.Adjust(dWindow, dLevel)
	v.SetWindowLevel(wl.Window, wl.Level)
	c.router.Notify(v.style, router.WindowLevelChanged)
	c.bridge.Interact(store.KeyWindowLevel, windowLevelValue(wl))
	return nil
}

// SetWindowLevel sets the shared color mapping from a scalar range.
func (c *Collection) SetWindowLevel(min, max float64) error {
	if math.IsNaN(min) || math.IsNaN(max) || max < min {
		return fmt.Errorf("%w: window range [%v, %v]", ErrBadValue, min, max)
	}
	wl := render.FromRange(min, max)
	if err := c.applyWindowLevel(wl); err != nil {
		return err
	}
	c.bridge.Publish(store.KeyWindowLevel, windowLevelValue(wl))
	return nil
}

func (c *Collection) applyWindowLevel(wl render.WindowLevel) error {
	for _, v := range c.slices {
		if v.widget == nil {
			continue
		}
		v.SetWindowLevel(wl.Window, wl.Level)
		c.router.Notify(v.style, router.WindowLevelChanged)
		return nil
	}
	return ErrNoPrimaryVolume
}

func (c *Collection) windowLevel() (render.WindowLevel, bool) {
	for _, v := range c.slices {
		if w, l, ok := v.WindowLevel(); ok {
			return render.WindowLevel{Window: w, Level: l}, true
		}
	}
	return render.WindowLevel{}, false
}

// windowLevelState is the published window/level of the primary volume,
// or nil when no volume is displayed.
func (c *Collection) windowLevelState() interface{} {
	if wl, ok := c.windowLevel(); ok {
		return windowLevelValue(wl)
	}
	return nil
}

// SetDatasetWindowLevel changes the color mapping of one dataset only.
func (c *Collection) SetDatasetWindowLevel(id string, min, max float64) error {
	if _, ok := c.kinds[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDataset, id)
	}
	if max < min {
		return fmt.Errorf("%w: window range [%v, %v]", ErrBadValue, min, max)
	}
	wl := render.FromRange(min, max)
	modified := false
	for _, v := range c.slices {
		modified = v.SetDatasetWindowLevel(id, wl) || modified
	}
	if modified {
		c.redrawer.Redraw()
	}
	return nil
}

func (c *Collection) SetOpacity(id string, opacity float64) error {
	if _, ok := c.kinds[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDataset, id)
	}
	if !validOpacity(opacity) {
		return ErrBadOpacity
	}
	modified := false
	for _, v := range c.views {
		modified = v.SetOpacity(id, opacity) || modified
	}
	if modified {
		c.redrawer.Redraw()
	}
	return nil
}

func (c *Collection) SetMeshColor(id string, col color.RGBA) error {
	if k, ok := c.kinds[id]; !ok || k != dataset.KindMesh {
		return fmt.Errorf("%w: %s", ErrUnknownDataset, id)
	}
	modified := c.threeD.SetMeshColor(id, col)
	for _, v := range c.slices {
		modified = v.SetMeshColor(id, col) || modified
	}
	if modified {
		c.redrawer.Redraw()
	}
	return nil
}

// SetPreset applies a volume rendering preset in the 3D view. An empty id
// targets every volume.
func (c *Collection) SetPreset(id, name string) error {
	modified, err := c.threeD.SetPreset(id, name)
	if err != nil {
		return err
	}
	if modified {
		c.redrawer.Redraw(View3D)
	}
	c.bridge.Publish(store.KeyPreset, name)
	return nil
}

// Zoom scales the field of view of view.
func (c *Collection) Zoom(view string, factor float64) error {
	if view == View3D {
		if c.threeD.Zoom(factor) {
			c.router.Notify(c.threeD.style, router.CameraChanged)
		}
		return nil
	}
	v, err := c.slice(view)
	if err != nil {
		return err
	}
	if v.Zoom(factor) {
		c.router.Notify(v.style, router.CameraChanged)
	}
	return nil
}

// Orbit turns the 3D camera, angles in degrees.
func (c *Collection) Orbit(azimuth, elevation float64) {
	if c.threeD.Orbit(azimuth, elevation) {
		c.router.Notify(c.threeD.style, router.CameraChanged)
	}
}

// EndInteraction publishes the final cursor and color mapping at once.
func (c *Collection) EndInteraction() {
	values := c.cursorValues()
	if wl, ok := c.windowLevel(); ok {
		values[store.KeyWindowLevel] = windowLevelValue(wl)
	}
	c.bridge.EndInteraction(values)
}

// SetExternal applies a shared state change made outside the views. Keys
// without a handler and values the views reject leave the state untouched.
func (c *Collection) SetExternal(key string, value interface{}) error {
	if err := c.bridge.SetExternal(key, value); err != nil {
		c.log.Warn("external change rejected", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

func (c *Collection) Render(view string, w, h int) (image.Image, error) {
	v, err := c.View(view)
	if err != nil {
		return nil, err
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: image size %dx%d", ErrBadValue, w, h)
	}
	return v.Render(w, h), nil
}

// Close drops the state bindings and leaves the router.
func (c *Collection) Close() {
	c.bridge.Close()
	for _, v := range c.slices {
		v.Subscription().Close()
	}
	c.threeD.Subscription().Close()
}

func sliderValueKey(p cursor.Plane) string { return store.KeySliderValuePrefix + p.String() }
func sliderMaxKey(p cursor.Plane) string   { return store.KeySliderMaxPrefix + p.String() }

// cursorValues is the published form of the cursor: position, normals and
// the slider of every plane.
func (c *Collection) cursorValues() map[string]interface{} {
	values := map[string]interface{}{
		store.KeyPosition: vecValue(c.cursor.Center()),
		store.KeyNormals:  normalsValue(c.cursor.Normals()),
	}
	vol := c.primary()
	for p := cursor.Sagittal; p <= cursor.Axial; p++ {
		index, count := 0, 0
		if vol != nil {
			count = c.cursor.SliceCount(p, vol.Spacing)
			index, _ = c.cursor.SliceIndex(p, c.cursor.Center(), vol.Spacing)
		}
		values[sliderValueKey(p)] = index
		values[sliderMaxKey(p)] = count
	}
	return values
}

func (c *Collection) interactCursor() {
	values := c.cursorValues()
	for _, k := range sortedKeys(values) {
		c.bridge.Interact(k, values[k])
	}
}

func (c *Collection) publishInitial() {
	values := c.cursorValues()
	for k, v := range c.layout.Values() {
		values[k] = v
	}
	values[store.KeyObliqueMode] = c.cursor.Oblique()
	values[store.KeyDisplayed] = []string{}
	values[store.KeySelected] = []string{}
	values[store.KeyBusy] = false
	values[store.KeyPreset] = c.threeD.Presets().Default
	c.bridge.PublishAll(values)
}

func (c *Collection) bind() {
	c.bridge.Bind(store.KeyPosition, c.applyPosition)
	c.bridge.Bind(store.KeyNormals, c.applyNormals)
	c.bridge.Bind(store.KeyObliquesVisibility, func(v interface{}) (interface{}, error) {
		b, err := toBool(v)
		if err != nil {
			return nil, err
		}
		c.layout.SetObliqueVisible(b)
		return c.layout.ObliqueVisible(), nil
	})
	c.bridge.Bind(store.KeyQuadView, func(v interface{}) (interface{}, error) {
		b, err := toBool(v)
		if err != nil {
			return nil, err
		}
		c.layout.SetQuadView(b)
		return c.layout.QuadView(), nil
	})
	c.bridge.Bind(store.KeyFullscreen, func(v interface{}) (interface{}, error) {
		view := ""
		if v != nil {
			s, err := toString(v)
			if err != nil {
				return nil, err
			}
			view = s
		}
		if err := c.layout.SetFullscreen(view); err != nil {
			return nil, err
		}
		return c.layout.Fullscreen(), nil
	})
	c.bridge.Bind(store.KeyObliqueMode, func(v interface{}) (interface{}, error) {
		b, err := toBool(v)
		if err != nil {
			return nil, err
		}
		c.SetObliqueMode(b)
		return c.cursor.Oblique(), nil
	})
	c.bridge.Bind(store.KeyWindowLevel, func(v interface{}) (interface{}, error) {
		wl, err := toWindowLevel(v)
		if err != nil {
			return nil, err
		}
		if err := c.applyWindowLevel(wl); err != nil {
			return nil, err
		}
		return windowLevelValue(wl), nil
	})
	c.bridge.Bind(store.KeyPreset, func(v interface{}) (interface{}, error) {
		name, err := toString(v)
		if err != nil {
			return nil, err
		}
		if err := c.SetPreset("", name); err != nil {
			return nil, err
		}
		return name, nil
	})
	for p := cursor.Sagittal; p <= cursor.Axial; p++ {
		v := c.slices[p]
		c.bridge.Bind(sliderValueKey(p), func(value interface{}) (interface{}, error) {
			f, err := toFloat(value)
			if err != nil {
				return nil, err
			}
			if err := c.moveToSlice(v, int(math.Round(f))); err != nil {
				return nil, err
			}
			return c.sliceIndex(v.plane), nil
		})
	}
}

// sliceIndex is the slider value of plane for the current cursor.
func (c *Collection) sliceIndex(p cursor.Plane) int {
	vol := c.primary()
	if vol == nil {
		return 0
	}
	index, _ := c.cursor.SliceIndex(p, c.cursor.Center(), vol.Spacing)
	return index
}

func (c *Collection) applyPosition(v interface{}) (interface{}, error) {
	pos, err := toVec(v)
	if err != nil {
		return nil, err
	}
	if pos != c.cursor.Center() {
		c.cursor.SetCenter(pos)
		c.router.Notify(nil, router.CursorMoved)
		c.interactCursor()
	}
	return vecValue(c.cursor.Center()), nil
}

func (c *Collection) applyNormals(v interface{}) (interface{}, error) {
	normals, err := toNormals(v)
	if err != nil {
		return nil, err
	}
	for p := cursor.Sagittal; p <= cursor.Axial; p++ {
		if r3.Norm(normals[p]) == 0 {
			return nil, cursor.ErrZeroNormal
		}
	}
	current := c.cursor.Normals()
	changed := false
	for p := cursor.Sagittal; p <= cursor.Axial; p++ {
		if r3.Unit(normals[p]) == current[p] {
			continue
		}
		if err := c.cursor.SetNormal(p, normals[p]); err != nil {
			return nil, err
		}
		changed = true
	}
	if changed {
		c.router.Notify(nil, router.AxesChanged)
		c.interactCursor()
	}
	return normalsValue(c.cursor.Normals()), nil
}

func without(ids []string, id string) []string {
	out := ids[:0:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}
