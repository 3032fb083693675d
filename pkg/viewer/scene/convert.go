package scene

import (
	"errors"
	"fmt"
	"sort"

	"medviewer-be/pkg/render"

	"gonum.org/v1/gonum/spatial/r3"
)

var ErrBadValue = errors.New("bad state value")

// State values are kept in JSON friendly shapes so remote observers and the
// store's equality check see the same thing.

func vecValue(v r3.Vec) []float64 {
	return []float64{v.X, v.Y, v.Z}
}

func normalsValue(ns [3]r3.Vec) [][]float64 {
	out := make([][]float64, len(ns))
	for i, n := range ns {
		out[i] = vecValue(n)
	}
	return out
}

func windowLevelValue(wl render.WindowLevel) map[string]interface{} {
	return map[string]interface{}{"window": wl.Window, "level": wl.Level}
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%w: %v is not a number", ErrBadValue, v)
	}
}

func toFloats(v interface{}) ([]float64, error) {
	switch s := v.(type) {
	case []float64:
		return s, nil
	case []interface{}:
		out := make([]float64, len(s))
		for i, e := range s {
			f, err := toFloat(e)
			if err != nil {
				return nil, err
			}
			out[i] = f
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %v is not a list", ErrBadValue, v)
	}
}

func toVec(v interface{}) (r3.Vec, error) {
	if vec, ok := v.(r3.Vec); ok {
		return vec, nil
	}
	f, err := toFloats(v)
	if err != nil {
		return r3.Vec{}, err
	}
	if len(f) != 3 {
		return r3.Vec{}, fmt.Errorf("%w: want 3 components, got %d", ErrBadValue, len(f))
	}
	return r3.Vec{X: f[0], Y: f[1], Z: f[2]}, nil
}

func toNormals(v interface{}) ([3]r3.Vec, error) {
	var out [3]r3.Vec
	var items []interface{}
	switch s := v.(type) {
	case [][]float64:
		for _, e := range s {
			items = append(items, e)
		}
	case []interface{}:
		items = s
	default:
		return out, fmt.Errorf("%w: %v is not a list of normals", ErrBadValue, v)
	}
	if len(items) != 3 {
		return out, fmt.Errorf("%w: want 3 normals, got %d", ErrBadValue, len(items))
	}
	for i, item := range items {
		n, err := toVec(item)
		if err != nil {
			return out, err
		}
		out[i] = n
	}
	return out, nil
}

func toWindowLevel(v interface{}) (render.WindowLevel, error) {
	switch wl := v.(type) {
	case render.WindowLevel:
		return wl, nil
	case map[string]interface{}:
		w, err := toFloat(wl["window"])
		if err != nil {
			return render.WindowLevel{}, err
		}
		l, err := toFloat(wl["level"])
		if err != nil {
			return render.WindowLevel{}, err
		}
		return render.WindowLevel{Window: w, Level: l}, nil
	default:
		return render.WindowLevel{}, fmt.Errorf("%w: %v is not a window/level", ErrBadValue, v)
	}
}

func toBool(v interface{}) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %v is not a bool", ErrBadValue, v)
	}
	return b, nil
}

func toString(v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %v is not a string", ErrBadValue, v)
	}
	return s, nil
}

func sortedKeys(values map[string]interface{}) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
