package caliper

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/StefanHeng/test-ECG-Signal-Viewer/errors"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/render"
)

// ShapeDiff is what the renderer reports after a caliper gesture. It carries
// either the whole shape collection (a shape was drawn or erased) or the new
// corners of a single shape (a shape was dragged or resized).
type ShapeDiff struct {
	Shapes []render.Shape
	Edit   *ShapeEdit
}

// ShapeEdit names the position of a moved shape and its new corners.
type ShapeEdit struct {
	Index int
	Shape render.Shape
}

// CollectionDiff reports the renderer's full shape collection.
func CollectionDiff(shapes []render.Shape) ShapeDiff {
	if shapes == nil {
		shapes = []render.Shape{}
	}
	return ShapeDiff{Shapes: shapes}
}

// EditDiff reports new corners for the shape at index.
func EditDiff(index int, shape render.Shape) ShapeDiff {
	return ShapeDiff{Edit: &ShapeEdit{Index: index, Shape: shape}}
}

// IsEdit reports whether the diff names a single changed shape.
func (d ShapeDiff) IsEdit() bool {
	return d.Edit != nil
}

var editKey = regexp.MustCompile(`^shapes\[(\d+)\]\.(x0|x1|y0|y1)$`)

// timeLayouts are the datetime forms a date axis reports, relative to the
// Unix epoch.
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseShapeDiff decodes a relayout-style payload:
//
//	{"shapes": [{"x0": 10000, "x1": 20000, "y0": -5, "y1": 5}]}
//	{"shapes[0].x0": 12000, "shapes[0].x1": 20000, "shapes[0].y0": -5, "shapes[0].y1": 5}
//
// X values are milliseconds from the start of the recording, or datetime
// strings offset from the Unix epoch. Missing coordinates are a protocol
// violation and yield a fatal error.
func ParseShapeDiff(raw map[string]any) (ShapeDiff, error) {
	if rawShapes, ok := raw["shapes"]; ok {
		list, ok := rawShapes.([]any)
		if !ok {
			return ShapeDiff{}, malformed("shapes is %T, not a list", rawShapes)
		}
		shapes := make([]render.Shape, 0, len(list))
		for i, item := range list {
			fields, ok := item.(map[string]any)
			if !ok {
				return ShapeDiff{}, malformed("shapes[%d] is %T, not an object", i, item)
			}
			shape, err := parseCorners(fields, func(name string) string { return name }, fmt.Sprintf("shapes[%d]", i))
			if err != nil {
				return ShapeDiff{}, err
			}
			shapes = append(shapes, shape)
		}
		return CollectionDiff(shapes), nil
	}

	index := -1
	fields := make(map[string]any, 4)
	for key, value := range raw {
		match := editKey.FindStringSubmatch(key)
		if match == nil {
			continue
		}
		i, err := strconv.Atoi(match[1])
		if err != nil {
			return ShapeDiff{}, malformed("bad shape index in %q", key)
		}
		if index != -1 && i != index {
			return ShapeDiff{}, malformed("edit names shapes %d and %d", index, i)
		}
		index = i
		fields[match[2]] = value
	}
	if index == -1 {
		keys := make([]string, 0, len(raw))
		for k := range raw {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return ShapeDiff{}, malformed("no shape keys in payload [%s]", strings.Join(keys, ", "))
	}

	shape, err := parseCorners(fields, func(name string) string { return name }, fmt.Sprintf("shapes[%d]", index))
	if err != nil {
		return ShapeDiff{}, err
	}
	return EditDiff(index, shape), nil
}

// UnmarshalJSON decodes the relayout-style payload accepted by ParseShapeDiff.
func (d *ShapeDiff) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return malformed("decode payload: %v", err)
	}
	parsed, err := ParseShapeDiff(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func parseCorners(fields map[string]any, name func(string) string, where string) (render.Shape, error) {
	var shape render.Shape
	var err error
	if shape.X0, err = parseX(fields, name("x0"), where); err != nil {
		return render.Shape{}, err
	}
	if shape.X1, err = parseX(fields, name("x1"), where); err != nil {
		return render.Shape{}, err
	}
	if shape.Y0, err = parseY(fields, name("y0"), where); err != nil {
		return render.Shape{}, err
	}
	if shape.Y1, err = parseY(fields, name("y1"), where); err != nil {
		return render.Shape{}, err
	}
	if fill, ok := fields["fillcolor"].(string); ok {
		shape.Fill = fill
	}
	return shape, nil
}

func parseX(fields map[string]any, key, where string) (time.Duration, error) {
	value, ok := fields[key]
	if !ok {
		return 0, malformed("%s.%s missing", where, key)
	}
	var ms float64
	switch v := value.(type) {
	case float64:
		ms = v
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, malformed("%s.%s: %v", where, key, err)
		}
		ms = f
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			for _, layout := range timeLayouts {
				if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
					return t.Sub(time.Unix(0, 0).UTC()), nil
				}
			}
			return 0, malformed("%s.%s: unrecognized time %q", where, key, v)
		}
		ms = f
	default:
		return 0, malformed("%s.%s is %T", where, key, value)
	}
	if !finite(ms) || math.Abs(ms) >= maxMillis {
		return 0, malformed("%s.%s: time %v out of range", where, key, ms)
	}
	return render.FromMillis(ms), nil
}

func parseY(fields map[string]any, key, where string) (float64, error) {
	value, ok := fields[key]
	if !ok {
		return 0, malformed("%s.%s missing", where, key)
	}
	var y float64
	switch v := value.(type) {
	case float64:
		y = v
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, malformed("%s.%s: %v", where, key, err)
		}
		y = f
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, malformed("%s.%s: %v", where, key, err)
		}
		y = f
	default:
		return 0, malformed("%s.%s is %T", where, key, value)
	}
	if !finite(y) {
		return 0, malformed("%s.%s: amplitude %v is not finite", where, key, y)
	}
	return y, nil
}

// maxMillis bounds the offsets a time.Duration holds, in milliseconds.
const maxMillis = float64(math.MaxInt64) / float64(time.Millisecond)

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func malformed(format string, args ...any) error {
	return errors.WrapFatal(
		fmt.Errorf("%w: %s", errors.ErrMalformedShapeDiff, fmt.Sprintf(format, args...)),
		"ShapeDiff", "Parse", "decode renderer payload")
}
