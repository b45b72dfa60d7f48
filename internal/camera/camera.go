// Package camera provides the pinhole camera model shared read-only by all
// eye-model instances: intrinsics, image-region validation, and the
// project/unproject primitives bridging image pixels and camera space.
package camera

import (
	"errors"
	"fmt"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/gazetrack/internal/geometry"
)

// ErrInvalidIntrinsics is returned by New for unusable camera parameters.
var ErrInvalidIntrinsics = errors.New("invalid camera intrinsics")

// Model is an immutable pinhole camera. Safe for concurrent use by any
// number of eye-model instances once constructed.
type Model struct {
	focalLength float64
	width       int
	height      int
}

// New validates the intrinsics and builds a camera model. Focal length is in
// pixels; width and height are the sensor resolution.
func New(focalLength float64, width, height int) (*Model, error) {
	if focalLength <= 0 {
		return nil, fmt.Errorf("focal length must be positive, got %v: %w", focalLength, ErrInvalidIntrinsics)
	}
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("resolution must be at least 1x1, got %dx%d: %w", width, height, ErrInvalidIntrinsics)
	}
	return &Model{focalLength: focalLength, width: width, height: height}, nil
}

// FocalLength returns the focal length in pixels.
func (m *Model) FocalLength() float64 { return m.focalLength }

// Resolution returns the sensor width and height in pixels.
func (m *Model) Resolution() (width, height int) { return m.width, m.height }

// ContainsPoint reports whether an absolute pixel position lies inside the
// image region.
func (m *Model) ContainsPoint(x, y float64) bool {
	return x >= 0 && x <= float64(m.width) && y >= 0 && y <= float64(m.height)
}

// ToRelative converts an absolute pixel position (origin top-left) into
// principal-point-relative coordinates used by the geometry package.
func (m *Model) ToRelative(px [2]float64) [2]float64 {
	return [2]float64{px[0] - float64(m.width)/2, px[1] - float64(m.height)/2}
}

// ToAbsolute converts principal-point-relative coordinates back into
// absolute pixels.
func (m *Model) ToAbsolute(px [2]float64) [2]float64 {
	return [2]float64{px[0] + float64(m.width)/2, px[1] + float64(m.height)/2}
}

// NormalizeEllipse shifts an ellipse given in absolute image pixels into
// principal-point-relative coordinates and canonical axis order.
func (m *Model) NormalizeEllipse(e geometry.Ellipse) geometry.Ellipse {
	out := e.Canonical()
	out.Center = m.ToRelative(out.Center)
	return out
}

// DenormalizeEllipse shifts a principal-point-relative ellipse back into
// absolute image pixels.
func (m *Model) DenormalizeEllipse(e geometry.Ellipse) geometry.Ellipse {
	out := e
	out.Center = m.ToAbsolute(out.Center)
	return out
}

// UnprojectEllipse lifts a principal-point-relative ellipse into its two
// candidate circles of the given radius.
func (m *Model) UnprojectEllipse(e geometry.Ellipse, radius float64) ([2]geometry.Circle, error) {
	return geometry.UnprojectEllipse(e, m.focalLength, radius)
}

// ProjectCircle projects a camera-space circle into a principal-point-
// relative ellipse.
func (m *Model) ProjectCircle(c geometry.Circle) (geometry.Ellipse, error) {
	return geometry.ProjectCircle(c, m.focalLength)
}

// ProjectPoint projects a camera-space point into principal-point-relative
// pixels.
func (m *Model) ProjectPoint(p r3.Vector) [2]float64 {
	return geometry.ProjectPoint(p, m.focalLength)
}

// ProjectDirection projects a camera-space direction attached at p into the
// image plane. Not normalized.
func (m *Model) ProjectDirection(p, d r3.Vector) [2]float64 {
	return geometry.ProjectDirection(p, d, m.focalLength)
}

// UnprojectPoint lifts principal-point-relative pixels into the unit viewing
// ray direction.
func (m *Model) UnprojectPoint(px [2]float64) r3.Vector {
	return geometry.UnprojectPoint(px, m.focalLength)
}
