// Package monitor renders offline diagnostic plots of eye-model runs.
package monitor

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// EstimatePoint is one frame's sphere-center estimate.
type EstimatePoint struct {
	Frame      int
	Center3D   [3]float64
	Confidence float64
}

// ConvergencePlotter accumulates per-frame estimates for plotting after a
// replay run.
type ConvergencePlotter struct {
	points []EstimatePoint
	truth  *[3]float64
}

// NewConvergencePlotter creates an empty plotter. truth, when non-nil, is
// drawn as a reference level on each axis plot.
func NewConvergencePlotter(truth *[3]float64) *ConvergencePlotter {
	return &ConvergencePlotter{truth: truth}
}

// Sample records one frame's estimate.
func (cp *ConvergencePlotter) Sample(p EstimatePoint) {
	cp.points = append(cp.points, p)
}

// Count returns the number of recorded samples.
func (cp *ConvergencePlotter) Count() int { return len(cp.points) }

// Save writes one PNG per axis (x, y, z against frame index) into dir.
func (cp *ConvergencePlotter) Save(dir string) error {
	if len(cp.points) == 0 {
		return fmt.Errorf("no samples recorded")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	names := [3]string{"x", "y", "z"}
	for axis := 0; axis < 3; axis++ {
		p := plot.New()
		p.Title.Text = fmt.Sprintf("sphere center %s (mm)", names[axis])
		p.X.Label.Text = "frame"
		p.Y.Label.Text = "mm"

		pts := make(plotter.XYs, len(cp.points))
		for i, ep := range cp.points {
			pts[i].X = float64(ep.Frame)
			pts[i].Y = ep.Center3D[axis]
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Width = vg.Points(1)
		p.Add(line)

		if cp.truth != nil {
			ref := make(plotter.XYs, 2)
			ref[0].X = float64(cp.points[0].Frame)
			ref[1].X = float64(cp.points[len(cp.points)-1].Frame)
			ref[0].Y = cp.truth[axis]
			ref[1].Y = cp.truth[axis]
			refLine, err := plotter.NewLine(ref)
			if err != nil {
				return err
			}
			refLine.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
			p.Add(refLine)
		}

		file := filepath.Join(dir, fmt.Sprintf("sphere_center_%s.png", names[axis]))
		if err := p.Save(10*vg.Inch, 4*vg.Inch, file); err != nil {
			return fmt.Errorf("failed to save %s: %w", file, err)
		}
	}
	return nil
}
