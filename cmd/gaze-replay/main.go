// gaze-replay runs a recorded pupil-ellipse stream through the two-sphere
// eye model and reports the estimated eyeball pose. Input is a CSV with one
// detector result per line:
//
//	frame,timestamp,center_x,center_y,major,minor,angle,confidence
//
// Optionally records per-frame output to a sqlite telemetry database and
// renders convergence plots.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/google/uuid"

	"github.com/banshee-data/gazetrack/internal/camera"
	"github.com/banshee-data/gazetrack/internal/eyemodel"
	"github.com/banshee-data/gazetrack/internal/gazedb"
	"github.com/banshee-data/gazetrack/internal/geometry"
	"github.com/banshee-data/gazetrack/internal/monitor"
)

func main() {
	var (
		inputPath   = flag.String("input", "", "Path to the ellipse CSV stream (required)")
		focalLength = flag.Float64("focal", 620.0, "Camera focal length in pixels")
		width       = flag.Int("width", 640, "Image width in pixels")
		height      = flag.Int("height", 480, "Image height in pixels")
		configPath  = flag.String("config", "", "Optional JSON model config overrides")
		dbPath      = flag.String("db", "", "Optional sqlite telemetry database path")
		plotDir     = flag.String("plot", "", "Optional output directory for convergence plots")
		logInterval = flag.Int("log-interval", 30, "Log the pose estimate every N frames")
	)
	flag.Parse()

	if *inputPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := eyemodel.DefaultModelConfig()
	if *configPath != "" {
		loaded, err := eyemodel.LoadModelConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}

	cam, err := camera.New(*focalLength, *width, *height)
	if err != nil {
		log.Fatalf("invalid camera: %v", err)
	}
	model, err := eyemodel.New(cam, cfg)
	if err != nil {
		log.Fatalf("failed to build model: %v", err)
	}

	var db *gazedb.DB
	if *dbPath != "" {
		db, err = gazedb.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("failed to open telemetry db: %v", err)
		}
		defer db.Close()
	}

	var plotSink *monitor.ConvergencePlotter
	if *plotDir != "" {
		plotSink = monitor.NewConvergencePlotter(nil)
	}

	sessionID := uuid.NewString()
	log.Printf("session %s: replaying %s", sessionID, *inputPath)

	f, err := os.Open(*inputPath)
	if err != nil {
		log.Fatalf("failed to open input: %v", err)
	}
	defer f.Close()

	frames, dropped := 0, 0
	reader := csv.NewReader(f)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("failed to read input: %v", err)
		}
		frame, ellipse, confidence, ts, err := parseRecord(record)
		if err != nil {
			// Header or malformed line.
			if frames == 0 && dropped == 0 {
				continue
			}
			dropped++
			continue
		}
		frames++

		obs, err := model.Observe(ellipse, confidence, ts)
		if err != nil {
			dropped++
			continue
		}

		circle, combined, err := model.PredictPupilCircle(obs, false)
		if err != nil {
			dropped++
			continue
		}
		gaze := model.GazeDirection(circle)
		estimate := model.SphereCenter()

		if plotSink != nil {
			plotSink.Sample(monitor.EstimatePoint{
				Frame:      frame,
				Center3D:   [3]float64{estimate.Center3D.X, estimate.Center3D.Y, estimate.Center3D.Z},
				Confidence: estimate.Confidence,
			})
		}
		if db != nil {
			sample := gazedb.Sample{
				SessionID:        sessionID,
				Frame:            int64(frame),
				Timestamp:        ts,
				State:            string(model.State()),
				PupilCenter:      [3]float64{circle.Center.X, circle.Center.Y, circle.Center.Z},
				PupilNormal:      [3]float64{circle.Normal.X, circle.Normal.Y, circle.Normal.Z},
				PupilRadius:      circle.Radius,
				Gaze:             [3]float64{gaze.X, gaze.Y, gaze.Z},
				SphereCenter:     [3]float64{estimate.Center3D.X, estimate.Center3D.Y, estimate.Center3D.Z},
				Confidence:       combined,
				SphereConfidence: estimate.Confidence,
			}
			if err := db.RecordSample(sample); err != nil {
				log.Printf("frame %d: %v", frame, err)
			}
		}

		if *logInterval > 0 && frames%*logInterval == 0 {
			log.Printf("frame %d state=%s center=(%.2f, %.2f, %.2f)mm confidence=%.2f",
				frame, model.State(),
				estimate.Center3D.X, estimate.Center3D.Y, estimate.Center3D.Z,
				estimate.Confidence)
		}
	}

	estimate := model.SphereCenter()
	log.Printf("session %s: %d frames (%d dropped), final state=%s center=(%.2f, %.2f, %.2f)mm confidence=%.2f",
		sessionID, frames, dropped, model.State(),
		estimate.Center3D.X, estimate.Center3D.Y, estimate.Center3D.Z,
		estimate.Confidence)

	if plotSink != nil && plotSink.Count() > 0 {
		if err := plotSink.Save(*plotDir); err != nil {
			log.Fatalf("failed to save plots: %v", err)
		}
		log.Printf("convergence plots written to %s", *plotDir)
	}
}

// parseRecord decodes one CSV line:
// frame,timestamp,center_x,center_y,major,minor,angle,confidence
func parseRecord(record []string) (int, geometry.Ellipse, float64, float64, error) {
	var e geometry.Ellipse
	if len(record) != 8 {
		return 0, e, 0, 0, fmt.Errorf("expected 8 fields, got %d", len(record))
	}
	vals := make([]float64, 8)
	for i, field := range record {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return 0, e, 0, 0, fmt.Errorf("field %d: %w", i, err)
		}
		vals[i] = v
	}
	e = geometry.Ellipse{
		Center:      [2]float64{vals[2], vals[3]},
		MajorRadius: vals[4],
		MinorRadius: vals[5],
		Angle:       vals[6],
	}
	return int(vals[0]), e, vals[7], vals[1], nil
}
