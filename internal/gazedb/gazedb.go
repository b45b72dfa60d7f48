// Package gazedb records per-frame model output (predicted pupil circles,
// gaze directions, sphere-center estimates) to sqlite for offline analysis
// and tuning. It is telemetry of the output boundary only; the model itself
// is never persisted.
package gazedb

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) a gaze telemetry database at path.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS gaze_samples (
			session_id        TEXT,
			frame             BIGINT,
			ts                DOUBLE,
			state             TEXT,
			pupil_x           DOUBLE,
			pupil_y           DOUBLE,
			pupil_z           DOUBLE,
			normal_x          DOUBLE,
			normal_y          DOUBLE,
			normal_z          DOUBLE,
			pupil_radius      DOUBLE,
			gaze_x            DOUBLE,
			gaze_y            DOUBLE,
			gaze_z            DOUBLE,
			sphere_x          DOUBLE,
			sphere_y          DOUBLE,
			sphere_z          DOUBLE,
			confidence        DOUBLE,
			sphere_confidence DOUBLE,
			created           TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_gaze_samples_session
			ON gaze_samples(session_id, frame);
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db}, nil
}

// Sample is one frame of model output.
type Sample struct {
	SessionID        string
	Frame            int64
	Timestamp        float64
	State            string
	PupilCenter      [3]float64
	PupilNormal      [3]float64
	PupilRadius      float64
	Gaze             [3]float64
	SphereCenter     [3]float64
	Confidence       float64
	SphereConfidence float64
}

// RecordSample inserts one frame of output.
func (db *DB) RecordSample(s Sample) error {
	_, err := db.Exec(
		`INSERT INTO gaze_samples (
			session_id, frame, ts, state,
			pupil_x, pupil_y, pupil_z,
			normal_x, normal_y, normal_z, pupil_radius,
			gaze_x, gaze_y, gaze_z,
			sphere_x, sphere_y, sphere_z,
			confidence, sphere_confidence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.SessionID, s.Frame, s.Timestamp, s.State,
		s.PupilCenter[0], s.PupilCenter[1], s.PupilCenter[2],
		s.PupilNormal[0], s.PupilNormal[1], s.PupilNormal[2], s.PupilRadius,
		s.Gaze[0], s.Gaze[1], s.Gaze[2],
		s.SphereCenter[0], s.SphereCenter[1], s.SphereCenter[2],
		s.Confidence, s.SphereConfidence,
	)
	if err != nil {
		return fmt.Errorf("failed to record gaze sample: %w", err)
	}
	return nil
}

// SessionSamples returns all samples of a session in frame order.
func (db *DB) SessionSamples(sessionID string) ([]Sample, error) {
	rows, err := db.Query(
		`SELECT session_id, frame, ts, state,
			pupil_x, pupil_y, pupil_z,
			normal_x, normal_y, normal_z, pupil_radius,
			gaze_x, gaze_y, gaze_z,
			sphere_x, sphere_y, sphere_z,
			confidence, sphere_confidence
		FROM gaze_samples WHERE session_id = ? ORDER BY frame`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var s Sample
		if err := rows.Scan(
			&s.SessionID, &s.Frame, &s.Timestamp, &s.State,
			&s.PupilCenter[0], &s.PupilCenter[1], &s.PupilCenter[2],
			&s.PupilNormal[0], &s.PupilNormal[1], &s.PupilNormal[2], &s.PupilRadius,
			&s.Gaze[0], &s.Gaze[1], &s.Gaze[2],
			&s.SphereCenter[0], &s.SphereCenter[1], &s.SphereCenter[2],
			&s.Confidence, &s.SphereConfidence,
		); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// Summary aggregates one session's telemetry.
type Summary struct {
	SessionID      string
	SampleCount    int64
	MeanConfidence float64
	FinalSphere    [3]float64
}

// SessionSummary returns the sample count, mean combined confidence and the
// final sphere-center estimate of a session.
func (db *DB) SessionSummary(sessionID string) (Summary, error) {
	s := Summary{SessionID: sessionID}
	err := db.QueryRow(
		`SELECT COUNT(*), COALESCE(AVG(confidence), 0) FROM gaze_samples WHERE session_id = ?`,
		sessionID,
	).Scan(&s.SampleCount, &s.MeanConfidence)
	if err != nil {
		return s, err
	}
	if s.SampleCount == 0 {
		return s, nil
	}
	err = db.QueryRow(
		`SELECT sphere_x, sphere_y, sphere_z FROM gaze_samples
		WHERE session_id = ? ORDER BY frame DESC LIMIT 1`,
		sessionID,
	).Scan(&s.FinalSphere[0], &s.FinalSphere[1], &s.FinalSphere[2])
	return s, err
}
