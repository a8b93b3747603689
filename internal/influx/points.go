package influx

import (
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kitchenlens/highlighter/pkg/core"
)

// Measurement names.
const (
	MeasurementBinding      = "binding"
	MeasurementHighlight    = "highlight"
	MeasurementCompletion   = "completion"
	MeasurementUnrecognized = "unrecognized"
	MeasurementStatus       = "status"
)

// BindingPoint records where an object was anchored.
func BindingPoint(r core.BindingRecord) *influxdb2_write.Point {
	return influxdb2_write.NewPoint(MeasurementBinding,
		map[string]string{"session": r.SessionID, "name": r.Name},
		map[string]any{
			"x": r.Pose.Position.X,
			"y": r.Pose.Position.Y,
			"z": r.Pose.Position.Z,
		},
		r.Time)
}

// HighlightPoint records one visibility request.
func HighlightPoint(r core.HighlightRecord) *influxdb2_write.Point {
	return influxdb2_write.NewPoint(MeasurementHighlight,
		map[string]string{"session": r.SessionID, "name": r.Name, "outcome": r.Outcome},
		map[string]any{"show": r.Show},
		r.Time)
}

// CompletionPoint records how long it took to register everything.
func CompletionPoint(r core.CompletionRecord) *influxdb2_write.Point {
	return influxdb2_write.NewPoint(MeasurementCompletion,
		map[string]string{"session": r.SessionID},
		map[string]any{
			"registered": r.Registered,
			"elapsed_ms": r.Elapsed.Milliseconds(),
		},
		r.Time)
}

// UnrecognizedPoint counts a sighting of an uncatalogued code.
func UnrecognizedPoint(r core.UnrecognizedRecord) *influxdb2_write.Point {
	return influxdb2_write.NewPoint(MeasurementUnrecognized,
		map[string]string{"session": r.SessionID, "code": string(r.Code)},
		map[string]any{"count": 1},
		r.Time)
}

// StatusPoint samples registration progress and the timer.
func StatusPoint(session string, registered, total, timerRemaining int, at time.Time) *influxdb2_write.Point {
	return influxdb2_write.NewPoint(MeasurementStatus,
		map[string]string{"session": session},
		map[string]any{
			"registered":      registered,
			"total":           total,
			"timer_remaining": timerRemaining,
		},
		at)
}
