// Package geo validates tracker-frame positions and turns them into the WKB
// points the journal stores.
//
// Points are stored as XYZ in the tracking subsystem's local frame, in metres.
// There is no SRID; the frame is only meaningful within one session.
package geo

import (
	"errors"
	"fmt"
	"math"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/kitchenlens/highlighter/pkg/core"
)

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// PointFromPosition builds an XYZ point. Non-finite coordinates are rejected.
func PointFromPosition(p core.Position3D) (geom.Point, error) {
	pt, err := geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: p.X, Y: p.Y},
		Z:    p.Z,
		Type: geom.DimXYZ,
	})
	if err != nil {
		return geom.NewEmptyPoint(geom.DimXYZ), fmt.Errorf("%w: %v", ErrInvalidCoordinates, err)
	}
	return pt, nil
}

// PositionFromSlice converts a decoded [x,y,z] array.
func PositionFromSlice(v []float64) (core.Position3D, error) {
	if len(v) != 3 {
		return core.Position3D{}, ErrInvalidCoordinates
	}
	for _, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return core.Position3D{}, ErrInvalidCoordinates
		}
	}
	return core.Position3D{X: v[0], Y: v[1], Z: v[2]}, nil
}

// RotationFromSlice converts a decoded [x,y,z,w] quaternion and normalises
// it. A zero quaternion is rejected.
func RotationFromSlice(v []float64) (core.Quaternion, error) {
	if len(v) != 4 {
		return core.Quaternion{}, ErrInvalidCoordinates
	}
	norm := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2] + v[3]*v[3])
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return core.Quaternion{}, ErrInvalidCoordinates
	}
	return core.Quaternion{X: v[0] / norm, Y: v[1] / norm, Z: v[2] / norm, W: v[3] / norm}, nil
}
