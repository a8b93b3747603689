// Package core holds the value types shared between the engine, the host
// bridge and the journal backends.
package core

import (
	"encoding/json"
	"time"
)

// Code is the opaque token decoded from a printed marker.
type Code string

// Empty reports whether the decoded payload carried no data.
func (c Code) Empty() bool {
	return c == ""
}

// Position3D is a position in the tracking subsystem's world frame, in metres.
type Position3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion is a rotation in the tracking subsystem's world frame.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// IdentityRotation is the rotation used when a detection carries none.
var IdentityRotation = Quaternion{W: 1}

// Pose is a world-space position and orientation.
type Pose struct {
	Position Position3D `json:"position"`
	Rotation Quaternion `json:"rotation"`
}

// DetectionEvent is a single marker sighting delivered by the tracker.
// It is not retained past the dispatch call that received it.
type DetectionEvent struct {
	Code Code
	Pose Pose
}

// ObjectSpec is one catalogue entry as supplied by configuration.
type ObjectSpec struct {
	Code   Code       `json:"code" mapstructure:"code"`
	Name   string     `json:"name" mapstructure:"name"`
	Visual string     `json:"visual" mapstructure:"visual"`
	Offset Position3D `json:"offset" mapstructure:"offset"`
}

// Session identifies one run of the engine.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartedAt time.Time `json:"startedAt"`
	Objects   int       `json:"objects"`
}

// Step is one instruction of a procedure. ObjectName is the catalogue name
// highlighted while the step is current.
type Step struct {
	Instruction string `json:"instruction"`
	ObjectName  string `json:"objectName"`
	VideoURL    string `json:"videoUrl"`
}

// UnmarshalJSON also accepts the older spiceID and video field names.
func (s *Step) UnmarshalJSON(data []byte) error {
	var raw struct {
		Instruction string `json:"instruction"`
		ObjectName  string `json:"objectName"`
		SpiceID     string `json:"spiceID"`
		VideoURL    string `json:"videoUrl"`
		Video       string `json:"video"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Instruction = raw.Instruction
	s.ObjectName = raw.ObjectName
	if s.ObjectName == "" {
		s.ObjectName = raw.SpiceID
	}
	s.VideoURL = raw.VideoURL
	if s.VideoURL == "" {
		s.VideoURL = raw.Video
	}
	return nil
}

// Recipe is an ordered list of steps.
type Recipe struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Steps []Step `json:"steps"`
}

// UploadMetadata describes a journal export sent to the recipe server.
type UploadMetadata struct {
	SessionName string
	RecipeID    string
	Duration    float64
	Tag         string
}
