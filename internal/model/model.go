package model

import (
	"encoding/json"
	"time"

	"github.com/kitchenlens/highlighter/internal/geo"
	"github.com/kitchenlens/highlighter/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Session{},
	&Binding{},
	&HighlightEvent{},
	&CompletionEvent{},
	&UnrecognizedEvent{},
}

// Session is one engine run. Every other table hangs off it.
type Session struct {
	gorm.Model
	SessionID string     `json:"sessionId" gorm:"size:36;uniqueIndex"`
	Name      string     `json:"name" gorm:"size:127"`
	StartedAt time.Time  `json:"startedAt"`
	Objects   int        `json:"objects"`
	EndedAt   *time.Time `json:"endedAt"`
}

func (*Session) TableName() string {
	return "sessions"
}

// Binding records an anchor created for a catalogued object.
type Binding struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	SessionID string         `json:"sessionId" gorm:"size:36;index:idx_binding_session"`
	Time      time.Time      `json:"time" gorm:"index:idx_binding_time"`
	Code      string         `json:"code" gorm:"size:255"`
	Name      string         `json:"name" gorm:"size:127"`
	AnchorID  string         `json:"anchorId" gorm:"size:64"`
	Location  geom.Point     `json:"location" gorm:"type:geometry"`
	Pose      datatypes.JSON `json:"pose"`
}

func (*Binding) TableName() string {
	return "bindings"
}

// HighlightEvent records one visibility request and its outcome.
type HighlightEvent struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	SessionID string    `json:"sessionId" gorm:"size:36;index:idx_highlight_session"`
	Time      time.Time `json:"time"`
	Name      string    `json:"name" gorm:"size:127"`
	Show      bool      `json:"show"`
	Outcome   string    `json:"outcome" gorm:"size:32"`
}

func (*HighlightEvent) TableName() string {
	return "highlight_events"
}

// CompletionEvent is written once per session, when every object is bound.
type CompletionEvent struct {
	ID         uint      `json:"id" gorm:"primarykey"`
	SessionID  string    `json:"sessionId" gorm:"size:36;uniqueIndex"`
	Time       time.Time `json:"time"`
	Registered int       `json:"registered"`
	ElapsedMs  int64     `json:"elapsedMs"`
}

func (*CompletionEvent) TableName() string {
	return "completion_events"
}

// UnrecognizedEvent records a decoded code that is not in the catalogue.
type UnrecognizedEvent struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	SessionID string    `json:"sessionId" gorm:"size:36;index:idx_unrecognized_session"`
	Time      time.Time `json:"time"`
	Code      string    `json:"code" gorm:"size:255"`
}

func (*UnrecognizedEvent) TableName() string {
	return "unrecognized_events"
}

////////////////////////
// CONVERSION
////////////////////////

// SessionFromCore converts a core.Session.
func SessionFromCore(s core.Session) Session {
	return Session{
		SessionID: s.ID,
		Name:      s.Name,
		StartedAt: s.StartedAt,
		Objects:   s.Objects,
	}
}

// BindingFromCore converts a core.BindingRecord. The pose is kept whole as
// JSON and its position again as a point for spatial queries.
func BindingFromCore(r core.BindingRecord) Binding {
	pose, err := json.Marshal(r.Pose)
	if err != nil {
		pose = []byte("{}")
	}
	// positions reaching the journal were checked by the parser
	location, _ := geo.PointFromPosition(r.Pose.Position)
	return Binding{
		SessionID: r.SessionID,
		Time:      r.Time,
		Code:      string(r.Code),
		Name:      r.Name,
		AnchorID:  r.AnchorID,
		Location:  location,
		Pose:      datatypes.JSON(pose),
	}
}

// HighlightFromCore converts a core.HighlightRecord.
func HighlightFromCore(r core.HighlightRecord) HighlightEvent {
	return HighlightEvent{
		SessionID: r.SessionID,
		Time:      r.Time,
		Name:      r.Name,
		Show:      r.Show,
		Outcome:   r.Outcome,
	}
}

// CompletionFromCore converts a core.CompletionRecord.
func CompletionFromCore(r core.CompletionRecord) CompletionEvent {
	return CompletionEvent{
		SessionID:  r.SessionID,
		Time:       r.Time,
		Registered: r.Registered,
		ElapsedMs:  r.Elapsed.Milliseconds(),
	}
}

// UnrecognizedFromCore converts a core.UnrecognizedRecord.
func UnrecognizedFromCore(r core.UnrecognizedRecord) UnrecognizedEvent {
	return UnrecognizedEvent{
		SessionID: r.SessionID,
		Time:      r.Time,
		Code:      string(r.Code),
	}
}
