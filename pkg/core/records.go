package core

import "time"

// BindingRecord is journaled once per object when its anchor is created.
type BindingRecord struct {
	ID        uint      `json:"id"`
	SessionID string    `json:"sessionId"`
	Time      time.Time `json:"time"`
	Code      Code      `json:"code"`
	Name      string    `json:"name"`
	AnchorID  string    `json:"anchorId"`
	Pose      Pose      `json:"pose"`
}

// HighlightRecord is journaled for every SetVisible call, successful or not.
type HighlightRecord struct {
	SessionID string    `json:"sessionId"`
	Time      time.Time `json:"time"`
	Name      string    `json:"name"`
	Show      bool      `json:"show"`
	Outcome   string    `json:"outcome"`
}

// CompletionRecord is journaled when every catalogued object is registered.
type CompletionRecord struct {
	SessionID  string        `json:"sessionId"`
	Time       time.Time     `json:"time"`
	Registered int           `json:"registered"`
	Elapsed    time.Duration `json:"elapsed"`
}

// UnrecognizedRecord is journaled for a detection whose code is not catalogued.
type UnrecognizedRecord struct {
	SessionID string    `json:"sessionId"`
	Time      time.Time `json:"time"`
	Code      Code      `json:"code"`
}

// Highlight outcomes recorded in HighlightRecord.Outcome.
const (
	OutcomeOK            = "ok"
	OutcomeNotFound      = "not_found"
	OutcomeNotRegistered = "not_registered"
	OutcomeNoVisual      = "no_visual"
	OutcomeDisabled      = "disabled"
)
