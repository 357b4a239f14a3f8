package models

import (
	"time"
)

// DecisionKind is the outcome of one monitoring cycle.
type DecisionKind string

const (
	DecisionNoData     DecisionKind = "no_data"
	DecisionSuppressed DecisionKind = "suppressed"
	DecisionReportOnly DecisionKind = "report_only"
	DecisionAlert      DecisionKind = "alert"
)

// Decision records what a single check concluded and the data it used.
// Notified is false when rendering or delivery failed for this cycle.
type Decision struct {
	ID       string            `json:"id"`
	Kind     DecisionKind      `json:"kind"`
	Reading  IndexReading      `json:"reading"`
	Verdict  VisibilityVerdict `json:"verdict"`
	At       time.Time         `json:"at"`
	Artifact *Artifact         `json:"artifact,omitempty"`
	Notified bool              `json:"notified"`
}

// MessageKind selects the notification template.
type MessageKind string

const (
	MessageAlert         MessageKind = "alert"
	MessageDailyReport   MessageKind = "daily_report"
	MessageStartupNotice MessageKind = "startup_notice"
)

// Artifact is the handle to a rendered map.
type Artifact struct {
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
}

// Report is the payload handed to the notifier for every message kind.
type Report struct {
	Kind            MessageKind
	Observer        ObserverLocation
	Reading         IndexReading
	Verdict         VisibilityVerdict
	KpThreshold     float64
	Cooldown        time.Duration
	CheckInterval   time.Duration
	DailyReportTime string
	GeneratedAt     time.Time
}

// GeneratedAtDisplay renders GeneratedAt in its own location,
// e.g. "2024-01-15 06:00 PM CST".
func (r Report) GeneratedAtDisplay() string {
	return r.GeneratedAt.Format("2006-01-02 03:04 PM MST")
}
