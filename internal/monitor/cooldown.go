package monitor

import (
	"time"
)

// AlertState tracks when the last alert went out and enforces the cooldown
// between alerts. It is owned by a single Monitor and is not safe for
// concurrent use on its own.
type AlertState struct {
	lastAlertAt time.Time
	cooldown    time.Duration
}

func NewAlertState(cooldown time.Duration) *AlertState {
	return &AlertState{cooldown: cooldown}
}

// ShouldSuppress reports whether an alert at now falls inside the cooldown.
// The first alert is never suppressed.
func (s *AlertState) ShouldSuppress(now time.Time) bool {
	if s.lastAlertAt.IsZero() {
		return false
	}
	return now.Sub(s.lastAlertAt) < s.cooldown
}

// RecordAlert marks now as the time of the latest alert. Timestamps never
// move backward: an earlier now leaves the recorded time unchanged.
func (s *AlertState) RecordAlert(now time.Time) {
	if !s.lastAlertAt.IsZero() && now.Before(s.lastAlertAt) {
		return
	}
	s.lastAlertAt = now
}

// LastAlertAt returns the recorded alert time, false if no alert was sent yet.
func (s *AlertState) LastAlertAt() (time.Time, bool) {
	return s.lastAlertAt, !s.lastAlertAt.IsZero()
}

func (s *AlertState) Cooldown() time.Duration {
	return s.cooldown
}
