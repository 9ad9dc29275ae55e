package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Schedule is the review schedule of a card: either Unscheduled (always due)
// or ScheduledFor a specific instant. The zero value is Unscheduled.
type Schedule struct {
	at  time.Time
	set bool
}

// Unscheduled returns the schedule of a card that was never scheduled.
func Unscheduled() Schedule {
	return Schedule{}
}

// ScheduledFor returns a schedule due at t.
func ScheduledFor(t time.Time) Schedule {
	return Schedule{at: t, set: true}
}

// Time returns the scheduled instant and whether the schedule is set.
func (s Schedule) Time() (time.Time, bool) {
	return s.at, s.set
}

// IsScheduled reports whether s carries a timestamp.
func (s Schedule) IsScheduled() bool {
	return s.set
}

// IsZero reports whether s is Unscheduled. It lets `omitzero` drop the field.
func (s Schedule) IsZero() bool {
	return !s.set
}

// DueAt reports whether a card with this schedule is due at now.
// Unscheduled cards are always due; the boundary is inclusive.
func (s Schedule) DueAt(now time.Time) bool {
	return !s.set || !s.at.After(now)
}

func (s Schedule) String() string {
	if !s.set {
		return "unscheduled"
	}
	return s.at.Format(time.RFC3339)
}

// MarshalJSON encodes an unscheduled value as null and a scheduled one as RFC 3339.
func (s Schedule) MarshalJSON() ([]byte, error) {
	if !s.set {
		return []byte("null"), nil
	}
	return json.Marshal(s.at)
}

// UnmarshalJSON accepts null, an empty string, or an RFC 3339 timestamp.
func (s *Schedule) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte(`""`)) {
		*s = Unscheduled()
		return nil
	}
	var t time.Time
	if err := json.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("invalid schedule %s: %w", data, err)
	}
	*s = ScheduledFor(t)
	return nil
}
