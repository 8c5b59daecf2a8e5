package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// CallingWindow is the daily span, in minutes after local midnight, during which
// scheduled batches may start. The zero value allows every minute.
type CallingWindow struct {
	start, end int
	set        bool
}

// ParseWindow builds a window from "HH:MM" bounds. Both empty means always open.
// An end at or before the start spans midnight.
func ParseWindow(start, end string) (CallingWindow, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start == "" && end == "" {
		return CallingWindow{}, nil
	}
	s, err := parseClock(start)
	if err != nil {
		return CallingWindow{}, fmt.Errorf("scheduler: calling window start: %w", err)
	}
	e, err := parseClock(end)
	if err != nil {
		return CallingWindow{}, fmt.Errorf("scheduler: calling window end: %w", err)
	}
	if s == e {
		return CallingWindow{}, fmt.Errorf("scheduler: calling window must have positive duration")
	}
	return CallingWindow{start: s, end: e, set: true}, nil
}

// Contains reports whether now, read in loc, falls inside the window.
func (w CallingWindow) Contains(now time.Time, loc *time.Location) bool {
	if !w.set {
		return true
	}
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()

	if w.end <= w.start {
		// window spans midnight
		return minute >= w.start || minute < w.end
	}
	return minute >= w.start && minute < w.end
}

// String renders the window as "HH:MM-HH:MM".
func (w CallingWindow) String() string {
	if !w.set {
		return "always"
	}
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.start/60, w.start%60, w.end/60, w.end%60)
}

func parseClock(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", v)
	}
	return t.Hour()*60 + t.Minute(), nil
}
