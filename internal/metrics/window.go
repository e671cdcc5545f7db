package metrics

import (
	"errors"
	"fmt"
	"time"
)

// DefaultWindow is the length used when a caller names no start.
const DefaultWindow = 7 * 24 * time.Hour

// Window is the half-open time range [Start, End) a metric covers.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Days returns the window length in days, never less than zero.
func (w Window) Days() float64 {
	d := w.End.Sub(w.Start).Hours() / 24
	if d < 0 {
		return 0
	}
	return d
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// ParseWindow builds a window from optional RFC 3339 or YYYY-MM-DD
// bounds. End defaults to now and Start to DefaultWindow before End.
func ParseWindow(start, end string, now time.Time) (Window, error) {
	w := Window{End: now.UTC()}
	if end != "" {
		t, err := parseBound(end)
		if err != nil {
			return Window{}, fmt.Errorf("invalid end: %w", err)
		}
		w.End = t
	}
	w.Start = w.End.Add(-DefaultWindow)
	if start != "" {
		t, err := parseBound(start)
		if err != nil {
			return Window{}, fmt.Errorf("invalid start: %w", err)
		}
		w.Start = t
	}
	if !w.Start.Before(w.End) {
		return Window{}, errors.New("start must be before end")
	}
	return w, nil
}

func parseBound(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC 3339 nor YYYY-MM-DD", s)
	}
	return t, nil
}
