// Package util holds small formatting helpers shared by the command-line tools.
package util //nolint:revive // util is the home for display helpers with no better owner

import "time"

// FormatElapsed renders the time between two instants for display. A missing end
// or a non-positive span renders as "-"; anything else is truncated to milliseconds.
func FormatElapsed(start time.Time, end *time.Time) string {
	if end == nil {
		return "-"
	}
	d := end.Sub(start)
	switch {
	case d <= 0:
		return "-"
	case d < time.Millisecond:
		return d.String()
	default:
		return d.Truncate(time.Millisecond).String()
	}
}
