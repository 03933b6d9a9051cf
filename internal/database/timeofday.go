package database

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time expressed as seconds since midnight.
// Store drivers surface TIME columns in several shapes (strings, byte
// slices, absolute timestamps, durations); everything normalizes to this
// single comparable type before any schedule comparison happens.
type TimeOfDay int

// NewTimeOfDay builds a TimeOfDay from clock components.
func NewTimeOfDay(hour, minute, second int) TimeOfDay {
	return TimeOfDay(hour*3600 + minute*60 + second)
}

// TimeOfDayFromTime extracts the clock reading of an absolute time.
func TimeOfDayFromTime(t time.Time) TimeOfDay {
	return NewTimeOfDay(t.Hour(), t.Minute(), t.Second())
}

// ParseTimeOfDay normalizes a driver-provided TIME value. Accepted shapes:
// "HH:MM:SS" / "HH:MM" strings (and []byte), time.Time (clock part taken),
// time.Duration since midnight, and integer seconds since midnight.
func ParseTimeOfDay(v any) (TimeOfDay, error) {
	switch val := v.(type) {
	case TimeOfDay:
		return val, nil
	case string:
		return parseClockString(val)
	case []byte:
		return parseClockString(string(val))
	case time.Time:
		return TimeOfDayFromTime(val), nil
	case time.Duration:
		return fromDuration(val)
	case int64:
		return fromDuration(time.Duration(val) * time.Second)
	case int:
		return fromDuration(time.Duration(val) * time.Second)
	case nil:
		return 0, fmt.Errorf("time of day is null")
	default:
		return 0, fmt.Errorf("unsupported time of day type %T", v)
	}
}

func fromDuration(d time.Duration) (TimeOfDay, error) {
	if d < 0 || d >= 24*time.Hour {
		return 0, fmt.Errorf("duration %v outside a single day", d)
	}
	return TimeOfDay(d / time.Second), nil
}

func parseClockString(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("malformed time of day %q", s)
	}

	var hms [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("malformed time of day %q: %w", s, err)
		}
		hms[i] = n
	}

	if hms[0] < 0 || hms[0] > 23 || hms[1] < 0 || hms[1] > 59 || hms[2] < 0 || hms[2] > 59 {
		return 0, fmt.Errorf("time of day %q out of range", s)
	}
	return NewTimeOfDay(hms[0], hms[1], hms[2]), nil
}

// Clock returns the hour, minute and second components.
func (t TimeOfDay) Clock() (hour, minute, second int) {
	return int(t) / 3600, int(t) % 3600 / 60, int(t) % 60
}

// String renders the canonical HH:MM:SS form used in queries and logs.
func (t TimeOfDay) String() string {
	h, m, s := t.Clock()
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
