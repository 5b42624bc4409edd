package units

import (
	"fmt"
	"time"
)

// dayLayout is the form reports and chart queries use to name a calendar day.
const dayLayout = "2006-01-02"

// IsTimezoneValid checks if the given timezone is valid by attempting to load
// it from the tz database. This validates against the actual system tz
// database rather than a hardcoded list.
func IsTimezoneValid(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// DayBounds returns the half-open [start, end) window covering one calendar
// day in the named timezone. day uses the YYYY-MM-DD form. The end bound is
// the next midnight rather than start plus 24 hours, so DST transition days
// keep their real length.
func DayBounds(day, tz string) (time.Time, time.Time, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("unknown timezone %q: %w", tz, err)
	}
	start, err := time.ParseInLocation(dayLayout, day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid day %q (want YYYY-MM-DD): %w", day, err)
	}
	return start, start.AddDate(0, 0, 1), nil
}
