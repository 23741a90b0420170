// Classifies timestamps into EV-TOU-5 time-of-use periods.

package records

import (
	"fmt"
	"time"
)

// Period is a time-of-use billing bucket.
type Period string

// Time-of-use periods. The string values double as column names of the usage
// table.
const (
	SuperOffPeak Period = "super_off_peak"
	OffPeak      Period = "off_peak"
	OnPeak       Period = "on_peak"
)

// Periods lists every period in billing order.
var Periods = []Period{SuperOffPeak, OffPeak, OnPeak}

// Classify returns the EV-TOU-5 period t falls in.
//
// Super off-peak is midnight to 6am every day, midnight to 2pm on weekends
// and holidays, and 10am to 2pm on March and April weekdays. On-peak is 4pm
// to 9pm every day. Everything else is off-peak.
func Classify(t time.Time, holiday bool) Period {
	h := t.Hour()
	weekend := holiday || t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
	spring := t.Month() == time.March || t.Month() == time.April
	switch {
	case h < 6:
		return SuperOffPeak
	case weekend && h < 14:
		return SuperOffPeak
	case spring && h >= 10 && h < 14:
		return SuperOffPeak
	case h >= 16 && h < 21:
		return OnPeak
	default:
		return OffPeak
	}
}

// ClassifyClock classifies an "HH:MM" start time on the given "YYYY-MM-DD"
// day, as logged in the activity table.
func ClassifyClock(date, clock string, holiday bool) (Period, error) {
	t, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, time.Local)
	if err != nil {
		return "", fmt.Errorf("invalid date or time %q %q: %w", date, clock, err)
	}
	return Classify(t, holiday), nil
}
