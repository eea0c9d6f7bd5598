package timezone

import (
	"fmt"
	"time"
)

// Resolve converts a time-zone identifier into a usable location. The
// identifier may be an IANA name or a Windows display name; the latter is
// translated via the CLDR mapping table before loading. Unrecognized
// identifiers fail deterministically.
func Resolve(id string) (*time.Location, error) {
	if id == "" {
		return nil, fmt.Errorf("empty time zone identifier")
	}

	if loc, err := time.LoadLocation(id); err == nil {
		return loc, nil
	}

	if iana, ok := windowsToIANA[id]; ok {
		loc, err := time.LoadLocation(iana)
		if err != nil {
			return nil, fmt.Errorf("failed to load location %q for Windows zone %q: %w", iana, id, err)
		}
		return loc, nil
	}

	return nil, fmt.Errorf("unrecognized time zone identifier %q", id)
}

// StartOfWeek returns the UTC instant of the most recent Sunday at midnight
// in the given location. If now already falls on a Sunday, the window starts
// at that day's midnight rather than seven days prior.
func StartOfWeek(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	// Sunday is day zero, so the weekday value is also the offset back to it.
	sunday := local.AddDate(0, 0, -int(local.Weekday()))
	midnight := time.Date(sunday.Year(), sunday.Month(), sunday.Day(), 0, 0, 0, 0, loc)
	return midnight.UTC()
}

// WeekWindow returns the 7-day UTC window starting at the most recent Sunday
// midnight in loc. The end is always exactly 7 days after the start.
func WeekWindow(now time.Time, loc *time.Location) (start, end time.Time) {
	start = StartOfWeek(now, loc)
	end = start.Add(7 * 24 * time.Hour)
	return start, end
}
