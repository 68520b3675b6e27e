package promptbuild

import (
	"fmt"
	"time"
)

const missingField = "N/A"

// NewDateTimeInfo fills every field from now, in now's location.
func NewDateTimeInfo(now time.Time) *DateTimeInfo {
	tomorrow := now.AddDate(0, 0, 1)
	return &DateTimeInfo{
		ReadableDate:     now.Format("January 2, 2006"),
		DayOfWeek:        now.Weekday().String(),
		CurrentDate:      now.Format("2006-01-02"),
		CurrentTime:      now.Format("03:04 PM"),
		Timezone:         now.Location().String(),
		TomorrowReadable: tomorrow.Format("January 2, 2006"),
		TomorrowDay:      tomorrow.Weekday().String(),
		TomorrowDate:     tomorrow.Format("2006-01-02"),
	}
}

// DateTimeIn is NewDateTimeInfo for the current time in the named IANA zone.
func DateTimeIn(timezone string) (*DateTimeInfo, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	return NewDateTimeInfo(time.Now().In(loc)), nil
}

func orMissing(v string) string {
	if v == "" {
		return missingField
	}
	return v
}

func formatDateTime(info *DateTimeInfo) string {
	return fmt.Sprintf(`## CURRENT DATE AND TIME INFORMATION
- Current Date: %s (%s)
- Current Date (YYYY-MM-DD): %s
- Current Time: %s (%s)
- Tomorrow's Date: %s (%s)
- Tomorrow's Date (YYYY-MM-DD): %s
- Current timezone is %s`,
		orMissing(info.ReadableDate), orMissing(info.DayOfWeek),
		orMissing(info.CurrentDate),
		orMissing(info.CurrentTime), orMissing(info.Timezone),
		orMissing(info.TomorrowReadable), orMissing(info.TomorrowDay),
		orMissing(info.TomorrowDate),
		orMissing(info.Timezone),
	)
}
