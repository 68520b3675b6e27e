package promptbuild

import (
	"strings"
	"testing"
	"time"
)

func TestNewDateTimeInfoRollsOverYear(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	info := NewDateTimeInfo(time.Date(2026, 12, 31, 23, 30, 0, 0, loc))

	want := DateTimeInfo{
		ReadableDate:     "December 31, 2026",
		DayOfWeek:        "Thursday",
		CurrentDate:      "2026-12-31",
		CurrentTime:      "11:30 PM",
		Timezone:         "IST",
		TomorrowReadable: "January 1, 2027",
		TomorrowDay:      "Friday",
		TomorrowDate:     "2027-01-01",
	}
	if *info != want {
		t.Fatalf("want %+v, got %+v", want, *info)
	}
}

func TestNewDateTimeInfoMorningClock(t *testing.T) {
	info := NewDateTimeInfo(time.Date(2026, 10, 17, 9, 7, 0, 0, time.UTC))
	if info.CurrentTime != "09:07 AM" {
		t.Fatalf("expected zero-padded 12-hour clock, got %q", info.CurrentTime)
	}
}

func TestDateTimeIn(t *testing.T) {
	info, err := DateTimeIn("UTC")
	if err != nil {
		t.Fatalf("DateTimeIn(UTC): %v", err)
	}
	if info.Timezone != "UTC" || info.CurrentDate == "" {
		t.Fatalf("unexpected info: %+v", info)
	}

	if _, err := DateTimeIn("Mars/Olympus_Mons"); err == nil {
		t.Fatalf("expected error for unknown zone")
	}
}

func TestFormatDateTimeAllMissing(t *testing.T) {
	out := formatDateTime(&DateTimeInfo{})
	if !strings.HasPrefix(out, "## CURRENT DATE AND TIME INFORMATION\n") {
		t.Fatalf("unexpected header: %q", out)
	}
	if strings.Count(out, missingField) != 9 {
		t.Fatalf("expected every placeholder filled with %s, got %q", missingField, out)
	}
}
