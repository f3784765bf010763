package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

var offsetPattern = regexp.MustCompile(`^([+-]?)(\d{1,2})(?::?(\d{2}))?$`)

// ParseTimezone resolves a timezone setting into a fixed-offset location.
//
// Accepted forms are an hour offset ("-8"), an offset with minutes ("+05:30",
// "-0330"), "UTC"/"Z", or an IANA name. IANA zones are reduced to their
// standard-time offset so the resulting clock never jumps for daylight saving.
func ParseTimezone(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return nil, fmt.Errorf("timezone is empty")
	}

	switch strings.ToUpper(tz) {
	case "UTC", "Z", "GMT":
		return time.FixedZone("UTC", 0), nil
	}

	if m := offsetPattern.FindStringSubmatch(tz); m != nil {
		hours, _ := strconv.Atoi(m[2])
		minutes := 0
		if m[3] != "" {
			minutes, _ = strconv.Atoi(m[3])
		}
		if hours > 14 || minutes > 59 {
			return nil, fmt.Errorf("timezone offset %q out of range", tz)
		}
		seconds := hours*3600 + minutes*60
		if m[1] == "-" {
			seconds = -seconds
		}
		return time.FixedZone(offsetName(seconds), seconds), nil
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", tz, err)
	}
	seconds := StandardOffset(loc, time.Now().Year())
	return time.FixedZone(offsetName(seconds), seconds), nil
}

// StandardOffset returns the standard-time UTC offset of loc in seconds.
// Daylight saving always moves clocks forward, so the smaller of the January
// and July offsets is the standard one on either hemisphere.
func StandardOffset(loc *time.Location, year int) int {
	_, jan := time.Date(year, time.January, 1, 12, 0, 0, 0, loc).Zone()
	_, jul := time.Date(year, time.July, 1, 12, 0, 0, 0, loc).Zone()
	if jan < jul {
		return jan
	}
	return jul
}

func offsetName(seconds int) string {
	sign := "+"
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	return fmt.Sprintf("UTC%s%02d:%02d", sign, seconds/3600, (seconds%3600)/60)
}
