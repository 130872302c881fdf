package rfc9110

import (
	"fmt"
	"strings"
	"time"
)

// §  5.6.7.  Date/Time Formats
// §
// §     Prior to 1995, there were three different formats commonly used by
// §     servers to communicate timestamps.  For compatibility with old
// §     implementations, all three are defined here.  The preferred format is
// §     a fixed-length and single-zone subset of the date and time
// §     specification used by the Internet Message Format [RFC5322].
// §
// §       HTTP-date    = IMF-fixdate / obs-date
// §
// §     An example of the preferred format is
// §
// §       Sun, 06 Nov 1994 08:49:37 GMT    ; IMF-fixdate
// §
// §     Examples of the two obsolete formats are
// §
// §       Sunday, 06-Nov-94 08:49:37 GMT   ; obsolete RFC 850 format
// §       Sun Nov  6 08:49:37 1994         ; ANSI C's asctime() format
// §
// §     A recipient that parses a timestamp value in an HTTP field MUST
// §     accept all three HTTP-date formats.  When a sender generates a field
// §     that contains one or more timestamps defined as HTTP-date, the sender
// §     MUST generate those timestamps in the IMF-fixdate format.
func HttpDate(dateStr string) (time.Time, error) {
	str := normalizeDateStr(dateStr)
	date, err := time.Parse(imfFixdateLayout, str)
	if err == nil {
		return date.UTC(), nil
	}
	// try the obsolete formats, but report the IMF-fixdate error if they fail too
	for _, layout := range obsDateLayouts {
		if obs, obsErr := time.Parse(layout, str); obsErr == nil {
			return obs.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid HTTP-date %q: %w", dateStr, err)
}

// FormatHttpDate formats t as an IMF-fixdate, which is what senders MUST generate.
func FormatHttpDate(t time.Time) string {
	return t.UTC().Format(imfFixdateLayout)
}

// §     Preferred format:
// §
// §       IMF-fixdate  = day-name "," SP date1 SP time-of-day SP GMT
// §       ; fixed length/zone/capitalization subset of the format
// §       ; see Section 3.3 of [RFC5322]
const imfFixdateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

// §     Obsolete formats:
// §
// §       obs-date     = rfc850-date / asctime-date
// §
// §       rfc850-date  = day-name-l "," SP date2 SP time-of-day SP GMT
// §       date2        = day "-" month "-" 2DIGIT
// §                    ; e.g., 02-Jun-82
// §
// §       asctime-date = day-name SP date3 SP time-of-day SP year
// §       date3        = month SP ( 2DIGIT / ( SP 1DIGIT ))
// §                    ; e.g., Jun  2
var obsDateLayouts = []string{
	"Monday, 02-Jan-06 15:04:05 GMT",
	"Mon Jan _2 15:04:05 2006",
}

// §     HTTP-date is case sensitive.  Note that Section 4.2 of [CACHING]
// §     relaxes this for cache recipients.
//
// Day and month names are matched case-insensitively by time.Parse already,
// only the zone literal needs upper-casing.
func normalizeDateStr(dateStr string) string {
	return strings.ToUpper(strings.TrimSpace(dateStr))
}
