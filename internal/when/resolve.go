// Package when resolves relative date/time phrases from call transcripts
// into absolute instants anchored to a business's local timezone.
package when

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"voice-booking-relay-go/internal/model"
)

// ErrUnresolvable is returned for phrases that cannot be interpreted.
// Callers must treat this as "ask the caller to clarify", never as a
// default booking time.
var ErrUnresolvable = errors.New("when: unresolvable date phrase")

var (
	clockPattern = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
	clock24Hour  = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	dayWordToday = regexp.MustCompile(`(?i)\btoday\b`)
	dayWordNext  = regexp.MustCompile(`(?i)\btomorrow\b`)
)

// Resolve interprets a relative phrase anchored to the business timezone.
// Supported forms: "today"/"tomorrow" combined with a clock time ("2pm",
// "2:30pm", "14:00"), or a bare clock time. A bare time that has already
// passed today rolls to tomorrow. A day word with no time, or no
// recognizable tokens at all, is ambiguous and fails.
func Resolve(phrase, timezone string, now time.Time) (model.ResolvedDateTime, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return model.ResolvedDateTime{}, fmt.Errorf("unknown timezone %q: %w", timezone, err)
	}

	local := now.In(loc)

	hour, minute, ok := parseClock(phrase)
	if !ok {
		// A day word with no clock time ("tomorrow") is deliberately
		// ambiguous: guessing a default hour would book a real slot the
		// caller never asked for, so they get asked to clarify instead.
		return model.ResolvedDateTime{}, fmt.Errorf("%w: %q has no recognizable time", ErrUnresolvable, phrase)
	}

	dayOffset := 0
	explicitDay := false
	switch {
	case dayWordNext.MatchString(phrase):
		dayOffset = 1
		explicitDay = true
	case dayWordToday.MatchString(phrase):
		explicitDay = true
	}

	instant := time.Date(local.Year(), local.Month(), local.Day()+dayOffset, hour, minute, 0, 0, loc)

	// A bare time on a live call always means a future slot.
	if !explicitDay && !instant.After(local) {
		instant = instant.AddDate(0, 0, 1)
	}

	return model.ResolvedDateTime{
		Instant:  instant,
		Timezone: timezone,
		Phrase:   phrase,
	}, nil
}

// parseClock extracts an hour/minute from the phrase, trying am/pm form
// first, then 24-hour form.
func parseClock(phrase string) (hour, minute int, ok bool) {
	if m := clockPattern.FindStringSubmatch(phrase); m != nil {
		hour, _ = strconv.Atoi(m[1])
		if hour < 1 || hour > 12 {
			return 0, 0, false
		}
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		meridiem := strings.ToLower(m[3])
		if meridiem == "pm" && hour != 12 {
			hour += 12
		}
		if meridiem == "am" && hour == 12 {
			hour = 0
		}
		return hour, minute, true
	}

	if m := clock24Hour.FindStringSubmatch(phrase); m != nil {
		hour, _ = strconv.Atoi(m[1])
		minute, _ = strconv.Atoi(m[2])
		return hour, minute, true
	}

	return 0, 0, false
}
