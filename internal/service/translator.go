package service

import (
	"fmt"
	"time"

	rrule "github.com/teambition/rrule-go"
)

// fallbackCronExpression is used when the rule's frequency is outside the
// supported set: day 1 of every month at 00:00 server time.
const fallbackCronExpression = "0 0 1 * *"

// referenceDate fixes the calendar day on which BYHOUR/BYMINUTE wall-clock
// values are converted between the caller's timezone and UTC.
var referenceDate = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// RuleTranslator turns iCalendar recurrence-rule text into a 5-field cron
// expression in the server's reference timezone (UTC). It performs no I/O.
type RuleTranslator interface {
	// Translate returns the cron expression for the rule as seen from
	// callerTimezone. The second result reports a degraded translation:
	// the frequency was unsupported and the fallback schedule was used.
	Translate(ruleText, callerTimezone string) (string, bool, error)

	// NextOccurrence returns the first occurrence of the rule strictly
	// after the given instant, or the zero time when the recurrence is
	// exhausted (COUNT or UNTIL spent).
	NextOccurrence(ruleText string, after time.Time) (time.Time, error)
}

type ruleTranslator struct{}

func NewRuleTranslator() RuleTranslator {
	return ruleTranslator{}
}

func (t ruleTranslator) Translate(ruleText, callerTimezone string) (string, bool, error) {
	rule, err := parseRule(ruleText)
	if err != nil {
		return "", false, err
	}

	loc, err := time.LoadLocation(callerTimezone)
	if err != nil {
		return "", false, fmt.Errorf("%w: unknown timezone %q", ErrRuleParse, callerTimezone)
	}

	opts := rule.OrigOptions
	hour, minute := 0, 0
	if len(opts.Byhour) > 0 {
		hour = opts.Byhour[0]
	}
	if len(opts.Byminute) > 0 {
		minute = opts.Byminute[0]
	}

	// The hour/minute pair is a wall-clock time in the caller's zone;
	// shift it to UTC on the reference date. Day-of-month and weekday
	// fields pass through unshifted even when this crosses midnight, so
	// the fire can land one calendar day off the caller's wall-clock day.
	utc := time.Date(referenceDate.Year(), referenceDate.Month(), referenceDate.Day(),
		hour, minute, 0, 0, loc).UTC()

	switch opts.Freq {
	case rrule.MONTHLY:
		dayOfMonth := 1
		if len(opts.Bymonthday) > 0 {
			dayOfMonth = opts.Bymonthday[0]
		}
		return fmt.Sprintf("%d %d %d * *", utc.Minute(), utc.Hour(), dayOfMonth), false, nil
	case rrule.DAILY:
		return fmt.Sprintf("%d %d * * *", utc.Minute(), utc.Hour()), false, nil
	case rrule.WEEKLY:
		// cron counts Sunday as 0, rrule counts Monday as 0.
		dayOfWeek := 0
		if len(opts.Byweekday) > 0 {
			dayOfWeek = (opts.Byweekday[0].Day() + 1) % 7
		}
		return fmt.Sprintf("%d %d * * %d", utc.Minute(), utc.Hour(), dayOfWeek), false, nil
	default:
		return fallbackCronExpression, true, nil
	}
}

func (t ruleTranslator) NextOccurrence(ruleText string, after time.Time) (time.Time, error) {
	rule, err := parseRule(ruleText)
	if err != nil {
		return time.Time{}, err
	}
	return rule.After(after, false), nil
}

func parseRule(ruleText string) (*rrule.RRule, error) {
	set, err := rrule.StrToRRuleSet(ruleText)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuleParse, err)
	}
	rule := set.GetRRule()
	if rule == nil {
		return nil, fmt.Errorf("%w: missing RRULE line", ErrRuleParse)
	}
	return rule, nil
}
