package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FrequencyKind is the closed set of supported intake patterns. The
// old app compared free-form strings; the enum keeps rule evaluation
// exhaustive instead of falling through a string match.
type FrequencyKind int

const (
	FrequencyUnknown FrequencyKind = iota
	FrequencyDaily
	FrequencyEveryOtherDay
	FrequencyWeekly
)

// Frequency describes how often a medication is due. TimesPerDay only
// applies to the daily kind; Weekday only to the weekly kind.
type Frequency struct {
	Kind        FrequencyKind
	TimesPerDay int
	Weekday     time.Weekday
}

func Daily(timesPerDay int) Frequency {
	if timesPerDay < 1 {
		timesPerDay = 1
	}
	return Frequency{Kind: FrequencyDaily, TimesPerDay: timesPerDay}
}

func EveryOtherDay() Frequency {
	return Frequency{Kind: FrequencyEveryOtherDay}
}

// Weekly returns the weekly pattern. The reference day is fixed to
// Monday; the field exists so the evaluator stays data-driven.
func Weekly() Frequency {
	return Frequency{Kind: FrequencyWeekly, Weekday: time.Monday}
}

// String renders the canonical wire token, e.g. "daily:2".
func (f Frequency) String() string {
	switch f.Kind {
	case FrequencyDaily:
		return fmt.Sprintf("daily:%d", f.TimesPerDay)
	case FrequencyEveryOtherDay:
		return "every_other_day"
	case FrequencyWeekly:
		return "weekly:" + strings.ToLower(f.Weekday.String())
	default:
		return "unknown"
	}
}

// ParseFrequency parses a wire token back into a Frequency. Anything
// unrecognized maps to the Unknown kind, which the rule evaluator
// treats as always due. A dose must never silently disappear because
// a record carried a pattern this version doesn't know.
func ParseFrequency(s string) Frequency {
	token, arg, _ := strings.Cut(strings.TrimSpace(strings.ToLower(s)), ":")

	switch token {
	case "daily":
		n := 1
		if arg != "" {
			if parsed, err := strconv.Atoi(arg); err == nil && parsed > 0 {
				n = parsed
			}
		}
		return Daily(n)
	case "every_other_day":
		return EveryOtherDay()
	case "weekly":
		return Weekly()
	default:
		return Frequency{Kind: FrequencyUnknown}
	}
}

// MarshalText implements encoding.TextMarshaler.
func (f Frequency) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Frequency) UnmarshalText(text []byte) error {
	*f = ParseFrequency(string(text))
	return nil
}
