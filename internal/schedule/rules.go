// Package schedule decides which calendar dates a medication is due
// and where its reminder slots fall. Everything here is pure calendar
// math; executing the resulting triggers belongs to the reminder
// scheduler.
package schedule

import (
	"fmt"
	"time"

	"github.com/pgorski/dosetrack/internal/model"
)

// IsDue reports whether a medication with the given frequency is due
// on date. Pure and deterministic.
//
// Every-other-day parity is anchored to January 1 of date's year, not
// to the medication's start date. The anchor flips at year boundaries
// for ongoing medications; that behavior is carried over from the
// source app as-is.
func IsDue(date time.Time, freq model.Frequency) bool {
	switch freq.Kind {
	case model.FrequencyDaily:
		return true
	case model.FrequencyEveryOtherDay:
		return daysSinceYearStart(date)%2 == 0
	case model.FrequencyWeekly:
		return date.Weekday() == time.Monday
	default:
		// Unknown patterns fail open: a reminder too many beats a
		// silently dropped dose.
		return true
	}
}

func daysSinceYearStart(date time.Time) int {
	return date.YearDay() - 1
}

// Slot is one reminder trigger time for a medication.
type Slot struct {
	Label     string        // unique within a medication, e.g. "08_00"
	Hour      int           // local hour of day
	Forward   time.Duration // recurrence interval after the first fire
	DayOffset int           // extra days before the first fire
}

// Slots derives the trigger set for a frequency. For daily patterns
// there is one slot per configured hour, each recurring every 24h. The
// every-other-day pattern is a single 48h slot whose first fire skips
// odd days; weekly is one 7-day slot anchored to the next Monday.
func Slots(freq model.Frequency, hoursForDaily []int, now time.Time) []Slot {
	switch freq.Kind {
	case model.FrequencyDaily:
		slots := make([]Slot, 0, len(hoursForDaily))
		for _, hour := range hoursForDaily {
			slots = append(slots, Slot{
				Label:   slotLabel(hour),
				Hour:    hour,
				Forward: 24 * time.Hour,
			})
		}
		return slots

	case model.FrequencyEveryOtherDay:
		offset := 0
		if daysSinceYearStart(now)%2 != 0 {
			offset = 1 // today is an off day, start tomorrow
		}
		return []Slot{{
			Label:     slotLabel(defaultHour(hoursForDaily)),
			Hour:      defaultHour(hoursForDaily),
			Forward:   48 * time.Hour,
			DayOffset: offset,
		}}

	case model.FrequencyWeekly:
		hour := defaultHour(hoursForDaily)
		return []Slot{{
			Label:     slotLabel(hour),
			Hour:      hour,
			Forward:   7 * 24 * time.Hour,
			DayOffset: daysUntilWeekday(now, freq.Weekday, hour),
		}}

	default:
		hour := defaultHour(hoursForDaily)
		return []Slot{{
			Label:   slotLabel(hour),
			Hour:    hour,
			Forward: 24 * time.Hour,
		}}
	}
}

func defaultHour(hours []int) int {
	if len(hours) > 0 {
		return hours[0]
	}
	return 8
}

func slotLabel(hour int) string {
	return fmt.Sprintf("%02d_00", hour)
}

// daysUntilWeekday returns how many whole days until the next
// occurrence of weekday. When that is today but the slot time already
// passed, the occurrence rolls a full week forward.
func daysUntilWeekday(now time.Time, weekday time.Weekday, hour int) int {
	days := (7 + int(weekday) - int(now.Weekday())) % 7
	if days == 0 {
		slot := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
		if now.After(slot) {
			days = 7
		}
	}
	return days
}

// InitialDelay computes the time from now until the next occurrence of
// hour:minute, pushed out by additionalDays whole days. When no day
// offset applies and the target already passed today, the target rolls
// forward exactly one day. Always computed fresh against the caller's
// clock and zone; never cache the result.
func InitialDelay(now time.Time, hour, minute, additionalDays int) time.Duration {
	day := now.AddDate(0, 0, additionalDays)
	target := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location())

	if additionalDays == 0 && now.After(target) {
		target = target.AddDate(0, 0, 1)
	}

	return target.Sub(now)
}
