// Package adherence derives streak and adherence statistics from the
// intake ledgers of the full medication list. All functions are pure
// folds over calendar dates; callers pass "today" explicitly.
package adherence

import (
	"time"

	"github.com/pgorski/dosetrack/internal/model"
	"github.com/pgorski/dosetrack/internal/schedule"
)

// Stats is the adherence summary shown on the statistics screen.
type Stats struct {
	CurrentStreak     int     `json:"current_streak"`
	LongestStreak     int     `json:"longest_streak"`
	LastWeekAdherence float64 `json:"last_week_adherence"`
}

type dayStatus struct {
	due   int
	taken int
}

// Calculate walks every date from January 1 of today's year through
// today and accumulates per-date due and taken counts across all
// medications. Bounded by the year horizon, so at most 366 dates.
func Calculate(meds []model.Medication, today time.Time) Stats {
	if len(meds) == 0 {
		return Stats{}
	}

	today = truncateToDay(today)
	yearStart := time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, today.Location())

	status := make(map[string]dayStatus)
	for date := yearStart; !date.After(today); date = date.AddDate(0, 0, 1) {
		key := date.Format(model.DateLayout)
		s := dayStatus{}
		for i := range meds {
			if !schedule.IsDue(date, meds[i].Frequency) {
				continue
			}
			s.due++
			if meds[i].IsTakenOn(key) {
				s.taken++
			}
		}
		status[key] = s
	}

	fullyAdhered := func(date time.Time) bool {
		s := status[date.Format(model.DateLayout)]
		return s.due > 0 && s.due == s.taken
	}

	stats := Stats{}

	// Current streak: walk backward from today until the first date
	// that is not fully adhered. A date with nothing due also breaks
	// the streak; that is policy, not an accident.
	for date := today; !date.Before(yearStart) && fullyAdhered(date); date = date.AddDate(0, 0, -1) {
		stats.CurrentStreak++
	}

	// Longest streak: ascending scan tracking consecutive adhered runs.
	run := 0
	var prev time.Time
	for date := yearStart; !date.After(today); date = date.AddDate(0, 0, 1) {
		if fullyAdhered(date) {
			if prev.IsZero() || daysBetween(prev, date) == 1 {
				run++
			} else {
				run = 1
			}
			if run > stats.LongestStreak {
				stats.LongestStreak = run
			}
			prev = date
		} else {
			run = 0
			prev = time.Time{}
		}
	}

	// Trailing-7-day ratio over dates that had anything due.
	adheredDays, dueDays := 0, 0
	for i := 0; i < 7; i++ {
		date := today.AddDate(0, 0, -i)
		s := status[date.Format(model.DateLayout)]
		if s.due == 0 {
			continue
		}
		dueDays++
		if s.due == s.taken {
			adheredDays++
		}
	}
	if dueDays > 0 {
		stats.LastWeekAdherence = float64(adheredDays) / float64(dueDays)
	}

	return stats
}

// DueMedication pairs a medication due on some date with its taken
// state, the data behind the daily schedule view.
type DueMedication struct {
	Medication model.Medication `json:"medication"`
	Taken      bool             `json:"taken"`
}

func DueOn(meds []model.Medication, date time.Time) []DueMedication {
	key := date.Format(model.DateLayout)
	due := make([]DueMedication, 0, len(meds))
	for i := range meds {
		if !schedule.IsDue(date, meds[i].Frequency) {
			continue
		}
		due = append(due, DueMedication{
			Medication: meds[i],
			Taken:      meds[i].IsTakenOn(key),
		})
	}
	return due
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func daysBetween(from, to time.Time) int {
	// Rounded so a DST-shortened day still counts as one day.
	d := truncateToDay(to).Sub(truncateToDay(from))
	return int((d + 12*time.Hour) / (24 * time.Hour))
}
