package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgorski/dosetrack/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

func TestIsDueDaily(t *testing.T) {
	for day := 1; day <= 31; day++ {
		d := date(2024, time.January, day)
		assert.True(t, IsDue(d, model.Daily(1)))
		assert.True(t, IsDue(d, model.Daily(3)))
	}
}

func TestIsDueEveryOtherDayAlternates(t *testing.T) {
	// Jan 1 is day zero of the year, so it is always due; due-ness
	// then alternates strictly through the year.
	assert.True(t, IsDue(date(2024, time.January, 1), model.EveryOtherDay()))
	assert.False(t, IsDue(date(2024, time.January, 2), model.EveryOtherDay()))
	assert.True(t, IsDue(date(2024, time.January, 3), model.EveryOtherDay()))

	prev := IsDue(date(2024, time.January, 1), model.EveryOtherDay())
	for day := date(2024, time.January, 2); day.Year() == 2024; day = day.AddDate(0, 0, 1) {
		current := IsDue(day, model.EveryOtherDay())
		assert.NotEqual(t, prev, current, "due-ness must alternate at %s", day.Format(model.DateLayout))
		prev = current
	}
}

func TestIsDueEveryOtherDayYearBoundary(t *testing.T) {
	// 2023 has 365 days: Dec 31 2023 is day index 364 (due), and
	// Jan 1 2024 resets to index 0 (due again). The parity anchor is
	// the calendar year, carried over from the source app.
	assert.True(t, IsDue(date(2023, time.December, 31), model.EveryOtherDay()))
	assert.True(t, IsDue(date(2024, time.January, 1), model.EveryOtherDay()))
}

func TestIsDueWeeklyMondayOnly(t *testing.T) {
	// 2024-03-04 is a Monday
	for offset := 0; offset < 7; offset++ {
		d := date(2024, time.March, 4+offset)
		expected := offset == 0
		assert.Equal(t, expected, IsDue(d, model.Weekly()), "date %s", d.Format(model.DateLayout))
	}
}

func TestIsDueUnknownFailsOpen(t *testing.T) {
	freq := model.ParseFrequency("lunar cycle")
	assert.True(t, IsDue(date(2024, time.May, 17), freq))
}

func TestIsDueIsDeterministic(t *testing.T) {
	d := date(2024, time.July, 9)
	for _, freq := range []model.Frequency{model.Daily(2), model.EveryOtherDay(), model.Weekly()} {
		first := IsDue(d, freq)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, IsDue(d, freq))
		}
	}
}

func TestSlotsDaily(t *testing.T) {
	now := date(2024, time.March, 15)

	slots := Slots(model.Daily(2), []int{8, 20}, now)
	require.Len(t, slots, 2)

	assert.Equal(t, "08_00", slots[0].Label)
	assert.Equal(t, 8, slots[0].Hour)
	assert.Equal(t, 24*time.Hour, slots[0].Forward)
	assert.Equal(t, "20_00", slots[1].Label)
	assert.Equal(t, 20, slots[1].Hour)
}

func TestSlotsEveryOtherDayParityOffset(t *testing.T) {
	// Jan 1 is an even day index: no offset.
	onDay := date(2024, time.January, 1)
	slots := Slots(model.EveryOtherDay(), []int{8}, onDay)
	require.Len(t, slots, 1)
	assert.Equal(t, 0, slots[0].DayOffset)
	assert.Equal(t, 48*time.Hour, slots[0].Forward)

	// Jan 2 is an off day: first fire moves to tomorrow.
	offDay := date(2024, time.January, 2)
	slots = Slots(model.EveryOtherDay(), []int{8}, offDay)
	require.Len(t, slots, 1)
	assert.Equal(t, 1, slots[0].DayOffset)
}

func TestSlotsWeekly(t *testing.T) {
	// Friday 2024-03-01; next Monday is 3 days out.
	friday := date(2024, time.March, 1)
	slots := Slots(model.Weekly(), []int{8}, friday)
	require.Len(t, slots, 1)
	assert.Equal(t, 3, slots[0].DayOffset)
	assert.Equal(t, 7*24*time.Hour, slots[0].Forward)
}

func TestSlotsWeeklyOnMondayAfterSlotTime(t *testing.T) {
	// Monday 2024-03-04 at 09:00, slot hour 8: already passed, so the
	// next occurrence is a full week out.
	monday := time.Date(2024, time.March, 4, 9, 0, 0, 0, time.Local)
	slots := Slots(model.Weekly(), []int{8}, monday)
	require.Len(t, slots, 1)
	assert.Equal(t, 7, slots[0].DayOffset)
}

func TestSlotsWeeklyOnMondayBeforeSlotTime(t *testing.T) {
	monday := time.Date(2024, time.March, 4, 7, 0, 0, 0, time.Local)
	slots := Slots(model.Weekly(), []int{8}, monday)
	require.Len(t, slots, 1)
	assert.Equal(t, 0, slots[0].DayOffset)
}

func TestInitialDelayFutureToday(t *testing.T) {
	now := time.Date(2024, time.March, 15, 6, 30, 0, 0, time.Local)

	delay := InitialDelay(now, 8, 0, 0)
	assert.Equal(t, 90*time.Minute, delay)
}

func TestInitialDelayRollsForwardWhenPassed(t *testing.T) {
	now := time.Date(2024, time.March, 15, 9, 0, 0, 0, time.Local)

	delay := InitialDelay(now, 8, 0, 0)
	assert.Equal(t, 23*time.Hour, delay)
}

func TestInitialDelayWithDayOffsetDoesNotRoll(t *testing.T) {
	// With an explicit day offset the target is tomorrow 08:00 even
	// though 08:00 today already passed.
	now := time.Date(2024, time.March, 15, 9, 0, 0, 0, time.Local)

	delay := InitialDelay(now, 8, 0, 1)
	assert.Equal(t, 23*time.Hour, delay)
}

func TestInitialDelayMultiDayOffset(t *testing.T) {
	now := time.Date(2024, time.March, 15, 8, 0, 0, 0, time.Local)

	delay := InitialDelay(now, 8, 0, 3)
	assert.Equal(t, 72*time.Hour, delay)
}
