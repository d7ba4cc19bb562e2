package model

import (
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical calendar-date key format for the intake
// ledger and expiry dates (ISO-8601, local zone).
const DateLayout = "2006-01-02"

// Medication is the aggregate root for a tracked medicine. The intake
// ledger maps ISO calendar-date strings to whether the dose was taken
// on that date; absent keys mean not taken.
type Medication struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Frequency  Frequency `json:"frequency"`
	DoseAmount string    `json:"dose_amount"` // display token, e.g. "1", "1/2"
	DoseUnit   string    `json:"dose_unit"`   // e.g. "tablet", "ml"

	AvailableSupply float64 `json:"available_supply"`
	ExpiryDate      string  `json:"expiry_date,omitempty"` // ISO date, optional

	IntakeLedger map[string]bool `json:"intake_ledger"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTakenOn reports whether the dose was marked taken for a given date.
func (m *Medication) IsTakenOn(date string) bool {
	return m.IntakeLedger[date]
}

// RecordIntake sets the ledger entry for a date. Idempotent: writing
// the same value twice has no further effect.
func (m *Medication) RecordIntake(date string, taken bool) {
	if m.IntakeLedger == nil {
		m.IntakeLedger = make(map[string]bool)
	}
	m.IntakeLedger[date] = taken
}

// TakenToday is a derived projection of the ledger, kept for callers
// that still read the legacy single-boolean field.
func (m *Medication) TakenToday(now time.Time) bool {
	return m.IsTakenOn(now.Format(DateLayout))
}

// LastTakenDate derives the most recent taken date from the ledger,
// or empty when nothing was ever taken. Replaces the legacy
// single-date field, which was independently mutable in the old app.
func (m *Medication) LastTakenDate() string {
	last := ""
	for key, taken := range m.IntakeLedger {
		if !taken {
			continue
		}
		if _, err := time.Parse(DateLayout, key); err != nil {
			continue
		}
		if key > last {
			last = key
		}
	}
	return last
}

// DoseValue parses the dose amount to doses consumed per
// administration. Fractional tokens "1/2" and "1/4" are supported.
// Unparseable or non-positive amounts count as one full dose.
func (m *Medication) DoseValue() float64 {
	return ParseDoseAmount(m.DoseAmount)
}

// IsExpiredOn reports whether the medication is past its expiry date.
// A missing or malformed expiry date never reads as expired.
func (m *Medication) IsExpiredOn(date time.Time) bool {
	if m.ExpiryDate == "" {
		return false
	}
	expiry, err := time.ParseInLocation(DateLayout, m.ExpiryDate, date.Location())
	if err != nil {
		return false
	}
	return date.After(expiry)
}

// ParseDoseAmount converts a dose token to a numeric dose count.
func ParseDoseAmount(amount string) float64 {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return 1
	}

	if num, den, ok := strings.Cut(amount, "/"); ok {
		n, errN := strconv.ParseFloat(strings.TrimSpace(num), 64)
		d, errD := strconv.ParseFloat(strings.TrimSpace(den), 64)
		if errN != nil || errD != nil || d == 0 {
			return 1
		}
		value := n / d
		if value <= 0 {
			return 1
		}
		return value
	}

	value, err := strconv.ParseFloat(amount, 64)
	if err != nil || value <= 0 {
		return 1
	}
	return value
}
