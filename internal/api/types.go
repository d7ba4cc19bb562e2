package api

import (
	"time"

	"github.com/pgorski/dosetrack/internal/model"
)

type MedicationRequest struct {
	Name       string  `json:"name"`
	Frequency  string  `json:"frequency"`
	DoseAmount string  `json:"dose_amount"`
	DoseUnit   string  `json:"dose_unit"`
	Supply     float64 `json:"supply"`
	ExpiryDate string  `json:"expiry_date"`
}

type MedicationResponse struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Frequency       string  `json:"frequency"`
	DoseAmount      string  `json:"dose_amount"`
	DoseUnit        string  `json:"dose_unit"`
	AvailableSupply float64 `json:"available_supply"`
	ExpiryDate      string  `json:"expiry_date,omitempty"`
	Expired         bool    `json:"expired"`
	TakenToday      bool    `json:"taken_today"`
	LastTakenDate   string  `json:"last_taken_date,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toResponse(med *model.Medication, now time.Time) MedicationResponse {
	return MedicationResponse{
		ID:              med.ID,
		Name:            med.Name,
		Frequency:       med.Frequency.String(),
		DoseAmount:      med.DoseAmount,
		DoseUnit:        med.DoseUnit,
		AvailableSupply: med.AvailableSupply,
		ExpiryDate:      med.ExpiryDate,
		Expired:         med.IsExpiredOn(now),
		TakenToday:      med.TakenToday(now),
		LastTakenDate:   med.LastTakenDate(),
		CreatedAt:       med.CreatedAt,
		UpdatedAt:       med.UpdatedAt,
	}
}

type MarkRequest struct {
	Date string `json:"date"`
}

type SupplyRequest struct {
	Packages        int     `json:"packages"`
	UnitsPerPackage float64 `json:"units_per_package"`
	ExpiryDate      string  `json:"expiry_date"`
}

type ScheduleEntry struct {
	Medication MedicationResponse `json:"medication"`
	Taken      bool               `json:"taken"`
}

type ScheduleResponse struct {
	Date    string          `json:"date"`
	Entries []ScheduleEntry `json:"entries"`
}
