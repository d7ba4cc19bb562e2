package store

import (
	"encoding/json"
	"time"

	"github.com/pgorski/dosetrack/internal/model"
)

// MedicationRecord is the persistence shape of the aggregate. The
// intake ledger is serialized into a JSON text column; it is only ever
// queried by key, never iterated in storage order.
type MedicationRecord struct {
	ID              string  `gorm:"primaryKey" json:"id"`
	Name            string  `json:"name"`
	Frequency       string  `json:"frequency"`
	DoseAmount      string  `json:"dose_amount"`
	DoseUnit        string  `json:"dose_unit"`
	AvailableSupply float64 `json:"available_supply"`
	ExpiryDate      string  `json:"expiry_date"`
	LedgerJSON      string  `gorm:"type:text" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (MedicationRecord) TableName() string {
	return "medications"
}

func toRecord(med *model.Medication) *MedicationRecord {
	rec := &MedicationRecord{
		ID:              med.ID,
		Name:            med.Name,
		Frequency:       med.Frequency.String(),
		DoseAmount:      med.DoseAmount,
		DoseUnit:        med.DoseUnit,
		AvailableSupply: med.AvailableSupply,
		ExpiryDate:      med.ExpiryDate,
		CreatedAt:       med.CreatedAt,
		UpdatedAt:       med.UpdatedAt,
	}
	rec.LedgerJSON = marshalLedger(med.IntakeLedger)
	return rec
}

func (r *MedicationRecord) toModel() *model.Medication {
	return &model.Medication{
		ID:              r.ID,
		Name:            r.Name,
		Frequency:       model.ParseFrequency(r.Frequency),
		DoseAmount:      r.DoseAmount,
		DoseUnit:        r.DoseUnit,
		AvailableSupply: r.AvailableSupply,
		ExpiryDate:      r.ExpiryDate,
		IntakeLedger:    unmarshalLedger(r.LedgerJSON),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func marshalLedger(ledger map[string]bool) string {
	if len(ledger) == 0 {
		return "{}"
	}
	data, err := json.Marshal(ledger)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// unmarshalLedger tolerates a corrupt column: a ledger that cannot be
// decoded reads as empty rather than failing the whole record.
func unmarshalLedger(raw string) map[string]bool {
	ledger := make(map[string]bool)
	if raw == "" {
		return ledger
	}
	if err := json.Unmarshal([]byte(raw), &ledger); err != nil {
		return make(map[string]bool)
	}
	return ledger
}
