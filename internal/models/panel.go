package models

import (
	"time"
)

// Measurement is one (parameter, value, unit) triple inside a panel.
// Measurements only live for the duration of one analysis run.
type Measurement struct {
	Kind  ParameterKind `json:"kind"`
	Value float64       `json:"value"`
	Unit  string        `json:"unit"`
}

// Panel is one blood-count panel extracted from a FHIR Observation
// (panels table). Measurements are not persisted individually; deviations
// found in them are.
type Panel struct {
	PanelID           string        `json:"panel_id" db:"panel_id"`
	FHIRObservationID string        `json:"fhir_observation_id" db:"fhir_observation_id"`
	SubjectID         int64         `json:"subject_id" db:"subject_id"`
	Status            string        `json:"status" db:"status"` // final, preliminary, ...
	CollectedAt       *time.Time    `json:"collected_at,omitempty" db:"collected_at"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
	Measurements      []Measurement `json:"measurements" db:"-"`
}

// ReferenceBand is the expected [Min,Max] interval for a parameter given the
// subject's sex and age. Derived on demand, never stored.
type ReferenceBand struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Unit string  `json:"unit"`
}

// Contains reports whether value lies inside the band (bounds inclusive).
func (b ReferenceBand) Contains(value float64) bool {
	return value >= b.Min && value <= b.Max
}
