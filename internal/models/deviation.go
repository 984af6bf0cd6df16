package models

import (
	"time"
)

// SeverityTier grades how far outside its reference band a value falls.
// Tiers partition [0,∞) of absolute percent deviation with half-open
// intervals: LEVE [0,20), MODERADO [20,50), GRAVE [50,100), CRITICO [100,∞).
type SeverityTier string

const (
	SeverityLeve     SeverityTier = "LEVE"
	SeverityModerado SeverityTier = "MODERADO"
	SeverityGrave    SeverityTier = "GRAVE"
	SeverityCritico  SeverityTier = "CRITICO"
)

// severityLevels orders tiers for comparison.
var severityLevels = map[SeverityTier]int{
	SeverityLeve:     1,
	SeverityModerado: 2,
	SeverityGrave:    3,
	SeverityCritico:  4,
}

// SeverityForPercent maps an absolute percent deviation onto its tier.
// Percentages at an interval boundary land in the higher tier.
func SeverityForPercent(percent float64) SeverityTier {
	abs := percent
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs < 20:
		return SeverityLeve
	case abs < 50:
		return SeverityModerado
	case abs < 100:
		return SeverityGrave
	default:
		return SeverityCritico
	}
}

// MoreSevereThan reports whether s outranks other.
func (s SeverityTier) MoreSevereThan(other SeverityTier) bool {
	return severityLevels[s] > severityLevels[other]
}

// Deviation is one measurement found outside its reference band
// (deviations table). A deviation belongs to exactly one panel.
type Deviation struct {
	DeviationID      string        `json:"deviation_id" db:"deviation_id"`
	PanelID          string        `json:"panel_id" db:"panel_id"`
	Kind             ParameterKind `json:"kind" db:"kind"`
	ValueFound       float64       `json:"value_found" db:"value_found"`
	RefMin           float64       `json:"ref_min" db:"ref_min"`
	RefMax           float64       `json:"ref_max" db:"ref_max"`
	PercentDeviation float64       `json:"percent_deviation" db:"percent_deviation"`
	Severity         SeverityTier  `json:"severity" db:"severity"`
	Note             string        `json:"note" db:"note"`
	DetectedAt       time.Time     `json:"detected_at" db:"detected_at"`
	Notified         bool          `json:"notified" db:"notified"`
}
