// Package analyzer classifies blood-count measurements against their
// reference bands and aggregates the deviations found in a panel.
package analyzer

import (
	"errors"
	"fmt"
	"math"
	"time"

	"hemogram-alert/internal/models"

	"github.com/google/uuid"
)

// ErrInvalidMeasurement marks a non-finite value reaching the classifier.
// The offending measurement is skipped; the rest of the panel still runs.
var ErrInvalidMeasurement = errors.New("invalid measurement value")

// Classify checks value against band and returns the deviation found, or nil
// when the value is inside the band. The percent deviation is computed
// one-sided against the violated bound (not against the found value), which
// keeps percentages comparable across parameters of different magnitude.
func Classify(kind models.ParameterKind, value float64, band models.ReferenceBand, sex models.Sex) (*models.Deviation, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, fmt.Errorf("%w: kind=%s value=%v", ErrInvalidMeasurement, kind, value)
	}

	if band.Contains(value) {
		return nil, nil
	}

	var percent float64
	if value < band.Min {
		percent = (band.Min - value) / band.Min * 100
	} else {
		percent = (value - band.Max) / band.Max * 100
	}

	severity := models.SeverityForPercent(percent)

	return &models.Deviation{
		DeviationID:      uuid.New().String(),
		Kind:             kind,
		ValueFound:       value,
		RefMin:           band.Min,
		RefMax:           band.Max,
		PercentDeviation: percent,
		Severity:         severity,
		Note:             buildNote(kind, value, band, percent, sex),
		DetectedAt:       time.Now(),
	}, nil
}

// buildNote renders the human-readable description. Hemoglobin below the
// minimum gets the distinguished anemia wording; the branch only affects the
// note text, never the severity computation.
func buildNote(kind models.ParameterKind, value float64, band models.ReferenceBand, percent float64, sex models.Sex) string {
	unit := band.Unit
	if unit == "" {
		unit = kind.Unit()
	}

	if kind == models.ParamHemoglobin && value < band.Min {
		return fmt.Sprintf(
			"ANEMIA detected: hemoglobin LOW (%.1f %s). Reference range for %s: %.1f - %.1f %s. Deviation of %.1f%% below the lower limit.",
			value, unit, sexDescriptor(sex), band.Min, band.Max, unit, percent,
		)
	}

	direction := "HIGH"
	if value < band.Min {
		direction = "LOW"
	}
	return fmt.Sprintf(
		"%s: %s (%.2f %s). Reference range: %.2f - %.2f %s. Deviation of %.1f%%.",
		kind.DisplayName(), direction, value, unit, band.Min, band.Max, unit, percent,
	)
}

func sexDescriptor(sex models.Sex) string {
	switch sex {
	case models.SexMale:
		return "adult male"
	case models.SexFemale:
		return "adult female"
	default:
		return "adult"
	}
}
