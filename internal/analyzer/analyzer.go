package analyzer

import (
	"errors"
	"time"

	"hemogram-alert/internal/models"
	"hemogram-alert/internal/reference"

	"go.uber.org/zap"
)

// PanelAnalyzer runs every measurement of a panel through band resolution and
// classification. It has no side effects; persisting the deviations and
// attaching them to the panel is the caller's job.
type PanelAnalyzer struct {
	resolver *reference.Resolver
	logger   *zap.Logger

	now func() time.Time
}

// NewPanelAnalyzer creates an analyzer.
func NewPanelAnalyzer(resolver *reference.Resolver, logger *zap.Logger) *PanelAnalyzer {
	return &PanelAnalyzer{
		resolver: resolver,
		logger:   logger,
		now:      time.Now,
	}
}

// Analyze classifies each measurement of the panel using the subject's sex
// and age as of the current time. The result order matches the measurement
// order. Invalid values are skipped and logged; no error stops the panel.
func (a *PanelAnalyzer) Analyze(panel *models.Panel, subject *models.Subject) []models.Deviation {
	age := subject.AgeAt(a.now())

	var deviations []models.Deviation
	for _, m := range panel.Measurements {
		band := a.resolver.Resolve(m.Kind, subject.Sex, age)

		deviation, err := Classify(m.Kind, m.Value, band, subject.Sex)
		if err != nil {
			if errors.Is(err, ErrInvalidMeasurement) {
				a.logger.Warn("Skipping invalid measurement",
					zap.String("panel_id", panel.PanelID),
					zap.String("kind", string(m.Kind)),
					zap.Float64("value", m.Value),
				)
				continue
			}
			a.logger.Error("Failed to classify measurement",
				zap.String("panel_id", panel.PanelID),
				zap.String("kind", string(m.Kind)),
				zap.Error(err),
			)
			continue
		}
		if deviation == nil {
			continue
		}

		deviation.PanelID = panel.PanelID
		deviations = append(deviations, *deviation)

		a.logger.Warn("Deviation detected",
			zap.String("panel_id", panel.PanelID),
			zap.String("kind", string(deviation.Kind)),
			zap.String("severity", string(deviation.Severity)),
			zap.Float64("percent", deviation.PercentDeviation),
		)
	}

	return deviations
}
