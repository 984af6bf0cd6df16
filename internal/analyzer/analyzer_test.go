package analyzer

import (
	"math"
	"testing"
	"time"

	"hemogram-alert/internal/models"
	"hemogram-alert/internal/reference"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAnalyzer() *PanelAnalyzer {
	a := NewPanelAnalyzer(reference.NewResolver(models.SexFemale), zap.NewNop())
	// Pin the clock so age derivation is deterministic.
	a.now = func() time.Time {
		return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	}
	return a
}

func testSubject(sex models.Sex, birthYear int) *models.Subject {
	birth := time.Date(birthYear, 3, 15, 0, 0, 0, 0, time.UTC)
	return &models.Subject{
		ID:        1,
		FHIRRef:   "Patient/42",
		Sex:       sex,
		BirthDate: &birth,
	}
}

func TestAnalyze_AnemiaExample(t *testing.T) {
	a := newTestAnalyzer()
	subject := testSubject(models.SexFemale, 1996) // age 30

	panel := &models.Panel{
		PanelID: "panel-1",
		Measurements: []models.Measurement{
			{Kind: models.ParamHemoglobin, Value: 9.5, Unit: "g/dL"},
		},
	}

	deviations := a.Analyze(panel, subject)
	require.Len(t, deviations, 1)

	deviation := deviations[0]
	assert.Equal(t, models.ParamHemoglobin, deviation.Kind)
	assert.Equal(t, 12.0, deviation.RefMin)
	assert.Equal(t, 16.0, deviation.RefMax)
	assert.InDelta(t, 20.83, deviation.PercentDeviation, 0.01)
	assert.Equal(t, models.SeverityModerado, deviation.Severity)
	assert.Contains(t, deviation.Note, "ANEMIA")
	assert.Equal(t, "panel-1", deviation.PanelID)
}

func TestAnalyze_ResultOrderMatchesInput(t *testing.T) {
	a := newTestAnalyzer()
	subject := testSubject(models.SexMale, 1980)

	panel := &models.Panel{
		PanelID: "panel-2",
		Measurements: []models.Measurement{
			{Kind: models.ParamLeukocytes, Value: 15000, Unit: "/μL"},
			{Kind: models.ParamPlatelets, Value: 300000, Unit: "/μL"}, // normal
			{Kind: models.ParamHemoglobin, Value: 9.0, Unit: "g/dL"},
			{Kind: models.ParamMonocytes, Value: 1000, Unit: "/μL"},
		},
	}

	deviations := a.Analyze(panel, subject)
	require.Len(t, deviations, 3)
	assert.Equal(t, models.ParamLeukocytes, deviations[0].Kind)
	assert.Equal(t, models.ParamHemoglobin, deviations[1].Kind)
	assert.Equal(t, models.ParamMonocytes, deviations[2].Kind)
}

func TestAnalyze_InvalidMeasurementSkippedRestAnalyzed(t *testing.T) {
	a := newTestAnalyzer()
	subject := testSubject(models.SexFemale, 1990)

	panel := &models.Panel{
		PanelID: "panel-3",
		Measurements: []models.Measurement{
			{Kind: models.ParamHemoglobin, Value: math.NaN(), Unit: "g/dL"},
			{Kind: models.ParamLeukocytes, Value: 15000, Unit: "/μL"},
		},
	}

	deviations := a.Analyze(panel, subject)
	require.Len(t, deviations, 1)
	assert.Equal(t, models.ParamLeukocytes, deviations[0].Kind)
}

func TestAnalyze_EmptyPanel(t *testing.T) {
	a := newTestAnalyzer()
	subject := testSubject(models.SexFemale, 1990)

	deviations := a.Analyze(&models.Panel{PanelID: "panel-4"}, subject)
	assert.Empty(t, deviations)
}

func TestAnalyze_AllNormalProducesNoDeviations(t *testing.T) {
	a := newTestAnalyzer()
	subject := testSubject(models.SexMale, 1980)

	panel := &models.Panel{
		PanelID: "panel-5",
		Measurements: []models.Measurement{
			{Kind: models.ParamLeukocytes, Value: 7000, Unit: "/μL"},
			{Kind: models.ParamHemoglobin, Value: 15.0, Unit: "g/dL"},
			{Kind: models.ParamPlatelets, Value: 250000, Unit: "/μL"},
		},
	}

	assert.Empty(t, a.Analyze(panel, subject))
}

func TestAnalyze_UnknownBirthDateUsesAdultBands(t *testing.T) {
	a := newTestAnalyzer()
	subject := &models.Subject{ID: 2, FHIRRef: "Patient/7", Sex: models.SexMale}

	panel := &models.Panel{
		PanelID: "panel-6",
		Measurements: []models.Measurement{
			// 13.2 is inside the adolescent male band but below the adult
			// male minimum of 13.5.
			{Kind: models.ParamHemoglobin, Value: 13.2, Unit: "g/dL"},
		},
	}

	deviations := a.Analyze(panel, subject)
	require.Len(t, deviations, 1)
	assert.Equal(t, 13.5, deviations[0].RefMin)
}

func TestSubject_AgeAt(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	beforeBirthday := time.Date(1996, 10, 2, 0, 0, 0, 0, time.UTC)
	afterBirthday := time.Date(1996, 3, 15, 0, 0, 0, 0, time.UTC)

	subject := &models.Subject{BirthDate: &beforeBirthday}
	require.NotNil(t, subject.AgeAt(now))
	assert.Equal(t, 29, *subject.AgeAt(now))

	subject = &models.Subject{BirthDate: &afterBirthday}
	require.NotNil(t, subject.AgeAt(now))
	assert.Equal(t, 30, *subject.AgeAt(now))

	subject = &models.Subject{}
	assert.Nil(t, subject.AgeAt(now))
}
