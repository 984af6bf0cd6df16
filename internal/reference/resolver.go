// Package reference resolves the clinically expected value band for a
// blood-count parameter given the subject's sex and age.
package reference

import (
	"math"

	"hemogram-alert/internal/models"
)

// Resolver maps (parameter, sex, age) onto a reference band. It is pure and
// safe for concurrent use.
//
// UnknownSexFallback decides which side of a sex-split band applies when the
// subject's sex is unknown. The shipped default is female: the female bands
// carry the lower minima, so unknown-sex subjects are flagged more rather
// than less. This is a policy choice pending domain-expert review, which is
// why it is configurable instead of hard-coded.
type Resolver struct {
	unknownSexFallback models.Sex
}

// NewResolver creates a resolver. fallback must be SexMale or SexFemale;
// anything else falls back to SexFemale.
func NewResolver(fallback models.Sex) *Resolver {
	if fallback != models.SexMale {
		fallback = models.SexFemale
	}
	return &Resolver{unknownSexFallback: fallback}
}

// Resolve returns the reference band for kind. age is nil when the subject's
// birth date is unknown. Kinds outside the catalogue resolve to [0,+Inf) so
// they never produce a deviation; the resolver never fails.
func (r *Resolver) Resolve(kind models.ParameterKind, sex models.Sex, age *int) models.ReferenceBand {
	switch kind {
	case models.ParamLeukocytes:
		return models.ReferenceBand{Min: 4000, Max: 11000, Unit: "/μL"}
	case models.ParamPlatelets:
		return models.ReferenceBand{Min: 150000, Max: 450000, Unit: "/μL"}
	case models.ParamNeutrophils:
		return models.ReferenceBand{Min: 1500, Max: 7500, Unit: "/μL"}
	case models.ParamLymphocytes:
		return models.ReferenceBand{Min: 1000, Max: 4000, Unit: "/μL"}
	case models.ParamMonocytes:
		return models.ReferenceBand{Min: 200, Max: 800, Unit: "/μL"}
	case models.ParamEosinophils:
		return models.ReferenceBand{Min: 50, Max: 500, Unit: "/μL"}
	case models.ParamBasophils:
		return models.ReferenceBand{Min: 0, Max: 100, Unit: "/μL"}
	case models.ParamHemoglobin:
		return r.hemoglobinBand(sex, age)
	case models.ParamHematocrit:
		return r.hematocritBand(sex)
	case models.ParamErythrocytes:
		return r.erythrocytesBand(sex)
	default:
		// Unmapped parameter: silently permissive, never a deviation.
		return models.ReferenceBand{Min: 0, Max: math.Inf(1)}
	}
}

// hemoglobinBand applies the age bracket first, then the sex split.
// The adult male minimum of 13.5 g/dL vs female 12.0 g/dL encodes the
// clinical anemia threshold distinction.
func (r *Resolver) hemoglobinBand(sex models.Sex, age *int) models.ReferenceBand {
	if age != nil && *age >= 6 && *age < 12 {
		return models.ReferenceBand{Min: 11.5, Max: 15.5, Unit: "g/dL"}
	}
	if age != nil && *age >= 12 && *age < 18 {
		if r.effectiveSex(sex) == models.SexMale {
			return models.ReferenceBand{Min: 13.0, Max: 16.0, Unit: "g/dL"}
		}
		return models.ReferenceBand{Min: 12.0, Max: 16.0, Unit: "g/dL"}
	}
	// Adults, and subjects of unknown age.
	if r.effectiveSex(sex) == models.SexMale {
		return models.ReferenceBand{Min: 13.5, Max: 17.5, Unit: "g/dL"}
	}
	return models.ReferenceBand{Min: 12.0, Max: 16.0, Unit: "g/dL"}
}

func (r *Resolver) hematocritBand(sex models.Sex) models.ReferenceBand {
	if r.effectiveSex(sex) == models.SexMale {
		return models.ReferenceBand{Min: 40, Max: 52, Unit: "%"}
	}
	return models.ReferenceBand{Min: 36, Max: 48, Unit: "%"}
}

func (r *Resolver) erythrocytesBand(sex models.Sex) models.ReferenceBand {
	if r.effectiveSex(sex) == models.SexMale {
		return models.ReferenceBand{Min: 4.5, Max: 6.0, Unit: "million/μL"}
	}
	return models.ReferenceBand{Min: 4.0, Max: 5.5, Unit: "million/μL"}
}

func (r *Resolver) effectiveSex(sex models.Sex) models.Sex {
	if sex == models.SexMale || sex == models.SexFemale {
		return sex
	}
	return r.unknownSexFallback
}
