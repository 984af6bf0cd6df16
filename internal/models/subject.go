package models

import (
	"time"
)

// Sex is the biological sex recorded for a subject, following the FHIR
// administrative-gender codes we actually consume.
type Sex string

const (
	SexMale    Sex = "male"
	SexFemale  Sex = "female"
	SexUnknown Sex = "unknown"
)

// ParseSex normalizes an external gender code. Anything that is not
// male/female maps to SexUnknown.
func ParseSex(code string) Sex {
	switch code {
	case "male":
		return SexMale
	case "female":
		return SexFemale
	default:
		return SexUnknown
	}
}

// Subject is a patient known to the system (subjects table).
// Created on first reference from an inbound panel; demographic fields are
// filled in later when a Patient resource arrives.
type Subject struct {
	ID         int64      `json:"id" db:"id"`
	FHIRRef    string     `json:"fhir_ref" db:"fhir_ref"` // e.g. "Patient/123"
	FullName   *string    `json:"full_name,omitempty" db:"full_name"`
	GivenName  *string    `json:"given_name,omitempty" db:"given_name"`
	FamilyName *string    `json:"family_name,omitempty" db:"family_name"`
	Sex        Sex        `json:"sex" db:"sex"`
	BirthDate  *time.Time `json:"birth_date,omitempty" db:"birth_date"`
	Phone      *string    `json:"phone,omitempty" db:"phone"`
	Address    *string    `json:"address,omitempty" db:"address"`
	City       *string    `json:"city,omitempty" db:"city"`
	State      *string    `json:"state,omitempty" db:"state"`
	PostalCode *string    `json:"postal_code,omitempty" db:"postal_code"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// AgeAt derives the subject's age in completed years as of the given time.
// Returns nil when the birth date is unknown.
func (s *Subject) AgeAt(now time.Time) *int {
	if s == nil || s.BirthDate == nil {
		return nil
	}
	birth := *s.BirthDate
	years := now.Year() - birth.Year()
	// Not yet had the birthday this year.
	if now.Month() < birth.Month() ||
		(now.Month() == birth.Month() && now.Day() < birth.Day()) {
		years--
	}
	if years < 0 {
		years = 0
	}
	age := years
	return &age
}
