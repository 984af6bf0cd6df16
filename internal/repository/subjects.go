// Package repository is the Postgres persistence layer: subjects, panels and
// the deviations detected in them.
package repository

import (
	"context"
	"database/sql"
	"fmt"

	"hemogram-alert/internal/models"

	"go.uber.org/zap"
)

// SubjectsRepository reads and writes the subjects table.
type SubjectsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSubjectsRepository creates a subjects repository.
func NewSubjectsRepository(db *sql.DB, logger *zap.Logger) *SubjectsRepository {
	return &SubjectsRepository{
		db:     db,
		logger: logger,
	}
}

const subjectColumns = `
	id,
	fhir_ref,
	full_name,
	given_name,
	family_name,
	sex,
	birth_date,
	phone,
	address,
	city,
	state,
	postal_code,
	created_at,
	updated_at
`

// FindSubject looks a subject up by its FHIR reference ("Patient/<id>").
// Returns (nil, nil) when no subject with that reference exists.
func (r *SubjectsRepository) FindSubject(ctx context.Context, fhirRef string) (*models.Subject, error) {
	if fhirRef == "" {
		return nil, fmt.Errorf("fhir_ref is required")
	}

	query := `SELECT ` + subjectColumns + ` FROM subjects WHERE fhir_ref = $1`

	subject, err := scanSubject(r.db.QueryRowContext(ctx, query, fhirRef))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find subject: %w", err)
	}
	return subject, nil
}

// CreateSubject inserts a bare subject row for a FHIR reference seen for the
// first time. Demographics are filled in later when a Patient resource
// arrives.
func (r *SubjectsRepository) CreateSubject(ctx context.Context, fhirRef string) (*models.Subject, error) {
	if fhirRef == "" {
		return nil, fmt.Errorf("fhir_ref is required")
	}

	query := `
		INSERT INTO subjects (fhir_ref, sex, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING ` + subjectColumns

	subject, err := scanSubject(r.db.QueryRowContext(ctx, query, fhirRef, string(models.SexUnknown)))
	if err != nil {
		return nil, fmt.Errorf("failed to create subject: %w", err)
	}

	r.logger.Info("Subject created",
		zap.Int64("subject_id", subject.ID),
		zap.String("fhir_ref", subject.FHIRRef),
	)
	return subject, nil
}

// UpdateDemographics overwrites the demographic fields of the subject with
// the given FHIR reference. Identity fields are never touched.
func (r *SubjectsRepository) UpdateDemographics(ctx context.Context, subject *models.Subject) error {
	if subject == nil {
		return fmt.Errorf("subject is required")
	}
	if subject.FHIRRef == "" {
		return fmt.Errorf("fhir_ref is required")
	}

	query := `
		UPDATE subjects SET
			full_name = $2,
			given_name = $3,
			family_name = $4,
			sex = $5,
			birth_date = $6,
			phone = $7,
			address = $8,
			city = $9,
			state = $10,
			postal_code = $11,
			updated_at = NOW()
		WHERE fhir_ref = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		subject.FHIRRef,
		subject.FullName,
		subject.GivenName,
		subject.FamilyName,
		string(subject.Sex),
		subject.BirthDate,
		subject.Phone,
		subject.Address,
		subject.City,
		subject.State,
		subject.PostalCode,
	)
	if err != nil {
		return fmt.Errorf("failed to update subject demographics: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("subject not found: fhir_ref=%s", subject.FHIRRef)
	}

	r.logger.Info("Subject demographics updated",
		zap.String("fhir_ref", subject.FHIRRef),
	)
	return nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubject(row rowScanner) (*models.Subject, error) {
	var subject models.Subject
	var fullName, givenName, familyName sql.NullString
	var phone, address, city, state, postalCode sql.NullString
	var sex string
	var birthDate sql.NullTime

	err := row.Scan(
		&subject.ID,
		&subject.FHIRRef,
		&fullName,
		&givenName,
		&familyName,
		&sex,
		&birthDate,
		&phone,
		&address,
		&city,
		&state,
		&postalCode,
		&subject.CreatedAt,
		&subject.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	subject.Sex = models.ParseSex(sex)
	if fullName.Valid {
		subject.FullName = &fullName.String
	}
	if givenName.Valid {
		subject.GivenName = &givenName.String
	}
	if familyName.Valid {
		subject.FamilyName = &familyName.String
	}
	if birthDate.Valid {
		subject.BirthDate = &birthDate.Time
	}
	if phone.Valid {
		subject.Phone = &phone.String
	}
	if address.Valid {
		subject.Address = &address.String
	}
	if city.Valid {
		subject.City = &city.String
	}
	if state.Valid {
		subject.State = &state.String
	}
	if postalCode.Valid {
		subject.PostalCode = &postalCode.String
	}

	return &subject, nil
}
