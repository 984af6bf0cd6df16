package repository

import (
	"context"
	"database/sql"

	"hemogram-alert/internal/models"

	"go.uber.org/zap"
)

// Store bundles the subject and panel repositories behind the narrow surface
// the ingestion pipeline persists through.
type Store struct {
	subjects *SubjectsRepository
	panels   *PanelsRepository
}

// NewStore creates a store over one database handle.
func NewStore(db *sql.DB, logger *zap.Logger) *Store {
	return &Store{
		subjects: NewSubjectsRepository(db, logger),
		panels:   NewPanelsRepository(db, logger),
	}
}

// FindSubject returns the subject with the given FHIR reference, or
// (nil, nil) when absent.
func (s *Store) FindSubject(ctx context.Context, fhirRef string) (*models.Subject, error) {
	return s.subjects.FindSubject(ctx, fhirRef)
}

// CreateSubject inserts a bare subject for a newly seen FHIR reference.
func (s *Store) CreateSubject(ctx context.Context, fhirRef string) (*models.Subject, error) {
	return s.subjects.CreateSubject(ctx, fhirRef)
}

// UpdateSubjectDemographics overwrites the subject's demographic fields.
func (s *Store) UpdateSubjectDemographics(ctx context.Context, subject *models.Subject) error {
	return s.subjects.UpdateDemographics(ctx, subject)
}

// SavePanel persists the panel plus its deviations atomically.
func (s *Store) SavePanel(ctx context.Context, panel *models.Panel, deviations []models.Deviation) error {
	return s.panels.SavePanel(ctx, panel, deviations)
}
