package service

import (
	"context"
	"fmt"
	"sync"

	"hemogram-alert/internal/analyzer"
	"hemogram-alert/internal/dedup"
	"hemogram-alert/internal/fhir"
	"hemogram-alert/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Parser decodes notification payloads (implemented by fhir.Parser; an
// interface so pipeline tests can fake it).
type Parser interface {
	IsWellFormed(payload []byte) bool
	Parse(payload []byte) (*fhir.Record, error)
	ParseBundleEntries(bundle *fhir.Bundle) []*fhir.Record
	ExtractPanel(obs *fhir.Observation) (*fhir.PanelData, error)
	ExtractSubject(patient *fhir.Patient) (*fhir.SubjectData, error)
}

// Store persists subjects and panels (implemented by repository.Store).
type Store interface {
	FindSubject(ctx context.Context, fhirRef string) (*models.Subject, error)
	CreateSubject(ctx context.Context, fhirRef string) (*models.Subject, error)
	UpdateSubjectDemographics(ctx context.Context, subject *models.Subject) error
	SavePanel(ctx context.Context, panel *models.Panel, deviations []models.Deviation) error
}

// Pipeline runs one ingestion per inbound notification:
// validate → parse → route → dedup check → extract → analyze → persist → mark.
// Failures never reach the notifier (it already got its acknowledgment);
// they are either absorbed here or leave the identifier eligible for a
// retried delivery.
type Pipeline struct {
	parser   Parser
	store    Store
	dedup    dedup.Deduplicator
	analyzer *analyzer.PanelAnalyzer
	logger   *zap.Logger

	wg sync.WaitGroup
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(
	parser Parser,
	store Store,
	deduplicator dedup.Deduplicator,
	panelAnalyzer *analyzer.PanelAnalyzer,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		parser:   parser,
		store:    store,
		dedup:    deduplicator,
		analyzer: panelAnalyzer,
		logger:   logger,
	}
}

// AnalyzeNotificationAsync dispatches the notification to its own goroutine.
// The caller does not await a result; the run completes or fails on its own.
func (p *Pipeline) AnalyzeNotificationAsync(payload []byte, metadata map[string]string) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.AnalyzeNotification(context.Background(), payload, metadata)
	}()
}

// Wait blocks until every dispatched run has finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// AnalyzeNotification processes one notification synchronously. The returned
// error reports persistence failures for observability; nothing is propagated
// to the notifier.
func (p *Pipeline) AnalyzeNotification(ctx context.Context, payload []byte, metadata map[string]string) error {
	// Opportunistic expiry of old dedup marks; no background timer.
	if err := p.dedup.Sweep(ctx); err != nil {
		p.logger.Warn("Dedup sweep failed", zap.Error(err))
	}

	if source, ok := metadata["source"]; ok {
		p.logger.Debug("Processing notification",
			zap.String("source", source),
			zap.Int("payload_bytes", len(payload)),
		)
	}

	if !p.parser.IsWellFormed(payload) {
		p.logger.Warn("Ignoring malformed notification payload",
			zap.Int("payload_bytes", len(payload)),
		)
		return nil
	}

	record, err := p.parser.Parse(payload)
	if err != nil {
		// ParseError: recovered locally, run ends silently.
		p.logger.Warn("Ignoring unparseable notification", zap.Error(err))
		return nil
	}

	return p.route(ctx, record)
}

// route dispatches on the record kind. The set of kinds is closed; anything
// unrecognized ends the run silently.
func (p *Pipeline) route(ctx context.Context, record *fhir.Record) error {
	switch record.Kind {
	case fhir.RecordBundle:
		// Each constituent independently re-enters at the dedup check.
		var firstErr error
		for _, entry := range p.parser.ParseBundleEntries(record.Bundle) {
			if err := p.route(ctx, entry); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	case fhir.RecordObservation:
		return p.processObservation(ctx, record.Observation)
	case fhir.RecordPatient:
		return p.processPatient(ctx, record.Patient)
	case fhir.RecordUnrecognized:
		return nil
	default:
		return nil
	}
}

// processObservation is the panel path: dedup, extract, analyze, persist,
// mark. The mark is reserved atomically up front so only one of N concurrent
// duplicates proceeds, and released again if persistence fails so a retried
// delivery can complete the work.
func (p *Pipeline) processObservation(ctx context.Context, obs *fhir.Observation) error {
	if obs == nil || obs.ID == "" {
		p.logger.Warn("Ignoring observation without id")
		return nil
	}
	recordID := "Observation/" + obs.ID

	proceed, err := p.dedup.CheckAndMark(ctx, recordID)
	if err != nil {
		// Dedup backend failure: better to risk a duplicate run than to
		// drop the notification.
		p.logger.Error("Dedup check failed, processing anyway",
			zap.String("record_id", recordID),
			zap.Error(err),
		)
		proceed = true
	}
	if !proceed {
		p.logger.Info("Skipping duplicate notification",
			zap.String("record_id", recordID),
		)
		return nil
	}

	panelData, err := p.parser.ExtractPanel(obs)
	if err != nil {
		p.releaseMark(ctx, recordID)
		p.logger.Warn("Ignoring observation with unusable content",
			zap.String("record_id", recordID),
			zap.Error(err),
		)
		return nil
	}
	if panelData.SubjectRef == "" {
		p.releaseMark(ctx, recordID)
		p.logger.Warn("Ignoring observation without subject reference",
			zap.String("record_id", recordID),
		)
		return nil
	}

	subject, err := p.findOrCreateSubject(ctx, panelData.SubjectRef)
	if err != nil {
		p.releaseMark(ctx, recordID)
		p.logger.Error("Failed to resolve subject",
			zap.String("record_id", recordID),
			zap.String("subject_ref", panelData.SubjectRef),
			zap.Error(err),
		)
		return fmt.Errorf("failed to resolve subject: %w", err)
	}

	panel := &models.Panel{
		PanelID:           uuid.New().String(),
		FHIRObservationID: panelData.ObservationID,
		SubjectID:         subject.ID,
		Status:            panelData.Status,
		CollectedAt:       panelData.CollectedAt,
		Measurements:      panelData.Measurements,
	}

	deviations := p.analyzer.Analyze(panel, subject)

	if err := p.store.SavePanel(ctx, panel, deviations); err != nil {
		// Persistence failed before the mark was confirmed: release it so a
		// redelivered notification is reprocessed instead of dropped.
		p.releaseMark(ctx, recordID)
		p.logger.Error("Failed to persist panel",
			zap.String("record_id", recordID),
			zap.String("panel_id", panel.PanelID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to persist panel: %w", err)
	}

	if err := p.dedup.Mark(ctx, recordID); err != nil {
		p.logger.Warn("Failed to refresh processed mark",
			zap.String("record_id", recordID),
			zap.Error(err),
		)
	}

	p.logger.Info("Notification processed",
		zap.String("record_id", recordID),
		zap.String("panel_id", panel.PanelID),
		zap.Int("measurement_count", len(panel.Measurements)),
		zap.Int("deviation_count", len(deviations)),
	)
	return nil
}

// processPatient refreshes demographics for subjects we already track.
// Subject rows are only ever created from panel-bearing observations, never
// from a bare Patient notification.
func (p *Pipeline) processPatient(ctx context.Context, patient *fhir.Patient) error {
	data, err := p.parser.ExtractSubject(patient)
	if err != nil {
		p.logger.Warn("Ignoring unusable patient resource", zap.Error(err))
		return nil
	}

	subject, err := p.store.FindSubject(ctx, data.Ref)
	if err != nil {
		p.logger.Error("Failed to look up subject",
			zap.String("subject_ref", data.Ref),
			zap.Error(err),
		)
		return fmt.Errorf("failed to look up subject: %w", err)
	}
	if subject == nil {
		p.logger.Debug("Patient resource for unknown subject, ignoring",
			zap.String("subject_ref", data.Ref),
		)
		return nil
	}

	subject.FullName = data.FullName
	subject.GivenName = data.GivenName
	subject.FamilyName = data.FamilyName
	subject.Sex = data.Sex
	subject.BirthDate = data.BirthDate
	subject.Phone = data.Phone
	subject.Address = data.Address
	subject.City = data.City
	subject.State = data.State
	subject.PostalCode = data.PostalCode

	if err := p.store.UpdateSubjectDemographics(ctx, subject); err != nil {
		p.logger.Error("Failed to update subject demographics",
			zap.String("subject_ref", data.Ref),
			zap.Error(err),
		)
		return fmt.Errorf("failed to update subject demographics: %w", err)
	}
	return nil
}

func (p *Pipeline) findOrCreateSubject(ctx context.Context, fhirRef string) (*models.Subject, error) {
	subject, err := p.store.FindSubject(ctx, fhirRef)
	if err != nil {
		return nil, err
	}
	if subject != nil {
		return subject, nil
	}
	subject, err = p.store.CreateSubject(ctx, fhirRef)
	if err == nil {
		return subject, nil
	}
	// A concurrent run may have created the row between find and create.
	if existing, findErr := p.store.FindSubject(ctx, fhirRef); findErr == nil && existing != nil {
		return existing, nil
	}
	return nil, err
}

func (p *Pipeline) releaseMark(ctx context.Context, recordID string) {
	if err := p.dedup.Release(ctx, recordID); err != nil {
		p.logger.Warn("Failed to release processed mark",
			zap.String("record_id", recordID),
			zap.Error(err),
		)
	}
}
