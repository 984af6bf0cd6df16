package repository

import (
	"context"
	"database/sql"
	"fmt"

	"hemogram-alert/internal/models"

	"go.uber.org/zap"
)

// PanelsRepository writes panels and their deviations.
type PanelsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPanelsRepository creates a panels repository.
func NewPanelsRepository(db *sql.DB, logger *zap.Logger) *PanelsRepository {
	return &PanelsRepository{
		db:     db,
		logger: logger,
	}
}

// SavePanel persists a panel together with its deviations in a single
// transaction. Either everything lands or nothing does.
func (r *PanelsRepository) SavePanel(ctx context.Context, panel *models.Panel, deviations []models.Deviation) error {
	if panel == nil {
		return fmt.Errorf("panel is required")
	}
	if panel.PanelID == "" {
		return fmt.Errorf("panel_id is required")
	}
	if panel.FHIRObservationID == "" {
		return fmt.Errorf("fhir_observation_id is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	panelQuery := `
		INSERT INTO panels (
			panel_id,
			fhir_observation_id,
			subject_id,
			status,
			collected_at,
			created_at
		) VALUES ($1, $2, $3, $4, $5, NOW())
	`
	if _, err := tx.ExecContext(ctx, panelQuery,
		panel.PanelID,
		panel.FHIRObservationID,
		panel.SubjectID,
		panel.Status,
		panel.CollectedAt,
	); err != nil {
		return fmt.Errorf("failed to insert panel: %w", err)
	}

	deviationQuery := `
		INSERT INTO deviations (
			deviation_id,
			panel_id,
			kind,
			value_found,
			ref_min,
			ref_max,
			percent_deviation,
			severity,
			note,
			detected_at,
			notified
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	for _, deviation := range deviations {
		if _, err := tx.ExecContext(ctx, deviationQuery,
			deviation.DeviationID,
			deviation.PanelID,
			string(deviation.Kind),
			deviation.ValueFound,
			deviation.RefMin,
			deviation.RefMax,
			deviation.PercentDeviation,
			string(deviation.Severity),
			deviation.Note,
			deviation.DetectedAt,
			deviation.Notified,
		); err != nil {
			return fmt.Errorf("failed to insert deviation %s: %w", deviation.DeviationID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit panel transaction: %w", err)
	}

	r.logger.Info("Panel saved",
		zap.String("panel_id", panel.PanelID),
		zap.String("fhir_observation_id", panel.FHIRObservationID),
		zap.Int("deviation_count", len(deviations)),
	)
	return nil
}

// GetPanelByObservationID fetches a panel by its FHIR observation identifier.
// Returns (nil, nil) when the panel does not exist.
func (r *PanelsRepository) GetPanelByObservationID(ctx context.Context, observationID string) (*models.Panel, error) {
	if observationID == "" {
		return nil, fmt.Errorf("observation_id is required")
	}

	query := `
		SELECT
			panel_id,
			fhir_observation_id,
			subject_id,
			status,
			collected_at,
			created_at
		FROM panels
		WHERE fhir_observation_id = $1
	`

	var panel models.Panel
	var collectedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, observationID).Scan(
		&panel.PanelID,
		&panel.FHIRObservationID,
		&panel.SubjectID,
		&panel.Status,
		&collectedAt,
		&panel.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get panel: %w", err)
	}
	if collectedAt.Valid {
		panel.CollectedAt = &collectedAt.Time
	}

	return &panel, nil
}

// ListDeviationsByPanel returns the deviations recorded for a panel, oldest
// first.
func (r *PanelsRepository) ListDeviationsByPanel(ctx context.Context, panelID string) ([]models.Deviation, error) {
	if panelID == "" {
		return nil, fmt.Errorf("panel_id is required")
	}

	query := `
		SELECT
			deviation_id,
			panel_id,
			kind,
			value_found,
			ref_min,
			ref_max,
			percent_deviation,
			severity,
			note,
			detected_at,
			notified
		FROM deviations
		WHERE panel_id = $1
		ORDER BY detected_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, panelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deviations: %w", err)
	}
	defer rows.Close()

	var deviations []models.Deviation
	for rows.Next() {
		var deviation models.Deviation
		var kind, severity string
		if err := rows.Scan(
			&deviation.DeviationID,
			&deviation.PanelID,
			&kind,
			&deviation.ValueFound,
			&deviation.RefMin,
			&deviation.RefMax,
			&deviation.PercentDeviation,
			&severity,
			&deviation.Note,
			&deviation.DetectedAt,
			&deviation.Notified,
		); err != nil {
			return nil, fmt.Errorf("failed to scan deviation: %w", err)
		}
		deviation.Kind = models.ParameterKind(kind)
		deviation.Severity = models.SeverityTier(severity)
		deviations = append(deviations, deviation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deviations: %w", err)
	}

	return deviations, nil
}
