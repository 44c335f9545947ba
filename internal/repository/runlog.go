package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tdot-data/collision-weather-etl/internal/models"
)

// StartRun inserts a ledger row in the running state and returns its id.
// Ledger writes autocommit; they must survive a later data rollback.
func (s *SQLStore) StartRun(ctx context.Context, pipeline, triggeredBy string) (string, error) {
	runID := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_log (run_id, pipeline_name, status, start_time, row_count, triggered_by)
		VALUES ($1, $2, $3, $4, 0, $5)
	`, runID, pipeline, models.RunStatusRunning, time.Now().UTC(), triggeredBy)
	if err != nil {
		return "", fmt.Errorf("error starting run for %s: %w", pipeline, err)
	}
	return runID, nil
}

// EndRun moves a run to its terminal status. A run transitions exactly
// once; end_time is set together with the terminal status.
func (s *SQLStore) EndRun(ctx context.Context, runID string, status models.RunStatus, rowCount int, errMessage string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE run_log
		SET end_time = $1,
			status = $2,
			row_count = $3,
			error_message = $4
		WHERE run_id = $5
	`, time.Now().UTC(), status, rowCount,
		sql.NullString{String: errMessage, Valid: errMessage != ""}, runID)
	if err != nil {
		return fmt.Errorf("error ending run %s: %w", runID, err)
	}
	return nil
}

// GetRun reads one ledger row back. Not part of the Store interface:
// the pipelines only ever write the ledger, so this stays a concrete
// inspection helper.
func (s *SQLStore) GetRun(ctx context.Context, runID string) (*models.Run, error) {
	var (
		run    models.Run
		status string
		end    sql.NullTime
		errMsg sql.NullString
		tag    sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, pipeline_name, status, start_time, end_time, row_count, error_message, triggered_by
		FROM run_log
		WHERE run_id = $1
	`, runID).Scan(&run.ID, &run.PipelineName, &status, &run.StartTime, &end, &run.RowCount, &errMsg, &tag)
	if err != nil {
		return nil, fmt.Errorf("error reading run %s: %w", runID, err)
	}

	run.Status = models.RunStatus(status)
	if end.Valid {
		t := end.Time.UTC()
		run.EndTime = &t
	}
	if errMsg.Valid {
		run.ErrorMessage = &errMsg.String
	}
	run.TriggeredBy = tag.String

	return &run, nil
}
