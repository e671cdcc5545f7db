package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/orgpulse/internal/model"
)

type stateRow struct {
	Source        string        `db:"source"`
	LastRunAt     sql.NullInt64 `db:"last_run_at"`
	LastSuccessAt sql.NullInt64 `db:"last_success_at"`
	LastError     string        `db:"last_error"`
	IsRunning     int           `db:"is_running"`
	RunStartedAt  sql.NullInt64 `db:"run_started_at"`
	LastProcessed int           `db:"last_processed"`
	LastCreated   int           `db:"last_created"`
	LastSkipped   int           `db:"last_skipped"`
	LastErrors    int           `db:"last_errors"`
}

func (r stateRow) toModel() model.TransformState {
	return model.TransformState{
		Source:        model.Source(r.Source),
		LastRunAt:     timeFromNull(r.LastRunAt),
		LastSuccessAt: timeFromNull(r.LastSuccessAt),
		LastError:     r.LastError,
		IsRunning:     r.IsRunning != 0,
		RunStartedAt:  timeFromNull(r.RunStartedAt),
		LastProcessed: r.LastProcessed,
		LastCreated:   r.LastCreated,
		LastSkipped:   r.LastSkipped,
		LastErrors:    r.LastErrors,
	}
}

const stateColumns = `source, last_run_at, last_success_at, last_error, is_running,
	run_started_at, last_processed, last_created, last_skipped, last_errors`

// TryStartRun atomically sets the running flag for source. It succeeds when
// no run is in progress or the current run's lease started before
// staleBefore.
func (s *SQLStore) TryStartRun(ctx context.Context, source model.Source, now, staleBefore time.Time) (bool, error) {
	if _, err := s.db.ExecContext(ctx, s.q(
		"INSERT INTO transform_state (source) VALUES (?) ON CONFLICT (source) DO NOTHING"),
		string(source)); err != nil {
		return false, fmt.Errorf("ensuring transform state for %s: %w", source, err)
	}

	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE transform_state
		SET is_running = 1, run_started_at = ?, last_run_at = ?
		WHERE source = ?
			AND (is_running = 0 OR run_started_at IS NULL OR run_started_at < ?)`),
		toMillis(now), toMillis(now), string(source), toMillis(staleBefore),
	)
	if err != nil {
		return false, fmt.Errorf("starting run for %s: %w", source, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("starting run for %s: %w", source, err)
	}
	return n == 1, nil
}

// FinishRun clears the running flag and records the outcome. LastSuccessAt
// only moves on success. Nothing is written when the lease started at
// out.StartedAt is no longer held; ErrLeaseLost is returned instead.
func (s *SQLStore) FinishRun(ctx context.Context, source model.Source, out RunOutcome) error {
	var (
		res sql.Result
		err error
	)
	if out.Success {
		res, err = s.db.ExecContext(ctx, s.q(`
			UPDATE transform_state SET
				is_running = 0, run_started_at = NULL, last_error = '',
				last_success_at = ?,
				last_processed = ?, last_created = ?, last_skipped = ?, last_errors = ?
			WHERE source = ? AND is_running = 1 AND run_started_at = ?`),
			toMillis(out.SuccessAt),
			out.Processed, out.Created, out.Skipped, out.Errors,
			string(source), toMillis(out.StartedAt),
		)
	} else {
		res, err = s.db.ExecContext(ctx, s.q(`
			UPDATE transform_state SET
				is_running = 0, run_started_at = NULL, last_error = ?,
				last_processed = ?, last_created = ?, last_skipped = ?, last_errors = ?
			WHERE source = ? AND is_running = 1 AND run_started_at = ?`),
			out.Error,
			out.Processed, out.Created, out.Skipped, out.Errors,
			string(source), toMillis(out.StartedAt),
		)
	}
	if err != nil {
		return fmt.Errorf("finishing run for %s: %w", source, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishing run for %s: %w", source, err)
	}
	if rows == 0 {
		return fmt.Errorf("finishing run for %s: %w", source, ErrLeaseLost)
	}
	return nil
}

// ClearRun drops the running flag without touching the run history.
func (s *SQLStore) ClearRun(ctx context.Context, source model.Source) error {
	_, err := s.db.ExecContext(ctx, s.q(
		"UPDATE transform_state SET is_running = 0, run_started_at = NULL WHERE source = ?"),
		string(source))
	if err != nil {
		return fmt.Errorf("clearing run for %s: %w", source, err)
	}
	return nil
}

// GetTransformState returns the state of source. A source that never ran
// yields an idle zero state.
func (s *SQLStore) GetTransformState(ctx context.Context, source model.Source) (*model.TransformState, error) {
	var row stateRow
	err := s.db.GetContext(ctx, &row, s.q(
		"SELECT "+stateColumns+" FROM transform_state WHERE source = ?"), string(source))
	if errors.Is(err, sql.ErrNoRows) {
		return &model.TransformState{Source: source}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting transform state for %s: %w", source, err)
	}
	st := row.toModel()
	return &st, nil
}

// ListTransformStates returns the stored state rows ordered by source.
func (s *SQLStore) ListTransformStates(ctx context.Context) ([]model.TransformState, error) {
	var rows []stateRow
	if err := s.db.SelectContext(ctx, &rows,
		"SELECT "+stateColumns+" FROM transform_state ORDER BY source"); err != nil {
		return nil, fmt.Errorf("querying transform states: %w", err)
	}
	states := make([]model.TransformState, len(rows))
	for i, r := range rows {
		states[i] = r.toModel()
	}
	return states, nil
}
