package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/formpilot/formpilot/internal/domain"
)

// FillRunRepository persists fill runs and their reports
type FillRunRepository struct {
	db *sqlx.DB
}

// NewFillRunRepository creates a new fill run repository
func NewFillRunRepository(db *sqlx.DB) *FillRunRepository {
	return &FillRunRepository{db: db}
}

type fillRunRow struct {
	ID          uuid.UUID  `db:"id"`
	UserID      uuid.UUID  `db:"user_id"`
	FormURL     string     `db:"form_url"`
	AutoSubmit  bool       `db:"auto_submit"`
	Status      string     `db:"status"`
	Report      []byte     `db:"report"`
	TriggeredBy string     `db:"triggered_by"`
	CreatedAt   time.Time  `db:"created_at"`
	StartedAt   *time.Time `db:"started_at"`
	CompletedAt *time.Time `db:"completed_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

func (r *fillRunRow) toDomain() (*domain.FillRun, error) {
	run := &domain.FillRun{
		ID:          r.ID,
		UserID:      r.UserID,
		FormURL:     r.FormURL,
		AutoSubmit:  r.AutoSubmit,
		Status:      domain.RunStatus(r.Status),
		TriggeredBy: r.TriggeredBy,
		CreatedAt:   r.CreatedAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		UpdatedAt:   r.UpdatedAt,
	}

	if r.Report != nil {
		var report domain.RunReport
		if err := json.Unmarshal(r.Report, &report); err != nil {
			return nil, err
		}
		run.Report = &report
	}
	return run, nil
}

// Create inserts a new fill run
func (r *FillRunRepository) Create(ctx context.Context, run *domain.FillRun) error {
	query := `
		INSERT INTO fill_runs (
			id, user_id, form_url, auto_submit, status, report, triggered_by,
			created_at, started_at, completed_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	report, err := marshalReport(run.Report)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query,
		run.ID, run.UserID, run.FormURL, run.AutoSubmit,
		string(run.Status), report, run.TriggeredBy,
		run.CreatedAt, run.StartedAt, run.CompletedAt, run.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewError(domain.ErrCodeConflict, "fill run already exists", 409)
		}
		return domain.ErrDatabase(err)
	}
	return nil
}

// Update persists a run's status and report
func (r *FillRunRepository) Update(ctx context.Context, run *domain.FillRun) error {
	query := `
		UPDATE fill_runs
		SET status = $2, report = $3, started_at = $4, completed_at = $5, updated_at = $6
		WHERE id = $1
	`

	report, err := marshalReport(run.Report)
	if err != nil {
		return err
	}

	run.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx, query,
		run.ID, string(run.Status), report,
		run.StartedAt, run.CompletedAt, run.UpdatedAt,
	)
	if err != nil {
		return domain.ErrDatabase(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.ErrDatabase(err)
	}
	if affected == 0 {
		return domain.ErrFillRunNotFound(run.ID.String())
	}
	return nil
}

// GetByID retrieves a fill run, scoped to its owner
func (r *FillRunRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*domain.FillRun, error) {
	query := `
		SELECT id, user_id, form_url, auto_submit, status, report, triggered_by,
		       created_at, started_at, completed_at, updated_at
		FROM fill_runs
		WHERE id = $1 AND user_id = $2
	`

	var row fillRunRow
	if err := r.db.GetContext(ctx, &row, query, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrFillRunNotFound(id.String())
		}
		return nil, domain.ErrDatabase(err)
	}
	return row.toDomain()
}

// ListByUser returns a user's fill runs, newest first
func (r *FillRunRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.FillRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT id, user_id, form_url, auto_submit, status, report, triggered_by,
		       created_at, started_at, completed_at, updated_at
		FROM fill_runs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	var rows []fillRunRow
	if err := r.db.SelectContext(ctx, &rows, query, userID, limit); err != nil {
		return nil, domain.ErrDatabase(err)
	}

	runs := make([]*domain.FillRun, 0, len(rows))
	for i := range rows {
		run, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func marshalReport(report *domain.RunReport) (interface{}, error) {
	if report == nil {
		return nil, nil
	}
	data, err := json.Marshal(report)
	if err != nil {
		return nil, err
	}
	return data, nil
}
