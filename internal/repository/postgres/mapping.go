package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/formpilot/formpilot/internal/domain"
)

// MappingRepository persists learned question-to-answer mappings
type MappingRepository struct {
	db *sqlx.DB
}

// NewMappingRepository creates a new mapping repository
func NewMappingRepository(db *sqlx.DB) *MappingRepository {
	return &MappingRepository{db: db}
}

type mappingRow struct {
	ID           uuid.UUID `db:"id"`
	UserID       uuid.UUID `db:"user_id"`
	QuestionText string    `db:"question_text"`
	MatchedField string    `db:"matched_field"`
	AnswerValue  string    `db:"answer_value"`
	Confidence   int       `db:"confidence"`
	TimesUsed    int       `db:"times_used"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r *mappingRow) toDomain() *domain.LearnedMapping {
	return &domain.LearnedMapping{
		ID:           r.ID,
		UserID:       r.UserID,
		QuestionText: r.QuestionText,
		MatchedField: domain.FieldName(r.MatchedField),
		AnswerValue:  r.AnswerValue,
		Confidence:   r.Confidence,
		TimesUsed:    r.TimesUsed,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// Upsert inserts a mapping or, if this user already learned the question,
// refreshes its answer and bumps times_used. Question text is stored
// normalized so snapshot lookups hit on the exact key.
func (r *MappingRepository) Upsert(ctx context.Context, userID uuid.UUID, m domain.NewMapping) error {
	query := `
		INSERT INTO learned_mappings (
			id, user_id, question_text, matched_field, answer_value,
			confidence, times_used, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $7)
		ON CONFLICT (user_id, question_text) DO UPDATE SET
			matched_field = EXCLUDED.matched_field,
			answer_value = EXCLUDED.answer_value,
			confidence = EXCLUDED.confidence,
			times_used = learned_mappings.times_used + 1,
			updated_at = EXCLUDED.updated_at
	`

	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, query,
		uuid.New(), userID,
		domain.NormalizeQuestion(m.Question),
		string(m.Field), m.Value, m.Confidence,
		now,
	)
	if err != nil {
		return domain.ErrDatabase(err)
	}
	return nil
}

// UpsertBatch persists a run's proposed mappings in one transaction.
func (r *MappingRepository) UpsertBatch(ctx context.Context, userID uuid.UUID, mappings []domain.NewMapping) error {
	if len(mappings) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.ErrDatabase(err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO learned_mappings (
			id, user_id, question_text, matched_field, answer_value,
			confidence, times_used, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $7)
		ON CONFLICT (user_id, question_text) DO UPDATE SET
			matched_field = EXCLUDED.matched_field,
			answer_value = EXCLUDED.answer_value,
			confidence = EXCLUDED.confidence,
			times_used = learned_mappings.times_used + 1,
			updated_at = EXCLUDED.updated_at
	`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return domain.ErrDatabase(err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, m := range mappings {
		if _, err := stmt.ExecContext(ctx,
			uuid.New(), userID,
			domain.NormalizeQuestion(m.Question),
			string(m.Field), m.Value, m.Confidence,
			now,
		); err != nil {
			return domain.ErrDatabase(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.ErrDatabase(err)
	}
	return nil
}

// Snapshot loads the user's learned mappings as the normalized
// question-to-answer view handed to the engine at run start.
func (r *MappingRepository) Snapshot(ctx context.Context, userID uuid.UUID) (domain.LearnedSnapshot, error) {
	query := `
		SELECT question_text, answer_value
		FROM learned_mappings
		WHERE user_id = $1
	`

	rows, err := r.db.QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, domain.ErrDatabase(err)
	}
	defer rows.Close()

	snapshot := make(domain.LearnedSnapshot)
	for rows.Next() {
		var question, answer string
		if err := rows.Scan(&question, &answer); err != nil {
			return nil, domain.ErrDatabase(err)
		}
		snapshot[question] = answer
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrDatabase(err)
	}
	return snapshot, nil
}

// ListByUser returns all of a user's learned mappings, most recently used
// first.
func (r *MappingRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.LearnedMapping, error) {
	query := `
		SELECT id, user_id, question_text, matched_field, answer_value,
		       confidence, times_used, created_at, updated_at
		FROM learned_mappings
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`

	var rows []mappingRow
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, domain.ErrDatabase(err)
	}

	mappings := make([]*domain.LearnedMapping, len(rows))
	for i := range rows {
		mappings[i] = rows[i].toDomain()
	}
	return mappings, nil
}

// Delete removes one learned mapping owned by the user.
func (r *MappingRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM learned_mappings WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return domain.ErrDatabase(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.ErrDatabase(err)
	}
	if affected == 0 {
		return domain.ErrMappingNotFound(id.String())
	}
	return nil
}

// TouchUsed bumps times_used for a learned hit observed during a run.
func (r *MappingRepository) TouchUsed(ctx context.Context, userID uuid.UUID, question string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE learned_mappings
		SET times_used = times_used + 1, updated_at = $3
		WHERE user_id = $1 AND question_text = $2
	`, userID, domain.NormalizeQuestion(question), time.Now().UTC())
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return domain.ErrDatabase(err)
	}
	return nil
}
