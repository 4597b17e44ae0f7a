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

// ProfileRepository persists user profiles in PostgreSQL
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

type profileRow struct {
	ID             uuid.UUID `db:"id"`
	UserID         uuid.UUID `db:"user_id"`
	FullName       string    `db:"full_name"`
	RegisterNumber string    `db:"register_number"`
	Department     string    `db:"department"`
	Year           string    `db:"year"`
	Email          string    `db:"email"`
	Phone          string    `db:"phone"`
	Gender         string    `db:"gender"`
	CollegeName    string    `db:"college_name"`
	Address        string    `db:"address"`
	Skills         string    `db:"skills"`
	Interests      string    `db:"interests"`
	Bio            string    `db:"bio"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (r *profileRow) toDomain() *domain.UserProfile {
	return &domain.UserProfile{
		ID:     r.ID,
		UserID: r.UserID,
		Profile: domain.Profile{
			FullName:       r.FullName,
			RegisterNumber: r.RegisterNumber,
			Department:     r.Department,
			Year:           r.Year,
			Email:          r.Email,
			Phone:          r.Phone,
			Gender:         r.Gender,
			CollegeName:    r.CollegeName,
			Address:        r.Address,
			Skills:         r.Skills,
			Interests:      r.Interests,
			Bio:            r.Bio,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// Upsert inserts or replaces the profile for a user. Each user has at most
// one profile row.
func (r *ProfileRepository) Upsert(ctx context.Context, p *domain.UserProfile) error {
	query := `
		INSERT INTO user_profiles (
			id, user_id, full_name, register_number, department, year,
			email, phone, gender, college_name, address, skills, interests, bio,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (user_id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			register_number = EXCLUDED.register_number,
			department = EXCLUDED.department,
			year = EXCLUDED.year,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			gender = EXCLUDED.gender,
			college_name = EXCLUDED.college_name,
			address = EXCLUDED.address,
			skills = EXCLUDED.skills,
			interests = EXCLUDED.interests,
			bio = EXCLUDED.bio,
			updated_at = EXCLUDED.updated_at
	`

	p.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.UserID,
		p.FullName, p.RegisterNumber, p.Department, p.Year,
		p.Email, p.Phone, p.Gender, p.CollegeName,
		p.Address, p.Skills, p.Interests, p.Bio,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return domain.ErrDatabase(err)
	}
	return nil
}

// GetByUserID retrieves the profile for a user
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.UserProfile, error) {
	query := `
		SELECT id, user_id, full_name, register_number, department, year,
		       email, phone, gender, college_name, address, skills, interests, bio,
		       created_at, updated_at
		FROM user_profiles
		WHERE user_id = $1
	`

	var row profileRow
	if err := r.db.GetContext(ctx, &row, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProfileNotFound(userID.String())
		}
		return nil, domain.ErrDatabase(err)
	}
	return row.toDomain(), nil
}
