package domain

import (
	"time"

	"github.com/google/uuid"
)

// FieldName identifies a canonical profile field that form questions are
// matched against.
type FieldName string

const (
	FieldFullName       FieldName = "full_name"
	FieldRegisterNumber FieldName = "register_number"
	FieldDepartment     FieldName = "department"
	FieldYear           FieldName = "year"
	FieldEmail          FieldName = "email"
	FieldPhone          FieldName = "phone"
	FieldGender         FieldName = "gender"
	FieldCollegeName    FieldName = "college_name"
	FieldAddress        FieldName = "address"
	FieldSkills         FieldName = "skills"
	FieldInterests      FieldName = "interests"
	FieldBio            FieldName = "bio"

	// FieldAIGenerated marks a mapping whose answer came from the generative
	// backend rather than a profile field.
	FieldAIGenerated FieldName = "ai_generated"
)

// FieldNames lists all canonical profile fields in declaration order. The
// matcher corpus iterates in this order, which fixes tie-breaking.
var FieldNames = []FieldName{
	FieldFullName,
	FieldRegisterNumber,
	FieldDepartment,
	FieldYear,
	FieldEmail,
	FieldPhone,
	FieldGender,
	FieldCollegeName,
	FieldAddress,
	FieldSkills,
	FieldInterests,
	FieldBio,
}

// Profile holds the values of the canonical fields for one user. The engine
// treats a Profile as read-only for the lifetime of a run.
type Profile struct {
	FullName       string `json:"full_name" db:"full_name"`
	RegisterNumber string `json:"register_number" db:"register_number"`
	Department     string `json:"department" db:"department"`
	Year           string `json:"year" db:"year"`
	Email          string `json:"email" db:"email"`
	Phone          string `json:"phone" db:"phone"`
	Gender         string `json:"gender" db:"gender"`
	CollegeName    string `json:"college_name" db:"college_name"`
	Address        string `json:"address" db:"address"`
	Skills         string `json:"skills" db:"skills"`
	Interests      string `json:"interests" db:"interests"`
	Bio            string `json:"bio" db:"bio"`
}

// Value returns the profile value for a canonical field, or "" for unknown
// fields (including FieldAIGenerated, which never maps to stored data).
func (p Profile) Value(f FieldName) string {
	switch f {
	case FieldFullName:
		return p.FullName
	case FieldRegisterNumber:
		return p.RegisterNumber
	case FieldDepartment:
		return p.Department
	case FieldYear:
		return p.Year
	case FieldEmail:
		return p.Email
	case FieldPhone:
		return p.Phone
	case FieldGender:
		return p.Gender
	case FieldCollegeName:
		return p.CollegeName
	case FieldAddress:
		return p.Address
	case FieldSkills:
		return p.Skills
	case FieldInterests:
		return p.Interests
	case FieldBio:
		return p.Bio
	}
	return ""
}

// FieldValue pairs a canonical field with its profile value.
type FieldValue struct {
	Field FieldName
	Value string
}

// NonEmpty returns the fields that hold a non-blank value, in canonical order.
// Used when building generative prompts.
func (p Profile) NonEmpty() []FieldValue {
	var out []FieldValue
	for _, f := range FieldNames {
		if v := p.Value(f); v != "" {
			out = append(out, FieldValue{Field: f, Value: v})
		}
	}
	return out
}

// UserProfile is the persisted profile record for one user.
type UserProfile struct {
	ID     uuid.UUID `json:"id" db:"id"`
	UserID uuid.UUID `json:"user_id" db:"user_id"`
	Profile
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewUserProfile creates a profile record for a user.
func NewUserProfile(userID uuid.UUID, p Profile) *UserProfile {
	now := time.Now().UTC()
	return &UserProfile{
		ID:        uuid.New(),
		UserID:    userID,
		Profile:   p,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
