package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LearnedMapping is a persisted record that a specific question text
// previously resolved to a specific answer for a user. Future runs hit these
// records before consulting the matcher or the generative backend.
type LearnedMapping struct {
	ID           uuid.UUID `json:"id" db:"id"`
	UserID       uuid.UUID `json:"user_id" db:"user_id"`
	QuestionText string    `json:"question_text" db:"question_text"`
	MatchedField FieldName `json:"matched_field" db:"matched_field"`
	AnswerValue  string    `json:"answer_value" db:"answer_value"`
	Confidence   int       `json:"confidence" db:"confidence"`
	TimesUsed    int       `json:"times_used" db:"times_used"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// LearnedSnapshot is the read-only view of a user's learned mappings handed
// to the engine at run start: normalized question text to answer value.
type LearnedSnapshot map[string]string

// Lookup finds the answer for a question by normalized, case-insensitive
// comparison against the snapshot keys.
func (s LearnedSnapshot) Lookup(question string) (string, bool) {
	q := NormalizeQuestion(question)
	if v, ok := s[q]; ok {
		return v, true
	}
	// Keys written by older callers may not be normalized.
	for k, v := range s {
		if NormalizeQuestion(k) == q {
			return v, true
		}
	}
	return "", false
}

var questionNoise = regexp.MustCompile(`[*\n\r]+`)
var questionSpace = regexp.MustCompile(`\s+`)

// NormalizeQuestion strips markers, newlines and control padding from a
// question, collapses whitespace, lowercases and trims. Both the matcher and
// the learned-mapping lookup operate on this form.
func NormalizeQuestion(q string) string {
	q = questionNoise.ReplaceAllString(q, " ")
	q = questionSpace.ReplaceAllString(q, " ")
	return strings.ToLower(strings.TrimSpace(q))
}
