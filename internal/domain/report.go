package domain

import (
	"strings"
	"time"
)

// FieldType is the classifier's tag for a question's input shape.
type FieldType string

const (
	FieldTypeText      FieldType = "text"
	FieldTypeParagraph FieldType = "paragraph"
	FieldTypeRadio     FieldType = "radio"
	FieldTypeCheckbox  FieldType = "checkbox"
	FieldTypeDropdown  FieldType = "dropdown"
	FieldTypeDate      FieldType = "date"
	FieldTypeUnknown   FieldType = "unknown"
)

// AnswerSource records where a resolved or applied answer came from.
type AnswerSource string

const (
	// SourceLearned means the answer came from a previously learned mapping.
	SourceLearned AnswerSource = "learned"
	// SourceProfile means the answer came from a matched profile field.
	SourceProfile AnswerSource = "profile"
	// SourceAIGenerated means the generative backend produced the answer.
	SourceAIGenerated AnswerSource = "ai_generated"
	// SourceFallbackFirst means no option matched and the strategy picked the
	// first option so a choice field is never left empty.
	SourceFallbackFirst AnswerSource = "fallback_first"
	// SourceNone is used for skipped questions with no answer at all.
	SourceNone AnswerSource = "none"
	// SourceSystem tags entries produced by the engine itself, such as a
	// missing submit control.
	SourceSystem AnswerSource = "system"
)

// Fill log statuses. Error statuses carry the message inline.
const (
	StatusFilled  = "filled"
	StatusSkipped = "skipped"
)

// ErrorStatus builds an error status string for a fill log entry.
func ErrorStatus(msg string) string {
	return "error: " + msg
}

// IsErrorStatus reports whether a fill log status records a failure.
func IsErrorStatus(status string) bool {
	return strings.HasPrefix(status, "error:")
}

// ResolvedAnswer is the resolver's output for one question. Confidence is a
// 0-100 score; it is meaningful only for the profile and ai_generated tiers
// and stays 0 for learned hits.
type ResolvedAnswer struct {
	Value      string       `json:"value"`
	Source     AnswerSource `json:"source"`
	Confidence int          `json:"confidence"`
}

// FillLogEntry records the outcome of processing one question. Entries are
// immutable once appended to a report.
type FillLogEntry struct {
	Question  string       `json:"question"`
	FieldType FieldType    `json:"field_type"`
	Answer    string       `json:"answer"`
	Source    AnswerSource `json:"source"`
	Status    string       `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
}

// NewMapping is a proposal to persist a question-to-answer association learned
// during a run. The engine only proposes; the caller owns the write side.
type NewMapping struct {
	Question   string    `json:"question"`
	Field      FieldName `json:"field"`
	Value      string    `json:"value"`
	Confidence int       `json:"confidence"`
}

// RunStatus is the overall outcome of a fill run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunReport is the complete structured result of one fill attempt. It is
// created empty at run start, mutated only by the engine during the run, and
// frozen once returned.
type RunReport struct {
	Status            RunStatus      `json:"status"`
	FormTitle         string         `json:"form_title"`
	QuestionsDetected int            `json:"questions_detected"`
	QuestionsFilled   int            `json:"questions_filled"`
	AIAnswersUsed     int            `json:"ai_answers_used"`
	PagesTraversed    int            `json:"pages_traversed"`
	AutoSubmitted     bool           `json:"auto_submitted"`
	ErrorMessage      string         `json:"error_message,omitempty"`
	FillLog           []FillLogEntry `json:"fill_log"`
	NewMappings       []NewMapping   `json:"new_mappings"`
	ScreenshotURI     string         `json:"screenshot_uri,omitempty"`
}

// NewRunReport creates an empty pending report.
func NewRunReport() *RunReport {
	return &RunReport{
		Status:      RunStatusPending,
		FillLog:     []FillLogEntry{},
		NewMappings: []NewMapping{},
	}
}
