package engine

import (
	"strings"

	"github.com/formpilot/formpilot/internal/domain"
)

// classifier extracts question text and tags a container's field type.
type classifier struct {
	selectors SelectorConfig
}

// classify reads the container's question text and decides its field type.
// ok is false when no usable text exists, in which case the container is not
// counted as a detected question.
func (c classifier) classify(container Element) (question string, fieldType domain.FieldType, ok bool) {
	question = c.questionText(container)
	if len(question) < 2 {
		return "", "", false
	}
	return question, c.fieldType(container), true
}

// questionText extracts the heading text, falling back to the first non-empty
// line of the container's visible text.
func (c classifier) questionText(container Element) string {
	heading := container.Locate(c.selectors.QuestionHeading)
	if count, err := heading.Count(); err == nil && count > 0 {
		if text, err := heading.First().Text(); err == nil {
			if t := strings.TrimSpace(text); t != "" {
				return t
			}
		}
	}

	text, err := container.Text()
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(text, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			return t
		}
	}
	return ""
}

// fieldType presence-tests the container's controls in fixed priority order.
// Containers can expose several affordances at once, so first match wins.
func (c classifier) fieldType(container Element) domain.FieldType {
	checks := []struct {
		selector string
		ft       domain.FieldType
	}{
		{c.selectors.Textarea, domain.FieldTypeParagraph},
		{`[role="radio"]`, domain.FieldTypeRadio},
		{`[role="checkbox"]`, domain.FieldTypeCheckbox},
		{c.selectors.Dropdown, domain.FieldTypeDropdown},
		{c.selectors.DateInput, domain.FieldTypeDate},
		{c.selectors.TextInput, domain.FieldTypeText},
	}

	for _, check := range checks {
		if count, err := container.Locate(check.selector).Count(); err == nil && count > 0 {
			return check.ft
		}
	}
	return domain.FieldTypeUnknown
}
