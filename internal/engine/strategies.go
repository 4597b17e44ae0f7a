package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/formpilot/formpilot/internal/domain"
)

// filler applies resolved answers to live containers. Each fill method
// returns exactly one log entry whether the interaction succeeded or failed,
// so a broken control never aborts the page loop.
type filler struct {
	selectors SelectorConfig
	now       func() time.Time
}

func newFiller(selectors SelectorConfig, now func() time.Time) filler {
	if now == nil {
		now = time.Now
	}
	return filler{selectors: selectors, now: now}
}

// fill dispatches to the strategy for the container's field type. Unknown
// fields are skipped.
func (f filler) fill(container Element, question string, fieldType domain.FieldType, answer domain.ResolvedAnswer) domain.FillLogEntry {
	switch fieldType {
	case domain.FieldTypeText:
		return f.fillText(container, question, answer)
	case domain.FieldTypeParagraph:
		return f.fillParagraph(container, question, answer)
	case domain.FieldTypeRadio:
		return f.fillRadio(container, question, answer)
	case domain.FieldTypeCheckbox:
		return f.fillCheckbox(container, question, answer)
	case domain.FieldTypeDropdown:
		return f.fillDropdown(container, question, answer)
	case domain.FieldTypeDate:
		return f.fillDate(container, question, answer)
	}
	return f.entry(question, domain.FieldTypeUnknown, "", domain.SourceNone, domain.StatusSkipped)
}

func (f filler) fillText(container Element, question string, answer domain.ResolvedAnswer) domain.FillLogEntry {
	return f.setInputValue(container, f.selectors.TextInput, question, domain.FieldTypeText, answer)
}

func (f filler) fillParagraph(container Element, question string, answer domain.ResolvedAnswer) domain.FillLogEntry {
	return f.setInputValue(container, f.selectors.Textarea, question, domain.FieldTypeParagraph, answer)
}

// setInputValue clears then sets a text-like control, verbatim.
func (f filler) setInputValue(container Element, selector string, question string, ft domain.FieldType, answer domain.ResolvedAnswer) domain.FillLogEntry {
	input := container.Locate(selector)
	count, err := input.Count()
	if err != nil {
		return f.errorEntry(question, ft, answer, err)
	}
	if count == 0 {
		return f.errorEntry(question, ft, answer, fmt.Errorf("no input control found"))
	}

	first := input.First()
	if err := first.Click(); err != nil {
		return f.errorEntry(question, ft, answer, err)
	}
	if err := first.SetValue(""); err != nil {
		return f.errorEntry(question, ft, answer, err)
	}
	if err := first.SetValue(answer.Value); err != nil {
		return f.errorEntry(question, ft, answer, err)
	}
	return f.entry(question, ft, answer.Value, answer.Source, domain.StatusFilled)
}

// fillRadio selects the best-matching option, falling back to the first
// option when nothing matches so a choice field is never left empty. The
// fallback retags the entry's source as fallback_first.
func (f filler) fillRadio(container Element, question string, answer domain.ResolvedAnswer) domain.FillLogEntry {
	options := container.Locate(f.selectors.RadioOption)
	count, err := options.Count()
	if err != nil {
		return f.errorEntry(question, domain.FieldTypeRadio, answer, err)
	}
	if count == 0 {
		options = container.Locate(f.selectors.RadioFallback)
		if count, err = options.Count(); err != nil {
			return f.errorEntry(question, domain.FieldTypeRadio, answer, err)
		}
	}
	if count == 0 {
		return f.errorEntry(question, domain.FieldTypeRadio, answer, fmt.Errorf("no options found"))
	}

	want := strings.ToLower(strings.TrimSpace(answer.Value))
	bestIdx := -1
	bestScore := 0.0

	for i := 0; i < count; i++ {
		opt := options.Nth(i)
		raw, err := opt.Text()
		if err != nil {
			continue
		}
		text := strings.ToLower(strings.TrimSpace(raw))
		dataValue, _ := opt.Attribute("data-value")

		if text == want || strings.ToLower(dataValue) == want {
			bestIdx = i
			bestScore = 1.0
			break
		}

		// Length-ratio scoring favors options whose text closely brackets
		// the answer, instead of over-matching on a shared filler word.
		if want != "" && (strings.Contains(text, want) || strings.Contains(want, text)) {
			score := float64(len(want)) / float64(max(len(text), 1))
			if score > bestScore {
				bestIdx = i
				bestScore = score
			}
		}
	}

	if bestIdx < 0 {
		first := options.First()
		if err := first.Click(); err != nil {
			return f.errorEntry(question, domain.FieldTypeRadio, answer, err)
		}
		selected, _ := first.Text()
		return f.entry(question, domain.FieldTypeRadio, strings.TrimSpace(selected), domain.SourceFallbackFirst, domain.StatusFilled)
	}

	chosen := options.Nth(bestIdx)
	if err := chosen.Click(); err != nil {
		return f.errorEntry(question, domain.FieldTypeRadio, answer, err)
	}
	selected, _ := chosen.Text()
	return f.entry(question, domain.FieldTypeRadio, strings.TrimSpace(selected), answer.Source, domain.StatusFilled)
}

// fillCheckbox checks every option overlapping a comma-separated answer
// token, or the first option when none overlap.
func (f filler) fillCheckbox(container Element, question string, answer domain.ResolvedAnswer) domain.FillLogEntry {
	options := container.Locate(f.selectors.CheckboxOption)
	count, err := options.Count()
	if err != nil {
		return f.errorEntry(question, domain.FieldTypeCheckbox, answer, err)
	}
	if count == 0 {
		return f.errorEntry(question, domain.FieldTypeCheckbox, answer, fmt.Errorf("no options found"))
	}

	var tokens []string
	for _, part := range strings.Split(answer.Value, ",") {
		if t := strings.ToLower(strings.TrimSpace(part)); t != "" {
			tokens = append(tokens, t)
		}
	}

	checked := false
	for i := 0; i < count; i++ {
		opt := options.Nth(i)
		raw, err := opt.Text()
		if err != nil {
			continue
		}
		text := strings.ToLower(strings.TrimSpace(raw))

		for _, token := range tokens {
			if strings.Contains(text, token) || strings.Contains(token, text) {
				if err := opt.Click(); err == nil {
					checked = true
				}
				break
			}
		}
	}

	if !checked {
		if err := options.First().Click(); err != nil {
			return f.errorEntry(question, domain.FieldTypeCheckbox, answer, err)
		}
	}
	return f.entry(question, domain.FieldTypeCheckbox, answer.Value, answer.Source, domain.StatusFilled)
}

// fillDropdown opens the control first; options may only exist post-open.
// With no match it picks the second option since the first is conventionally
// a "choose one" placeholder.
func (f filler) fillDropdown(container Element, question string, answer domain.ResolvedAnswer) domain.FillLogEntry {
	dropdown := container.Locate(f.selectors.Dropdown)
	count, err := dropdown.Count()
	if err != nil {
		return f.errorEntry(question, domain.FieldTypeDropdown, answer, err)
	}
	if count == 0 {
		return f.errorEntry(question, domain.FieldTypeDropdown, answer, fmt.Errorf("no dropdown control found"))
	}

	if err := dropdown.First().Click(); err != nil {
		return f.errorEntry(question, domain.FieldTypeDropdown, answer, err)
	}

	options := container.Locate(f.selectors.DropdownOption)
	optCount, err := options.Count()
	if err != nil {
		return f.errorEntry(question, domain.FieldTypeDropdown, answer, err)
	}
	if optCount == 0 {
		return f.errorEntry(question, domain.FieldTypeDropdown, answer, fmt.Errorf("no options appeared after opening"))
	}

	want := strings.ToLower(strings.TrimSpace(answer.Value))
	matchIdx := -1
	for i := 0; i < optCount; i++ {
		raw, err := options.Nth(i).Text()
		if err != nil {
			continue
		}
		text := strings.ToLower(strings.TrimSpace(raw))
		if text == want || (want != "" && strings.Contains(text, want)) {
			matchIdx = i
			break
		}
	}

	if matchIdx < 0 {
		matchIdx = 0
		if optCount > 1 {
			matchIdx = 1
		}
	}
	if err := options.Nth(matchIdx).Click(); err != nil {
		return f.errorEntry(question, domain.FieldTypeDropdown, answer, err)
	}
	return f.entry(question, domain.FieldTypeDropdown, answer.Value, answer.Source, domain.StatusFilled)
}

// fillDate writes the resolved value into a native date control. Forms that
// split the date into discrete sub-inputs get today's day/month/year instead:
// free-text answers cannot be reliably decomposed into date components, so
// today's date is the safe default.
func (f filler) fillDate(container Element, question string, answer domain.ResolvedAnswer) domain.FillLogEntry {
	native := container.Locate(f.selectors.DateInput)
	count, err := native.Count()
	if err != nil {
		return f.errorEntry(question, domain.FieldTypeDate, answer, err)
	}
	if count > 0 {
		if err := native.First().SetValue(answer.Value); err != nil {
			return f.errorEntry(question, domain.FieldTypeDate, answer, err)
		}
		return f.entry(question, domain.FieldTypeDate, answer.Value, answer.Source, domain.StatusFilled)
	}

	inputs := container.Locate(f.selectors.AnyInput)
	inputCount, err := inputs.Count()
	if err != nil {
		return f.errorEntry(question, domain.FieldTypeDate, answer, err)
	}
	if inputCount < 2 {
		return f.errorEntry(question, domain.FieldTypeDate, answer, fmt.Errorf("no date inputs found"))
	}

	today := f.now()
	parts := []string{
		strconv.Itoa(today.Day()),
		strconv.Itoa(int(today.Month())),
		strconv.Itoa(today.Year()),
	}
	for i := 0; i < min(inputCount, len(parts)); i++ {
		if err := inputs.Nth(i).SetValue(parts[i]); err != nil {
			return f.errorEntry(question, domain.FieldTypeDate, answer, err)
		}
	}
	return f.entry(question, domain.FieldTypeDate, today.Format("2006-01-02"), answer.Source, domain.StatusFilled)
}

func (f filler) entry(question string, ft domain.FieldType, answer string, source domain.AnswerSource, status string) domain.FillLogEntry {
	return domain.FillLogEntry{
		Question:  question,
		FieldType: ft,
		Answer:    answer,
		Source:    source,
		Status:    status,
		Timestamp: f.now().UTC(),
	}
}

func (f filler) errorEntry(question string, ft domain.FieldType, answer domain.ResolvedAnswer, err error) domain.FillLogEntry {
	return domain.FillLogEntry{
		Question:  question,
		FieldType: ft,
		Answer:    answer.Value,
		Source:    answer.Source,
		Status:    domain.ErrorStatus(err.Error()),
		Timestamp: f.now().UTC(),
	}
}
