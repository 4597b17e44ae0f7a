package engine

import "time"

// Config holds the engine's policy knobs. The numeric values mirror the
// defaults but are overridable per deployment.
type Config struct {
	// NavigationTimeout bounds the initial page load.
	NavigationTimeout time.Duration

	// SettleDelay is the wait after navigation or a page advance for the new
	// content to render.
	SettleDelay time.Duration

	// StepDelay is the pause between question fills. Interacting with one
	// control can shift sibling layout, so fills are paced.
	StepDelay time.Duration

	// PageCap bounds the number of page advances so an infinite-pagination
	// form still terminates.
	PageCap int

	// CaptureScreenshot takes a final page screenshot and stores it when a
	// screenshot store is wired.
	CaptureScreenshot bool

	Selectors SelectorConfig
}

// SelectorConfig names the selector sets the engine drives the page with.
// Defaults target Google Forms; other form hosts can override.
type SelectorConfig struct {
	// QuestionContainers is the primary container selector set.
	QuestionContainers string
	// QuestionContainersFallback is tried when the primary set finds nothing.
	QuestionContainersFallback string
	// QuestionHeading extracts the question title within a container.
	QuestionHeading string
	// FormTitle extracts the form's top heading.
	FormTitle string

	Textarea       string
	RadioOption    string
	RadioFallback  string
	CheckboxOption string
	Dropdown       string
	DropdownOption string
	DateInput      string
	TextInput      string
	AnyInput       string

	NextButton   string
	SubmitButton string
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		NavigationTimeout: 30 * time.Second,
		SettleDelay:       2 * time.Second,
		StepDelay:         300 * time.Millisecond,
		PageCap:           10,
		Selectors:         DefaultSelectors(),
	}
}

// DefaultSelectors returns the Google Forms selector sets.
func DefaultSelectors() SelectorConfig {
	return SelectorConfig{
		QuestionContainers:         `[role="listitem"], .freebirdFormviewerComponentsQuestionBaseRoot, .Qr7Oae, .geS5n`,
		QuestionContainersFallback: `.freebirdFormviewerViewNumberedItemContainer, .m2, .o3Dpx`,
		QuestionHeading:            `[role="heading"], .freebirdFormviewerComponentsQuestionBaseTitle, .M7eMe`,
		FormTitle:                  `[role="heading"][aria-level="1"], .freebirdFormviewerViewHeaderTitle, .F9yp7e`,

		Textarea:       `textarea`,
		RadioOption:    `[role="radio"], [data-value]`,
		RadioFallback:  `label, .docssharedWizToggleLabeledContent`,
		CheckboxOption: `[role="checkbox"], label.docssharedWizToggleLabeledContent`,
		Dropdown:       `[role="listbox"], .quantumWizMenuPaperselectEl`,
		DropdownOption: `[role="option"], .quantumWizMenuPaperselectOption`,
		DateInput:      `input[type="date"]`,
		TextInput:      `input[type="text"], input[type="email"], input[type="url"], input[type="tel"], input[type="number"], input:not([type])`,
		AnyInput:       `input`,

		NextButton:   `div[role="button"]:has-text("Next"), span:has-text("Next")`,
		SubmitButton: `div[role="button"]:has-text("Submit"), span:has-text("Submit"), .freebirdFormviewerNavigationSubmitButton`,
	}
}
