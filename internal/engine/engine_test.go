package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/formpilot/formpilot/internal/domain"
	"github.com/formpilot/formpilot/internal/matcher"
	"github.com/formpilot/formpilot/internal/resolver"
)

// Fake page driver. Selectors are matched literally against the default
// selector sets, which is all the engine ever passes down.

type fakeNode struct {
	text      string
	dataValue string
	container *fakeContainer
	onClick   func()
	clickErr  error
	setErr    error
	clicks    int
	values    []string
}

type fakeElement struct {
	cfg   SelectorConfig
	nodes []*fakeNode
}

func (e fakeElement) Count() (int, error) { return len(e.nodes), nil }

func (e fakeElement) Nth(i int) Element {
	if i >= 0 && i < len(e.nodes) {
		return fakeElement{cfg: e.cfg, nodes: e.nodes[i : i+1]}
	}
	return fakeElement{cfg: e.cfg}
}

func (e fakeElement) First() Element { return e.Nth(0) }

func (e fakeElement) Locate(selector string) Element {
	if len(e.nodes) > 0 && e.nodes[0].container != nil {
		return e.nodes[0].container.locate(e.cfg, selector)
	}
	return fakeElement{cfg: e.cfg}
}

func (e fakeElement) Text() (string, error) {
	if len(e.nodes) == 0 {
		return "", errors.New("element not found")
	}
	n := e.nodes[0]
	if n.text == "" && n.container != nil {
		return n.container.visibleText, nil
	}
	return n.text, nil
}

func (e fakeElement) Attribute(string) (string, error) {
	if len(e.nodes) == 0 {
		return "", errors.New("element not found")
	}
	return e.nodes[0].dataValue, nil
}

func (e fakeElement) Click() error {
	if len(e.nodes) == 0 {
		return errors.New("element not found")
	}
	n := e.nodes[0]
	if n.clickErr != nil {
		return n.clickErr
	}
	n.clicks++
	if n.onClick != nil {
		n.onClick()
	}
	return nil
}

func (e fakeElement) SetValue(value string) error {
	if len(e.nodes) == 0 {
		return errors.New("element not found")
	}
	n := e.nodes[0]
	if n.setErr != nil {
		return n.setErr
	}
	n.values = append(n.values, value)
	return nil
}

type fakeContainer struct {
	heading     string
	visibleText string
	kind        domain.FieldType
	nativeDate  bool
	opened      bool

	options []*fakeNode
	inputs  []*fakeNode
}

func (c *fakeContainer) locate(cfg SelectorConfig, selector string) fakeElement {
	switch selector {
	case cfg.QuestionHeading:
		if c.heading != "" {
			return fakeElement{cfg: cfg, nodes: []*fakeNode{{text: c.heading}}}
		}
	case cfg.Textarea:
		if c.kind == domain.FieldTypeParagraph {
			return fakeElement{cfg: cfg, nodes: c.inputs}
		}
	case `[role="radio"]`, cfg.RadioOption:
		if c.kind == domain.FieldTypeRadio {
			return fakeElement{cfg: cfg, nodes: c.options}
		}
	case `[role="checkbox"]`, cfg.CheckboxOption:
		if c.kind == domain.FieldTypeCheckbox {
			return fakeElement{cfg: cfg, nodes: c.options}
		}
	case cfg.Dropdown:
		if c.kind == domain.FieldTypeDropdown {
			open := &fakeNode{text: "dropdown", onClick: func() { c.opened = true }}
			return fakeElement{cfg: cfg, nodes: []*fakeNode{open}}
		}
	case cfg.DropdownOption:
		if c.kind == domain.FieldTypeDropdown && c.opened {
			return fakeElement{cfg: cfg, nodes: c.options}
		}
	case cfg.DateInput:
		if c.kind == domain.FieldTypeDate && c.nativeDate {
			return fakeElement{cfg: cfg, nodes: c.inputs[:1]}
		}
	case cfg.TextInput:
		if c.kind == domain.FieldTypeText {
			return fakeElement{cfg: cfg, nodes: c.inputs}
		}
	case cfg.AnyInput:
		return fakeElement{cfg: cfg, nodes: c.inputs}
	}
	return fakeElement{cfg: cfg}
}

func textQuestion(heading string) *fakeContainer {
	return &fakeContainer{heading: heading, kind: domain.FieldTypeText, inputs: []*fakeNode{{}}}
}

func paragraphQuestion(heading string) *fakeContainer {
	return &fakeContainer{heading: heading, kind: domain.FieldTypeParagraph, inputs: []*fakeNode{{}}}
}

func choiceQuestion(kind domain.FieldType, heading string, options ...string) *fakeContainer {
	c := &fakeContainer{heading: heading, kind: kind}
	for _, opt := range options {
		c.options = append(c.options, &fakeNode{text: opt})
	}
	return c
}

type fakeSession struct {
	cfg        SelectorConfig
	title      string
	pages      [][]*fakeContainer
	pageIdx    int
	hideFirst  bool
	alwaysNext bool
	hasSubmit  bool
	submitted  bool
	navErr     error
	closed     bool
}

func (s *fakeSession) current() []*fakeContainer {
	if s.pageIdx < len(s.pages) {
		return s.pages[s.pageIdx]
	}
	return nil
}

func containersElement(cfg SelectorConfig, containers []*fakeContainer) fakeElement {
	var nodes []*fakeNode
	for _, c := range containers {
		nodes = append(nodes, &fakeNode{text: c.visibleText, container: c})
	}
	return fakeElement{cfg: cfg, nodes: nodes}
}

func (s *fakeSession) Navigate(string, time.Duration) error { return s.navErr }

func (s *fakeSession) Locate(selector string) Element {
	switch selector {
	case s.cfg.QuestionContainers:
		if s.hideFirst && s.pageIdx == 0 {
			return fakeElement{cfg: s.cfg}
		}
		return containersElement(s.cfg, s.current())
	case s.cfg.QuestionContainersFallback:
		if s.hideFirst && s.pageIdx == 0 {
			return containersElement(s.cfg, s.current())
		}
	case s.cfg.FormTitle:
		if s.title != "" {
			return fakeElement{cfg: s.cfg, nodes: []*fakeNode{{text: s.title}}}
		}
	case s.cfg.NextButton:
		if s.alwaysNext {
			return fakeElement{cfg: s.cfg, nodes: []*fakeNode{{text: "Next"}}}
		}
		if s.pageIdx < len(s.pages)-1 {
			return fakeElement{cfg: s.cfg, nodes: []*fakeNode{{text: "Next", onClick: func() { s.pageIdx++ }}}}
		}
	case s.cfg.SubmitButton:
		if s.hasSubmit {
			return fakeElement{cfg: s.cfg, nodes: []*fakeNode{{text: "Submit", onClick: func() { s.submitted = true }}}}
		}
	}
	return fakeElement{cfg: s.cfg}
}

func (s *fakeSession) Wait(time.Duration)          {}
func (s *fakeSession) Screenshot() ([]byte, error) { return []byte("jpeg"), nil }
func (s *fakeSession) Close() error                { s.closed = true; return nil }

type fakeDriver struct {
	session    *fakeSession
	sessionErr error
}

func (d *fakeDriver) NewSession(context.Context) (Session, error) {
	if d.sessionErr != nil {
		return nil, d.sessionErr
	}
	return d.session, nil
}

func (d *fakeDriver) Close() error { return nil }

type stubGenerator struct{ answer string }

func (g stubGenerator) Generate(context.Context, string, domain.Profile) (string, error) {
	return g.answer, nil
}

func newTestEngine(session *fakeSession, opts ...Option) *Engine {
	res := resolver.New(
		matcher.NewKeywordMatcher(matcher.DefaultThreshold),
		stubGenerator{answer: "generated answer"},
		zap.NewNop(),
	)
	cfg := DefaultConfig()
	cfg.SettleDelay = 0
	cfg.StepDelay = 0
	session.cfg = cfg.Selectors
	return New(&fakeDriver{session: session}, res, cfg, zap.NewNop(), opts...)
}

var engineProfile = domain.Profile{
	FullName:   "Asha Rao",
	Department: "CSE",
	Gender:     "Female",
	Skills:     "Go, Java",
}

func TestRunFillsFormEndToEnd(t *testing.T) {
	name := textQuestion("Full Name")
	about := paragraphQuestion("Tell us about yourself")
	gender := choiceQuestion(domain.FieldTypeRadio, "Gender", "Male", "Female")
	skills := choiceQuestion(domain.FieldTypeCheckbox, "Skills", "Go", "Python", "Java")
	dept := choiceQuestion(domain.FieldTypeDropdown, "Department", "Choose", "CSE", "ECE")
	colour := choiceQuestion(domain.FieldTypeRadio, "Favourite Colour", "Teal", "Red")

	session := &fakeSession{
		title: "Club Registration",
		pages: [][]*fakeContainer{{name, about, gender, skills, dept, colour}},
	}
	e := newTestEngine(session)

	report := e.Run(context.Background(), FillRequest{
		FormURL: "https://example.com/form",
		Profile: engineProfile,
		Learned: domain.LearnedSnapshot{"favourite colour": "Teal"},
	})

	if report.Status != domain.RunStatusCompleted {
		t.Fatalf("status = %v, error = %q", report.Status, report.ErrorMessage)
	}
	if report.FormTitle != "Club Registration" {
		t.Errorf("form title = %q", report.FormTitle)
	}
	if report.QuestionsDetected != 6 || report.QuestionsFilled != 6 {
		t.Errorf("detected/filled = %d/%d, want 6/6", report.QuestionsDetected, report.QuestionsFilled)
	}
	if len(report.FillLog) != 6 {
		t.Fatalf("fill log has %d entries, want 6", len(report.FillLog))
	}
	if report.AIAnswersUsed != 1 {
		t.Errorf("ai answers used = %d, want 1", report.AIAnswersUsed)
	}
	if !session.closed {
		t.Error("session must be released after the run")
	}

	// Text input received the profile value verbatim (after a clearing set).
	values := name.inputs[0].values
	if len(values) != 2 || values[1] != "Asha Rao" {
		t.Errorf("text input values = %v", values)
	}

	// Radio picked the exact option, checkbox picked the token matches.
	if gender.options[1].clicks != 1 || gender.options[0].clicks != 0 {
		t.Error("radio should click only the Female option")
	}
	if skills.options[0].clicks != 1 || skills.options[2].clicks != 1 || skills.options[1].clicks != 0 {
		t.Error("checkbox should click Go and Java only")
	}
	if dept.options[1].clicks != 1 {
		t.Error("dropdown should click the CSE option")
	}

	// Learned hit carries its source through to the log.
	last := report.FillLog[5]
	if last.Source != domain.SourceLearned || last.Answer != "Teal" {
		t.Errorf("learned entry = %+v", last)
	}

	// Four profile-tier hits and one generative hit each propose a mapping;
	// the learned hit proposes nothing.
	if len(report.NewMappings) != 5 {
		t.Errorf("new mappings = %d, want 5", len(report.NewMappings))
	}
}

func TestRunFailsWhenNavigationFails(t *testing.T) {
	session := &fakeSession{navErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	e := newTestEngine(session)

	report := e.Run(context.Background(), FillRequest{FormURL: "https://bad.invalid"})

	if report.Status != domain.RunStatusFailed {
		t.Fatalf("status = %v, want failed", report.Status)
	}
	if report.ErrorMessage == "" {
		t.Error("error message must be set")
	}
	if report.QuestionsDetected != 0 {
		t.Errorf("detected = %d, want 0", report.QuestionsDetected)
	}
	if !session.closed {
		t.Error("session must be released on the failure path")
	}
}

func TestRunFailsWithZeroContainersOnFirstPage(t *testing.T) {
	session := &fakeSession{pages: [][]*fakeContainer{{}}}
	e := newTestEngine(session)

	report := e.Run(context.Background(), FillRequest{FormURL: "https://example.com/form"})

	if report.Status != domain.RunStatusFailed {
		t.Fatalf("status = %v, want failed", report.Status)
	}
	if report.ErrorMessage == "" || report.QuestionsDetected != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestRunUsesFallbackSelectors(t *testing.T) {
	session := &fakeSession{
		pages:     [][]*fakeContainer{{textQuestion("Full Name")}},
		hideFirst: true,
	}
	e := newTestEngine(session)

	report := e.Run(context.Background(), FillRequest{FormURL: "https://example.com/form", Profile: engineProfile})

	if report.Status != domain.RunStatusCompleted {
		t.Fatalf("status = %v, error = %q", report.Status, report.ErrorMessage)
	}
	if report.QuestionsDetected != 1 {
		t.Errorf("detected = %d, want 1", report.QuestionsDetected)
	}
}

func TestRunTraversesMultiplePages(t *testing.T) {
	page1 := []*fakeContainer{textQuestion("Full Name")}
	page2 := []*fakeContainer{textQuestion("Email Address")}
	session := &fakeSession{pages: [][]*fakeContainer{page1, page2}}
	e := newTestEngine(session)

	report := e.Run(context.Background(), FillRequest{FormURL: "https://example.com/form", Profile: engineProfile})

	if report.Status != domain.RunStatusCompleted {
		t.Fatalf("status = %v", report.Status)
	}
	if report.QuestionsDetected != 2 {
		t.Errorf("detected = %d, want 2", report.QuestionsDetected)
	}
}

func TestRunTerminatesAtPageCap(t *testing.T) {
	// The next control is always present, so the run must stop at the page
	// cap instead of looping forever. Auto-submit was requested but no submit
	// control exists; that is logged, not fatal.
	session := &fakeSession{
		pages:      [][]*fakeContainer{{textQuestion("Full Name")}},
		alwaysNext: true,
	}
	e := newTestEngine(session)

	report := e.Run(context.Background(), FillRequest{
		FormURL:    "https://example.com/form",
		AutoSubmit: true,
		Profile:    engineProfile,
	})

	if report.Status != domain.RunStatusCompleted {
		t.Fatalf("status = %v", report.Status)
	}
	// First page plus one re-discovery per allowed advance.
	wantDetected := 1 + DefaultConfig().PageCap
	if report.QuestionsDetected != wantDetected {
		t.Errorf("detected = %d, want %d", report.QuestionsDetected, wantDetected)
	}
	if report.AutoSubmitted {
		t.Error("auto submitted must stay false without a submit control")
	}

	last := report.FillLog[len(report.FillLog)-1]
	if last.Source != domain.SourceSystem || !domain.IsErrorStatus(last.Status) {
		t.Errorf("missing submit control should be logged, got %+v", last)
	}
}

func TestRunAutoSubmits(t *testing.T) {
	session := &fakeSession{
		pages:     [][]*fakeContainer{{textQuestion("Full Name")}},
		hasSubmit: true,
	}
	e := newTestEngine(session)

	report := e.Run(context.Background(), FillRequest{
		FormURL:    "https://example.com/form",
		AutoSubmit: true,
		Profile:    engineProfile,
	})

	if !report.AutoSubmitted || !session.submitted {
		t.Error("form should have been submitted")
	}
}

func TestRunSkipsUnknownAndTinyQuestions(t *testing.T) {
	unknown := &fakeContainer{heading: "Attachments", kind: domain.FieldTypeUnknown}
	tiny := textQuestion("A")
	session := &fakeSession{
		pages: [][]*fakeContainer{{unknown, tiny, textQuestion("Full Name")}},
	}
	e := newTestEngine(session)

	report := e.Run(context.Background(), FillRequest{FormURL: "https://example.com/form", Profile: engineProfile})

	// The one-character heading is not counted as detected at all; the
	// unknown container is detected but skipped.
	if report.QuestionsDetected != 2 {
		t.Errorf("detected = %d, want 2", report.QuestionsDetected)
	}
	if report.QuestionsFilled != 1 {
		t.Errorf("filled = %d, want 1", report.QuestionsFilled)
	}
	if report.FillLog[0].Status != domain.StatusSkipped || report.FillLog[0].Source != domain.SourceNone {
		t.Errorf("unknown entry = %+v", report.FillLog[0])
	}
}

func TestRunContinuesPastBrokenQuestion(t *testing.T) {
	broken := textQuestion("Full Name")
	broken.inputs[0].setErr = errors.New("element detached")
	session := &fakeSession{
		pages: [][]*fakeContainer{{broken, textQuestion("Email Address")}},
	}
	e := newTestEngine(session)

	report := e.Run(context.Background(), FillRequest{FormURL: "https://example.com/form", Profile: engineProfile})

	if report.Status != domain.RunStatusCompleted {
		t.Fatalf("status = %v", report.Status)
	}
	if report.QuestionsDetected != 2 || report.QuestionsFilled != 1 {
		t.Errorf("detected/filled = %d/%d, want 2/1", report.QuestionsDetected, report.QuestionsFilled)
	}
	if !domain.IsErrorStatus(report.FillLog[0].Status) {
		t.Errorf("first entry = %+v, want error status", report.FillLog[0])
	}
	if report.QuestionsFilled > report.QuestionsDetected {
		t.Error("filled must never exceed detected")
	}
}

func TestRunFailsWhenSessionCannotStart(t *testing.T) {
	res := resolver.New(matcher.NewKeywordMatcher(matcher.DefaultThreshold), stubGenerator{answer: "x"}, zap.NewNop())
	e := New(&fakeDriver{sessionErr: fmt.Errorf("browser crashed")}, res, DefaultConfig(), zap.NewNop())

	report := e.Run(context.Background(), FillRequest{FormURL: "https://example.com/form"})

	if report.Status != domain.RunStatusFailed || report.ErrorMessage == "" {
		t.Errorf("report = %+v", report)
	}
}

type fakeScreenshotStore struct {
	lastKey string
}

func (s *fakeScreenshotStore) UploadScreenshot(_ context.Context, key string, _ []byte) (string, error) {
	s.lastKey = key
	return "minio://formpilot/" + key, nil
}

func TestRunCapturesScreenshot(t *testing.T) {
	session := &fakeSession{pages: [][]*fakeContainer{{textQuestion("Full Name")}}}
	store := &fakeScreenshotStore{}

	res := resolver.New(matcher.NewKeywordMatcher(matcher.DefaultThreshold), stubGenerator{answer: "x"}, zap.NewNop())
	cfg := DefaultConfig()
	cfg.SettleDelay = 0
	cfg.StepDelay = 0
	cfg.CaptureScreenshot = true
	session.cfg = cfg.Selectors
	e := New(&fakeDriver{session: session}, res, cfg, zap.NewNop(), WithScreenshotStore(store))

	report := e.Run(context.Background(), FillRequest{
		RunID:   "run-123",
		FormURL: "https://example.com/form",
		Profile: engineProfile,
	})

	if report.ScreenshotURI != "minio://formpilot/runs/run-123.jpg" {
		t.Errorf("screenshot uri = %q", report.ScreenshotURI)
	}
}
