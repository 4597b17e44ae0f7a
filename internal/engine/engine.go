package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/formpilot/formpilot/internal/domain"
	"github.com/formpilot/formpilot/internal/resolver"
)

// AnswerResolver produces the answer for one question. *resolver.Resolver is
// the production implementation.
type AnswerResolver interface {
	Resolve(ctx context.Context, question string, learned domain.LearnedSnapshot, profile domain.Profile) resolver.Resolution
}

// ScreenshotStore uploads a final page screenshot and returns its URI.
type ScreenshotStore interface {
	UploadScreenshot(ctx context.Context, key string, data []byte) (string, error)
}

// FillRequest is one fill run's input. Profile and Learned are read-only
// snapshots for the duration of the run.
type FillRequest struct {
	RunID      string
	FormURL    string
	AutoSubmit bool
	Profile    domain.Profile
	Learned    domain.LearnedSnapshot
}

// Engine drives one form fill: open the form, discover and classify question
// containers, resolve an answer for each, apply it with the type's fill
// strategy, advance through pages up to the cap, and optionally submit.
type Engine struct {
	driver      Driver
	resolver    AnswerResolver
	config      Config
	screenshots ScreenshotStore
	logger      *zap.Logger
	now         func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithScreenshotStore enables final-page screenshot capture.
func WithScreenshotStore(store ScreenshotStore) Option {
	return func(e *Engine) { e.screenshots = store }
}

// WithClock overrides the engine's clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine. The resolver is injected per engine lifetime rather
// than shared through package state, so tests can swap it freely.
func New(driver Driver, res AnswerResolver, config Config, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		driver:   driver,
		resolver: res,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes one fill run and always returns a finished report. Fatal
// failures (navigation, no questions on the first page) yield a failed report
// with ErrorMessage set; every per-question failure is absorbed into the fill
// log and the run still completes. The browser session is released on every
// exit path.
func (e *Engine) Run(ctx context.Context, req FillRequest) *domain.RunReport {
	report := domain.NewRunReport()
	fill := newFiller(e.config.Selectors, e.now)

	session, err := e.driver.NewSession(ctx)
	if err != nil {
		return e.fail(report, fmt.Sprintf("could not start browser session: %v", err))
	}
	defer session.Close()

	e.logger.Info("opening form", zap.String("url", req.FormURL))
	if err := session.Navigate(req.FormURL, e.config.NavigationTimeout); err != nil {
		return e.fail(report, fmt.Sprintf("could not open form: %v", err))
	}
	session.Wait(e.config.SettleDelay)

	report.FormTitle = e.formTitle(session)

	containers, count := e.discover(session)
	if count == 0 {
		return e.fail(report, "No question fields detected on this form.")
	}
	e.logger.Info("questions discovered",
		zap.String("form_title", report.FormTitle),
		zap.Int("containers", count),
	)

	e.fillPage(ctx, session, fill, containers, count, req, report)
	report.PagesTraversed = 1

	// Page advances consume a bounded budget so infinite-pagination forms
	// still terminate. Hitting the cap ends traversal without failing.
	for advance := 0; advance < e.config.PageCap; advance++ {
		next := session.Locate(e.config.Selectors.NextButton)
		n, err := next.Count()
		if err != nil || n == 0 {
			break
		}
		if err := next.First().Click(); err != nil {
			e.logger.Warn("page advance failed", zap.Error(err))
			break
		}
		session.Wait(e.config.SettleDelay)

		containers, count := e.discover(session)
		e.logger.Info("advanced to next page",
			zap.Int("page", advance+2),
			zap.Int("containers", count),
		)
		report.PagesTraversed++
		e.fillPage(ctx, session, fill, containers, count, req, report)
	}

	if req.AutoSubmit {
		e.submit(session, fill, report)
	}

	e.captureScreenshot(ctx, session, req, report)

	report.Status = domain.RunStatusCompleted
	e.logger.Info("fill run completed",
		zap.Int("detected", report.QuestionsDetected),
		zap.Int("filled", report.QuestionsFilled),
		zap.Int("ai_answers", report.AIAnswersUsed),
		zap.Bool("auto_submitted", report.AutoSubmitted),
	)
	return report
}

// discover locates question containers with the primary selector set, then
// the fallback set. Zero containers is fatal only on the first page; on later
// pages it means nothing more to fill.
func (e *Engine) discover(session Session) (Element, int) {
	containers := session.Locate(e.config.Selectors.QuestionContainers)
	count, err := containers.Count()
	if err == nil && count > 0 {
		return containers, count
	}

	containers = session.Locate(e.config.Selectors.QuestionContainersFallback)
	if count, err = containers.Count(); err == nil && count > 0 {
		return containers, count
	}
	return containers, 0
}

// fillPage processes every container on the current page in order. Each
// detected container yields exactly one log entry; individual failures never
// stop the loop.
func (e *Engine) fillPage(ctx context.Context, session Session, fill filler, containers Element, count int, req FillRequest, report *domain.RunReport) {
	cls := classifier{selectors: e.config.Selectors}

	for i := 0; i < count; i++ {
		container := containers.Nth(i)

		question, fieldType, ok := cls.classify(container)
		if !ok {
			continue
		}
		report.QuestionsDetected++

		var entry domain.FillLogEntry
		if fieldType == domain.FieldTypeUnknown {
			entry = fill.entry(question, domain.FieldTypeUnknown, "", domain.SourceNone, domain.StatusSkipped)
		} else {
			res := e.resolver.Resolve(ctx, question, req.Learned, req.Profile)
			if res.Mapping != nil {
				report.NewMappings = append(report.NewMappings, *res.Mapping)
			}
			entry = fill.fill(container, question, fieldType, res.Answer)
		}

		report.FillLog = append(report.FillLog, entry)
		if entry.Status == domain.StatusFilled {
			report.QuestionsFilled++
		}
		if entry.Source == domain.SourceAIGenerated {
			report.AIAnswersUsed++
		}
		if domain.IsErrorStatus(entry.Status) {
			e.logger.Warn("question fill failed",
				zap.String("question", question),
				zap.String("status", entry.Status),
			)
		}

		session.Wait(e.config.StepDelay)
	}
}

// submit activates the submit control when present. A missing control is
// recorded in the log and leaves AutoSubmitted false; it never fails the run.
func (e *Engine) submit(session Session, fill filler, report *domain.RunReport) {
	button := session.Locate(e.config.Selectors.SubmitButton)
	count, err := button.Count()
	if err != nil || count == 0 {
		report.FillLog = append(report.FillLog, fill.entry(
			"Submit", domain.FieldTypeUnknown, "", domain.SourceSystem,
			domain.ErrorStatus("submit control not found"),
		))
		return
	}
	if err := button.First().Click(); err != nil {
		report.FillLog = append(report.FillLog, fill.entry(
			"Submit", domain.FieldTypeUnknown, "", domain.SourceSystem,
			domain.ErrorStatus(err.Error()),
		))
		return
	}
	session.Wait(e.config.SettleDelay)
	report.AutoSubmitted = true
	e.logger.Info("form submitted")
}

func (e *Engine) formTitle(session Session) string {
	title := session.Locate(e.config.Selectors.FormTitle)
	if count, err := title.Count(); err == nil && count > 0 {
		if text, err := title.First().Text(); err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text)
		}
	}
	return "Untitled Form"
}

func (e *Engine) captureScreenshot(ctx context.Context, session Session, req FillRequest, report *domain.RunReport) {
	if !e.config.CaptureScreenshot || e.screenshots == nil {
		return
	}
	data, err := session.Screenshot()
	if err != nil {
		e.logger.Warn("screenshot capture failed", zap.Error(err))
		return
	}
	key := fmt.Sprintf("runs/%s.jpg", req.RunID)
	uri, err := e.screenshots.UploadScreenshot(ctx, key, data)
	if err != nil {
		e.logger.Warn("screenshot upload failed", zap.Error(err))
		return
	}
	report.ScreenshotURI = uri
}

func (e *Engine) fail(report *domain.RunReport, message string) *domain.RunReport {
	report.Status = domain.RunStatusFailed
	report.ErrorMessage = message
	e.logger.Error("fill run failed", zap.String("error", message))
	return report
}
