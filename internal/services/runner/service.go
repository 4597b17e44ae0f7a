package runner

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/formpilot/formpilot/internal/domain"
	"github.com/formpilot/formpilot/internal/engine"
	"github.com/formpilot/formpilot/internal/observability"
)

// ProfileStore loads the acting user's profile.
type ProfileStore interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.UserProfile, error)
}

// MappingStore provides the learned snapshot and persists what a run learned.
type MappingStore interface {
	Snapshot(ctx context.Context, userID uuid.UUID) (domain.LearnedSnapshot, error)
	UpsertBatch(ctx context.Context, userID uuid.UUID, mappings []domain.NewMapping) error
	TouchUsed(ctx context.Context, userID uuid.UUID, question string) error
}

// RunStore persists fill run records.
type RunStore interface {
	Create(ctx context.Context, run *domain.FillRun) error
	Update(ctx context.Context, run *domain.FillRun) error
}

// Cache is the optional Redis layer: learned snapshots plus run status
// announcements for the polling API.
type Cache interface {
	GetSnapshot(ctx context.Context, userID uuid.UUID) (domain.LearnedSnapshot, error)
	SetSnapshot(ctx context.Context, userID uuid.UUID, snapshot domain.LearnedSnapshot) error
	InvalidateSnapshot(ctx context.Context, userID uuid.UUID) error
	SetRunStatus(ctx context.Context, userID, id uuid.UUID, status domain.RunStatus) error
}

// FillEngine executes one browser fill run.
type FillEngine interface {
	Run(ctx context.Context, req engine.FillRequest) *domain.RunReport
}

// Options configure the service.
type Options struct {
	MaxConcurrentRuns int
	EnableLearning    bool
	RunTimeout        time.Duration
}

// Service starts fill runs asynchronously and persists their outcome.
type Service struct {
	engine   FillEngine
	profiles ProfileStore
	mappings MappingStore
	runs     RunStore
	cache    Cache
	metrics  *observability.Metrics
	logger   *zap.Logger
	opts     Options

	// Buffered channel used as a concurrency slot pool.
	slots chan struct{}
}

// New creates a run service.
func New(
	eng FillEngine,
	profiles ProfileStore,
	mappings MappingStore,
	runs RunStore,
	cache Cache,
	metrics *observability.Metrics,
	logger *zap.Logger,
	opts Options,
) *Service {
	if opts.MaxConcurrentRuns <= 0 {
		opts.MaxConcurrentRuns = 3
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 10 * time.Minute
	}
	return &Service{
		engine:   eng,
		profiles: profiles,
		mappings: mappings,
		runs:     runs,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
		opts:     opts,
		slots:    make(chan struct{}, opts.MaxConcurrentRuns),
	}
}

// Start creates a pending run and executes it in the background. It returns
// immediately; callers poll the run record for progress. Returns a rate limit
// error when all concurrency slots are taken.
func (s *Service) Start(ctx context.Context, userID uuid.UUID, formURL string, autoSubmit bool, triggeredBy string) (*domain.FillRun, error) {
	if formURL == "" {
		return nil, domain.ErrValidation("form_url is required")
	}

	// Profile must exist before a run is accepted.
	profile, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	run := domain.NewFillRun(userID, formURL, autoSubmit, triggeredBy)
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, err
	}
	s.announceStatus(ctx, run)

	select {
	case s.slots <- struct{}{}:
	default:
		run.Fail("too many concurrent fill runs")
		if uerr := s.runs.Update(ctx, run); uerr != nil {
			s.logger.Error("Failed to persist rejected run", zap.Error(uerr))
		}
		s.announceStatus(ctx, run)
		return nil, domain.ErrRateLimited().
			WithMetadata("max_concurrent_runs", s.opts.MaxConcurrentRuns)
	}

	go func() {
		defer func() { <-s.slots }()
		s.execute(run, profile)
	}()

	return run, nil
}

// Execute runs synchronously. Used by the CLI where the caller wants to block
// until the report is ready.
func (s *Service) Execute(ctx context.Context, run *domain.FillRun, profile *domain.UserProfile) *domain.RunReport {
	start := time.Now()
	if s.metrics != nil {
		s.metrics.RunsActive.Inc()
		defer s.metrics.RunsActive.Dec()
	}

	run.Start()
	if err := s.runs.Update(ctx, run); err != nil {
		s.logger.Error("Failed to mark run as running", zap.Error(err))
	}
	s.announceStatus(ctx, run)

	snapshot := s.loadSnapshot(ctx, run.UserID)

	report := s.engine.Run(ctx, engine.FillRequest{
		RunID:      run.ID.String(),
		FormURL:    run.FormURL,
		AutoSubmit: run.AutoSubmit,
		Profile:    profile.Profile,
		Learned:    snapshot,
	})

	run.Finish(report)
	if err := s.runs.Update(ctx, run); err != nil {
		s.logger.Error("Failed to persist run report", zap.Error(err))
	}
	s.announceStatus(ctx, run)

	if report.Status == domain.RunStatusCompleted {
		s.learn(ctx, run.UserID, report)
	}

	s.record(run, report, time.Since(start))
	return report
}

func (s *Service) execute(run *domain.FillRun, profile *domain.UserProfile) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RunTimeout)
	defer cancel()

	s.Execute(ctx, run, profile)
}

// announceStatus mirrors the run's status into the cache so the status
// endpoint can answer polls without a database read.
func (s *Service) announceStatus(ctx context.Context, run *domain.FillRun) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetRunStatus(ctx, run.UserID, run.ID, run.Status); err != nil {
		s.logger.Debug("Failed to cache run status", zap.Error(err))
	}
}

// loadSnapshot returns the user's learned mappings, preferring the cache.
// A missing or unreachable cache degrades to a database read; a database
// failure degrades to an empty snapshot so the run can still proceed.
func (s *Service) loadSnapshot(ctx context.Context, userID uuid.UUID) domain.LearnedSnapshot {
	if s.cache != nil {
		if snapshot, err := s.cache.GetSnapshot(ctx, userID); err == nil && snapshot != nil {
			return snapshot
		}
	}

	snapshot, err := s.mappings.Snapshot(ctx, userID)
	if err != nil {
		s.logger.Warn("Failed to load learned mappings, continuing without them",
			zap.String("user_id", userID.String()), zap.Error(err))
		return domain.LearnedSnapshot{}
	}

	if s.cache != nil {
		if err := s.cache.SetSnapshot(ctx, userID, snapshot); err != nil {
			s.logger.Debug("Failed to cache snapshot", zap.Error(err))
		}
	}
	return snapshot
}

// learn persists the run's proposed mappings and bumps usage counters for
// learned hits, then invalidates the cached snapshot.
func (s *Service) learn(ctx context.Context, userID uuid.UUID, report *domain.RunReport) {
	if !s.opts.EnableLearning {
		return
	}

	if len(report.NewMappings) > 0 {
		if err := s.mappings.UpsertBatch(ctx, userID, report.NewMappings); err != nil {
			s.logger.Error("Failed to persist learned mappings", zap.Error(err))
		}
	}

	for _, entry := range report.FillLog {
		if entry.Source != domain.SourceLearned {
			continue
		}
		if err := s.mappings.TouchUsed(ctx, userID, entry.Question); err != nil {
			s.logger.Debug("Failed to bump mapping usage", zap.Error(err))
		}
	}

	if s.cache != nil {
		if err := s.cache.InvalidateSnapshot(ctx, userID); err != nil {
			s.logger.Debug("Failed to invalidate snapshot cache", zap.Error(err))
		}
	}
}

func (s *Service) record(run *domain.FillRun, report *domain.RunReport, elapsed time.Duration) {
	s.logger.Info("Fill run finished",
		zap.String("run_id", run.ID.String()),
		zap.String("status", string(report.Status)),
		zap.Int("questions_detected", report.QuestionsDetected),
		zap.Int("questions_filled", report.QuestionsFilled),
		zap.Int("ai_answers_used", report.AIAnswersUsed),
		zap.Bool("auto_submitted", report.AutoSubmitted),
		zap.Duration("elapsed", elapsed),
	)

	if s.metrics == nil {
		return
	}
	s.metrics.RecordFillRun(string(report.Status), run.TriggeredBy, elapsed)
	s.metrics.RecordQuestions(report.QuestionsDetected, report.QuestionsFilled)
	s.metrics.RecordPagesTraversed(string(report.Status), report.PagesTraversed)
	for _, entry := range report.FillLog {
		if entry.Status == domain.StatusFilled {
			s.metrics.RecordAnswerSource(string(entry.Source))
		}
	}
}
