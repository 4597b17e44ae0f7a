package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/formpilot/formpilot/internal/domain"
	"github.com/formpilot/formpilot/internal/engine"
)

type fakeProfileStore struct {
	profile *domain.UserProfile
	err     error
}

func (s *fakeProfileStore) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.UserProfile, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.profile, nil
}

type fakeMappingStore struct {
	mu       sync.Mutex
	snapshot domain.LearnedSnapshot
	upserted []domain.NewMapping
	touched  []string
}

func (s *fakeMappingStore) Snapshot(ctx context.Context, userID uuid.UUID) (domain.LearnedSnapshot, error) {
	return s.snapshot, nil
}

func (s *fakeMappingStore) UpsertBatch(ctx context.Context, userID uuid.UUID, mappings []domain.NewMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserted = append(s.upserted, mappings...)
	return nil
}

func (s *fakeMappingStore) TouchUsed(ctx context.Context, userID uuid.UUID, question string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = append(s.touched, question)
	return nil
}

type fakeRunStore struct {
	mu      sync.Mutex
	created []*domain.FillRun
	updates []domain.RunStatus
	done    chan struct{}
}

func (s *fakeRunStore) Create(ctx context.Context, run *domain.FillRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, run)
	return nil
}

func (s *fakeRunStore) Update(ctx context.Context, run *domain.FillRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, run.Status)
	if run.IsTerminal() && s.done != nil {
		close(s.done)
		s.done = nil
	}
	return nil
}

type fakeEngine struct {
	mu       sync.Mutex
	requests []engine.FillRequest
	report   *domain.RunReport
	block    chan struct{}
}

func (e *fakeEngine) Run(ctx context.Context, req engine.FillRequest) *domain.RunReport {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	e.mu.Unlock()
	if e.block != nil {
		<-e.block
	}
	return e.report
}

type fakeCache struct {
	mu       sync.Mutex
	snapshot domain.LearnedSnapshot
	statuses []domain.RunStatus
	done     chan struct{}
}

func (c *fakeCache) GetSnapshot(ctx context.Context, userID uuid.UUID) (domain.LearnedSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot, nil
}

func (c *fakeCache) SetSnapshot(ctx context.Context, userID uuid.UUID, snapshot domain.LearnedSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = snapshot
	return nil
}

func (c *fakeCache) InvalidateSnapshot(ctx context.Context, userID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = nil
	return nil
}

func (c *fakeCache) SetRunStatus(ctx context.Context, userID, id uuid.UUID, status domain.RunStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses = append(c.statuses, status)
	terminal := status != domain.RunStatusPending && status != domain.RunStatusRunning
	if terminal && c.done != nil {
		close(c.done)
		c.done = nil
	}
	return nil
}

func completedReport() *domain.RunReport {
	report := domain.NewRunReport()
	report.Status = domain.RunStatusCompleted
	report.FormTitle = "Feedback"
	report.QuestionsDetected = 3
	report.QuestionsFilled = 3
	report.FillLog = []domain.FillLogEntry{
		{Question: "Full Name", Source: domain.SourceProfile, Status: domain.StatusFilled},
		{Question: "Department", Source: domain.SourceLearned, Status: domain.StatusFilled},
		{Question: "Why join?", Source: domain.SourceAIGenerated, Status: domain.StatusFilled},
	}
	report.NewMappings = []domain.NewMapping{
		{Question: "Full Name", Field: domain.FieldFullName, Value: "Asha Rao", Confidence: 95},
	}
	return report
}

func testService(eng *fakeEngine, mappings *fakeMappingStore, runs *fakeRunStore, opts Options) *Service {
	profiles := &fakeProfileStore{
		profile: domain.NewUserProfile(uuid.New(), domain.Profile{FullName: "Asha Rao"}),
	}
	return New(eng, profiles, mappings, runs, nil, nil, zap.NewNop(), opts)
}

func waitDone(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish in time")
	}
}

func TestStartExecutesRunAndLearns(t *testing.T) {
	done := make(chan struct{})
	eng := &fakeEngine{report: completedReport()}
	mappings := &fakeMappingStore{snapshot: domain.LearnedSnapshot{"department": "CSE"}}
	runs := &fakeRunStore{done: done}
	svc := testService(eng, mappings, runs, Options{EnableLearning: true})

	run, err := svc.Start(context.Background(), uuid.New(), "https://forms.example.com/f/1", false, "api")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusPending, run.Status)

	waitDone(t, done)

	mappings.mu.Lock()
	defer mappings.mu.Unlock()
	require.Len(t, eng.requests, 1)
	assert.Equal(t, domain.LearnedSnapshot{"department": "CSE"}, eng.requests[0].Learned)
	require.Len(t, mappings.upserted, 1)
	assert.Equal(t, domain.FieldFullName, mappings.upserted[0].Field)
	assert.Equal(t, []string{"Department"}, mappings.touched)
}

func TestStartAnnouncesStatusTransitions(t *testing.T) {
	done := make(chan struct{})
	eng := &fakeEngine{report: completedReport()}
	runs := &fakeRunStore{}
	cache := &fakeCache{done: done}
	profiles := &fakeProfileStore{
		profile: domain.NewUserProfile(uuid.New(), domain.Profile{FullName: "Asha Rao"}),
	}
	svc := New(eng, profiles, &fakeMappingStore{}, runs, cache, nil, zap.NewNop(), Options{})

	_, err := svc.Start(context.Background(), uuid.New(), "https://forms.example.com/f/1", false, "api")
	require.NoError(t, err)

	waitDone(t, done)

	cache.mu.Lock()
	defer cache.mu.Unlock()
	assert.Equal(t, []domain.RunStatus{
		domain.RunStatusPending,
		domain.RunStatusRunning,
		domain.RunStatusCompleted,
	}, cache.statuses)
}

func TestStartRejectsMissingFormURL(t *testing.T) {
	svc := testService(&fakeEngine{report: completedReport()}, &fakeMappingStore{}, &fakeRunStore{}, Options{})

	_, err := svc.Start(context.Background(), uuid.New(), "", false, "api")
	require.Error(t, err)
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, domain.ErrCodeValidation, appErr.Code)
}

func TestStartRejectsWhenSlotsExhausted(t *testing.T) {
	block := make(chan struct{})
	eng := &fakeEngine{report: completedReport(), block: block}
	runs := &fakeRunStore{}
	svc := testService(eng, &fakeMappingStore{}, runs, Options{MaxConcurrentRuns: 1})

	_, err := svc.Start(context.Background(), uuid.New(), "https://forms.example.com/f/1", false, "api")
	require.NoError(t, err)

	_, err = svc.Start(context.Background(), uuid.New(), "https://forms.example.com/f/2", false, "api")
	require.Error(t, err)
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, domain.ErrCodeRateLimited, appErr.Code)

	close(block)
}

func TestLearningDisabledSkipsPersistence(t *testing.T) {
	done := make(chan struct{})
	eng := &fakeEngine{report: completedReport()}
	mappings := &fakeMappingStore{}
	runs := &fakeRunStore{done: done}
	svc := testService(eng, mappings, runs, Options{EnableLearning: false})

	_, err := svc.Start(context.Background(), uuid.New(), "https://forms.example.com/f/1", false, "api")
	require.NoError(t, err)

	waitDone(t, done)

	mappings.mu.Lock()
	defer mappings.mu.Unlock()
	assert.Empty(t, mappings.upserted)
	assert.Empty(t, mappings.touched)
}

func TestFailedRunDoesNotLearn(t *testing.T) {
	report := domain.NewRunReport()
	report.Status = domain.RunStatusFailed
	report.ErrorMessage = "could not open form"
	report.NewMappings = []domain.NewMapping{
		{Question: "Full Name", Field: domain.FieldFullName, Value: "Asha Rao", Confidence: 95},
	}

	done := make(chan struct{})
	eng := &fakeEngine{report: report}
	mappings := &fakeMappingStore{}
	runs := &fakeRunStore{done: done}
	svc := testService(eng, mappings, runs, Options{EnableLearning: true})

	_, err := svc.Start(context.Background(), uuid.New(), "https://forms.example.com/f/1", false, "api")
	require.NoError(t, err)

	waitDone(t, done)

	mappings.mu.Lock()
	defer mappings.mu.Unlock()
	assert.Empty(t, mappings.upserted)

	runs.mu.Lock()
	defer runs.mu.Unlock()
	assert.Equal(t, domain.RunStatusFailed, runs.updates[len(runs.updates)-1])
}
