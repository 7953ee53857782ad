package runner

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"lexlab/internal/catalog"
	"lexlab/internal/models"
	"lexlab/internal/recorder"
	"lexlab/internal/schedule"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLedger struct {
	mu         sync.Mutex
	cursors        []int
	warmupDone     bool
	completedCalls int
	cursorErr      error
}

func (f *fakeLedger) UpdateCursor(ctx context.Context, participantID string, index int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cursorErr != nil {
		return f.cursorErr
	}
	f.cursors = append(f.cursors, index)
	return nil
}

func (f *fakeLedger) MarkWarmupDone(ctx context.Context, participantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.warmupDone = true
	return nil
}

func (f *fakeLedger) MarkCompleted(ctx context.Context, participantID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completedCalls++
	return nil
}

func (f *fakeLedger) lastCursor() (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.cursors) == 0 {
		return 0, false
	}
	return f.cursors[len(f.cursors)-1], true
}

type fakeRecorder struct {
	mu        sync.Mutex
	requests  []recorder.Request
	recorded  map[string]bool
	recordErr error
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{recorded: make(map[string]bool)}
}

func key(index int, phase catalog.Phase) string {
	return fmt.Sprintf("%s:%d", phase, index)
}

func (f *fakeRecorder) Record(ctx context.Context, req recorder.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	f.requests = append(f.requests, req)
	f.recorded[key(req.View.SequenceIndex, req.View.Phase)] = true
	return nil
}

func (f *fakeRecorder) HasRecorded(index int, phase catalog.Phase) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recorded[key(index, phase)]
}

func (f *fakeRecorder) Log() []models.Response {
	return nil
}

func (f *fakeRecorder) all() []recorder.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recorder.Request, len(f.requests))
	copy(out, f.requests)
	return out
}

var recordGuessAndReview = []catalog.Phase{catalog.PhaseGuess, catalog.PhaseReview}

func testSchedule(t *testing.T) *schedule.Schedule {
	t.Helper()
	cat, err := catalog.Load("../../content/words.yaml", "../../content/warmup.yaml")
	require.NoError(t, err)
	gen := schedule.NewGenerator(cat, schedule.Timing{GuessSeconds: 20, FeedbackSeconds: 5, ReviewSeconds: 15})
	s, err := gen.ForVariant(catalog.VariantTest1)
	require.NoError(t, err)
	return s
}

func newTestRunner(t *testing.T, events Events) (*Runner, *fakeLedger, *fakeRecorder) {
	t.Helper()
	ledger := &fakeLedger{}
	rec := newFakeRecorder()
	r := New(zap.NewNop(), testSchedule(t), ledger, rec, recordGuessAndReview, "p-1", events)
	t.Cleanup(r.Close)
	return r, ledger, rec
}

func TestSubmitAnswerRecordsAndAdvances(t *testing.T) {
	r, ledger, rec := newTestRunner(t, Events{})
	ctx := context.Background()
	start := r.sched.WarmupCount

	require.NoError(t, r.LoadAt(ctx, start))
	snap := r.Snapshot()
	assert.Equal(t, StatePresenting, snap.State)
	assert.Equal(t, catalog.PhaseGuess, snap.View.Phase)

	require.NoError(t, r.SubmitAnswer(ctx, start, catalog.PhaseGuess, "a guess"))

	reqs := rec.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, start, reqs[0].View.SequenceIndex)
	assert.False(t, reqs[0].IsTimedOut)
	require.NotNil(t, reqs[0].AnswerText)
	assert.Equal(t, "a guess", *reqs[0].AnswerText)

	snap = r.Snapshot()
	assert.Equal(t, StateRevealing, snap.State)
	assert.Equal(t, catalog.PhaseFeedback, snap.View.Phase)
	assert.Equal(t, start+1, snap.View.SequenceIndex)

	cursor, ok := ledger.lastCursor()
	require.True(t, ok)
	assert.Equal(t, start+1, cursor)
}

func TestSubmitOutsideGuessIsIgnored(t *testing.T) {
	r, _, rec := newTestRunner(t, Events{})
	ctx := context.Background()
	start := r.sched.WarmupCount

	require.NoError(t, r.LoadAt(ctx, start))
	require.NoError(t, r.SubmitAnswer(ctx, start, catalog.PhaseGuess, "first"))

	// Now revealing feedback; a stray submit aimed at the live feedback phase
	// must not record or move the cursor.
	before := r.Snapshot()
	require.NoError(t, r.SubmitAnswer(ctx, start+1, catalog.PhaseFeedback, "second"))
	after := r.Snapshot()

	assert.Equal(t, before.View.SequenceIndex, after.View.SequenceIndex)
	assert.Equal(t, before.State, after.State)
	assert.Len(t, rec.all(), 1)
}

func TestFeedbackExpiryRecordsNothing(t *testing.T) {
	r, _, rec := newTestRunner(t, Events{})
	ctx := context.Background()
	start := r.sched.WarmupCount

	require.NoError(t, r.LoadAt(ctx, start))
	require.NoError(t, r.SubmitAnswer(ctx, start, catalog.PhaseGuess, "answer"))
	require.Len(t, rec.all(), 1)

	require.NoError(t, r.CountdownExpired(ctx, start+1, catalog.PhaseFeedback, nil))

	// Feedback completions are observation-only; the runner just moves on to
	// the next guess.
	assert.Len(t, rec.all(), 1)
	snap := r.Snapshot()
	assert.Equal(t, StatePresenting, snap.State)
	assert.Equal(t, start+2, snap.View.SequenceIndex)
}

func TestCountdownExpiredRecordsTimeoutWithPartialAnswer(t *testing.T) {
	r, _, rec := newTestRunner(t, Events{})
	ctx := context.Background()
	start := r.sched.WarmupCount

	require.NoError(t, r.LoadAt(ctx, start))
	partial := "half an ans"
	require.NoError(t, r.CountdownExpired(ctx, start, catalog.PhaseGuess, &partial))

	reqs := rec.all()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].IsTimedOut)
	require.NotNil(t, reqs[0].AnswerText)
	assert.Equal(t, partial, *reqs[0].AnswerText)
}

func TestServerTimerEndsGuessOnce(t *testing.T) {
	advanced := make(chan int, 1024)
	r, _, rec := newTestRunner(t, Events{
		TrialAdvanced: func(index int) { advanced <- index },
	})
	r.tick = time.Millisecond
	ctx := context.Background()
	start := r.sched.WarmupCount

	require.NoError(t, r.LoadAt(ctx, start))

	select {
	case index := <-advanced:
		assert.Equal(t, start+1, index)
	case <-time.After(2 * time.Second):
		t.Fatal("timer never ended the guess phase")
	}

	reqs := rec.all()
	require.NotEmpty(t, reqs)
	assert.Equal(t, start, reqs[0].View.SequenceIndex)
	assert.True(t, reqs[0].IsTimedOut)
	// An expired guess with nothing typed records the empty answer.
	require.NotNil(t, reqs[0].AnswerText)
	assert.Equal(t, "", *reqs[0].AnswerText)

	// However many timers have fired since, the opening guess must have been
	// recorded exactly once.
	guessRecords := 0
	for _, req := range rec.all() {
		if req.View.SequenceIndex == start {
			guessRecords++
		}
	}
	assert.Equal(t, 1, guessRecords)
}

func TestSubmitAndExpiryRaceRecordsOneGuess(t *testing.T) {
	r, _, rec := newTestRunner(t, Events{})
	ctx := context.Background()
	start := r.sched.WarmupCount

	require.NoError(t, r.LoadAt(ctx, start))

	// Fire the submission and the expiry report for the same guess phase at
	// the same time; whichever loses must degrade to a no-op.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = r.SubmitAnswer(ctx, start, catalog.PhaseGuess, "typed in time")
	}()
	go func() {
		defer wg.Done()
		_ = r.CountdownExpired(ctx, start, catalog.PhaseGuess, nil)
	}()
	wg.Wait()

	guessRecords := 0
	for _, req := range rec.all() {
		if req.View.SequenceIndex == start && req.View.Phase == catalog.PhaseGuess {
			guessRecords++
		}
	}
	assert.Equal(t, 1, guessRecords)
}

func TestWarmupBoundarySignals(t *testing.T) {
	done := make(chan struct{}, 1)
	r, ledger, rec := newTestRunner(t, Events{
		WarmupCompleted: func() { done <- struct{}{} },
	})
	ctx := context.Background()
	last := r.sched.WarmupCount - 1 // final warm-up feedback entry

	require.NoError(t, r.LoadAt(ctx, last))
	require.NoError(t, r.CountdownExpired(ctx, last, catalog.PhaseFeedback, nil))

	select {
	case <-done:
	default:
		t.Fatal("warm-up completion event did not fire")
	}
	ledger.mu.Lock()
	assert.True(t, ledger.warmupDone)
	ledger.mu.Unlock()

	// Feedback is not recordable, so crossing the boundary writes nothing.
	assert.Empty(t, rec.all())
	snap := r.Snapshot()
	assert.False(t, snap.View.IsWarmup)
	assert.Equal(t, r.sched.WarmupCount, snap.View.SequenceIndex)
}

func TestLoadAtEndCompletes(t *testing.T) {
	completed := make(chan struct{}, 1)
	r, ledger, _ := newTestRunner(t, Events{
		ExperimentCompleted: func() { completed <- struct{}{} },
	})

	require.NoError(t, r.LoadAt(context.Background(), r.sched.Len()))

	select {
	case <-completed:
	default:
		t.Fatal("completion event did not fire")
	}
	snap := r.Snapshot()
	assert.True(t, snap.Completed)
	ledger.mu.Lock()
	assert.Equal(t, 1, ledger.completedCalls)
	ledger.mu.Unlock()
}

func TestStaleExpiryReportIsDropped(t *testing.T) {
	r, _, rec := newTestRunner(t, Events{})
	ctx := context.Background()
	start := r.sched.WarmupCount

	require.NoError(t, r.LoadAt(ctx, start))
	require.NoError(t, r.SubmitAnswer(ctx, start, catalog.PhaseGuess, "typed"))
	require.NoError(t, r.CountdownExpired(ctx, start+1, catalog.PhaseFeedback, nil))

	// Presenting the next guess now; the client's delayed report of the
	// feedback expiry it counted down for arrives only here.
	snap := r.Snapshot()
	require.Equal(t, StatePresenting, snap.State)
	require.Equal(t, start+2, snap.View.SequenceIndex)

	require.NoError(t, r.CountdownExpired(ctx, start+1, catalog.PhaseFeedback, nil))

	// The late report must not cut the fresh guess window short or fabricate
	// a timed-out record for it.
	after := r.Snapshot()
	assert.Equal(t, StatePresenting, after.State)
	assert.Equal(t, start+2, after.View.SequenceIndex)
	for _, req := range rec.all() {
		assert.NotEqual(t, start+2, req.View.SequenceIndex)
	}
	require.Len(t, rec.all(), 1)
	assert.False(t, rec.all()[0].IsTimedOut)
}

type nullStore struct{}

func (nullStore) InsertResponse(ctx context.Context, r *models.Response) error {
	return nil
}

func (nullStore) HasResponse(ctx context.Context, participantID string, sequenceIndex int, phase catalog.Phase) (bool, error) {
	return false, nil
}

func TestStartCompletedSessionKeepsCompletionTime(t *testing.T) {
	cat, err := catalog.Load("../../content/words.yaml", "../../content/warmup.yaml")
	require.NoError(t, err)
	gen := schedule.NewGenerator(cat, schedule.Timing{GuessSeconds: 20, FeedbackSeconds: 5, ReviewSeconds: 15})
	ledger := &fakeLedger{}
	m := NewManager(zap.NewNop(), gen, ledger, nullStore{}, recordGuessAndReview)
	defer m.CloseAll()

	done := time.Now().Add(-time.Hour)
	p := &models.Participant{
		ID:              "p-done",
		Code:            "003",
		AssignedVariant: string(catalog.VariantTest1),
		Status:          models.StatusCompleted,
		CompletedAt:     &done,
	}

	r, err := m.Start(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, r.Snapshot().Completed)

	// The ledger already closed this session; a revisit must not rewrite its
	// completion time.
	ledger.mu.Lock()
	assert.Equal(t, 0, ledger.completedCalls)
	ledger.mu.Unlock()
}

func TestPersistenceFailureKeepsLocalProgress(t *testing.T) {
	r, ledger, rec := newTestRunner(t, Events{})
	rec.recordErr = recorder.ErrPersistenceFailure
	ctx := context.Background()
	start := r.sched.WarmupCount

	require.NoError(t, r.LoadAt(ctx, start))
	require.NoError(t, r.SubmitAnswer(ctx, start, catalog.PhaseGuess, "lost answer"))

	// The participant still moves to feedback, but the durable cursor stays
	// behind the missing response so a resume replays the trial.
	snap := r.Snapshot()
	assert.Equal(t, start+1, snap.View.SequenceIndex)
	_, wrote := ledger.lastCursor()
	assert.False(t, wrote)
}

func TestResumeAtReviewEntry(t *testing.T) {
	r, _, _ := newTestRunner(t, Events{})

	reviewIndex := -1
	for i, d := range r.sched.Entries {
		if d.Phase == catalog.PhaseReview {
			reviewIndex = i
			break
		}
	}
	require.GreaterOrEqual(t, reviewIndex, 0)

	require.NoError(t, r.LoadAt(context.Background(), reviewIndex))
	snap := r.Snapshot()
	assert.Equal(t, StateSummarizing, snap.State)
	assert.Len(t, snap.View.Sentences, catalog.SentencesPerWord)
}

func TestCloseRejectsFurtherCalls(t *testing.T) {
	r, _, _ := newTestRunner(t, Events{})
	ctx := context.Background()
	require.NoError(t, r.LoadAt(ctx, 0))

	r.Close()

	assert.ErrorIs(t, r.SubmitAnswer(ctx, 0, catalog.PhaseGuess, "late"), ErrClosed)
	assert.ErrorIs(t, r.CountdownExpired(ctx, 0, catalog.PhaseGuess, nil), ErrClosed)
	assert.ErrorIs(t, r.LoadAt(ctx, 0), ErrClosed)
	assert.Nil(t, r.ResponseLog())
}
