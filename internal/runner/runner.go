package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"lexlab/internal/catalog"
	"lexlab/internal/models"
	"lexlab/internal/recorder"
	"lexlab/internal/schedule"

	"go.uber.org/zap"
)

// State is the runner's position within the active trial.
type State string

const (
	StatePresenting      State = "presenting"
	StateRevealing       State = "revealing"
	StateSummarizing     State = "summarizing"
	StateAwaitingAdvance State = "awaiting_advance"
)

// ErrClosed reports a call into a torn-down runner.
var ErrClosed = errors.New("runner closed")

// Ledger is the durable participant-progress collaborator.
type Ledger interface {
	UpdateCursor(ctx context.Context, participantID string, index int) error
	MarkWarmupDone(ctx context.Context, participantID string) error
	MarkCompleted(ctx context.Context, participantID string, at time.Time) error
}

// Recorder persists completed-phase responses with at-most-once semantics.
type Recorder interface {
	Record(ctx context.Context, req recorder.Request) error
	HasRecorded(index int, phase catalog.Phase) bool
	Log() []models.Response
}

// Events are the runner's notifications to the presentation layer. Any field
// may be nil. Callbacks run outside the runner's lock but on its goroutine,
// so they must not block.
type Events struct {
	PhaseChanged        func(view schedule.TrialView)
	TrialAdvanced       func(index int)
	WarmupCompleted     func()
	ExperimentCompleted func()
}

type phaseKey struct {
	index int
	phase catalog.Phase
}

// Runner drives one participant session through the trial schedule. It is the
// sole owner of the active countdown: every phase change cancels the armed
// timer before arming the next one, so at most one timer is ever live.
//
// A countdown firing and a user submission can race for the same phase; the
// ended set makes the first event win and turns the loser into a no-op.
type Runner struct {
	log           *zap.Logger
	sched         *schedule.Schedule
	ledger        Ledger
	rec           Recorder
	recordable    map[catalog.Phase]bool
	events        Events
	participantID string

	// tick scales descriptor durations into wall-clock time. One second in
	// production; tests shrink it to drive real timer fires quickly.
	tick time.Duration

	mu          sync.Mutex
	state       State
	index       int
	view        schedule.TrialView
	shownAt     time.Time
	timer       *time.Timer
	timerGen    uint64
	ended       map[phaseKey]struct{}
	cursorDirty bool
	completed   bool
	closed      bool
}

// New wires a runner for one participant session. recordable names the phases
// whose completion persists a response.
func New(log *zap.Logger, sched *schedule.Schedule, ledger Ledger, rec Recorder, recordable []catalog.Phase, participantID string, events Events) *Runner {
	set := make(map[catalog.Phase]bool, len(recordable))
	for _, p := range recordable {
		set[p] = true
	}
	return &Runner{
		log:           log,
		sched:         sched,
		ledger:        ledger,
		rec:           rec,
		recordable:    set,
		events:        events,
		participantID: participantID,
		tick:          time.Second,
		ended:         make(map[phaseKey]struct{}),
	}
}

// Snapshot is the runner's externally visible state.
type Snapshot struct {
	View      schedule.TrialView
	State     State
	Deadline  time.Time
	Total     int
	Completed bool
}

// ResponseLog returns the session's observable response log. Nil once the
// runner is torn down.
func (r *Runner) ResponseLog() []models.Response {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()
	return r.rec.Log()
}

// Snapshot returns the current trial view and phase deadline.
func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		View:      r.view,
		State:     r.state,
		Deadline:  r.shownAt.Add(time.Duration(r.view.DurationSeconds) * r.tick),
		Total:     r.sched.Len(),
		Completed: r.completed,
	}
}

// LoadAt positions the runner at a sequence index, typically the session's
// stored cursor. An index at or past the schedule end is normal completion.
func (r *Runner) LoadAt(ctx context.Context, index int) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	var fire []func()
	if index >= r.sched.Len() {
		fire = r.completeLocked(ctx)
	} else {
		var err error
		fire, err = r.loadLocked(index)
		if err != nil {
			r.mu.Unlock()
			return err
		}
	}
	r.mu.Unlock()
	runAll(fire)
	return nil
}

// SubmitAnswer ends the guess phase the caller observed. index and phase name
// that observation; a submission arriving after the runner has moved on is
// dropped, never applied to whatever phase is live now.
func (r *Runner) SubmitAnswer(ctx context.Context, index int, phase catalog.Phase, text string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if stale := r.staleReportLocked(index, phase); stale {
		r.mu.Unlock()
		return nil
	}
	if r.state != StatePresenting {
		r.mu.Unlock()
		r.log.Debug("Answer submitted outside guess phase, ignoring",
			zap.Int("sequenceIndex", r.index),
			zap.String("state", string(r.state)),
		)
		return nil
	}
	fire := r.endPhaseLocked(ctx, &text, false)
	r.mu.Unlock()
	runAll(fire)
	return nil
}

// CountdownExpired ends the identified phase as timed out. The presentation
// layer reports its own countdown expiry here with the (index, phase) it was
// counting down for; when the server-side timer already won and the runner
// loaded the next phase, the late report no longer matches and is dropped.
func (r *Runner) CountdownExpired(ctx context.Context, index int, phase catalog.Phase, partialAnswer *string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if stale := r.staleReportLocked(index, phase); stale {
		r.mu.Unlock()
		return nil
	}
	fire := r.endPhaseLocked(ctx, partialAnswer, true)
	r.mu.Unlock()
	runAll(fire)
	return nil
}

// staleReportLocked reports whether a client event targets a phase the runner
// is no longer in. The end-phase guard alone is not enough across the HTTP
// boundary: by the time a losing report arrives, the runner has already
// loaded the next entry, so matching against the live (index, phase) is what
// keeps the loser from ending a phase it never saw.
func (r *Runner) staleReportLocked(index int, phase catalog.Phase) bool {
	if index == r.index && phase == r.view.Phase {
		return false
	}
	r.log.Debug("Stale phase report, dropping",
		zap.Int("reportedIndex", index),
		zap.String("reportedPhase", string(phase)),
		zap.Int("sequenceIndex", r.index),
		zap.String("phase", string(r.view.Phase)),
	)
	return true
}

// Close tears the runner down and cancels any armed timer. No timer may ever
// fire against a closed runner.
func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.stopTimerLocked()
}

// loadLocked enters the trial at index: maps its phase onto a runner state,
// arms the countdown, and reports the phase change.
func (r *Runner) loadLocked(index int) ([]func(), error) {
	view, err := r.sched.ViewAt(index)
	if err != nil {
		return nil, err
	}
	r.index = index
	r.view = view
	r.shownAt = time.Now()

	switch view.Phase {
	case catalog.PhaseGuess:
		r.state = StatePresenting
	case catalog.PhaseFeedback:
		r.state = StateRevealing
	default:
		// A resumed cursor can land directly on a review entry; there is no
		// preceding guess or feedback to replay.
		r.state = StateSummarizing
	}

	r.armTimerLocked(time.Duration(view.DurationSeconds) * r.tick)

	view2 := view
	var fire []func()
	if r.events.PhaseChanged != nil {
		fire = append(fire, func() { r.events.PhaseChanged(view2) })
	}
	return fire, nil
}

// endPhaseLocked is the single exit from a phase. Exactly one caller wins per
// (index, phase); late timers and duplicate submits fall out here.
func (r *Runner) endPhaseLocked(ctx context.Context, answer *string, timedOut bool) []func() {
	if r.completed {
		return nil
	}
	key := phaseKey{r.index, r.view.Phase}
	if _, done := r.ended[key]; done {
		r.log.Debug("Phase already ended, dropping event",
			zap.Int("sequenceIndex", key.index),
			zap.String("phase", string(key.phase)),
			zap.Bool("timedOut", timedOut),
		)
		return nil
	}
	r.ended[key] = struct{}{}
	r.stopTimerLocked()
	r.state = StateAwaitingAdvance

	recordOK := true
	if r.recordable[r.view.Phase] {
		recordOK = r.recordLocked(ctx, answer, timedOut)
	}
	return r.advanceLocked(ctx, recordOK)
}

// recordLocked persists the response for the phase that just ended. Reports
// false only on a store failure, which defers the durable cursor write.
func (r *Runner) recordLocked(ctx context.Context, answer *string, timedOut bool) bool {
	if r.rec.HasRecorded(r.index, r.view.Phase) {
		r.log.Warn("Response already recorded for phase, skipping",
			zap.Int("sequenceIndex", r.index),
			zap.String("phase", string(r.view.Phase)),
		)
		return true
	}
	if answer == nil && r.view.Phase == catalog.PhaseGuess {
		empty := ""
		answer = &empty
	}
	err := r.rec.Record(ctx, recorder.Request{
		View:        r.view,
		AnswerText:  answer,
		IsTimedOut:  timedOut,
		ShownAt:     r.shownAt,
		SubmittedAt: time.Now(),
	})
	switch {
	case err == nil:
		return true
	case errors.Is(err, recorder.ErrDuplicateRecording):
		return true
	case errors.Is(err, recorder.ErrPersistenceFailure):
		r.log.Warn("Response persistence failed, continuing locally",
			zap.Int("sequenceIndex", r.index),
			zap.String("phase", string(r.view.Phase)),
			zap.Error(err),
		)
		return false
	default:
		r.log.Error("Unexpected recording error",
			zap.Int("sequenceIndex", r.index),
			zap.Error(err),
		)
		return false
	}
}

// advanceLocked moves the position cursor forward by one entry, signalling
// the warm-up boundary and experiment completion as they are crossed. The
// durable cursor write is sequenced after a successful response write; local
// progression never waits on the store.
func (r *Runner) advanceLocked(ctx context.Context, recordOK bool) []func() {
	prev := r.index
	next := prev + 1

	var fire []func()
	if r.events.TrialAdvanced != nil {
		fire = append(fire, func() { r.events.TrialAdvanced(next) })
	}

	if prev < r.sched.WarmupCount && next >= r.sched.WarmupCount {
		if err := r.ledger.MarkWarmupDone(ctx, r.participantID); err != nil {
			r.log.Warn("Failed to mark warm-up done", zap.Error(err))
		}
		if r.events.WarmupCompleted != nil {
			fire = append(fire, r.events.WarmupCompleted)
		}
	}

	if next >= r.sched.Len() {
		return append(fire, r.completeLocked(ctx)...)
	}

	if recordOK {
		if err := r.ledger.UpdateCursor(ctx, r.participantID, next); err != nil {
			r.log.Warn("Failed to persist cursor", zap.Int("index", next), zap.Error(err))
			r.cursorDirty = true
		} else {
			r.cursorDirty = false
		}
	} else {
		// A trial response is still missing durably; advancing the cursor now
		// would let a resume skip it.
		r.cursorDirty = true
	}

	loaded, err := r.loadLocked(next)
	if err != nil {
		r.log.Error("Failed to load next trial", zap.Int("index", next), zap.Error(err))
		return fire
	}
	return append(fire, loaded...)
}

func (r *Runner) completeLocked(ctx context.Context) []func() {
	if r.completed {
		return nil
	}
	r.completed = true
	r.state = StateAwaitingAdvance
	r.stopTimerLocked()
	if err := r.ledger.MarkCompleted(ctx, r.participantID, time.Now()); err != nil {
		r.log.Warn("Failed to mark session completed", zap.Error(err))
	}
	if r.events.ExperimentCompleted != nil {
		return []func(){r.events.ExperimentCompleted}
	}
	return nil
}

// armTimerLocked replaces the live countdown. The generation counter makes a
// timer that already fired but lost the lock race drop itself.
func (r *Runner) armTimerLocked(d time.Duration) {
	r.stopTimerLocked()
	r.timerGen++
	gen := r.timerGen
	r.timer = time.AfterFunc(d, func() {
		r.onTimer(gen)
	})
}

func (r *Runner) stopTimerLocked() {
	r.timerGen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Runner) onTimer(gen uint64) {
	r.mu.Lock()
	if r.closed || gen != r.timerGen {
		r.mu.Unlock()
		return
	}
	fire := r.endPhaseLocked(context.Background(), nil, true)
	r.mu.Unlock()
	runAll(fire)
}

func runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
