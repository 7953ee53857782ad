package runner

import (
	"context"
	"sync"

	"lexlab/internal/catalog"
	"lexlab/internal/models"
	"lexlab/internal/recorder"
	"lexlab/internal/schedule"

	"go.uber.org/zap"
)

// Manager holds the live runner for each in-progress session. Exactly one
// runner exists per participant; starting a session again reuses it.
type Manager struct {
	log        *zap.Logger
	gen        *schedule.Generator
	ledger     Ledger
	store      recorder.Store
	recordable []catalog.Phase

	mu      sync.Mutex
	runners map[string]*Runner
}

// NewManager wires the session registry.
func NewManager(log *zap.Logger, gen *schedule.Generator, ledger Ledger, store recorder.Store, recordable []catalog.Phase) *Manager {
	return &Manager{
		log:        log,
		gen:        gen,
		ledger:     ledger,
		store:      store,
		recordable: recordable,
		runners:    make(map[string]*Runner),
	}
}

// Start builds (or returns) the runner for a session and positions it at the
// stored cursor.
func (m *Manager) Start(ctx context.Context, p *models.Participant) (*Runner, error) {
	m.mu.Lock()
	if r, ok := m.runners[p.ID]; ok {
		m.mu.Unlock()
		return r, nil
	}

	sched, err := m.gen.ForVariant(catalog.Variant(p.AssignedVariant))
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}

	id := p.ID
	code := p.Code
	rec := recorder.New(m.log, m.store, id)
	r := New(m.log, sched, m.ledger, rec, m.recordable, id, Events{
		PhaseChanged: func(view schedule.TrialView) {
			m.log.Debug("Phase changed",
				zap.String("participant", code),
				zap.Int("sequenceIndex", view.SequenceIndex),
				zap.String("phase", string(view.Phase)),
			)
		},
		TrialAdvanced: func(index int) {
			m.log.Debug("Trial advanced", zap.String("participant", code), zap.Int("index", index))
		},
		WarmupCompleted: func() {
			m.log.Info("Warm-up completed", zap.String("participant", code))
		},
		ExperimentCompleted: func() {
			m.log.Info("Experiment completed", zap.String("participant", code))
			go m.Close(id)
		},
	})
	m.runners[id] = r
	m.mu.Unlock()

	// A finished session resumes past the end, not at its last trial. The
	// ledger already holds its completion time, so the runner starts out
	// completed and writes nothing.
	index := p.CurrentSequenceIndex
	if p.Status == models.StatusCompleted {
		index = sched.Len()
		r.mu.Lock()
		r.completed = true
		r.mu.Unlock()
	}
	if err := r.LoadAt(ctx, index); err != nil {
		m.Close(id)
		return nil, err
	}
	return r, nil
}

// Get returns the live runner for a participant, if any.
func (m *Manager) Get(participantID string) (*Runner, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runners[participantID]
	return r, ok
}

// Close tears down a session's runner and cancels its timers.
func (m *Manager) Close(participantID string) {
	m.mu.Lock()
	r, ok := m.runners[participantID]
	delete(m.runners, participantID)
	m.mu.Unlock()
	if ok {
		r.Close()
	}
}

// CloseAll tears down every live runner, for shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	runners := m.runners
	m.runners = make(map[string]*Runner)
	m.mu.Unlock()
	for _, r := range runners {
		r.Close()
	}
}
