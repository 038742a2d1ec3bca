package services

import (
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"campusguard/pkg/logger"
)

// EscalationScheduler keeps at most one cancellable one-shot task per alert.
// Handlers still re-check alert state when they fire.
type EscalationScheduler struct {
	mu      sync.Mutex
	tasks   map[primitive.ObjectID]*scheduledTask
	seq     uint64
	stopped bool
	logger  *logger.Logger
}

type scheduledTask struct {
	timer *time.Timer
	seq   uint64
}

func NewEscalationScheduler(log *logger.Logger) *EscalationScheduler {
	return &EscalationScheduler{
		tasks:  make(map[primitive.ObjectID]*scheduledTask),
		logger: log.WithField("component", "escalation_scheduler"),
	}
}

// Arm schedules fn to run after the delay, replacing any task already armed for alertID.
func (s *EscalationScheduler) Arm(alertID primitive.ObjectID, after time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	if existing, ok := s.tasks[alertID]; ok {
		existing.timer.Stop()
	}

	s.seq++
	seq := s.seq
	task := &scheduledTask{seq: seq}
	task.timer = time.AfterFunc(after, func() { s.fire(alertID, seq, fn) })
	s.tasks[alertID] = task
}

// Cancel drops the pending task for alertID and reports whether one was pending.
func (s *EscalationScheduler) Cancel(alertID primitive.ObjectID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[alertID]
	if !ok {
		return false
	}
	delete(s.tasks, alertID)
	return task.timer.Stop()
}

func (s *EscalationScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Stop cancels every pending task; later Arm calls are ignored.
func (s *EscalationScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for id, task := range s.tasks {
		task.timer.Stop()
		delete(s.tasks, id)
	}
}

func (s *EscalationScheduler) fire(alertID primitive.ObjectID, seq uint64, fn func()) {
	s.mu.Lock()
	task, ok := s.tasks[alertID]
	if !ok || task.seq != seq {
		// cancelled or re-armed after this timer was already running
		s.mu.Unlock()
		return
	}
	delete(s.tasks, alertID)
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.WithAlertID(alertID).WithField("panic", r).Error("Escalation handler panicked")
		}
	}()
	fn()
}
