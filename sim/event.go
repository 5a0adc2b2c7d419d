package sim

import (
	"container/heap"
	"time"

	"github.com/sirupsen/logrus"
)

// Event is a deferred one-shot effect. The fast tick drains every event whose
// Due has been reached, in (Due, scheduling order). Due is measured in active
// real time for events passed to schedule and in simulated elapsed time for
// events passed to scheduleSim.
// Execute must re-check that its target still exists and is in the expected
// state: cancelling or discarding a record never removes its events.
type Event interface {
	Due() time.Duration
	Execute(*Simulator)
}

// scheduledEvent wraps an Event with its tie-breaking sequence and the
// simulator epoch it was scheduled in; Reset and Restore bump the epoch.
type scheduledEvent struct {
	event Event
	seq   int64
	epoch uint64
}

// EventQueue implements heap.Interface ordered by (Due, seq).
type EventQueue []scheduledEvent

func (eq EventQueue) Len() int { return len(eq) }

func (eq EventQueue) Less(i, j int) bool {
	if eq[i].event.Due() != eq[j].event.Due() {
		return eq[i].event.Due() < eq[j].event.Due()
	}
	return eq[i].seq < eq[j].seq
}

func (eq EventQueue) Swap(i, j int) { eq[i], eq[j] = eq[j], eq[i] }

func (eq *EventQueue) Push(x any) {
	*eq = append(*eq, x.(scheduledEvent))
}

func (eq *EventQueue) Pop() any {
	old := *eq
	n := len(old)
	item := old[n-1]
	*eq = old[:n-1]
	return item
}

func (s *Simulator) schedule(ev Event) {
	s.seq++
	heap.Push(&s.queue, scheduledEvent{event: ev, seq: s.seq, epoch: s.epoch})
}

// scheduleSim queues ev against simulated elapsed time, so it holds while the
// clock is paused or stopped and follows later speed changes.
func (s *Simulator) scheduleSim(ev Event) {
	s.seq++
	heap.Push(&s.simQueue, scheduledEvent{event: ev, seq: s.seq, epoch: s.epoch})
}

// drainEvents executes every due event from the current epoch.
func (s *Simulator) drainEvents() {
	s.drain(&s.queue, s.clock.Active())
	s.drain(&s.simQueue, s.clock.Elapsed())
}

func (s *Simulator) drain(eq *EventQueue, now time.Duration) {
	for eq.Len() > 0 && (*eq)[0].event.Due() <= now {
		se := heap.Pop(eq).(scheduledEvent)
		if se.epoch != s.epoch {
			continue
		}
		se.event.Execute(s)
	}
}

func (s *Simulator) clearEvents() {
	s.epoch++
	s.queue = s.queue[:0]
	s.simQueue = s.simQueue[:0]
}

// PendingEvents returns the number of queued deferred events.
func (s *Simulator) PendingEvents() int { return s.queue.Len() + s.simQueue.Len() }

// finalizeResultEvent completes a two-phase result. Due is simulated elapsed time.
type finalizeResultEvent struct {
	due       time.Duration
	patientID string
	resultID  string
}

func (e *finalizeResultEvent) Due() time.Duration { return e.due }

func (e *finalizeResultEvent) Execute(s *Simulator) {
	if !s.FinalizeResult(e.patientID, e.resultID) {
		logrus.Debugf("<< finalize %s/%s: no longer pending", e.patientID, e.resultID)
	}
}

// expireNotificationEvent removes a notification after its TTL.
type expireNotificationEvent struct {
	due time.Duration
	id  string
}

func (e *expireNotificationEvent) Due() time.Duration { return e.due }

func (e *expireNotificationEvent) Execute(s *Simulator) {
	s.DismissNotification(e.id)
}

// admissionCallbackEvent delivers the admitting team's answer. Due is simulated elapsed time.
type admissionCallbackEvent struct {
	due       time.Duration
	patientID string
	requestID string
}

func (e *admissionCallbackEvent) Due() time.Duration { return e.due }

func (e *admissionCallbackEvent) Execute(s *Simulator) {
	s.resolveAdmission(e.patientID, e.requestID)
}
