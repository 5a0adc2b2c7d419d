package sim

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/simehr/simehr/sim/trace"
)

// drawStages builds an order's stage list: "Placed" complete at creation, then
// one stage per template with its delay drawn once from the template range.
func drawStages(templates []StageTemplate, rng *rand.Rand, now time.Time, active time.Duration) []Stage {
	stages := make([]Stage, 0, len(templates)+1)
	stages = append(stages, Stage{
		Name:            StatusPlaced,
		Completed:       true,
		CompletedAt:     now,
		CompletedActive: active,
	})
	for _, t := range templates {
		stages = append(stages, Stage{Name: t.Name, Delay: UniformDuration(rng, t.Min, t.Max)})
	}
	return stages
}

// stageTarget returns the active elapsed time at which stage idx completes at
// the given speed: previous completion plus the stage's simulated delay scaled
// by the current speed. ok is false at speed 0, where nothing progresses.
func stageTarget(o *Order, idx int, speed float64) (target time.Duration, ok bool) {
	if speed <= 0 || idx <= 0 || idx >= len(o.Stages) {
		return 0, false
	}
	st := o.Stages[idx]
	return o.Stages[idx-1].CompletedActive + realDelay(st.Delay+st.ExtraDelay, speed), true
}

// StageETA returns the simulated time remaining until the in-flight stage completes.
// ok is false when the order is not in flight or the clock is stopped.
func (s *Simulator) StageETA(o *Order) (time.Duration, bool) {
	if !o.InFlight() {
		return 0, false
	}
	target, ok := stageTarget(o, o.NextStage(), s.clock.Speed())
	if !ok {
		return 0, false
	}
	remaining := target - s.clock.Active()
	if remaining < 0 {
		remaining = 0
	}
	return scaleDuration(remaining, s.clock.Speed()), true
}

// advanceOrders completes at most one stage per in-flight order whose target has passed.
// Orders are visited patient by patient in content order, oldest order first.
func (s *Simulator) advanceOrders() {
	active := s.clock.Active()
	speed := s.clock.Speed()
	for _, p := range s.patients {
		for _, o := range s.orders[p.ID] {
			if !o.InFlight() {
				continue
			}
			idx := o.NextStage()
			target, ok := stageTarget(o, idx, speed)
			if !ok || active < target {
				continue
			}
			s.completeStage(p, o, idx, active)
		}
	}
}

func (s *Simulator) completeStage(p *Patient, o *Order, idx int, active time.Duration) {
	now := s.clock.Now()
	st := &o.Stages[idx]
	st.Completed = true
	st.CompletedAt = now
	st.CompletedActive = active
	o.CurrentStage = idx
	o.Status = st.Name
	terminal := idx == len(o.Stages)-1
	logrus.Debugf("<< stage %s %q -> %s (%d/%d)", o.ID, o.Item.Name, st.Name, idx, len(o.Stages)-1)
	s.trace.RecordTransition(trace.TransitionRecord{
		OrderID:    o.ID,
		PatientID:  o.PatientID,
		Stage:      st.Name,
		StageIndex: idx,
		Clock:      now,
		Terminal:   terminal,
	})

	if !terminal {
		s.emit(Signal{Kind: SignalOrderUpdated, PatientID: p.ID, Order: o})
		return
	}
	if o.Item.Category == CategoryMedication {
		o.Status = StatusReady
		s.log(p.ID, fmt.Sprintf("Medication ready: %s", o.Item.Name))
		s.notify(NotifyMed, p.ID, "Medication Ready", fmt.Sprintf("%s ready for %s", o.Item.Name, p.ShortName()))
		s.emit(Signal{Kind: SignalOrderUpdated, PatientID: p.ID, Order: o})
		return
	}
	o.Resulted = true
	s.emit(Signal{Kind: SignalOrderUpdated, PatientID: p.ID, Order: o})
	s.resultOrder(p, o)
}

// CancelOrder cancels an order that has not resulted. Returns false, changing
// nothing, for unknown, resulted, already cancelled, or administered orders.
func (s *Simulator) CancelOrder(patientID, orderID string) bool {
	o := s.findOrder(patientID, orderID)
	if o == nil || o.Resulted || o.Cancelled || o.Administered {
		return false
	}
	o.Cancelled = true
	o.Status = StatusCancelled
	s.log(patientID, fmt.Sprintf("Order cancelled: %s", o.Item.Name))
	s.notify(NotifyInfo, patientID, "Order Cancelled", o.Item.Name)
	s.emit(Signal{Kind: SignalOrderUpdated, PatientID: patientID, Order: o})
	return true
}

// Administer marks a ready medication as given and applies its effect profile
// immediately. Returns false, changing nothing, unless the order is a ready medication.
func (s *Simulator) Administer(patientID, orderID string) bool {
	o := s.findOrder(patientID, orderID)
	if o == nil || !o.Ready() {
		return false
	}
	p := s.byID[patientID]
	o.Administered = true
	o.AdministeredAt = s.clock.Now()
	o.Status = StatusGiven
	s.log(patientID, fmt.Sprintf("Administered: %s", o.Item.Name))
	if o.Item.MedEffect != nil {
		s.applyMedEffect(p, *o.Item.MedEffect)
	}
	s.notify(NotifyMed, patientID, "Medication Administered", o.Item.Name)
	s.emit(Signal{Kind: SignalOrderUpdated, PatientID: patientID, Order: o})
	return true
}

// runDelayEvents rolls each operational delay event once. A firing event adds
// extra simulated delay to the in-flight stage of every in-flight order in its category.
func (s *Simulator) runDelayEvents() {
	rng := s.rng.ForSubsystem(SubsystemDelays)
	for _, d := range s.content.DelayEvents {
		if rng.Float64() >= d.Probability {
			continue
		}
		extra := UniformDuration(rng, d.Min, d.Max)
		affected := 0
		for _, p := range s.patients {
			for _, o := range s.orders[p.ID] {
				if o.Item.Category != d.Category || !o.InFlight() {
					continue
				}
				o.Stages[o.NextStage()].ExtraDelay += extra
				affected++
				s.emit(Signal{Kind: SignalOrderUpdated, PatientID: p.ID, Order: o})
			}
		}
		if affected == 0 {
			continue
		}
		s.log("", fmt.Sprintf("Delay: %s (+%s on %d orders)", d.Message, extra.Round(time.Second), affected))
		s.notify(NotifyInfo, "", "Operational Delay", d.Message)
	}
}
