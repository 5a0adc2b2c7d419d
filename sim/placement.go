package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/simehr/simehr/sim/trace"
)

// PlaceOptions tunes a placement.
type PlaceOptions struct {
	// RejectWarnings declines an order whose verdict is warn. The default places it.
	RejectWarnings bool
}

// Placement is the outcome of PlaceOrder. Order is nil when the verdict blocked
// or the placer declined a warning.
type Placement struct {
	Verdict Verdict
	Order   *Order
}

// Placed reports whether an order was created.
func (p Placement) Placed() bool { return p.Order != nil }

// PlaceOrder evaluates the rule set against the patient's chart and, unless the
// verdict blocks, creates the order with its stage delays drawn once. A blocked
// placement writes no state and is not an error.
func (s *Simulator) PlaceOrder(patientID, catalogID string, priority Priority, opts PlaceOptions) (Placement, error) {
	p, ok := s.byID[patientID]
	if !ok {
		return Placement{}, fmt.Errorf("%w: %s", ErrUnknownPatient, patientID)
	}
	item, ok := s.catalog[catalogID]
	if !ok {
		return Placement{}, fmt.Errorf("%w: %s", ErrUnknownCatalogItem, catalogID)
	}
	if !ValidPriorities[priority] {
		return Placement{}, fmt.Errorf("unknown priority %q", priority)
	}
	priority = priority.OrDefault()

	verdict := s.rules.Evaluate(ProposedOrder{Item: item, Priority: priority}, s.chart(p))
	declined := verdict.Outcome == OutcomeBlock || (verdict.Outcome == OutcomeWarn && opts.RejectWarnings)
	s.trace.RecordVerdict(trace.VerdictRecord{
		PatientID: patientID,
		CatalogID: catalogID,
		Clock:     s.clock.Now(),
		Outcome:   string(verdict.Outcome),
		Rule:      verdict.Rule,
		Message:   verdict.Message,
		Placed:    !declined,
	})
	if declined {
		logrus.Infof("[%s] order not placed (%s): %s: %s", patientID, verdict.Outcome, item.Name, verdict.Message)
		s.emit(Signal{Kind: SignalOrderRejected, PatientID: patientID, Verdict: &verdict})
		return Placement{Verdict: verdict}, nil
	}

	now := s.clock.Now()
	o := &Order{
		ID:        s.rng.NewID(),
		PatientID: patientID,
		Item:      item,
		Priority:  priority,
		Stages: drawStages(s.content.Timing.Templates(item.Category, priority),
			s.rng.ForSubsystem(SubsystemTiming), now, s.clock.Active()),
		Status:   StatusPlaced,
		PlacedAt: now,
	}
	s.orders[patientID] = append(s.orders[patientID], o)
	s.log(patientID, fmt.Sprintf("Order placed: %s [%s]", item.Name, priority))
	s.notify(NotifyOrder, patientID, "Order Placed", fmt.Sprintf("%s (%s)", item.Name, priority))
	s.emit(Signal{Kind: SignalOrderPlaced, PatientID: patientID, Order: o, Verdict: &verdict})
	return Placement{Verdict: verdict, Order: o}, nil
}

// resultOrder generates and charts the results for a terminal non-medication order.
func (s *Simulator) resultOrder(p *Patient, o *Order) {
	items := s.resulter.Generate(GenerateRequest{
		Order:    o,
		Patient:  p,
		Sequence: s.resultSequence(o),
		Rand:     s.rng.ForSubsystem(SubsystemResults),
	})
	created := make([]*Result, 0, len(items))
	for _, item := range items {
		r := s.newResult(p.ID, o, item)
		s.results[p.ID] = append(s.results[p.ID], r)
		created = append(created, r)
		if r.Pending && r.PendingFinal != nil {
			delay := r.PendingFinal.Delay
			if delay <= 0 {
				delay = s.cfg.DefaultFinalize
			}
			s.scheduleSim(&finalizeResultEvent{
				due:       s.clock.Elapsed() + delay,
				patientID: p.ID,
				resultID:  r.ID,
			})
		}
	}

	critical := AnyCritical(items)
	kind, title := NotifyResult, "New Result Available"
	if critical {
		kind, title = NotifyCritical, "CRITICAL RESULT"
	}
	body := fmt.Sprintf("%s: %s, %d values", p.ShortName(), o.Item.Name, len(items))
	if len(items) == 1 {
		first := items[0]
		body = fmt.Sprintf("%s: %s = %s", p.ShortName(), first.Name, first.Value)
		if first.Unit != "" {
			body += " " + first.Unit
		}
		if first.Flag != FlagNormal && first.Flag != FlagPending {
			body += fmt.Sprintf(" [%s]", first.Flag)
		}
	}
	s.log(p.ID, fmt.Sprintf("Results available: %s", o.Item.Name))
	s.notify(kind, p.ID, title, body)
	s.emit(Signal{Kind: SignalResultAvailable, PatientID: p.ID, Order: o, Results: created})
}

// resultSequence counts the patient's other resulted orders with the same result key.
func (s *Simulator) resultSequence(o *Order) int {
	n := 0
	for _, other := range s.orders[o.PatientID] {
		if other.ID != o.ID && other.Resulted && other.Item.ResultKey == o.Item.ResultKey {
			n++
		}
	}
	return n
}

func (s *Simulator) newResult(patientID string, o *Order, item ResultItem) *Result {
	r := &Result{
		ID:           s.rng.NewID(),
		PatientID:    patientID,
		Name:         item.Name,
		Value:        item.Value,
		Unit:         item.Unit,
		Reference:    item.Reference,
		Bounds:       item.Bounds,
		Flag:         item.Flag,
		Category:     item.Category,
		Report:       item.Report,
		Pending:      item.Pending,
		PendingFinal: item.PendingFinal,
		ResultedAt:   s.clock.Now(),
	}
	if o != nil {
		r.OrderID = o.ID
		r.ResultKey = o.Item.ResultKey
	}
	return r.clone()
}

// FinalizeResult applies a pending result's final value and flag. Keyed to the
// result record: returns false, changing nothing, when the record no longer
// exists or was already finalized.
func (s *Simulator) FinalizeResult(patientID, resultID string) bool {
	var r *Result
	for _, cand := range s.results[patientID] {
		if cand.ID == resultID {
			r = cand
			break
		}
	}
	if r == nil || !r.Pending || r.PendingFinal == nil {
		return false
	}
	r.Value = r.PendingFinal.Value
	r.Flag = r.PendingFinal.Flag
	if r.Flag == "" {
		r.Flag = ClassifyFlag(r.Value, r.Bounds)
	}
	r.Pending = false
	r.FinalizedAt = s.clock.Now()

	name := patientID
	if p, ok := s.byID[patientID]; ok {
		name = p.ShortName()
	}
	kind := NotifyResult
	if r.Flag == FlagCritical {
		kind = NotifyCritical
	}
	s.log(patientID, fmt.Sprintf("Result finalized: %s", r.Name))
	s.notify(kind, patientID, "Final Result", fmt.Sprintf("%s: %s = %s", name, r.Name, r.Value))
	s.emit(Signal{Kind: SignalResultFinalized, PatientID: patientID, Results: []*Result{r}})
	return true
}

// AcknowledgeResult marks a result reviewed. Returns false for unknown or already acknowledged results.
func (s *Simulator) AcknowledgeResult(patientID, resultID string) bool {
	for _, r := range s.results[patientID] {
		if r.ID == resultID {
			if r.Acknowledged {
				return false
			}
			r.Acknowledged = true
			s.log(patientID, fmt.Sprintf("Result acknowledged: %s", r.Name))
			return true
		}
	}
	return false
}
