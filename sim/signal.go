package sim

import (
	"time"

	"github.com/sirupsen/logrus"
)

// SignalKind identifies a state change the kernel announces.
type SignalKind string

const (
	SignalOrderPlaced     SignalKind = "order_placed"
	SignalOrderRejected   SignalKind = "order_rejected"
	SignalOrderUpdated    SignalKind = "order_updated"
	SignalResultAvailable SignalKind = "result_available"
	SignalResultFinalized SignalKind = "result_finalized"
	SignalVitalsUpdated   SignalKind = "vitals_updated"
	SignalVitalsAlert     SignalKind = "vitals_alert"
	SignalNotification    SignalKind = "notification"
	SignalScenarioFired   SignalKind = "scenario_fired"
	SignalPatientUpdated  SignalKind = "patient_updated"
	SignalReset           SignalKind = "reset"
)

// Signal is emitted unconditionally on every state change; consumers decide
// whether to react. Only the fields relevant to Kind are set.
type Signal struct {
	Kind         SignalKind
	PatientID    string
	Order        *Order
	Results      []*Result
	Verdict      *Verdict
	Vitals       *VitalsSnapshot
	Alert        *VitalsAlert
	Notification *Notification
	Event        *ScenarioEvent
	Time         time.Time // simulated
}

// Listener receives kernel signals on the simulator's goroutine. It must not block
// and must not call back into the Simulator.
type Listener interface {
	OnSignal(Signal)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Signal)

// OnSignal calls f.
func (f ListenerFunc) OnSignal(s Signal) { f(s) }

// Subscribe registers a listener. Listeners are called in registration order.
func (s *Simulator) Subscribe(l Listener) {
	if l != nil {
		s.listeners = append(s.listeners, l)
	}
}

func (s *Simulator) emit(sig Signal) {
	if sig.Time.IsZero() {
		sig.Time = s.clock.Now()
	}
	for _, l := range s.listeners {
		l.OnSignal(sig)
	}
}

// NotificationKind selects how a notification is presented.
type NotificationKind string

const (
	NotifyInfo          NotificationKind = "info"
	NotifyOrder         NotificationKind = "order"
	NotifyResult        NotificationKind = "result"
	NotifyCritical      NotificationKind = "critical"
	NotifyMed           NotificationKind = "med"
	NotifyPage          NotificationKind = "page"
	NotifyCallback      NotificationKind = "callback"
	NotifyDeterioration NotificationKind = "deterioration"
	NotifyReminder      NotificationKind = "reminder"
)

// Notification is a transient message; it expires after Config.NotificationTTL.
type Notification struct {
	ID        string
	Kind      NotificationKind
	Title     string
	Body      string
	PatientID string
	Time      time.Time // simulated
}

// Notifications returns the unexpired notifications, oldest first.
func (s *Simulator) Notifications() []Notification {
	return append([]Notification(nil), s.notifications...)
}

// DismissNotification removes a notification early. Returns false if it already expired.
func (s *Simulator) DismissNotification(id string) bool {
	for i, n := range s.notifications {
		if n.ID == id {
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Simulator) notify(kind NotificationKind, patientID, title, body string) {
	n := Notification{
		ID:        s.rng.NewID(),
		Kind:      kind,
		Title:     title,
		Body:      body,
		PatientID: patientID,
		Time:      s.clock.Now(),
	}
	s.notifications = append(s.notifications, n)
	s.schedule(&expireNotificationEvent{due: s.clock.Active() + s.cfg.NotificationTTL, id: n.ID})
	logrus.Debugf("notify [%s] %s: %s", kind, title, body)
	s.emit(Signal{Kind: SignalNotification, PatientID: patientID, Notification: &n})
}

// AuditEntry is one line of the audit log.
type AuditEntry struct {
	Time      time.Time `json:"time"` // simulated
	PatientID string    `json:"patient_id,omitempty"`
	Action    string    `json:"action"`
}

// Audit returns the audit log, newest last.
func (s *Simulator) Audit() []AuditEntry {
	return append([]AuditEntry(nil), s.audit...)
}

func (s *Simulator) log(patientID, action string) {
	s.audit = append(s.audit, AuditEntry{Time: s.clock.Now(), PatientID: patientID, Action: action})
	if over := len(s.audit) - s.cfg.AuditCap; over > 0 {
		s.audit = append([]AuditEntry(nil), s.audit[over:]...)
	}
	logrus.Infof("[%s] %s", patientID, action)
}
