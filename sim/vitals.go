package sim

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Vitals history source labels.
const (
	SourceAuto     = "Auto (Sim)"
	SourcePostMed  = "Post-Med"
	SourceScenario = "Scenario"
)

// VitalsSnapshot is one charted set of vitals.
type VitalsSnapshot struct {
	HR     int       `json:"hr"`
	SBP    int       `json:"sbp"`
	DBP    int       `json:"dbp"`
	RR     int       `json:"rr"`
	SpO2   int       `json:"spo2"`
	Temp   float64   `json:"temp"`
	Pain   int       `json:"pain"`
	Source string    `json:"source"`
	Time   time.Time `json:"time"`
}

// BP renders the blood pressure as "SBP/DBP".
func (v VitalsSnapshot) BP() string {
	return fmt.Sprintf("%d/%d", v.SBP, v.DBP)
}

// VitalsPatch sets absolute values; nil fields are left unchanged.
type VitalsPatch struct {
	HR   *int     `yaml:"hr"`
	SBP  *int     `yaml:"sbp"`
	DBP  *int     `yaml:"dbp"`
	RR   *int     `yaml:"rr"`
	SpO2 *int     `yaml:"spo2"`
	Temp *float64 `yaml:"temp"`
	Pain *int     `yaml:"pain"`
}

// VitalsAlert is a threshold crossing on a periodic reading.
type VitalsAlert struct {
	PatientID string
	Vital     string // hr, sbp, spo2, temp
	Value     float64
	Message   string
	Time      time.Time
}

// VitalsEngine computes new readings. It holds no per-patient state; history lives on the Patient.
type VitalsEngine struct {
	cfg Config
}

// NewVitalsEngine returns an engine using cfg's jitter, clamps, thresholds, and drift.
func NewVitalsEngine(cfg Config) VitalsEngine {
	return VitalsEngine{cfg: cfg}
}

// Next derives the periodic reading that follows the patient's latest one.
// meds are the patient's orders; only administered medications within the effect
// window contribute, each at MedEffectFraction with linear decay over the window.
func (e VitalsEngine) Next(p *Patient, meds []*Order, now time.Time, rng *rand.Rand) (VitalsSnapshot, bool) {
	last := p.LatestVitals()
	if last == nil {
		return VitalsSnapshot{}, false
	}
	j := e.cfg.Jitter
	d := VitalsDelta{
		HR:   Uniform(rng, j.HR.Min, j.HR.Max),
		SBP:  Uniform(rng, j.SBP.Min, j.SBP.Max),
		DBP:  Uniform(rng, j.DBP.Min, j.DBP.Max),
		RR:   Uniform(rng, j.RR.Min, j.RR.Max),
		SpO2: Uniform(rng, j.SpO2.Min, j.SpO2.Max),
		Temp: Uniform(rng, j.Temp.Min, j.Temp.Max),
		Pain: Uniform(rng, j.Pain.Min, j.Pain.Max),
	}
	d = d.Add(e.medContribution(meds, now))
	if len(p.Vitals) > e.cfg.HomeostasisAfter {
		d = d.Add(e.drift(*last, p.Baseline))
	}
	next := e.apply(*last, d)
	next.Source = SourceAuto
	next.Time = now
	return next, true
}

// medContribution sums the decayed effect of recently administered medications.
func (e VitalsEngine) medContribution(orders []*Order, now time.Time) VitalsDelta {
	var total VitalsDelta
	window := e.cfg.MedEffectWindow
	for _, o := range orders {
		if o.Cancelled || !o.Administered || o.Item.MedEffect == nil {
			continue
		}
		age := now.Sub(o.AdministeredAt)
		if age < 0 || age >= window {
			continue
		}
		decay := 1 - float64(age)/float64(window)
		total = total.Add(o.Item.MedEffect.Scaled(e.cfg.MedEffectFraction * decay))
	}
	return total
}

// drift pulls HR, RR and SpO2 toward baseline by at most one step each.
func (e VitalsEngine) drift(last VitalsSnapshot, baseline *VitalsSnapshot) VitalsDelta {
	if baseline == nil {
		return VitalsDelta{}
	}
	s := e.cfg.Homeostasis
	return VitalsDelta{
		HR:   stepToward(float64(last.HR), float64(baseline.HR), s.HR),
		RR:   stepToward(float64(last.RR), float64(baseline.RR), s.RR),
		SpO2: stepToward(float64(last.SpO2), float64(baseline.SpO2), s.SpO2),
	}
}

func stepToward(cur, target, step float64) float64 {
	diff := target - cur
	if math.Abs(diff) <= step {
		return diff
	}
	if diff > 0 {
		return step
	}
	return -step
}

// apply adds d to v, clamping and rounding every value.
func (e VitalsEngine) apply(v VitalsSnapshot, d VitalsDelta) VitalsSnapshot {
	c := e.cfg.Clamp
	return VitalsSnapshot{
		HR:   roundClamp(float64(v.HR)+d.HR, c.HR),
		SBP:  roundClamp(float64(v.SBP)+d.SBP, c.SBP),
		DBP:  roundClamp(float64(v.DBP)+d.DBP, c.DBP),
		RR:   roundClamp(float64(v.RR)+d.RR, c.RR),
		SpO2: roundClamp(float64(v.SpO2)+d.SpO2, c.SpO2),
		Temp: math.Round(c.Temp.Clamp(v.Temp+d.Temp)*10) / 10,
		Pain: roundClamp(float64(v.Pain)+d.Pain, c.Pain),
	}
}

func roundClamp(v float64, b Bounds) int {
	return int(math.Round(b.Clamp(v)))
}

// Immediate applies the full effect to the latest reading, undecayed.
func (e VitalsEngine) Immediate(last VitalsSnapshot, eff VitalsDelta, source string, now time.Time) VitalsSnapshot {
	next := e.apply(last, eff)
	next.Source = source
	next.Time = now
	return next
}

// Patched applies absolute values then a delta to the latest reading.
func (e VitalsEngine) Patched(last VitalsSnapshot, set *VitalsPatch, delta *VitalsDelta, source string, now time.Time) VitalsSnapshot {
	v := last
	if set != nil {
		setInt(&v.HR, set.HR)
		setInt(&v.SBP, set.SBP)
		setInt(&v.DBP, set.DBP)
		setInt(&v.RR, set.RR)
		setInt(&v.SpO2, set.SpO2)
		setInt(&v.Pain, set.Pain)
		if set.Temp != nil {
			v.Temp = *set.Temp
		}
	}
	var d VitalsDelta
	if delta != nil {
		d = *delta
	}
	return e.Immediate(v, d, source, now)
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

// Alerts returns at most one alert per vital for a reading.
func (e VitalsEngine) Alerts(p *Patient, v VitalsSnapshot) []VitalsAlert {
	a := e.cfg.Alerts
	name := p.ShortName()
	var out []VitalsAlert
	add := func(vital string, value float64, msg string) {
		out = append(out, VitalsAlert{PatientID: p.ID, Vital: vital, Value: value, Message: msg, Time: v.Time})
	}
	if hr := float64(v.HR); hr > a.HRHigh || hr < a.HRLow {
		add("hr", hr, fmt.Sprintf("%s: HR %d", name, v.HR))
	}
	if sbp := float64(v.SBP); sbp < a.SBPLow || sbp > a.SBPHigh {
		add("sbp", sbp, fmt.Sprintf("%s: BP %s", name, v.BP()))
	}
	if spo2 := float64(v.SpO2); spo2 < a.SpO2Low {
		add("spo2", spo2, fmt.Sprintf("%s: SpO2 %d%%", name, v.SpO2))
	}
	if v.Temp > a.TempHigh || v.Temp < a.TempLow {
		add("temp", v.Temp, fmt.Sprintf("%s: Temp %.1f", name, v.Temp))
	}
	return out
}

// appendVitals appends a reading, dropping the oldest beyond limit.
func appendVitals(history []VitalsSnapshot, v VitalsSnapshot, limit int) []VitalsSnapshot {
	history = append(history, v)
	if len(history) > limit {
		history = append([]VitalsSnapshot(nil), history[len(history)-limit:]...)
	}
	return history
}
