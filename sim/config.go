package sim

import (
	"fmt"
	"time"
)

// Bounds is an inclusive [Min, Max] range.
type Bounds struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Clamp limits v to the range.
func (b Bounds) Clamp(v float64) float64 {
	if v < b.Min {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}

// VitalRanges holds one range per physiological value.
type VitalRanges struct {
	HR   Bounds `yaml:"hr"`
	SBP  Bounds `yaml:"sbp"`
	DBP  Bounds `yaml:"dbp"`
	RR   Bounds `yaml:"rr"`
	SpO2 Bounds `yaml:"spo2"`
	Temp Bounds `yaml:"temp"`
	Pain Bounds `yaml:"pain"`
}

// AlertThresholds are the critical limits checked after each periodic vitals reading.
// A reading strictly beyond a limit raises one alert for that vital.
type AlertThresholds struct {
	HRHigh   float64 `yaml:"hr_high"`
	HRLow    float64 `yaml:"hr_low"`
	SBPLow   float64 `yaml:"sbp_low"`
	SBPHigh  float64 `yaml:"sbp_high"`
	SpO2Low  float64 `yaml:"spo2_low"`
	TempHigh float64 `yaml:"temp_high"`
	TempLow  float64 `yaml:"temp_low"`
}

// HomeostasisSteps is the per-reading pull toward baseline for the vitals that drift.
type HomeostasisSteps struct {
	HR   float64 `yaml:"hr"`
	RR   float64 `yaml:"rr"`
	SpO2 float64 `yaml:"spo2"`
}

// Config groups the kernel's tunable parameters.
// Durations marked "real" are measured in unpaused wall time; "simulated" ones in clock time.
type Config struct {
	InitialSpeed float64 `yaml:"initial_speed"` // clock multiplier at start (default 2)

	FastTick      time.Duration `yaml:"fast_tick"`      // real; clock/pipeline/deferred-event cadence
	VitalsCadence time.Duration `yaml:"vitals_cadence"` // real; vitals and delay-event cadence

	MedEffectWindow   time.Duration `yaml:"med_effect_window"`   // simulated; trailing window after administration
	MedEffectFraction float64       `yaml:"med_effect_fraction"` // share of the full effect applied per reading
	HomeostasisAfter  int           `yaml:"homeostasis_after"`   // history length beyond which drift applies
	HistoryCap        int           `yaml:"history_cap"`         // vitals entries kept per patient

	Homeostasis HomeostasisSteps `yaml:"homeostasis"`
	Jitter      VitalRanges      `yaml:"jitter"` // per-reading random delta ranges
	Clamp       VitalRanges      `yaml:"clamp"`  // hard physiological bounds
	Alerts      AlertThresholds  `yaml:"alerts"`

	DuplicateWindow  time.Duration `yaml:"duplicate_window"`  // simulated
	NotificationTTL  time.Duration `yaml:"notification_ttl"`  // real
	DefaultFinalize  time.Duration `yaml:"default_finalize"`  // simulated; pending-final delay when content omits one
	AuditCap         int           `yaml:"audit_cap"`
	SnapshotAuditCap int           `yaml:"snapshot_audit_cap"`
}

// DefaultConfig returns the parameters the bundled content was tuned against.
func DefaultConfig() Config {
	return Config{
		InitialSpeed:      2,
		FastTick:          200 * time.Millisecond,
		VitalsCadence:     45 * time.Second,
		MedEffectWindow:   5 * time.Minute,
		MedEffectFraction: 0.3,
		HomeostasisAfter:  3,
		Homeostasis:       HomeostasisSteps{HR: 1, RR: 0.5, SpO2: 0.3},
		HistoryCap:        20,
		Jitter: VitalRanges{
			HR:   Bounds{-3, 3},
			SBP:  Bounds{-4, 4},
			DBP:  Bounds{-3, 3},
			RR:   Bounds{-1, 1},
			SpO2: Bounds{-1, 1},
			Temp: Bounds{-0.2, 0.1},
			Pain: Bounds{0, 0},
		},
		Clamp: VitalRanges{
			HR:   Bounds{40, 180},
			SBP:  Bounds{60, 220},
			DBP:  Bounds{30, 130},
			RR:   Bounds{8, 40},
			SpO2: Bounds{70, 100},
			Temp: Bounds{95, 106},
			Pain: Bounds{0, 10},
		},
		Alerts: AlertThresholds{
			HRHigh:   150,
			HRLow:    45,
			SBPLow:   80,
			SBPHigh:  200,
			SpO2Low:  88,
			TempHigh: 104,
			TempLow:  96,
		},
		DuplicateWindow:  3 * time.Minute,
		NotificationTTL:  6 * time.Second,
		DefaultFinalize:  2 * time.Minute,
		AuditCap:         300,
		SnapshotAuditCap: 200,
	}
}

// Validate reports the first parameter that would make the kernel misbehave.
func (c Config) Validate() error {
	if c.InitialSpeed < 0 {
		return fmt.Errorf("initial_speed must be >= 0, got %v", c.InitialSpeed)
	}
	if c.FastTick <= 0 {
		return fmt.Errorf("fast_tick must be > 0, got %v", c.FastTick)
	}
	if c.VitalsCadence < c.FastTick {
		return fmt.Errorf("vitals_cadence (%v) must not be shorter than fast_tick (%v)", c.VitalsCadence, c.FastTick)
	}
	if c.MedEffectWindow <= 0 {
		return fmt.Errorf("med_effect_window must be > 0, got %v", c.MedEffectWindow)
	}
	if c.MedEffectFraction < 0 || c.MedEffectFraction > 1 {
		return fmt.Errorf("med_effect_fraction must be in [0,1], got %v", c.MedEffectFraction)
	}
	if c.HistoryCap < 1 {
		return fmt.Errorf("history_cap must be >= 1, got %d", c.HistoryCap)
	}
	if c.AuditCap < 1 || c.SnapshotAuditCap < 1 {
		return fmt.Errorf("audit caps must be >= 1, got %d/%d", c.AuditCap, c.SnapshotAuditCap)
	}
	for name, b := range map[string]Bounds{
		"hr": c.Clamp.HR, "sbp": c.Clamp.SBP, "dbp": c.Clamp.DBP, "rr": c.Clamp.RR,
		"spo2": c.Clamp.SpO2, "temp": c.Clamp.Temp, "pain": c.Clamp.Pain,
	} {
		if b.Min > b.Max {
			return fmt.Errorf("clamp.%s: min %v exceeds max %v", name, b.Min, b.Max)
		}
	}
	return nil
}
