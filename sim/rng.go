package sim

import (
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible simulation run.
// Two runs with the same SimulationKey, content, and command sequence on a
// ManualWallClock MUST produce identical state.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// === Subsystem Constants ===

const (
	// SubsystemTiming draws stage delays at order placement.
	SubsystemTiming = "timing"

	// SubsystemResults feeds result generators.
	SubsystemResults = "results"

	// SubsystemVitals draws per-reading vitals jitter.
	SubsystemVitals = "vitals"

	// SubsystemDelays decides operational delay events.
	SubsystemDelays = "delays"

	// SubsystemIDs produces record identifiers.
	SubsystemIDs = "ids"

	// SubsystemDispositions draws admission callback delays.
	SubsystemDispositions = "dispositions"
)

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem,
// so adding draws in one subsystem never shifts another's sequence.
//
// Derivation formula: masterSeed XOR fnv1a64(subsystemName)
//
// Thread-safety: NOT thread-safe. Must be called from single goroutine.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached).
// Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(int64(p.key) ^ fnv1a64(name)))
	p.subsystems[name] = rng
	return rng
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// Reseed drops every cached subsystem so sequences restart from the key.
func (p *PartitionedRNG) Reseed() {
	p.subsystems = make(map[string]*rand.Rand)
}

// NewID draws a version-4 UUID from the ids subsystem.
func (p *PartitionedRNG) NewID() string {
	return uuid.Must(uuid.NewRandomFromReader(p.ForSubsystem(SubsystemIDs))).String()
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}

// Uniform draws from [lo, hi). Returns lo when the range is empty.
func Uniform(rng *rand.Rand, lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + rng.Float64()*(hi-lo)
}

// UniformDuration draws a duration from [lo, hi]. Returns lo when the range is empty.
func UniformDuration(rng *rand.Rand, lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rng.Int63n(int64(hi-lo)+1))
}
