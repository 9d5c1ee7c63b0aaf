package jit

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/chazu/pyrite/vm"
	"github.com/tliron/commonlog"
)

// Manager is a vm.FrameExecutor that tiers code up as it gets hot.
//
// Each code block moves through Tier0 (interpreted), Tier1 (baseline) and
// Tier2 (optimizing). A generator that errors or panics moves the code to a
// terminal failed state, after which it is always interpreted. Tiers never
// go down. Frames with no compiled code run in the fast interpreter when
// their code is eligible and in the reference interpreter otherwise.
type Manager struct {
	enabled             atomic.Bool
	baselineThreshold   int
	optimizingThreshold int

	baseline   CodeGenerator
	optimizing CodeGenerator

	hotspots *HotspotTracker
	profiles *ProfileCollector

	mu      sync.Mutex
	entries map[uint64]*codeEntry

	compiledFrames  atomic.Uint64
	fastFrames      atomic.Uint64
	referenceFrames atomic.Uint64
	compiles        atomic.Uint64
	failures        atomic.Uint64
	evictions       atomic.Uint64

	log commonlog.Logger
}

// codeEntry is the tiering state of one code block.
type codeEntry struct {
	tier      Tier
	failed    bool
	compiled  CompiledFunc
	attempted [tierCount]bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithBaselineGenerator replaces the Tier1 generator.
func WithBaselineGenerator(g CodeGenerator) ManagerOption {
	return func(m *Manager) { m.baseline = g }
}

// WithOptimizingGenerator replaces the Tier2 generator.
func WithOptimizingGenerator(g CodeGenerator) ManagerOption {
	return func(m *Manager) { m.optimizing = g }
}

// NewManager creates a manager with the given settings.
func NewManager(cfg Config, opts ...ManagerOption) *Manager {
	m := &Manager{
		baselineThreshold:   cfg.BaselineThreshold,
		optimizingThreshold: cfg.OptimizingThreshold,
		baseline:            NewBaselineGenerator(),
		optimizing:          NewOptimizingGenerator(),
		hotspots:            NewHotspotTracker(),
		profiles:            NewProfileCollector(),
		entries:             make(map[uint64]*codeEntry),
		log:                 commonlog.GetLogger("pyrite.jit"),
	}
	m.enabled.Store(cfg.Enabled)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Install creates a manager and makes it the frame executor of v.
func Install(v *vm.VM, cfg Config, opts ...ManagerOption) *Manager {
	m := NewManager(cfg, opts...)
	v.SetExecutor(m)
	return m
}

// Enabled reports whether the manager intercepts frames.
func (m *Manager) Enabled() bool { return m.enabled.Load() }

// SetEnabled turns the manager on or off. Tiering state is kept while off.
func (m *Manager) SetEnabled(on bool) { m.enabled.Store(on) }

// ExecuteFrame runs f through compiled code, the fast interpreter or the
// reference interpreter.
func (m *Manager) ExecuteFrame(v *vm.VM, f *vm.Frame) (vm.Value, error) {
	bc := f.Code
	if !m.enabled.Load() || bc.IsGenerator {
		m.referenceFrames.Add(1)
		return v.ExecuteFrameInterpreter(f)
	}
	Prepare(bc)

	if fn := m.dispatch(bc); fn != nil {
		m.compiledFrames.Add(1)
		return fn(v, f)
	}
	if IsFastPathSupported(bc) {
		m.fastFrames.Add(1)
		return ExecuteFrameFast(v, f)
	}
	m.referenceFrames.Add(1)
	return v.ExecuteFrameInterpreter(f)
}

// dispatch records the entry and returns the compiled code for bc, if any,
// promoting it first when a threshold has been crossed.
func (m *Manager) dispatch(bc *vm.ByteCode) CompiledFunc {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entryFor(bc)
	if e.failed {
		return nil
	}
	count := m.hotspots.Record(bc)
	m.profiles.Record(bc)

	switch {
	case e.tier == Tier0 && count >= m.baselineThreshold:
		m.promote(bc, e, Tier1, m.baseline)
	case e.tier == Tier1 && count >= m.optimizingThreshold:
		m.promote(bc, e, Tier2, m.optimizing)
	}
	if e.failed {
		return nil
	}
	return e.compiled
}

// entryFor returns the entry for bc, creating it and registering its
// eviction on first use. The caller holds m.mu.
func (m *Manager) entryFor(bc *vm.ByteCode) *codeEntry {
	id := bc.ID()
	if e, ok := m.entries[id]; ok {
		return e
	}
	e := &codeEntry{}
	m.entries[id] = e
	runtime.AddCleanup(bc, m.forget, id)
	return e
}

// promote asks gen for tier code once per tier. The caller holds m.mu.
func (m *Manager) promote(bc *vm.ByteCode, e *codeEntry, tier Tier, gen CodeGenerator) {
	if e.attempted[tier] || gen == nil {
		return
	}
	e.attempted[tier] = true

	fn, err := m.generate(gen, bc, tier)
	switch {
	case err != nil:
		e.failed, e.compiled = true, nil
		m.failures.Add(1)
		m.log.Warningf("%s: %s generator failed, interpreting from now on: %s", codeName(bc), gen.Name(), err)
	case fn == nil:
		m.log.Debugf("%s: %s generator declined", codeName(bc), gen.Name())
	default:
		e.tier, e.compiled = tier, fn
		m.compiles.Add(1)
		m.log.Infof("%s: promoted to %s by %s generator", codeName(bc), tier, gen.Name())
	}
}

func (m *Manager) generate(gen CodeGenerator, bc *vm.ByteCode, tier Tier) (fn CompiledFunc, err error) {
	defer func() {
		if r := recover(); r != nil {
			fn, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return gen.Generate(bc, tier, m.profiles.Snapshot(bc))
}

// forget drops every table entry for a collected code block. It runs on the
// runtime's cleanup goroutine.
func (m *Manager) forget(id uint64) {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
	m.hotspots.Forget(id)
	m.profiles.Forget(id)
	m.evictions.Add(1)
	m.log.Debugf("evicted code %d", id)
}

// Tier returns the current tier of bc.
func (m *Manager) Tier(bc *vm.ByteCode) Tier {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[bc.ID()]; ok {
		return e.tier
	}
	return Tier0
}

// Failed reports whether a generator failed on bc.
func (m *Manager) Failed(bc *vm.ByteCode) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[bc.ID()]
	return ok && e.failed
}

// Compiled returns the cached compiled code for bc, or nil.
func (m *Manager) Compiled(bc *vm.ByteCode) CompiledFunc {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[bc.ID()]; ok && !e.failed {
		return e.compiled
	}
	return nil
}

// Count returns the recorded entry count of bc.
func (m *Manager) Count(bc *vm.ByteCode) int { return m.hotspots.Count(bc) }

// Profile returns the profile collected for bc.
func (m *Manager) Profile(bc *vm.ByteCode) Profile { return m.profiles.Snapshot(bc) }

// ManagerStats holds manager statistics.
type ManagerStats struct {
	CompiledFrames  uint64
	FastFrames      uint64
	ReferenceFrames uint64
	Compiles        uint64
	Failures        uint64
	Evictions       uint64
	TrackedCode     int
}

// Stats returns manager statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	tracked := len(m.entries)
	m.mu.Unlock()
	return ManagerStats{
		CompiledFrames:  m.compiledFrames.Load(),
		FastFrames:      m.fastFrames.Load(),
		ReferenceFrames: m.referenceFrames.Load(),
		Compiles:        m.compiles.Load(),
		Failures:        m.failures.Load(),
		Evictions:       m.evictions.Load(),
		TrackedCode:     tracked,
	}
}

func (s ManagerStats) String() string {
	return fmt.Sprintf("frames: %d compiled, %d fast, %d reference; compiles: %d; failures: %d; evictions: %d; tracked: %d",
		s.CompiledFrames, s.FastFrames, s.ReferenceFrames, s.Compiles, s.Failures, s.Evictions, s.TrackedCode)
}
