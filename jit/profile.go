package jit

import (
	"sync"

	"github.com/chazu/pyrite/vm"
)

// Profile is a snapshot of what has been observed about a code block.
type Profile struct {
	Executions int
}

// ProfileCollector accumulates per-code profiles for the code generators.
type ProfileCollector struct {
	mu       sync.Mutex
	profiles map[uint64]*Profile
}

// NewProfileCollector creates an empty collector.
func NewProfileCollector() *ProfileCollector {
	return &ProfileCollector{profiles: make(map[uint64]*Profile)}
}

// Record notes one execution of bc.
func (p *ProfileCollector) Record(bc *vm.ByteCode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := bc.ID()
	prof, ok := p.profiles[id]
	if !ok {
		prof = &Profile{}
		p.profiles[id] = prof
	}
	prof.Executions++
}

// Snapshot returns a copy of the profile of bc.
func (p *ProfileCollector) Snapshot(bc *vm.ByteCode) Profile {
	p.mu.Lock()
	defer p.mu.Unlock()
	if prof, ok := p.profiles[bc.ID()]; ok {
		return *prof
	}
	return Profile{}
}

// Forget drops the profile for a code id.
func (p *ProfileCollector) Forget(id uint64) {
	p.mu.Lock()
	delete(p.profiles, id)
	p.mu.Unlock()
}
