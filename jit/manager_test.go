package jit

import (
	"errors"
	"io"
	"runtime"
	"testing"
	"time"

	"github.com/chazu/pyrite/vm"
)

// countingGenerator records calls and returns a fixed result.
type countingGenerator struct {
	name  string
	calls    int
	tiers    []Tier
	profiles []Profile
	fn       CompiledFunc
	err   error
	panic bool
}

func (g *countingGenerator) Name() string { return g.name }

func (g *countingGenerator) Generate(_ *vm.ByteCode, tier Tier, p Profile) (CompiledFunc, error) {
	g.calls++
	g.tiers = append(g.tiers, tier)
	g.profiles = append(g.profiles, p)
	if g.panic {
		panic("generator exploded")
	}
	return g.fn, g.err
}

func TestTierEquivalence(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0\n"},
		{1, "0\n"},
		{10, "2025\n"},
		{1118, "389879106409\n"},
	}

	for _, tt := range tests {
		bc := nestedLoop(tt.n)

		val, out := run(t, bc, nil)
		if out != tt.want || val != vm.None {
			t.Errorf("N=%d reference: got (%v, %q), want (None, %q)", tt.n, val, out, tt.want)
		}

		val, out = runFast(t, nestedLoop(tt.n))
		if out != tt.want || val != vm.None {
			t.Errorf("N=%d fast: got (%v, %q), want (None, %q)", tt.n, val, out, tt.want)
		}

		m := NewManager(Config{Enabled: true, BaselineThreshold: 1, OptimizingThreshold: 2})
		bc = nestedLoop(tt.n)
		val, out = run(t, bc, m)
		if out != tt.want || val != vm.None {
			t.Errorf("N=%d baseline: got (%v, %q), want (None, %q)", tt.n, val, out, tt.want)
		}
		if got := m.Tier(bc); got != Tier1 {
			t.Errorf("N=%d: tier after first run = %s, want tier1", tt.n, got)
		}

		val, out = run(t, bc, m)
		if out != tt.want || val != vm.None {
			t.Errorf("N=%d optimizing: got (%v, %q), want (None, %q)", tt.n, val, out, tt.want)
		}
		if got := m.Tier(bc); got != Tier2 {
			t.Errorf("N=%d: tier after second run = %s, want tier2", tt.n, got)
		}
		if s := m.Stats(); s.CompiledFrames != 2 || s.Compiles != 2 {
			t.Errorf("N=%d: stats = %+v, want 2 compiled frames and 2 compiles", tt.n, s)
		}
	}
}

func TestBaselineLeavesBindings(t *testing.T) {
	for _, n := range []int64{0, 5} {
		ref := vm.NewVM()
		ref.Stdout = io.Discard
		if _, err := ref.Execute(nestedLoop(n)); err != nil {
			t.Fatalf("reference: %v", err)
		}

		jitted := vm.NewVM()
		jitted.Stdout = io.Discard
		m := Install(jitted, testConfig())
		bc := nestedLoop(n)
		if _, err := jitted.Execute(bc); err != nil {
			t.Fatalf("baseline: %v", err)
		}
		if m.Compiled(bc) == nil {
			t.Fatalf("N=%d: nested loop was not compiled", n)
		}

		for _, name := range []string{"total", "i", "j"} {
			want, wantOK := ref.Globals.Local(name)
			got, gotOK := jitted.Globals.Local(name)
			if wantOK != gotOK || (wantOK && want != got) {
				t.Errorf("N=%d: %s = (%v, %v), want (%v, %v)", n, name, got, gotOK, want, wantOK)
			}
		}
	}
}

func TestCompileOnce(t *testing.T) {
	gen := &countingGenerator{name: "counting", fn: interpretCompiled}
	m := NewManager(Config{Enabled: true, BaselineThreshold: 1, OptimizingThreshold: 1 << 30},
		WithBaselineGenerator(gen))
	bc := nestedLoop(3)

	for range 5 {
		if _, out := run(t, bc, m); out != "9\n" {
			t.Fatalf("output = %q, want %q", out, "9\n")
		}
	}
	if gen.calls != 1 {
		t.Errorf("baseline generator called %d times, want 1", gen.calls)
	}
	if m.Count(bc) != 5 {
		t.Errorf("Count = %d, want 5", m.Count(bc))
	}
	if p := m.Profile(bc); p.Executions != 5 {
		t.Errorf("Profile.Executions = %d, want 5", p.Executions)
	}
	if s := m.Stats(); s.CompiledFrames != 5 {
		t.Errorf("CompiledFrames = %d, want 5", s.CompiledFrames)
	}
}

func TestCompiledEntriesKeepCounting(t *testing.T) {
	baseline := &countingGenerator{name: "b", fn: interpretCompiled}
	optimizing := &countingGenerator{name: "o", fn: interpretCompiled}
	m := NewManager(Config{Enabled: true, BaselineThreshold: 1, OptimizingThreshold: 4},
		WithBaselineGenerator(baseline), WithOptimizingGenerator(optimizing))
	bc := nestedLoop(2)

	for i := 1; i <= 3; i++ {
		run(t, bc, m)
		if m.Count(bc) != i || m.Profile(bc).Executions != i {
			t.Errorf("run %d: count = %d, executions = %d, want %d", i, m.Count(bc), m.Profile(bc).Executions, i)
		}
		if m.Tier(bc) != Tier1 {
			t.Errorf("run %d: tier = %s, want tier1", i, m.Tier(bc))
		}
	}
	if s := m.Stats(); s.CompiledFrames != 3 {
		t.Errorf("CompiledFrames = %d, want 3", s.CompiledFrames)
	}

	run(t, bc, m)
	if m.Tier(bc) != Tier2 {
		t.Fatalf("tier after run 4 = %s, want tier2", m.Tier(bc))
	}
	if len(optimizing.profiles) != 1 || optimizing.profiles[0].Executions != 4 {
		t.Errorf("optimizing generator saw %v, want one profile with 4 executions", optimizing.profiles)
	}
}

func TestDeclinedGenerateIsMemoized(t *testing.T) {
	gen := &countingGenerator{name: "declining"}
	m := NewManager(testConfig(), WithBaselineGenerator(gen))
	bc := nestedLoop(2)

	for range 4 {
		run(t, bc, m)
	}
	if gen.calls != 1 {
		t.Errorf("generator called %d times, want 1", gen.calls)
	}
	if m.Tier(bc) != Tier0 || m.Failed(bc) {
		t.Errorf("tier = %s, failed = %v; want tier0, not failed", m.Tier(bc), m.Failed(bc))
	}
	if s := m.Stats(); s.FastFrames != 4 || s.CompiledFrames != 0 {
		t.Errorf("stats = %+v, want 4 fast frames", s)
	}
}

func TestThresholds(t *testing.T) {
	baseline := &countingGenerator{name: "b", fn: interpretCompiled}
	optimizing := &countingGenerator{name: "o", fn: interpretCompiled}
	m := NewManager(Config{Enabled: true, BaselineThreshold: 3, OptimizingThreshold: 5},
		WithBaselineGenerator(baseline), WithOptimizingGenerator(optimizing))
	bc := nestedLoop(2)

	wantTiers := []Tier{Tier0, Tier0, Tier1, Tier1, Tier2, Tier2}
	for i, want := range wantTiers {
		run(t, bc, m)
		if got := m.Tier(bc); got != want {
			t.Errorf("after run %d: tier = %s, want %s", i+1, got, want)
		}
	}
	if baseline.calls != 1 || optimizing.calls != 1 {
		t.Errorf("generator calls = %d/%d, want 1/1", baseline.calls, optimizing.calls)
	}
	if len(optimizing.tiers) != 1 || optimizing.tiers[0] != Tier2 {
		t.Errorf("optimizing generator asked for %v, want [tier2]", optimizing.tiers)
	}
}

func TestFailureIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		gen  *countingGenerator
	}{
		{"error", &countingGenerator{name: "broken", err: errors.New("cannot compile")}},
		{"panic", &countingGenerator{name: "exploding", panic: true}},
		{"error with closure", &countingGenerator{name: "half", fn: interpretCompiled, err: errors.New("partial")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(testConfig(), WithBaselineGenerator(tt.gen))
			bc := nestedLoop(4)

			for range 3 {
				if _, out := run(t, bc, m); out != "36\n" {
					t.Fatalf("output = %q, want %q", out, "36\n")
				}
			}
			if !m.Failed(bc) {
				t.Error("code not marked failed")
			}
			if m.Compiled(bc) != nil {
				t.Error("failed code still has compiled code")
			}
			if tt.gen.calls != 1 {
				t.Errorf("generator called %d times, want 1", tt.gen.calls)
			}
			if m.Count(bc) != 1 {
				t.Errorf("Count = %d, want 1: failed code is no longer tracked", m.Count(bc))
			}
			if s := m.Stats(); s.Failures != 1 {
				t.Errorf("Failures = %d, want 1", s.Failures)
			}
		})
	}
}

func TestFailureAfterPromotionKeepsTier(t *testing.T) {
	baseline := &countingGenerator{name: "b", fn: interpretCompiled}
	optimizing := &countingGenerator{name: "o", panic: true}
	m := NewManager(Config{Enabled: true, BaselineThreshold: 1, OptimizingThreshold: 2},
		WithBaselineGenerator(baseline), WithOptimizingGenerator(optimizing))
	bc := nestedLoop(3)

	for range 4 {
		if _, out := run(t, bc, m); out != "9\n" {
			t.Fatalf("output = %q, want %q", out, "9\n")
		}
	}
	if !m.Failed(bc) {
		t.Fatal("code not marked failed")
	}
	if m.Tier(bc) != Tier1 {
		t.Errorf("tier = %s, want tier1", m.Tier(bc))
	}
	if s := m.Stats(); s.CompiledFrames != 1 || s.FastFrames != 3 {
		t.Errorf("stats = %+v, want 1 compiled and 3 fast frames", s)
	}
}

func TestDisabledManager(t *testing.T) {
	gen := &countingGenerator{name: "counting", fn: interpretCompiled}
	m := NewManager(testConfig(), WithBaselineGenerator(gen))
	m.SetEnabled(false)
	if m.Enabled() {
		t.Fatal("Enabled() = true after SetEnabled(false)")
	}
	bc := nestedLoop(10)

	if _, out := run(t, bc, m); out != "2025\n" {
		t.Errorf("output = %q, want %q", out, "2025\n")
	}
	if gen.calls != 0 || m.Count(bc) != 0 {
		t.Errorf("disabled manager compiled or counted: calls=%d count=%d", gen.calls, m.Count(bc))
	}
	if s := m.Stats(); s.ReferenceFrames != 1 {
		t.Errorf("ReferenceFrames = %d, want 1", s.ReferenceFrames)
	}

	m.SetEnabled(true)
	run(t, bc, m)
	if gen.calls != 1 || m.Tier(bc) != Tier1 {
		t.Errorf("after re-enable: calls=%d tier=%s, want 1 and tier1", gen.calls, m.Tier(bc))
	}
}

func TestFunctionFramesAreTiered(t *testing.T) {
	body := counterBody()
	m := NewManager(Config{Enabled: true, BaselineThreshold: 1 << 30, OptimizingThreshold: 1 << 30})

	if _, out := run(t, callTwice(body, vm.Int(41)), m); out != "42\n42\n" {
		t.Errorf("output = %q, want %q", out, "42\n42\n")
	}
	if m.Count(body) != 2 {
		t.Errorf("function Count = %d, want 2", m.Count(body))
	}
	if s := m.Stats(); s.FastFrames != 3 {
		t.Errorf("FastFrames = %d, want 3 (module and two calls)", s.FastFrames)
	}
}

func TestUnsupportedCodeUsesReference(t *testing.T) {
	b := vm.NewBuilder("")
	b.LoadConst(vm.Int(7)).Op(vm.OpDupTop).Op(vm.OpBinaryMultiply).Op(vm.OpReturnValue)
	bc := b.MustBuild()

	m := NewManager(testConfig())
	val, _ := run(t, bc, m)
	if val != vm.Int(49) {
		t.Errorf("result = %v, want 49", val)
	}
	if s := m.Stats(); s.ReferenceFrames != 1 || s.FastFrames != 0 {
		t.Errorf("stats = %+v, want 1 reference frame", s)
	}
}

func TestEviction(t *testing.T) {
	m := NewManager(testConfig(), WithBaselineGenerator(&countingGenerator{name: "declining"}))

	func() {
		b := vm.NewBuilder("")
		b.LoadConst(vm.Int(1)).Op(vm.OpReturnValue)
		run(t, b.MustBuild(), m)
	}()
	if s := m.Stats(); s.TrackedCode != 1 {
		t.Fatalf("TrackedCode = %d, want 1", s.TrackedCode)
	}

	deadline := time.Now().Add(5 * time.Second)
	for m.Stats().Evictions == 0 {
		if time.Now().After(deadline) {
			t.Fatal("code block was never evicted")
		}
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
	if s := m.Stats(); s.TrackedCode != 0 {
		t.Errorf("TrackedCode = %d after eviction, want 0", s.TrackedCode)
	}
	if m.hotspots.Len() != 0 {
		t.Errorf("hotspot tracker still holds %d entries", m.hotspots.Len())
	}
}
