package state

import (
	"fmt"
	"slices"
	"testing"

	"github.com/cockroachdb/errors"
)

const (
	newBlend uint = iota
	newRaster
	newDerived
	newFinal
)

type testCtx struct {
	dirty Flags
	order []string
	fail  string
}

func atom(name string, mask Flags, raise Flags) Atom[*testCtx] {
	return Atom[*testCtx]{
		Name:  name,
		Dirty: mask,
		Update: func(c *testCtx) error {
			c.order = append(c.order, name)
			if c.fail == name {
				return fmt.Errorf("%s failed", name)
			}
			c.dirty.Or(raise)
			return nil
		},
	}
}

func chain() []Atom[*testCtx] {
	return []Atom[*testCtx]{
		atom("blend", Pipeline(newBlend), Flags{}),
		atom("derive", Pipeline(newBlend, newRaster), Pipeline(newDerived)),
		atom("final", Pipeline(newDerived), Cache(3)),
		atom("consume", Cache(3), Pipeline(newFinal)),
	}
}

func TestFlags(t *testing.T) {
	a := Pipeline(1, 2)
	b := Cache(2)
	if a.Intersects(b) {
		t.Error("pipeline and cache bits intersect")
	}
	a.Or(b)
	if !a.Intersects(b) || a.Empty() {
		t.Errorf("after Or: %v", a)
	}
	if x := a.Xor(Pipeline(1)); x != (Flags{Pipeline: 1 << 2, Cache: 1 << 2}) {
		t.Errorf("Xor() = %v", x)
	}
	if x := a.And(Pipeline(2, 5)); x != Pipeline(2) {
		t.Errorf("And() = %v", x)
	}
	a.Clear()
	if !a.Empty() {
		t.Error("Clear() left bits")
	}
}

func TestNewEngineRejects(t *testing.T) {
	tests := []struct {
		name  string
		atoms []Atom[*testCtx]
		want  error
	}{
		{"empty mask", []Atom[*testCtx]{atom("a", Flags{}, Flags{})}, ErrEmptyMask},
		{"nil update", []Atom[*testCtx]{{Name: "a", Dirty: Pipeline(0)}}, ErrNilUpdate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewEngine(tt.atoms); !errors.Is(err, tt.want) {
				t.Fatalf("NewEngine() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidatePropagates(t *testing.T) {
	e, err := NewEngine(chain(), WithOrderCheck(true))
	if err != nil {
		t.Fatal(err)
	}
	c := &testCtx{dirty: Pipeline(newRaster)}
	if err := e.Validate(c, &c.dirty); err != nil {
		t.Fatal(err)
	}
	want := []string{"derive", "final", "consume"}
	if !slices.Equal(c.order, want) {
		t.Errorf("order = %v, want %v", c.order, want)
	}
	if !c.dirty.Empty() {
		t.Errorf("dirty = %v after pass", c.dirty)
	}
	if e.Runs("blend") != 0 || e.Runs("derive") != 1 {
		t.Errorf("runs blend=%d derive=%d", e.Runs("blend"), e.Runs("derive"))
	}
}

func TestValidateEmptyIsNoop(t *testing.T) {
	e, err := NewEngine(chain())
	if err != nil {
		t.Fatal(err)
	}
	c := &testCtx{}
	if err := e.Validate(c, &c.dirty); err != nil {
		t.Fatal(err)
	}
	if len(c.order) != 0 {
		t.Errorf("atoms ran on empty flags: %v", c.order)
	}
}

func TestValidateAllRunsEveryAtom(t *testing.T) {
	e, err := NewEngine(chain(), WithOrderCheck(true))
	if err != nil {
		t.Fatal(err)
	}
	c := &testCtx{dirty: All}
	if err := e.Validate(c, &c.dirty); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(c.order, e.Names()) {
		t.Errorf("order = %v, want %v", c.order, e.Names())
	}
	e.ResetRuns()
	for _, n := range e.Names() {
		if e.Runs(n) != 0 {
			t.Errorf("Runs(%s) = %d after reset", n, e.Runs(n))
		}
	}
}

func TestOrderViolation(t *testing.T) {
	atoms := []Atom[*testCtx]{
		atom("consume", Pipeline(newDerived), Flags{}),
		atom("produce", Pipeline(newBlend), Pipeline(newDerived)),
	}

	t.Run("checked", func(t *testing.T) {
		e, err := NewEngine(atoms, WithOrderCheck(true))
		if err != nil {
			t.Fatal(err)
		}
		c := &testCtx{dirty: Pipeline(newBlend)}
		err = e.Validate(c, &c.dirty)
		if !errors.Is(err, ErrOrderViolation) {
			t.Fatalf("Validate() = %v, want ErrOrderViolation", err)
		}
		if !errors.HasAssertionFailure(err) {
			t.Errorf("error is not an assertion failure: %v", err)
		}
	})

	t.Run("unchecked", func(t *testing.T) {
		e, err := NewEngine(atoms)
		if err != nil {
			t.Fatal(err)
		}
		c := &testCtx{dirty: Pipeline(newBlend)}
		if err := e.Validate(c, &c.dirty); err != nil {
			t.Fatalf("Validate() = %v", err)
		}
	})
}

func TestSelfRaiseIsViolation(t *testing.T) {
	e, err := NewEngine([]Atom[*testCtx]{
		atom("loop", Pipeline(newBlend, newDerived), Pipeline(newDerived)),
	}, WithOrderCheck(true))
	if err != nil {
		t.Fatal(err)
	}
	c := &testCtx{dirty: Pipeline(newBlend)}
	if err := e.Validate(c, &c.dirty); !errors.Is(err, ErrOrderViolation) {
		t.Fatalf("Validate() = %v, want ErrOrderViolation", err)
	}
}

func TestUpdateErrorKeepsFlags(t *testing.T) {
	e, err := NewEngine(chain(), WithOrderCheck(true))
	if err != nil {
		t.Fatal(err)
	}
	c := &testCtx{dirty: Pipeline(newRaster), fail: "final"}
	err = e.Validate(c, &c.dirty)
	if err == nil {
		t.Fatal("Validate() succeeded")
	}
	if want := "atom final: final failed"; err.Error() != want {
		t.Errorf("err = %q, want %q", err.Error(), want)
	}
	if c.dirty != Pipeline(newRaster, newDerived) {
		t.Errorf("dirty = %v, want raster|derived kept", c.dirty)
	}
	if slices.Contains(c.order, "consume") {
		t.Error("atom after the failure ran")
	}

	// A retry with the failure cleared completes the pass.
	c.fail = ""
	c.order = nil
	if err := e.Validate(c, &c.dirty); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(c.order, []string{"derive", "final", "consume"}) {
		t.Errorf("retry order = %v", c.order)
	}
}

func TestMask(t *testing.T) {
	e, err := NewEngine(chain())
	if err != nil {
		t.Fatal(err)
	}
	want := Flags{Pipeline: 1<<newBlend | 1<<newRaster | 1<<newDerived, Cache: 1 << 3}
	if got := e.Mask(); got != want {
		t.Errorf("Mask() = %v, want %v", got, want)
	}
}
