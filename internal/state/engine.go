// Package state runs dependency-ordered state atoms over a dirty-flag
// accumulator.
//
// Each atom declares the flags it depends on and an update function. A
// validation pass walks the atoms in declaration order and runs each one
// whose flags intersect the accumulator. Updates may raise further flags,
// which later atoms observe in the same pass. The declared order must
// therefore put producers before consumers; WithOrderCheck verifies it at
// run time.
package state

import (
	"log/slog"

	"github.com/cockroachdb/errors"
)

// Engine errors.
var (
	// ErrEmptyMask is returned by NewEngine for an atom with no flags.
	ErrEmptyMask = errors.New("state: atom has an empty dirty mask")

	// ErrNilUpdate is returned by NewEngine for an atom without an update.
	ErrNilUpdate = errors.New("state: atom has no update function")

	// ErrOrderViolation marks an atom that raised a flag an already
	// examined atom depends on. Errors carrying it are assertion failures.
	ErrOrderViolation = errors.New("state: atom ordering violation")
)

// Atom is one unit of derived state.
type Atom[C any] struct {
	// Name identifies the atom in logs and errors.
	Name string
	// Dirty is the set of flags the atom depends on.
	Dirty Flags
	// Update recomputes the atom's state. It may raise flags on the
	// accumulator passed to Validate.
	Update func(C) error
}

type options struct {
	orderCheck bool
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*options)

// WithOrderCheck enables the per-atom ordering assertion.
func WithOrderCheck(enabled bool) Option {
	return func(o *options) {
		o.orderCheck = enabled
	}
}

// WithLogger sets the logger atom runs are reported to at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Engine runs a fixed table of atoms.
type Engine[C any] struct {
	atoms      []Atom[C]
	runs       []uint64
	index      map[string]int
	orderCheck bool
	log        *slog.Logger
}

// NewEngine validates the atom table and returns an engine for it.
func NewEngine[C any](atoms []Atom[C], opts ...Option) (*Engine[C], error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	e := &Engine[C]{
		atoms:      append([]Atom[C](nil), atoms...),
		runs:       make([]uint64, len(atoms)),
		index:      make(map[string]int, len(atoms)),
		orderCheck: o.orderCheck,
		log:        o.logger,
	}
	for i, a := range e.atoms {
		if a.Dirty.Empty() {
			return nil, errors.Wrapf(ErrEmptyMask, "atom %q", a.Name)
		}
		if a.Update == nil {
			return nil, errors.Wrapf(ErrNilUpdate, "atom %q", a.Name)
		}
		e.index[a.Name] = i
	}
	return e, nil
}

// Validate runs every atom whose mask intersects *dirty. On success the
// accumulator is zeroed. If an update fails the pass stops, *dirty keeps
// every flag raised so far and the error is returned wrapped with the
// atom name.
func (e *Engine[C]) Validate(ctx C, dirty *Flags) error {
	if dirty.Empty() {
		return nil
	}

	var examined Flags
	prev := *dirty
	for i := range e.atoms {
		a := &e.atoms[i]
		if e.orderCheck {
			examined.Or(a.Dirty)
		}
		if !a.Dirty.Intersects(*dirty) {
			continue
		}

		e.log.Debug("state atom", "atom", a.Name, "dirty", dirty.String())
		e.runs[i]++
		if err := a.Update(ctx); err != nil {
			return errors.Wrapf(err, "atom %s", a.Name)
		}

		if e.orderCheck {
			generated := prev.Xor(*dirty)
			if generated.Intersects(examined) {
				return errors.WithAssertionFailure(errors.Wrapf(ErrOrderViolation,
					"atom %s raised %s after dependent atoms were examined (%s)",
					a.Name, generated.And(examined), examined))
			}
			prev = *dirty
		}
	}
	dirty.Clear()
	return nil
}

// Runs returns how many times the named atom has run.
func (e *Engine[C]) Runs(name string) uint64 {
	if i, ok := e.index[name]; ok {
		return e.runs[i]
	}
	return 0
}

// ResetRuns zeroes every run counter.
func (e *Engine[C]) ResetRuns() {
	clear(e.runs)
}

// Names returns the atom names in run order.
func (e *Engine[C]) Names() []string {
	names := make([]string, len(e.atoms))
	for i, a := range e.atoms {
		names[i] = a.Name
	}
	return names
}

// Mask returns the union of every atom's dirty mask.
func (e *Engine[C]) Mask() Flags {
	var m Flags
	for _, a := range e.atoms {
		m.Or(a.Dirty)
	}
	return m
}
