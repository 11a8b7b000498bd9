// Package elevate converts host types and expressions into the fact model.
//
// Type elevation folds well-known standard containers into built-in
// variants and breaks cycles with fact.RecursiveRef. The visited set is
// scoped to the current recursion stack: an entry is removed when its
// branch finishes, so siblings that mention the same type each get a full
// elevation.
package elevate

import (
	"fmt"
	"maps"

	"github.com/jward/gofacts/internal/fact"
	"github.com/jward/gofacts/internal/host"
)

// Elevator elevates nodes of one program snapshot.
type Elevator struct {
	prog  host.Program
	diag  host.Diagnostics
	known map[string]Known
}

// Option configures an Elevator.
type Option func(*Elevator)

// WithKnownTypes adds entries to the known-type table, replacing defaults
// with the same path.
func WithKnownTypes(m map[string]Known) Option {
	return func(e *Elevator) {
		maps.Copy(e.known, m)
	}
}

// New creates an Elevator over prog reporting to diag.
func New(prog host.Program, diag host.Diagnostics, opts ...Option) *Elevator {
	e := &Elevator{
		prog:  prog,
		diag:  diag,
		known: DefaultKnownTypes(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Program returns the snapshot the Elevator reads from.
func (e *Elevator) Program() host.Program { return e.prog }

// Location folds a declaration path into a fact.Location. Impl block
// markers become ImplBlockNumber; a second marker is fatal.
func (e *Elevator) Location(p host.DefPath) fact.Location {
	loc := fact.Location{CrateName: p.Crate, Path: make([]string, 0, len(p.Segments))}
	for _, seg := range p.Segments {
		if seg.Impl {
			if loc.ImplBlockNumber != nil {
				e.fatalf("deeply nested impl blocks are not supported: `%s`", p)
			}
			loc.ImplBlockNumber = fact.Impl(seg.Index)
			continue
		}
		loc.Path = append(loc.Path, seg.Name)
	}
	return loc
}

func (e *Elevator) warnf(format string, args ...any) {
	e.diag.Warn(fmt.Sprintf(format, args...))
}

func (e *Elevator) fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	e.diag.Fatal(msg)
	panic("elevate: diagnostics Fatal returned: " + msg)
}
