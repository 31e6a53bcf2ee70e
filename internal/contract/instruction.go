// Package contract parses the line-oriented `.lll` instruction language
// into an ordered instruction stream, per spec.md §4.D. It performs no
// semantic validation (residue bounds, chaperone existence) — that is the
// folding runtime's job.
package contract

// Instruction is a closed set of tagged variants; the runtime's step
// function performs a single type switch over this interface instead of
// runtime polymorphism, per spec.md §9's design notes.
type Instruction interface {
	instruction()
	Line() int
}

type base struct {
	line int
}

func (b base) Line() int { return b.line }

// Rotate proposes a torsional rotation of Degrees around Residue's torsion
// axis. DurationMS is passed to the external physics backend's request
// and is not otherwise interpreted by the runtime; span records do not
// carry it.
type Rotate struct {
	base
	Residue    int
	Degrees    float64
	DurationMS int
}

func (Rotate) instruction() {}

// ClashCheck explicitly invokes the ruleset's clash predicate.
type ClashCheck struct{ base }

func (ClashCheck) instruction() {}

// Commit pushes a checkpoint and finalizes the aggregate since the last
// commit.
type Commit struct{ base }

func (Commit) instruction() {}

// Rollback pops to the last checkpoint, restoring chain, counters, and RNG
// state atomically.
type Rollback struct{ base }

func (Rollback) instruction() {}

// SpanAlias labels subsequent spans, until the next alias or commit, with
// Name.
type SpanAlias struct {
	base
	Name string
}

func (SpanAlias) instruction() {}

// GhostMode forces (On=true) or stops forcing (On=false) all subsequent
// rotations to be recorded as ghost spans regardless of Metropolis
// acceptance.
type GhostMode struct {
	base
	On bool
}

func (GhostMode) instruction() {}

// DefineDomain names an inclusive residue range [Start, End] for later
// scoping/aggregation. Name may be empty.
type DefineDomain struct {
	base
	Name       string
	Start, End int
}

func (DefineDomain) instruction() {}

// RequireChaperone annotates the scope with a chaperone requirement that
// biases acceptance during spans carrying SpanLabel (or all subsequent
// spans, if SpanLabel is empty).
type RequireChaperone struct {
	base
	Name      string
	SpanLabel string
}

func (RequireChaperone) instruction() {}

// AddModification records an annotation-only post-translational
// modification against ResidueRef, per spec.md §9's resolved Open Question
// (annotation only, no mid-run parameter mutation).
type AddModification struct {
	base
	Kind       string
	ResidueRef int
}

func (AddModification) instruction() {}

// SetPhysicsLevel selects the physics backend dispatcher's fidelity level:
// "toy", "coarse", "gb", or "full".
type SetPhysicsLevel struct {
	base
	Level string
}

func (SetPhysicsLevel) instruction() {}

// PhysicsSpan toggles whether subsequent rotations are routed to the
// external physics backend (subject to the level set by SetPhysicsLevel).
type PhysicsSpan struct {
	base
	On bool
}

func (PhysicsSpan) instruction() {}
