package traversal

import "errors"

// Errors returned while building, compiling or executing a traversal.
// They are wrapped with context; check them with errors.Is.
var (
	// ErrValidation reports a merge map with a disallowed key or value, or an
	// on-create map that contradicts the merge map. Raised before any write.
	ErrValidation = errors.New("validation error")

	// ErrResolution reports an edge endpoint that could not be resolved to a
	// vertex present in the store.
	ErrResolution = errors.New("resolution error")

	// ErrCreatePrecondition reports a create map missing a required key.
	ErrCreatePrecondition = errors.New("create precondition failed")

	// ErrStepNotFound reports a step graph operation against a missing step
	// or an unknown label.
	ErrStepNotFound = errors.New("step not found")

	// ErrDegenerateUnion reports a union with no sub-traversals.
	ErrDegenerateUnion = errors.New("union has no sub-traversals")

	// ErrDuplicateLabel reports a label already bound to another step.
	ErrDuplicateLabel = errors.New("duplicate label")

	// ErrReservedLabel reports a user label using the reserved prefix.
	ErrReservedLabel = errors.New("reserved label")

	// ErrBackwardJump reports a branch targeting a step before itself.
	ErrBackwardJump = errors.New("branch target precedes branch step")

	// ErrNotLinear reports a step left in a linear traversal that only
	// standard execution can run.
	ErrNotLinear = errors.New("traversal is not linear")

	// ErrNoValue reports a sub-traversal that produced nothing.
	ErrNoValue = errors.New("sub-traversal produced no value")

	// ErrNoStore reports a merge executed without a graph store.
	ErrNoStore = errors.New("no graph store configured")

	// ErrUnknownStepKind reports a step kind the executor cannot run.
	ErrUnknownStepKind = errors.New("unknown step kind")

	// errYielded is returned up the pull chain after a branch step moved a
	// traverser into a later step's outbox, so callers re-check their own.
	errYielded = errors.New("traverser moved by branch")
)
