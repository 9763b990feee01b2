// Package rangererr defines the error taxonomy used across the tree-transform
// engine (selector, leaf analysis, job execution, pipeline orchestration).
package rangererr

import "fmt"

// Kind classifies a RangerError per the engine's error taxonomy.
type Kind int

const (
	// KindInputUnavailable means the input file is absent or not openable.
	KindInputUnavailable Kind = iota
	// KindInputCorrupt means the file opens but self-reports damage.
	KindInputCorrupt
	// KindPathMissing means a directory or tree name is not present in the input file.
	KindPathMissing
	// KindUnknownLeafType means a leaf's primitive type code is outside the closed set.
	KindUnknownLeafType
	// KindAlignmentAmbiguous means more than one dimension leaf is involved in a
	// single flatten/BPV job. Recovered locally with a deterministic fallback.
	KindAlignmentAmbiguous
	// KindFormulaUnbound means an identifier in a formula has no matching leaf.
	KindFormulaUnbound
	// KindUnspecified wraps a collaborator failure that doesn't map onto one
	// of the taxonomy's named categories.
	KindUnspecified
)

func (k Kind) String() string {
	switch k {
	case KindInputUnavailable:
		return "InputUnavailable"
	case KindInputCorrupt:
		return "InputCorrupt"
	case KindPathMissing:
		return "PathMissing"
	case KindUnknownLeafType:
		return "UnknownLeafType"
	case KindAlignmentAmbiguous:
		return "AlignmentAmbiguous"
	case KindFormulaUnbound:
		return "FormulaUnbound"
	case KindUnspecified:
		return "Unspecified"
	default:
		return "Unknown"
	}
}

// Fatal reports whether errors of this kind abort the run (§7).
// AlignmentAmbiguous is recovered locally; FormulaUnbound surfaces whatever
// diagnostic the external evaluator produced but does not itself abort Run.
func (k Kind) Fatal() bool {
	switch k {
	case KindInputUnavailable, KindInputCorrupt, KindPathMissing, KindUnknownLeafType:
		return true
	default:
		return false
	}
}

// RangerError is a structured, contextual engine error.
type RangerError struct {
	Kind    Kind
	Context string
	Cause   error
}

// Error implements the error interface.
func (e *RangerError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Context)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Context, e.Cause)
}

// Unwrap provides compatibility with errors.Unwrap() / errors.As().
func (e *RangerError) Unwrap() error {
	return e.Cause
}

// New creates a RangerError of the given kind.
func New(kind Kind, context string, cause error) *RangerError {
	return &RangerError{Kind: kind, Context: context, Cause: cause}
}

// Wrap creates a contextual error without a specific taxonomy kind, for
// collaborators (e.g. the tree-file library) whose failures don't map
// cleanly onto §7's categories.
func Wrap(context string, cause error) error {
	if cause == nil {
		return nil
	}
	return &RangerError{Kind: KindUnspecified, Context: context, Cause: cause}
}
