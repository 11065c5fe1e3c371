// Package internalerr defines the error taxonomy shared across the
// decision-evaluation core: one Kind enum plus sentinel errors rather
// than one Go type per failure mode.
package internalerr

import (
	"errors"
	"fmt"
)

// Kind tags an error with one of the taxonomy entries. Kinds are
// checked with errors.Is against the sentinels below, not by type
// assertion, so a single wrapped error can be both a ValidationError
// and carry a message specific to its call site.
type Kind int

const (
	// ValidationError marks bad input shape: weight out of range,
	// empty version content, traffic split not summing to 100, etc.
	ValidationError Kind = iota + 1
	// InvalidConfiguration marks an agent built with no evaluators or
	// a collaborator missing a required capability.
	InvalidConfiguration
	// NoEvaluations marks a decide() call that produced zero usable
	// evaluations after isolating evaluator faults.
	NoEvaluations
	// Parse marks a FEEL tokenizer/parser failure.
	Parse
	// TestNotRunning marks a variant assignment attempted against a
	// non-running A/B test.
	TestNotRunning
	// InvalidStatusTransition marks an A/B test state machine violation.
	InvalidStatusTransition
	// NotFound marks a reference to an unknown version or test.
	NotFound
)

func (k Kind) String() string {
	switch k {
	case ValidationError:
		return "ValidationError"
	case InvalidConfiguration:
		return "InvalidConfigurationError"
	case NoEvaluations:
		return "NoEvaluationsError"
	case Parse:
		return "ParseError"
	case TestNotRunning:
		return "TestNotRunningError"
	case InvalidStatusTransition:
		return "InvalidStatusTransitionError"
	case NotFound:
		return "NotFoundError"
	default:
		return "UnknownError"
	}
}

// sentinels, one per Kind, so callers can errors.Is(err, internalerr.ErrValidation).
var (
	ErrValidation             = errors.New("ValidationError")
	ErrInvalidConfiguration   = errors.New("InvalidConfigurationError")
	ErrNoEvaluations          = errors.New("NoEvaluationsError")
	ErrParse                  = errors.New("ParseError")
	ErrTestNotRunning         = errors.New("TestNotRunningError")
	ErrInvalidStatusTransition = errors.New("InvalidStatusTransitionError")
	ErrNotFound               = errors.New("NotFoundError")
)

func sentinelFor(k Kind) error {
	switch k {
	case ValidationError:
		return ErrValidation
	case InvalidConfiguration:
		return ErrInvalidConfiguration
	case NoEvaluations:
		return ErrNoEvaluations
	case Parse:
		return ErrParse
	case TestNotRunning:
		return ErrTestNotRunning
	case InvalidStatusTransition:
		return ErrInvalidStatusTransition
	case NotFound:
		return ErrNotFound
	default:
		return errors.New("UnknownError")
	}
}

// taggedError pairs a sentinel with a formatted message so both
// errors.Is(err, internalerr.ErrValidation) and err.Error() read well.
type taggedError struct {
	kind    Kind
	message string
}

func (e *taggedError) Error() string { return e.message }

func (e *taggedError) Unwrap() error { return sentinelFor(e.kind) }

func (e *taggedError) Kind() Kind { return e.kind }

// New builds a taxonomy error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) error {
	return &taggedError{kind: kind, message: fmt.Sprintf("%s: %s", kind, fmt.Sprintf(format, args...))}
}

// Is reports whether err was created with the given kind.
func Is(err error, kind Kind) bool {
	return errors.Is(err, sentinelFor(kind))
}

// ParsePosition is included in a Parse-kind error's message so callers
// can locate the offending character without re-scanning the source.
type ParsePosition struct {
	Pos  int
	Char rune
}

func (p ParsePosition) String() string {
	if p.Char == 0 {
		return fmt.Sprintf("pos %d", p.Pos)
	}
	return fmt.Sprintf("pos %d, char %q", p.Pos, p.Char)
}

// NewParseError builds a Parse-kind error carrying a position.
func NewParseError(pos int, ch rune, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return &taggedError{
		kind:    Parse,
		message: fmt.Sprintf("%s: %s (%s)", Parse, msg, ParsePosition{Pos: pos, Char: ch}),
	}
}
