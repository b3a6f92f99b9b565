package twigx

import (
	"fmt"

	"github.com/fatih/color"
	"golang.org/x/xerrors"
)

// Kind classifies a failure by the stage that raised it.
type Kind int

const (
	KindLoad Kind = iota
	KindParse
	KindResolve
	KindLookup
	KindType
	KindCall
)

func (k Kind) String() string {
	switch k {
	case KindLoad:
		return "LoadError"
	case KindParse:
		return "ParseError"
	case KindResolve:
		return "ResolveError"
	case KindLookup:
		return "LookupError"
	case KindType:
		return "TypeError"
	case KindCall:
		return "CallError"
	default:
		return "Error"
	}
}

// Error is the engine's error taxonomy. It carries a Kind, a message,
// an optional template name, and wraps its cause via xerrors so callers
// can xerrors.As/Is against it without string matching.
type Error struct {
	Kind     Kind
	Template string
	Msg      string
	Cause    error
}

func (e *Error) Error() string {
	if e.Template != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s in %q: %s: %v", e.Kind, e.Template, e.Msg, e.Cause)
		}
		return fmt.Sprintf("%s in %q: %s", e.Kind, e.Template, e.Msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// newError builds an *Error, wrapping cause (if any) via xerrors so it
// participates in the %w chain even though Error carries its own field.
func newError(kind Kind, template, msg string, cause error) *Error {
	if cause != nil {
		cause = xerrors.Errorf("%w", cause)
	}
	return &Error{Kind: kind, Template: template, Msg: msg, Cause: cause}
}

func loadErrorf(template, format string, args ...any) *Error {
	return newError(KindLoad, template, fmt.Sprintf(format, args...), nil)
}

func parseErrorf(template, format string, args ...any) *Error {
	return newError(KindParse, template, fmt.Sprintf(format, args...), nil)
}

func resolveErrorf(template, format string, args ...any) *Error {
	return newError(KindResolve, template, fmt.Sprintf(format, args...), nil)
}

func lookupErrorf(format string, args ...any) *Error {
	return newError(KindLookup, "", fmt.Sprintf(format, args...), nil)
}

func typeErrorf(format string, args ...any) *Error {
	return newError(KindType, "", fmt.Sprintf(format, args...), nil)
}

func callErrorf(format string, args ...any) *Error {
	return newError(KindCall, "", fmt.Sprintf(format, args...), nil)
}

// KindOf reports the Kind of err if it (or something it wraps) is a
// *twigx.Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if xerrors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// FormatError renders a one-line diagnostic for err, colorized when
// colored is true. Modeled on pgavlin-yomlette's parser.FormatError.
func FormatError(err error, colored bool) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !xerrors.As(err, &e) {
		return err.Error()
	}
	if !colored {
		return e.Error()
	}
	kindFn := color.New(color.Bold, color.FgHiRed).SprintFunc()
	nameFn := color.New(color.FgHiYellow).SprintFunc()
	msg := kindFn(e.Kind.String())
	if e.Template != "" {
		msg += " in " + nameFn(fmt.Sprintf("%q", e.Template))
	}
	msg += ": " + e.Msg
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}
