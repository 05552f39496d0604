package dispatch

import (
	"fmt"
	"strconv"
)

// ArgType parses the input bound to an argument node.
type ArgType interface {
	// Parse converts the input for the argument.
	// Errors should wrap one of the sentinel errors in this package.
	Parse(token string) (any, error)
	// Greedy reports whether the argument consumes the rest of the input.
	Greedy() bool
	// String describes the type for diagnostics.
	String() string
}

type word struct{}

// Word is a single whitespace-delimited token.
func Word() ArgType { return word{} }

func (word) Parse(token string) (any, error) { return token, nil }
func (word) Greedy() bool                    { return false }
func (word) String() string                  { return "word" }

type greedy struct{}

// Greedy is all remaining input, including spaces, with trailing space
// removed. A greedy argument must be the last node on its path.
func Greedy() ArgType { return greedy{} }

func (greedy) Parse(token string) (any, error) { return token, nil }
func (greedy) Greedy() bool                    { return true }
func (greedy) String() string                  { return "greedy" }

type integer struct {
	min, max       int64
	hasMin, hasMax bool
}

// Int is a base 10 integer.
func Int() ArgType { return integer{} }

// IntMin is a base 10 integer no less than lo.
func IntMin(lo int64) ArgType { return integer{min: lo, hasMin: true} }

// IntRange is a base 10 integer in the closed interval [lo, hi].
func IntRange(lo, hi int64) ArgType {
	if lo > hi {
		panic("dispatch: integer range with lo > hi")
	}
	return integer{min: lo, max: hi, hasMin: true, hasMax: true}
}

func (t integer) Parse(token string) (any, error) {
	n, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBadInt, token)
	}
	if t.hasMin && n < t.min {
		return nil, fmt.Errorf("%w: %d is less than %d", ErrBelowMin, n, t.min)
	}
	if t.hasMax && n > t.max {
		return nil, fmt.Errorf("%w: %d is greater than %d", ErrAboveMax, n, t.max)
	}
	return n, nil
}

func (integer) Greedy() bool { return false }

func (t integer) String() string {
	switch {
	case t.hasMin && t.hasMax:
		return fmt.Sprintf("integer in [%d, %d]", t.min, t.max)
	case t.hasMin:
		return fmt.Sprintf("integer at least %d", t.min)
	default:
		return "integer"
	}
}
