package dispatch

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	// ErrUnknownCommand matches an [*UnknownCommandError].
	ErrUnknownCommand = errors.New("unknown command")

	// ErrIncomplete means the input ended at a node with no action.
	ErrIncomplete = errors.New("incomplete command")
	// ErrUnexpected means no child matches the next token.
	ErrUnexpected = errors.New("unexpected argument")
	// ErrBadInt means an integer argument didn't parse.
	ErrBadInt = errors.New("invalid integer")
	// ErrBelowMin means an integer argument was too small.
	ErrBelowMin = errors.New("integer too small")
	// ErrAboveMax means an integer argument was too large.
	ErrAboveMax = errors.New("integer too large")

	// ErrDuplicate means a command with the same name is registered.
	ErrDuplicate = errors.New("command already registered")
	// ErrGreedyNotLast means a greedy argument has children.
	ErrGreedyNotLast = errors.New("greedy argument must be last")
	// ErrMultipleArguments means a node has more than one argument child.
	ErrMultipleArguments = errors.New("node has multiple argument children")
	// ErrDuplicateLiteral means a node has two literal children with the
	// same name.
	ErrDuplicateLiteral = errors.New("duplicate literal")
	// ErrNotLiteral means a registered root is an argument node.
	ErrNotLiteral = errors.New("command root must be a literal")
)

// UnknownCommandError is returned when the first token names no command.
type UnknownCommandError struct {
	Name string
	// Suggestions are registered names similar to Name, best first.
	Suggestions []string
}

func (e *UnknownCommandError) Error() string {
	return "unknown command " + e.Name
}

func (e *UnknownCommandError) Is(err error) bool {
	return err == ErrUnknownCommand
}

// SyntaxError is returned when input does not fit the command's tree.
type SyntaxError struct {
	// Command is the name of the matched command.
	Command string
	// Input is the trimmed input.
	Input string
	// Cursor is the byte offset in Input where parsing failed.
	Cursor int
	// Path is the literal and argument names matched before the failure.
	Path []string
	Err  error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%v at position %d", e.Err, e.Cursor)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// Context returns the input with a caret on the next line marking where
// parsing failed.
func (e *SyntaxError) Context() string {
	c := min(max(e.Cursor, 0), len(e.Input))
	return e.Input + "\n" + strings.Repeat(" ", utf8.RuneCountInString(e.Input[:c])) + "^"
}

// HandlerError is returned when an action fails or panics.
type HandlerError struct {
	Command string
	Input   string
	// Err is the error the action returned. It is nil if the action panicked.
	Err error
	// Panic is the recovered value if the action panicked.
	Panic any
	Stack []byte
}

func (e *HandlerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("command %s panicked: %v", e.Command, e.Panic)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
