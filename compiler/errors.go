package compiler

import (
	"errors"
	"strings"
)

// Compile errors. Every failure returned by the assembler is an *Error that
// wraps one of these.
var (
	ErrUnknownToken    = errors.New("unknown token")
	ErrInvalidLiteral  = errors.New("invalid literal")
	ErrMalformedString = errors.New("malformed string")
	ErrInvalidVariable = errors.New("invalid variable")
	ErrLabelNotFound   = errors.New("label not found")
	ErrMissingOperand  = errors.New("missing operand")
	ErrTooManyLabels   = errors.New("too many labels")
	ErrTooManyPatches  = errors.New("too many patches")
	ErrProgramTooLarge = errors.New("program too large")
	ErrTokenTooLong    = errors.New("token too long")
	ErrEmptyLabel      = errors.New("empty label name")
)

// Error is a compile error tied to a source position.
type Error struct {
	File   string   // Source name, may be empty
	Pos    Position // Where the offending token starts
	Token  string   // The offending token, may be empty
	Detail string   // Extra context, may be empty
	Err    error    // One of the Err* sentinels
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.File != "" {
		sb.WriteString(e.File)
		sb.WriteString(":")
	}
	sb.WriteString(e.Pos.String())
	sb.WriteString(": ")
	sb.WriteString(e.Err.Error())
	if e.Detail != "" {
		sb.WriteString(" (")
		sb.WriteString(e.Detail)
		sb.WriteString(")")
	}
	if e.Token != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Token)
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Warning is a non-fatal diagnostic.
type Warning struct {
	Pos     Position
	Message string
}

func (w Warning) String() string {
	return w.Pos.String() + ": " + w.Message
}
