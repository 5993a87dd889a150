package vm

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/mol/pkg/bytecode"
)

// Runtime errors. A faulted run reports a *Fault wrapping one of these.
var (
	ErrStackOverflow     = errors.New("stack overflow")
	ErrStackUnderflow    = errors.New("stack underflow")
	ErrIncompatibleTypes = errors.New("incompatible types")
	ErrDivisionByZero    = errors.New("division by zero")
	ErrInvalidRegister   = errors.New("invalid register")
	ErrStringTooLong     = errors.New("string too long")
	ErrUnknownOpcode     = errors.New("unknown opcode")
	ErrUnknownType       = errors.New("unknown value type")
	ErrInput             = errors.New("input failure")
	ErrOutput            = errors.New("output failure")
	ErrTruncated         = errors.New("truncated instruction")
	ErrJumpOutOfRange    = errors.New("jump out of range")
)

// noOpcode marks a fault raised before an opcode could be decoded.
const noOpcode = bytecode.Opcode(math.MaxUint32)

// Fault describes a fatal runtime error.
type Fault struct {
	Op     bytecode.Opcode // Instruction being executed
	Offset int             // Offset of the instruction's opcode
	Line   uint32          // Source line, 0 when no debug info is loaded
	Column uint32
	Err    error
}

func (f *Fault) Error() string {
	where := fmt.Sprintf("%04X", f.Offset)
	if f.Line > 0 {
		where = fmt.Sprintf("%s (line %d:%d)", where, f.Line, f.Column)
	}
	if f.Op == noOpcode {
		return fmt.Sprintf("runtime error at %s: %v", where, f.Err)
	}
	return fmt.Sprintf("runtime error at %s in %s: %v", where, f.Op, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Status is the way a run ended.
type Status int

const (
	Completed Status = iota // HALT or end of code
	Faulted                 // stopped by a runtime error
)

func (s Status) String() string {
	switch s {
	case Completed:
		return "completed"
	case Faulted:
		return "faulted"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Outcome is the result of Run.
type Outcome struct {
	Status Status
	Halted bool   // true when HALT ran, false when execution fell off the end
	Steps  uint64 // instructions dispatched
	Fault  *Fault // set when Status is Faulted
}
