package vm

import (
	"cmp"
	"fmt"
	"strings"

	"github.com/chazu/mol/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Value: Int | Float | Str
// ---------------------------------------------------------------------------

// Value is a dynamically typed VM value. The set of implementations is
// closed: Int, Float and Str.
type Value interface {
	// Type returns the value's type tag as encoded in PUSH.
	Type() bytecode.TypeTag

	// String renders the value the way PRINT does.
	String() string

	isValue()
}

// Int is a 32-bit signed integer. Arithmetic wraps on overflow.
type Int int32

// Float is an IEEE-754 single.
type Float float32

// Str is a byte string of at most bytecode.MaxStringLen bytes.
type Str string

func (Int) Type() bytecode.TypeTag   { return bytecode.TypeInt }
func (Float) Type() bytecode.TypeTag { return bytecode.TypeFloat }
func (Str) Type() bytecode.TypeTag   { return bytecode.TypeString }

func (v Int) String() string   { return bytecode.FormatInt(int32(v)) }
func (v Float) String() string { return bytecode.FormatFloat(float32(v)) }
func (v Str) String() string   { return string(v) }

func (Int) isValue()   {}
func (Float) isValue() {}
func (Str) isValue()   {}

// Bool converts a comparison result to the Int 1 or 0.
func Bool(b bool) Int {
	if b {
		return 1
	}
	return 0
}

// IsZero reports whether v is a numeric zero. Strings are never zero.
func IsZero(v Value) bool {
	switch x := v.(type) {
	case Int:
		return x == 0
	case Float:
		return x == 0
	}
	return false
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

func mismatch(op bytecode.Opcode, a, b Value) error {
	return fmt.Errorf("%w: %s on %s and %s", ErrIncompatibleTypes, op, a.Type(), b.Type())
}

// Arith applies ADD, SUB, MUL or DIV. Both operands must be Int or both Float.
func Arith(op bytecode.Opcode, a, b Value) (Value, error) {
	switch x := a.(type) {
	case Int:
		y, ok := b.(Int)
		if !ok {
			return nil, mismatch(op, a, b)
		}
		switch op {
		case bytecode.OpAdd:
			return x + y, nil
		case bytecode.OpSub:
			return x - y, nil
		case bytecode.OpMul:
			return x * y, nil
		case bytecode.OpDiv:
			if y == 0 {
				return nil, ErrDivisionByZero
			}
			return x / y, nil
		}

	case Float:
		y, ok := b.(Float)
		if !ok {
			return nil, mismatch(op, a, b)
		}
		switch op {
		case bytecode.OpAdd:
			return x + y, nil
		case bytecode.OpSub:
			return x - y, nil
		case bytecode.OpMul:
			return x * y, nil
		case bytecode.OpDiv:
			if y == 0 {
				return nil, ErrDivisionByZero
			}
			return x / y, nil
		}

	default:
		return nil, mismatch(op, a, b)
	}
	return nil, fmt.Errorf("%w: %s is not arithmetic", ErrUnknownOpcode, op)
}

// Compare applies EQ, GT or LT. Operands must share a type; strings compare
// bytewise.
func Compare(op bytecode.Opcode, a, b Value) (Int, error) {
	if a.Type() != b.Type() {
		return 0, mismatch(op, a, b)
	}

	var c int
	switch x := a.(type) {
	case Int:
		c = cmp.Compare(x, b.(Int))
	case Float:
		y := b.(Float)
		// NaN is unordered: EQ, GT and LT are all false.
		switch op {
		case bytecode.OpEq:
			return Bool(x == y), nil
		case bytecode.OpGt:
			return Bool(x > y), nil
		case bytecode.OpLt:
			return Bool(x < y), nil
		}
	case Str:
		c = strings.Compare(string(x), string(b.(Str)))
	}

	switch op {
	case bytecode.OpEq:
		return Bool(c == 0), nil
	case bytecode.OpGt:
		return Bool(c > 0), nil
	case bytecode.OpLt:
		return Bool(c < 0), nil
	}
	return 0, fmt.Errorf("%w: %s is not a comparison", ErrUnknownOpcode, op)
}

// Concat joins two strings, bottom operand first.
func Concat(a, b Value) (Str, error) {
	x, ok1 := a.(Str)
	y, ok2 := b.(Str)
	if !ok1 || !ok2 {
		return "", mismatch(bytecode.OpConcat, a, b)
	}
	if len(x)+len(y) > bytecode.MaxStringLen {
		return "", fmt.Errorf("%w: CONCAT result is %d bytes", ErrStringTooLong, len(x)+len(y))
	}
	return x + y, nil
}

// StrLen returns the byte length of a string.
func StrLen(v Value) (Int, error) {
	s, ok := v.(Str)
	if !ok {
		return 0, fmt.Errorf("%w: STRLEN on %s", ErrIncompatibleTypes, v.Type())
	}
	return Int(len(s)), nil
}

// ToString renders a number as a string.
func ToString(v Value) (Str, error) {
	switch v.(type) {
	case Int, Float:
		return Str(v.String()), nil
	}
	return "", fmt.Errorf("%w: TOSTRING on %s", ErrIncompatibleTypes, v.Type())
}

// ParseInput classifies a line read by INPUT: Int, then Float, then Str.
// Strings are truncated to bytecode.MaxStringLen bytes.
func ParseInput(line string) Value {
	lit := bytecode.ParseLiteral(line)
	switch lit.Kind {
	case bytecode.LiteralInt:
		return Int(lit.Int)
	case bytecode.LiteralFloat:
		return Float(lit.Float)
	}
	if len(line) > bytecode.MaxStringLen {
		line = line[:bytecode.MaxStringLen]
	}
	return Str(line)
}
