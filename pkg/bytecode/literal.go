package bytecode

import (
	"math"
	"strconv"
	"strings"
)

// LiteralKind classifies an unquoted literal.
type LiteralKind int

const (
	LiteralInvalid LiteralKind = iota
	LiteralInt
	LiteralFloat
)

// String returns a human-readable name for LiteralKind.
func (k LiteralKind) String() string {
	switch k {
	case LiteralInt:
		return "int"
	case LiteralFloat:
		return "float"
	default:
		return "invalid"
	}
}

// Literal is a classified numeric literal. Only the field matching Kind is set.
type Literal struct {
	Kind  LiteralKind
	Int   int32
	Float float32
}

// IsIntegerText reports whether s is an optional '-' followed by one or more
// ASCII digits.
func IsIntegerText(s string) bool {
	digits := strings.TrimPrefix(s, "-")
	if digits == "" {
		return false
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return false
		}
	}
	return true
}

// ParseLiteral classifies s using the integer-before-float precedence shared
// by the assembler's PUSH operand and the VM's INPUT:
//
//   - integer text that fits in an int32 is LiteralInt
//   - text that parses completely as a float, contains a '.', and is finite
//     as a float32 is LiteralFloat
//   - everything else is LiteralInvalid
//
// Integer text that overflows int32 falls through to the float rule, which it
// fails for lack of a decimal point.
func ParseLiteral(s string) Literal {
	if IsIntegerText(s) {
		if n, err := strconv.ParseInt(s, 10, 32); err == nil {
			return Literal{Kind: LiteralInt, Int: int32(n)}
		}
	}
	if !strings.Contains(s, ".") {
		return Literal{}
	}
	f, err := strconv.ParseFloat(s, 32)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return Literal{}
	}
	return Literal{Kind: LiteralFloat, Float: float32(f)}
}
