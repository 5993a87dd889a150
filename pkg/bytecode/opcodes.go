package bytecode

import "fmt"

// Opcode identifies one instruction. It is stored in the instruction stream
// as a 4-byte little-endian tag.
type Opcode uint32

// Opcode values are fixed by the file format. They follow the numbering of
// the C mol toolchain so .mb files stay interchangeable.
const (
	OpHalt     Opcode = 0  // Stop execution
	OpPush     Opcode = 1  // Push literal: OpPush <type:u32> <payload>
	OpAdd      Opcode = 2  // Pop two, push sum
	OpSub      Opcode = 3  // Pop two, push difference (a - b where b is TOS)
	OpMul      Opcode = 4  // Pop two, push product
	OpDiv      Opcode = 5  // Pop two, push quotient
	OpPrint    Opcode = 6  // Pop and print with newline
	OpPrintC   Opcode = 7  // Pop and print without newline
	OpSet      Opcode = 8  // Pop into register: OpSet <reg:u8>
	OpGet      Opcode = 9  // Push register: OpGet <reg:u8>
	OpInput    Opcode = 10 // Read a line, push classified value
	OpConcat   Opcode = 11 // Pop two strings, push a+b
	OpStrLen   Opcode = 12 // Pop string, push length
	OpEq       Opcode = 13 // Pop two, push 1 if equal
	OpGt       Opcode = 14 // Pop two, push 1 if a > b
	OpLt       Opcode = 15 // Pop two, push 1 if a < b
	OpJmp      Opcode = 16 // Unconditional jump: OpJmp <offset:i32>
	OpJz       Opcode = 17 // Pop, jump if numeric zero: OpJz <offset:i32>
	OpToString Opcode = 18 // Pop number, push its string form
	OpDup      Opcode = 19 // Duplicate top of stack
	OpSwap     Opcode = 20 // Swap top two stack elements
	OpPop      Opcode = 21 // Discard top of stack
)

// OpcodeSize is the encoded size of an opcode tag.
const OpcodeSize = 4

// VariableOperands marks an opcode whose operand length depends on its payload.
const VariableOperands = -1

// OpcodeInfo provides metadata about each opcode for the assembler,
// disassembler and language server.
type OpcodeInfo struct {
	Name       string // Mnemonic as written in source
	StackPop   int    // How many values popped from stack
	StackPush  int    // How many values pushed to stack
	OperandLen int    // Operand bytes after the tag (VariableOperands for PUSH)
	Summary    string // One-line description
}

// opcodeInfoTable is indexed by opcode value.
var opcodeInfoTable = [...]OpcodeInfo{
	OpHalt:     {"HALT", 0, 0, 0, "Stop the program."},
	OpPush:     {"PUSH", 0, 1, VariableOperands, "Push an integer, float or quoted string literal."},
	OpAdd:      {"ADD", 2, 1, 0, "Add the top two numbers of the same type."},
	OpSub:      {"SUB", 2, 1, 0, "Subtract the top number from the one below it."},
	OpMul:      {"MUL", 2, 1, 0, "Multiply the top two numbers of the same type."},
	OpDiv:      {"DIV", 2, 1, 0, "Divide the second number by the top number. Division by zero is fatal."},
	OpPrint:    {"PRINT", 1, 0, 0, "Pop a value and print it followed by a newline."},
	OpPrintC:   {"PRINTC", 1, 0, 0, "Pop a value and print it without a newline."},
	OpSet:      {"SET", 1, 0, 1, "Pop a value into a register A-Z."},
	OpGet:      {"GET", 0, 1, 1, "Push a copy of a register A-Z."},
	OpInput:    {"INPUT", 0, 1, 0, "Read a line and push it as an integer, float or string."},
	OpConcat:   {"CONCAT", 2, 1, 0, "Join two strings, bottom first. The result may not exceed 255 bytes."},
	OpStrLen:   {"STRLEN", 1, 1, 0, "Replace a string with its byte length."},
	OpEq:       {"EQ", 2, 1, 0, "Push 1 if the top two values are equal, else 0."},
	OpGt:       {"GT", 2, 1, 0, "Push 1 if the second value is greater than the top, else 0."},
	OpLt:       {"LT", 2, 1, 0, "Push 1 if the second value is less than the top, else 0."},
	OpJmp:      {"JMP", 0, 0, 4, "Jump to a label."},
	OpJz:       {"JZ", 1, 0, 4, "Pop a value and jump to a label if it is a numeric zero."},
	OpToString: {"TOSTRING", 1, 1, 0, "Convert an integer or float to a string."},
	OpDup:      {"DUP", 1, 2, 0, "Duplicate the top of the stack."},
	OpSwap:     {"SWAP", 2, 2, 0, "Exchange the top two values."},
	OpPop:      {"POP", 1, 0, 0, "Discard the top of the stack."},
}

var opcodesByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeInfoTable))
	for i, info := range opcodeInfoTable {
		m[info.Name] = Opcode(i)
	}
	return m
}()

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if op.Valid() {
		return opcodeInfoTable[op]
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(%d)", uint32(op))}
}

// LookupOpcode maps a mnemonic to its opcode. Matching is case-sensitive.
func LookupOpcode(name string) (Opcode, bool) {
	op, ok := opcodesByName[name]
	return op, ok
}

// Valid reports whether op is one of the defined opcodes.
func (op Opcode) Valid() bool {
	return uint64(op) < uint64(len(opcodeInfoTable))
}

// String returns the mnemonic of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandLen returns the number of operand bytes for this opcode,
// or VariableOperands for PUSH.
func (op Opcode) OperandLen() int {
	return GetOpcodeInfo(op).OperandLen
}

// IsJump returns true if this opcode carries a relative jump offset.
func (op Opcode) IsJump() bool {
	return op == OpJmp || op == OpJz
}

// TakesRegister returns true if this opcode carries a register index.
func (op Opcode) TakesRegister() bool {
	return op == OpSet || op == OpGet
}

// AllOpcodes returns every defined opcode in numeric order.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, len(opcodeInfoTable))
	for i := range opcodeInfoTable {
		opcodes[i] = Opcode(i)
	}
	return opcodes
}

// TypeTag identifies the payload type of a PUSH instruction.
type TypeTag uint32

const (
	TypeInt    TypeTag = 0
	TypeString TypeTag = 1
	TypeFloat  TypeTag = 2
)

// String returns a human-readable name for TypeTag.
func (t TypeTag) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeString:
		return "string"
	case TypeFloat:
		return "float"
	default:
		return fmt.Sprintf("TypeTag(%d)", uint32(t))
	}
}

// MaxStringLen is the longest string a value or literal may hold.
const MaxStringLen = 255

// RegisterCount is the number of letter-addressed registers.
const RegisterCount = 26

// RegisterName returns the letter for a register index, or "?" if out of range.
func RegisterName(idx byte) string {
	if int(idx) >= RegisterCount {
		return "?"
	}
	return string(rune('A' + idx))
}

// RegisterIndex parses a single-letter register name, folding lowercase to
// uppercase.
func RegisterIndex(name string) (byte, bool) {
	if len(name) != 1 {
		return 0, false
	}
	c := name[0]
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	if c < 'A' || c > 'Z' {
		return 0, false
	}
	return c - 'A', true
}
