// Package bytecode defines the binary contract shared by the mol assembler
// and virtual machine.
//
// The format is designed for:
//   - Simple decoding (fixed 4-byte opcode tags, fixed operand layouts)
//   - Compatibility with files produced by the C mol toolchain on
//     little-endian hosts
//   - A stable on-disk layout with no versioning surface
//
// # Program Layout
//
// A program file is a 4-byte little-endian length followed by that many
// bytes of instructions:
//
//	[code_len:i32] [code...]
//
// Each instruction is a 4-byte opcode tag followed by its operands:
//
//	PUSH     [tag:u32] [int32 | float32 | len:u8 bytes...]
//	SET/GET  [register:u8]
//	JMP/JZ   [offset:i32]   relative to the end of the offset field
//	others   no operands
//
// # Components
//
//   - Opcodes: the 22 instructions, their stack effects and operand sizes
//
//   - Writer/Reader: little-endian, bounds-checked encoding of each field.
//     Nothing in this package reinterprets raw memory.
//
//   - Literals: classification of numeric text, shared by PUSH operands in
//     the assembler and INPUT in the VM
//
//   - DebugInfo: an optional CBOR sidecar (program.mb.dbg) holding labels and
//     a source map. The program file never changes when debug info is on.
//
//   - Disassembler: a listing of a program, annotated with debug info when
//     available
package bytecode
