// Package vm implements the mol virtual machine.
//
// This package contains:
//   - the Int, Float and Str value types and their operations
//   - a capacity-checked operand stack
//   - the fetch-decode-execute loop over a bytecode.Program
//
// A VM runs one program on one goroutine. Faults stop execution and are
// reported as a *Fault in the Outcome returned by Run.
package vm
