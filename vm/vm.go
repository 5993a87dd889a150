package vm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/mol/pkg/bytecode"
)

// DefaultPrompt is written before INPUT reads a line.
const DefaultPrompt = "Input: "

// Options configures a VM.
type Options struct {
	// StackSize is the operand stack capacity. Zero means DefaultStackSize.
	StackSize int

	// Prompt is written to the output before every INPUT. Empty disables it.
	Prompt string

	// Trace logs every dispatched instruction at debug level.
	Trace bool

	// Debug, when set, attaches source positions to faults and labels to traces.
	Debug *bytecode.DebugInfo

	// Logger defaults to the "mol.vm" logger.
	Logger commonlog.Logger
}

// DefaultOptions returns the standard VM configuration.
func DefaultOptions() Options {
	return Options{
		StackSize: DefaultStackSize,
		Prompt:    DefaultPrompt,
	}
}

// VM executes one program. It is single-threaded and not reusable across
// programs; create a new VM per run.
type VM struct {
	code      *bytecode.Reader
	stack     *Stack
	registers [bytecode.RegisterCount]Value

	in  *bufio.Reader
	out *bufio.Writer

	opts  Options
	log   commonlog.Logger
	steps uint64
}

// New creates a VM for prog reading INPUT lines from in and writing PRINT
// output to out. Registers start as empty strings.
func New(prog *bytecode.Program, in io.Reader, out io.Writer, opts Options) *VM {
	log := opts.Logger
	if log == nil {
		log = commonlog.GetLogger("mol.vm")
	}
	m := &VM{
		code:  bytecode.NewReader(prog.Code),
		stack: NewStack(opts.StackSize),
		in:    bufio.NewReader(in),
		out:   bufio.NewWriter(out),
		opts:  opts,
		log:   log,
	}
	for i := range m.registers {
		m.registers[i] = Str("")
	}
	return m
}

// Register returns the value held in register idx (0 = A).
func (m *VM) Register(idx int) Value {
	if idx < 0 || idx >= len(m.registers) {
		return nil
	}
	return m.registers[idx]
}

// Stack returns the operand stack.
func (m *VM) Stack() *Stack {
	return m.stack
}

// errHalt stops the loop after HALT.
var errHalt = errors.New("halt")

// Run executes until HALT, the end of the code, or a fault. A fault is
// reported both in the Outcome and as the returned error.
func (m *VM) Run() (Outcome, error) {
	for !m.code.AtEnd() {
		start := m.code.Pos()
		op, err := m.code.ReadOp()
		if err != nil {
			return m.fail(noOpcode, start, fmt.Errorf("%w: %v", ErrTruncated, err))
		}

		if m.opts.Trace {
			m.trace(start)
		}
		m.steps++

		err = m.step(op)
		if errors.Is(err, errHalt) {
			return m.finish(true)
		}
		if err != nil {
			return m.fail(op, start, err)
		}
	}
	return m.finish(false)
}

func (m *VM) finish(halted bool) (Outcome, error) {
	out := Outcome{Status: Completed, Halted: halted, Steps: m.steps}
	if err := m.out.Flush(); err != nil {
		return m.fail(noOpcode, m.code.Pos(), fmt.Errorf("%w: %v", ErrOutput, err))
	}
	m.log.Debugf("completed after %d steps", m.steps)
	return out, nil
}

func (m *VM) fail(op bytecode.Opcode, offset int, err error) (Outcome, error) {
	// Output produced before the fault is still delivered.
	_ = m.out.Flush()

	f := &Fault{Op: op, Offset: offset, Err: err}
	if m.opts.Debug != nil {
		f.Line, f.Column = m.opts.Debug.GetSourceLocation(uint32(offset))
	}
	m.log.Debugf("%s after %d steps", f, m.steps)
	return Outcome{Status: Faulted, Steps: m.steps, Fault: f}, f
}

func (m *VM) trace(offset int) {
	text, _, err := bytecode.DisassembleInstruction(m.code.Bytes(), offset, m.opts.Debug)
	if err != nil {
		text = err.Error()
	}
	m.log.Debugf("%04X  %-30s stack=%d", offset, text, m.stack.Len())
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

func (m *VM) step(op bytecode.Opcode) error {
	switch op {
	case bytecode.OpHalt:
		return errHalt

	case bytecode.OpPush:
		v, err := m.readValue()
		if err != nil {
			return err
		}
		return m.stack.Push(v)

	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv:
		a, b, err := m.stack.Pop2()
		if err != nil {
			return err
		}
		r, err := Arith(op, a, b)
		if err != nil {
			return err
		}
		return m.stack.Push(r)

	case bytecode.OpPrint, bytecode.OpPrintC:
		v, err := m.stack.Pop()
		if err != nil {
			return err
		}
		m.out.WriteString(v.String())
		if op == bytecode.OpPrint {
			m.out.WriteByte('\n')
		}
		// Flushed per instruction so output survives an interrupted run.
		if err := m.out.Flush(); err != nil {
			return fmt.Errorf("%w: %v", ErrOutput, err)
		}
		return nil

	case bytecode.OpSet:
		idx, err := m.readRegister()
		if err != nil {
			return err
		}
		v, err := m.stack.Pop()
		if err != nil {
			return err
		}
		m.registers[idx] = v
		return nil

	case bytecode.OpGet:
		idx, err := m.readRegister()
		if err != nil {
			return err
		}
		return m.stack.Push(m.registers[idx])

	case bytecode.OpInput:
		v, err := m.input()
		if err != nil {
			return err
		}
		return m.stack.Push(v)

	case bytecode.OpConcat:
		a, b, err := m.stack.Pop2()
		if err != nil {
			return err
		}
		r, err := Concat(a, b)
		if err != nil {
			return err
		}
		return m.stack.Push(r)

	case bytecode.OpStrLen:
		v, err := m.stack.Pop()
		if err != nil {
			return err
		}
		n, err := StrLen(v)
		if err != nil {
			return err
		}
		return m.stack.Push(n)

	case bytecode.OpEq, bytecode.OpGt, bytecode.OpLt:
		a, b, err := m.stack.Pop2()
		if err != nil {
			return err
		}
		r, err := Compare(op, a, b)
		if err != nil {
			return err
		}
		return m.stack.Push(r)

	case bytecode.OpToString:
		v, err := m.stack.Pop()
		if err != nil {
			return err
		}
		s, err := ToString(v)
		if err != nil {
			return err
		}
		return m.stack.Push(s)

	case bytecode.OpDup:
		v, err := m.stack.Peek()
		if err != nil {
			return err
		}
		return m.stack.Push(v)

	case bytecode.OpSwap:
		a, b, err := m.stack.Pop2()
		if err != nil {
			return err
		}
		m.stack.Push(b)
		return m.stack.Push(a)

	case bytecode.OpPop:
		_, err := m.stack.Pop()
		return err

	case bytecode.OpJmp:
		return m.jump(true)

	case bytecode.OpJz:
		cond, err := m.stack.Pop()
		if err != nil {
			return err
		}
		// A string condition is consumed but never jumps.
		return m.jump(IsZero(cond))
	}

	return fmt.Errorf("%w: %d", ErrUnknownOpcode, uint32(op))
}

// readValue decodes a PUSH operand.
func (m *VM) readValue() (Value, error) {
	tag, err := m.code.ReadUint32()
	if err != nil {
		return nil, truncated(err)
	}
	switch bytecode.TypeTag(tag) {
	case bytecode.TypeInt:
		n, err := m.code.ReadInt32()
		if err != nil {
			return nil, truncated(err)
		}
		return Int(n), nil
	case bytecode.TypeFloat:
		f, err := m.code.ReadFloat32()
		if err != nil {
			return nil, truncated(err)
		}
		return Float(f), nil
	case bytecode.TypeString:
		s, err := m.code.ReadString()
		if err != nil {
			return nil, truncated(err)
		}
		if len(s) > bytecode.MaxStringLen {
			return nil, fmt.Errorf("%w: %d bytes", ErrStringTooLong, len(s))
		}
		return Str(s), nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownType, tag)
}

func (m *VM) readRegister() (byte, error) {
	idx, err := m.code.ReadByte()
	if err != nil {
		return 0, truncated(err)
	}
	if int(idx) >= bytecode.RegisterCount {
		return 0, fmt.Errorf("%w: index %d", ErrInvalidRegister, idx)
	}
	return idx, nil
}

// jump reads a relative offset and applies it if taken. The offset is
// relative to the end of the offset field.
func (m *VM) jump(taken bool) error {
	delta, err := m.code.ReadInt32()
	if err != nil {
		return truncated(err)
	}
	if !taken {
		return nil
	}
	target := m.code.Pos() + int(delta)
	if !m.code.Seek(target) {
		return fmt.Errorf("%w: target %d outside [0, %d]", ErrJumpOutOfRange, target, m.code.Len())
	}
	return nil
}

func (m *VM) input() (Value, error) {
	if m.opts.Prompt != "" {
		m.out.WriteString(m.opts.Prompt)
	}
	if err := m.out.Flush(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutput, err)
	}

	line, err := m.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: end of input", ErrInput)
		}
		return nil, fmt.Errorf("%w: %v", ErrInput, err)
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return ParseInput(line), nil
}

func truncated(err error) error {
	return fmt.Errorf("%w: %v", ErrTruncated, err)
}
