package vm

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/chazu/mol/compiler"
	"github.com/chazu/mol/pkg/bytecode"
)

// runSource assembles src and runs it with input on stdin. The prompt is
// disabled unless opts sets one.
func runSource(t *testing.T, src, input string, opts Options) (string, Outcome, error) {
	t.Helper()
	res, err := compiler.Assemble("test.mol", src)
	if err != nil {
		t.Fatalf("assemble %q: %v", src, err)
	}
	return runProgram(res.Program, input, opts)
}

func runProgram(prog *bytecode.Program, input string, opts Options) (string, Outcome, error) {
	var out bytes.Buffer
	m := New(prog, strings.NewReader(input), &out, opts)
	outcome, err := m.Run()
	return out.String(), outcome, err
}

func expectOutput(t *testing.T, src, want string) {
	t.Helper()
	got, outcome, err := runSource(t, src, "", Options{})
	if err != nil {
		t.Fatalf("%q: %v", src, err)
	}
	if outcome.Status != Completed {
		t.Errorf("%q: status = %s", src, outcome.Status)
	}
	if got != want {
		t.Errorf("%q: output = %q, want %q", src, got, want)
	}
}

func expectFault(t *testing.T, src string, want error) *Fault {
	t.Helper()
	_, outcome, err := runSource(t, src, "", Options{})
	if !errors.Is(err, want) {
		t.Fatalf("%q: err = %v, want %v", src, err, want)
	}
	if outcome.Status != Faulted || outcome.Fault == nil {
		t.Fatalf("%q: outcome = %+v, want fault", src, outcome)
	}
	return outcome.Fault
}

// ---------------------------------------------------------------------------
// Properties
// ---------------------------------------------------------------------------

func TestPushPrintIntegers(t *testing.T) {
	for _, n := range []int32{0, 1, -1, 42, 1000000, math.MaxInt32, math.MinInt32} {
		expectOutput(t, fmt.Sprintf("PUSH %d PRINT", n), fmt.Sprintf("%d\n", n))
	}
}

func TestConcatProgram(t *testing.T) {
	expectOutput(t, `PUSH "foo" PUSH "bar" CONCAT PRINT`, "foobar\n")
}

func TestArithmeticProgram(t *testing.T) {
	expectOutput(t, "PUSH 1 PUSH 2 ADD PRINT", "3\n")
	expectOutput(t, "PUSH 10 PUSH 4 SUB PRINT", "6\n")
	expectOutput(t, "PUSH 1.5 PUSH 2.0 MUL PRINT", "3\n")
	expectOutput(t, "PUSH 1.0 PUSH 3.0 DIV PRINT", "0.333333\n")
	expectFault(t, "PUSH 1 PUSH 0 DIV", ErrDivisionByZero)
	expectFault(t, "PUSH 1.0 PUSH 0.0 DIV", ErrDivisionByZero)
	expectFault(t, "PUSH 1 PUSH 1.0 ADD", ErrIncompatibleTypes)
}

func TestRegisters(t *testing.T) {
	expectOutput(t, "PUSH 5 SET A GET A PRINT", "5\n")
	expectOutput(t, "GET Q STRLEN PRINT", "0\n")
	expectOutput(t, `PUSH "x" SET z GET Z PRINT`, "x\n")
}

func TestRegisterDefaultsAreEmptyStrings(t *testing.T) {
	m := New(bytecode.NewProgram(nil), strings.NewReader(""), &bytes.Buffer{}, Options{})
	for i := 0; i < bytecode.RegisterCount; i++ {
		if m.Register(i) != Str("") {
			t.Errorf("register %d = %#v", i, m.Register(i))
		}
	}
	if m.Register(26) != nil {
		t.Error("register 26 should not exist")
	}
}

func TestJumpIfZeroSkips(t *testing.T) {
	expectOutput(t, "PUSH 0 JZ SKIP PUSH 1 PRINT SKIP: PUSH 2 PRINT", "2\n")
	expectOutput(t, "PUSH 0.0 JZ SKIP PUSH 1 PRINT SKIP: PUSH 2 PRINT", "2\n")
	expectOutput(t, "PUSH 7 JZ SKIP PUSH 1 PRINT SKIP: PUSH 2 PRINT", "1\n2\n")
}

func TestJumpIfZeroStringNeverJumps(t *testing.T) {
	expectOutput(t, `PUSH "" JZ SKIP PUSH 1 PRINT SKIP: PUSH 2 PRINT`, "1\n2\n")
	expectOutput(t, `PUSH "0" JZ SKIP PUSH 1 PRINT SKIP: HALT`, "1\n")
}

func TestBackwardLoop(t *testing.T) {
	// Count down from 3.
	src := `
		PUSH 3 SET N
	LOOP:
		GET N PRINT
		GET N PUSH 1 SUB SET N
		GET N JZ DONE
		JMP LOOP
	DONE:
		HALT`
	expectOutput(t, src, "3\n2\n1\n")
}

func TestStackDiscipline(t *testing.T) {
	expectFault(t, "POP", ErrStackUnderflow)
	expectFault(t, "DUP", ErrStackUnderflow)
	expectFault(t, "PUSH 1 SWAP", ErrStackUnderflow)
	expectFault(t, "PUSH 1 ADD", ErrStackUnderflow)
	expectFault(t, "PRINT", ErrStackUnderflow)
	expectFault(t, "PUSH 1 SET A SET B", ErrStackUnderflow)

	_, outcome, err := runSource(t, "L: PUSH 1 JMP L", "", Options{StackSize: 16})
	if !errors.Is(err, ErrStackOverflow) {
		t.Fatalf("err = %v, want overflow", err)
	}
	if outcome.Steps != 2*16+1 {
		t.Errorf("Steps = %d, want %d", outcome.Steps, 2*16+1)
	}
}

func TestComparisonTypes(t *testing.T) {
	for _, op := range []string{"EQ", "GT", "LT"} {
		expectFault(t, `PUSH 1 PUSH "1" `+op, ErrIncompatibleTypes)
	}
	expectOutput(t, "PUSH 2 PUSH 2 EQ PRINT PUSH 3 PUSH 2 GT PRINT PUSH 3 PUSH 2 LT PRINT", "1\n1\n0\n")
	expectOutput(t, `PUSH "abc" PUSH "abd" LT PRINT`, "1\n")
	expectOutput(t, "PUSH 0.5 PUSH 0.25 GT PRINT", "1\n")
}

func TestConcatBound(t *testing.T) {
	a := strings.Repeat("a", 200)
	b := strings.Repeat("b", 55)
	src := fmt.Sprintf(`PUSH "%s" PUSH "%s" CONCAT STRLEN PRINT`, a, b)
	expectOutput(t, src, "255\n")

	src = fmt.Sprintf(`PUSH "%s" PUSH "%s" CONCAT`, a, b+"b")
	expectFault(t, src, ErrStringTooLong)
}

func TestStackManipulation(t *testing.T) {
	expectOutput(t, "PUSH 1 PUSH 2 SWAP PRINT PRINT", "1\n2\n")
	expectOutput(t, "PUSH 4 DUP MUL PRINT", "16\n")
	expectOutput(t, "PUSH 1 PUSH 2 POP PRINT", "1\n")
}

func TestToStringAndPrintc(t *testing.T) {
	expectOutput(t, `PUSH 12 TOSTRING PUSH "!" CONCAT PRINT`, "12!\n")
	expectOutput(t, `PUSH 2.5 TOSTRING STRLEN PRINT`, "3\n")
	expectOutput(t, `PUSH "a" PRINTC PUSH 1 PRINTC PUSH 0.5 PRINT`, "a10.5\n")
	expectFault(t, `PUSH "x" TOSTRING`, ErrIncompatibleTypes)
	expectFault(t, `PUSH 1 STRLEN`, ErrIncompatibleTypes)
}

func TestHaltStopsExecution(t *testing.T) {
	out, outcome, err := runSource(t, "PUSH 1 PRINT HALT PUSH 2 PRINT", "", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if out != "1\n" || !outcome.Halted || outcome.Steps != 3 {
		t.Errorf("out = %q, outcome = %+v", out, outcome)
	}

	_, outcome, err = runSource(t, "PUSH 1 POP", "", Options{})
	if err != nil || outcome.Halted || outcome.Status != Completed {
		t.Errorf("falling off the end: outcome = %+v, err = %v", outcome, err)
	}
}

func TestOutputBeforeFaultIsKept(t *testing.T) {
	out, _, err := runSource(t, "PUSH 1 PRINT POP", "", Options{})
	if !errors.Is(err, ErrStackUnderflow) {
		t.Fatalf("err = %v", err)
	}
	if out != "1\n" {
		t.Errorf("out = %q", out)
	}
}

// ---------------------------------------------------------------------------
// INPUT
// ---------------------------------------------------------------------------

func TestInput(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"41\n", "42\n"},
		{"41\r\n", "42\n"},
		{"41", "42\n"},
	}
	for _, tc := range tests {
		out, _, err := runSource(t, "INPUT PUSH 1 ADD PRINT", tc.input, Options{})
		if err != nil {
			t.Errorf("input %q: %v", tc.input, err)
			continue
		}
		if out != tc.want {
			t.Errorf("input %q: out = %q, want %q", tc.input, out, tc.want)
		}
	}

	expectTypes := "INPUT INPUT INPUT STRLEN PRINT PUSH 1.0 ADD PRINT PUSH 1 ADD PRINT"
	out, _, err := runSource(t, expectTypes, "7\n2.5\nhello\n", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if out != "5\n3.5\n8\n" {
		t.Errorf("out = %q", out)
	}
}

func TestInputPrompt(t *testing.T) {
	out, _, err := runSource(t, "INPUT PRINT", "hi\n", DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if out != "Input: hi\n" {
		t.Errorf("out = %q", out)
	}
}

func TestInputEndOfStream(t *testing.T) {
	_, _, err := runSource(t, "INPUT", "", Options{})
	if !errors.Is(err, ErrInput) {
		t.Errorf("err = %v, want ErrInput", err)
	}

	_, _, err = runSource(t, "INPUT INPUT", "one\n", Options{})
	if !errors.Is(err, ErrInput) {
		t.Errorf("second INPUT: err = %v, want ErrInput", err)
	}
}

// ---------------------------------------------------------------------------
// Malformed bytecode
// ---------------------------------------------------------------------------

func TestMalformedBytecode(t *testing.T) {
	w := func(build func(w *bytecode.Writer)) *bytecode.Program {
		wr := bytecode.NewWriter()
		build(wr)
		return bytecode.NewProgram(wr.Bytes())
	}

	tests := []struct {
		name string
		prog *bytecode.Program
		want error
	}{
		{"unknown opcode", bytecode.NewProgram([]byte{99, 0, 0, 0}), ErrUnknownOpcode},
		{"partial opcode", bytecode.NewProgram([]byte{0, 0}), ErrTruncated},
		{"truncated push", bytecode.NewProgram([]byte{1, 0, 0, 0, 0, 0, 0, 0, 7}), ErrTruncated},
		{"unknown type", w(func(w *bytecode.Writer) {
			w.EmitOp(bytecode.OpPush)
			w.EmitInt32(9)
			w.EmitInt32(0)
		}), ErrUnknownType},
		{"bad register", w(func(w *bytecode.Writer) {
			w.EmitPushInt(1)
			w.EmitOp(bytecode.OpSet)
			w.EmitByte(26)
		}), ErrInvalidRegister},
		{"jump before start", w(func(w *bytecode.Writer) {
			w.EmitOp(bytecode.OpJmp)
			w.EmitInt32(-100)
		}), ErrJumpOutOfRange},
		{"jump past end", w(func(w *bytecode.Writer) {
			w.EmitOp(bytecode.OpJmp)
			w.EmitInt32(1)
		}), ErrJumpOutOfRange},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, outcome, err := runProgram(tc.prog, "", Options{})
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if outcome.Status != Faulted {
				t.Errorf("status = %s", outcome.Status)
			}
		})
	}
}

func TestJumpToEndCompletes(t *testing.T) {
	wr := bytecode.NewWriter()
	wr.EmitOp(bytecode.OpJmp)
	wr.EmitInt32(0)
	_, outcome, err := runProgram(bytecode.NewProgram(wr.Bytes()), "", Options{})
	if err != nil || outcome.Status != Completed {
		t.Errorf("outcome = %+v, err = %v", outcome, err)
	}
}

// ---------------------------------------------------------------------------
// Faults
// ---------------------------------------------------------------------------

func TestFaultLocation(t *testing.T) {
	res, err := compiler.Assemble("div.mol", "PUSH 1\nPUSH 0\nDIV\n")
	if err != nil {
		t.Fatal(err)
	}
	opts := Options{Debug: res.Debug}
	_, outcome, _ := runProgram(res.Program, "", opts)

	f := outcome.Fault
	if f == nil {
		t.Fatal("expected fault")
	}
	if f.Op != bytecode.OpDiv || f.Offset != 24 || f.Line != 3 || f.Column != 1 {
		t.Errorf("fault = %+v", f)
	}
	if got, want := f.Error(), "runtime error at 0018 (line 3:1) in DIV: division by zero"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestFaultWithoutDebugInfo(t *testing.T) {
	f := expectFault(t, "POP", ErrStackUnderflow)
	if got, want := f.Error(), "runtime error at 0000 in POP: stack underflow"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestTraceDoesNotChangeOutput(t *testing.T) {
	out, outcome, err := runSource(t, "PUSH 0 JZ END PUSH 1 PRINT END: HALT", "", Options{Trace: true})
	if err != nil || out != "" || !outcome.Halted {
		t.Errorf("out = %q, outcome = %+v, err = %v", out, outcome, err)
	}
}

// failAfter accepts n writes and fails every later one.
type failAfter struct {
	n   int
	buf bytes.Buffer
}

func (w *failAfter) Write(p []byte) (int, error) {
	if w.n == 0 {
		return 0, errors.New("closed")
	}
	w.n--
	return w.buf.Write(p)
}

func TestPrintFlushesEachLine(t *testing.T) {
	res, err := compiler.Assemble("test.mol", "PUSH 1 PRINT PUSH 2 PRINT HALT")
	if err != nil {
		t.Fatal(err)
	}
	w := &failAfter{n: 1}
	m := New(res.Program, strings.NewReader(""), w, Options{})

	outcome, err := m.Run()
	if !errors.Is(err, ErrOutput) {
		t.Fatalf("err = %v, want ErrOutput", err)
	}
	// The first line reached the writer before the second PRINT ran.
	if got := w.buf.String(); got != "1\n" {
		t.Errorf("written = %q", got)
	}
	if outcome.Fault.Op != bytecode.OpPrint || outcome.Fault.Offset != 28 {
		t.Errorf("fault = %v", outcome.Fault)
	}
}

func TestStateAfterFault(t *testing.T) {
	res, err := compiler.Assemble("test.mol", `PUSH "x" SET B PUSH 4 PUSH 9 PUSH 0 DIV`)
	if err != nil {
		t.Fatal(err)
	}
	m := New(res.Program, strings.NewReader(""), &bytes.Buffer{}, Options{})
	if _, err := m.Run(); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("err = %v", err)
	}

	values := m.Stack().Values()
	if len(values) != 1 || values[0] != Int(4) {
		t.Errorf("stack = %v", values)
	}
	if m.Register(1) != Str("x") {
		t.Errorf("register B = %#v", m.Register(1))
	}
}
