package compiler

import (
	"fmt"
	"os"

	"github.com/tliron/commonlog"

	"github.com/chazu/mol/pkg/bytecode"
)

const maxStringLiteral = bytecode.MaxStringLen

// Default table bounds.
const (
	DefaultMaxLabels   = 100
	DefaultMaxPatches  = 1024
	DefaultMaxCodeSize = 16384
)

// Options bounds the assembler's tables. A zero bound disables the check.
type Options struct {
	MaxLabels   int
	MaxPatches  int
	MaxCodeSize int

	// Logger receives progress and warnings. Defaults to the "mol.compiler" logger.
	Logger commonlog.Logger
}

// DefaultOptions returns the standard bounds.
func DefaultOptions() Options {
	return Options{
		MaxLabels:   DefaultMaxLabels,
		MaxPatches:  DefaultMaxPatches,
		MaxCodeSize: DefaultMaxCodeSize,
	}
}

// Result is the output of a successful compile.
type Result struct {
	Program  *bytecode.Program
	Debug    *bytecode.DebugInfo
	Warnings []Warning
}

// label is a declared jump target.
type label struct {
	offset int
	pos    Position
}

// patch is a jump whose 4-byte offset is written once all labels are known.
type patch struct {
	label  string
	offset int // offset of the placeholder field
	pos    Position
}

// Assembler holds the state of one compile. Create a new one per source;
// nothing carries over between compiles.
type Assembler struct {
	opts Options
	log  commonlog.Logger

	file  string
	lexer *Lexer
	out   *bytecode.Writer

	labels     map[string]label
	labelCount int
	patches    []patch

	debug    *bytecode.DebugInfo
	warnings []Warning
}

// NewAssembler creates an assembler with the given options.
func NewAssembler(opts Options) *Assembler {
	log := opts.Logger
	if log == nil {
		log = commonlog.GetLogger("mol.compiler")
	}
	return &Assembler{
		opts:   opts,
		log:    log,
		out:    bytecode.NewWriter(),
		labels: make(map[string]label),
	}
}

// Assemble compiles source with the default options.
func Assemble(name, source string) (*Result, error) {
	return NewAssembler(DefaultOptions()).Assemble(name, source)
}

// AssembleFile reads and compiles a source file.
func AssembleFile(path string, opts Options) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return NewAssembler(opts).Assemble(path, string(data))
}

// Assemble runs both passes over source. name is used in diagnostics and
// debug info only.
func (a *Assembler) Assemble(name, source string) (*Result, error) {
	a.file = name
	a.lexer = NewLexer(source)
	a.debug = bytecode.NewDebugInfo(name)

	if err := a.emitAll(); err != nil {
		return nil, a.withFile(err)
	}
	if err := a.resolvePatches(); err != nil {
		return nil, a.withFile(err)
	}

	a.log.Debugf("assembled %s: %d bytes, %d labels, %d jumps", name, a.out.Offset(), len(a.labels), len(a.patches))

	return &Result{
		Program:  bytecode.NewProgram(a.out.Bytes()),
		Debug:    a.debug,
		Warnings: a.warnings,
	}, nil
}

func (a *Assembler) withFile(err error) error {
	if e, ok := err.(*Error); ok && e.File == "" {
		e.File = a.file
	}
	return err
}

// ---------------------------------------------------------------------------
// Pass one: tokenize and emit
// ---------------------------------------------------------------------------

func (a *Assembler) emitAll() error {
	for {
		tok, err := a.lexer.NextToken()
		if err != nil {
			return err
		}

		switch tok.Type {
		case TokenEOF:
			return nil

		case TokenLabel:
			if err := a.declareLabel(tok); err != nil {
				return err
			}

		default:
			op, ok := bytecode.LookupOpcode(tok.Literal)
			if !ok {
				return &Error{Pos: tok.Pos, Token: tok.Literal, Err: ErrUnknownToken}
			}
			offset := a.out.Offset()
			a.debug.AddSourceLocation(uint32(offset), uint32(tok.Pos.Line), uint32(tok.Pos.Column))
			if err := a.emitInstruction(op, tok); err != nil {
				return err
			}
			if a.opts.MaxCodeSize > 0 && a.out.Offset() > a.opts.MaxCodeSize {
				return &Error{Pos: tok.Pos, Token: tok.Literal, Err: ErrProgramTooLarge,
					Detail: fmt.Sprintf("limit is %d bytes", a.opts.MaxCodeSize)}
			}
		}
	}
}

func (a *Assembler) declareLabel(tok Token) error {
	if a.opts.MaxLabels > 0 && a.labelCount >= a.opts.MaxLabels {
		return &Error{Pos: tok.Pos, Token: tok.Literal, Err: ErrTooManyLabels,
			Detail: fmt.Sprintf("limit is %d", a.opts.MaxLabels)}
	}
	a.labelCount++

	// First declaration wins.
	if prev, exists := a.labels[tok.Literal]; exists {
		w := Warning{
			Pos:     tok.Pos,
			Message: fmt.Sprintf("label %s already declared at line %d; first declaration wins", tok.Literal, prev.pos.Line),
		}
		a.warnings = append(a.warnings, w)
		a.log.Infof("%s:%s", a.file, w)
		return nil
	}

	offset := a.out.Offset()
	a.labels[tok.Literal] = label{offset: offset, pos: tok.Pos}
	a.debug.AddLabel(tok.Literal, int32(offset), uint32(tok.Pos.Line))
	return nil
}

func (a *Assembler) emitInstruction(op bytecode.Opcode, tok Token) error {
	switch op {
	case bytecode.OpPush:
		return a.emitPush(tok)

	case bytecode.OpSet, bytecode.OpGet:
		operand, err := a.operand(tok)
		if err != nil {
			return err
		}
		idx, ok := bytecode.RegisterIndex(operand.Literal)
		if !ok || operand.Type != TokenWord {
			return &Error{Pos: operand.Pos, Token: operand.Literal, Err: ErrInvalidVariable}
		}
		a.out.EmitOp(op)
		a.out.EmitByte(idx)
		return nil

	case bytecode.OpJmp, bytecode.OpJz:
		target, err := a.operand(tok)
		if err != nil {
			return err
		}
		if a.opts.MaxPatches > 0 && len(a.patches) >= a.opts.MaxPatches {
			return &Error{Pos: tok.Pos, Token: tok.Literal, Err: ErrTooManyPatches,
				Detail: fmt.Sprintf("limit is %d", a.opts.MaxPatches)}
		}
		// The operand is taken verbatim, so "LOOP:" names a label "LOOP:".
		name := target.Literal
		if target.Type == TokenLabel {
			name += ":"
		}
		a.out.EmitOp(op)
		a.patches = append(a.patches, patch{label: name, offset: a.out.EmitPlaceholder(), pos: target.Pos})
		return nil

	default:
		a.out.EmitOp(op)
		return nil
	}
}

// operand reads the plain token following an instruction.
func (a *Assembler) operand(instr Token) (Token, error) {
	tok, err := a.lexer.NextToken()
	if err != nil {
		return tok, err
	}
	if tok.Type == TokenEOF {
		return tok, &Error{Pos: instr.Pos, Token: instr.Literal, Err: ErrMissingOperand}
	}
	return tok, nil
}

func (a *Assembler) emitPush(instr Token) error {
	tok, err := a.lexer.NextOperand()
	if err != nil {
		return err
	}

	switch tok.Type {
	case TokenEOF:
		return &Error{Pos: instr.Pos, Token: instr.Literal, Err: ErrMissingOperand}

	case TokenString:
		return a.out.EmitPushString(tok.Literal)
	}

	text := tok.Literal
	if tok.Type == TokenLabel {
		text += ":"
	}
	lit := bytecode.ParseLiteral(text)
	switch lit.Kind {
	case bytecode.LiteralInt:
		a.out.EmitPushInt(lit.Int)
	case bytecode.LiteralFloat:
		a.out.EmitPushFloat(lit.Float)
	default:
		return &Error{Pos: tok.Pos, Token: text, Err: ErrInvalidLiteral}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Pass two: resolve jump offsets
// ---------------------------------------------------------------------------

// resolvePatches writes each jump's offset relative to the end of its
// offset field, which is where the VM's instruction pointer sits when it
// applies the jump.
func (a *Assembler) resolvePatches() error {
	for _, p := range a.patches {
		target, ok := a.labels[p.label]
		if !ok {
			return &Error{Pos: p.pos, Token: p.label, Err: ErrLabelNotFound}
		}
		delta := target.offset - (p.offset + 4)
		if err := a.out.PatchInt32(p.offset, int32(delta)); err != nil {
			return err
		}
	}
	return nil
}
