package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the program. Debug info
// is optional; when present, labels and source lines annotate the listing.
func (p *Program) Disassemble(dbg *DebugInfo) string {
	var sb strings.Builder

	// Header
	if dbg != nil && dbg.Source != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", dbg.Source))
	}
	sb.WriteString(fmt.Sprintf("; mol bytecode, %d bytes\n", len(p.Code)))
	if dbg != nil && len(dbg.Labels) > 0 {
		sb.WriteString(fmt.Sprintf("; Labels: %d\n", len(dbg.Labels)))
	}
	sb.WriteString("\n")

	offset := 0
	for offset < len(p.Code) {
		for _, name := range dbg.LabelsAt(offset) {
			sb.WriteString(name + ":\n")
		}

		line, instrLen, err := DisassembleInstruction(p.Code, offset, dbg)
		if err != nil {
			sb.WriteString(fmt.Sprintf("%04X  <%v>\n", offset, err))
			break
		}

		if srcLine, srcCol := dbg.GetSourceLocation(uint32(offset)); srcLine > 0 {
			sb.WriteString(fmt.Sprintf("%04X  %-30s ; line %d:%d\n", offset, line, srcLine, srcCol))
		} else {
			sb.WriteString(fmt.Sprintf("%04X  %s\n", offset, line))
		}

		offset += instrLen
	}

	// Labels declared at the very end of the stream
	for _, name := range dbg.LabelsAt(len(p.Code)) {
		sb.WriteString(name + ":\n")
	}

	return sb.String()
}

// DisassembleInstruction disassembles the instruction at offset.
// Returns the formatted text and the instruction length in bytes.
func DisassembleInstruction(code []byte, offset int, dbg *DebugInfo) (string, int, error) {
	r := NewReader(code)
	if !r.Seek(offset) || r.AtEnd() {
		return "", 0, fmt.Errorf("offset %d: %w", offset, ErrUnexpectedEnd)
	}

	op, err := r.ReadOp()
	if err != nil {
		return "", 0, err
	}
	if !op.Valid() {
		return "", 0, fmt.Errorf("unknown opcode %d at %04X", uint32(op), offset)
	}

	var text string
	switch op {
	case OpPush:
		tag, err := r.ReadUint32()
		if err != nil {
			return "", 0, err
		}
		switch TypeTag(tag) {
		case TypeInt:
			v, err := r.ReadInt32()
			if err != nil {
				return "", 0, err
			}
			text = fmt.Sprintf("PUSH %d", v)
		case TypeFloat:
			v, err := r.ReadFloat32()
			if err != nil {
				return "", 0, err
			}
			text = fmt.Sprintf("PUSH %s ; float", FormatFloat(v))
		case TypeString:
			s, err := r.ReadString()
			if err != nil {
				return "", 0, err
			}
			display := s
			if len(display) > 40 {
				display = display[:37] + "..."
			}
			text = fmt.Sprintf("PUSH %q", display)
		default:
			return "", 0, fmt.Errorf("unknown value type %d at %04X", tag, offset)
		}

	case OpSet, OpGet:
		idx, err := r.ReadByte()
		if err != nil {
			return "", 0, err
		}
		text = fmt.Sprintf("%s %s", op, RegisterName(idx))

	case OpJmp, OpJz:
		delta, err := r.ReadInt32()
		if err != nil {
			return "", 0, err
		}
		target := r.Pos() + int(delta)
		text = fmt.Sprintf("%s %+d (-> %04X)", op, delta, target)
		if names := dbg.LabelsAt(target); len(names) > 0 {
			text += " ; " + names[0]
		}

	default:
		text = op.String()
	}

	return text, r.Pos() - offset, nil
}
