package compiler

// SymbolKind distinguishes label declarations from references.
type SymbolKind int

const (
	SymbolDecl SymbolKind = iota
	SymbolRef
)

func (k SymbolKind) String() string {
	if k == SymbolDecl {
		return "decl"
	}
	return "ref"
}

// Symbol is one occurrence of a label name in the source.
type Symbol struct {
	Name string
	Kind SymbolKind
	Pos  Position
	End  Position
}

// ScanSymbols lists every label declaration and jump target in source. It
// tolerates errors, skipping bad tokens, so editors get symbols for
// documents that do not assemble.
func ScanSymbols(source string) []Symbol {
	l := NewLexer(source)
	var syms []Symbol

	for {
		tok, err := l.NextToken()
		if tok.Type == TokenEOF {
			return syms
		}
		if err != nil {
			continue
		}

		switch {
		case tok.Type == TokenLabel:
			syms = append(syms, Symbol{Name: tok.Literal, Kind: SymbolDecl, Pos: tok.Pos, End: tok.End})

		case tok.Literal == "PUSH":
			// Consume the operand so a quoted string is not split into words.
			l.NextOperand()

		case tok.Literal == "JMP" || tok.Literal == "JZ":
			target, err := l.NextToken()
			if err != nil || target.Type == TokenEOF {
				continue
			}
			// Matches the assembler: a trailing colon is part of the reference.
			name := target.Literal
			if target.Type == TokenLabel {
				name += ":"
			}
			syms = append(syms, Symbol{Name: name, Kind: SymbolRef, Pos: target.Pos, End: target.End})
		}
	}
}

// Labels returns the declared label names in source, first declarations
// only, in source order.
func Labels(source string) []Symbol {
	seen := make(map[string]bool)
	var out []Symbol
	for _, s := range ScanSymbols(source) {
		if s.Kind == SymbolDecl && !seen[s.Name] {
			seen[s.Name] = true
			out = append(out, s)
		}
	}
	return out
}
