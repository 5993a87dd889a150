package compiler

import "strings"

// MaxTokenLen bounds the length of a single whitespace-delimited token.
const MaxTokenLen = 63

// ---------------------------------------------------------------------------
// Lexer: whitespace tokenizer for mol source
// ---------------------------------------------------------------------------

// Lexer splits source text into whitespace-delimited tokens. Quoted strings
// are only recognised on request (NextOperand), because a string literal is
// only meaningful as the operand of PUSH.
type Lexer struct {
	input string
	pos   int // current position in input
	line  int // current line (1-based)
	col   int // current column (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{
		input: input,
		line:  1,
		col:   1,
	}
}

// position returns the current position.
func (l *Lexer) position() Position {
	return Position{
		Offset: l.pos,
		Line:   l.line,
		Column: l.col,
	}
}

// advance consumes one byte, tracking line and column.
func (l *Lexer) advance() {
	if l.input[l.pos] == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	l.pos++
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && isSpace(l.input[l.pos]) {
		l.advance()
	}
}

// NextToken returns the next whitespace-delimited token. A token ending in
// ':' is returned as TokenLabel with the colon stripped.
func (l *Lexer) NextToken() (Token, error) {
	l.skipWhitespace()

	start := l.position()
	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: start, End: start}, nil
	}

	for l.pos < len(l.input) && !isSpace(l.input[l.pos]) {
		l.advance()
	}
	text := l.input[start.Offset:l.pos]
	tok := Token{Type: TokenWord, Literal: text, Pos: start, End: l.position()}

	if len(text) > MaxTokenLen {
		return tok, &Error{Pos: start, Token: text[:MaxTokenLen] + "...", Err: ErrTokenTooLong}
	}

	if strings.HasSuffix(text, ":") {
		tok.Type = TokenLabel
		tok.Literal = strings.TrimSuffix(text, ":")
		if tok.Literal == "" {
			return tok, &Error{Pos: start, Token: text, Err: ErrEmptyLabel}
		}
	}

	return tok, nil
}

// NextOperand returns the next token, reading a double-quoted string literal
// if one starts after the whitespace. The literal runs to the next '"' and
// may span whitespace; there are no escapes.
func (l *Lexer) NextOperand() (Token, error) {
	l.skipWhitespace()

	if l.pos >= len(l.input) || l.input[l.pos] != '"' {
		return l.NextToken()
	}

	start := l.position()
	l.advance() // opening quote

	bodyStart := l.pos
	for l.pos < len(l.input) && l.input[l.pos] != '"' {
		l.advance()
	}
	if l.pos >= len(l.input) {
		return Token{}, &Error{Pos: start, Token: excerpt(l.input[start.Offset:]), Err: ErrMalformedString, Detail: "unterminated string"}
	}
	body := l.input[bodyStart:l.pos]
	l.advance() // closing quote

	tok := Token{Type: TokenString, Literal: body, Pos: start, End: l.position()}
	if len(body) > maxStringLiteral {
		return tok, &Error{Pos: start, Token: excerpt(body), Err: ErrMalformedString, Detail: "string longer than 255 bytes"}
	}
	return tok, nil
}

// excerpt shortens text for diagnostics.
func excerpt(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 20 {
		return s[:17] + "..."
	}
	return s
}
