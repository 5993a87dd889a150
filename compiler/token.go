package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for mol source
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	TokenEOF    TokenType = iota
	TokenWord             // PUSH, 42, A, LOOP
	TokenLabel            // LOOP: (literal holds the name without the colon)
	TokenString           // "hello world" (literal holds the unquoted text)
)

var tokenNames = map[TokenType]string{
	TokenEOF:    "EOF",
	TokenWord:   "Word",
	TokenLabel:  "Label",
	TokenString: "String",
}

// String returns the name of a token type.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Position represents a location in source code.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// String formats the position as line:column.
func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token is a lexical token with its source position.
type Token struct {
	Type    TokenType
	Literal string
	Pos     Position
	End     Position // position just past the token
}

// String returns a debug representation of the token.
func (t Token) String() string {
	return fmt.Sprintf("%s(%q)@%s", t.Type, t.Literal, t.Pos)
}
