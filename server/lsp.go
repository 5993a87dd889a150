package server

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/mol/compiler"
	"github.com/chazu/mol/pkg/bytecode"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "mol-lsp"

// LspServer provides diagnostics, completion, hover and label navigation
// for mol source files.
type LspServer struct {
	opts compiler.Options
	log  commonlog.Logger

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server that assembles documents with opts.
func NewLSP(opts compiler.Options) *LspServer {
	s := &LspServer{
		opts:    opts,
		log:     commonlog.GetLogger("mol.lsp"),
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
		TextDocumentReferences: s.textDocumentReferences,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	s.log.Info("mol LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.ReferencesProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.setDocument(uri, text)
	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.setDocument(uri, whole.Text)
			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *LspServer) setDocument(uri protocol.DocumentUri, text string) {
	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()
}

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}
	return s.complete(text, prefix), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}
	return s.hover(text, word), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	loc := s.definition(uri, text, word)
	if loc == nil {
		return nil, nil
	}
	return *loc, nil
}

func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	uri := params.TextDocument.URI
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}
	return s.references(uri, text, word, params.Context.IncludeDeclaration), nil
}

// --- Document analysis ---

func (s *LspServer) complete(text, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	upperPrefix := strings.ToUpper(prefix)

	// Opcodes
	for _, op := range bytecode.AllOpcodes() {
		info := bytecode.GetOpcodeInfo(op)
		if !strings.HasPrefix(info.Name, upperPrefix) {
			continue
		}
		kind := protocol.CompletionItemKindKeyword
		detail := info.Summary
		name := info.Name
		items = append(items, protocol.CompletionItem{
			Label:      name,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &name,
		})
	}

	// Labels declared in this document
	for _, sym := range compiler.Labels(text) {
		if !strings.HasPrefix(sym.Name, prefix) {
			continue
		}
		kind := protocol.CompletionItemKindReference
		detail := fmt.Sprintf("label (line %d)", sym.Pos.Line)
		name := sym.Name
		items = append(items, protocol.CompletionItem{
			Label:      name,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &name,
		})
	}

	return items
}

func (s *LspServer) hover(text, word string) *protocol.Hover {
	var b strings.Builder

	if op, ok := bytecode.LookupOpcode(word); ok {
		info := bytecode.GetOpcodeInfo(op)
		fmt.Fprintf(&b, "**%s** (opcode %d)\n\n%s\n\n", info.Name, uint32(op), info.Summary)
		fmt.Fprintf(&b, "Stack: pops %d, pushes %d\n\n", info.StackPop, info.StackPush)
		switch {
		case op == bytecode.OpPush:
			b.WriteString("Operand: integer, float or quoted string")
		case op.TakesRegister():
			b.WriteString("Operand: register A-Z")
		case op.IsJump():
			b.WriteString("Operand: label")
		default:
			b.WriteString("No operand")
		}
	} else {
		var decl *compiler.Symbol
		for _, sym := range compiler.Labels(text) {
			if sym.Name == word {
				decl = &sym
				break
			}
		}
		if decl == nil {
			return nil
		}
		fmt.Fprintf(&b, "**%s:** label, declared at line %d", decl.Name, decl.Pos.Line)

		// The offset is only known when the whole document assembles.
		if res, err := compiler.NewAssembler(s.opts).Assemble("", text); err == nil {
			for _, l := range res.Debug.Labels {
				if l.Name == word {
					fmt.Fprintf(&b, "\n\nOffset: 0x%04X", l.Offset)
					break
				}
			}
		}
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

func (s *LspServer) definition(uri protocol.DocumentUri, text, word string) *protocol.Location {
	for _, sym := range compiler.Labels(text) {
		if sym.Name == word {
			return &protocol.Location{URI: uri, Range: symbolRange(sym)}
		}
	}
	return nil
}

func (s *LspServer) references(uri protocol.DocumentUri, text, word string, includeDecl bool) []protocol.Location {
	var locations []protocol.Location
	for _, sym := range compiler.ScanSymbols(text) {
		if sym.Name != word {
			continue
		}
		if sym.Kind == compiler.SymbolDecl && !includeDecl {
			continue
		}
		locations = append(locations, protocol.Location{URI: uri, Range: symbolRange(sym)})
	}
	return locations
}

// --- Diagnostics ---

// diagnose assembles text and converts the outcome into LSP diagnostics.
func (s *LspServer) diagnose(text string) []protocol.Diagnostic {
	diagnostics := []protocol.Diagnostic{}
	source := lspName

	res, err := compiler.NewAssembler(s.opts).Assemble("", text)
	if err != nil {
		severity := protocol.DiagnosticSeverityError
		r := protocol.Range{}
		var ce *compiler.Error
		if errors.As(err, &ce) {
			r = tokenRange(text, ce.Pos)
		}
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    r,
			Severity: &severity,
			Source:   &source,
			Message:  diagnosticMessage(err),
		})
		return diagnostics
	}

	for _, w := range res.Warnings {
		severity := protocol.DiagnosticSeverityWarning
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    tokenRange(text, w.Pos),
			Severity: &severity,
			Source:   &source,
			Message:  w.Message,
		})
	}
	return diagnostics
}

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	diagnostics := s.diagnose(text)
	s.log.Debugf("%s: %d diagnostics", uri, len(diagnostics))

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// diagnosticMessage drops the position prefix, which the editor shows itself.
func diagnosticMessage(err error) string {
	var ce *compiler.Error
	if !errors.As(err, &ce) {
		return err.Error()
	}
	msg := ce.Err.Error()
	if ce.Detail != "" {
		msg += " (" + ce.Detail + ")"
	}
	if ce.Token != "" {
		msg += ": " + ce.Token
	}
	return msg
}

// --- Position helpers ---

func toProtocol(p compiler.Position) protocol.Position {
	return protocol.Position{
		Line:      protocol.UInteger(max(p.Line-1, 0)),
		Character: protocol.UInteger(max(p.Column-1, 0)),
	}
}

func symbolRange(sym compiler.Symbol) protocol.Range {
	return protocol.Range{Start: toProtocol(sym.Pos), End: toProtocol(sym.End)}
}

// tokenRange spans the whitespace-delimited token starting at p.
func tokenRange(text string, p compiler.Position) protocol.Range {
	start := toProtocol(p)
	end := start
	for i := p.Offset; i < len(text) && !isSpace(text[i]); i++ {
		end.Character++
	}
	return protocol.Range{Start: start, End: end}
}

// --- Text extraction helpers ---

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

// extractPrefix returns the token fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Walk backwards from cursor to find the start of the token
	start := col
	for start > 0 && !isSpace(line[start-1]) {
		start--
	}

	return line[start:col]
}

// extractWord returns the token under the cursor, without a label's
// trailing colon.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := strings.TrimSuffix(lines[pos.Line], "\r")
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	start := col
	for start > 0 && !isSpace(line[start-1]) {
		start--
	}
	end := col
	for end < len(line) && !isSpace(line[end]) {
		end++
	}

	return strings.TrimSuffix(line[start:end], ":")
}

func boolPtr(b bool) *bool {
	return &b
}
