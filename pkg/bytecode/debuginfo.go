package bytecode

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

// DebugInfoVersion is the current sidecar format version.
const DebugInfoVersion uint16 = 1

// DebugSuffix is appended to a program path to name its debug sidecar.
const DebugSuffix = ".dbg"

// LabelInfo records where a label was declared.
type LabelInfo struct {
	Name   string `cbor:"1,keyasint"`
	Offset int32  `cbor:"2,keyasint"`
	Line   uint32 `cbor:"3,keyasint"`
}

// SourceLocation maps an instruction offset to the source position of the
// mnemonic that produced it.
type SourceLocation struct {
	Offset uint32 `cbor:"1,keyasint"` // Offset of the opcode tag
	Line   uint32 `cbor:"2,keyasint"` // Source line number (1-based)
	Column uint32 `cbor:"3,keyasint"` // Source column number (1-based)
}

// DebugInfo describes a program for the disassembler and fault reports. It
// lives in a sidecar file so the program format stays untouched.
type DebugInfo struct {
	Version   uint16           `cbor:"1,keyasint"`
	Source    string           `cbor:"2,keyasint,omitempty"`
	Labels    []LabelInfo      `cbor:"3,keyasint,omitempty"`
	SourceMap []SourceLocation `cbor:"4,keyasint,omitempty"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// NewDebugInfo creates an empty DebugInfo for the named source.
func NewDebugInfo(source string) *DebugInfo {
	return &DebugInfo{Version: DebugInfoVersion, Source: source}
}

// AddLabel records a label declaration.
func (d *DebugInfo) AddLabel(name string, offset int32, line uint32) {
	d.Labels = append(d.Labels, LabelInfo{Name: name, Offset: offset, Line: line})
}

// AddSourceLocation records the source position of the instruction at offset.
func (d *DebugInfo) AddSourceLocation(offset, line, column uint32) {
	d.SourceMap = append(d.SourceMap, SourceLocation{Offset: offset, Line: line, Column: column})
}

// LabelsAt returns the names of labels declared at offset, in declaration order.
func (d *DebugInfo) LabelsAt(offset int) []string {
	if d == nil {
		return nil
	}
	var names []string
	for _, l := range d.Labels {
		if int(l.Offset) == offset {
			names = append(names, l.Name)
		}
	}
	return names
}

// GetSourceLocation returns the source location for a bytecode offset.
// Returns line 0, column 0 if no mapping exists.
func (d *DebugInfo) GetSourceLocation(offset uint32) (line, column uint32) {
	if d == nil || len(d.SourceMap) == 0 {
		return 0, 0
	}
	// Source map is emitted in offset order.
	i := sort.Search(len(d.SourceMap), func(i int) bool {
		return d.SourceMap[i].Offset > offset
	})
	if i == 0 {
		return 0, 0
	}
	loc := d.SourceMap[i-1]
	return loc.Line, loc.Column
}

// MarshalDebugInfo serializes debug info to canonical CBOR.
func MarshalDebugInfo(d *DebugInfo) ([]byte, error) {
	return cborEncMode.Marshal(d)
}

// UnmarshalDebugInfo deserializes debug info from CBOR bytes.
func UnmarshalDebugInfo(data []byte) (*DebugInfo, error) {
	var d DebugInfo
	if err := cbor.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal debug info: %w", err)
	}
	if d.Version > DebugInfoVersion {
		return nil, fmt.Errorf("bytecode: debug info version %d is newer than supported version %d", d.Version, DebugInfoVersion)
	}
	return &d, nil
}

// SaveDebugInfo writes d next to the program at programPath.
func SaveDebugInfo(programPath string, d *DebugInfo) error {
	data, err := MarshalDebugInfo(d)
	if err != nil {
		return err
	}
	return writeFileAtomic(programPath+DebugSuffix, data)
}

// LoadDebugInfo reads the sidecar for the program at programPath.
// Returns nil, nil when no sidecar exists.
func LoadDebugInfo(programPath string) (*DebugInfo, error) {
	data, err := os.ReadFile(programPath + DebugSuffix)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", programPath+DebugSuffix, err)
	}
	return UnmarshalDebugInfo(data)
}
