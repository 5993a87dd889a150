package bytecode

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// HeaderSize is the size of the program header: one int32 holding the
// length of the instruction stream in bytes.
const HeaderSize = 4

var (
	ErrCorruptHeader = errors.New("corrupt program header")
	ErrShortProgram  = errors.New("program shorter than its header declares")
)

// Program is a loaded or freshly assembled instruction stream.
//
// File layout (little-endian):
//
//	[code_len:i32] [code:code_len bytes]
//
// The header counts bytes, not instructions. There is no magic, version or
// checksum; bytes after the declared length are ignored.
type Program struct {
	Code []byte
}

// NewProgram wraps an instruction stream.
func NewProgram(code []byte) *Program {
	return &Program{Code: code}
}

// Len returns the length of the instruction stream in bytes.
func (p *Program) Len() int {
	return len(p.Code)
}

// Serialize encodes the program header followed by its code.
func (p *Program) Serialize() []byte {
	buf := make([]byte, 0, HeaderSize+len(p.Code))
	buf = ByteOrder.AppendUint32(buf, uint32(int32(len(p.Code))))
	return append(buf, p.Code...)
}

// WriteTo writes the serialized program to w.
func (p *Program) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(p.Serialize())
	return int64(n), err
}

// Deserialize decodes a program from bytes.
func Deserialize(data []byte) (*Program, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrCorruptHeader, HeaderSize, len(data))
	}
	codeLen := int32(ByteOrder.Uint32(data))
	if codeLen < 0 {
		return nil, fmt.Errorf("%w: negative code length %d", ErrCorruptHeader, codeLen)
	}
	if HeaderSize+int(codeLen) > len(data) {
		return nil, fmt.Errorf("%w: declared %d bytes, have %d", ErrShortProgram, codeLen, len(data)-HeaderSize)
	}
	code := make([]byte, codeLen)
	copy(code, data[HeaderSize:HeaderSize+int(codeLen)])
	return &Program{Code: code}, nil
}

// ReadProgram decodes a program from r.
func ReadProgram(r io.Reader) (*Program, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read program: %w", err)
	}
	return Deserialize(data)
}

// LoadFile reads a program file from disk.
func LoadFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	p, err := Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// SaveFile writes the program to path. The data goes to a temporary file in
// the same directory first, so a failed write never leaves a partial program.
func (p *Program) SaveFile(path string) error {
	return writeFileAtomic(path, p.Serialize())
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("cannot create %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return nil
}
