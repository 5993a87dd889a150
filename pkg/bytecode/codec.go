package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ByteOrder is the byte order of every multi-byte field in a program.
var ByteOrder = binary.LittleEndian

// ErrUnexpectedEnd is returned when a field runs past the end of the code.
var ErrUnexpectedEnd = errors.New("unexpected end of bytecode")

// ---------------------------------------------------------------------------
// Writer: appends encoded fields to an instruction stream
// ---------------------------------------------------------------------------

// Writer builds an instruction stream.
type Writer struct {
	code []byte
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer {
	return &Writer{code: make([]byte, 0, 256)}
}

// Offset returns the offset the next byte will be written at.
func (w *Writer) Offset() int {
	return len(w.code)
}

// Bytes returns the encoded stream. The slice aliases the writer's buffer.
func (w *Writer) Bytes() []byte {
	return w.code
}

// EmitOp appends an opcode tag and returns its offset.
func (w *Writer) EmitOp(op Opcode) int {
	offset := len(w.code)
	w.code = ByteOrder.AppendUint32(w.code, uint32(op))
	return offset
}

// EmitByte appends a single byte.
func (w *Writer) EmitByte(b byte) {
	w.code = append(w.code, b)
}

// EmitInt32 appends a signed 32-bit value.
func (w *Writer) EmitInt32(v int32) {
	w.code = ByteOrder.AppendUint32(w.code, uint32(v))
}

// EmitFloat32 appends the IEEE-754 bits of v.
func (w *Writer) EmitFloat32(v float32) {
	w.code = ByteOrder.AppendUint32(w.code, math.Float32bits(v))
}

// EmitPlaceholder appends a 4-byte zero field and returns its offset for a
// later PatchInt32.
func (w *Writer) EmitPlaceholder() int {
	offset := len(w.code)
	w.code = append(w.code, 0, 0, 0, 0)
	return offset
}

// EmitPushInt appends PUSH with an integer payload.
func (w *Writer) EmitPushInt(v int32) {
	w.EmitOp(OpPush)
	w.code = ByteOrder.AppendUint32(w.code, uint32(TypeInt))
	w.EmitInt32(v)
}

// EmitPushFloat appends PUSH with a float payload.
func (w *Writer) EmitPushFloat(v float32) {
	w.EmitOp(OpPush)
	w.code = ByteOrder.AppendUint32(w.code, uint32(TypeFloat))
	w.EmitFloat32(v)
}

// EmitPushString appends PUSH with a length-prefixed string payload.
func (w *Writer) EmitPushString(s string) error {
	if len(s) > MaxStringLen {
		return fmt.Errorf("string of %d bytes exceeds %d", len(s), MaxStringLen)
	}
	w.EmitOp(OpPush)
	w.code = ByteOrder.AppendUint32(w.code, uint32(TypeString))
	w.code = append(w.code, byte(len(s)))
	w.code = append(w.code, s...)
	return nil
}

// PatchInt32 overwrites the 4-byte field at offset.
func (w *Writer) PatchInt32(offset int, v int32) error {
	if offset < 0 || offset+4 > len(w.code) {
		return fmt.Errorf("patch at %d: %w", offset, ErrUnexpectedEnd)
	}
	ByteOrder.PutUint32(w.code[offset:], uint32(v))
	return nil
}

// ---------------------------------------------------------------------------
// Reader: bounds-checked decoding of an instruction stream
// ---------------------------------------------------------------------------

// Reader decodes fields from an instruction stream. Every read is checked
// against the end of the code.
type Reader struct {
	code []byte
	pos  int
}

// NewReader creates a Reader positioned at offset 0.
func NewReader(code []byte) *Reader {
	return &Reader{code: code}
}

// Pos returns the current read offset.
func (r *Reader) Pos() int {
	return r.pos
}

// Len returns the length of the underlying code.
func (r *Reader) Len() int {
	return len(r.code)
}

// Seek moves the read offset. Offsets in [0, Len()] are valid; Len() means
// the end of the stream.
func (r *Reader) Seek(pos int) bool {
	if pos < 0 || pos > len(r.code) {
		return false
	}
	r.pos = pos
	return true
}

// Bytes returns the underlying code.
func (r *Reader) Bytes() []byte {
	return r.code
}

// AtEnd reports whether the reader has consumed the whole stream.
func (r *Reader) AtEnd() bool {
	return r.pos >= len(r.code)
}

func (r *Reader) need(n int) error {
	if r.pos+n > len(r.code) {
		return fmt.Errorf("%w: need %d bytes at offset %d", ErrUnexpectedEnd, n, r.pos)
	}
	return nil
}

// ReadOp reads an opcode tag. The value is not validated.
func (r *Reader) ReadOp() (Opcode, error) {
	v, err := r.ReadUint32()
	return Opcode(v), err
}

// ReadUint32 reads an unsigned 32-bit field.
func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := ByteOrder.Uint32(r.code[r.pos:])
	r.pos += 4
	return v, nil
}

// ReadInt32 reads a signed 32-bit field.
func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

// ReadFloat32 reads an IEEE-754 single.
func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	return math.Float32frombits(v), err
}

// ReadByte reads one byte.
func (r *Reader) ReadByte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.code[r.pos]
	r.pos++
	return b, nil
}

// ReadString reads a 1-byte length followed by that many bytes.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.code[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}
