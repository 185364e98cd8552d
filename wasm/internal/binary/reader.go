package binary

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// DecodeError is a decoding failure at an absolute offset of the module buffer.
type DecodeError struct {
	Msg    string
	Offset int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s @+%d", e.Msg, e.Offset)
}

// Errorf creates a DecodeError at the given absolute offset.
func Errorf(offset int, format string, args ...any) *DecodeError {
	return &DecodeError{Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

// Reader reads WASM primitives from a byte slice and tracks the absolute
// position of every read relative to the start of the module buffer.
type Reader struct {
	data []byte
	pos  int
	base int
}

// NewReader creates a Reader over data starting at absolute offset 0.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// NewReaderAt creates a Reader over data whose first byte sits at base.
func NewReaderAt(data []byte, base int) *Reader {
	return &Reader{data: data, base: base}
}

// Position returns the absolute position of the next byte.
func (r *Reader) Position() int {
	return r.base + r.pos
}

// Consumed returns the number of bytes read so far.
func (r *Reader) Consumed() int {
	return r.pos
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.data) - r.pos
}

// EOF reports whether all bytes were consumed.
func (r *Reader) EOF() bool {
	return r.pos >= len(r.data)
}

// Reset seeks to an absolute position inside the reader's window.
func (r *Reader) Reset(pos int) error {
	rel := pos - r.base
	if rel < 0 || rel > len(r.data) {
		return Errorf(pos, "seek outside of buffer")
	}
	r.pos = rel
	return nil
}

// ReadByte reads a single byte and advances the position.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, Errorf(r.Position(), "expected 1 bytes, fell off end")
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// PeekByte returns the next byte without consuming it.
func (r *Reader) PeekByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, Errorf(r.Position(), "expected 1 bytes, fell off end")
	}
	return r.data[r.pos], nil
}

// ReadBytes reads exactly n bytes. The returned slice aliases the input.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || n > r.Len() {
		return nil, Errorf(r.Position(), "expected %d bytes, fell off end", n)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Sub consumes the next n bytes and returns a reader over them that keeps
// reporting absolute positions.
func (r *Reader) Sub(n int) (*Reader, error) {
	start := r.Position()
	b, err := r.ReadBytes(n)
	if err != nil {
		return nil, err
	}
	return NewReaderAt(b, start), nil
}

// ReadU32 reads an unsigned LEB128 encoded uint32.
func (r *Reader) ReadU32() (uint32, error) {
	start := r.Position()
	var result uint32
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if shift == 28 && b&0x70 != 0 {
			return 0, Errorf(start, "extra bits in varint")
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 35 {
			return 0, Errorf(start, "length overflow while decoding LEB128")
		}
	}
}

// ReadU64 reads an unsigned LEB128 encoded uint64.
func (r *Reader) ReadU64() (uint64, error) {
	start := r.Position()
	var result uint64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 70 {
			return 0, Errorf(start, "length overflow while decoding LEB128")
		}
	}
}

// ReadS32 reads a signed LEB128 encoded int32.
func (r *Reader) ReadS32() (int32, error) {
	start := r.Position()
	var result int32
	var shift uint
	var b byte
	var err error
	for {
		b, err = r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= int32(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if shift >= 35 {
			return 0, Errorf(start, "length overflow while decoding LEB128")
		}
	}
	// Sign extend
	if shift < 32 && b&0x40 != 0 {
		result |= ^int32(0) << shift
	}
	return result, nil
}

// ReadS33 reads a signed LEB128 block type (s33).
func (r *Reader) ReadS33() (int64, error) {
	start := r.Position()
	v, err := r.ReadS64()
	if err != nil {
		return 0, err
	}
	if v < -(1<<32) || v >= 1<<32 {
		return 0, Errorf(start, "length overflow while decoding block type")
	}
	return v, nil
}

// ReadS64 reads a signed LEB128 encoded int64.
func (r *Reader) ReadS64() (int64, error) {
	start := r.Position()
	var result int64
	var shift uint
	var b byte
	var err error
	for {
		b, err = r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if shift >= 70 {
			return 0, Errorf(start, "length overflow while decoding LEB128")
		}
	}
	// Sign extend
	if shift < 64 && b&0x40 != 0 {
		result |= ^int64(0) << shift
	}
	return result, nil
}

// ReadName reads a UTF-8 encoded name (length-prefixed byte sequence).
func (r *Reader) ReadName() (string, error) {
	length, err := r.ReadU32()
	if err != nil {
		return "", err
	}
	start := r.Position()
	data, err := r.ReadBytes(int(length))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", Errorf(start, "invalid UTF-8 string")
	}
	return string(data), nil
}

// ReadU32LE reads a little-endian uint32 (fixed 4 bytes).
func (r *Reader) ReadU32LE() (uint32, error) {
	buf, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// ReadRemaining reads all remaining bytes from the reader.
func (r *Reader) ReadRemaining() []byte {
	b := r.data[r.pos:]
	r.pos = len(r.data)
	return b
}
