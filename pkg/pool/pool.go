// Package pool encodes and decodes data pool cells: the
// length-prefixed, word-aligned strings and integers an action stores
// in its trailing data area and addresses through DataPointer
// operands.
//
// A cell is four header words (type, payload length in quads, a
// constant 1, payload length in bytes) followed by the payload.
// Canonical text payloads end in one to four zero bytes reaching word
// alignment. Four-byte payloads are usually integers; see Decode for
// the heuristic separating them from two- and three-byte strings.
package pool

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/stcm2/pkg/textenc"
)

// ErrBadCell reports bytes that do not form a valid cell.
var ErrBadCell = errors.New("malformed data cell")

// headerLen is the four fixed words before the payload.
const headerLen = 16

// A four-byte payload decodes as an integer unless its value spells a
// short string: three text bytes followed by the zero pad land in
// 0x100000..0xFFFFFF, and 28783 is the two bytes "op". Type 1 cells
// are always integers.
const (
	textIntLo = 0x100000
	textIntHi = 0x1000000
	textIntOp = 28783
)

// Kind distinguishes the decoded payload forms.
type Kind uint8

const (
	// Text is a type 0 cell holding an encoded string.
	Text Kind = iota

	// Int0 and Int1 are four-byte integers of cell type 0 and 1.
	Int0
	Int1
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Int0:
		return "int"
	case Int1:
		return "type 1 int"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Cell is one decoded pool entry. Text holds the payload with its
// zero padding stripped and is only set for Text cells.
type Cell struct {
	Kind Kind
	Text []byte
	Int  uint32
}

// Decode reads the cell starting at off. The returned size spans the
// header and the padded payload, so off+size is the next cell.
func Decode(data []byte, off int) (Cell, int, error) {
	if off < 0 || off > len(data) {
		return Cell{}, 0, fmt.Errorf("%w: offset %d outside the pool", ErrBadCell, off)
	}
	rem := data[off:]
	if len(rem) <= headerLen {
		return Cell{}, 0, fmt.Errorf("%w: no room for a cell at offset %d", ErrBadCell, off)
	}
	typ := binary.LittleEndian.Uint32(rem[0:])
	qlen := binary.LittleEndian.Uint32(rem[4:])
	one := binary.LittleEndian.Uint32(rem[8:])
	size := binary.LittleEndian.Uint32(rem[12:])
	if typ > 1 {
		return Cell{}, 0, fmt.Errorf("%w: cell type %d", ErrBadCell, typ)
	}
	if one != 1 {
		return Cell{}, 0, fmt.Errorf("%w: marker word is %d", ErrBadCell, one)
	}
	if uint64(size) != uint64(qlen)*4 {
		return Cell{}, 0, fmt.Errorf("%w: %d bytes inconsistent with %d quads", ErrBadCell, size, qlen)
	}
	if uint64(len(rem)-headerLen) < uint64(size) {
		return Cell{}, 0, fmt.Errorf("%w: %d byte payload runs past the pool", ErrBadCell, size)
	}
	payload := rem[headerLen : headerLen+size]
	consumed := headerLen + int(size)

	if size == 4 {
		n := binary.LittleEndian.Uint32(payload)
		if typ == 1 || !(n >= textIntLo && n < textIntHi || n == textIntOp) {
			kind := Int0
			if typ == 1 {
				kind = Int1
			}
			return Cell{Kind: kind, Int: n}, consumed, nil
		}
	}
	if typ != 0 {
		return Cell{}, 0, fmt.Errorf("%w: type 1 cell with a %d byte payload", ErrBadCell, size)
	}

	pad := 0
	for pad < len(payload) && payload[len(payload)-1-pad] == 0 {
		pad++
	}
	if pad < 1 || pad > 4 {
		return Cell{}, 0, fmt.Errorf("%w: text cell with %d trailing zeros", ErrBadCell, pad)
	}
	return Cell{Kind: Text, Text: payload[:len(payload)-pad]}, consumed, nil
}

// AppendText appends a canonical text cell: the bytes plus one to
// four zeros reaching word alignment.
func AppendText(pool, text []byte) []byte {
	pad := 4 - len(text)%4
	pool = appendHeader(pool, 0, len(text)+pad)
	pool = append(pool, text...)
	return append(pool, make([]byte, pad)...)
}

// AppendAligned appends a pre-aligned cell, for payloads that carry
// their padding in the bytes themselves.
func AppendAligned(pool, payload []byte) ([]byte, error) {
	if len(payload)%4 != 0 {
		return nil, fmt.Errorf("%w: pre-aligned payload is %d bytes", ErrBadCell, len(payload))
	}
	pool = appendHeader(pool, 0, len(payload))
	return append(pool, payload...), nil
}

// AppendInt appends a four-byte integer cell of type 1 or type 0.
func AppendInt(pool []byte, n uint32, type1 bool) []byte {
	var typ uint32
	if type1 {
		typ = 1
	}
	pool = appendHeader(pool, typ, 4)
	return binary.LittleEndian.AppendUint32(pool, n)
}

func appendHeader(pool []byte, typ uint32, size int) []byte {
	pool = binary.LittleEndian.AppendUint32(pool, typ)
	pool = binary.LittleEndian.AppendUint32(pool, uint32(size/4))
	pool = binary.LittleEndian.AppendUint32(pool, 1)
	return binary.LittleEndian.AppendUint32(pool, uint32(size))
}

// Marker flags a byte the text encoding could not decode. The
// disassembler renders it as a backslash, so the Xhh that follows
// reads as an escape and assembles back to the original byte.
const Marker rune = '\U0001F5FF'

// DecodeReplacing decodes cell text, substituting Marker and the byte
// in hex for every byte the codec rejects.
func DecodeReplacing(c textenc.Codec, b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for len(b) > 0 {
		r, size, ok := c.DecodeUnit(b)
		if ok {
			sb.WriteRune(r)
		} else {
			fmt.Fprintf(&sb, "%cX%02x", Marker, b[0])
		}
		b = b[size:]
	}
	return sb.String()
}
