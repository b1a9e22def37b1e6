// Package textenc provides the text codecs used to encode and decode
// string cells. The pool codec treats these as black boxes: a strict
// encoder for assembly, and a unit-at-a-time decoder for disassembly so
// that malformed bytes can be reported individually rather than
// replaced wholesale.
package textenc

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"
)

var (
	ErrUnknownEncoding = errors.New("unknown encoding")
	ErrCannotEncode    = errors.New("text not representable in encoding")
)

// Codec converts between Go strings and a script file's byte encoding.
type Codec interface {
	// Name returns the codec's CLI name.
	Name() string

	// Encode converts text to encoded bytes. Runes the encoding cannot
	// represent are an error, never silently replaced.
	Encode(s string) ([]byte, error)

	// DecodeUnit decodes the first unit of b, which must be non-empty.
	// ok reports whether the unit was well formed; a malformed unit
	// consumes exactly one byte, so callers can re-examine the rest.
	DecodeUnit(b []byte) (r rune, size int, ok bool)
}

// ForName returns the codec for a CLI encoding name ("utf-8" or "sjis").
func ForName(name string) (Codec, error) {
	switch name {
	case "utf-8":
		return UTF8{}, nil
	case "sjis":
		return ShiftJIS{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
}

// UTF8 passes bytes through unchanged on encode and validates rune
// boundaries on decode.
type UTF8 struct{}

func (UTF8) Name() string { return "utf-8" }

func (UTF8) Encode(s string) ([]byte, error) {
	return []byte(s), nil
}

func (UTF8) DecodeUnit(b []byte) (rune, int, bool) {
	r, size := utf8.DecodeRune(b)
	if r == utf8.RuneError && size <= 1 {
		return 0, 1, false
	}
	return r, size, true
}

// ShiftJIS implements the legacy sjis codec via x/text. Decoding is
// done unit by unit so a bad lead byte consumes only itself and the
// following byte is reconsidered, matching how the disassembly escape
// grammar reports individual malformed bytes.
type ShiftJIS struct{}

func (ShiftJIS) Name() string { return "sjis" }

func (ShiftJIS) Encode(s string) ([]byte, error) {
	b, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCannotEncode, err)
	}
	return b, nil
}

func (ShiftJIS) DecodeUnit(b []byte) (rune, int, bool) {
	c := b[0]
	switch {
	case c <= 0x80:
		return rune(c), 1, true
	case c >= 0xA1 && c <= 0xDF:
		// Half-width katakana block, one byte per rune.
		return rune(0xFF61 + int32(c) - 0xA1), 1, true
	case (c >= 0x81 && c <= 0x9F) || (c >= 0xE0 && c <= 0xFC):
		if len(b) < 2 {
			return 0, 1, false
		}
		dec, err := japanese.ShiftJIS.NewDecoder().Bytes(b[:2])
		if err != nil {
			return 0, 1, false
		}
		r, _ := utf8.DecodeRune(dec)
		if r == utf8.RuneError {
			// Bad trail byte: the lead is malformed and the trail is
			// reprocessed on its own.
			return 0, 1, false
		}
		return r, 2, true
	default:
		return 0, 1, false
	}
}
