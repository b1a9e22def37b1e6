package textenc

import (
	"bytes"
	"errors"
	"testing"
)

func TestForName(t *testing.T) {
	c, err := ForName("utf-8")
	if err != nil {
		t.Fatalf("ForName(utf-8) error: %v", err)
	}
	if c.Name() != "utf-8" {
		t.Errorf("Name() = %q, want %q", c.Name(), "utf-8")
	}

	c, err = ForName("sjis")
	if err != nil {
		t.Fatalf("ForName(sjis) error: %v", err)
	}
	if c.Name() != "sjis" {
		t.Errorf("Name() = %q, want %q", c.Name(), "sjis")
	}

	_, err = ForName("latin-1")
	if !errors.Is(err, ErrUnknownEncoding) {
		t.Errorf("ForName(latin-1) error = %v, want ErrUnknownEncoding", err)
	}
}

func TestUTF8DecodeUnit(t *testing.T) {
	tests := []struct {
		in   []byte
		r    rune
		size int
		ok   bool
	}{
		{[]byte("A"), 'A', 1, true},
		{[]byte{0x00}, 0, 1, true},
		{[]byte("éxx"), 'é', 2, true},
		{[]byte("あ"), 'あ', 3, true},
		{[]byte{0xff, 0x41}, 0, 1, false},
		{[]byte{0xc3}, 0, 1, false}, // truncated sequence
	}

	var c UTF8
	for _, tt := range tests {
		r, size, ok := c.DecodeUnit(tt.in)
		if ok != tt.ok || size != tt.size || (ok && r != tt.r) {
			t.Errorf("DecodeUnit(% x) = (%q, %d, %v), want (%q, %d, %v)",
				tt.in, r, size, ok, tt.r, tt.size, tt.ok)
		}
	}
}

func TestShiftJISDecodeUnit(t *testing.T) {
	tests := []struct {
		in   []byte
		r    rune
		size int
		ok   bool
	}{
		{[]byte{0x41}, 'A', 1, true},
		{[]byte{0x80}, 0x80, 1, true},
		{[]byte{0xb1}, 'ｱ', 1, true},       // half-width katakana
		{[]byte{0x82, 0xa0}, 'あ', 2, true}, // two-byte kana
		{[]byte{0x93, 0xfa}, '日', 2, true}, // two-byte kanji
		{[]byte{0xff}, 0, 1, false},        // not a lead byte
		{[]byte{0xa0}, 0, 1, false},
		{[]byte{0x81, 0x20}, 0, 1, false}, // bad trail: lead alone is malformed
		{[]byte{0x82}, 0, 1, false},       // lead with no trail
	}

	var c ShiftJIS
	for _, tt := range tests {
		r, size, ok := c.DecodeUnit(tt.in)
		if ok != tt.ok || size != tt.size || (ok && r != tt.r) {
			t.Errorf("DecodeUnit(% x) = (%q, %d, %v), want (%q, %d, %v)",
				tt.in, r, size, ok, tt.r, tt.size, tt.ok)
		}
	}
}

func TestShiftJISEncode(t *testing.T) {
	var c ShiftJIS

	got, err := c.Encode("あ日A")
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	want := []byte{0x82, 0xa0, 0x93, 0xfa, 0x41}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode = % x, want % x", got, want)
	}

	_, err = c.Encode("\U0001F600")
	if !errors.Is(err, ErrCannotEncode) {
		t.Errorf("Encode(emoji) error = %v, want ErrCannotEncode", err)
	}
}

func TestUTF8Encode(t *testing.T) {
	var c UTF8
	got, err := c.Encode("héllo")
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if !bytes.Equal(got, []byte("héllo")) {
		t.Errorf("Encode = % x, want the input bytes", got)
	}
}
