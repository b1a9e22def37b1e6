package stcm2

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encode serializes the file. The export table offset in the metadata
// block and the trailer length are back-patched once the layout is
// final.
func (f *File) Encode() ([]byte, error) {
	if len(f.Tag) > TagLength {
		return nil, fmt.Errorf("%w: tag %q longer than %d bytes", ErrEncoding, f.Tag, TagLength)
	}
	if len(f.GlobalData)%4 != 0 {
		return nil, fmt.Errorf("%w: global data is %d bytes, not 4-aligned", ErrEncoding, len(f.GlobalData))
	}
	filler := f.Filler()

	size := GlobalDataOffset + len(f.GlobalData) + len(CodeStartMagic) +
		len(ExportDataMagic) + len(CollectionLinkMagic) + len(f.Trailer)
	exports := 0
	for i := range f.Actions {
		size += f.Actions[i].Len()
		if f.Actions[i].Export != nil {
			exports++
		}
	}
	size += exports * (4 + ExportNameLength + 4)
	if int64(size) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d bytes will not address as uint32", ErrEncoding, size)
	}

	buf := make([]byte, 0, size+16)
	buf = append(buf, Magic...)
	buf = appendPadded(buf, f.Tag, TagLength)

	metaOff := len(buf)
	buf = binary.LittleEndian.AppendUint32(buf, 0) // export table offset, patched below
	buf = binary.LittleEndian.AppendUint32(buf, uint32(exports))
	buf = binary.LittleEndian.AppendUint32(buf, f.Reserved)
	buf = binary.LittleEndian.AppendUint32(buf, 0) // trailer offset, patched below
	buf = append(buf, f.Unknown[:]...)

	buf = append(buf, GlobalDataMagic...)
	buf = append(buf, f.GlobalData...)
	buf = append(buf, CodeStartMagic...)

	codeBase := len(buf)
	for i := range f.Actions {
		a := &f.Actions[i]
		if off := len(buf) - codeBase; off != int(a.Addr) {
			return nil, fmt.Errorf("%w: action %d addressed %#x but laid out at %#x", ErrFormat, i, a.Addr, off)
		}
		var call uint32
		if a.Call {
			call = 1
		}
		buf = binary.LittleEndian.AppendUint32(buf, call)
		buf = binary.LittleEndian.AppendUint32(buf, a.Opcode)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(a.Params)))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(a.Len()))
		for _, p := range a.Params {
			for _, w := range p.encode(a.DataBase(), filler) {
				buf = binary.LittleEndian.AppendUint32(buf, w)
			}
		}
		buf = append(buf, a.Data...)
	}

	buf = append(buf, ExportDataMagic...)
	exportAddr := len(buf)
	for i := range f.Actions {
		a := &f.Actions[i]
		if a.Export == nil {
			continue
		}
		if len(a.Export) > ExportNameLength {
			return nil, fmt.Errorf("%w: export name %q longer than %d bytes", ErrEncoding, a.Export, ExportNameLength)
		}
		buf = binary.LittleEndian.AppendUint32(buf, 0)
		buf = appendPadded(buf, a.Export, ExportNameLength)
		buf = binary.LittleEndian.AppendUint32(buf, a.Addr)
	}

	buf = append(buf, CollectionLinkMagic...)
	trailerOff := len(buf)
	if f.Trailer != nil {
		if len(f.Trailer) < 4 {
			return nil, fmt.Errorf("%w: collection link payload is %d bytes", ErrEncoding, len(f.Trailer))
		}
		buf = append(buf, f.Trailer...)
	} else {
		buf = append(buf, make([]byte, 16)...)
	}

	binary.LittleEndian.PutUint32(buf[metaOff:], uint32(exportAddr))
	binary.LittleEndian.PutUint32(buf[metaOff+12:], uint32(trailerOff))
	binary.LittleEndian.PutUint32(buf[len(buf)-4:], uint32(len(buf)))
	return buf, nil
}

// appendPadded appends b NUL-padded to exactly n bytes.
func appendPadded(buf, b []byte, n int) []byte {
	buf = append(buf, b...)
	return append(buf, make([]byte, n-len(b))...)
}
