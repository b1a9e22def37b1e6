package stcm2

import (
	"encoding/binary"
	"fmt"
)

// reader walks the raw file with bounds checks, tracking the absolute
// offset for error reports.
type reader struct {
	data []byte
	pos  int
}

func (r *reader) u32() (uint32, error) {
	if len(r.data)-r.pos < 4 {
		return 0, fmt.Errorf("%w: truncated at offset %#x", ErrFormat, r.pos)
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || len(r.data)-r.pos < n {
		return nil, fmt.Errorf("%w: truncated at offset %#x", ErrFormat, r.pos)
	}
	if n == 0 {
		return nil, nil
	}
	b := r.data[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) magic(want, section string) error {
	if len(r.data)-r.pos < len(want) || string(r.data[r.pos:r.pos+len(want)]) != want {
		return fmt.Errorf("%w: no %s at offset %#x", ErrBadMagic, section, r.pos)
	}
	r.pos += len(want)
	return nil
}

// Decode parses a binary STCM2 file. The returned File aliases data;
// callers that keep the buffer around must not mutate it.
func Decode(data []byte) (*File, error) {
	r := &reader{data: data}
	f := &File{}

	if err := r.magic(Magic, "file magic"); err != nil {
		return nil, err
	}
	tag, err := r.bytes(TagLength)
	if err != nil {
		return nil, err
	}
	f.Tag = tag

	exportAddr, err := r.u32()
	if err != nil {
		return nil, err
	}
	exportCount, err := r.u32()
	if err != nil {
		return nil, err
	}
	if f.Reserved, err = r.u32(); err != nil {
		return nil, err
	}
	// Trailer offset. Implied by the layout, so only the trailer
	// itself is kept.
	if _, err := r.u32(); err != nil {
		return nil, err
	}
	unknown, err := r.bytes(len(f.Unknown))
	if err != nil {
		return nil, err
	}
	copy(f.Unknown[:], unknown)

	if err := r.magic(GlobalDataMagic, "global data section"); err != nil {
		return nil, err
	}
	if f.GlobalData, err = r.globalData(); err != nil {
		return nil, err
	}
	if err := r.magic(CodeStartMagic, "code section"); err != nil {
		return nil, err
	}
	if err := r.actions(f, exportAddr); err != nil {
		return nil, err
	}
	if err := r.magic(ExportDataMagic, "export section"); err != nil {
		return nil, err
	}
	if err := r.exports(f, exportCount); err != nil {
		return nil, err
	}
	if err := r.magic(CollectionLinkMagic, "collection link"); err != nil {
		return nil, err
	}
	if f.Trailer, err = r.bytes(len(r.data) - r.pos); err != nil {
		return nil, err
	}
	if len(f.Trailer) < 4 {
		return nil, fmt.Errorf("%w: collection link payload is %d bytes", ErrFormat, len(f.Trailer))
	}
	if got := binary.LittleEndian.Uint32(f.Trailer[len(f.Trailer)-4:]); got != uint32(len(data)) {
		return nil, fmt.Errorf("%w: collection link says %d bytes, file is %d", ErrLengthMismatch, got, len(data))
	}
	return f, nil
}

// globalData scans forward four bytes at a time until the code magic.
// The pool has no length field of its own.
func (r *reader) globalData() ([]byte, error) {
	n := 0
	for {
		if r.pos+n+len(CodeStartMagic) > len(r.data) {
			return nil, fmt.Errorf("%w: no code section after global data", ErrBadMagic)
		}
		if string(r.data[r.pos+n:r.pos+n+len(CodeStartMagic)]) == CodeStartMagic {
			return r.bytes(n)
		}
		n += 4
	}
}

// actions reads records until the start of the export section, which
// sits len(ExportDataMagic) bytes before the first export record.
func (r *reader) actions(f *File, exportAddr uint32) error {
	base := r.pos
	end := int(exportAddr) - len(ExportDataMagic)
	if end < base || end > len(r.data) {
		return fmt.Errorf("%w: export section offset %#x outside the file", ErrFormat, exportAddr)
	}
	for r.pos < end {
		a := Action{Addr: uint32(r.pos - base)}

		globalCall, err := r.u32()
		if err != nil {
			return err
		}
		switch globalCall {
		case 0:
		case 1:
			a.Call = true
		default:
			return fmt.Errorf("%w: global_call is %#x at action %#x", ErrFormat, globalCall, a.Addr)
		}
		if a.Opcode, err = r.u32(); err != nil {
			return err
		}
		nparams, err := r.u32()
		if err != nil {
			return err
		}
		length, err := r.u32()
		if err != nil {
			return err
		}
		dataLen := int64(length) - ActionHeaderLength - OperandLength*int64(nparams)
		if dataLen < 0 {
			return fmt.Errorf("%w: action %#x says %d bytes for %d operands", ErrLengthMismatch, a.Addr, length, nparams)
		}
		if OperandLength*int64(nparams) > int64(len(r.data)-r.pos) {
			return fmt.Errorf("%w: truncated at offset %#x", ErrFormat, r.pos)
		}

		dataBase := a.Addr + ActionHeaderLength + OperandLength*nparams
		if nparams > 0 {
			a.Params = make([]Operand, 0, nparams)
		}
		for i := uint32(0); i < nparams; i++ {
			var w [3]uint32
			for j := range w {
				if w[j], err = r.u32(); err != nil {
					return err
				}
			}
			p, err := classifyOperand(w, dataBase, uint32(dataLen), uint32(len(f.GlobalData)))
			if err != nil {
				return fmt.Errorf("action %#x operand %d: %w", a.Addr, i, err)
			}
			a.Params = append(a.Params, p)
		}
		if a.Data, err = r.bytes(int(dataLen)); err != nil {
			return err
		}
		f.Actions = append(f.Actions, a)
	}
	return nil
}

func (r *reader) exports(f *File, count uint32) error {
	for i := uint32(0); i < count; i++ {
		zero, err := r.u32()
		if err != nil {
			return err
		}
		if zero != 0 {
			return fmt.Errorf("%w: export %d leads with %#x", ErrFormat, i, zero)
		}
		name, err := r.bytes(ExportNameLength)
		if err != nil {
			return err
		}
		addr, err := r.u32()
		if err != nil {
			return err
		}
		if err := f.Export(name, addr); err != nil {
			return err
		}
	}
	return nil
}
