package stcm2

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
)

// Magic strings delimiting the file sections.
const (
	Magic               = "STCM2"
	GlobalDataMagic     = "GLOBAL_DATA\x00"
	CodeStartMagic      = "CODE_START_\x00"
	ExportDataMagic     = "EXPORT_DATA\x00"
	CollectionLinkMagic = "COLLECTION_LINK\x00"
)

const (
	// TagLength pads the magic to a 32-byte file prefix.
	TagLength = 32 - len(Magic)

	// MetadataLength is the fixed block between the tag and the
	// global data magic.
	MetadataLength = 48

	// GlobalDataOffset is the file offset of the global data pool and
	// the base address embedded in GlobalDataPointer operands.
	GlobalDataOffset = len(Magic) + TagLength + MetadataLength + len(GlobalDataMagic)

	// ExportNameLength is the fixed width of an export record name.
	ExportNameLength = 32

	// ActionHeaderLength and OperandLength fix the record geometry:
	// a record is ActionHeaderLength + OperandLength per operand +
	// the action's data pool.
	ActionHeaderLength = 16
	OperandLength      = 12
)

// Filler words padding the unused slots of an operand. Which one a
// file uses depends on its tag family.
const (
	Filler40 uint32 = 0x40000000
	FillerFF uint32 = 0xFF000000
)

// FillerFor returns the filler word for a file tag. The STCM2L family
// pads with 0x40000000, everything else with 0xFF000000.
func FillerFor(tag []byte) uint32 {
	if len(tag) > 0 && tag[0] == 'L' {
		return Filler40
	}
	return FillerFF
}

func isFiller(w uint32) bool {
	return w == Filler40 || w == FillerFF
}

// Decoding and encoding failure classes. Errors returned by this
// package wrap one of these.
var (
	ErrBadMagic         = errors.New("bad magic")
	ErrFormat           = errors.New("malformed file")
	ErrLengthMismatch   = errors.New("length mismatch")
	ErrDuplicateAddress = errors.New("address not shared between sections")
	ErrDuplicateExport  = errors.New("action exported twice")
	ErrBadParameter     = errors.New("unclassifiable parameter")
	ErrEncoding         = errors.New("value does not fit the file encoding")
)

// Action is one record of the code section.
type Action struct {
	// Addr is the byte offset of the record from the start of the
	// code section.
	Addr uint32

	// Export is the action's name in the export table, raw with NUL
	// padding. nil when the action is unexported.
	Export []byte

	// Call marks the opcode as the address of another action rather
	// than an instruction number.
	Call   bool
	Opcode uint32

	Params []Operand

	// Data is the action's private pool, addressed by DataPointer
	// operands.
	Data []byte
}

// Len returns the encoded record length.
func (a *Action) Len() int {
	return ActionHeaderLength + OperandLength*len(a.Params) + len(a.Data)
}

// DataBase returns the code-relative address of the action's data
// pool.
func (a *Action) DataBase() uint32 {
	return a.Addr + ActionHeaderLength + OperandLength*uint32(len(a.Params))
}

// Label returns the name an action goes by in text form, or nil for
// an unexported action. Normally the name is cut at the first NUL;
// with junk preservation only the trailing padding is removed, so
// interior bytes survive a round trip.
func (a *Action) Label(junk bool) []byte {
	if a.Export == nil {
		return nil
	}
	if junk {
		return bytes.TrimRight(a.Export, "\x00")
	}
	name, _, _ := bytes.Cut(a.Export, []byte{0})
	return name
}

// File is a decoded STCM2 file.
type File struct {
	// Tag identifies the game build, at most TagLength bytes.
	Tag []byte

	// GlobalData is the shared pool addressed by GlobalDataPointer
	// operands. Its length must be a multiple of 4.
	GlobalData []byte

	// Actions is the code section in address order.
	Actions []Action

	// Reserved and Unknown carry the metadata bytes with no known
	// meaning. Decoding preserves them; files built from source leave
	// them zero.
	Reserved uint32
	Unknown  [32]byte

	// Trailer is the collection link payload. Decoding preserves it;
	// when nil, encoding writes the canonical three zero words. The
	// final four bytes always hold the total file length.
	Trailer []byte
}

// Filler returns the operand padding word implied by the file's tag.
func (f *File) Filler() uint32 {
	return FillerFor(f.Tag)
}

// ActionAt returns the action starting at the given code-relative
// address.
func (f *File) ActionAt(addr uint32) (*Action, bool) {
	i := sort.Search(len(f.Actions), func(i int) bool {
		return f.Actions[i].Addr >= addr
	})
	if i == len(f.Actions) || f.Actions[i].Addr != addr {
		return nil, false
	}
	return &f.Actions[i], true
}

// Export names the action at addr in the export table. It fails when
// no action starts at addr or the action is already named.
func (f *File) Export(name []byte, addr uint32) error {
	a, ok := f.ActionAt(addr)
	if !ok {
		return fmt.Errorf("%w: export %q references no action at %#x", ErrDuplicateAddress, name, addr)
	}
	if a.Export != nil {
		return fmt.Errorf("%w: %#x exported as %q and %q", ErrDuplicateExport, addr, a.Export, name)
	}
	if len(name) > ExportNameLength {
		return fmt.Errorf("%w: export name %q longer than %d bytes", ErrEncoding, name, ExportNameLength)
	}
	a.Export = name
	return nil
}
