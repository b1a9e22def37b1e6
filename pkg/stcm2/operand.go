package stcm2

import "fmt"

// OperandKind says how an operand's payload word is to be read.
type OperandKind uint8

const (
	// Value is a literal number.
	Value OperandKind = iota

	// ActionRef is the code-relative address of another action.
	ActionRef

	// DataPointer is a byte offset into the owning action's data
	// pool.
	DataPointer

	// GlobalDataPointer is a byte offset into the file's global data
	// pool.
	GlobalDataPointer
)

func (k OperandKind) String() string {
	switch k {
	case Value:
		return "value"
	case ActionRef:
		return "action ref"
	case DataPointer:
		return "data pointer"
	case GlobalDataPointer:
		return "global data pointer"
	}
	return fmt.Sprintf("OperandKind(%d)", uint8(k))
}

// Operand is one 12-byte argument of an action. Arg is a literal, a
// target address or a pool offset depending on Kind.
type Operand struct {
	Kind OperandKind
	Arg  uint32
}

// actionRefMarker tags the first word of an ActionRef operand.
const actionRefMarker uint32 = 0xFFFFFF41

// classifyOperand maps three raw operand words to their kind. The
// order is a strict priority chain: ActionRef marker first, then the
// owning action's data window, then the global data window, then
// literal. dataBase is the code-relative address of the owning
// action's pool.
func classifyOperand(w [3]uint32, dataBase, dataLen, globalLen uint32) (Operand, error) {
	switch {
	case w[0] == actionRefMarker && isFiller(w[2]):
		return Operand{Kind: ActionRef, Arg: w[1]}, nil
	case isFiller(w[1]) && isFiller(w[2]):
		addr := w[0]
		switch {
		case addr >= dataBase && addr < dataBase+dataLen:
			return Operand{Kind: DataPointer, Arg: addr - dataBase}, nil
		case addr >= GlobalDataOffset && addr < GlobalDataOffset+globalLen:
			return Operand{Kind: GlobalDataPointer, Arg: addr - GlobalDataOffset}, nil
		default:
			return Operand{Kind: Value, Arg: addr}, nil
		}
	}
	return Operand{}, fmt.Errorf("%w: %08X %08X %08X", ErrBadParameter, w[0], w[1], w[2])
}

// encode expands the operand back to its three raw words.
func (o Operand) encode(dataBase, filler uint32) [3]uint32 {
	switch o.Kind {
	case ActionRef:
		return [3]uint32{actionRefMarker, o.Arg, filler}
	case DataPointer:
		return [3]uint32{dataBase + o.Arg, filler, filler}
	case GlobalDataPointer:
		return [3]uint32{GlobalDataOffset + o.Arg, filler, filler}
	}
	return [3]uint32{o.Arg, filler, filler}
}
