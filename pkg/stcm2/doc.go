// Package stcm2 models the STCM2 script container and its binary
// encoding. It is the shared vocabulary of the assembler and the
// disassembler: both sides speak in Files, Actions and Operands, and
// this package owns the byte-level contract between them.
//
// # File Layout
//
// All integers are little-endian uint32. Sections appear in a fixed
// order:
//
//	"STCM2"            5 bytes
//	tag                27 bytes, NUL padded
//	metadata           48 bytes (see below)
//	"GLOBAL_DATA\0"    12 bytes
//	global data pool   4-aligned, length implied by the next magic
//	"CODE_START_\0"    12 bytes
//	action records     back to back
//	"EXPORT_DATA\0"    12 bytes
//	export records     40 bytes each
//	"COLLECTION_LINK\0"  16 bytes
//	trailer            last 4 bytes hold the total file length
//
// The metadata block holds the absolute offset of the first export
// record, the export count, one reserved word, the absolute offset of
// the trailer, and 32 bytes with no known meaning. Unknown fields are
// carried through decoding and echoed on re-encode; files built from
// source carry zeros.
//
// # Action Records
//
// A record is a 16-byte header (global_call flag, opcode, operand
// count, total record length), the 12-byte operands, then the action's
// private data pool. The stored length must equal
// 16 + 12*operands + len(data) exactly.
//
// Action addresses are byte offsets from the start of the code
// section. Call opcodes, ActionRef operands and export records all
// address actions in that space. GlobalDataPointer operands instead
// embed GlobalDataOffset (92), the file offset where the global pool
// begins.
//
// # Operand Classification
//
// Operands have no type field; decoding classifies the three raw words
// by a strict priority chain: the 0xFFFFFF41 ActionRef marker, then
// the owning action's data window, then the global data window, then
// literal value. Unused words carry a filler constant, 0x40000000 or
// 0xFF000000 depending on the tag family; decoding accepts either.
package stcm2
