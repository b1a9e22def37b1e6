// Package mnemonics maps opcode numbers to the instruction names used
// in text form. Games differ in their opcode tables, so beyond the
// built-in return terminator the mapping comes from a TOML file
// supplied per game.
package mnemonics

import (
	"fmt"
	"math"
	"sort"

	"github.com/BurntSushi/toml"
)

// Table is a bidirectional opcode mapping. Both directions are
// unique, so disassembly and assembly invert each other.
type Table struct {
	byName map[string]uint32
	byOp   map[uint32]string
}

// Default returns the built-in table, which only names the return
// terminator.
func Default() *Table {
	t, err := New(map[string]uint32{"return": 0})
	if err != nil {
		panic(err)
	}
	return t
}

// New builds a table from name to opcode pairs. Two names sharing an
// opcode is an error.
func New(names map[string]uint32) (*Table, error) {
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	t := &Table{
		byName: make(map[string]uint32, len(names)),
		byOp:   make(map[uint32]string, len(names)),
	}
	for _, name := range sorted {
		op := names[name]
		if prev, ok := t.byOp[op]; ok {
			return nil, fmt.Errorf("mnemonics %q and %q share opcode %#x", prev, name, op)
		}
		t.byName[name] = op
		t.byOp[op] = name
	}
	return t, nil
}

// Load reads a mnemonic table:
//
//	[mnemonics]
//	return = 0
//	speaker = 0xd4
//
// A file without the [mnemonics] table yields the defaults.
func Load(path string) (*Table, error) {
	var c struct {
		Mnemonics map[string]int64 `toml:"mnemonics"`
	}
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, fmt.Errorf("reading mnemonics: %w", err)
	}
	if c.Mnemonics == nil {
		return Default(), nil
	}
	names := make(map[string]uint32, len(c.Mnemonics))
	for name, op := range c.Mnemonics {
		if op < 0 || op > math.MaxUint32 {
			return nil, fmt.Errorf("mnemonic %q opcode %d does not fit in 32 bits", name, op)
		}
		names[name] = uint32(op)
	}
	return New(names)
}

// Opcode looks a name up.
func (t *Table) Opcode(name string) (uint32, bool) {
	op, ok := t.byName[name]
	return op, ok
}

// Name looks an opcode up.
func (t *Table) Name(op uint32) (string, bool) {
	name, ok := t.byOp[op]
	return name, ok
}
