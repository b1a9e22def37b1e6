// Package asm assembles the text form back into a binary file.
//
// Assembly is a single forward pass. References made by call
// instructions and [label] operands land in an insertion-ordered
// symbol table as pending slots; once the stream is consumed, a
// resolution sweep turns slots into action indices and a layout pass
// renames indices to byte offsets. Labels resolve to their last
// definition.
package asm

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/chazu/stcm2/pkg/mnemonics"
	"github.com/chazu/stcm2/pkg/pool"
	"github.com/chazu/stcm2/pkg/stcm2"
	"github.com/chazu/stcm2/pkg/textenc"
)

// Assembly failure classes.
var (
	ErrSyntax          = errors.New("syntax error")
	ErrUnresolvedLabel = errors.New("unresolved label")
	ErrMalformedEscape = errors.New("malformed escape")
)

var (
	addrPrefix = regexp.MustCompile(`^[0-9A-F]{6} `)
	labelDef   = regexp.MustCompile(`^((?:[!-\[\]-~]|\\x[0-9a-f]{2})+): `)
)

var b64 = base64.StdEncoding.WithPadding(base64.NoPadding)

// Assemble parses source and lays the result out as a file ready for
// Encode.
func Assemble(src io.Reader, names *mnemonics.Table, codec textenc.Codec) (*stcm2.File, error) {
	a := &assembler{
		names: names,
		codec: codec,
		syms:  newSymtab(),
		f:     &stcm2.File{},
	}

	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for sc.Scan() {
		a.line++
		line := strings.TrimSuffix(sc.Text(), "\r")
		line = addrPrefix.ReplaceAllString(line, "")
		if err := a.consume(line); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if a.line < 3 {
		return nil, fmt.Errorf("%w: missing file header", ErrSyntax)
	}

	if err := a.resolve(); err != nil {
		return nil, err
	}
	if err := a.layout(); err != nil {
		return nil, err
	}
	return a.f, nil
}

type assembler struct {
	names *mnemonics.Table
	codec textenc.Codec
	syms  *symtab
	f     *stcm2.File
	refs  []pendingRef
	line  int
}

// pendingRef is a reference whose target is still a symbol slot.
// param is the operand position, or -1 for a call opcode.
type pendingRef struct {
	action int
	param  int
	slot   int
	line   int
}

func (a *assembler) syntaxf(format string, args ...any) error {
	return fmt.Errorf("line %d: %w: %s", a.line, ErrSyntax, fmt.Sprintf(format, args...))
}

// consume handles one input line. The first three lines are the fixed
// header; after that every non-blank line is an instruction.
func (a *assembler) consume(line string) error {
	switch a.line {
	case 1:
		if !isASCII(line) || len(line) < 7 || !strings.HasPrefix(line, `.tag "`) || !strings.HasSuffix(line, `"`) {
			return a.syntaxf("improper tag %q", line)
		}
		a.f.Tag = []byte(line[6 : len(line)-1])
		return nil
	case 2:
		if !isASCII(line) || !strings.HasPrefix(line, ".global_data ") {
			return a.syntaxf("improper global data")
		}
		gd, err := b64.DecodeString(line[len(".global_data "):])
		if err != nil {
			return a.syntaxf("bad global data: %v", err)
		}
		if len(gd) > 0 {
			a.f.GlobalData = gd
		}
		return nil
	case 3:
		if line != ".code_start" {
			return a.syntaxf("improper code start")
		}
		return nil
	}
	// The label column pads instructions with spaces, and chunks are
	// separated by blank lines.
	line = strings.TrimLeft(line, " ")
	if line == "" {
		return nil
	}
	return a.instruction(line)
}

func (a *assembler) instruction(line string) error {
	index := len(a.f.Actions)
	act := stcm2.Action{}

	if m := labelDef.FindStringSubmatch(line); m != nil {
		line = line[len(m[0]):]
		name := unescapeLabel(m[1])
		a.syms.define(name, index)
		// Autolabel names exist only to wire references back up;
		// exporting them would grow the binary on every round trip.
		if !isAutolabel(name) {
			if len(name) > stcm2.ExportNameLength {
				return fmt.Errorf("line %d: %w: export name %q longer than %d bytes",
					a.line, stcm2.ErrEncoding, name, stcm2.ExportNameLength)
			}
			act.Export = name
		}
	}

	text, junkPart, err := a.cutJunk(line)
	if err != nil {
		return err
	}
	fields, err := a.splitQuoted(text, ", ")
	if err != nil {
		return err
	}

	switch op := fields[0]; {
	case strings.HasPrefix(op, "raw "):
		opcode, err := strconv.ParseUint(op[len("raw "):], 16, 32)
		if err != nil {
			return a.syntaxf("bad opcode in %q", op)
		}
		act.Opcode = uint32(opcode)
	case strings.HasPrefix(op, "call "):
		act.Call = true
		slot := a.syms.touch(unescapeLabel(op[len("call "):]))
		a.refs = append(a.refs, pendingRef{action: index, param: -1, slot: slot, line: a.line})
	default:
		opcode, ok := a.names.Opcode(op)
		if !ok {
			return a.syntaxf("invalid op %q", op)
		}
		act.Opcode = opcode
	}

	// Junk bytes form the head of the data pool; inline cells follow
	// in operand order.
	if junkPart != "" {
		if act.Data, err = a.junk(junkPart); err != nil {
			return err
		}
	}
	for i, field := range fields[1:] {
		p, err := a.operand(field, &act, index, i)
		if err != nil {
			return err
		}
		act.Params = append(act.Params, p)
	}

	a.f.Actions = append(a.f.Actions, act)
	return nil
}

// operand parses one parameter field. Inline strings and integers
// append a cell to the action's pool and point at it.
func (a *assembler) operand(field string, act *stcm2.Action, index, param int) (stcm2.Operand, error) {
	switch {
	case strings.HasPrefix(field, "[global_data+"):
		off, err := a.pointer(field, "[global_data+")
		if err != nil {
			return stcm2.Operand{}, err
		}
		return stcm2.Operand{Kind: stcm2.GlobalDataPointer, Arg: off}, nil

	case strings.HasPrefix(field, "[data+"):
		off, err := a.pointer(field, "[data+")
		if err != nil {
			return stcm2.Operand{}, err
		}
		return stcm2.Operand{Kind: stcm2.DataPointer, Arg: off}, nil

	case strings.HasPrefix(field, "["):
		name, ok := strings.CutSuffix(field[1:], "]")
		if !ok {
			return stcm2.Operand{}, a.syntaxf("no matching bracket in %q", field)
		}
		slot := a.syms.touch(unescapeLabel(name))
		a.refs = append(a.refs, pendingRef{action: index, param: param, slot: slot, line: a.line})
		return stcm2.Operand{Kind: stcm2.ActionRef}, nil

	case strings.HasPrefix(field, "="), strings.HasPrefix(field, "@="):
		num := strings.TrimPrefix(strings.TrimPrefix(field, "@"), "=")
		var n uint64
		var err error
		if hex, ok := strings.CutSuffix(num, "h"); ok {
			n, err = strconv.ParseUint(hex, 16, 32)
		} else {
			n, err = strconv.ParseUint(num, 10, 32)
		}
		if err != nil {
			return stcm2.Operand{}, a.syntaxf("bad integer literal %q", field)
		}
		off := uint32(len(act.Data))
		act.Data = pool.AppendInt(act.Data, uint32(n), field[0] == '@')
		return stcm2.Operand{Kind: stcm2.DataPointer, Arg: off}, nil

	case strings.HasPrefix(field, `"`), strings.HasPrefix(field, `@"`):
		verbatim := field[0] == '@'
		b, err := a.unquote(strings.TrimPrefix(field, "@"))
		if err != nil {
			return stcm2.Operand{}, err
		}
		off := uint32(len(act.Data))
		if verbatim {
			if act.Data, err = pool.AppendAligned(act.Data, b); err != nil {
				return stcm2.Operand{}, fmt.Errorf("line %d: %w", a.line, err)
			}
		} else {
			act.Data = pool.AppendText(act.Data, b)
		}
		return stcm2.Operand{Kind: stcm2.DataPointer, Arg: off}, nil

	default:
		n, err := strconv.ParseUint(field, 16, 32)
		if err != nil {
			return stcm2.Operand{}, a.syntaxf("bad parameter %q", field)
		}
		return stcm2.Operand{Kind: stcm2.Value, Arg: uint32(n)}, nil
	}
}

// pointer parses a bracketed decimal offset like [data+12].
func (a *assembler) pointer(field, prefix string) (uint32, error) {
	body, ok := strings.CutSuffix(field[len(prefix):], "]")
	if !ok {
		return 0, a.syntaxf("no matching bracket in %q", field)
	}
	n, err := strconv.ParseUint(body, 10, 32)
	if err != nil {
		return 0, a.syntaxf("bad offset in %q", field)
	}
	return uint32(n), nil
}

// junk rebuilds the head of a data pool from comma-separated items:
// base64 chunks, canonically padded strings, or @-prefixed strings
// taken verbatim.
func (a *assembler) junk(part string) ([]byte, error) {
	items, err := a.splitQuoted(part, ", ")
	if err != nil {
		return nil, err
	}
	var out []byte
	for _, item := range items {
		switch {
		case strings.HasPrefix(item, `"`):
			b, err := a.unquote(item)
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
			out = append(out, make([]byte, 4-len(b)%4)...)
		case strings.HasPrefix(item, `@"`):
			b, err := a.unquote(item[1:])
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		default:
			b, err := b64.DecodeString(item)
			if err != nil {
				return nil, a.syntaxf("bad junk %q: %v", item, err)
			}
			out = append(out, b...)
		}
	}
	return out, nil
}

// cutJunk splits an instruction from its junk section.
func (a *assembler) cutJunk(line string) (text, junk string, err error) {
	parts, err := a.splitQuoted(line, " ! ")
	if err != nil {
		return "", "", err
	}
	switch len(parts) {
	case 1:
		return parts[0], "", nil
	case 2:
		return parts[0], parts[1], nil
	}
	return "", "", a.syntaxf("multiple junk sections")
}

// splitQuoted splits on sep everywhere outside double quotes. Inside
// quotes a backslash escapes the next byte.
func (a *assembler) splitQuoted(s, sep string) ([]string, error) {
	var parts []string
	start := 0
	inQuote := false
	for i := 0; i < len(s); {
		switch c := s[i]; {
		case inQuote && c == '\\':
			i += 2
		case c == '"':
			inQuote = !inQuote
			i++
		case !inQuote && strings.HasPrefix(s[i:], sep):
			parts = append(parts, s[start:i])
			i += len(sep)
			start = i
		default:
			i++
		}
	}
	if inQuote {
		return nil, a.syntaxf("unterminated string")
	}
	return append(parts, s[start:]), nil
}

// unquote parses a quoted string token into encoded bytes. Literal
// text runs through the codec; \xHH and \XHH escapes splice raw bytes
// into the encoded stream.
func (a *assembler) unquote(field string) ([]byte, error) {
	if len(field) < 2 || field[0] != '"' || field[len(field)-1] != '"' {
		return nil, a.syntaxf("bad string token %q", field)
	}
	s := field[1 : len(field)-1]

	var out []byte
	var lit strings.Builder
	flush := func() error {
		if lit.Len() == 0 {
			return nil
		}
		b, err := a.codec.Encode(lit.String())
		if err != nil {
			return fmt.Errorf("line %d: %w", a.line, err)
		}
		out = append(out, b...)
		lit.Reset()
		return nil
	}

	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r != '\\' {
			lit.WriteRune(r)
			i += size
			continue
		}
		if i+1 >= len(s) {
			return nil, fmt.Errorf("line %d: %w: trailing backslash", a.line, ErrMalformedEscape)
		}
		switch c := s[i+1]; c {
		case '"', '\\':
			lit.WriteByte(c)
			i += 2
		case 'x', 'X':
			if i+4 > len(s) {
				return nil, fmt.Errorf("line %d: %w: %q", a.line, ErrMalformedEscape, s[i:])
			}
			b, err := strconv.ParseUint(s[i+2:i+4], 16, 8)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w: %q", a.line, ErrMalformedEscape, s[i:i+4])
			}
			if err := flush(); err != nil {
				return nil, err
			}
			out = append(out, byte(b))
			i += 4
		default:
			return nil, fmt.Errorf("line %d: %w: \\%c", a.line, ErrMalformedEscape, c)
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *assembler) resolve() error {
	for _, r := range a.refs {
		target, ok := a.syms.lookup(r.slot)
		if !ok {
			return fmt.Errorf("line %d: %w: %q", r.line, ErrUnresolvedLabel, a.syms.name(r.slot))
		}
		if r.param < 0 {
			a.f.Actions[r.action].Opcode = uint32(target)
		} else {
			a.f.Actions[r.action].Params[r.param].Arg = uint32(target)
		}
	}
	return nil
}

// layout assigns byte offsets by prefix sum, then renames index-space
// call targets and jump operands into offset space.
func (a *assembler) layout() error {
	renames := make([]uint32, len(a.f.Actions))
	total := int64(0)
	for i := range a.f.Actions {
		renames[i] = uint32(total)
		a.f.Actions[i].Addr = uint32(total)
		total += int64(a.f.Actions[i].Len())
		if total > math.MaxUint32 {
			return fmt.Errorf("%w: code section grows past %d bytes", stcm2.ErrEncoding, uint32(math.MaxUint32))
		}
	}
	for i := range a.f.Actions {
		act := &a.f.Actions[i]
		if act.Call {
			act.Opcode = renames[act.Opcode]
		}
		for j := range act.Params {
			if act.Params[j].Kind == stcm2.ActionRef {
				act.Params[j].Arg = renames[act.Params[j].Arg]
			}
		}
	}
	return nil
}

// symtab is the insertion-ordered label table. A name keeps its slot
// across redefinitions, so references always land on the latest
// definition.
type symtab struct {
	slots map[string]int
	names []string
	defs  []int
}

func newSymtab() *symtab {
	return &symtab{slots: make(map[string]int)}
}

// touch returns the slot for a name, inserting an undefined entry on
// first sight.
func (s *symtab) touch(name []byte) int {
	k := string(name)
	if i, ok := s.slots[k]; ok {
		return i
	}
	s.slots[k] = len(s.defs)
	s.names = append(s.names, k)
	s.defs = append(s.defs, -1)
	return len(s.defs) - 1
}

func (s *symtab) define(name []byte, action int) {
	s.defs[s.touch(name)] = action
}

func (s *symtab) lookup(slot int) (int, bool) {
	return s.defs[slot], s.defs[slot] >= 0
}

func (s *symtab) name(slot int) string {
	return s.names[slot]
}

// unescapeLabel decodes the \xhh escapes of a label token back to raw
// bytes. Anything else passes through unchanged.
func unescapeLabel(s string) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); {
		if s[i] == '\\' && i+4 <= len(s) && s[i+1] == 'x' && lowerHex(s[i+2]) && lowerHex(s[i+3]) {
			b, _ := strconv.ParseUint(s[i+2:i+4], 16, 8)
			out = append(out, byte(b))
			i += 4
			continue
		}
		out = append(out, s[i])
		i++
	}
	return out
}

func lowerHex(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f'
}

func isAutolabel(name []byte) bool {
	return strings.HasPrefix(string(name), "fn_") || strings.HasPrefix(string(name), "local_")
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
