// Package disasm renders a decoded file as assemblable text.
//
// The pipeline is Autolabel then Write. Labeling names every call and
// jump target that the export table leaves anonymous; writing emits
// one line per action, grouped into chunks split at bare return
// terminators. With junk preservation on, the text carries enough to
// reassemble the original file byte for byte.
package disasm

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/chazu/stcm2/pkg/mnemonics"
	"github.com/chazu/stcm2/pkg/pool"
	"github.com/chazu/stcm2/pkg/stcm2"
	"github.com/chazu/stcm2/pkg/textenc"
)

var b64 = base64.StdEncoding.WithPadding(base64.NoPadding)

// Options control the text form.
type Options struct {
	// Addresses prefixes every action line with its six-digit hex
	// address.
	Addresses bool

	// Junk reproduces undecodable pool bytes and export name padding
	// exactly, at the cost of noisier output.
	Junk bool
}

// Autolabel names every anonymous call and jump target: call targets
// become fn_ADDR, jump targets local_ADDR. A call target that was
// first seen as a jump target is renamed, so fn_ wins. Labeling a
// file twice is a no-op, since the first pass leaves no anonymous
// targets behind.
func Autolabel(f *stcm2.File) error {
	labels := make(map[uint32][]byte)
	for i := range f.Actions {
		a := &f.Actions[i]
		if a.Call {
			target, ok := f.ActionAt(a.Opcode)
			if !ok {
				return fmt.Errorf("%w: call at %#x targets no action at %#x", stcm2.ErrDuplicateAddress, a.Addr, a.Opcode)
			}
			if target.Export == nil && !bytes.HasPrefix(labels[a.Opcode], []byte("fn")) {
				labels[a.Opcode] = fmt.Appendf(nil, "fn_%X", a.Opcode)
			}
		}
		for _, p := range a.Params {
			if p.Kind != stcm2.ActionRef {
				continue
			}
			target, ok := f.ActionAt(p.Arg)
			if !ok {
				return fmt.Errorf("%w: jump at %#x targets no action at %#x", stcm2.ErrDuplicateAddress, a.Addr, p.Arg)
			}
			if target.Export == nil && len(labels[p.Arg]) == 0 {
				labels[p.Arg] = fmt.Appendf(nil, "local_%X", p.Arg)
			}
		}
	}
	for addr, name := range labels {
		a, _ := f.ActionAt(addr)
		a.Export = name
	}
	return nil
}

// Chunk is a run of actions kept together in the output.
type Chunk struct {
	Actions []stcm2.Action
	labels  map[uint32]bool
}

// Chunks splits the code after every bare terminator, then merges any
// chunks that share an address with a jump into them, so jumps and
// their targets stay in one block. Actions keep their order and every
// address ends up in exactly one chunk.
func Chunks(f *stcm2.File) []Chunk {
	var chunks []Chunk
	cur := Chunk{labels: make(map[uint32]bool)}
	for _, a := range f.Actions {
		cur.labels[a.Addr] = true
		for _, p := range a.Params {
			if p.Kind == stcm2.ActionRef {
				cur.labels[p.Arg] = true
			}
		}
		cur.Actions = append(cur.Actions, a)
		if !a.Call && a.Opcode == 0 {
			chunks = append(chunks, cur)
			cur = Chunk{labels: make(map[uint32]bool)}
		}
	}
	if len(cur.Actions) > 0 {
		chunks = append(chunks, cur)
	}

	// Merging can connect the current chunk to one it previously
	// missed, so rescan until it settles before moving on.
	for cur := 0; cur+1 < len(chunks); cur++ {
		for {
			last := -1
			for i := len(chunks) - 1; i > cur; i-- {
				if intersects(chunks[cur].labels, chunks[i].labels) {
					last = i
					break
				}
			}
			if last < 0 {
				break
			}
			for i := cur + 1; i <= last; i++ {
				for addr := range chunks[i].labels {
					chunks[cur].labels[addr] = true
				}
				chunks[cur].Actions = append(chunks[cur].Actions, chunks[i].Actions...)
			}
			chunks = append(chunks[:cur+1], chunks[last+1:]...)
		}
	}
	return chunks
}

func intersects(a, b map[uint32]bool) bool {
	if len(b) < len(a) {
		a, b = b, a
	}
	for addr := range a {
		if b[addr] {
			return true
		}
	}
	return false
}

// Write renders the file as text. Every call and jump target must
// carry a label, so run Autolabel first on files straight from
// Decode.
func Write(w io.Writer, f *stcm2.File, names *mnemonics.Table, codec textenc.Codec, opts Options) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, ".tag \"%s\"\n", bytes.TrimRight(f.Tag, "\x00"))
	fmt.Fprintf(bw, ".global_data %s\n", b64.EncodeToString(f.GlobalData))
	fmt.Fprintln(bw, ".code_start")

	wr := &writer{bw: bw, f: f, names: names, codec: codec, opts: opts, maxlabel: 14}
	for i := range f.Actions {
		if l := f.Actions[i].Label(opts.Junk); len(l) > wr.maxlabel {
			wr.maxlabel = len(l)
		}
	}

	for _, chunk := range Chunks(f) {
		fmt.Fprintln(bw)
		for i := range chunk.Actions {
			if err := wr.action(&chunk.Actions[i]); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

type writer struct {
	bw       *bufio.Writer
	f        *stcm2.File
	names    *mnemonics.Table
	codec    textenc.Codec
	opts     Options
	maxlabel int
}

func (w *writer) action(a *stcm2.Action) error {
	if w.opts.Addresses {
		fmt.Fprintf(w.bw, "%06X ", a.Addr)
	}
	if label := a.Label(w.opts.Junk); label != nil {
		fmt.Fprintf(w.bw, "%*s: ", w.maxlabel, escapeLabel(label))
	} else {
		fmt.Fprintf(w.bw, "%*s  ", w.maxlabel, "")
	}

	switch name, named := w.names.Name(a.Opcode); {
	case a.Call:
		label, err := w.targetLabel(a.Opcode)
		if err != nil {
			return fmt.Errorf("call at %#x: %w", a.Addr, err)
		}
		fmt.Fprintf(w.bw, "call %s", label)
	case named:
		w.bw.WriteString(name)
	default:
		fmt.Fprintf(w.bw, "raw %X", a.Opcode)
	}

	cells, junk, err := scanPool(a.Data)
	if err != nil {
		return fmt.Errorf("action %#x: %w", a.Addr, err)
	}

	for _, p := range a.Params {
		switch p.Kind {
		case stcm2.Value:
			fmt.Fprintf(w.bw, ", %X", p.Arg)
		case stcm2.ActionRef:
			label, err := w.targetLabel(p.Arg)
			if err != nil {
				return fmt.Errorf("jump at %#x: %w", a.Addr, err)
			}
			fmt.Fprintf(w.bw, ", [%s]", label)
		case stcm2.GlobalDataPointer:
			fmt.Fprintf(w.bw, ", [global_data+%d]", p.Arg)
		case stcm2.DataPointer:
			c, ok := cells[p.Arg]
			if !ok {
				return fmt.Errorf("%w: action %#x references no cell at data+%d", stcm2.ErrBadParameter, a.Addr, p.Arg)
			}
			if err := w.cell(c); err != nil {
				return err
			}
		}
	}

	if w.opts.Junk && len(junk) > 0 {
		fmt.Fprintf(w.bw, " ! %s", b64.EncodeToString(junk))
	}
	fmt.Fprintln(w.bw)
	return nil
}

func (w *writer) targetLabel(addr uint32) (string, error) {
	target, ok := w.f.ActionAt(addr)
	if !ok {
		return "", fmt.Errorf("%w: no action at %#x", stcm2.ErrDuplicateAddress, addr)
	}
	label := target.Label(w.opts.Junk)
	if label == nil {
		return "", fmt.Errorf("action %#x has no label", addr)
	}
	return escapeLabel(label), nil
}

func (w *writer) cell(c pool.Cell) error {
	switch c.Kind {
	case pool.Int0, pool.Int1:
		prefix := ""
		if c.Kind == pool.Int1 {
			prefix = "@"
		}
		// Small integers read best in decimal, address-sized ones in
		// hex.
		if c.Int < 0x10000000 {
			fmt.Fprintf(w.bw, ", %s=%d", prefix, c.Int)
		} else {
			fmt.Fprintf(w.bw, ", %s=%Xh", prefix, c.Int)
		}
	case pool.Text:
		w.bw.WriteString(`, "`)
		for _, r := range pool.DecodeReplacing(w.codec, c.Text) {
			switch {
			case unicode.IsControl(r):
				fmt.Fprintf(w.bw, `\x%02x`, r)
			case r == pool.Marker:
				w.bw.WriteByte('\\')
			case r == '"' || r == '\\':
				w.bw.WriteByte('\\')
				w.bw.WriteRune(r)
			default:
				w.bw.WriteRune(r)
			}
		}
		w.bw.WriteByte('"')
	}
	return nil
}

// scanPool decodes an action's data area. Cells may follow a junk
// prefix but must then run back to back: the text form has nowhere to
// put junk between cells.
func scanPool(data []byte) (map[uint32]pool.Cell, []byte, error) {
	cells := make(map[uint32]pool.Cell)
	var junk []byte
	base, pos := 0, 0
	first := true
	for base+pos < len(data) {
		c, n, err := pool.Decode(data, base+pos)
		if err != nil {
			pos++
			continue
		}
		if pos != 0 {
			if !first {
				return nil, nil, fmt.Errorf("%w: junk after the first cell", pool.ErrBadCell)
			}
			junk = data[:pos]
		}
		first = false
		cells[uint32(base+pos)] = c
		base += pos + n
		pos = 0
	}
	if pos > 0 && !first {
		return nil, nil, fmt.Errorf("%w: junk after the first cell", pool.ErrBadCell)
	}
	if pos > 0 {
		junk = data[base:]
	}
	return cells, junk, nil
}

// escapeLabel renders a label byte string as ASCII, escaping anything
// outside the printable range plus space and backslash.
func escapeLabel(label []byte) string {
	var sb strings.Builder
	for _, b := range label {
		if b >= '!' && b <= '~' && b != '\\' {
			sb.WriteByte(b)
		} else {
			fmt.Fprintf(&sb, `\x%02x`, b)
		}
	}
	return sb.String()
}
