package integration_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/stcm2/pkg/asm"
	"github.com/chazu/stcm2/pkg/disasm"
	"github.com/chazu/stcm2/pkg/extract"
	"github.com/chazu/stcm2/pkg/mnemonics"
	"github.com/chazu/stcm2/pkg/pool"
	"github.com/chazu/stcm2/pkg/stcm2"
	"github.com/chazu/stcm2/pkg/textenc"
)

// ---------------------------------------------------------------------------
// Integration test helpers
// ---------------------------------------------------------------------------

// script wraps instruction lines in the fixed three-line file header.
func script(lines ...string) string {
	return ".tag \"TOWNSHIP\"\n.global_data AQAAAAIAAAA\n.code_start\n\n" + strings.Join(lines, "\n") + "\n"
}

// assemble builds a file from listing text.
func assemble(t *testing.T, names *mnemonics.Table, codec textenc.Codec, source string) *stcm2.File {
	t.Helper()
	f, err := asm.Assemble(strings.NewReader(source), names, codec)
	if err != nil {
		t.Fatalf("assemble error: %v\nsource: %s", err, source)
	}
	return f
}

// encode renders a file to its binary form.
func encode(t *testing.T, f *stcm2.File) []byte {
	t.Helper()
	data, err := f.Encode()
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	return data
}

// listing decodes a binary and disassembles it back to text, the full
// read-side pipeline.
func listing(t *testing.T, data []byte, names *mnemonics.Table, codec textenc.Codec, opts disasm.Options) string {
	t.Helper()
	f, err := stcm2.Decode(data)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if err := disasm.Autolabel(f); err != nil {
		t.Fatalf("autolabel error: %v", err)
	}
	var sb strings.Builder
	if err := disasm.Write(&sb, f, names, codec, opts); err != nil {
		t.Fatalf("disassembly error: %v", err)
	}
	return sb.String()
}

// sampleMnemonics loads the opcode table shipped with the sample script.
func sampleMnemonics(t *testing.T) *mnemonics.Table {
	t.Helper()
	names, err := mnemonics.Load(filepath.Join("..", "..", "examples", "mnemonics.toml"))
	if err != nil {
		t.Fatalf("loading sample mnemonics: %v", err)
	}
	return names
}

// ---------------------------------------------------------------------------
// 1. Assemble, encode, decode: structure survives the binary form
// ---------------------------------------------------------------------------

func TestIntegrationE2E_AssembleEncodeDecode(t *testing.T) {
	f := assemble(t, mnemonics.Default(), textenc.UTF8{}, script(
		`  entry: raw D4, "Hello pipeline", 3`,
		`         call helper`,
		`         return`,
		``,
		` helper: raw 21, [global_data+4]`,
		`         return`,
	))

	f2, err := stcm2.Decode(encode(t, f))
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if got := string(f2.Tag); got != "TOWNSHIP" {
		t.Errorf("tag = %q, want %q", got, "TOWNSHIP")
	}
	if len(f2.Actions) != 5 {
		t.Fatalf("decoded %d actions, want 5", len(f2.Actions))
	}
	if got := string(f2.Actions[0].Label(false)); got != "entry" {
		t.Errorf("first label = %q, want %q", got, "entry")
	}

	call := f2.Actions[1]
	if !call.Call || call.Opcode != f2.Actions[3].Addr {
		t.Errorf("call opcode = %#x, want target %#x", call.Opcode, f2.Actions[3].Addr)
	}
	if got := string(f2.Actions[3].Label(false)); got != "helper" {
		t.Errorf("call target label = %q, want %q", got, "helper")
	}

	params := f2.Actions[0].Params
	if len(params) != 2 || params[0].Kind != stcm2.DataPointer || params[1] != (stcm2.Operand{Kind: stcm2.Value, Arg: 3}) {
		t.Fatalf("entry params = %+v", params)
	}
	c, _, err := pool.Decode(f2.Actions[0].Data, int(params[0].Arg))
	if err != nil || c.Kind != pool.Text || string(c.Text) != "Hello pipeline" {
		t.Errorf("entry cell = %+v, %v, want text %q", c, err, "Hello pipeline")
	}

	if p := f2.Actions[3].Params[0]; p != (stcm2.Operand{Kind: stcm2.GlobalDataPointer, Arg: 4}) {
		t.Errorf("helper param = %+v, want global_data+4", p)
	}
}

// ---------------------------------------------------------------------------
// 2. Text round trip: assemble, disassemble, reassemble byte for byte
// ---------------------------------------------------------------------------

func TestIntegrationE2E_TextRoundTrip(t *testing.T) {
	f := assemble(t, mnemonics.Default(), textenc.UTF8{}, script(
		`  entry: raw D4, "Hello pipeline", =7, @=DEADBEEFh`,
		`         raw D8, [local_skip]`,
		`local_skip: return`,
	))
	want := encode(t, f)

	text := listing(t, want, mnemonics.Default(), textenc.UTF8{}, disasm.Options{Addresses: true})
	back := assemble(t, mnemonics.Default(), textenc.UTF8{}, text)
	if got := encode(t, back); !bytes.Equal(got, want) {
		t.Errorf("round trip changed the binary\nlisting:\n%s", text)
	}
}

// ---------------------------------------------------------------------------
// 3. Mnemonic tables: opcode names flow from config to listing
// ---------------------------------------------------------------------------

func TestIntegrationE2E_MnemonicsFromConfig(t *testing.T) {
	names := sampleMnemonics(t)

	op, ok := names.Opcode("speaker")
	if !ok || op != 0xD4 {
		t.Fatalf("speaker opcode = %#x, %v, want 0xd4", op, ok)
	}

	f := assemble(t, names, textenc.UTF8{}, script(
		`  greet: speaker, "Maple"`,
		`         return`,
	))
	if got := f.Actions[0].Opcode; got != 0xD4 {
		t.Errorf("assembled opcode = %#x, want 0xd4", got)
	}

	text := listing(t, encode(t, f), names, textenc.UTF8{}, disasm.Options{})
	if !strings.Contains(text, `speaker, "Maple"`) {
		t.Errorf("listing does not name the opcode:\n%s", text)
	}
}

// ---------------------------------------------------------------------------
// 4. Sample script: the shipped example assembles and extracts cleanly
// ---------------------------------------------------------------------------

func TestIntegrationE2E_SampleScript(t *testing.T) {
	names := sampleMnemonics(t)
	source, err := os.ReadFile(filepath.Join("..", "..", "examples", "hello.txt"))
	if err != nil {
		t.Fatalf("reading sample script: %v", err)
	}

	f, err := asm.Assemble(bytes.NewReader(source), names, textenc.UTF8{})
	if err != nil {
		t.Fatalf("assemble error: %v", err)
	}
	data := encode(t, f)
	f2, err := stcm2.Decode(data)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}

	rows := extract.Scan("hello.txt", f2, textenc.UTF8{})
	want := []extract.Row{
		{File: "hello.txt", Address: 0, Param: 0, Label: "main", Body: "Narrator"},
		{File: "hello.txt", Address: 56, Param: 0, Label: "main", Body: "Good morning, town of Beacontree."},
		{File: "hello.txt", Address: 136, Param: 0, Label: "main", Body: "The bakery opens in an hour."},
		{File: "hello.txt", Address: 292, Param: 0, Label: "farewell", Body: "See you tomorrow."},
	}
	if len(rows) != len(want) {
		t.Fatalf("scanned %d rows, want %d: %+v", len(rows), len(want), rows)
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, rows[i], want[i])
		}
	}

	text := listing(t, data, names, textenc.UTF8{}, disasm.Options{})
	back := assemble(t, names, textenc.UTF8{}, text)
	if !bytes.Equal(encode(t, back), data) {
		t.Errorf("sample script round trip changed the binary\nlisting:\n%s", text)
	}
}

// ---------------------------------------------------------------------------
// 5. Strings database: scanned rows survive a sqlite round trip
// ---------------------------------------------------------------------------

func TestIntegrationE2E_StringsDatabase(t *testing.T) {
	f := assemble(t, mnemonics.Default(), textenc.UTF8{}, script(
		`  intro: raw D4, "Stormy night"`,
		`         raw D4, "Lantern lit"`,
		`         return`,
	))
	rows := extract.Scan("night.stcm2", f, textenc.UTF8{})
	if len(rows) != 2 {
		t.Fatalf("scanned %d rows, want 2: %+v", len(rows), rows)
	}

	db, err := extract.OpenDB(":memory:")
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	defer db.Close()

	if err := db.Add(rows); err != nil {
		t.Fatalf("add error: %v", err)
	}
	got, err := db.Strings("night.stcm2")
	if err != nil {
		t.Fatalf("query error: %v", err)
	}
	if len(got) != len(rows) {
		t.Fatalf("queried %d rows, want %d", len(got), len(rows))
	}
	for i := range rows {
		if got[i] != rows[i] {
			t.Errorf("row %d = %+v, want %+v", i, got[i], rows[i])
		}
	}
}

// ---------------------------------------------------------------------------
// 6. Shift-JIS: legacy encoded text round trips through the listing
// ---------------------------------------------------------------------------

func TestIntegrationE2E_ShiftJISRoundTrip(t *testing.T) {
	sjis := textenc.ShiftJIS{}
	f := assemble(t, mnemonics.Default(), sjis, script(
		`  greet: raw D4, "こんにちは、世界。"`,
		`         return`,
	))

	c, _, err := pool.Decode(f.Actions[0].Data, 0)
	if err != nil || c.Kind != pool.Text {
		t.Fatalf("cell = %+v, %v, want text", c, err)
	}
	if len(c.Text) != 18 {
		t.Errorf("encoded to %d bytes, want 18", len(c.Text))
	}
	if got := pool.DecodeReplacing(sjis, c.Text); got != "こんにちは、世界。" {
		t.Errorf("decoded text = %q, want %q", got, "こんにちは、世界。")
	}

	want := encode(t, f)
	text := listing(t, want, mnemonics.Default(), sjis, disasm.Options{})
	back := assemble(t, mnemonics.Default(), sjis, text)
	if got := encode(t, back); !bytes.Equal(got, want) {
		t.Errorf("round trip changed the binary\nlisting:\n%s", text)
	}
}

// ---------------------------------------------------------------------------
// 7. Junk preservation: undecodable pool bytes survive only with -j
// ---------------------------------------------------------------------------

func TestIntegrationE2E_JunkPreservation(t *testing.T) {
	f := assemble(t, mnemonics.Default(), textenc.UTF8{}, script(
		`  entry: raw 40, "market day" ! AwIB`,
		`         return`,
	))
	want := encode(t, f)

	text := listing(t, want, mnemonics.Default(), textenc.UTF8{}, disasm.Options{Junk: true})
	if !strings.Contains(text, " ! AwIB") {
		t.Fatalf("listing does not carry the junk bytes:\n%s", text)
	}
	back := assemble(t, mnemonics.Default(), textenc.UTF8{}, text)
	if got := encode(t, back); !bytes.Equal(got, want) {
		t.Errorf("round trip changed the binary\nlisting:\n%s", text)
	}

	plain := listing(t, want, mnemonics.Default(), textenc.UTF8{}, disasm.Options{})
	stripped := assemble(t, mnemonics.Default(), textenc.UTF8{}, plain)
	if got := encode(t, stripped); bytes.Equal(got, want) {
		t.Error("plain listing kept the junk bytes; want them dropped")
	}
}
