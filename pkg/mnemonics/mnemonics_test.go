package mnemonics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	d := Default()
	if op, ok := d.Opcode("return"); !ok || op != 0 {
		t.Errorf("Opcode(return) = %d %v, want 0 true", op, ok)
	}
	if name, ok := d.Name(0); !ok || name != "return" {
		t.Errorf("Name(0) = %q %v, want return true", name, ok)
	}
	if _, ok := d.Name(1); ok {
		t.Error("Name(1) resolved in the default table")
	}
}

func TestNewRejectsSharedOpcode(t *testing.T) {
	_, err := New(map[string]uint32{"exit": 0, "return": 0})
	if err == nil {
		t.Fatal("New accepted two names for opcode 0")
	}
	// Sorted order keeps the message stable.
	if got := err.Error(); !strings.Contains(got, `"exit" and "return"`) {
		t.Errorf("error = %q, want the names in order", got)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "game.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tab, err := Load(writeConfig(t, "[mnemonics]\nreturn = 0\nspeaker = 0xd4\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if op, ok := tab.Opcode("speaker"); !ok || op != 0xD4 {
		t.Errorf("Opcode(speaker) = %#x %v, want 0xd4 true", op, ok)
	}
	if name, ok := tab.Name(0); !ok || name != "return" {
		t.Errorf("Name(0) = %q %v, want return true", name, ok)
	}
}

func TestLoadWithoutTable(t *testing.T) {
	tab, err := Load(writeConfig(t, "# no mnemonics here\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, ok := tab.Opcode("return"); !ok {
		t.Error("defaults not applied for a config without the table")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(writeConfig(t, "[mnemonics]\nhuge = 0x100000000\n")); err == nil {
		t.Error("Load accepted an opcode wider than 32 bits")
	}
	if _, err := Load(writeConfig(t, "not toml [\n")); err == nil {
		t.Error("Load accepted malformed TOML")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Load accepted a missing file")
	}
}
