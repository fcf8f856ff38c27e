package index

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestRescanExtractsDeclarations(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "core.sail"),
		"val decode : bits(32) -> instr\n"+
			"function decode(op) = wildcard\n"+
			"union instr = { Wildcard : unit }\n"+
			"let xlen = 64\n"+
			"register PC : bits(64)\n")

	s := NewStore()
	s.Rescan(root)

	decode := s.Lookup("decode")
	if len(decode) != 2 {
		t.Fatalf("decode: got %d entries, want 2", len(decode))
	}
	kinds := map[Kind]bool{}
	for _, sym := range decode {
		kinds[sym.Kind] = true
		if sym.StartChar >= sym.EndChar {
			t.Errorf("empty range: %+v", sym)
		}
	}
	if !kinds[KindFunction] {
		t.Errorf("decode kinds: %v", kinds)
	}

	if got := s.Lookup("instr"); len(got) != 1 || got[0].Kind != KindType {
		t.Errorf("instr: %+v", got)
	}
	if got := s.Lookup("xlen"); len(got) != 1 || got[0].Kind != KindVariable {
		t.Errorf("xlen: %+v", got)
	}
	if got := s.Lookup("PC"); len(got) != 1 || got[0].Kind != KindField {
		t.Errorf("PC: %+v", got)
	}
}

func TestRescanClausePatternCapturesFirstWord(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "clauses.sail"),
		"function clause execute(ADD(rd, rs)) = X(rd)\n")

	s := NewStore()
	s.Rescan(root)

	// The declaration pattern and the clause pattern both fire on this
	// line: "clause" from the first, "execute" from the second.
	if got := s.Lookup("clause"); len(got) != 1 || got[0].Kind != KindFunction {
		t.Errorf("clause: %+v", got)
	}
	if got := s.Lookup("execute"); len(got) != 1 || got[0].Kind != KindMethod {
		t.Errorf("execute: %+v", got)
	}
}

func TestRescanReplacesPreviousTable(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.sail")
	writeFile(t, path, "val old_symbol : unit\n")

	s := NewStore()
	s.Rescan(root)
	if len(s.Lookup("old_symbol")) != 1 {
		t.Fatal("old_symbol missing after first scan")
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	writeFile(t, filepath.Join(root, "b.sail"), "val new_symbol : unit\n")
	s.Rescan(root)

	if got := s.Lookup("old_symbol"); len(got) != 0 {
		t.Errorf("stale symbol survived: %+v", got)
	}
	if len(s.Lookup("new_symbol")) != 1 {
		t.Error("new_symbol missing after rescan")
	}
	files := s.Files()
	if len(files) != 1 || filepath.Base(files[0]) != "b.sail" {
		t.Errorf("files: %v", files)
	}
}

func TestRescanSkipsOtherExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "notes.txt"), "val nope : unit\n")
	writeFile(t, filepath.Join(root, "sub", "deep.sail"), "val yep : unit\n")

	s := NewStore()
	s.Rescan(root)

	if len(s.Lookup("nope")) != 0 {
		t.Error("symbol extracted from non-sail file")
	}
	if len(s.Lookup("yep")) != 1 {
		t.Error("nested sail file not scanned")
	}
}

func TestRescanEmptyRootKeepsStore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.sail"), "val keep : unit\n")

	s := NewStore()
	s.Rescan(root)
	s.Rescan("")

	if len(s.Lookup("keep")) != 1 {
		t.Error("empty root wiped the store")
	}
}

func TestSymbolColumnsAreUTF16(t *testing.T) {
	// 𝄞 occupies 4 bytes but 2 UTF-16 units.
	line := "let x𝄞 = 1"
	if got := utf16Column(line, len("let ")); got != 4 {
		t.Errorf("ascii prefix: got %d", got)
	}
	if got := utf16Column(line, len("let x𝄞")); got != 7 {
		t.Errorf("after surrogate pair: got %d, want 7", got)
	}
}

func TestFileSymbolsSorted(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.sail")
	writeFile(t, path,
		"register Z : bits(1)\n"+
			"val alpha : unit\n"+
			"let beta = 0\n")

	s := NewStore()
	s.Rescan(root)

	syms := s.FileSymbols(path)
	if len(syms) != 3 {
		t.Fatalf("got %d symbols", len(syms))
	}
	for i := 1; i < len(syms); i++ {
		if syms[i].Line < syms[i-1].Line {
			t.Errorf("out of order: %+v", syms)
		}
	}
	if syms[0].Name != "Z" {
		t.Errorf("first symbol: %q", syms[0].Name)
	}
}

func TestMatchUsesLowercaseNames(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.sail"), "register CSR_mstatus : bits(64)\n")

	s := NewStore()
	s.Rescan(root)

	hits := s.Match(func(lower string) bool {
		return strings.Contains(lower, "mstatus")
	})
	if len(hits) != 1 || hits[0].Name != "CSR_mstatus" {
		t.Errorf("got %+v", hits)
	}
}
