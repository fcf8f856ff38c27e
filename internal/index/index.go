// Package index maintains the project-wide symbol table and file set for a
// Sail workspace. Symbols are extracted by line-anchored textual patterns,
// not a parse: matches inside comments or string literals are an accepted
// approximation. Each rescan replaces the whole table and file set in one
// atomic swap; nothing is updated incrementally.
package index

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// SourceExt is the Sail source file extension the scanner looks for.
const SourceExt = ".sail"

// Kind classifies a declaration site.
type Kind uint8

const (
	KindFunction Kind = iota
	KindType
	KindMethod
	KindVariable
	KindField
)

// LSP returns the protocol SymbolKind value.
func (k Kind) LSP() int {
	switch k {
	case KindFunction:
		return 12
	case KindType:
		return 5
	case KindMethod:
		return 6
	case KindVariable:
		return 13
	case KindField:
		return 8
	default:
		return 13
	}
}

func (k Kind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindType:
		return "type"
	case KindMethod:
		return "method"
	case KindVariable:
		return "variable"
	case KindField:
		return "field"
	default:
		return "unknown"
	}
}

// Symbol is one extracted declaration. Columns are UTF-16 code units,
// converted from byte offsets at scan time so handlers can hand them to the
// editor unchanged.
type Symbol struct {
	Name      string
	Path      string
	Line      int
	StartChar int
	EndChar   int
	Kind      Kind
}

type pattern struct {
	re   *regexp.Regexp
	kind Kind
}

// identPatterns is the fixed ordered pattern set. A line may feed several
// patterns; every capture becomes its own entry, so overload sets accumulate
// naturally under one name.
var identPatterns = []pattern{
	{regexp.MustCompile(`^(?:val|function|overload|outcome)\s+([a-zA-Z0-9_#]+)`), KindFunction},
	{regexp.MustCompile(`^(?:type|union|struct|enum|mapping)\s+([a-zA-Z0-9_#]+)`), KindType},
	{regexp.MustCompile(`^(?:union|function|mapping|enum)\s+clause\s+([a-zA-Z0-9_#]+)`), KindMethod},
	{regexp.MustCompile(`^let\s+([a-zA-Z0-9_#]+)`), KindVariable},
	{regexp.MustCompile(`^register\s+([a-zA-Z0-9_#]+)`), KindField},
}

// Store owns the symbol table and project file set. Readers take the shared
// lock; the only writers are Rescan and the cache warm-start, both of which
// replace symbols and files together.
type Store struct {
	mu      sync.RWMutex
	symbols map[string][]Symbol
	files   map[string]struct{}
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		symbols: make(map[string][]Symbol),
		files:   make(map[string]struct{}),
	}
}

// Rescan walks root for *.sail files, extracts symbols from each in
// parallel, and atomically swaps in the new table and file set. An empty
// root leaves the store untouched.
func (s *Store) Rescan(root string) {
	if root == "" {
		return
	}
	var paths []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(path, SourceExt) {
			paths = append(paths, path)
		}
		return nil
	})

	results := make([][]Symbol, len(paths))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			results[i] = scanFile(path)
			return nil
		})
	}
	_ = g.Wait()

	symbols := make(map[string][]Symbol)
	files := make(map[string]struct{}, len(paths))
	for i, path := range paths {
		files[path] = struct{}{}
		for _, sym := range results[i] {
			symbols[sym.Name] = append(symbols[sym.Name], sym)
		}
	}
	s.replace(symbols, files)
}

func (s *Store) replace(symbols map[string][]Symbol, files map[string]struct{}) {
	s.mu.Lock()
	s.symbols = symbols
	s.files = files
	s.mu.Unlock()
}

func scanFile(path string) []Symbol {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var syms []Symbol
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		line := scanner.Text()
		for _, p := range identPatterns {
			for _, m := range p.re.FindAllStringSubmatchIndex(line, -1) {
				// m[2]:m[3] is the capture group.
				syms = append(syms, Symbol{
					Name:      line[m[2]:m[3]],
					Path:      path,
					Line:      lineNo,
					StartChar: utf16Column(line, m[2]),
					EndChar:   utf16Column(line, m[3]),
					Kind:      p.kind,
				})
			}
		}
		lineNo++
	}
	return syms
}

// utf16Column converts a byte offset within line to UTF-16 code units.
func utf16Column(line string, byteOff int) int {
	units := 0
	for i, r := range line {
		if i >= byteOff {
			return units
		}
		if r > 0xFFFF {
			units += 2
		} else {
			units++
		}
	}
	return units
}

// Lookup returns all entries declared under name.
func (s *Store) Lookup(name string) []Symbol {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Symbol(nil), s.symbols[name]...)
}

// Match returns entries whose name satisfies pred, given the lowercase name.
func (s *Store) Match(pred func(lowerName string) bool) []Symbol {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Symbol
	for name, syms := range s.symbols {
		if pred(strings.ToLower(name)) {
			out = append(out, syms...)
		}
	}
	return out
}

// FileSymbols returns entries declared in path, sorted by position.
func (s *Store) FileSymbols(path string) []Symbol {
	s.mu.RLock()
	var out []Symbol
	for _, syms := range s.symbols {
		for _, sym := range syms {
			if sym.Path == path {
				out = append(out, sym)
			}
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		return out[i].StartChar < out[j].StartChar
	})
	return out
}

// Files returns the current project file set.
func (s *Store) Files() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.files))
	for path := range s.files {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}
