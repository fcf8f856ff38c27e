package lsp

import (
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"fortio.org/safecast"

	"github.com/TinyuengKwan/sail-lsp/internal/repl"
)

// diagLineRE matches the location line sail prints on stderr:
// STDERR:<path>:<line1>.<col1>-<line2>.<col2>: <message>
// Line numbers are 1-based and get decremented on ingestion; columns are
// used as-is.
var diagLineRE = regexp.MustCompile(`^STDERR:(.*?):(\d+)\.(\d+)-(\d+)\.(\d+): (.*)`)

// parseDiagnostics turns one command's collected output into per-document
// diagnostics. Stderr lines that match no location pattern are continuation
// lines and extend the message of the most recently opened diagnostic;
// anything else is skipped. Diagnostics whose path cannot be resolved are
// dropped without affecting the rest of the batch.
func parseDiagnostics(output []string, projectRoot, repPath string) map[string][]lspDiagnostic {
	diags := make(map[string][]lspDiagnostic)

	currentURI := ""
	var current *lspDiagnostic
	flush := func() {
		if current != nil {
			diags[currentURI] = append(diags[currentURI], *current)
			current = nil
		}
	}

	for _, line := range output {
		m := diagLineRE.FindStringSubmatch(line)
		if m == nil {
			if current != nil && strings.HasPrefix(line, repl.StderrPrefix) {
				current.Message += "\n" + line[len(repl.StderrPrefix):]
			}
			continue
		}
		flush()

		path := m[1]
		if !filepath.IsAbs(path) {
			base := projectRoot
			if base == "" {
				base = filepath.Dir(repPath)
			}
			path = filepath.Join(base, path)
		}
		uri := pathToURI(path)
		if uri == "" {
			continue
		}

		currentURI = uri
		current = &lspDiagnostic{
			Range: lspRange{
				Start: position{Line: parseLine(m[2]), Character: parseCol(m[3])},
				End:   position{Line: parseLine(m[4]), Character: parseCol(m[5])},
			},
			Severity: severityError,
			Source:   "sail",
			Message:  m[6],
		}
	}
	flush()
	return diags
}

// FileDiagnostic is one parsed diagnostic addressed by file path, for
// consumers outside the protocol (the check command). Positions are 0-based
// like the protocol's.
type FileDiagnostic struct {
	Path      string
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
	Message   string
}

// CollectDiagnostics parses session output the same way the server does and
// flattens the result into path-addressed records, sorted by location.
func CollectDiagnostics(output []string, projectRoot, repPath string) []FileDiagnostic {
	var out []FileDiagnostic
	for uri, list := range parseDiagnostics(output, projectRoot, repPath) {
		path := uriToPath(uri)
		for _, d := range list {
			out = append(out, FileDiagnostic{
				Path:      path,
				StartLine: d.Range.Start.Line,
				StartCol:  d.Range.Start.Character,
				EndLine:   d.Range.End.Line,
				EndCol:    d.Range.End.Character,
				Message:   d.Message,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		if out[i].StartLine != out[j].StartLine {
			return out[i].StartLine < out[j].StartLine
		}
		return out[i].StartCol < out[j].StartCol
	})
	return out
}

// parseLine converts a 1-based line capture to the protocol's 0-based line.
func parseLine(s string) int {
	n := parseCol(s)
	if n > 0 {
		return n - 1
	}
	return 0
}

func parseCol(s string) int {
	u, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	n, err := safecast.Conv[int](u)
	if err != nil {
		return 0
	}
	return n
}
