package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/TinyuengKwan/sail-lsp/internal/lsp"
	"github.com/TinyuengKwan/sail-lsp/internal/project"
	"github.com/TinyuengKwan/sail-lsp/internal/repl"
)

var checkCmd = &cobra.Command{
	Use:          "check <file>",
	Short:        "Load a file into sail once and print its diagnostics",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runCheck,
}

var (
	errorLabelColor = color.New(color.FgRed, color.Bold)
	locationColor   = color.New(color.FgCyan)
	caretColor      = color.New(color.FgRed)
)

func runCheck(cmd *cobra.Command, args []string) error {
	file, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	sailPath, _ := cmd.Root().PersistentFlags().GetString("sail-path")
	if sailPath == "" {
		sailPath = "sail"
	}

	session := repl.NewSession(repl.Options{SailPath: sailPath})
	defer session.Close()

	entry := project.FindEntryFile("", file)
	output, err := session.Spawn(entry)
	if err != nil {
		return fmt.Errorf("failed to start sail: %w", err)
	}

	diags := lsp.CollectDiagnostics(output, filepath.Dir(entry), file)
	for _, d := range diags {
		printDiagnostic(d)
	}
	if len(diags) > 0 {
		return fmt.Errorf("%d problem(s) found", len(diags))
	}
	fmt.Println("no problems found")
	return nil
}

func printDiagnostic(d lsp.FileDiagnostic) {
	fmt.Printf("%s %s %s\n",
		errorLabelColor.Sprint("error:"),
		locationColor.Sprintf("%s:%d.%d", d.Path, d.StartLine+1, d.StartCol),
		firstLine(d.Message))
	for _, extra := range strings.Split(d.Message, "\n")[1:] {
		fmt.Printf("  %s\n", extra)
	}
	if line, ok := sourceLine(d.Path, d.StartLine); ok {
		fmt.Printf("  %s\n", line)
		pad := runewidth.StringWidth(truncateCols(line, d.StartCol))
		width := 1
		if d.EndLine == d.StartLine && d.EndCol > d.StartCol {
			width = d.EndCol - d.StartCol
		}
		fmt.Printf("  %s%s\n", strings.Repeat(" ", pad), caretColor.Sprint(strings.Repeat("^", width)))
	}
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// truncateCols returns the prefix of line covering col UTF-16 units, used
// to compute the terminal width of everything left of the caret.
func truncateCols(line string, col int) string {
	units := 0
	for i, r := range line {
		if units >= col {
			return line[:i]
		}
		if r > 0xFFFF {
			units += 2
		} else {
			units++
		}
	}
	return line
}

func sourceLine(path string, lineNo int) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	lines := strings.Split(string(data), "\n")
	if lineNo < 0 || lineNo >= len(lines) {
		return "", false
	}
	return strings.ReplaceAll(lines[lineNo], "\t", "    "), true
}
