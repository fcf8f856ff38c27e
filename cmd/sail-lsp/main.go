package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/TinyuengKwan/sail-lsp/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "sail-lsp",
	Short: "Language server for the Sail ISA description language",
	Long:  `sail-lsp bridges editors to the sail toolchain: an interactive analysis session, a formatter, and a project-wide symbol index`,
}

func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(lspCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("sail-path", "", "path to the sail executable (default \"sail\")")
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")

	cobra.OnInitialize(configureColor)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func configureColor() {
	mode, _ := rootCmd.PersistentFlags().GetString("color")
	switch mode {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	default:
		color.NoColor = !isTerminal(os.Stdout)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
