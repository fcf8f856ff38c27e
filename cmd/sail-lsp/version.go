package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TinyuengKwan/sail-lsp/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the sail-lsp version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println("sail-lsp", version.Version)
		if version.GitCommit != "" {
			fmt.Println("commit:", version.GitCommit)
		}
		if version.BuildDate != "" {
			fmt.Println("built:", version.BuildDate)
		}
	},
}
