package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/TinyuengKwan/sail-lsp/internal/lsp"
	"github.com/TinyuengKwan/sail-lsp/internal/project"
)

var lspCmd = &cobra.Command{
	Use:          "lsp",
	Short:        "Run the Sail language server over stdio",
	SilenceUsage: true,
	RunE:         runLSP,
}

func init() {
	lspCmd.Flags().Duration("debounce", 0, "quiet window before re-analysis (default 500ms)")
	lspCmd.Flags().Bool("no-watch", false, "disable the project file watcher")
}

func runLSP(cmd *cobra.Command, _ []string) error {
	opts, err := serverOptions(cmd)
	if err != nil {
		return err
	}
	server := lsp.NewServer(os.Stdin, os.Stdout, opts)
	if err := server.Run(cmd.Context()); err != nil {
		if errors.Is(err, lsp.ErrExit) {
			return nil
		}
		if errors.Is(err, lsp.ErrExitWithoutShutdown) {
			return fmt.Errorf("lsp exit without shutdown")
		}
		return err
	}
	return nil
}

// serverOptions resolves configuration in precedence order: flags over the
// sail-lsp.toml manifest over built-in defaults.
func serverOptions(cmd *cobra.Command) (lsp.ServerOptions, error) {
	opts := lsp.ServerOptions{Watch: true}

	wd, _ := os.Getwd()
	manifest, ok, err := project.LoadManifest(wd)
	if err != nil {
		return opts, err
	}
	if ok {
		cfg := manifest.Config
		opts.SailPath = cfg.Sail.Path
		if cfg.LSP.DebounceMS > 0 {
			opts.Debounce = time.Duration(cfg.LSP.DebounceMS) * time.Millisecond
		}
		if cfg.LSP.CommandTimeoutMS > 0 {
			opts.CommandTimeout = time.Duration(cfg.LSP.CommandTimeoutMS) * time.Millisecond
		}
		if cfg.LSP.SpawnTimeoutMS > 0 {
			opts.SpawnTimeout = time.Duration(cfg.LSP.SpawnTimeoutMS) * time.Millisecond
		}
		if cfg.LSP.Watch != nil {
			opts.Watch = *cfg.LSP.Watch
		}
	}

	if path, err := cmd.Root().PersistentFlags().GetString("sail-path"); err == nil && path != "" {
		opts.SailPath = path
	}
	if debounce, err := cmd.Flags().GetDuration("debounce"); err == nil && debounce > 0 {
		opts.Debounce = debounce
	}
	if noWatch, err := cmd.Flags().GetBool("no-watch"); err == nil && noWatch {
		opts.Watch = false
	}
	return opts, nil
}
