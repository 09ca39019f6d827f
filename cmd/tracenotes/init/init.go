// Package initcmder provides the init command, which prepares a repository
// for recording agent traces.
package initcmder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tracenotes/cmd/tracenotes/bootstrap"
	"github.com/papercomputeco/tracenotes/pkg/cliui"
	"github.com/papercomputeco/tracenotes/pkg/config"
)

const initLongDesc string = `Initialize tracenotes in the current repository.

Creates the .tracenotes/ directory at the repository root with a default
config.toml, and makes sure the git notes reference holding agent traces
exists and is readable. Running init again is safe.

Examples:
  tracenotes init
  tracenotes init --ref refs/notes/ai`

const initShortDesc string = "Initialize tracenotes in a repository"

type initCommander struct{}

func NewInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	return cmd
}

func (c *initCommander) run(cmd *cobra.Command) error {
	settings, err := bootstrap.Load(cmd)
	if err != nil {
		return err
	}

	app, err := bootstrap.Open(cmd.Context(), settings)
	if err != nil {
		return err
	}
	defer app.Close()

	w := cmd.OutOrStdout()
	dir := app.Env.StateDir()

	if err := writeDefaultConfig(w, dir, settings.Config); err != nil {
		return err
	}

	if err := cliui.Step(w, "Preparing "+app.Store.Ref(), func() error {
		return app.Store.EnsureReady(cmd.Context())
	}); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n  %s Initialized %s\n", cliui.SuccessMark, cliui.DimStyle.Render(dir))
	return nil
}

func writeDefaultConfig(w io.Writer, dir string, resolved *config.Config) error {
	path := filepath.Join(dir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(w, "  %s Keeping existing %s\n", cliui.DimStyle.Render("●"), path)
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking config: %w", err)
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return err
	}

	cfg := config.NewDefaultConfig()
	cfg.Notes.Ref = resolved.Notes.Ref
	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}
	fmt.Fprintf(w, "  %s Wrote %s\n", cliui.SuccessMark, path)
	return nil
}
