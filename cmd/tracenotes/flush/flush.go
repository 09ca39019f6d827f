// Package flushcmder provides the flush command.
package flushcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tracenotes/cmd/tracenotes/bootstrap"
	"github.com/papercomputeco/tracenotes/pkg/cliui"
	"github.com/papercomputeco/tracenotes/pkg/utils"
)

const flushLongDesc string = `Move staged agent traces onto HEAD.

Traces recorded before the repository had a commit wait in the staging
buffer. flush attaches them to the current HEAD. Without a commit nothing
is moved and the pending count is reported.

Examples:
  tracenotes flush`

const flushShortDesc string = "Move staged traces onto HEAD"

func NewFlushCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flush",
		Short: flushShortDesc,
		Long:  flushLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFlush(cmd)
		},
	}

	return cmd
}

func runFlush(cmd *cobra.Command) error {
	settings, err := bootstrap.Load(cmd)
	if err != nil {
		return err
	}

	app, err := bootstrap.Open(cmd.Context(), settings)
	if err != nil {
		return err
	}
	defer app.Close()

	outcome, err := app.Recorder.Flush(cmd.Context())
	if err != nil {
		return err
	}
	if err := app.SaveFlush(outcome); err != nil {
		return fmt.Errorf("saving flush state: %w", err)
	}

	w := cmd.OutOrStdout()
	switch {
	case outcome.Revision == "":
		fmt.Fprintf(w, "  %s No commit yet, %d trace(s) pending\n", cliui.DimStyle.Render("●"), outcome.Pending)
	case outcome.Flushed == 0:
		fmt.Fprintf(w, "  %s Nothing to flush\n", cliui.DimStyle.Render("●"))
	default:
		fmt.Fprintf(w, "  %s Flushed %d trace(s) onto %s\n",
			cliui.SuccessMark, outcome.Flushed, cliui.HashStyle.Render(utils.ShortSHA(outcome.Revision)))
	}
	return nil
}
