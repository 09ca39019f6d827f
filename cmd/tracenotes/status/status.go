// Package statuscmder provides the status command for displaying the capture
// state of the repository.
package statuscmder

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tracenotes/cmd/tracenotes/bootstrap"
	"github.com/papercomputeco/tracenotes/pkg/cliui"
	"github.com/papercomputeco/tracenotes/pkg/dotdir"
	"github.com/papercomputeco/tracenotes/pkg/git"
	"github.com/papercomputeco/tracenotes/pkg/utils"
)

const statusLongDesc string = `Show the trace capture state of the repository.

Displays the traces attached to HEAD, the traces still waiting in the
staging buffer and the last flush that moved staged traces onto a commit.

Examples:
  tracenotes status`

const statusShortDesc string = "Show capture state"

func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd)
		},
	}

	return cmd
}

func runStatus(cmd *cobra.Command) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	settings, err := bootstrap.Load(cmd)
	if err != nil {
		return err
	}

	app, err := bootstrap.Open(ctx, settings)
	if err != nil {
		return err
	}
	defer app.Close()

	pending, err := app.Buffer.Pending()
	if err != nil {
		return err
	}

	head, ok, err := git.Head(ctx, app.Env.Git)
	if err != nil {
		return err
	}

	fmt.Fprintln(w)
	if ok {
		traces, err := app.Store.Read(ctx, head)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s  %s\n", cliui.KeyStyle.Render("HEAD:   "), cliui.HashStyle.Render(utils.ShortSHA(head)))
		fmt.Fprintf(w, "  %s  %s\n", cliui.KeyStyle.Render("Traces: "), cliui.ValueStyle.Render(strconv.Itoa(len(traces))))
	} else {
		fmt.Fprintf(w, "  %s No commit yet. Traces are staged until the first commit.\n", cliui.DimStyle.Render("●"))
	}
	fmt.Fprintf(w, "  %s  %s\n", cliui.KeyStyle.Render("Pending:"), cliui.ValueStyle.Render(strconv.Itoa(pending)))

	state, err := dotdir.NewManager().LoadFlushState(app.Env.StateDir())
	if err != nil {
		return fmt.Errorf("loading flush state: %w", err)
	}
	if state != nil {
		fmt.Fprintf(w, "\n  %s %d trace(s) onto %s at %s\n",
			cliui.KeyStyle.Render("Last flush:"),
			state.Count,
			cliui.HashStyle.Render(utils.ShortSHA(state.Revision)),
			cliui.DimStyle.Render(state.At.Local().Format("2006-01-02 15:04:05")),
		)
	}

	fmt.Fprintln(w)
	return nil
}
