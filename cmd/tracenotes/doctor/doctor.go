// Package doctorcmder provides the doctor command, which checks and repairs
// the repository's trace notes setup.
package doctorcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tracenotes/cmd/tracenotes/bootstrap"
	"github.com/papercomputeco/tracenotes/pkg/cliui"
	"github.com/papercomputeco/tracenotes/pkg/git"
	"github.com/papercomputeco/tracenotes/pkg/utils"
)

const doctorLongDesc string = `Check the tracenotes setup of the repository.

Makes sure the notes reference exists and can be listed, recreating it when
it is broken, then reports the noted commits, HEAD and the staging buffer.

Examples:
  tracenotes doctor
  tracenotes doctor --ref refs/notes/ai`

const doctorShortDesc string = "Check and repair the notes reference"

func NewDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: doctorShortDesc,
		Long:  doctorLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd)
		},
	}

	return cmd
}

func runDoctor(cmd *cobra.Command) error {
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

	if err := cliui.Step(w, "Checking "+app.Store.Ref(), func() error {
		return app.Store.EnsureReady(ctx)
	}); err != nil {
		return err
	}

	noted, err := app.Store.NotedCommits(ctx)
	if err != nil {
		return err
	}

	head, ok, err := git.Head(ctx, app.Env.Git)
	if err != nil {
		return err
	}
	headValue := cliui.DimStyle.Render("no commit yet")
	if ok {
		headValue = cliui.HashStyle.Render(utils.ShortSHA(head))
	}

	pending, err := app.Buffer.Pending()
	if err != nil {
		return err
	}

	fmt.Fprintln(w)
	cliui.KeyValue(w, "Repository", app.Env.Root)
	cliui.KeyValue(w, "Notes ref", app.Store.Ref())
	cliui.KeyValue(w, "Noted commits", len(noted))
	cliui.KeyValue(w, "HEAD", headValue)
	cliui.KeyValue(w, "Staging", app.Env.Staging())
	cliui.KeyValue(w, "Pending", pending)
	if pending > 0 && ok {
		fmt.Fprintf(w, "\n  %s Staged traces are waiting; run %s\n", cliui.DimStyle.Render("●"), cliui.KeyStyle.Render("tracenotes flush"))
	}
	fmt.Fprintln(w)
	return nil
}
