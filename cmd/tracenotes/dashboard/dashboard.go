// Package dashboardcmder provides the dashboard command, an interactive
// terminal view of agent attribution across a commit range.
package dashboardcmder

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tracenotes/cmd/tracenotes/bootstrap"
	"github.com/papercomputeco/tracenotes/pkg/cliui"
)

const dashboardLongDesc string = `Browse agent attribution interactively.

Lists the noted commits in from..to with their AI share of attributed
lines. Select a commit to see which of its changed lines each agent wrote.

Keys:
  j/k      move
  enter    drill into a commit
  h/esc    back
  r        reload
  q        quit

Examples:
  tracenotes dashboard
  tracenotes dashboard --from v1.0.0`

const dashboardShortDesc string = "Browse attribution in the terminal"

type dashboardCommander struct {
	from string
	to   string
}

func NewDashboardCmd() *cobra.Command {
	cmder := &dashboardCommander{}

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: dashboardShortDesc,
		Long:  dashboardLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVar(&cmder.from, "from", "", "Exclusive start of the range")
	cmd.Flags().StringVar(&cmder.to, "to", "", "Inclusive end of the range (default: HEAD)")

	return cmd
}

func (c *dashboardCommander) run(cmd *cobra.Command) error {
	if !cliui.IsTerminal(cmd.OutOrStdout()) {
		return errors.New("dashboard needs a terminal; use 'tracenotes report' instead")
	}

	settings, err := bootstrap.Load(cmd)
	if err != nil {
		return err
	}

	app, err := bootstrap.Open(cmd.Context(), settings)
	if err != nil {
		return err
	}
	defer app.Close()

	return runDashboardTUI(cmd.Context(), app.Query(), c.from, c.to)
}
