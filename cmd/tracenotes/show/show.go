// Package showcmder provides the show command for printing the agent traces
// stored on a commit.
package showcmder

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tracenotes/cmd/tracenotes/bootstrap"
	"github.com/papercomputeco/tracenotes/pkg/agenttrace"
)

const showLongDesc string = `Print the agent traces stored on a commit as a JSON array.

Defaults to HEAD. With --all, prints the traces of every noted commit.

Examples:
  tracenotes show
  tracenotes show HEAD~3
  tracenotes show --all`

const showShortDesc string = "Print stored agent traces"

type showCommander struct {
	all bool
}

func NewShowCmd() *cobra.Command {
	cmder := &showCommander{}

	cmd := &cobra.Command{
		Use:   "show [revision]",
		Short: showShortDesc,
		Long:  showLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			revision := "HEAD"
			if len(args) == 1 {
				if cmder.all {
					return errors.New("--all cannot be combined with a revision")
				}
				revision = args[0]
			}
			if cmder.all {
				revision = ""
			}
			return cmder.run(cmd, revision)
		},
	}

	cmd.Flags().BoolVarP(&cmder.all, "all", "a", false, "Print the traces of every noted commit")

	return cmd
}

func (c *showCommander) run(cmd *cobra.Command, revision string) error {
	settings, err := bootstrap.Load(cmd)
	if err != nil {
		return err
	}

	app, err := bootstrap.Open(cmd.Context(), settings)
	if err != nil {
		return err
	}
	defer app.Close()

	traces, err := app.Query().Traces(cmd.Context(), revision)
	if err != nil {
		return err
	}

	body, err := agenttrace.EncodeTraces(traces)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(body))
	return nil
}
