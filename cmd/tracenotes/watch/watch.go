// Package watchcmder provides the watch command.
package watchcmder

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tracenotes/cmd/tracenotes/bootstrap"
	"github.com/papercomputeco/tracenotes/pkg/cliui"
	"github.com/papercomputeco/tracenotes/pkg/git"
	"github.com/papercomputeco/tracenotes/pkg/recorder"
	"github.com/papercomputeco/tracenotes/pkg/utils"
	"github.com/papercomputeco/tracenotes/pkg/watch"
)

const watchLongDesc string = `Flush staged agent traces as soon as commits land.

Watches the repository's git directory and, whenever HEAD or a branch moves,
attaches any staged traces to the new HEAD. Runs until interrupted.

Examples:
  tracenotes watch
  tracenotes watch --debounce 1s`

const watchShortDesc string = "Flush staged traces automatically"

type watchCommander struct {
	debounce time.Duration
}

func NewWatchCmd() *cobra.Command {
	cmder := &watchCommander{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: watchShortDesc,
		Long:  watchLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().DurationVar(&cmder.debounce, "debounce", watch.DefaultDebounce, "Time to let ref updates settle before flushing")

	return cmd
}

func (c *watchCommander) run(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings, err := bootstrap.Load(cmd)
	if err != nil {
		return err
	}

	app, err := bootstrap.Open(ctx, settings)
	if err != nil {
		return err
	}
	defer app.Close()

	gitDir, err := git.GitDir(ctx, app.Env.Git)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	watcher := watch.New(gitDir, app.Recorder,
		watch.WithDebounce(c.debounce),
		watch.WithLogger(app.Logger),
		watch.WithOnFlush(func(o *recorder.Outcome) {
			if err := app.SaveFlush(o); err != nil {
				app.Logger.Warn("saving flush state failed", "error", err)
			}
			fmt.Fprintf(w, "  %s Flushed %d trace(s) onto %s\n",
				cliui.SuccessMark, o.Flushed, cliui.HashStyle.Render(utils.ShortSHA(o.Revision)))
		}),
	)

	app.Logger.Info("watching for commits", "git_dir", gitDir)
	return watcher.Run(ctx)
}
