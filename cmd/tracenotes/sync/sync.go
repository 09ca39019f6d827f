// Package synccmder provides the `tracenotes sync` CLI command.
package synccmder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tracenotes/cmd/tracenotes/bootstrap"
	"github.com/papercomputeco/tracenotes/cmd/tracenotes/sqlitepath"
	"github.com/papercomputeco/tracenotes/pkg/cliui"
	"github.com/papercomputeco/tracenotes/pkg/config"
	"github.com/papercomputeco/tracenotes/pkg/storage"
	"github.com/papercomputeco/tracenotes/pkg/storage/sqlite"
)

const syncLongDesc string = `Mirror the trace notes into a SQLite database.

Copies the traces of every noted commit in from..to into SQLite, where they
can be queried with plain SQL. Writes use the same dedup and consolidation
rules as the notes, so syncing again only adds what is new.

Examples:
  tracenotes sync
  tracenotes sync --sqlite /tmp/traces.db --from v1.0.0`

const syncShortDesc string = "Mirror trace notes into SQLite"

type syncCommander struct {
	sqlitePath string
	from       string
	to         string
}

// Result summarizes one sync run.
type Result struct {
	Commits int
	Traces  int
}

// NewSyncCmd creates the sync cobra command.
func NewSyncCmd() *cobra.Command {
	cmder := &syncCommander{}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: syncShortDesc,
		Long:  syncLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	cmd.Flags().StringVar(&cmder.from, "from", "", "Exclusive start of the range")
	cmd.Flags().StringVar(&cmder.to, "to", "", "Inclusive end of the range (default: HEAD)")

	return cmd
}

func (c *syncCommander) run(cmd *cobra.Command) error {
	settings, err := bootstrap.Load(cmd, config.FlagSQLite)
	if err != nil {
		return err
	}

	app, err := bootstrap.Open(cmd.Context(), settings)
	if err != nil {
		return err
	}
	defer app.Close()

	dbPath := sqlitepath.ResolveSQLitePath(settings.Config.Storage.SQLitePath, app.Env.StateDir())
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}

	mirror, err := sqlite.NewAgentTraceStore(dbPath)
	if err != nil {
		return err
	}
	defer mirror.Close()

	w := cmd.OutOrStdout()
	var result *Result
	if err := cliui.Step(w, "Mirroring trace notes", func() error {
		var runErr error
		result, runErr = Sync(cmd.Context(), app.Store, mirror, c.from, c.to)
		return runErr
	}); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n  %s Mirrored %d trace(s) from %d commit(s) into %s\n\n",
		cliui.SuccessMark, result.Traces, result.Commits, cliui.DimStyle.Render(dbPath))
	return nil
}

// Source lists noted commits with their traces. *notes.Store satisfies it.
type Source interface {
	ReadCommits(ctx context.Context, from, to string) ([]storage.CommitTraces, error)
}

// Sync copies the noted commits in from..to into dst.
func Sync(ctx context.Context, src Source, dst storage.AgentTraceWriter, from, to string) (*Result, error) {
	commits, err := src.ReadCommits(ctx, from, to)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for _, c := range commits {
		if err := dst.Write(ctx, c.Revision, c.Traces); err != nil {
			return nil, fmt.Errorf("mirroring %s: %w", c.Revision, err)
		}
		result.Commits++
		result.Traces += len(c.Traces)
	}
	return result, nil
}
