// Package recordcmder provides the record command, the entry point agent
// hooks call with their event payload on stdin.
package recordcmder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tracenotes/cmd/tracenotes/bootstrap"
	"github.com/papercomputeco/tracenotes/pkg/capture"
	"github.com/papercomputeco/tracenotes/pkg/config"
	"github.com/papercomputeco/tracenotes/pkg/recorder"
)

const recordLongDesc string = `Record an agent hook event read from stdin.

The payload is classified (file edit, file write, session start or end),
normalized into an agent trace and attached to HEAD in git notes. Before the
first commit the trace is staged and flushed once a commit exists. A session
end flushes anything still staged.

Agents disagree on payload shapes; pass --kind when the payload alone does
not say what happened.

Examples:
  echo "$PAYLOAD" | tracenotes record
  tracenotes record --kind file_edit --tool cursor < payload.json`

const recordShortDesc string = "Record an agent hook event from stdin"

type recordCommander struct {
	kind        string
	toolName    string
	toolVersion string
	jsonOut     bool
}

func NewRecordCmd() *cobra.Command {
	cmder := &recordCommander{}

	cmd := &cobra.Command{
		Use:   "record",
		Short: recordShortDesc,
		Long:  recordLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.kind, "kind", "k", "", "Event kind (file_edit, file_write, session_start, session_end)")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print the outcome as JSON")
	config.AddStringFlag(cmd, config.Flags, config.FlagToolName, &cmder.toolName)
	config.AddStringFlag(cmd, config.Flags, config.FlagToolVersion, &cmder.toolVersion)

	return cmd
}

func (c *recordCommander) run(cmd *cobra.Command) error {
	var hint capture.Kind
	if c.kind != "" {
		k, err := capture.ParseKind(c.kind)
		if err != nil {
			return err
		}
		hint = k
	}

	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("reading event payload: %w", err)
	}
	if len(data) == 0 {
		return errors.New("no event payload on stdin")
	}

	ev, err := capture.ParseEvent(data, hint)
	if err != nil {
		return err
	}

	settings, err := bootstrap.Load(cmd, config.FlagToolName, config.FlagToolVersion)
	if err != nil {
		return err
	}

	app, err := bootstrap.Open(cmd.Context(), settings)
	if err != nil {
		return err
	}
	defer app.Close()

	outcome, err := c.record(cmd, app, ev)
	if err != nil {
		return err
	}
	if err := app.SaveFlush(outcome); err != nil {
		app.Logger.Warn("saving flush state failed", "error", err)
	}

	return c.print(cmd.OutOrStdout(), ev.Kind, outcome)
}

func (c *recordCommander) record(cmd *cobra.Command, app *bootstrap.App, ev *capture.Event) (*recorder.Outcome, error) {
	ctx := cmd.Context()

	trace, err := capture.NewNormalizer(app.Env, app.Logger).Normalize(ev)
	if err != nil {
		return nil, err
	}

	if ev.Kind == capture.KindSessionEnd {
		return app.Recorder.Flush(ctx)
	}

	if len(trace.Files) == 0 {
		app.Logger.Debug("event carries no attributable lines", "kind", ev.Kind, "session", ev.SessionID)
		pending, err := app.Buffer.Pending()
		if err != nil {
			return nil, err
		}
		return &recorder.Outcome{Pending: pending}, nil
	}

	return app.Recorder.Record(ctx, trace)
}

func (c *recordCommander) print(w io.Writer, kind capture.Kind, o *recorder.Outcome) error {
	if c.jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(o)
	}

	switch {
	case o.Staged:
		fmt.Fprintf(w, "%s: staged %d trace(s), %d pending\n", kind, o.Recorded, o.Pending)
	case o.Recorded > 0 || o.Flushed > 0:
		fmt.Fprintf(w, "%s: recorded %d trace(s) on %s", kind, o.Recorded, o.Revision)
		if o.Flushed > 0 {
			fmt.Fprintf(w, " (flushed %d staged)", o.Flushed)
		}
		fmt.Fprintln(w)
	default:
		fmt.Fprintf(w, "%s: nothing recorded\n", kind)
	}
	return nil
}
