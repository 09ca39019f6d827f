// Package reportcmder provides the report command, which summarizes the
// agent attribution of a commit range.
package reportcmder

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tracenotes/cmd/tracenotes/bootstrap"
	"github.com/papercomputeco/tracenotes/pkg/aggregate"
	"github.com/papercomputeco/tracenotes/pkg/cliui"
	"github.com/papercomputeco/tracenotes/pkg/utils"
)

const reportLongDesc string = `Summarize agent attribution across a commit range.

Folds the traces of every noted commit in from..to into totals by
contributor type, model and tool. An empty --from covers the full history
of --to, which defaults to HEAD.

Output is markdown, rendered for the terminal when stdout is a TTY.

Examples:
  tracenotes report
  tracenotes report --from v1.2.0
  tracenotes report --from main --to feature --json`

const reportShortDesc string = "Summarize a commit range"

type reportCommander struct {
	from    string
	to      string
	jsonOut bool
}

func NewReportCmd() *cobra.Command {
	cmder := &reportCommander{}

	cmd := &cobra.Command{
		Use:   "report",
		Short: reportShortDesc,
		Long:  reportLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVar(&cmder.from, "from", "", "Exclusive start of the range")
	cmd.Flags().StringVar(&cmder.to, "to", "", "Inclusive end of the range (default: HEAD)")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print the report as JSON")

	return cmd
}

func (c *reportCommander) run(cmd *cobra.Command) error {
	settings, err := bootstrap.Load(cmd)
	if err != nil {
		return err
	}

	app, err := bootstrap.Open(cmd.Context(), settings)
	if err != nil {
		return err
	}
	defer app.Close()

	report, err := app.Query().Summarize(cmd.Context(), c.from, c.to)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if c.jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	md := Markdown(report, c.from, c.to)
	if cliui.IsTerminal(w) {
		rendered, err := cliui.RenderMarkdown(md)
		if err != nil {
			app.Logger.Debug("rendering markdown failed", "error", err)
		} else {
			md = rendered
		}
	}
	fmt.Fprint(w, md)
	return nil
}

// Markdown renders a report as a markdown document.
func Markdown(r aggregate.Report, from, to string) string {
	if to == "" {
		to = "HEAD"
	}
	span := to
	if from != "" {
		span = from + ".." + to
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Agent attribution for `%s`\n\n", span)

	if len(r.Commits) == 0 {
		b.WriteString("No noted commits in range.\n")
		return b.String()
	}

	t := r.Total
	fmt.Fprintf(&b, "- **Commits:** %d\n", len(r.Commits))
	fmt.Fprintf(&b, "- **Records:** %d\n", t.TotalRecords)
	fmt.Fprintf(&b, "- **Files:** %d\n", t.DistinctFiles)
	fmt.Fprintf(&b, "- **AI share of lines:** %.1f%%\n", t.AIShare()*100)

	writeCounts(&b, "Contributors", "Ranges", t.SortedContributors())
	writeCounts(&b, "Models", "Ranges", t.SortedModels())
	writeCounts(&b, "Tools", "Records", t.SortedTools())

	b.WriteString("\n## Commits\n\n| Commit | Records | Files | AI share |\n|---|---:|---:|---:|\n")
	for _, c := range r.Commits {
		fmt.Fprintf(&b, "| `%s` | %d | %d | %.1f%% |\n",
			utils.ShortSHA(c.Revision), c.Stats.TotalRecords, c.Stats.DistinctFiles, c.Stats.AIShare()*100)
	}
	return b.String()
}

func writeCounts(b *strings.Builder, title, unit string, counts []aggregate.Count) {
	if len(counts) == 0 {
		return
	}
	fmt.Fprintf(b, "\n## %s\n\n| Name | %s |\n|---|---:|\n", title, unit)
	for _, c := range counts {
		fmt.Fprintf(b, "| %s | %d |\n", c.Name, c.Count)
	}
}
