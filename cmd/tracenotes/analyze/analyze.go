// Package analyzecmder provides the analyze command, which attributes the
// lines a commit changed to the agents that wrote them.
package analyzecmder

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tracenotes/cmd/tracenotes/bootstrap"
	"github.com/papercomputeco/tracenotes/pkg/attribution"
	"github.com/papercomputeco/tracenotes/pkg/cliui"
	"github.com/papercomputeco/tracenotes/pkg/utils"
)

const analyzeLongDesc string = `Attribute the lines a commit changed.

The commit's recorded traces are matched against its diff: ranges the
commit did not touch are dropped, and files the commit changed without any
recorded attribution are listed as untracked. Defaults to HEAD.

Examples:
  tracenotes analyze
  tracenotes analyze 3f2a9c1 --json`

const analyzeShortDesc string = "Attribute a commit's changed lines"

type analyzeCommander struct {
	jsonOut bool
}

func NewAnalyzeCmd() *cobra.Command {
	cmder := &analyzeCommander{}

	cmd := &cobra.Command{
		Use:   "analyze [revision]",
		Short: analyzeShortDesc,
		Long:  analyzeLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			revision := "HEAD"
			if len(args) == 1 {
				revision = args[0]
			}
			return cmder.run(cmd, revision)
		},
	}

	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print the attribution as JSON")

	return cmd
}

func (c *analyzeCommander) run(cmd *cobra.Command, revision string) error {
	settings, err := bootstrap.Load(cmd)
	if err != nil {
		return err
	}

	app, err := bootstrap.Open(cmd.Context(), settings)
	if err != nil {
		return err
	}
	defer app.Close()

	result, err := app.Query().Analyze(cmd.Context(), revision)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if c.jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	printAttribution(w, result)
	return nil
}

func printAttribution(w io.Writer, a *attribution.CommitAttribution) {
	fmt.Fprintf(w, "\n  %s  %s\n\n", cliui.KeyStyle.Render("Commit:"), cliui.HashStyle.Render(utils.ShortSHA(a.Revision)))

	if len(a.Files) == 0 {
		fmt.Fprintf(w, "  %s No recorded attribution survives in this commit\n", cliui.DimStyle.Render("●"))
	}

	for _, f := range a.Files {
		note := ""
		if f.Passthrough {
			note = cliui.DimStyle.Render(" (unchanged lines)")
		}
		fmt.Fprintf(w, "  %s%s\n", cliui.ValueStyle.Render(f.Path), note)
		for _, r := range f.Ranges {
			who := r.ContributorType
			if r.ModelID != "" {
				who += " " + r.ModelID
			}
			fmt.Fprintf(w, "    %s %s\n",
				cliui.DimStyle.Render(fmt.Sprintf("%5d-%-5d", r.StartLine, r.EndLine)),
				who,
			)
		}
	}

	lines := a.ContributorLines()
	if len(lines) > 0 {
		fmt.Fprintln(w)
		kinds := make([]string, 0, len(lines))
		for k := range lines {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			cliui.KeyValue(w, k+" lines", lines[k])
		}
	}

	if len(a.Untracked) > 0 {
		fmt.Fprintf(w, "\n  %s\n", cliui.KeyStyle.Render("Untracked:"))
		for _, p := range a.Untracked {
			fmt.Fprintf(w, "    %s\n", cliui.DimStyle.Render(p))
		}
	}
	if len(a.Untouched) > 0 {
		fmt.Fprintf(w, "\n  %s\n", cliui.KeyStyle.Render("Untouched:"))
		for _, p := range a.Untouched {
			fmt.Fprintf(w, "    %s\n", cliui.DimStyle.Render(p))
		}
	}
	fmt.Fprintln(w)
}
