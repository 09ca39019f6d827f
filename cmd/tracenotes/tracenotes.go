// Package tracenotescmder
package tracenotescmder

import (
	"github.com/spf13/cobra"

	analyzecmder "github.com/papercomputeco/tracenotes/cmd/tracenotes/analyze"
	"github.com/papercomputeco/tracenotes/cmd/tracenotes/bootstrap"
	configcmder "github.com/papercomputeco/tracenotes/cmd/tracenotes/config"
	dashboardcmder "github.com/papercomputeco/tracenotes/cmd/tracenotes/dashboard"
	doctorcmder "github.com/papercomputeco/tracenotes/cmd/tracenotes/doctor"
	flushcmder "github.com/papercomputeco/tracenotes/cmd/tracenotes/flush"
	initcmder "github.com/papercomputeco/tracenotes/cmd/tracenotes/init"
	recordcmder "github.com/papercomputeco/tracenotes/cmd/tracenotes/record"
	reportcmder "github.com/papercomputeco/tracenotes/cmd/tracenotes/report"
	servecmder "github.com/papercomputeco/tracenotes/cmd/tracenotes/serve"
	showcmder "github.com/papercomputeco/tracenotes/cmd/tracenotes/show"
	statuscmder "github.com/papercomputeco/tracenotes/cmd/tracenotes/status"
	synccmder "github.com/papercomputeco/tracenotes/cmd/tracenotes/sync"
	watchcmder "github.com/papercomputeco/tracenotes/cmd/tracenotes/watch"
	versioncmder "github.com/papercomputeco/tracenotes/cmd/version"
	"github.com/papercomputeco/tracenotes/pkg/config"
)

const tracenotesLongDesc string = `Tracenotes records which lines of a repository were written by coding
agents and stores that attribution in git notes next to the commits.

Capture and storage:
  tracenotes record     Record a hook payload from stdin
  tracenotes flush      Move staged traces onto HEAD
  tracenotes watch      Flush automatically once commits land

Inspection:
  tracenotes show       Print stored trace records
  tracenotes analyze    Attribute a commit's changed lines
  tracenotes report     Summarize a commit range
  tracenotes dashboard  Browse attribution interactively
  tracenotes serve      Run the HTTP API and MCP endpoint`

const tracenotesShortDesc string = "Tracenotes - agent attribution in git notes"

func NewTracenotesCmd() *cobra.Command {
	var ref, stagingPath, gitBinary, gitTimeout string

	cmd := &cobra.Command{
		Use:           "tracenotes",
		Short:         tracenotesShortDesc,
		Long:          tracenotesLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP(bootstrap.FlagDebug, "d", false, "Enable debug logging")
	cmd.PersistentFlags().String(bootstrap.FlagConfigDir, "", "Override path to .tracenotes/ config directory")
	cmd.PersistentFlags().String(bootstrap.FlagRepo, "", "Repository to operate on (default: current directory)")
	config.AddPersistentStringFlag(cmd, config.Flags, config.FlagRef, &ref)
	config.AddPersistentStringFlag(cmd, config.Flags, config.FlagStagingPath, &stagingPath)
	config.AddPersistentStringFlag(cmd, config.Flags, config.FlagGitBinary, &gitBinary)
	config.AddPersistentStringFlag(cmd, config.Flags, config.FlagGitTimeout, &gitTimeout)

	// Add subcommands
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(recordcmder.NewRecordCmd())
	cmd.AddCommand(flushcmder.NewFlushCmd())
	cmd.AddCommand(showcmder.NewShowCmd())
	cmd.AddCommand(analyzecmder.NewAnalyzeCmd())
	cmd.AddCommand(reportcmder.NewReportCmd())
	cmd.AddCommand(dashboardcmder.NewDashboardCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(watchcmder.NewWatchCmd())
	cmd.AddCommand(synccmder.NewSyncCmd())
	cmd.AddCommand(doctorcmder.NewDoctorCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
