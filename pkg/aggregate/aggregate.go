// Package aggregate folds agent traces into summary statistics for reports
// and the dashboard API.
package aggregate

import (
	"sort"

	"github.com/papercomputeco/tracenotes/pkg/agenttrace"
	"github.com/papercomputeco/tracenotes/pkg/storage"
)

// Stats summarizes a set of traces.
type Stats struct {
	TotalRecords  int `json:"total_records"`
	DistinctFiles int `json:"distinct_files"`

	// CountsByContributorType counts ranges per contributor type.
	CountsByContributorType map[string]int `json:"counts_by_contributor_type"`

	// RangesByModel counts ranges per model id.
	RangesByModel map[string]int `json:"ranges_by_model"`

	// TracesByTool counts records per tool name.
	TracesByTool map[string]int `json:"traces_by_tool"`

	// LinesByContributor sums range lengths per contributor type.
	LinesByContributor map[string]int `json:"lines_by_contributor"`
}

// Count is one name/value row of a sorted breakdown.
type Count struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Summarize folds traces into Stats. Each conversation adds its range count
// to its contributor type and model; each record adds one to its tool.
// Ranges carrying a contributor override are counted under the override.
func Summarize(traces []*agenttrace.AgentTrace) Stats {
	s := Stats{
		CountsByContributorType: map[string]int{},
		RangesByModel:           map[string]int{},
		TracesByTool:            map[string]int{},
		LinesByContributor:      map[string]int{},
	}

	files := make(map[string]bool)
	for _, t := range traces {
		if t == nil {
			continue
		}
		s.TotalRecords++

		if tool := t.ToolName(); tool != "" {
			s.TracesByTool[tool]++
		}

		for _, f := range t.Files {
			files[f.Path] = true
			for _, conv := range f.Conversations {
				for _, r := range conv.Ranges {
					contributor := conv.Contributor
					if r.Contributor != nil {
						contributor = r.Contributor
					}

					s.CountsByContributorType[contributor.ContributorType()]++
					s.LinesByContributor[contributor.ContributorType()] += r.Lines()
					if model := contributor.Model(); model != "" {
						s.RangesByModel[model]++
					}
				}
			}
		}
	}

	s.DistinctFiles = len(files)
	return s
}

// SortedModels returns RangesByModel by descending count, then name.
func (s Stats) SortedModels() []Count {
	return sorted(s.RangesByModel)
}

// SortedTools returns TracesByTool by descending count, then name.
func (s Stats) SortedTools() []Count {
	return sorted(s.TracesByTool)
}

// SortedContributors returns CountsByContributorType by descending count,
// then name.
func (s Stats) SortedContributors() []Count {
	return sorted(s.CountsByContributorType)
}

// AIShare is the fraction of attributed lines owned by ai contributors, or
// zero when no lines are attributed.
func (s Stats) AIShare() float64 {
	total := 0
	for _, n := range s.LinesByContributor {
		total += n
	}
	if total == 0 {
		return 0
	}
	return float64(s.LinesByContributor[agenttrace.ContributorAI]) / float64(total)
}

// CommitStats is the summary of one commit.
type CommitStats struct {
	Revision string `json:"revision"`
	Stats    Stats  `json:"stats"`
}

// Report is the summary of a commit range.
type Report struct {
	Total   Stats         `json:"total"`
	Commits []CommitStats `json:"commits"`
}

// SummarizeCommits summarizes each commit and the range as a whole,
// preserving commit order.
func SummarizeCommits(commits []storage.CommitTraces) Report {
	report := Report{Commits: make([]CommitStats, 0, len(commits))}

	var all []*agenttrace.AgentTrace
	for _, c := range commits {
		report.Commits = append(report.Commits, CommitStats{
			Revision: c.Revision,
			Stats:    Summarize(c.Traces),
		})
		all = append(all, c.Traces...)
	}
	report.Total = Summarize(all)
	return report
}

func sorted(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for name, n := range m {
		out = append(out, Count{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}
