package attribution

import (
	"sort"

	"github.com/papercomputeco/tracenotes/pkg/agenttrace"
)

// AttributedRange is a recorded range that survived matching, annotated with
// its effective contributor.
type AttributedRange struct {
	StartLine       int    `json:"start_line"`
	EndLine         int    `json:"end_line"`
	ContributorType string `json:"contributor_type"`
	ModelID         string `json:"model_id,omitempty"`
	ConversationURL string `json:"conversation_url,omitempty"`
	TraceID         string `json:"trace_id"`
}

// Lines returns the number of lines the range covers.
func (r AttributedRange) Lines() int {
	return agenttrace.Range{StartLine: r.StartLine, EndLine: r.EndLine}.Lines()
}

// FileAttribution is the matched attribution for one file of a commit.
type FileAttribution struct {
	Path string `json:"path"`

	Ranges []AttributedRange `json:"ranges"`

	// Models lists the distinct model ids across Ranges.
	Models []string `json:"models"`

	// Recorded is the number of ranges stored for the file before matching.
	Recorded int `json:"recorded"`

	// Passthrough is set when the commit touched the file without changing
	// any line, so every recorded range was kept.
	Passthrough bool `json:"passthrough,omitempty"`
}

// CommitAttribution is the result of matching a commit's traces against its
// diff.
type CommitAttribution struct {
	Revision string            `json:"revision"`
	Files    []FileAttribution `json:"files"`

	// Untracked lists files the commit changed that have no recorded
	// attribution.
	Untracked []string `json:"untracked"`

	// Untouched lists files with recorded attribution that the commit did
	// not change. Their ranges are dropped.
	Untouched []string `json:"untouched"`
}

// ContributorLines sums matched range lengths per contributor type.
func (c *CommitAttribution) ContributorLines() map[string]int {
	out := make(map[string]int)
	for _, f := range c.Files {
		for _, r := range f.Ranges {
			out[r.ContributorType] += r.Lines()
		}
	}
	return out
}

type recordedRange struct {
	agenttrace.Range
	contributor *agenttrace.Contributor
	url         string
	traceID     string
}

// Match reconciles the ranges recorded in traces against a commit's changes.
// A recorded range is kept when at least one changed line falls inside it.
// When the commit touched a file without changing lines, all its ranges are
// kept. Files with records that the commit did not touch are dropped and
// listed as Untouched; changed files without records are listed as
// Untracked.
func Match(revision string, traces []*agenttrace.AgentTrace, changes map[string]*FileChanges) *CommitAttribution {
	recorded := make(map[string][]recordedRange)
	for _, t := range traces {
		if t == nil {
			continue
		}
		for _, f := range t.Files {
			for _, conv := range f.Conversations {
				for _, r := range conv.Ranges {
					recorded[f.Path] = append(recorded[f.Path], recordedRange{
						Range:       r,
						contributor: conv.Contributor,
						url:         conv.URL,
						traceID:     t.ID,
					})
				}
			}
			if _, ok := recorded[f.Path]; !ok {
				recorded[f.Path] = nil
			}
		}
	}

	out := &CommitAttribution{
		Revision:  revision,
		Files:     []FileAttribution{},
		Untracked: []string{},
		Untouched: []string{},
	}

	for path, ranges := range recorded {
		fc, touched := changes[path]
		if !touched {
			out.Untouched = append(out.Untouched, path)
			continue
		}

		fa := FileAttribution{
			Path:        path,
			Ranges:      []AttributedRange{},
			Recorded:    len(ranges),
			Passthrough: fc.Empty(),
		}

		models := make(map[string]bool)
		for _, r := range ranges {
			if !fa.Passthrough && !fc.Touches(r.StartLine, r.EndLine) {
				continue
			}

			contributor := r.contributor
			if r.Contributor != nil {
				contributor = r.Contributor
			}

			ar := AttributedRange{
				StartLine:       r.StartLine,
				EndLine:         r.EndLine,
				ContributorType: contributor.ContributorType(),
				ModelID:         contributor.Model(),
				ConversationURL: r.url,
				TraceID:         r.traceID,
			}
			fa.Ranges = append(fa.Ranges, ar)
			if ar.ModelID != "" {
				models[ar.ModelID] = true
			}
		}

		fa.Models = sortedKeys(models)
		sort.SliceStable(fa.Ranges, func(i, j int) bool {
			if fa.Ranges[i].StartLine != fa.Ranges[j].StartLine {
				return fa.Ranges[i].StartLine < fa.Ranges[j].StartLine
			}
			return fa.Ranges[i].EndLine < fa.Ranges[j].EndLine
		})
		out.Files = append(out.Files, fa)
	}

	for path := range changes {
		if _, ok := recorded[path]; !ok {
			out.Untracked = append(out.Untracked, path)
		}
	}

	sort.Slice(out.Files, func(i, j int) bool { return out.Files[i].Path < out.Files[j].Path })
	sort.Strings(out.Untracked)
	sort.Strings(out.Untouched)
	return out
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
