package testutils

import (
	"github.com/papercomputeco/tracenotes/pkg/agenttrace"
)

// NewTrace builds a valid trace with the given id, timestamp and files.
func NewTrace(id, timestamp string, files ...agenttrace.File) *agenttrace.AgentTrace {
	if files == nil {
		files = []agenttrace.File{}
	}
	return &agenttrace.AgentTrace{
		Version:   agenttrace.SpecVersion,
		ID:        id,
		Timestamp: timestamp,
		Tool:      &agenttrace.Tool{Name: "claude-code", Version: "1.0.0"},
		Files:     files,
	}
}

// ContributedFile builds a file with one conversation by contributorType and
// model over ranges given as {start, end} pairs.
func ContributedFile(path, url, contributorType, model string, ranges ...[2]int) agenttrace.File {
	rs := make([]agenttrace.Range, 0, len(ranges))
	for _, r := range ranges {
		rs = append(rs, agenttrace.Range{StartLine: r[0], EndLine: r[1]})
	}
	return agenttrace.File{
		Path: path,
		Conversations: []agenttrace.Conversation{{
			URL:         url,
			Contributor: &agenttrace.Contributor{Type: contributorType, ModelID: model},
			Ranges:      rs,
		}},
	}
}

// AIFile is ContributedFile for an ai contributor.
func AIFile(path, url, model string, ranges ...[2]int) agenttrace.File {
	return ContributedFile(path, url, agenttrace.ContributorAI, model, ranges...)
}

// Stable uuids for fixtures.
const (
	TraceID1 = "11111111-1111-4111-8111-111111111111"
	TraceID2 = "22222222-2222-4222-8222-222222222222"
	TraceID3 = "33333333-3333-4333-8333-333333333333"
	TraceID4 = "44444444-4444-4444-8444-444444444444"
)
