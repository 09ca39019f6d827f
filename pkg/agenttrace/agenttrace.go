// Package agenttrace defines domain types for the Agent Trace specification,
// an open specification for tracking AI-generated code attribution.
package agenttrace

import (
	"time"
)

const (
	// SpecVersion is the record version written by this module.
	SpecVersion = "0.1.0"

	// VCSTypeGit is the only version control system type recorded.
	VCSTypeGit = "git"
)

// Contributor types.
const (
	ContributorHuman   = "human"
	ContributorAI      = "ai"
	ContributorMixed   = "mixed"
	ContributorUnknown = "unknown"
)

// Well known metadata keys.
const (
	MetadataConversationID  = "conversation_id"
	MetadataSessionID       = "session_id"
	MetadataConsolidatedIDs = "consolidated_ids"
)

// AgentTrace is the root record for an agent trace.
type AgentTrace struct {
	Version   string         `json:"version"`
	ID        string         `json:"id"`
	Timestamp string         `json:"timestamp"`
	VCS       *VCS           `json:"vcs,omitempty"`
	Tool      *Tool          `json:"tool,omitempty"`
	Files     []File         `json:"files"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// VCS describes the version control system context.
type VCS struct {
	Type     string `json:"type,omitempty"`
	Revision string `json:"revision,omitempty"`
}

// Tool describes the tool that generated the trace.
type Tool struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// File describes a file with AI-attributed conversations.
type File struct {
	Path          string         `json:"path"`
	Conversations []Conversation `json:"conversations,omitempty"`
}

// Conversation describes a conversation that contributed to a file.
type Conversation struct {
	URL              string            `json:"url,omitempty"`
	Contributor      *Contributor      `json:"contributor,omitempty"`
	Ranges           []Range           `json:"ranges,omitempty"`
	RelatedResources []RelatedResource `json:"related_resources,omitempty"`
}

// Contributor describes who contributed to the code (AI or human).
type Contributor struct {
	Type    string `json:"type,omitempty"`
	ModelID string `json:"model_id,omitempty"`
}

// Range describes a range of lines attributed to AI generation.
// Lines are 1-indexed and inclusive. A non-nil Contributor overrides the
// owning conversation's contributor for this span.
type Range struct {
	StartLine   int          `json:"start_line"`
	EndLine     int          `json:"end_line"`
	ContentHash string       `json:"content_hash,omitempty"`
	Contributor *Contributor `json:"contributor,omitempty"`
}

// RelatedResource describes a resource related to the conversation.
type RelatedResource struct {
	Type string `json:"type,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Lines returns the number of lines covered by the range.
func (r Range) Lines() int {
	if r.EndLine < r.StartLine {
		return 0
	}
	return r.EndLine - r.StartLine + 1
}

// Overlaps reports whether line falls inside the range.
func (r Range) Overlaps(line int) bool {
	return line >= r.StartLine && line <= r.EndLine
}

// ContributorType returns the contributor type, or ContributorUnknown when unset.
func (c *Contributor) ContributorType() string {
	if c == nil || c.Type == "" {
		return ContributorUnknown
	}
	return c.Type
}

// Model returns the model id, tolerating a nil contributor.
func (c *Contributor) Model() string {
	if c == nil {
		return ""
	}
	return c.ModelID
}

// Time parses the record timestamp.
func (t *AgentTrace) Time() (time.Time, bool) {
	ts, err := time.Parse(time.RFC3339Nano, t.Timestamp)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// Revision returns the recorded VCS revision, if any.
func (t *AgentTrace) Revision() string {
	if t.VCS == nil {
		return ""
	}
	return t.VCS.Revision
}

// ToolName returns the recorded tool name, if any.
func (t *AgentTrace) ToolName() string {
	if t.Tool == nil {
		return ""
	}
	return t.Tool.Name
}

// Clone returns a deep copy of the trace.
func (t *AgentTrace) Clone() *AgentTrace {
	if t == nil {
		return nil
	}

	out := &AgentTrace{
		Version:   t.Version,
		ID:        t.ID,
		Timestamp: t.Timestamp,
		Metadata:  cloneMetadata(t.Metadata),
	}
	if t.VCS != nil {
		vcs := *t.VCS
		out.VCS = &vcs
	}
	if t.Tool != nil {
		tool := *t.Tool
		out.Tool = &tool
	}

	out.Files = make([]File, len(t.Files))
	for i, f := range t.Files {
		out.Files[i] = f.clone()
	}

	return out
}

func (f File) clone() File {
	out := File{Path: f.Path}
	if f.Conversations != nil {
		out.Conversations = make([]Conversation, len(f.Conversations))
		for i, c := range f.Conversations {
			out.Conversations[i] = c.clone()
		}
	}
	return out
}

func (c Conversation) clone() Conversation {
	out := Conversation{URL: c.URL}
	if c.Contributor != nil {
		contrib := *c.Contributor
		out.Contributor = &contrib
	}
	if c.Ranges != nil {
		out.Ranges = make([]Range, len(c.Ranges))
		for i, r := range c.Ranges {
			out.Ranges[i] = r
			if r.Contributor != nil {
				contrib := *r.Contributor
				out.Ranges[i].Contributor = &contrib
			}
		}
	}
	if c.RelatedResources != nil {
		out.RelatedResources = append([]RelatedResource(nil), c.RelatedResources...)
	}
	return out
}

func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if ids, ok := v.([]any); ok {
			v = append([]any(nil), ids...)
		}
		if ids, ok := v.([]string); ok {
			v = append([]string(nil), ids...)
		}
		out[k] = v
	}
	return out
}
