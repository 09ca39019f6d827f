package agenttrace

import (
	"fmt"
	"time"
)

// NoConversationKey groups records that carry neither a conversation url nor
// a conversation identifier in their metadata.
const NoConversationKey = "__no_conversation__"

// ConversationKey returns the key records are grouped under during
// consolidation: the first conversation url, else the conversation or session
// id from metadata, else NoConversationKey.
func ConversationKey(t *AgentTrace) string {
	for _, f := range t.Files {
		for _, c := range f.Conversations {
			if c.URL != "" {
				return "url:" + c.URL
			}
		}
	}

	if id := metadataString(t.Metadata, MetadataConversationID); id != "" {
		return "conversation:" + id
	}
	if id := metadataString(t.Metadata, MetadataSessionID); id != "" {
		return "conversation:" + id
	}

	return NoConversationKey
}

// KnownIDs returns every id held by traces, both governing ids and the ids
// absorbed into them by earlier consolidations.
func KnownIDs(traces []*AgentTrace) map[string]bool {
	ids := make(map[string]bool, len(traces))
	for _, t := range traces {
		if t == nil {
			continue
		}
		ids[t.ID] = true
		for _, id := range ConsolidatedIDs(t) {
			ids[id] = true
		}
	}
	return ids
}

// ConsolidatedIDs returns the ids merged into t by consolidation.
func ConsolidatedIDs(t *AgentTrace) []string {
	if t == nil || t.Metadata == nil {
		return nil
	}

	switch ids := t.Metadata[MetadataConsolidatedIDs].(type) {
	case []string:
		return ids
	case []any:
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			if s, ok := id.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Merge drops incoming traces whose id is already known to existing (or that
// repeat an earlier incoming id), then consolidates the union. It returns the
// consolidated set and the number of incoming traces that were new.
func Merge(existing, incoming []*AgentTrace) ([]*AgentTrace, int) {
	known := KnownIDs(existing)

	union := make([]*AgentTrace, 0, len(existing)+len(incoming))
	for _, t := range existing {
		if t != nil {
			union = append(union, t)
		}
	}

	added := 0
	for _, t := range incoming {
		if t == nil || known[t.ID] {
			continue
		}
		known[t.ID] = true
		union = append(union, t)
		added++
	}

	return Consolidate(union), added
}

// Consolidate groups traces by ConversationKey and merges every group into a
// single trace. The first trace seen in a group governs its identity; the
// earliest timestamp wins. Groups keep their order of first appearance.
// Inputs are not modified.
func Consolidate(traces []*AgentTrace) []*AgentTrace {
	var order []string
	groups := make(map[string]*AgentTrace)

	for _, t := range traces {
		if t == nil {
			continue
		}

		key := ConversationKey(t)
		governing, ok := groups[key]
		if !ok {
			groups[key] = t.Clone()
			order = append(order, key)
			continue
		}

		mergeTrace(governing, t)
	}

	out := make([]*AgentTrace, 0, len(order))
	for _, key := range order {
		out = append(out, groups[key])
	}
	return out
}

func mergeTrace(dst, src *AgentTrace) {
	if earlier(src.Timestamp, dst.Timestamp) {
		dst.Timestamp = src.Timestamp
	}

	if dst.VCS == nil && src.VCS != nil {
		vcs := *src.VCS
		dst.VCS = &vcs
	}
	if dst.Tool == nil && src.Tool != nil {
		tool := *src.Tool
		dst.Tool = &tool
	}

	if src.ID != dst.ID {
		absorbIDs(dst, append([]string{src.ID}, ConsolidatedIDs(src)...))
	} else {
		absorbIDs(dst, ConsolidatedIDs(src))
	}

	for k, v := range src.Metadata {
		if k == MetadataConsolidatedIDs {
			continue
		}
		if dst.Metadata == nil {
			dst.Metadata = make(map[string]any)
		}
		if _, exists := dst.Metadata[k]; !exists {
			dst.Metadata[k] = v
		}
	}

	for _, sf := range src.Files {
		idx := fileIndex(dst.Files, sf.Path)
		if idx < 0 {
			dst.Files = append(dst.Files, sf.clone())
			continue
		}
		mergeFile(&dst.Files[idx], sf)
	}
}

func mergeFile(dst *File, src File) {
	for _, sc := range src.Conversations {
		idx := conversationIndex(dst.Conversations, sc.Contributor)
		if idx < 0 {
			dst.Conversations = append(dst.Conversations, sc.clone())
			continue
		}

		dc := &dst.Conversations[idx]
		if dc.URL == "" {
			dc.URL = sc.URL
		}
		dc.Ranges = unionRanges(dc.Ranges, sc.clone().Ranges)
		dc.RelatedResources = unionResources(dc.RelatedResources, sc.RelatedResources)
	}
}

func absorbIDs(dst *AgentTrace, ids []string) {
	if len(ids) == 0 {
		return
	}

	existing := ConsolidatedIDs(dst)
	seen := make(map[string]bool, len(existing)+1)
	seen[dst.ID] = true
	merged := make([]any, 0, len(existing)+len(ids))
	for _, id := range existing {
		if !seen[id] {
			seen[id] = true
			merged = append(merged, id)
		}
	}
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			merged = append(merged, id)
		}
	}

	if dst.Metadata == nil {
		dst.Metadata = make(map[string]any)
	}
	dst.Metadata[MetadataConsolidatedIDs] = merged
}

func unionRanges(dst, src []Range) []Range {
	seen := make(map[string]bool, len(dst)+len(src))
	out := make([]Range, 0, len(dst)+len(src))
	for _, ranges := range [][]Range{dst, src} {
		for _, r := range ranges {
			key := fmt.Sprintf("%d-%d", r.StartLine, r.EndLine)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, r)
		}
	}
	return out
}

func unionResources(dst, src []RelatedResource) []RelatedResource {
	for _, r := range src {
		found := false
		for _, d := range dst {
			if d == r {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, r)
		}
	}
	return dst
}

func fileIndex(files []File, path string) int {
	for i, f := range files {
		if f.Path == path {
			return i
		}
	}
	return -1
}

func conversationIndex(convs []Conversation, c *Contributor) int {
	for i, dc := range convs {
		if dc.Contributor.ContributorType() == c.ContributorType() && dc.Contributor.Model() == c.Model() {
			return i
		}
	}
	return -1
}

// earlier reports whether a is strictly before b. Unparseable timestamps
// fall back to string comparison.
func earlier(a, b string) bool {
	at, aerr := time.Parse(time.RFC3339Nano, a)
	bt, berr := time.Parse(time.RFC3339Nano, b)
	if aerr == nil && berr == nil {
		return at.Before(bt)
	}
	return a < b
}

func metadataString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}
