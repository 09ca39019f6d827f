package agenttrace_test

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tracenotes/pkg/agenttrace"
)

func traceFor(id, ts, url, path string, ranges ...[2]int) *agenttrace.AgentTrace {
	rs := make([]agenttrace.Range, 0, len(ranges))
	for _, r := range ranges {
		rs = append(rs, agenttrace.Range{StartLine: r[0], EndLine: r[1]})
	}
	return &agenttrace.AgentTrace{
		Version:   agenttrace.SpecVersion,
		ID:        id,
		Timestamp: ts,
		Files: []agenttrace.File{{
			Path: path,
			Conversations: []agenttrace.Conversation{{
				URL:         url,
				Contributor: &agenttrace.Contributor{Type: "ai", ModelID: "claude"},
				Ranges:      rs,
			}},
		}},
	}
}

var _ = Describe("ConversationKey", func() {
	It("prefers the first conversation url", func() {
		t := traceFor("a", "2026-01-01T00:00:00Z", "https://x/1", "a.go", [2]int{1, 2})
		t.Metadata = map[string]any{"conversation_id": "c"}
		Expect(agenttrace.ConversationKey(t)).To(Equal("url:https://x/1"))
	})

	It("falls back to the metadata conversation id, then session id", func() {
		t := traceFor("a", "2026-01-01T00:00:00Z", "", "a.go", [2]int{1, 2})
		t.Metadata = map[string]any{"session_id": "s"}
		Expect(agenttrace.ConversationKey(t)).To(Equal("conversation:s"))

		t.Metadata["conversation_id"] = "c"
		Expect(agenttrace.ConversationKey(t)).To(Equal("conversation:c"))
	})

	It("uses the sentinel when nothing identifies the conversation", func() {
		t := traceFor("a", "2026-01-01T00:00:00Z", "", "a.go")
		Expect(agenttrace.ConversationKey(t)).To(Equal(agenttrace.NoConversationKey))
	})
})

var _ = Describe("Consolidate", func() {
	It("merges records sharing a conversation key under the first id", func() {
		a := traceFor("a", "2026-01-01T10:00:00Z", "https://x/1", "a.go", [2]int{1, 5})
		b := traceFor("b", "2026-01-01T09:00:00Z", "https://x/1", "a.go", [2]int{10, 12})

		out := agenttrace.Consolidate([]*agenttrace.AgentTrace{a, b})
		Expect(out).To(HaveLen(1))
		Expect(out[0].ID).To(Equal("a"))
		Expect(out[0].Timestamp).To(Equal("2026-01-01T09:00:00Z"))
		Expect(out[0].Files).To(HaveLen(1))
		Expect(out[0].Files[0].Conversations).To(HaveLen(1))
		Expect(out[0].Files[0].Conversations[0].Ranges).To(HaveLen(2))
		Expect(agenttrace.ConsolidatedIDs(out[0])).To(Equal([]string{"b"}))
	})

	It("does not modify its inputs", func() {
		a := traceFor("a", "2026-01-01T10:00:00Z", "https://x/1", "a.go", [2]int{1, 5})
		b := traceFor("b", "2026-01-01T09:00:00Z", "https://x/1", "a.go", [2]int{10, 12})

		agenttrace.Consolidate([]*agenttrace.AgentTrace{a, b})
		Expect(a.Files[0].Conversations[0].Ranges).To(HaveLen(1))
		Expect(a.Metadata).To(BeNil())
	})

	It("never produces duplicate start-end pairs", func() {
		a := traceFor("a", "2026-01-01T10:00:00Z", "https://x/1", "a.go", [2]int{1, 5}, [2]int{7, 9})
		b := traceFor("b", "2026-01-01T10:01:00Z", "https://x/1", "a.go", [2]int{7, 9}, [2]int{1, 5}, [2]int{20, 20})

		out := agenttrace.Consolidate([]*agenttrace.AgentTrace{a, b})
		ranges := out[0].Files[0].Conversations[0].Ranges
		seen := map[string]bool{}
		for _, r := range ranges {
			key := fmt.Sprintf("%d-%d", r.StartLine, r.EndLine)
			Expect(seen).NotTo(HaveKey(key))
			seen[key] = true
		}
		Expect(ranges).To(HaveLen(3))
	})

	It("appends conversations with a different contributor", func() {
		a := traceFor("a", "2026-01-01T10:00:00Z", "https://x/1", "a.go", [2]int{1, 5})
		b := traceFor("b", "2026-01-01T10:01:00Z", "https://x/1", "a.go", [2]int{1, 5})
		b.Files[0].Conversations[0].Contributor = &agenttrace.Contributor{Type: "human"}

		out := agenttrace.Consolidate([]*agenttrace.AgentTrace{a, b})
		Expect(out[0].Files[0].Conversations).To(HaveLen(2))
	})

	It("appends files not yet present in the governing record", func() {
		a := traceFor("a", "2026-01-01T10:00:00Z", "https://x/1", "a.go", [2]int{1, 5})
		b := traceFor("b", "2026-01-01T10:01:00Z", "https://x/1", "b.go", [2]int{1, 5})

		out := agenttrace.Consolidate([]*agenttrace.AgentTrace{a, b})
		Expect(out[0].Files).To(HaveLen(2))
		Expect(out[0].Files[1].Path).To(Equal("b.go"))
	})

	It("keeps groups in order of first appearance", func() {
		a := traceFor("a", "2026-01-01T10:00:00Z", "https://x/1", "a.go", [2]int{1, 5})
		b := traceFor("b", "2026-01-01T10:00:00Z", "https://x/2", "a.go", [2]int{1, 5})
		c := traceFor("c", "2026-01-01T10:00:00Z", "https://x/1", "a.go", [2]int{6, 8})

		out := agenttrace.Consolidate([]*agenttrace.AgentTrace{a, b, c})
		Expect(out).To(HaveLen(2))
		Expect(out[0].ID).To(Equal("a"))
		Expect(out[1].ID).To(Equal("b"))
	})

	It("fills tool and vcs from later records and keeps first-seen metadata", func() {
		a := traceFor("a", "2026-01-01T10:00:00Z", "https://x/1", "a.go", [2]int{1, 5})
		a.Metadata = map[string]any{"k": "first"}
		b := traceFor("b", "2026-01-01T10:01:00Z", "https://x/1", "a.go", [2]int{1, 5})
		b.Tool = &agenttrace.Tool{Name: "cursor"}
		b.VCS = &agenttrace.VCS{Type: "git", Revision: "r1"}
		b.Metadata = map[string]any{"k": "second", "extra": true}

		out := agenttrace.Consolidate([]*agenttrace.AgentTrace{a, b})
		Expect(out[0].Tool.Name).To(Equal("cursor"))
		Expect(out[0].Revision()).To(Equal("r1"))
		Expect(out[0].Metadata).To(HaveKeyWithValue("k", "first"))
		Expect(out[0].Metadata).To(HaveKeyWithValue("extra", true))
	})
})

var _ = Describe("Merge", func() {
	It("is idempotent for re-delivered records", func() {
		a := traceFor("a", "2026-01-01T10:00:00Z", "https://x/1", "a.go", [2]int{1, 5})

		once, added := agenttrace.Merge(nil, []*agenttrace.AgentTrace{a})
		Expect(added).To(Equal(1))

		twice, added := agenttrace.Merge(once, []*agenttrace.AgentTrace{a})
		Expect(added).To(Equal(0))
		Expect(twice).To(Equal(once))
	})

	It("recognizes ids absorbed by an earlier consolidation", func() {
		a := traceFor("a", "2026-01-01T10:00:00Z", "https://x/1", "a.go", [2]int{1, 5})
		b := traceFor("b", "2026-01-01T10:01:00Z", "https://x/1", "a.go", [2]int{6, 7})

		stored, _ := agenttrace.Merge(nil, []*agenttrace.AgentTrace{a, b})
		Expect(stored).To(HaveLen(1))

		again, added := agenttrace.Merge(stored, []*agenttrace.AgentTrace{b})
		Expect(added).To(Equal(0))
		Expect(again).To(Equal(stored))
	})

	It("drops duplicate ids within one batch", func() {
		a := traceFor("a", "2026-01-01T10:00:00Z", "", "a.go", [2]int{1, 5})
		_, added := agenttrace.Merge(nil, []*agenttrace.AgentTrace{a, a})
		Expect(added).To(Equal(1))
	})

	It("is associative over conversation groups", func() {
		newA := func() *agenttrace.AgentTrace {
			return traceFor("a", "2026-01-01T10:00:00Z", "https://x/1", "a.go", [2]int{1, 5})
		}
		newB := func() *agenttrace.AgentTrace {
			return traceFor("b", "2026-01-01T10:00:30Z", "https://x/2", "b.go", [2]int{3, 4})
		}
		newC := func() *agenttrace.AgentTrace {
			return traceFor("c", "2026-01-01T09:59:00Z", "https://x/1", "a.go", [2]int{1, 5}, [2]int{8, 9})
		}

		first, _ := agenttrace.Merge(nil, []*agenttrace.AgentTrace{newA(), newB()})
		first, _ = agenttrace.Merge(first, []*agenttrace.AgentTrace{newC()})

		second, _ := agenttrace.Merge(nil, []*agenttrace.AgentTrace{newA(), newC()})
		second, _ = agenttrace.Merge(second, []*agenttrace.AgentTrace{newB()})

		firstJSON, err := agenttrace.EncodeTraces(first)
		Expect(err).NotTo(HaveOccurred())
		secondJSON, err := agenttrace.EncodeTraces(second)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(firstJSON)).To(Equal(string(secondJSON)))
	})
})
