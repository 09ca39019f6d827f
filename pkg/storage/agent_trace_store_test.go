package storage_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tracenotes/pkg/agenttrace"
	"github.com/papercomputeco/tracenotes/pkg/storage"
	"github.com/papercomputeco/tracenotes/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/tracenotes/pkg/utils/test"
)

var _ = Describe("FilterAgentTraces", func() {
	var traces []*agenttrace.AgentTrace

	BeforeEach(func() {
		a := testutils.NewTrace(testutils.TraceID1, "2026-01-01T10:00:00Z", testutils.AIFile("src/A.go", "", "m", [2]int{1, 2}))
		a.VCS = &agenttrace.VCS{Type: "git", Revision: "r1"}
		a.Metadata = map[string]any{agenttrace.MetadataConsolidatedIDs: []any{testutils.TraceID4}}
		b := testutils.NewTrace(testutils.TraceID2, "2026-01-01T12:00:00Z", testutils.AIFile("src/b.go", "", "m", [2]int{1, 2}))
		b.VCS = &agenttrace.VCS{Type: "git", Revision: "r2"}
		b.Tool = &agenttrace.Tool{Name: "cursor"}
		c := testutils.NewTrace(testutils.TraceID3, "2026-01-01T11:00:00Z")
		traces = []*agenttrace.AgentTrace{a, b, c}
	})

	It("orders newest first", func() {
		out := storage.FilterAgentTraces(traces, storage.AgentTraceQuery{})
		Expect(out).To(HaveLen(3))
		Expect(out[0].ID).To(Equal(testutils.TraceID2))
		Expect(out[1].ID).To(Equal(testutils.TraceID3))
		Expect(out[2].ID).To(Equal(testutils.TraceID1))
	})

	It("matches file paths case-insensitively", func() {
		out := storage.FilterAgentTraces(traces, storage.AgentTraceQuery{FilePath: "src/a.go"})
		Expect(out).To(HaveLen(1))
		Expect(out[0].ID).To(Equal(testutils.TraceID1))
	})

	It("filters by revision and tool", func() {
		Expect(storage.FilterAgentTraces(traces, storage.AgentTraceQuery{Revision: "r2"})).To(HaveLen(1))
		Expect(storage.FilterAgentTraces(traces, storage.AgentTraceQuery{ToolName: "CURSOR"})).To(HaveLen(1))
		Expect(storage.FilterAgentTraces(traces, storage.AgentTraceQuery{ToolName: "claude-code"})).To(HaveLen(2))
	})

	It("matches consolidated ids", func() {
		out := storage.FilterAgentTraces(traces, storage.AgentTraceQuery{ID: testutils.TraceID4})
		Expect(out).To(HaveLen(1))
		Expect(out[0].ID).To(Equal(testutils.TraceID1))
	})

	It("applies offset and limit", func() {
		Expect(storage.FilterAgentTraces(traces, storage.AgentTraceQuery{Offset: 1, Limit: 1})).To(HaveLen(1))
		Expect(storage.FilterAgentTraces(traces, storage.AgentTraceQuery{Offset: 5})).To(BeEmpty())
		Expect(storage.FilterAgentTraces(traces, storage.AgentTraceQuery{Limit: 2})).To(HaveLen(2))
	})
})

var _ = Describe("FindAgentTrace", func() {
	It("returns ErrNotFound for unknown ids", func() {
		store := inmemory.NewAgentTraceStore()
		_, err := storage.FindAgentTrace(context.Background(), store, "missing")
		Expect(err).To(MatchError(storage.ErrNotFound{ID: "missing"}))
		Expect(err.Error()).To(Equal("agent trace not found: missing"))
	})

	It("finds a stored trace", func() {
		store := inmemory.NewAgentTraceStore()
		t := testutils.NewTrace(testutils.TraceID1, "2026-01-01T10:00:00Z")
		Expect(store.Write(context.Background(), "r1", []*agenttrace.AgentTrace{t})).To(Succeed())

		found, err := storage.FindAgentTrace(context.Background(), store, testutils.TraceID1)
		Expect(err).NotTo(HaveOccurred())
		Expect(found.ID).To(Equal(testutils.TraceID1))
	})
})
