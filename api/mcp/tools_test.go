package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tracenotes/pkg/agenttrace"
	"github.com/papercomputeco/tracenotes/pkg/attribution"
	"github.com/papercomputeco/tracenotes/pkg/logger"
	"github.com/papercomputeco/tracenotes/pkg/query"
	"github.com/papercomputeco/tracenotes/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/tracenotes/pkg/utils/test"
)

var _ = Describe("trace tools", func() {
	var (
		ctx    context.Context
		server *Server
	)

	BeforeEach(func() {
		ctx = context.Background()
		store := inmemory.NewAgentTraceStore()
		Expect(store.Write(ctx, "r1", []*agenttrace.AgentTrace{
			testutils.NewTrace(testutils.TraceID1, "2026-01-01T10:00:00Z",
				testutils.AIFile("a.go", "https://c/1", "anthropic/claude", [2]int{1, 3})),
		})).To(Succeed())
		Expect(store.Write(ctx, "r2", []*agenttrace.AgentTrace{
			testutils.NewTrace(testutils.TraceID2, "2026-01-01T11:00:00Z",
				testutils.ContributedFile("b.go", "https://c/2", agenttrace.ContributorHuman, "", [2]int{1, 1})),
		})).To(Succeed())

		svc := query.NewService(store, attribution.NewAnalyzer(testutils.NewFakeGit(), store, nil))

		var err error
		server, err = NewServer(Config{Query: svc, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())
	})

	text := func(res *mcp.CallToolResult) string {
		Expect(res.Content).To(HaveLen(1))
		tc, ok := res.Content[0].(*mcp.TextContent)
		Expect(ok).To(BeTrue())
		return tc.Text
	}

	It("reads one revision", func() {
		res, out, err := server.handleRead(ctx, nil, ReadInput{Revision: "r1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.IsError).To(BeFalse())
		Expect(out.Count).To(Equal(1))
		Expect(text(res)).To(ContainSubstring(testutils.TraceID1))
	})

	It("reads every revision when none is given", func() {
		_, out, err := server.handleRead(ctx, nil, ReadInput{})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Count).To(Equal(2))
	})

	It("summarizes the stored traces", func() {
		res, out, err := server.handleSummary(ctx, nil, SummaryInput{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.IsError).To(BeFalse())
		Expect(out.Report.Total.TotalRecords).To(Equal(2))
		Expect(out.AIShare).To(BeNumerically("==", 0.75))
		Expect(out.Models).To(ConsistOf(HaveField("Name", "anthropic/claude")))
	})

	It("reports analysis failures as tool errors", func() {
		res, _, err := server.handleAnalyze(ctx, nil, AnalyzeInput{Revision: "r1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.IsError).To(BeTrue())
		Expect(text(res)).To(ContainSubstring("Failed to analyze commit"))
	})
})
