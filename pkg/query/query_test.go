package query_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tracenotes/pkg/agenttrace"
	"github.com/papercomputeco/tracenotes/pkg/attribution"
	"github.com/papercomputeco/tracenotes/pkg/environment"
	"github.com/papercomputeco/tracenotes/pkg/notes"
	"github.com/papercomputeco/tracenotes/pkg/query"
	"github.com/papercomputeco/tracenotes/pkg/storage"
	testutils "github.com/papercomputeco/tracenotes/pkg/utils/test"
)

var _ = Describe("Service", func() {
	var (
		ctx    context.Context
		repo   *testutils.Repo
		store  *notes.Store
		svc    *query.Service
		first  string
		second string
	)

	BeforeEach(func() {
		if !testutils.HasGit() {
			Skip("git is not installed")
		}

		ctx = context.Background()
		var err error
		repo, err = testutils.InitRepo(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())

		env := &environment.Environment{Root: repo.Dir, Git: repo.Runner}
		store, err = notes.NewStore(env)
		Expect(err).NotTo(HaveOccurred())
		svc = query.NewService(store, attribution.NewAnalyzer(repo.Runner, store, nil))

		Expect(repo.WriteFile("src/a.ts", testutils.NumberedLines(10))).To(Succeed())
		first, err = repo.Commit("first")
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Write(ctx, first, []*agenttrace.AgentTrace{
			testutils.NewTrace(testutils.TraceID1, "2026-01-01T10:00:00Z",
				testutils.AIFile("src/a.ts", "https://chat/1", "anthropic/claude", [2]int{1, 10})),
		})).To(Succeed())

		Expect(repo.WriteFile("src/b.ts", testutils.NumberedLines(4))).To(Succeed())
		second, err = repo.Commit("second")
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Write(ctx, second, []*agenttrace.AgentTrace{
			testutils.NewTrace(testutils.TraceID2, "2026-01-01T11:00:00Z",
				testutils.ContributedFile("src/b.ts", "https://chat/2", agenttrace.ContributorHuman, "", [2]int{1, 4})),
		})).To(Succeed())
	})

	It("reads one revision or everything", func() {
		one, err := svc.Traces(ctx, first)
		Expect(err).NotTo(HaveOccurred())
		Expect(one).To(HaveLen(1))

		all, err := svc.Traces(ctx, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(2))
	})

	It("filters by path", func() {
		found, err := svc.Find(ctx, storage.AgentTraceQuery{FilePath: "src/b.ts"})
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(HaveLen(1))
		Expect(found[0].ID).To(Equal(testutils.TraceID2))
	})

	It("analyzes a commit", func() {
		result, err := svc.Analyze(ctx, first)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Files).To(HaveLen(1))
		Expect(result.Files[0].Path).To(Equal("src/a.ts"))
	})

	It("summarizes a range", func() {
		report, err := svc.Summarize(ctx, first, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Commits).To(HaveLen(1))
		Expect(report.Commits[0].Revision).To(Equal(second))
		Expect(report.Total.CountsByContributorType).To(HaveKeyWithValue(agenttrace.ContributorHuman, 1))

		full, err := svc.Summarize(ctx, "", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(full.Total.TotalRecords).To(Equal(2))
	})
})
