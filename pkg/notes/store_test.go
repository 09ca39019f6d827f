package notes_test

import (
	"context"
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tracenotes/pkg/agenttrace"
	"github.com/papercomputeco/tracenotes/pkg/environment"
	"github.com/papercomputeco/tracenotes/pkg/git"
	"github.com/papercomputeco/tracenotes/pkg/notes"
	"github.com/papercomputeco/tracenotes/pkg/storage"
	testutils "github.com/papercomputeco/tracenotes/pkg/utils/test"
)

const (
	ref       = "refs/notes/agent-trace"
	showCmd   = "notes --ref " + ref + " show"
	addCmd    = "notes --ref " + ref + " add -f -F -"
	listCmd   = "notes --ref " + ref + " list"
	headCmd   = "rev-parse --verify --quiet HEAD^{commit}"
	headSHA   = "0123456789abcdef0123456789abcdef01234567"
)

var brokenRef = testutils.GitResponse{ExitCode: 128, Stderr: "fatal: Failed to read notes tree referenced by refs/notes/agent-trace (deadbeef)"}

func traceA() *agenttrace.AgentTrace {
	return testutils.NewTrace(testutils.TraceID1, "2026-01-01T10:00:00Z",
		testutils.AIFile("src/a.ts", "https://chat/1", "anthropic/claude", [2]int{1, 50}))
}

func traceB() *agenttrace.AgentTrace {
	return testutils.NewTrace(testutils.TraceID2, "2026-01-01T10:10:00Z",
		testutils.AIFile("src/b.ts", "https://chat/2", "anthropic/claude", [2]int{3, 4}))
}

func traceC() *agenttrace.AgentTrace {
	return testutils.NewTrace(testutils.TraceID3, "2026-01-01T09:50:00Z",
		testutils.AIFile("src/a.ts", "https://chat/1", "anthropic/claude", [2]int{1, 50}, [2]int{60, 70}))
}

var _ = Describe("Store with scripted git", func() {
	var (
		ctx   context.Context
		fake  *testutils.FakeGit
		store *notes.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		fake = testutils.NewFakeGit()
		var err error
		store, err = notes.NewStore(&environment.Environment{Root: "/repo", Git: fake})
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires git access", func() {
		_, err := notes.NewStore(&environment.Environment{})
		Expect(err).To(HaveOccurred())
	})

	It("normalizes short ref names", func() {
		Expect(notes.NormalizeRef("agent-trace")).To(Equal(ref))
		Expect(notes.NormalizeRef("refs/notes/custom")).To(Equal("refs/notes/custom"))

		s, err := notes.NewStore(&environment.Environment{Git: fake}, notes.WithRef("custom"))
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Ref()).To(Equal("refs/notes/custom"))
	})

	Describe("Read", func() {
		It("reads a missing note as empty", func() {
			fake.On(showCmd, testutils.GitResponse{ExitCode: 1, Stderr: "error: no note found for object " + headSHA + "."})

			traces, err := store.Read(ctx, headSHA)
			Expect(err).NotTo(HaveOccurred())
			Expect(traces).To(BeEmpty())
		})

		It("propagates other failures with the underlying message", func() {
			fake.On(showCmd, brokenRef)

			_, err := store.Read(ctx, headSHA)
			Expect(err).To(MatchError(ContainSubstring("Failed to read notes tree")))
			Expect(git.ExitCode(err)).To(Equal(128))
		})

		It("accepts a single object blob", func() {
			body, _ := json.Marshal(traceA())
			fake.On(showCmd, testutils.GitResponse{Stdout: string(body)})

			traces, err := store.Read(ctx, headSHA)
			Expect(err).NotTo(HaveOccurred())
			Expect(traces).To(HaveLen(1))
			Expect(traces[0].ID).To(Equal(testutils.TraceID1))
		})

		It("skips invalid entries in an array blob", func() {
			body, _ := agenttrace.EncodeTraces([]*agenttrace.AgentTrace{traceA(), traceB()})
			var raw []map[string]any
			Expect(json.Unmarshal(body, &raw)).To(Succeed())
			raw[1]["version"] = "not-a-version"
			broken, _ := json.Marshal(raw)
			fake.On(showCmd, testutils.GitResponse{Stdout: string(broken)})

			traces, err := store.Read(ctx, headSHA)
			Expect(err).NotTo(HaveOccurred())
			Expect(traces).To(HaveLen(1))
		})

		It("reads an unparseable blob as empty", func() {
			fake.On(showCmd, testutils.GitResponse{Stdout: "garbage"})

			traces, err := store.Read(ctx, headSHA)
			Expect(err).NotTo(HaveOccurred())
			Expect(traces).To(BeEmpty())
		})
	})

	Describe("Write", func() {
		BeforeEach(func() {
			fake.On(showCmd, testutils.GitResponse{ExitCode: 1, Stderr: "error: no note found for object."})
		})

		It("writes a pretty JSON array on stdin", func() {
			fake.On(addCmd, testutils.GitResponse{})

			Expect(store.Write(ctx, headSHA, []*agenttrace.AgentTrace{traceA()})).To(Succeed())

			call := addCmd + " " + headSHA
			Expect(fake.CallsWithPrefix(addCmd)).To(Equal([]string{call}))
			Expect(string(fake.Inputs[call])).To(HavePrefix("[\n  {"))

			traces, invalid, err := agenttrace.DecodeTraces(fake.Inputs[call])
			Expect(err).NotTo(HaveOccurred())
			Expect(invalid).To(BeEmpty())
			Expect(traces).To(HaveLen(1))
		})

		It("refuses to overwrite an unreadable note", func() {
			fake.On(showCmd, testutils.GitResponse{Stdout: "garbage"})

			err := store.Write(ctx, headSHA, []*agenttrace.AgentTrace{traceA()})
			Expect(err).To(MatchError(notes.ErrUnreadableNote))
			Expect(fake.CallsWithPrefix(addCmd)).To(BeEmpty())
			Expect(fake.CallsWithPrefix("show-ref")).To(BeEmpty())
		})

		It("skips the git write when nothing is new", func() {
			body, _ := agenttrace.EncodeTraces([]*agenttrace.AgentTrace{traceA()})
			fake.On(showCmd, testutils.GitResponse{Stdout: string(body)})

			Expect(store.Write(ctx, headSHA, []*agenttrace.AgentTrace{traceA()})).To(Succeed())
			Expect(fake.CallsWithPrefix(addCmd)).To(BeEmpty())
		})

		It("repairs the reference and retries exactly once", func() {
			fake.On(addCmd, brokenRef, testutils.GitResponse{})
			fake.On("show-ref --verify --quiet "+ref, brokenRef)
			fake.On("update-ref -d "+ref, testutils.GitResponse{})
			fake.On(headCmd, testutils.GitResponse{Stdout: headSHA + "\n"})
			fake.On("notes --ref "+ref+" add -f -m", testutils.GitResponse{})
			fake.On("notes --ref "+ref+" remove", testutils.GitResponse{})

			Expect(store.Write(ctx, headSHA, []*agenttrace.AgentTrace{traceA()})).To(Succeed())
			Expect(fake.CallsWithPrefix(addCmd)).To(HaveLen(2))
			Expect(fake.CallsWithPrefix("update-ref -d")).To(HaveLen(1))
		})

		It("surfaces a second failure as a hard error", func() {
			fake.On(addCmd, brokenRef)
			fake.On("show-ref --verify --quiet "+ref, testutils.GitResponse{ExitCode: 1})
			fake.On(headCmd, testutils.GitResponse{Stdout: headSHA + "\n"})
			fake.On("notes --ref "+ref+" add -f -m", testutils.GitResponse{})
			fake.On("notes --ref "+ref+" remove", testutils.GitResponse{})

			err := store.Write(ctx, headSHA, []*agenttrace.AgentTrace{traceA()})
			Expect(err).To(MatchError(ContainSubstring("after repair")))
			Expect(err).To(MatchError(ContainSubstring("exit status 128")))
			Expect(fake.CallsWithPrefix(addCmd)).To(HaveLen(2))
		})

		It("does not retry when the context is cancelled", func() {
			fake.On(addCmd, brokenRef)
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			Expect(store.Write(cancelled, headSHA, []*agenttrace.AgentTrace{traceA()})).NotTo(Succeed())
			Expect(fake.CallsWithPrefix("show-ref")).To(BeEmpty())
		})
	})

	Describe("EnsureReady", func() {
		It("leaves a healthy reference alone", func() {
			fake.On("show-ref --verify --quiet "+ref, testutils.GitResponse{})
			fake.On(listCmd, testutils.GitResponse{})

			Expect(store.EnsureReady(ctx)).To(Succeed())
			Expect(fake.CallsWithPrefix("update-ref")).To(BeEmpty())
		})

		It("deletes and recreates a reference that cannot be listed", func() {
			fake.On("show-ref --verify --quiet "+ref, testutils.GitResponse{})
			fake.On(listCmd, brokenRef)
			fake.On("update-ref -d "+ref, testutils.GitResponse{})
			fake.On(headCmd, testutils.GitResponse{ExitCode: 1})
			fake.On("hash-object -t tree -w --stdin", testutils.GitResponse{Stdout: git.EmptyTreeID + "\n"})
			fake.On("commit-tree "+git.EmptyTreeID, testutils.GitResponse{Stdout: headSHA + "\n"})
			fake.On("update-ref "+ref+" "+headSHA, testutils.GitResponse{})

			Expect(store.EnsureReady(ctx)).To(Succeed())
			Expect(fake.CallsWithPrefix("update-ref -d")).To(HaveLen(1))
			Expect(fake.CallsWithPrefix("update-ref " + ref)).To(HaveLen(1))
		})

		It("fails when the broken reference cannot be deleted", func() {
			fake.On("show-ref --verify --quiet "+ref, brokenRef)
			fake.On("update-ref -d "+ref, testutils.GitResponse{ExitCode: 128, Stderr: "fatal: cannot lock ref"})

			Expect(store.EnsureReady(ctx)).To(MatchError(ContainSubstring("cannot lock ref")))
		})
	})
})

var _ = Describe("Store against a real repository", func() {
	var (
		ctx   context.Context
		repo  *testutils.Repo
		store *notes.Store
	)

	BeforeEach(func() {
		if !testutils.HasGit() {
			Skip("git is not installed")
		}

		ctx = context.Background()
		var err error
		repo, err = testutils.InitRepo(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())

		store, err = notes.NewStore(&environment.Environment{
			Root: repo.Dir,
			Git:  repo.Runner,
			Now:  time.Now,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("materializes the reference in a repository with no commits", func() {
		Expect(store.EnsureReady(ctx)).To(Succeed())

		_, err := repo.Runner.Run(ctx, "show-ref", "--verify", ref)
		Expect(err).NotTo(HaveOccurred())

		traces, err := store.ReadAll(ctx, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(traces).To(BeEmpty())

		Expect(store.EnsureReady(ctx)).To(Succeed())
	})

	Context("with a commit", func() {
		var head string

		BeforeEach(func() {
			Expect(repo.WriteFile("src/a.ts", testutils.NumberedLines(50))).To(Succeed())
			var err error
			head, err = repo.Commit("add a.ts")
			Expect(err).NotTo(HaveOccurred())
		})

		It("materializes the reference without leaving a note behind", func() {
			Expect(store.EnsureReady(ctx)).To(Succeed())

			traces, err := store.Read(ctx, head)
			Expect(err).NotTo(HaveOccurred())
			Expect(traces).To(BeEmpty())

			commits, err := store.NotedCommits(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(commits).To(BeEmpty())
		})

		It("writes idempotently", func() {
			Expect(store.Write(ctx, head, []*agenttrace.AgentTrace{traceA()})).To(Succeed())
			once, err := store.Read(ctx, head)
			Expect(err).NotTo(HaveOccurred())

			Expect(store.Write(ctx, head, []*agenttrace.AgentTrace{traceA()})).To(Succeed())
			twice, err := store.Read(ctx, head)
			Expect(err).NotTo(HaveOccurred())

			Expect(twice).To(Equal(once))
			Expect(twice).To(HaveLen(1))
		})

		It("consolidates associatively over conversation groups", func() {
			Expect(store.Write(ctx, head, []*agenttrace.AgentTrace{traceA(), traceB()})).To(Succeed())
			Expect(store.Write(ctx, head, []*agenttrace.AgentTrace{traceC()})).To(Succeed())
			first, err := repo.Runner.Run(ctx, "notes", "--ref", ref, "show", head)
			Expect(err).NotTo(HaveOccurred())

			_, err = repo.Runner.Run(ctx, "notes", "--ref", ref, "remove", head)
			Expect(err).NotTo(HaveOccurred())

			Expect(store.Write(ctx, head, []*agenttrace.AgentTrace{traceA(), traceC()})).To(Succeed())
			Expect(store.Write(ctx, head, []*agenttrace.AgentTrace{traceB()})).To(Succeed())
			second, err := repo.Runner.Run(ctx, "notes", "--ref", ref, "show", head)
			Expect(err).NotTo(HaveOccurred())

			Expect(string(second)).To(Equal(string(first)))
		})

		It("repairs a broken reference during a write", func() {
			// Point the notes ref at a blob so git cannot read it as a notes tree.
			blob, err := repo.Runner.RunInput(ctx, []byte("junk\n"), "hash-object", "-w", "--stdin")
			Expect(err).NotTo(HaveOccurred())
			_, err = repo.Runner.Run(ctx, "update-ref", ref, git.Lines(blob)[0])
			Expect(err).NotTo(HaveOccurred())

			Expect(store.Write(ctx, head, []*agenttrace.AgentTrace{traceA()})).To(Succeed())

			traces, err := store.Read(ctx, head)
			Expect(err).NotTo(HaveOccurred())
			Expect(traces).To(HaveLen(1))
		})

		It("keeps a hand-edited note it cannot decode", func() {
			_, err := repo.Runner.Run(ctx, "notes", "--ref", ref, "add", "-m", "not json", head)
			Expect(err).NotTo(HaveOccurred())

			err = store.Write(ctx, head, []*agenttrace.AgentTrace{traceA()})
			Expect(err).To(MatchError(notes.ErrUnreadableNote))

			out, err := repo.Runner.Run(ctx, "notes", "--ref", ref, "show", head)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(out)).To(Equal("not json\n"))

			traces, err := store.Read(ctx, head)
			Expect(err).NotTo(HaveOccurred())
			Expect(traces).To(BeEmpty())
		})

		It("reads ranges and queries across commits", func() {
			Expect(store.Write(ctx, head, []*agenttrace.AgentTrace{traceA()})).To(Succeed())

			Expect(repo.WriteFile("src/b.ts", testutils.NumberedLines(4))).To(Succeed())
			second, err := repo.Commit("add b.ts")
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Write(ctx, second, []*agenttrace.AgentTrace{traceB()})).To(Succeed())

			all, err := store.ReadRange(ctx, "", "HEAD")
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(2))

			sinceFirst, err := store.ReadCommits(ctx, head, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(sinceFirst).To(HaveLen(1))
			Expect(sinceFirst[0].Revision).To(Equal(second))

			byPath, err := store.QueryAgentTraces(ctx, storage.AgentTraceQuery{FilePath: "src/b.ts"})
			Expect(err).NotTo(HaveOccurred())
			Expect(byPath).To(HaveLen(1))
			Expect(byPath[0].ID).To(Equal(testutils.TraceID2))

			byRev, err := store.QueryAgentTraces(ctx, storage.AgentTraceQuery{Revision: head})
			Expect(err).NotTo(HaveOccurred())
			Expect(byRev).To(HaveLen(1))
			Expect(byRev[0].ID).To(Equal(testutils.TraceID1))

			everything, err := store.ReadAll(ctx, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(everything).To(HaveLen(2))
		})
	})

	It("reads an empty range before the first commit", func() {
		commits, err := store.ReadCommits(ctx, "", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(commits).To(BeEmpty())
	})
})
