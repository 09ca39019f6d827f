package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tracenotes/pkg/agenttrace"
	"github.com/papercomputeco/tracenotes/pkg/aggregate"
	"github.com/papercomputeco/tracenotes/pkg/attribution"
	"github.com/papercomputeco/tracenotes/pkg/environment"
	"github.com/papercomputeco/tracenotes/pkg/logger"
	"github.com/papercomputeco/tracenotes/pkg/notes"
	"github.com/papercomputeco/tracenotes/pkg/query"
	"github.com/papercomputeco/tracenotes/pkg/recorder"
	"github.com/papercomputeco/tracenotes/pkg/staging"
	"github.com/papercomputeco/tracenotes/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/tracenotes/pkg/utils/test"
)

var _ = Describe("API handlers", func() {
	var (
		ctx    context.Context
		repo   *testutils.Repo
		store  *notes.Store
		server *Server
	)

	BeforeEach(func() {
		if !testutils.HasGit() {
			Skip("git is not installed")
		}

		ctx = context.Background()
		var err error
		repo, err = testutils.InitRepo(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())

		env := &environment.Environment{Root: repo.Dir, Git: repo.Runner, Tool: agenttrace.Tool{Name: "claude-code"}}
		store, err = notes.NewStore(env)
		Expect(err).NotTo(HaveOccurred())

		svc := query.NewService(store, attribution.NewAnalyzer(repo.Runner, store, nil))
		rec := recorder.New(env, store, staging.NewBuffer(env))

		server, err = NewServer(Config{ListenAddr: ":0"}, svc, rec, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
	})

	do := func(method, target string, body []byte) (*http.Response, []byte) {
		req := httptest.NewRequest(method, target, bytes.NewReader(body))
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := server.app.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		data, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp, data
	}

	trace := func(id, path string, start, end int) *agenttrace.AgentTrace {
		return testutils.NewTrace(id, "2026-01-23T14:30:00Z",
			testutils.AIFile(path, "https://chat/"+id, "anthropic/claude", [2]int{start, end}))
	}

	commitWithTrace := func() string {
		Expect(repo.WriteFile("src/a.ts", testutils.NumberedLines(50))).To(Succeed())
		head, err := repo.Commit("add a.ts")
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Write(ctx, head, []*agenttrace.AgentTrace{trace(testutils.TraceID1, "src/a.ts", 1, 50)})).To(Succeed())
		return head
	}

	It("responds to ping", func() {
		resp, body := do(http.MethodGet, "/ping", nil)
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
		Expect(string(body)).To(Equal(`"pong"`))
	})

	Describe("POST /v1/agent-traces", func() {
		It("stages traces before the first commit", func() {
			body, err := json.Marshal(trace(testutils.TraceID1, "src/a.ts", 1, 5))
			Expect(err).NotTo(HaveOccurred())

			resp, data := do(http.MethodPost, "/v1/agent-traces", body)
			Expect(resp.StatusCode).To(Equal(fiber.StatusCreated))

			var out CreateResponse
			Expect(json.Unmarshal(data, &out)).To(Succeed())
			Expect(out.Staged).To(BeTrue())
			Expect(out.Pending).To(Equal(1))
		})

		It("records an array onto HEAD and reports rejected records", func() {
			head, err := repo.Commit("first")
			Expect(err).NotTo(HaveOccurred())

			valid, err := json.Marshal(trace(testutils.TraceID1, "src/a.ts", 1, 5))
			Expect(err).NotTo(HaveOccurred())
			body := []byte(`[` + string(valid) + `, {"version": "0.1.0"}]`)

			resp, data := do(http.MethodPost, "/v1/agent-traces", body)
			Expect(resp.StatusCode).To(Equal(fiber.StatusCreated))

			var out CreateResponse
			Expect(json.Unmarshal(data, &out)).To(Succeed())
			Expect(out.Revision).To(Equal(head))
			Expect(out.Recorded).To(Equal(1))
			Expect(out.Skipped).To(Equal(1))
			Expect(out.Rejected).To(HaveLen(1))

			stored, err := store.Read(ctx, head)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(HaveLen(1))
		})

		It("records onto an explicit revision", func() {
			first, err := repo.Commit("first")
			Expect(err).NotTo(HaveOccurred())
			_, err = repo.Commit("second")
			Expect(err).NotTo(HaveOccurred())

			body, err := json.Marshal(trace(testutils.TraceID2, "src/b.ts", 1, 2))
			Expect(err).NotTo(HaveOccurred())

			resp, _ := do(http.MethodPost, "/v1/agent-traces?revision="+first, body)
			Expect(resp.StatusCode).To(Equal(fiber.StatusCreated))

			stored, err := store.Read(ctx, first)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(HaveLen(1))
		})

		It("rejects a revision that does not exist", func() {
			_, err := repo.Commit("first")
			Expect(err).NotTo(HaveOccurred())

			body, err := json.Marshal(trace(testutils.TraceID2, "src/b.ts", 1, 2))
			Expect(err).NotTo(HaveOccurred())

			resp, _ := do(http.MethodPost, "/v1/agent-traces?revision=nope", body)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("returns 400 when no record is valid", func() {
			resp, data := do(http.MethodPost, "/v1/agent-traces", []byte(`{"id": "x"}`))
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))

			var out ErrorResponse
			Expect(json.Unmarshal(data, &out)).To(Succeed())
			Expect(out.Error).To(Equal("no valid agent traces"))
			Expect(out.Details).To(HaveLen(1))
		})

		It("returns 400 for a body that is not JSON records", func() {
			resp, _ := do(http.MethodPost, "/v1/agent-traces", []byte(`"hello"`))
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("GET /v1/agent-traces", func() {
		It("filters by file path", func() {
			commitWithTrace()

			resp, data := do(http.MethodGet, "/v1/agent-traces?file_path=src/a.ts", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			var traces []*agenttrace.AgentTrace
			Expect(json.Unmarshal(data, &traces)).To(Succeed())
			Expect(traces).To(HaveLen(1))

			_, data = do(http.MethodGet, "/v1/agent-traces?file_path=other.ts", nil)
			Expect(json.Unmarshal(data, &traces)).To(Succeed())
			Expect(traces).To(BeEmpty())
		})

		It("rejects a negative limit", func() {
			resp, _ := do(http.MethodGet, "/v1/agent-traces?limit=-1", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("gets a trace by id", func() {
			commitWithTrace()

			resp, data := do(http.MethodGet, "/v1/agent-traces/"+testutils.TraceID1, nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			var t agenttrace.AgentTrace
			Expect(json.Unmarshal(data, &t)).To(Succeed())
			Expect(t.ID).To(Equal(testutils.TraceID1))

			resp, _ = do(http.MethodGet, "/v1/agent-traces/"+testutils.TraceID4, nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})
	})

	Describe("commit routes", func() {
		It("returns the traces of a commit", func() {
			head := commitWithTrace()

			resp, data := do(http.MethodGet, "/v1/commits/"+head+"/traces", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			var traces []*agenttrace.AgentTrace
			Expect(json.Unmarshal(data, &traces)).To(Succeed())
			Expect(traces).To(HaveLen(1))
		})

		It("returns the attribution of a commit", func() {
			head := commitWithTrace()

			resp, data := do(http.MethodGet, "/v1/commits/HEAD/attribution", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			var result attribution.CommitAttribution
			Expect(json.Unmarshal(data, &result)).To(Succeed())
			Expect(result.Revision).To(Equal(head))
			Expect(result.Files).To(HaveLen(1))
			Expect(result.Files[0].Ranges[0].EndLine).To(Equal(50))
		})

		It("returns 404 for attribution of an unknown revision", func() {
			resp, _ := do(http.MethodGet, "/v1/commits/HEAD/attribution", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})
	})

	Describe("GET /v1/summary", func() {
		It("summarizes the history of HEAD", func() {
			commitWithTrace()

			resp, data := do(http.MethodGet, "/v1/summary", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			var report aggregate.Report
			Expect(json.Unmarshal(data, &report)).To(Succeed())
			Expect(report.Total.TotalRecords).To(Equal(1))
			Expect(report.Total.LinesByContributor).To(HaveKeyWithValue(agenttrace.ContributorAI, 50))
		})
	})
})

var _ = Describe("NewServer", func() {
	It("requires a query service", func() {
		_, err := NewServer(Config{}, nil, nil, nil)
		Expect(err).To(MatchError("query service is required"))
	})

	It("leaves POST unregistered without a recorder", func() {
		svc := query.NewService(inmemory.NewAgentTraceStore(), nil)
		server, err := NewServer(Config{}, svc, nil, nil)
		Expect(err).NotTo(HaveOccurred())

		req := httptest.NewRequest(http.MethodPost, "/v1/agent-traces", bytes.NewReader([]byte("{}")))
		req.Header.Set("Content-Type", "application/json")
		resp, err := server.app.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(BeElementOf(fiber.StatusNotFound, fiber.StatusMethodNotAllowed))

		req = httptest.NewRequest(http.MethodGet, "/v1/agent-traces", nil)
		resp, err = server.app.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
	})
})
