// Package testutils holds fixtures shared by package tests: a scripted git
// Commander and a throwaway real repository.
package testutils

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/papercomputeco/tracenotes/pkg/git"
)

// GitResponse is one scripted git result.
type GitResponse struct {
	Stdout   string
	ExitCode int
	Stderr   string
}

type gitScript struct {
	prefix    string
	responses []GitResponse
}

// FakeGit is a scripted git.Commander. Each script matches calls whose
// space-joined args start with its prefix; responses are consumed in order
// and the last one repeats. Unscripted calls fail with exit status 128.
type FakeGit struct {
	mu      sync.Mutex
	scripts []*gitScript
	Calls   []string
	Inputs  map[string][]byte
}

// NewFakeGit creates an empty FakeGit.
func NewFakeGit() *FakeGit {
	return &FakeGit{Inputs: make(map[string][]byte)}
}

// On scripts the responses for calls starting with prefix. Later scripts win
// over earlier ones with the same prefix.
func (f *FakeGit) On(prefix string, responses ...GitResponse) *FakeGit {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.scripts = append([]*gitScript{{prefix: prefix, responses: responses}}, f.scripts...)
	return f
}

// CallsWithPrefix returns the recorded calls starting with prefix.
func (f *FakeGit) CallsWithPrefix(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, c := range f.Calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Run implements git.Commander.
func (f *FakeGit) Run(ctx context.Context, args ...string) ([]byte, error) {
	return f.RunInput(ctx, nil, args...)
}

// RunInput implements git.Commander.
func (f *FakeGit) RunInput(_ context.Context, input []byte, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := strings.Join(args, " ")
	f.Calls = append(f.Calls, call)
	if input != nil {
		f.Inputs[call] = input
	}

	for _, s := range f.scripts {
		if !strings.HasPrefix(call, s.prefix) || len(s.responses) == 0 {
			continue
		}

		resp := s.responses[0]
		if len(s.responses) > 1 {
			s.responses = s.responses[1:]
		}

		if resp.ExitCode != 0 {
			return nil, &git.Error{
				Args:     args,
				ExitCode: resp.ExitCode,
				Stderr:   resp.Stderr,
				Err:      fmt.Errorf("exit status %d", resp.ExitCode),
			}
		}
		return []byte(resp.Stdout), nil
	}

	return nil, &git.Error{
		Args:     args,
		ExitCode: 128,
		Stderr:   "unexpected git call: " + call,
		Err:      fmt.Errorf("exit status 128"),
	}
}

// IdentityEnv pins author and committer identity so commits work without any
// user git configuration.
var IdentityEnv = []string{
	"GIT_AUTHOR_NAME=tracenotes",
	"GIT_AUTHOR_EMAIL=tracenotes@example.com",
	"GIT_COMMITTER_NAME=tracenotes",
	"GIT_COMMITTER_EMAIL=tracenotes@example.com",
	"GIT_CONFIG_NOSYSTEM=1",
}

// HasGit reports whether a git binary is on PATH.
func HasGit() bool {
	_, err := exec.LookPath(git.DefaultBinary)
	return err == nil
}

// Repo is a real git repository in a temporary directory.
type Repo struct {
	Dir    string
	Runner *git.Runner
}

// InitRepo runs git init in dir.
func InitRepo(dir string) (*Repo, error) {
	r := &Repo{
		Dir:    dir,
		Runner: git.NewRunner(dir, git.WithEnv(IdentityEnv...)),
	}

	ctx := context.Background()
	if _, err := r.Runner.Run(ctx, "init", "-q"); err != nil {
		return nil, err
	}
	if _, err := r.Runner.Run(ctx, "config", "commit.gpgsign", "false"); err != nil {
		return nil, err
	}
	return r, nil
}

// WriteFile writes content to a repository-relative path.
func (r *Repo) WriteFile(path, content string) error {
	full := filepath.Join(r.Dir, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, []byte(content), 0o600)
}

// Commit stages everything and commits, returning the new commit id.
func (r *Repo) Commit(message string) (string, error) {
	ctx := context.Background()
	if _, err := r.Runner.Run(ctx, "add", "-A"); err != nil {
		return "", err
	}
	if _, err := r.Runner.Run(ctx, "commit", "-q", "--allow-empty", "-m", message); err != nil {
		return "", err
	}
	out, err := r.Runner.Run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// NumberedLines returns n lines of the form "line N\n".
func NumberedLines(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	return b.String()
}
