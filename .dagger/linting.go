package main

import (
	"context"
	"errors"
	"fmt"

	"dagger/tracenotes/internal/dagger"
)

const golangciLint = "github.com/golangci/golangci-lint/v2/cmd/golangci-lint@v2.8.0"

// linter is goContainer with golangci-lint installed. Running it there
// lints with the same CGO toolchain the tests build with.
func (t *Tracenotes) linter() *dagger.Container {
	return t.goContainer("").
		WithMountedCache("/root/.cache/golangci-lint", dag.CacheVolume("golangci-lint")).
		WithExec([]string{"go", "install", golangciLint})
}

// CheckLint reports golangci-lint findings using .golangci.yml.
//
// +check
func (t *Tracenotes) CheckLint(ctx context.Context) (string, error) {
	out, err := t.linter().
		WithExec([]string{"golangci-lint", "run", "--config", ".golangci.yml", "./..."}).
		Stdout(ctx)

	var execErr *dagger.ExecError
	switch {
	case errors.As(err, &execErr):
		return "", fmt.Errorf("golangci-lint found issues:\n\n%s", execErr.Stdout)
	case err != nil:
		return "", fmt.Errorf("running golangci-lint: %w", err)
	}
	return out, nil
}

// FixLint applies golangci-lint's automatic fixes and formatters and returns
// the rewritten source. Findings without a fix do not fail it.
func (t *Tracenotes) FixLint() *dagger.Directory {
	return t.linter().
		WithExec([]string{"golangci-lint", "run", "--config", ".golangci.yml", "--fix", "--issues-exit-code", "0", "./..."}).
		Directory("/src")
}
