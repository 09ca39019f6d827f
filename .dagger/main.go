// Tracenotes CI/CD
//
// Package main provides reproducible builds and tests locally and in GitHub actions.
package main

import (
	"context"

	"dagger/tracenotes/internal/dagger"
)

// Tracenotes is the main module for the tracenotes CI/CD pipeline
type Tracenotes struct {
	// Project source directory
	//
	// +private
	Source *dagger.Directory
}

// New creates a new Tracenotes CI/CD module instance
func New(
	// Project source directory.
	//
	// +defaultPath="/"
	// +ignore=[".git", ".direnv", "build", "tmp", ".tracenotes"]
	source *dagger.Directory,
) *Tracenotes {
	return &Tracenotes{
		Source: source,
	}
}

// goContainer returns a Debian Bookworm-based Go container with gcc, git,
// libsqlite3-dev, CGO enabled, and the project source mounted.
//
// The notes, staging and command tests drive a real git binary, and the
// SQLite mirror needs CGO.
func (t *Tracenotes) goContainer(platform dagger.Platform) *dagger.Container {
	return dag.Container(dagger.ContainerOpts{Platform: platform}).
		From("golang:1.25-bookworm").
		WithExec([]string{"apt-get", "update"}).
		WithExec([]string{"apt-get", "install", "-y", "gcc", "git", "libsqlite3-dev"}).
		WithEnvVariable("CGO_ENABLED", "1").
		WithEnvVariable("PATH", "/go/bin:$PATH", dagger.ContainerWithEnvVariableOpts{Expand: true}).
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build-"+string(platform))).
		WithWorkdir("/src").
		WithDirectory("/src", t.Source)
}

// Test runs the tracenotes unit tests via "go test"
//
// +check
func (t *Tracenotes) Test(ctx context.Context) (string, error) {
	return t.goContainer("").
		WithExec([]string{"go", "test", "-race", "./..."}).
		Stdout(ctx)
}
