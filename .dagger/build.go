package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dagger/tracenotes/internal/dagger"
)

// Build and return directory of go binaries
func (t *Tracenotes) Build(
	ctx context.Context,

	// Linker flags for go build
	// +optional
	// +default="-s -w"
	ldflags string,
) *dagger.Directory {
	// go-sqlite3 needs CGO, so each architecture builds natively in its own
	// platform container rather than cross compiling.
	platforms := []dagger.Platform{"linux/amd64", "linux/arm64"}

	outputs := dag.Directory()

	for _, platform := range platforms {
		path := string(platform) + "/"

		build := t.goContainer(platform).
			WithExec([]string{"go", "build", "-ldflags", ldflags, "-o", path, "./cli/tracenotes"})

		outputs = outputs.WithDirectory(path, build.Directory(path))
	}

	return outputs
}

// BuildRelease compiles versioned release binaries with embedded version info
func (t *Tracenotes) BuildRelease(
	ctx context.Context,

	// Version string of build
	version string,

	// Git commit SHA of build
	commit string,
) *dagger.Directory {
	buildtime := time.Now()

	ldflags := []string{
		"-s",
		"-w",
		fmt.Sprintf("-X 'github.com/papercomputeco/tracenotes/pkg/utils.Version=%s'", version),
		fmt.Sprintf("-X 'github.com/papercomputeco/tracenotes/pkg/utils.Sha=%s'", commit),
		fmt.Sprintf("-X 'github.com/papercomputeco/tracenotes/pkg/utils.Buildtime=%s'", buildtime.Format(time.RFC3339)),
	}

	return t.Build(ctx, strings.Join(ldflags, " "))
}
