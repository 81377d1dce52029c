package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dagger/deltas/internal/dagger"
)

// Build and return directory of go binaries
//
// The SQLite store needs cgo, so binaries are built on Debian with a cross
// compiler per architecture rather than with CGO_ENABLED=0.
func (d *Deltas) Build(
	ctx context.Context,

	// Linker flags for go build
	// +optional
	// +default="-s -w"
	ldflags string,
) *dagger.Directory {
	// define build matrix: GOARCH to C cross compiler
	compilers := map[string]string{
		"amd64": "x86_64-linux-gnu-gcc",
		"arm64": "aarch64-linux-gnu-gcc",
	}

	// create empty directory to put build artifacts
	outputs := dag.Directory()

	golang := d.goContainer().
		WithExec([]string{"apt-get", "install", "-y", "gcc-x86-64-linux-gnu", "gcc-aarch64-linux-gnu"})

	for goarch, cc := range compilers {
		// create directory for each OS and architecture
		path := fmt.Sprintf("linux/%s/", goarch)

		// build artifact
		build := golang.
			WithEnvVariable("GOOS", "linux").
			WithEnvVariable("GOARCH", goarch).
			WithEnvVariable("CC", cc).
			WithExec([]string{"go", "build", "-ldflags", ldflags, "-o", path, "./cli/deltas"})

		// add build to outputs
		outputs = outputs.WithDirectory(path, build.Directory(path))
	}

	// return build directory
	return outputs
}

// BuildRelease compiles versioned release binaries with embedded version info
func (d *Deltas) BuildRelease(
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
		fmt.Sprintf("-X 'github.com/papercomputeco/deltas/pkg/utils.Version=%s'", version),
		fmt.Sprintf("-X 'github.com/papercomputeco/deltas/pkg/utils.Sha=%s'", commit),
		fmt.Sprintf("-X 'github.com/papercomputeco/deltas/pkg/utils.Buildtime=%s'", buildtime),
	}

	return d.Build(ctx, strings.Join(ldflags, " "))
}
