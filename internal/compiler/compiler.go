// Package compiler runs the external test compiler for one source file.
//
// The compiler is invoked as
//
//	<binary> --source=<source dir>/<path> --target=<target dir>
//
// and prints YAML on stdout. Exit code 0 means stdout is a list of test
// manifests; any other exit code means stdout is a structured error.
package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/testworker/internal/domain"
)

// maxOutputMessage bounds raw process output copied into an error output.
const maxOutputMessage = 4096

// Result is the outcome of compiling one source.
// Exactly one of Manifests and Output is meaningful: Output is non-nil when
// compilation failed.
type Result struct {
	Manifests []domain.TestManifest
	Output    domain.ErrorOutput
}

// Failed reports whether the compiler rejected the source.
func (r Result) Failed() bool {
	return r.Output != nil
}

// Process compiles sources by running the compiler binary.
type Process struct {
	binary    string
	sourceDir string
	targetDir string
	logger    *slog.Logger
}

// NewProcess creates a compiler adapter. A nil logger uses slog.Default().
func NewProcess(binary, sourceDir, targetDir string, logger *slog.Logger) *Process {
	if logger == nil {
		logger = slog.Default()
	}
	return &Process{
		binary:    binary,
		sourceDir: sourceDir,
		targetDir: targetDir,
		logger:    logger,
	}
}

// Compile compiles the source at path, relative to the source directory.
//
// A compiler that runs and rejects the source yields a failed Result, not
// an error. Errors are reserved for the process not running at all.
func (p *Process) Compile(ctx context.Context, path string) (Result, error) {
	source := filepath.Join(p.sourceDir, filepath.FromSlash(path))
	cmd := exec.CommandContext(ctx, p.binary, "--source="+source, "--target="+p.targetDir)
	cmd.Dir = p.sourceDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return Result{}, fmt.Errorf("run compiler for %s: %w", path, err)
		}
		exitCode = exitErr.ExitCode()
	}

	p.logger.Debug("compiler finished",
		"source", path,
		"exit_code", exitCode,
		"duration", duration,
	)

	if exitCode != 0 {
		return Result{Output: ParseErrorOutput(stdout.Bytes(), stderr.Bytes(), exitCode)}, nil
	}
	return ParseManifests(stdout.Bytes())
}

// ParseManifests decodes the compiler's success output. Output that does
// not decode is reported as a failed Result, since the compiler broke its
// contract for this source.
func ParseManifests(data []byte) (Result, error) {
	var manifests []domain.TestManifest
	if err := yaml.Unmarshal(data, &manifests); err != nil {
		return Result{Output: domain.ErrorOutput{
			"message": "unreadable compiler output",
			"error":   err.Error(),
		}}, nil
	}
	if manifests == nil {
		manifests = []domain.TestManifest{}
	}
	return Result{Manifests: manifests}, nil
}

// ParseErrorOutput decodes the compiler's failure output. When stdout is
// not a YAML mapping the raw text is kept under "message".
func ParseErrorOutput(stdout, stderr []byte, exitCode int) domain.ErrorOutput {
	var output map[string]any
	if err := yaml.Unmarshal(stdout, &output); err == nil && len(output) > 0 {
		return domain.ErrorOutput(output)
	}

	text := strings.TrimSpace(string(stdout))
	if text == "" {
		text = strings.TrimSpace(string(stderr))
	}
	if len(text) > maxOutputMessage {
		text = text[:maxOutputMessage]
	}
	return domain.ErrorOutput{
		"message":   text,
		"exit_code": exitCode,
	}
}
