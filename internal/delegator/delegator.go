// Package delegator runs one compiled test through the external test
// delegator and streams the documents it reports.
//
// The delegator is invoked as
//
//	<binary> --browser <browser> <target>
//
// and writes one YAML document per line on stdout as the test progresses:
// a test document when it starts, a step document per step, and an
// exception document if the run breaks.
package delegator

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/testworker/internal/domain"
)

const (
	// maxLine bounds a single document line.
	maxLine = 1 << 20

	waitDelay = 2 * time.Second
)

// Process executes tests by running the delegator binary.
type Process struct {
	binary string
	logger *slog.Logger
}

// NewProcess creates a delegator adapter. A nil logger uses slog.Default().
func NewProcess(binary string, logger *slog.Logger) *Process {
	if logger == nil {
		logger = slog.Default()
	}
	return &Process{binary: binary, logger: logger}
}

// Execute starts the delegator for test and yields each document as soon as
// its line is read. The sequence is single-use.
//
// Stopping the iteration early kills the process. A process that cannot
// start, writes an undecodable line, or exits non-zero yields a final
// error.
func (p *Process) Execute(ctx context.Context, test domain.Test) iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		cmd := exec.CommandContext(ctx, p.binary, "--browser", test.Browser, test.Target)
		// Children of the delegator may keep its pipes open after it is
		// killed.
		cmd.WaitDelay = waitDelay
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			yield(domain.Document{}, fmt.Errorf("delegator pipe: %w", err))
			return
		}
		if err := cmd.Start(); err != nil {
			yield(domain.Document{}, fmt.Errorf("start delegator: %w", err))
			return
		}

		p.logger.Debug("delegator started", "test", test.ID, "browser", test.Browser, "target", test.Target)

		stopped := false
		streamErr := Decode(stdout, func(doc domain.Document) bool {
			if !yield(doc, nil) {
				stopped = true
				return false
			}
			return true
		})

		if stopped || streamErr != nil {
			cancel()
		}
		waitErr := cmd.Wait()

		if stopped {
			p.logger.Debug("delegator stopped early", "test", test.ID)
			return
		}
		if streamErr != nil {
			yield(domain.Document{}, streamErr)
			return
		}
		if waitErr != nil {
			var exitErr *exec.ExitError
			if errors.As(waitErr, &exitErr) {
				waitErr = fmt.Errorf("delegator exited with code %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
			}
			yield(domain.Document{}, waitErr)
		}
	}
}

// Decode reads line-delimited YAML documents from r and passes each to fn
// until fn returns false or r is exhausted. Blank lines are skipped.
func Decode(r io.Reader, fn func(domain.Document) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		doc, err := ParseDocument(line)
		if err != nil {
			return err
		}
		if !fn(doc) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read delegator output: %w", err)
	}
	return nil
}

// ParseDocument decodes one document. The document type is taken from its
// "type" key.
func ParseDocument(data []byte) (domain.Document, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return domain.Document{}, fmt.Errorf("decode delegator document: %w", err)
	}
	if raw == nil {
		return domain.Document{}, fmt.Errorf("decode delegator document: not a mapping: %q", data)
	}

	docType, _ := raw["type"].(string)
	return domain.Document{Type: domain.DocumentType(docType), Data: raw}, nil
}
