package procexec

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"archivist/internal/logging"
	"archivist/internal/metrics"
)

// maxLineBytes caps a single output line. Output past an oversized line is
// drained and discarded.
const maxLineBytes = 1024 * 1024

// Interpreter consumes a tool's output and judges its exit code.
type Interpreter interface {
	Consume(line string)
	AcceptExit(code int) bool
}

// Command is one tool invocation.
type Command struct {
	Path string
	Args []string
	Dir  string
}

func (c Command) String() string {
	parts := append([]string{c.Path}, c.Args...)
	return strings.Join(parts, " ")
}

// Result describes a finished invocation.
type Result struct {
	ExitCode int
	Output   string
	Duration time.Duration
}

// ExitError reports an exit code the interpreter refused.
type ExitError struct {
	Tool     string
	ExitCode int
	Output   string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Tool, e.ExitCode)
}

// Runner launches commands. The zero value is not usable; use NewRunner.
type Runner struct {
	logger          *slog.Logger
	transcriptLines int
	drainTimeout    time.Duration
}

// Option customises a Runner.
type Option func(*Runner)

// WithTranscriptLines sets how many trailing output lines are kept for
// diagnostics (200 by default).
func WithTranscriptLines(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.transcriptLines = n
		}
	}
}

// NewRunner builds a runner that logs through logger.
func NewRunner(logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		logger:          logging.NewComponentLogger(logger, "procexec"),
		transcriptLines: 200,
		drainTimeout:    2 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes cmd, feeding its merged output to interp. It returns
// ctx.Err() when cancelled, an *ExitError when interp rejects the exit code,
// and the launch error when the process cannot start.
func (r *Runner) Run(ctx context.Context, cmd Command, interp Interpreter) (Result, error) {
	if interp == nil {
		interp = ExitZero{}
	}
	if err := ctx.Err(); err != nil {
		return Result{ExitCode: -1}, err
	}
	tool := filepath.Base(cmd.Path)
	logger := logging.WithContext(ctx, r.logger).With(logging.String("tool", tool))

	pr, pw, err := os.Pipe()
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("create output pipe: %w", err)
	}

	proc := exec.Command(cmd.Path, cmd.Args...)
	proc.Dir = cmd.Dir
	proc.Stdout = pw
	proc.Stderr = pw
	setProcessGroup(proc)

	logger.Debug("starting external tool", logging.String("command", cmd.String()))
	started := time.Now()
	if err := proc.Start(); err != nil {
		pr.Close()
		pw.Close()
		metrics.ToolRuns.WithLabelValues(tool, "start_failed").Inc()
		return Result{ExitCode: -1}, fmt.Errorf("start %s: %w", tool, err)
	}
	// The child holds its own copy; closing ours lets the reader see EOF.
	pw.Close()

	transcript := NewTranscript(r.transcriptLines)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
		scanner.Split(scanLinesOrReturns)
		for scanner.Scan() {
			line := strings.TrimRight(scanner.Text(), " \t")
			if line == "" {
				continue
			}
			transcript.Add(line)
			interp.Consume(line)
		}
		if err := scanner.Err(); err != nil {
			transcript.Add("output reader stopped: " + err.Error())
		}
		// The child must never block on a full pipe.
		_, _ = io.Copy(io.Discard, pr)
	}()

	waitErr := make(chan error, 1)
	go func() { waitErr <- proc.Wait() }()

	var exitErr error
	cancelled := false
	select {
	case exitErr = <-waitErr:
	case <-ctx.Done():
		cancelled = true
		logger.Info("cancelling external tool", logging.Int("pid", proc.Process.Pid))
		killProcessGroup(proc)
		exitErr = <-waitErr
	}

	if !cancelled {
		select {
		case <-readerDone:
		case <-time.After(r.drainTimeout):
			// A grandchild still holds the pipe open.
		}
	}
	pr.Close()
	<-readerDone

	result := Result{
		ExitCode: exitCode(proc, exitErr),
		Output:   transcript.String(),
		Duration: time.Since(started),
	}

	if cancelled {
		metrics.ToolRuns.WithLabelValues(tool, "cancelled").Inc()
		return result, ctx.Err()
	}
	if !interp.AcceptExit(result.ExitCode) {
		metrics.ToolRuns.WithLabelValues(tool, "failed").Inc()
		logger.Warn("external tool failed",
			logging.Int("exit_code", result.ExitCode),
			logging.Duration("duration", result.Duration),
			logging.String(logging.FieldEventType, "tool_failed"),
			logging.String(logging.FieldErrorHint, "see the tool output attached to the error"),
		)
		return result, &ExitError{Tool: tool, ExitCode: result.ExitCode, Output: result.Output}
	}
	metrics.ToolRuns.WithLabelValues(tool, "ok").Inc()
	logger.Debug("external tool finished",
		logging.Int("exit_code", result.ExitCode),
		logging.Duration("duration", result.Duration),
	)
	return result, nil
}

func exitCode(proc *exec.Cmd, err error) int {
	if proc.ProcessState != nil {
		return proc.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// scanLinesOrReturns splits on '\n', '\r' or "\r\n".
func scanLinesOrReturns(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		advance := i + 1
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			advance++
		} else if data[i] == '\r' && i+1 == len(data) && !atEOF {
			// Need one more byte to tell "\r" from "\r\n".
			return 0, nil, nil
		}
		return advance, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
