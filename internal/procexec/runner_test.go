package procexec_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"archivist/internal/logging"
	"archivist/internal/procexec"
)

type recorder struct {
	mu        sync.Mutex
	lines     []string
	successes []int
	onLine    func(string)
}

func (r *recorder) Consume(line string) {
	r.mu.Lock()
	r.lines = append(r.lines, line)
	r.mu.Unlock()
	if r.onLine != nil {
		r.onLine(line)
	}
}

func (r *recorder) AcceptExit(code int) bool {
	return procexec.LineFunc{Successes: r.successes}.AcceptExit(code)
}

func sh(script string) procexec.Command {
	return procexec.Command{Path: "/bin/sh", Args: []string{"-c", script}}
}

func TestRunMergesOutputAndSplitsCarriageReturns(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	runner := procexec.NewRunner(logging.NewNop())
	rec := &recorder{}
	res, err := runner.Run(context.Background(), sh(`echo out; echo err 1>&2; printf 'frame=1\rframe=2\r\nlast'`), rec)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"out", "err", "frame=1", "frame=2", "last"}
	if strings.Join(rec.lines, "|") != strings.Join(want, "|") {
		t.Fatalf("lines = %q, want %q", rec.lines, want)
	}
	if res.ExitCode != 0 || !strings.Contains(res.Output, "err") {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRunExitPolicy(t *testing.T) {
	runner := procexec.NewRunner(logging.NewNop())

	if _, err := runner.Run(context.Background(), sh("echo found; exit 1"), &recorder{successes: []int{0, 1}}); err != nil {
		t.Fatalf("exit 1 should be accepted: %v", err)
	}

	_, err := runner.Run(context.Background(), sh("echo broken; exit 1"), procexec.ExitZero{})
	var exitErr *procexec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got %v", err)
	}
	if exitErr.ExitCode != 1 || exitErr.Tool != "sh" || !strings.Contains(exitErr.Output, "broken") {
		t.Fatalf("unexpected exit error %+v", exitErr)
	}
}

func TestRunDrainsOversizedOutputLine(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	runner := procexec.NewRunner(logging.NewNop())
	started := time.Now()
	res, err := runner.Run(ctx, sh(`head -c 2000000 /dev/zero | tr '\0' a; echo; echo after; exit 0`), procexec.ExitZero{})
	if err != nil {
		t.Fatalf("Run: %v (after %s)", err, time.Since(started))
	}
	if res.ExitCode != 0 {
		t.Fatalf("exit code = %d, want 0", res.ExitCode)
	}
	if !strings.Contains(res.Output, "output reader stopped") {
		t.Fatalf("transcript should note the oversized line, got %q", res.Output)
	}
	if time.Since(started) > 10*time.Second {
		t.Fatalf("Run took %s; the tool output was not drained", time.Since(started))
	}
}

func TestRunCancelKillsProcessGroup(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{onLine: func(line string) {
		if line == "started" {
			cancel()
		}
	}}

	runner := procexec.NewRunner(logging.NewNop())
	start := time.Now()
	_, err := runner.Run(ctx, sh("echo started; sleep 30; echo never"), rec)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("cancellation took %s", elapsed)
	}
	for _, line := range rec.lines {
		if line == "never" {
			t.Fatal("process kept running after cancellation")
		}
	}
}

func TestRunAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := procexec.NewRunner(nil).Run(ctx, sh("echo hi"), nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunMissingBinary(t *testing.T) {
	_, err := procexec.NewRunner(nil).Run(context.Background(), procexec.Command{Path: "/nonexistent/tool"}, nil)
	if err == nil || !strings.Contains(err.Error(), "start tool") {
		t.Fatalf("expected start error, got %v", err)
	}
}

func TestTranscriptKeepsTail(t *testing.T) {
	tr := procexec.NewTranscript(3)
	for _, l := range []string{"a", "b", "c", "d", "e"} {
		tr.Add(l)
	}
	if got := tr.String(); got != "c\nd\ne" {
		t.Fatalf("String() = %q", got)
	}
	short := procexec.NewTranscript(5)
	short.Add("x")
	if got := short.Lines(); len(got) != 1 || got[0] != "x" {
		t.Fatalf("Lines() = %q", got)
	}
}
