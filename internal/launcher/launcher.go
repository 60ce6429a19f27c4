// Package launcher runs one automation as a child process of the backend and
// collects the result line it prints.
package launcher

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/availity-rpa/internal/workflow"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrRunFailed is returned when the child exits without reporting a result.
var ErrRunFailed = errors.New("automation run failed")

// CommandFunc builds the child process. exec.CommandContext in production.
type CommandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// Report is what one child run produced.
type Report struct {
	Result   workflow.FinalResult
	ExitCode int
	Took     time.Duration
}

// Runner launches `<executable> <kind> '<record json>'`.
type Runner struct {
	executable string
	timeout    time.Duration
	command    CommandFunc
	logger     *zap.Logger
}

// Option tunes a Runner.
type Option func(*Runner)

// WithCommand replaces how the child process is built.
func WithCommand(f CommandFunc) Option {
	return func(r *Runner) { r.command = f }
}

// New builds a Runner. An empty executable means the running binary.
func New(executable string, timeout time.Duration, logger *zap.Logger, opts ...Option) (*Runner, error) {
	if executable == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to find executable path: %w", err)
		}
		executable = self
	}
	r := &Runner{
		executable: executable,
		timeout:    timeout,
		command:    exec.CommandContext,
		logger:     logger.Named("launcher"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run executes one workflow for rec. A child that printed a result line
// yields its Report even when it exited non-zero.
func (r *Runner) Run(ctx context.Context, kind workflow.Kind, rec workflow.PatientRecord) (Report, error) {
	arg, err := json.Marshal(rec)
	if err != nil {
		return Report{}, fmt.Errorf("encoding record: %w", err)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	log := r.logger.With(zap.String("workflow", string(kind)), zap.String("auth_id", rec.AuthID))
	cmd := r.command(ctx, r.executable, string(kind), string(arg))
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Report{}, fmt.Errorf("attaching stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Report{}, fmt.Errorf("attaching stderr: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Report{}, fmt.Errorf("starting %s: %w", kind, err)
	}
	log.Info("Automation started", zap.Int("pid", cmd.Process.Pid))

	var (
		mu  sync.Mutex
		out bytes.Buffer
	)
	g := new(errgroup.Group)
	g.Go(func() error {
		return pump(stdout, func(line string) {
			mu.Lock()
			out.WriteString(line)
			out.WriteByte('\n')
			mu.Unlock()
			log.Debug(line, zap.String("stream", "stdout"))
		})
	})
	g.Go(func() error {
		return pump(stderr, func(line string) {
			log.Info(line, zap.String("stream", "stderr"))
		})
	})
	pumpErr := g.Wait()
	waitErr := cmd.Wait()

	rep := Report{ExitCode: cmd.ProcessState.ExitCode(), Took: time.Since(start)}
	if pumpErr != nil {
		log.Warn("Reading child output failed", zap.Error(pumpErr))
	}

	result, parseErr := workflow.ParseFinalResult(out.Bytes())
	if parseErr == nil {
		rep.Result = result
		log.Info("Automation finished",
			zap.Bool("success", result.Success),
			zap.Int("exit_code", rep.ExitCode),
			zap.Duration("took", rep.Took))
		return rep, nil
	}
	if ctx.Err() != nil {
		return rep, fmt.Errorf("%s: %w", kind, ctx.Err())
	}
	if waitErr != nil {
		return rep, fmt.Errorf("%s exited with %d: %w", kind, rep.ExitCode, errors.Join(ErrRunFailed, parseErr))
	}
	return rep, fmt.Errorf("%s: %w", kind, parseErr)
}

// pump hands every line of rd to emit.
func pump(rd io.Reader, emit func(string)) error {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		emit(sc.Text())
	}
	return sc.Err()
}
