package process

import (
	"context"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/core-tools/hsu-reactor/pkg/deadline"
	"github.com/core-tools/hsu-reactor/pkg/errors"
	"github.com/core-tools/hsu-reactor/pkg/logging"
	"github.com/core-tools/hsu-reactor/pkg/processstate"
)

const (
	DefaultShell     = "/bin/sh"
	DefaultKillDelay = 5 * time.Second
	DefaultMaxOutput = 64 * 1024

	readChunkSize = 4096
)

// CommandSpec is a shell command and the account it runs as.
// An empty User runs the command as the daemon's own user.
type CommandSpec struct {
	Command string `yaml:"command" validate:"required"`
	User    string `yaml:"user,omitempty"`
}

type RunnerOptions struct {
	Shell string `yaml:"shell,omitempty"`
	// KillDelay bounds the reap after SIGTERM; the group is then SIGKILLed
	KillDelay time.Duration `yaml:"kill_delay,omitempty"`
	// MaxOutput caps the bytes kept in Result.Output; everything is still logged
	MaxOutput int `yaml:"max_output,omitempty"`
}

// Result describes a child that was spawned, whether or not it finished in time.
type Result struct {
	PID      int
	ExitCode int
	Output   string
	Elapsed  time.Duration
	TimedOut bool
}

type Runner struct {
	options RunnerOptions
	logger  logging.Logger
}

func NewRunner(options RunnerOptions, logger logging.Logger) *Runner {
	if options.Shell == "" {
		options.Shell = DefaultShell
	}
	if options.KillDelay <= 0 {
		options.KillDelay = DefaultKillDelay
	}
	if options.MaxOutput <= 0 {
		options.MaxOutput = DefaultMaxOutput
	}
	return &Runner{
		options: options,
		logger:  logger,
	}
}

// Run executes spec through the shell and waits at most timeout for it to exit.
// A nil error means the child was reaped before the deadline without a kill;
// its exit code is reported but never treated as failure. On timeout or
// cancellation the process group is terminated and reaped before returning.
func (r *Runner) Run(ctx context.Context, spec CommandSpec, timeout time.Duration) (*Result, error) {
	if err := ValidateCommandSpec(spec); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		return nil, errors.NewValidationError("timeout must be positive", nil).WithContext("timeout", timeout)
	}

	credential, err := resolveCredential(spec.User)
	if err != nil {
		r.logger.Errorf("Unable to resolve user %s: %v", spec.User, err)
		return nil, err
	}

	outputReader, outputWriter, err := os.Pipe()
	if err != nil {
		r.logger.Errorf("Unable to create pipe to child: %v", err)
		return nil, errors.NewResourceError("failed to create output pipe", err)
	}

	cmd := exec.Command(r.options.Shell, "-c", spec.Command)
	cmd.Stdout = outputWriter
	cmd.Stderr = outputWriter
	setupProcessAttributes(cmd, credential)

	start := time.Now()
	err = cmd.Start()
	// the child holds its own copy of the write end
	outputWriter.Close()
	if err != nil {
		outputReader.Close()
		r.logger.Errorf("Unable to start %s: %v", r.options.Shell, err)
		return nil, errors.NewResourceError("failed to start the process", err).WithContext("command", spec.Command)
	}

	pid := cmd.Process.Pid
	r.logger.Debugf("Started command, pid: %d, user: '%s', command: %s", pid, spec.User, spec.Command)

	output := newOutputBuffer(r.options.MaxOutput)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		r.drain(outputReader, output)
	}()

	reaped := make(chan error, 1)
	go func() {
		reaped <- cmd.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	result := &Result{PID: pid}

	select {
	case waitErr := <-reaped:
		finished := time.Now()
		result.Elapsed = finished.Sub(start)
		result.ExitCode = exitCode(cmd)

		// a background grandchild may keep the pipe open; stop draining at the deadline
		select {
		case <-drained:
		case <-timer.C:
			r.logger.Warnf("Output of pid %d still open after exit, not waiting for it", pid)
		}
		outputReader.Close()
		<-drained
		result.Output = output.String()

		if _, exited := waitErr.(*exec.ExitError); waitErr != nil && !exited {
			r.logger.Errorf("Unable to wait for pid %d: %v", pid, waitErr)
			return result, errors.NewProcessError("failed to wait for the process", waitErr).WithContext("pid", pid)
		}

		r.logger.Debugf("Command finished, pid: %d, exit code: %d, elapsed: %d ms",
			pid, result.ExitCode, deadline.ElapsedMs(start, finished))
		return result, nil

	case <-timer.C:
		r.logger.Errorf("Command %s took too long. Killing it and continuing.", spec.Command)
	case <-ctx.Done():
		r.logger.Errorf("Command %s cancelled: %v. Killing it and continuing.", spec.Command, ctx.Err())
	}

	expired := time.Now()
	r.terminate(pid, reaped)
	result.Elapsed = time.Since(start)
	result.ExitCode = exitCode(cmd)
	result.TimedOut = true

	outputReader.Close()
	<-drained
	result.Output = output.String()

	return result, errors.NewTimeoutError("command did not finish in time", ctx.Err()).
		WithContext("pid", pid).
		WithContext("timeout_ms", timeout.Milliseconds()).
		WithContext("elapsed_ms", deadline.ElapsedMs(start, expired))
}

// terminate sends SIGTERM to the child's group and reaps the child, escalating
// to SIGKILL once KillDelay passes.
func (r *Runner) terminate(pgid int, reaped <-chan error) {
	if err := SendTerminationSignal(pgid); err != nil {
		r.logger.Warnf("Unable to send SIGTERM to group %d: %v", pgid, err)
	}

	select {
	case <-reaped:
	case <-time.After(r.options.KillDelay):
		r.logger.Warnf("Pid %d ignored SIGTERM for %v, sending SIGKILL", pgid, r.options.KillDelay)
		if err := SendKillSignal(pgid); err != nil {
			r.logger.Warnf("Unable to send SIGKILL to group %d: %v", pgid, err)
		}
		<-reaped
	}

	// leftover members of the group would otherwise outlive the action
	if running, err := processstate.IsGroupRunning(pgid); err == nil && running {
		r.logger.Warnf("Members of process group %d survived the leader, sending SIGKILL", pgid)
		_ = SendKillSignal(pgid)
	}
}

func (r *Runner) drain(reader *os.File, output *outputBuffer) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			r.logger.Debugf("Command output: %s", buf[:n])
			output.Write(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func exitCode(cmd *exec.Cmd) int {
	if cmd.ProcessState == nil {
		return -1
	}
	return cmd.ProcessState.ExitCode()
}

// outputBuffer keeps the first max bytes written to it
type outputBuffer struct {
	mutex sync.Mutex
	data  []byte
	max   int
}

func newOutputBuffer(max int) *outputBuffer {
	return &outputBuffer{max: max}
}

func (b *outputBuffer) Write(p []byte) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	room := b.max - len(b.data)
	if room <= 0 {
		return
	}
	if len(p) > room {
		p = p[:room]
	}
	b.data = append(b.data, p...)
}

func (b *outputBuffer) String() string {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return string(b.data)
}
