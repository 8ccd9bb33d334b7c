package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"os/exec"
	"syscall"
	"time"

	"github.com/itsneelabh/taskctl/core"
)

// CLIBackend spawns a subprocess and streams its stdout as events, one JSON
// object per line. It honors a per-invocation timeout derived from task
// complexity (§4.1) and escalates from terminate to kill on cancellation,
// mirroring the teacher's graceful-shutdown idiom in core/agent.go.
type CLIBackend struct {
	command       string
	args          []string
	logger        core.Logger
	killGracePeriod time.Duration
}

// CLIBackendOption configures a CLIBackend.
type CLIBackendOption func(*CLIBackend)

func WithCLILogger(logger core.Logger) CLIBackendOption {
	return func(b *CLIBackend) { b.logger = logger }
}

func WithCLIKillGrace(d time.Duration) CLIBackendOption {
	return func(b *CLIBackend) { b.killGracePeriod = d }
}

// NewCLIBackend wraps command, invoked with args plus a JSON-encoded
// request on stdin.
func NewCLIBackend(command string, args []string, opts ...CLIBackendOption) *CLIBackend {
	b := &CLIBackend{
		command:         command,
		args:            args,
		logger:          &core.NoOpLogger{},
		killGracePeriod: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *CLIBackend) Name() string { return "cli" }

func (b *CLIBackend) Generate(ctx context.Context, req Request) EventSequence {
	out := make(chan EventOrError, 4)
	go func() {
		defer close(out)

		// Not CommandContext: that would SIGKILL at once when ctx ends,
		// bypassing terminate's SIGTERM grace period below.
		cmd := exec.Command(b.command, b.args...)
		payload, err := json.Marshal(req)
		if err != nil {
			out <- EventOrError{Err: &PortError{Kind: ErrorKindProviderError, Message: "encode request", Err: err}}
			return
		}
		stdin, err := cmd.StdinPipe()
		if err != nil {
			out <- EventOrError{Err: &PortError{Kind: ErrorKindProviderUnavailable, Message: "open stdin", Err: err}}
			return
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			out <- EventOrError{Err: &PortError{Kind: ErrorKindProviderUnavailable, Message: "open stdout", Err: err}}
			return
		}

		if err := cmd.Start(); err != nil {
			out <- EventOrError{Err: &PortError{Kind: ErrorKindProviderUnavailable, Message: "start process", Err: err}}
			return
		}

		go func() {
			defer stdin.Close()
			stdin.Write(payload)
		}()

		done := make(chan struct{})
		go func() {
			defer close(done)
			scanner := bufio.NewScanner(stdout)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				line := scanner.Bytes()
				if len(line) == 0 {
					continue
				}
				var evt core.Event
				if err := json.Unmarshal(line, &evt); err != nil {
					out <- EventOrError{Err: &PortError{Kind: ErrorKindProviderError, Message: "decode event", Err: err}}
					continue
				}
				out <- EventOrError{Event: &evt}
			}
		}()

		select {
		case <-done:
			if err := cmd.Wait(); err != nil {
				if ctx.Err() == context.DeadlineExceeded {
					out <- EventOrError{Err: &PortError{Kind: ErrorKindTimeout, Message: "cli backend timed out", Err: err}}
				}
			}
		case <-ctx.Done():
			b.terminate(cmd)
			<-done
			out <- EventOrError{Err: &PortError{Kind: ErrorKindTimeout, Message: "cancelled", Err: ctx.Err()}}
		}
	}()
	return out
}

// terminate sends SIGTERM and escalates to SIGKILL after the grace period.
func (b *CLIBackend) terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	timer := time.NewTimer(b.killGracePeriod)
	defer timer.Stop()
	done := make(chan struct{})
	go func() {
		cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-timer.C:
		_ = cmd.Process.Kill()
	}
}

func (b *CLIBackend) Connect(ctx context.Context, req Request) (EventSequence, error) {
	return nil, &PortError{Kind: ErrorKindProviderError, Message: "not supported"}
}
