// Package worker abstracts the out-of-process generation worker. The
// orchestrator depends only on the Runner interface; the worker reports
// progress through the step webhook, never through this package.
package worker

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"

	"github.com/vidforge/vidforge/internal/types"
)

// Handle controls one running worker.
type Handle interface {
	// Kill signals the worker for termination. Best-effort: the worker
	// may finish a sub-step before observing it.
	Kill() error
	// Wait blocks until the worker exits and returns its failure, if any.
	Wait() error
}

// Runner launches workers for claimed jobs.
type Runner interface {
	Start(ctx context.Context, job *types.Job) (Handle, error)
}

// ExecRunner spawns the generator binary as a child process, passing the
// job parameters and the step-webhook callback URL as flags.
type ExecRunner struct {
	// Bin is the path of the generator executable
	Bin string
	// CallbackURL is where the worker posts step webhooks
	CallbackURL string
}

// NewExecRunner creates a runner for the given binary and callback URL.
func NewExecRunner(bin, callbackURL string) *ExecRunner {
	return &ExecRunner{Bin: bin, CallbackURL: callbackURL}
}

// Start launches the worker process for the job.
func (r *ExecRunner) Start(ctx context.Context, job *types.Job) (Handle, error) {
	args := []string{
		"--job-id", job.ID,
		"--country", job.Params.Country,
		"--platform", job.Params.Platform,
		"--genre", job.Params.Genre,
		"--content-type", job.Params.ContentType,
		"--callback-url", r.CallbackURL,
	}
	if job.Params.Template != "" {
		args = append(args, "--template", job.Params.Template)
	}
	if job.Params.PauseAfterGeneration {
		args = append(args, "--pause", strconv.FormatBool(true))
	}

	cmd := exec.CommandContext(ctx, r.Bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker for job %s: %w", job.ID, err)
	}
	return &execHandle{cmd: cmd, stderr: &stderr}, nil
}

type execHandle struct {
	cmd     *exec.Cmd
	stderr  *bytes.Buffer
	waitMu  sync.Mutex
	waited  bool
	waitErr error
}

func (h *execHandle) Kill() error {
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}

// Wait is safe to call from multiple goroutines; the underlying
// cmd.Wait runs once. The stderr tail is folded into the error so the
// failure lands on the job record.
func (h *execHandle) Wait() error {
	h.waitMu.Lock()
	defer h.waitMu.Unlock()
	if h.waited {
		return h.waitErr
	}
	h.waited = true

	err := h.cmd.Wait()
	if err != nil {
		out := tail(h.stderr.String(), 512)
		if out != "" {
			err = fmt.Errorf("worker exited: %v: %s", err, out)
		} else {
			err = fmt.Errorf("worker exited: %w", err)
		}
	}
	h.waitErr = err
	return err
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
