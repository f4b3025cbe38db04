package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"strconv"
	"time"
)

// dockerImage is the image the docker backend runs; it is expected to carry
// this binary at /usr/local/bin/phish-triage.
const dockerImage = "phish-triage-fetch:latest"

const maxStderrSnippet = 512

// fetchSandboxed spawns a worker subprocess that performs the same internal
// fetch and prints one JSON Result on stdout.
func (f *Fetcher) fetchSandboxed(ctx context.Context, rawURL string) *Result {
	start := time.Now()

	execTimeout := f.policy.SandboxExecTimeout
	if execTimeout <= 0 {
		execTimeout = 20 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()

	cmd, err := f.workerCommand(ctx, rawURL)
	if err != nil {
		return &Result{
			Outcome:   OutcomeSandboxError,
			Reason:    ReasonSandboxUnavailable,
			URL:       rawURL,
			ElapsedMs: time.Since(start).Milliseconds(),
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		reason := ReasonSandboxWorkerFailed
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = "sandbox_exec_timeout"
		}
		snippet := stderr.String()
		if len(snippet) > maxStderrSnippet {
			snippet = snippet[:maxStderrSnippet]
		}
		result := &Result{
			Outcome:   OutcomeSandboxError,
			Reason:    reason,
			URL:       rawURL,
			ElapsedMs: time.Since(start).Milliseconds(),
		}
		if snippet != "" {
			result.Reason = reason + ": " + snippet
		}
		f.logger.WithField("url", rawURL).WithError(err).Debug("sandbox worker failed")
		return result
	}

	var result Result
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return &Result{
			Outcome:   OutcomeSandboxError,
			Reason:    ReasonSandboxWorkerFailed + ": bad worker output",
			URL:       rawURL,
			ElapsedMs: time.Since(start).Milliseconds(),
		}
	}
	result.ElapsedMs = time.Since(start).Milliseconds()
	return &result
}

// workerCommand builds the sandboxed subprocess for the configured backend.
// The worker receives the URL and policy on argv and emits JSON on stdout.
func (f *Fetcher) workerCommand(ctx context.Context, rawURL string) (*exec.Cmd, error) {
	workerArgs := []string{
		"fetch-worker",
		"--url", rawURL,
		"--timeout", strconv.Itoa(int(f.policy.Timeout.Seconds())),
		"--max-redirects", strconv.Itoa(f.policy.MaxRedirects),
		"--max-bytes", strconv.FormatInt(f.policy.MaxBytes, 10),
		"--user-agent", f.policy.UserAgent,
	}
	if f.policy.AllowPrivateNetwork {
		workerArgs = append(workerArgs, "--allow-private-network")
	}

	switch f.policy.SandboxBackend {
	case "firejail":
		firejail, err := exec.LookPath("firejail")
		if err != nil {
			return nil, err
		}
		self, err := os.Executable()
		if err != nil {
			return nil, err
		}
		args := append([]string{
			"--quiet",
			"--private",
			"--caps.drop=all",
			"--seccomp",
			"--",
			self,
		}, workerArgs...)
		return exec.CommandContext(ctx, firejail, args...), nil

	case "docker":
		docker, err := exec.LookPath("docker")
		if err != nil {
			return nil, err
		}
		args := append([]string{
			"run", "--rm",
			"--network", "bridge",
			"--security-opt", "no-new-privileges",
			"--read-only",
			"--cap-drop", "ALL",
			"--memory", "256m",
			"--cpus", "0.5",
			"--pids-limit", "64",
			dockerImage,
			"phish-triage",
		}, workerArgs...)
		return exec.CommandContext(ctx, docker, args...), nil
	}

	return nil, errors.New("unknown sandbox backend")
}
