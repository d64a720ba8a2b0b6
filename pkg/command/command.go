/*
Copyright 2025 The GitHub Webhook Server Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package command runs the external tools the server shells out to (git, uv,
// tox, podman, ...) with bounded runtime and captured, redacted output.
// Commands are executed directly, never through a shell.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/myk-org/github-webhook-server-sub001/pkg/secretutil"
)

const (
	// DefaultTimeout bounds a command that did not configure its own.
	DefaultTimeout = 600 * time.Second

	// MinTimeout and MaxTimeout clamp user-configured timeouts.
	MinTimeout = 30 * time.Second
	MaxTimeout = 3600 * time.Second

	// DefaultGracePeriod is how long a process gets between SIGINT and
	// SIGKILL once its timeout is reached or the delivery is cancelled.
	DefaultGracePeriod = 10 * time.Second
)

var errTimedOut = errors.New("process timed out")

// IsTimedOut reports whether the result error means the process was killed
// for exceeding its timeout.
func IsTimedOut(err error) bool {
	return errors.Is(err, errTimedOut)
}

// Command describes one subprocess invocation. Redact lists literals that
// must never appear in captured output or logs (tokens embedded in URLs,
// registry passwords).
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Env     []string
	Timeout time.Duration
	Redact  []string
}

func (c Command) line() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Result carries the captured, already-redacted output of a finished command.
// Err is set for failures other than a plain non-zero exit: start errors,
// timeout, cancellation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

// Success reports whether the command ran to completion with exit code zero.
func (r Result) Success() bool {
	return r.Err == nil && r.ExitCode == 0
}

// Runner executes commands with a shared censorer and grace period.
type Runner struct {
	logger      *logrus.Entry
	censorer    secretutil.Censorer
	gracePeriod time.Duration
}

// NewRunner returns a Runner. The censorer may be nil; per-command Redact
// lists are applied either way.
func NewRunner(logger *logrus.Entry, censorer secretutil.Censorer) *Runner {
	return &Runner{logger: logger, censorer: censorer, gracePeriod: DefaultGracePeriod}
}

// Run executes the command and blocks until it exits, its timeout fires or
// ctx is cancelled. On timeout or cancellation the process receives SIGINT,
// a grace period, then SIGKILL; cancellation surfaces as ctx's error so
// callers can tell it apart from failure.
func (r *Runner) Run(ctx context.Context, cmd Command) Result {
	timeout := clampTimeout(cmd.Timeout)
	log := r.logger.WithField("command", r.redact(cmd.line(), cmd.Redact))
	log.Debug("Running command.")

	execCmd := exec.Command(cmd.Name, cmd.Args...)
	execCmd.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		execCmd.Env = append(os.Environ(), cmd.Env...)
	}
	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	start := time.Now()
	if err := execCmd.Start(); err != nil {
		return Result{ExitCode: -1, Err: fmt.Errorf("could not start %s: %w", cmd.Name, err)}
	}

	var commandErr error
	done := make(chan error, 1)
	go func() {
		done <- execCmd.Wait()
	}()
	select {
	case err := <-done:
		commandErr = err
	case <-time.After(timeout):
		log.Errorf("Process did not finish before %s timeout.", timeout)
		r.gracefullyTerminate(execCmd, done)
		commandErr = errTimedOut
	case <-ctx.Done():
		log.Info("Delivery cancelled, terminating process.")
		r.gracefullyTerminate(execCmd, done)
		commandErr = ctx.Err()
	}

	result := Result{
		Stdout:   r.redact(stdout.String(), cmd.Redact),
		Stderr:   r.redact(stderr.String(), cmd.Redact),
		ExitCode: execCmd.ProcessState.ExitCode(),
	}
	if exitErr := (&exec.ExitError{}); errors.As(commandErr, &exitErr) {
		// Non-zero exit is expressed through ExitCode alone.
		commandErr = nil
	}
	result.Err = commandErr
	log.WithFields(logrus.Fields{
		"exit-code": result.ExitCode,
		"duration":  time.Since(start).String(),
	}).Debug("Command finished.")
	return result
}

func (r *Runner) gracefullyTerminate(cmd *exec.Cmd, done <-chan error) {
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		r.logger.WithError(err).Error("Could not interrupt process.")
	}
	select {
	case <-done:
	case <-time.After(r.gracePeriod):
		r.logger.Errorf("Process did not exit before %s grace period.", r.gracePeriod)
		if err := cmd.Process.Kill(); err != nil {
			r.logger.WithError(err).Error("Could not kill process after grace period.")
		}
		// Wait must return before ProcessState is read.
		<-done
	}
}

func (r *Runner) redact(s string, secrets []string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, "*****")
	}
	if r.censorer != nil {
		b := []byte(s)
		r.censorer.Censor(&b)
		s = string(b)
	}
	return s
}

func clampTimeout(timeout time.Duration) time.Duration {
	if timeout == 0 {
		return DefaultTimeout
	}
	if timeout < MinTimeout {
		return MinTimeout
	}
	if timeout > MaxTimeout {
		return MaxTimeout
	}
	return timeout
}
