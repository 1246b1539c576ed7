// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package exttool is the uniform adapter over "run a named external
// binary with an argument vector, capture its stdout/stderr into a
// per-line log, and return success/failure plus the raw log text".
// The four hyperspectral stages (aplmask, aplcorr, apltran, aplmap)
// all go through this one call site; they differ only in argv
// construction and success predicate.
package exttool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/nerc-arf/scops/pkg/log"
)

// Result is the outcome of one external-binary invocation.
type Result struct {
	ExitCode int
	Log      string
}

// Run invokes name with args, appending combined stdout/stderr to
// logPath (truncated by the caller before the first stage, then
// appended to across stages -- see pipeline.Driver). It never returns
// an error for a non-zero exit: the caller decides success by
// checking the stage's declared output file. A non-nil error here
// means the binary could not be started or the log file could not be
// written.
func Run(ctx context.Context, logPath string, name string, args ...string) (Result, error) {
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return Result{}, fmt.Errorf("exttool: opening log %s: %w", logPath, err)
	}
	defer logFile.Close()

	fmt.Fprintf(logFile, "\n--- %s %v ---\n", name, args)

	var captured bytes.Buffer
	out := io.MultiWriter(logFile, &captured)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = out
	cmd.Stderr = out

	log.Debugf("exttool: running %s %v", name, args)

	runErr := cmd.Run()

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if ok := asExitError(runErr, &exitErr); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return Result{Log: captured.String()}, fmt.Errorf("exttool: starting %s: %w", name, runErr)
		}
	}

	return Result{ExitCode: exitCode, Log: captured.String()}, nil
}

// RunWithStdin behaves like Run but feeds stdin to the child process,
// for tools such as bsub that expect the job script on standard
// input rather than as argv.
func RunWithStdin(ctx context.Context, logPath, stdin, name string, args ...string) (Result, error) {
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return Result{}, fmt.Errorf("exttool: opening log %s: %w", logPath, err)
	}
	defer logFile.Close()

	fmt.Fprintf(logFile, "\n--- %s %v (stdin: %q) ---\n", name, args, stdin)

	var captured bytes.Buffer
	out := io.MultiWriter(logFile, &captured)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.Stdin = bytes.NewBufferString(stdin)

	log.Debugf("exttool: running %s %v with stdin", name, args)

	runErr := cmd.Run()

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if ok := asExitError(runErr, &exitErr); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return Result{Log: captured.String()}, fmt.Errorf("exttool: starting %s: %w", name, runErr)
		}
	}

	return Result{ExitCode: exitCode, Log: captured.String()}, nil
}

func asExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if ok {
		*target = ee
	}
	return ok
}

// FileExists reports whether path names a regular, non-empty file --
// the uniform success predicate every stage ultimately checks.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Size() > 0
}
