// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package runtimeenv provides the small amount of process plumbing every
// SCOPS binary needs on startup: loading a .env file of configuration
// overrides, dropping privileges after binding a listener, and talking
// to systemd's readiness protocol.
package runtimeenv

import (
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
)

// LoadEnv reads a .env file and sets its key=value pairs into the
// process environment, one time, before internal/scopsconfig applies its
// own environment overlay. A missing file is not an error.
func LoadEnv(file string) error {
	if _, err := os.Stat(file); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	vars, err := godotenv.Read(file)
	if err != nil {
		return fmt.Errorf("runtimeenv: reading %s: %w", file, err)
	}

	for key, val := range vars {
		if err := os.Setenv(key, val); err != nil {
			return fmt.Errorf("runtimeenv: setting %s: %w", key, err)
		}
	}

	return nil
}

// DropPrivileges changes the process's user and group to those named.
// The go runtime takes care of all threads (not only the calling one)
// executing the underlying syscall.
func DropPrivileges(username string, group string) error {
	if group != "" {
		g, err := user.LookupGroup(group)
		if err != nil {
			return err
		}

		gid, _ := strconv.Atoi(g.Gid)
		if err := syscall.Setgid(gid); err != nil {
			return err
		}
	}

	if username != "" {
		u, err := user.Lookup(username)
		if err != nil {
			return err
		}

		uid, _ := strconv.Atoi(u.Uid)
		if err := syscall.Setuid(uid); err != nil {
			return err
		}
	}

	return nil
}

// SystemdNotify informs systemd of a readiness/status change, if the
// process was started by systemd.
// https://www.freedesktop.org/software/systemd/man/sd_notify.html
func SystemdNotify(ready bool, status string) {
	if os.Getenv("NOTIFY_SOCKET") == "" {
		return
	}

	args := []string{fmt.Sprintf("--pid=%d", os.Getpid())}
	if ready {
		args = append(args, "--ready")
	}

	if status != "" {
		args = append(args, fmt.Sprintf("--status=%s", status))
	}

	cmd := exec.Command("systemd-notify", args...)
	cmd.Run() // errors ignored on purpose, there is not much to do anyways.
}
