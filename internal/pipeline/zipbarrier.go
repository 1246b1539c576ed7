// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ZipBarrierPoll is the polling interval for the cross-line zip
// barrier, throttled to avoid pegging a CPU core across many
// concurrent lines while still preserving the at-most-one-zipping
// invariant.
const ZipBarrierPoll = 1 * time.Second

// AwaitZipBarrier blocks until no status file under statusDir
// contains the substring "zipping", enforcing at most one line
// zipping concurrently per workspace. It returns early if ctx is
// cancelled.
func AwaitZipBarrier(ctx context.Context, statusDir string) error {
	ticker := time.NewTicker(ZipBarrierPoll)
	defer ticker.Stop()

	for {
		busy, err := anyStatusFileZipping(statusDir)
		if err != nil {
			return err
		}
		if !busy {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func anyStatusFileZipping(statusDir string) (bool, error) {
	entries, err := os.ReadDir(statusDir)
	if err != nil {
		return false, err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(statusDir, entry.Name()))
		if err != nil {
			continue
		}
		if strings.Contains(string(content), "zipping") {
			return true, nil
		}
	}

	return false, nil
}
