// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteStatusFile writes the single rendezvous line "<line> = <stage>"
// into <statusDir>/<line>_status.txt.
func WriteStatusFile(statusDir, line, stage string) error {
	path := filepath.Join(statusDir, line+"_status.txt")
	content := fmt.Sprintf("%s = %s", line, stage)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("pipeline: writing status file %s: %w", path, err)
	}
	return nil
}

// AllStatusFilesDone reports whether every status file in statusDir
// contains "complete" or "not processing", the aggregate-completion
// check across a whole order.
func AllStatusFilesDone(statusDir string) (bool, error) {
	entries, err := os.ReadDir(statusDir)
	if err != nil {
		return false, fmt.Errorf("pipeline: reading status dir %s: %w", statusDir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(statusDir, entry.Name()))
		if err != nil {
			return false, err
		}
		s := string(content)
		if !strings.Contains(s, "complete") && !strings.Contains(s, "not processing") {
			return false, nil
		}
	}

	return true, nil
}
