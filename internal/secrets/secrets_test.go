// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package secrets

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsEmptyStore(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "secrets.json"))
	require.NoError(t, err)
	require.False(t, s.Verify("admin", "anything"))
}

func TestSetPasswordThenVerify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	s, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, s.SetPassword("admin", "hunter2"))
	require.True(t, s.Verify("admin", "hunter2"))
	require.False(t, s.Verify("admin", "wrong"))

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.True(t, reloaded.Verify("admin", "hunter2"))
}

func TestDeleteUserRemovesAccess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	s, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, s.SetPassword("admin", "hunter2"))
	require.NoError(t, s.DeleteUser("admin"))
	require.False(t, s.Verify("admin", "hunter2"))
}
