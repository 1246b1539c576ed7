// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package plugin

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterAndLookup(t *testing.T) {
	Register("test-noop", func(outputFolder, hsiFilename string) (string, error) {
		return hsiFilename, nil
	})

	fn, ok := Lookup("test-noop")
	require.True(t, ok)
	out, err := fn("/tmp/out", "/tmp/in.bil")
	require.NoError(t, err)
	require.Equal(t, "/tmp/in.bil", out)

	_, ok = Lookup("does-not-exist")
	require.False(t, ok)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	Register("test-dup", func(outputFolder, hsiFilename string) (string, error) { return "", nil })
	require.Panics(t, func() {
		Register("test-dup", func(outputFolder, hsiFilename string) (string, error) { return "", nil })
	})
}
