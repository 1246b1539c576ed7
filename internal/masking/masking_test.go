// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package masking

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveNone(t *testing.T) {
	p := Resolve("none")
	require.True(t, p.None)
	require.False(t, p.All)
}

func TestResolveAll(t *testing.T) {
	p := Resolve("all")
	require.True(t, p.All)
	require.Empty(t, p.Flags)
	require.Empty(t, p.CCD)
}

func TestResolveLetters(t *testing.T) {
	p := Resolve("ab")
	require.Equal(t, []string{"4"}, p.Flags)
	require.Equal(t, []string{"A", "B"}, p.CCD)
}

func TestResolveMixed(t *testing.T) {
	p := Resolve("auo")
	require.Equal(t, []string{"1", "2", "4"}, p.Flags)
	require.Equal(t, []string{"A"}, p.CCD)
}
