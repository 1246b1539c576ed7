// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package orderfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sample = `[DEFAULT]
julianday = 123
year = 2024
sortie = a
project_code = ABC
projection = UTM
masking = ab
submitted = false
confirmed = true
eq_ndvi = (band050 - band040) / (band050 + band040)

[f123]
process = true
band_range = 1-50
eq_ndvi = true

[f124]
process = false
`

func writeSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "order.cfg")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	return path
}

func TestLoadAndGet(t *testing.T) {
	o, err := Load(writeSample(t))
	require.NoError(t, err)

	v, ok := o.GetDefault("project_code")
	require.True(t, ok)
	require.Equal(t, "ABC", v)

	require.True(t, o.GetBool("DEFAULT", "confirmed"))
	require.False(t, o.GetBool("DEFAULT", "submitted"))
}

func TestLinesAndSectionOverride(t *testing.T) {
	o, err := Load(writeSample(t))
	require.NoError(t, err)

	require.ElementsMatch(t, []string{"f123", "f124"}, o.Lines())
	require.True(t, o.GetBool("f123", "process"))
	require.False(t, o.GetBool("f124", "process"))

	// f124 has no "band_range" of its own, but DEFAULT doesn't define
	// it either -- falls through to not-found.
	_, ok := o.Get("f124", "band_range")
	require.False(t, ok)

	v, ok := o.Get("f123", "band_range")
	require.True(t, ok)
	require.Equal(t, "1-50", v)
}

func TestEquationNames(t *testing.T) {
	o, err := Load(writeSample(t))
	require.NoError(t, err)

	require.Equal(t, []string{"ndvi"}, o.EquationNames("f123"))
	eq, ok := o.GetDefault("eq_ndvi")
	require.True(t, ok)
	require.Equal(t, "(band050 - band040) / (band050 + band040)", eq)
}

func TestSetAndSaveRoundTrip(t *testing.T) {
	path := writeSample(t)
	o, err := Load(path)
	require.NoError(t, err)

	o.SetDefault("submitted", "true")
	out := filepath.Join(t.TempDir(), "roundtrip.cfg")
	require.NoError(t, o.Save(out))

	o2, err := Load(out)
	require.NoError(t, err)
	require.True(t, o2.GetBool("DEFAULT", "submitted"))
	require.True(t, o2.GetBool("f123", "process"))
}
