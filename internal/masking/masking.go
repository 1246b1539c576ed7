// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package masking translates a line's masking policy string into the
// flag and CCD-letter arguments passed to aplmask.
package masking

import "sort"

var ccdLetter = map[byte]string{
	'a': "A", 'b': "B", 'c': "C", 'd': "D", 'e': "E", 'f': "F",
}

var bitFlag = map[byte]string{
	'u': "1", 'o': "2", 'm': "8", 'n': "16", 'r': "32", 'q': "64",
}

// Policy is the resolved result of a masking policy string: the
// numeric -flags arguments and the CCD letters for -onlymaskmethods.
// The flag list is modeled as a set and always serialized sorted so
// argv construction is deterministic regardless of input order.
type Policy struct {
	None  bool
	All   bool
	Flags []string
	CCD   []string
}

// Resolve parses a masking policy string ("none", "all", or a
// combination of letters a-f/u/o/m/n/r/q) into a Policy.
func Resolve(maskString string) Policy {
	switch maskString {
	case "none":
		return Policy{None: true}
	case "all":
		return Policy{All: true}
	}

	flagSet := map[string]struct{}{}
	var ccd []string

	for i := 0; i < len(maskString); i++ {
		c := maskString[i]
		if letter, ok := ccdLetter[c]; ok {
			flagSet["4"] = struct{}{}
			ccd = append(ccd, letter)
			continue
		}
		if bit, ok := bitFlag[c]; ok {
			flagSet[bit] = struct{}{}
		}
	}

	flags := make([]string, 0, len(flagSet))
	for f := range flagSet {
		flags = append(flags, f)
	}
	sort.Strings(flags)

	return Policy{Flags: flags, CCD: ccd}
}
