// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command scops-bandmath evaluates a single band-math equation against
// a BIL raster from the command line, the standalone entry point for
// the equation preprocessor (the submitter calls internal/bandmath
// directly; this binary exists for operators testing an equation
// outside of an order).
package main

import (
	"flag"

	"github.com/nerc-arf/scops/internal/bandmath"
	"github.com/nerc-arf/scops/pkg/log"
)

func main() {
	var flagBin, flagHdr, flagOutDir, flagEquation, flagName, flagMaskBin string
	flag.StringVar(&flagBin, "bin", "", "Path to the source .bil raster (required)")
	flag.StringVar(&flagHdr, "hdr", "", "Path to the source .bil.hdr header; defaults to <bin>.hdr")
	flag.StringVar(&flagOutDir, "out", "", "Directory to write the result raster into (required)")
	flag.StringVar(&flagEquation, "equation", "", "Band-math equation text, e.g. \"band003 / band002\" (required)")
	flag.StringVar(&flagName, "name", "", "Short name identifying the equation, used in the output filename (required)")
	flag.StringVar(&flagMaskBin, "mask", "", "Path to the source's companion mask .bil, to combine into a mask for the result")
	flag.Parse()

	if flagBin == "" || flagOutDir == "" || flagEquation == "" || flagName == "" {
		log.Fatal("scops-bandmath: -bin, -out, -equation and -name are all required")
	}
	if flagHdr == "" {
		flagHdr = flagBin + ".hdr"
	}

	result, err := bandmath.Evaluate(flagBin, flagHdr, flagOutDir, flagEquation, flagName, flagMaskBin)
	if err != nil {
		log.Fatalf("scops-bandmath: %s", err.Error())
	}

	log.Printf("wrote %s (%d layer(s))", result.OutputPath, result.Layers)
}
