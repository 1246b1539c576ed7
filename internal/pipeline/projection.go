// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package pipeline

import (
	"fmt"
	"strings"
)

// Projection is the resolved outproj argument set for apltran,
// derived from an order's free-text "projection" field (spec section
// 4.6); the aplcorr argument vector does not use it.
type Projection struct {
	// Token names the projection in file/status names, e.g.
	// "utm_wgs84N_30" or "osng".
	Token string
	// OutprojArgs is the tail of apltran's -outproj argument vector.
	OutprojArgs []string
}

// ErrProjectionNotIdentified is raised for any projection string the
// driver doesn't recognize, surfaced as the fatal
// "ERROR - projection not identified" stage.
var ErrProjectionNotIdentified = fmt.Errorf("projection not identified")

// ResolveProjection parses an order's projection field. UTM fields
// look like "UTM zone 30N"; UKBNG needs no further parameters besides
// the configured separation file.
func ResolveProjection(projectionField, osngSeparationFile string) (Projection, error) {
	switch {
	case strings.Contains(projectionField, "UTM"):
		parts := strings.Fields(projectionField)
		if len(parts) < 3 {
			return Projection{}, ErrProjectionNotIdentified
		}
		zoneHemi := parts[2]
		if len(zoneHemi) < 2 {
			return Projection{}, ErrProjectionNotIdentified
		}
		hemisphere := zoneHemi[len(zoneHemi)-1:]
		zone := zoneHemi[:len(zoneHemi)-1]

		return Projection{
			Token:       fmt.Sprintf("utm_wgs84%s_%s", hemisphere, zone),
			OutprojArgs: []string{fmt.Sprintf("utm_wgs84%s", hemisphere), zone},
		}, nil

	case strings.Contains(projectionField, "UKBNG"):
		return Projection{
			Token:       "osng",
			OutprojArgs: []string{"osng", osngSeparationFile},
		}, nil

	default:
		return Projection{}, ErrProjectionNotIdentified
	}
}
