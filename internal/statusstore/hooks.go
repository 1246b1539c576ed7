// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package statusstore

import (
	"context"
	"time"

	"github.com/nerc-arf/scops/pkg/log"
)

type timestampKey struct{}

// queryLogHooks satisfies sqlhooks.Hooks, logging every statement and
// its elapsed time at debug level.
type queryLogHooks struct{}

func (h *queryLogHooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	log.Debugf("statusstore: query %s %q", query, args)
	return context.WithValue(ctx, timestampKey{}, time.Now()), nil
}

func (h *queryLogHooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if begin, ok := ctx.Value(timestampKey{}).(time.Time); ok {
		log.Debugf("statusstore: took %s", time.Since(begin))
	}
	return ctx, nil
}
