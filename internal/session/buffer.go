// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"strings"

	"golang.org/x/time/rate"
)

// partialNotifyRate caps partial notifications per second. Token chunks
// arrive much faster than a UI repaints, so flushes are coalesced.
const partialNotifyRate rate.Limit = 30

// partialBuffer accumulates streamed tokens and rate-limits partial
// notification flushes. It is used from a single turn goroutine.
type partialBuffer struct {
	builder strings.Builder
	limiter *rate.Limiter
}

func newPartialBuffer(perSecond rate.Limit) *partialBuffer {
	return &partialBuffer{limiter: rate.NewLimiter(perSecond, 1)}
}

// Append adds a token chunk. It returns the accumulated text and true when
// a partial notification is due; between flushes it returns "" and false.
func (b *partialBuffer) Append(chunk string) (string, bool) {
	b.builder.WriteString(chunk)
	if b.limiter.Allow() {
		return b.builder.String(), true
	}
	return "", false
}

// Text returns the full accumulated text.
func (b *partialBuffer) Text() string {
	return b.builder.String()
}

// Len returns the accumulated length in bytes.
func (b *partialBuffer) Len() int {
	return b.builder.Len()
}
