// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/btcsuite/nostrbridge/gate"
)

const (
	// maxSummaryLen is the maximum length in characters of an error
	// summary sent back to the wallet.
	maxSummaryLen = 120

	// msgUnavailable is reported while the backend is timing out or
	// cooling down.
	msgUnavailable = "backend unavailable"
)

// Summarize turns an error returned by Lookup or BroadcastTx into a short
// message suitable for the wallet. Internal detail beyond the first line of
// the backend's own message is never exposed.
func Summarize(err error) string {
	var backendErr *gate.BackendError

	switch {
	case err == nil:
		return ""

	case errors.Is(err, gate.ErrCooldownActive),
		errors.Is(err, gate.ErrTimeout):

		return msgUnavailable

	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):

		return "request canceled"

	case errors.As(err, &backendErr):
		return truncate("backend error: " + backendErr.Err.Error())

	default:
		return truncate(err.Error())
	}
}

// truncate cuts s to maxSummaryLen characters, keeping only its first line.
func truncate(s string) string {
	for i, r := range s {
		if r == '\n' || r == '\r' {
			s = s[:i]
			break
		}
	}

	if utf8.RuneCountInString(s) <= maxSummaryLen {
		return s
	}

	runes := []rune(s)

	return string(runes[:maxSummaryLen-3]) + "..."
}
