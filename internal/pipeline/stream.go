// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package pipeline

import (
	"io"
	"time"

	"github.com/lywaf/lywaf/internal/throttle"
)

// throttledChunk bounds a single read/write round against AllocToken: not
// a reservation, just a cap on how much of the buffer may go out before
// the next allocation check.
const throttledChunk = 32 * 1024

// copyThrottled streams body to w, optionally shaping egress bytes through
// t. A nil t streams unshaped.
func copyThrottled(w io.Writer, body io.Reader, t *throttle.Throttle, clientKey string) {
	if t == nil {
		_, _ = io.Copy(w, body)
		return
	}

	buf := make([]byte, throttledChunk)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			writeThrottled(w, t, clientKey, buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// writeThrottled writes chunk to w in AllocToken-sized slices, pausing for
// the throttle's retry backoff whenever nothing is granted.
func writeThrottled(w io.Writer, t *throttle.Throttle, clientKey string, chunk []byte) {
	for len(chunk) > 0 {
		granted := t.AllocToken(clientKey, int64(len(chunk)))
		if granted <= 0 {
			time.Sleep(t.RetryBackoff())
			continue
		}
		if granted > int64(len(chunk)) {
			granted = int64(len(chunk))
		}
		_, _ = w.Write(chunk[:granted])
		chunk = chunk[granted:]
	}
}
