// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 MIT Haystack Observatory

package afe

import (
	"strings"

	"github.com/mithaystack/afectl/pkg/nmea"
)

// relayGNSS drains whatever the receiver has produced, validates each
// sentence, and forwards the valid ones to the host bracketed by
// $PGPS/$PGPN marker sentences so the host can tell relayed traffic from
// the controller's own output. The receiver occasionally emits binary
// protocol or corrupts a checksum; those bytes are dropped here and never
// reach the host or the time logic. Validated RMC fixes go to the time
// state machine. Decoder state persists across frames, so a sentence
// split over two reads still assembles.
func (c *Controller) relayGNSS() {
	buf := make([]byte, readChunk)
	var pending []byte

	for len(pending) < maxRelayBytes {
		n, err := c.gnss.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
		}
		if n == 0 || err != nil {
			break
		}
	}
	if len(pending) == 0 {
		return
	}

	var out []byte
	for _, b := range pending {
		raw, err := c.dec.DecodeByte(b)
		if err != nil || raw == "" {
			continue
		}
		body, err := nmea.Validate(raw)
		if err != nil {
			continue
		}
		out = append(out, raw...)
		out = append(out, '\r', '\n')
		if strings.HasPrefix(body, "GNRMC") {
			_, _ = c.Time.ConsumeRMC(nmea.Fields(body))
		}
	}
	if len(out) == 0 {
		return
	}

	_, _ = c.host.Write(c.gpsStart)
	_, _ = c.host.Write(out)
	_, _ = c.host.Write(c.gpsEnd)
}
