// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 MIT Haystack Observatory

package nmea

import "fmt"

// MaxSentenceSize bounds a single sentence including framing. GNSS receivers
// cap sentences at 82 characters; commands are shorter, so this leaves room.
const MaxSentenceSize = 120

// Decoder states (internal)
const (
	stateIdle = iota
	stateBody
	stateCheck1
	stateCheck2
)

// Decoder assembles sentences from a raw byte stream. A stray $ restarts the
// sentence in progress; bytes outside a sentence are discarded.
type Decoder struct {
	state  int
	buffer []byte
}

// NewDecoder creates a new sentence decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state:  stateIdle,
		buffer: make([]byte, 0, MaxSentenceSize),
	}
}

// Reset resets the decoder state to idle
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.buffer = d.buffer[:0]
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed raw sentence "$<body>*<CC>" once the second checksum
// character arrives, or "" while the sentence is incomplete. The returned
// sentence is unvalidated; callers run Validate before trusting it.
func (d *Decoder) DecodeByte(b byte) (string, error) {
	if b == '$' {
		// false start or new sentence, either way start over
		d.buffer = append(d.buffer[:0], b)
		d.state = stateBody
		return "", nil
	}

	switch d.state {
	case stateIdle:
		// waiting for $
		return "", nil

	case stateBody:
		if b == '\r' || b == '\n' {
			d.Reset()
			return "", fmt.Errorf("sentence truncated before checksum")
		}
		if len(d.buffer) >= MaxSentenceSize {
			d.Reset()
			return "", fmt.Errorf("sentence exceeds %d bytes", MaxSentenceSize)
		}
		d.buffer = append(d.buffer, b)
		if b == '*' {
			d.state = stateCheck1
		}
		return "", nil

	case stateCheck1:
		d.buffer = append(d.buffer, b)
		d.state = stateCheck2
		return "", nil

	case stateCheck2:
		d.buffer = append(d.buffer, b)
		sentence := string(d.buffer)
		d.Reset()
		return sentence, nil

	default:
		d.Reset()
		return "", fmt.Errorf("invalid state: %d", d.state)
	}
}
