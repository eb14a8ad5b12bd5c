// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 MIT Haystack Observatory

// Package nmea implements the checksum-framed sentence format carried on the
// AFE controller's serial links.
//
// A sentence is "$<body>*<CC>" where CC is the XOR fold of the ASCII codes of
// the body characters, rendered as two uppercase hex digits. The framing
// characters $ and * are excluded from the fold. The same framing carries
// GNSS receiver output, controller commands, and telemetry.
package nmea

import (
	"fmt"
	"strconv"
	"strings"
)

// Checksum computes the XOR fold of the ASCII codes of body.
func Checksum(body string) byte {
	var cc byte
	for i := 0; i < len(body); i++ {
		cc ^= body[i]
	}
	return cc
}

// Build frames body as a complete sentence with its checksum appended.
// The checksum is always two hex digits, zero padded.
func Build(body string) string {
	return fmt.Sprintf("$%s*%02X", body, Checksum(body))
}

// Validate checks the framing and checksum of a raw sentence and returns the
// body between $ and *. A trailing CR/LF is tolerated.
func Validate(raw string) (string, error) {
	raw = strings.TrimRight(raw, "\r\n")

	// input with no framing characters at all is not a sentence, not a
	// framing mismatch
	if strings.Count(raw, "$") != strings.Count(raw, "*") {
		return "", &ValidationError{
			Kind:    FramingMismatch,
			Message: fmt.Sprintf("unbalanced $ and * in %q", raw),
		}
	}

	if raw == "" || raw[0] != '$' {
		return "", &ValidationError{
			Kind:    NotASentence,
			Message: fmt.Sprintf("sentence does not start with $: %q", raw),
		}
	}

	star := strings.IndexByte(raw, '*')
	body := raw[1:star]
	declared := raw[star+1:]

	val, err := strconv.ParseUint(declared, 16, 8)
	if err != nil {
		return "", &ValidationError{
			Kind:    ChecksumNotHex,
			Message: fmt.Sprintf("checksum field %q is not hex", declared),
		}
	}

	if byte(val) != Checksum(body) {
		return "", &ValidationError{
			Kind:    ChecksumMismatch,
			Message: fmt.Sprintf("checksum mismatch: declared 0x%02X, computed 0x%02X", val, Checksum(body)),
		}
	}

	return body, nil
}

// Fields splits a sentence body at commas. The first field is the talker
// prefix, the rest are parameters.
func Fields(body string) []string {
	return strings.Split(body, ",")
}

// Prefix returns the body up to the first comma.
func Prefix(body string) string {
	if i := strings.IndexByte(body, ','); i >= 0 {
		return body[:i]
	}
	return body
}
