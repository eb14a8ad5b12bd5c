// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 MIT Haystack Observatory

package nmea

// ErrorKind classifies sentence validation failures
type ErrorKind int

const (
	// FramingMismatch means the counts of $ and * disagree
	FramingMismatch ErrorKind = iota
	// NotASentence means the first character is not $
	NotASentence
	// ChecksumNotHex means the characters after * do not parse as hex
	ChecksumNotHex
	// ChecksumMismatch means the declared checksum does not match the body
	ChecksumMismatch
)

// ValidationError reports why a raw sentence was rejected
type ValidationError struct {
	Kind    ErrorKind
	Message string
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}
