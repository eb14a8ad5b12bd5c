// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 MIT Haystack Observatory

package command

import (
	"strconv"
	"strings"

	"github.com/mithaystack/afectl/pkg/maxio"
	"github.com/mithaystack/afectl/pkg/nmea"
)

// Port expander command error codes
const (
	errMaxChecksum   = -10
	errMaxTooFew     = -1
	errMaxStartInt   = -2
	errMaxStartRange = -3
	errMaxWrite      = -20
	errMaxVector     = -30
)

// handleMax covers the $PMITM/$PMITX family. The vector is the four
// characters after the shared prefix:
//
//	$PMITMAX,<start>,<bit>[,<bit>...] set misc expander bits
//	$PMITMA?                          query misc shadow state
//	$PMITXT<n>,... / $PMITXT<n>?      TX chain chip n (1..2)
//	$PMITXR<n>,... / $PMITXR<n>?      RX chain chip n (1..4)
//
// Bits are 1, 0, or x for don't-care. Set responses echo the parameters;
// queries return the chip's shadow state as comma separated bits.
func (r *Router) handleMax(raw string) string {
	vector := slice(raw, 5, 9)

	// the vector cannot be trusted on a corrupt sentence, so the
	// response carries the domain's fixed code
	body, err := nmea.Validate(raw)
	if err != nil {
		return errResp("MX", errMaxChecksum)
	}

	switch vector {
	case "MAX,":
		return r.setExpander("MAX", r.Bank.Misc, 1, body)
	case "MA?*":
		return r.queryExpander("MA?", r.Bank.Misc, 1)
	case "XT1,", "XT2,":
		chip := int(vector[2] - '0')
		return r.setExpander(vector[:3], r.Bank.TX, chip, body)
	case "XT1?", "XT2?":
		chip := int(vector[2] - '0')
		return r.queryExpander(vector[:3], r.Bank.TX, chip)
	case "XR1,", "XR2,", "XR3,", "XR4,":
		chip := int(vector[2] - '0')
		return r.setExpander(vector[:3], r.Bank.RX, chip, body)
	case "XR1?", "XR2?", "XR3?", "XR4?":
		chip := int(vector[2] - '0')
		return r.queryExpander(vector[:3], r.Bank.RX, chip)
	}

	return errResp(vector, errMaxVector)
}

func (r *Router) setExpander(code string, chain *maxio.Chain, chip int, body string) string {
	start, bits, perr := parseExpanderParams(body)
	if perr != 0 {
		return errResp(code, perr)
	}
	if err := chain.SetBits(chip, start, bits); err != nil {
		return errResp(code, errMaxWrite)
	}
	return okResp(code, echoParams(body))
}

func (r *Router) queryExpander(code string, chain *maxio.Chain, chip int) string {
	state, err := chain.Shadow(chip)
	if err != nil {
		return errResp(code, errMaxVector)
	}
	return okResp(code, maxio.ShadowString(state))
}

// parseExpanderParams validates <start>,<bit>[,<bit>...]. Everything is
// checked before anything touches the bus.
func parseExpanderParams(body string) (start int, bits []maxio.Bit, errCode int) {
	fields := strings.Split(body, ",")
	if len(fields) < 3 {
		return 0, nil, errMaxTooFew
	}

	start, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, nil, errMaxStartInt
	}
	if start < 0 || start > maxio.PortCount-1 {
		return 0, nil, errMaxStartRange
	}
	if start+len(fields)-2 > maxio.PortCount {
		return 0, nil, errMaxStartRange
	}

	bits = make([]maxio.Bit, 0, len(fields)-2)
	for _, f := range fields[2:] {
		b, err := maxio.ParseBit(f)
		if err != nil {
			return 0, nil, errMaxTooFew
		}
		bits = append(bits, b)
	}
	return start, bits, 0
}
