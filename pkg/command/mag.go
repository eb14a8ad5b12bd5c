// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 MIT Haystack Observatory

package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mithaystack/afectl/pkg/nmea"
	"github.com/mithaystack/afectl/pkg/rm3100"
)

// Magnetometer command error codes
const (
	errMagChecksum  = -10
	errMagTooFew    = -1
	errMagCCRInt    = -2
	errMagUpdrInt   = -3
	errMagCCRRange  = -5
	errMagUpdrRange = -6
	errMagInit      = -20
	errMagVector    = -30
)

// handleMag covers the $PMITMG family:
//
//	$PMITMGS,<ccr>,<updr> reconfigure cycle count and update rate
//	$PMITMG?              query both
func (r *Router) handleMag(raw string) string {
	vector := slice(raw, 7, 8)
	code := "MG" + vector

	body, err := nmea.Validate(raw)
	if err != nil {
		return errResp(code, errMagChecksum)
	}

	switch vector {
	case "S":
		ccr, updr, perr := parseMagParams(body)
		if perr != 0 {
			return errResp(code, perr)
		}
		if err := r.Mag.Configure(ccr, updr); err != nil {
			return errResp(code, errMagInit)
		}
		return okResp(code, echoParams(body))

	case "?":
		ccr, updr := r.Mag.Config()
		return okResp(code, fmt.Sprintf("%d,%d", ccr, updr))
	}

	return errResp(code, errMagVector)
}

func parseMagParams(body string) (ccr, updr, errCode int) {
	fields := strings.Split(body, ",")
	if len(fields) < 3 {
		return 0, 0, errMagTooFew
	}
	ccr, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, errMagCCRInt
	}
	updr, err = strconv.Atoi(fields[2])
	if err != nil {
		return 0, 0, errMagUpdrInt
	}
	if ccr < rm3100.CCRMin || ccr > rm3100.CCRMax {
		return 0, 0, errMagCCRRange
	}
	if updr < rm3100.UpdateRateMin || updr > rm3100.UpdateRateMax {
		return 0, 0, errMagUpdrRange
	}
	return ccr, updr, 0
}
