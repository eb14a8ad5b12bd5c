// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 MIT Haystack Observatory

package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mithaystack/afectl/pkg/nmea"
	"github.com/mithaystack/afectl/pkg/telemetry"
)

// Rate command error codes
const (
	errRateChecksum = -1
	errRateParse    = -1
	errRateRange    = -2
	errRateUnknown  = -10
)

// handleRate covers the $PMITR family:
//
//	$PMITRT,<n> housekeeping rate
//	$PMITRM,<n> magnetometer rate
//	$PMITRI,<n> IMU rate
//	$PMITRA,<n> all three rates
//	$PMITR?     query all three
//
// Setting a rate restarts that channel's timer; RA restarts all of them.
func (r *Router) handleRate(raw string) string {
	body, err := nmea.Validate(raw)
	if err != nil {
		return errResp("RX", errRateChecksum)
	}

	switch slice(raw, 6, 8) {
	case "T,":
		return r.setRate("RT", telemetry.ChannelHK, body)
	case "M,":
		return r.setRate("RM", telemetry.ChannelMag, body)
	case "I,":
		return r.setRate("RI", telemetry.ChannelIMU, body)
	case "A,":
		rate, perr := parseRate(body)
		if perr != 0 {
			return errResp("RA", perr)
		}
		if err := r.Rates.SetAll(rate); err != nil {
			return errResp("RA", errRateRange)
		}
		return okResp("RA", echoParams(body))
	case "?*":
		payload := fmt.Sprintf("%d,%d,%d",
			r.Rates.Rate(telemetry.ChannelHK),
			r.Rates.Rate(telemetry.ChannelMag),
			r.Rates.Rate(telemetry.ChannelIMU))
		return okResp("R?", payload)
	}

	return errResp(slice(raw, 5, 7), errRateUnknown)
}

func (r *Router) setRate(code string, ch telemetry.Channel, body string) string {
	rate, perr := parseRate(body)
	if perr != 0 {
		return errResp(code, perr)
	}
	if err := r.Rates.SetRate(ch, rate); err != nil {
		return errResp(code, errRateRange)
	}
	return okResp(code, "")
}

// parseRate extracts and range-checks the seconds parameter.
func parseRate(body string) (int, int) {
	fields := strings.Split(body, ",")
	if len(fields) < 2 {
		return 0, errRateParse
	}
	rate, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, errRateParse
	}
	if rate < telemetry.RateMin || rate > telemetry.RateMax {
		return 0, errRateRange
	}
	return rate, 0
}
