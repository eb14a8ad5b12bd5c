// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 MIT Haystack Observatory

package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mithaystack/afectl/pkg/nmea"
)

// Time command error codes. Parameter failures sit at -11..-13 so they
// never collide with the -1 checksum code.
const (
	errTimeChecksum   = -1
	errTimeUnknown    = -2
	errTimeParamShift = -10
	errTimeClockSet   = -20
)

// handleTime covers the $PMITT family:
//
//	$PMITTSG      select GNSS source, NMEA epoch, arm acquisition
//	$PMITTEN      same action, distinct command code
//	$PMITTSE      select external source, epoch not yet defined
//	$PMITTEP,<ts> external epoch at next PPS edge
//	$PMITTEI,<ts> external epoch, effective immediately
//	$PMITTP?      query source and epoch
func (r *Router) handleTime(raw string) string {
	body, err := nmea.Validate(raw)
	if err != nil {
		return errResp("XXX", errTimeChecksum)
	}

	switch slice(raw, 0, 8) {
	case "$PMITTSG", "$PMITTEN":
		code := "TEN"
		if strings.HasPrefix(raw, "$PMITTSG") {
			code = "TSG"
		}
		r.Time.UseGNSS()
		return okResp(code, "")

	case "$PMITTSE":
		// host has claimed the clock without defining when time is
		// valid, so any timestamp in the NMEA stream stays unused
		r.Time.UseExternal()
		return okResp("TSE", "")

	case "$PMITTEP", "$PMITTEI":
		code := "TEI"
		pps := false
		if strings.HasPrefix(raw, "$PMITTEP") {
			code = "TEP"
			pps = true
		}
		ts, perr := parseTimestamp(body)
		if perr != 0 {
			return errResp(code, perr+errTimeParamShift)
		}
		var setErr error
		if pps {
			setErr = r.Time.SetPPS(ts)
		} else {
			setErr = r.Time.SetImmediate(ts)
		}
		if setErr != nil {
			return errResp(code, errTimeClockSet)
		}
		return okResp(code, echoParams(body))

	case "$PMITTP?":
		return okResp("TP?", fmt.Sprintf("%d,%d", r.Time.Source(), r.Time.Epoch()))
	}

	return errResp(slice(raw, 5, 8), errTimeUnknown)
}

// parseTimestamp pulls the Unix timestamp out of a TEP/TEI body. Errors
// are the domain codes before shifting: -1 missing, -2 not an integer,
// -3 negative.
func parseTimestamp(body string) (int64, int) {
	fields := strings.Split(body, ",")
	if len(fields) < 2 {
		return 0, -1
	}
	ts, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, -2
	}
	if ts < 0 {
		return 0, -3
	}
	return ts, 0
}
