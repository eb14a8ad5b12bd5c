// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 MIT Haystack Observatory

// Package command routes host sentences to the instrument's command
// handlers: time sync, telemetry rates, magnetometer and IMU
// configuration, and the RF path expanders.
//
// Every recognized command produces exactly one response sentence. Success
// is $PMITSR,0,<code>,<payload>; failure is $PMITSR,-1,<code>,<errCode>.
// Each domain owns its own small negative error-code range so a failure
// stays disambiguable by its command code. Parameters are validated in
// full before any device write, so a malformed command never leaves the
// hardware half-changed.
package command

import (
	"fmt"
	"strings"

	"github.com/mithaystack/afectl/pkg/ism330"
	"github.com/mithaystack/afectl/pkg/maxio"
	"github.com/mithaystack/afectl/pkg/nmea"
	"github.com/mithaystack/afectl/pkg/rm3100"
	"github.com/mithaystack/afectl/pkg/telemetry"
	"github.com/mithaystack/afectl/pkg/timesync"
)

// errUnknownCommand is the distinguished code for a $PMIT prefix with no
// handler.
const errUnknownCommand = -99

// Router owns the command surface over the instrument's subsystems.
type Router struct {
	Time  *timesync.State
	Rates *telemetry.Scheduler
	Mag   *rm3100.Device
	IMU   *ism330.Device
	Bank  *maxio.Bank
}

// Handle dispatches one raw sentence. The returned response has no line
// terminator. handled is false for input outside the $PMIT vocabulary,
// which gets no response at all.
func (r *Router) Handle(raw string) (resp string, handled bool) {
	switch {
	case strings.HasPrefix(raw, "$PMITT"):
		return r.handleTime(raw), true
	case strings.HasPrefix(raw, "$PMITR"):
		return r.handleRate(raw), true
	case strings.HasPrefix(raw, "$PMITMG"):
		return r.handleMag(raw), true
	case strings.HasPrefix(raw, "$PMITIM"):
		return r.handleIMU(raw), true
	case strings.HasPrefix(raw, "$PMITM"), strings.HasPrefix(raw, "$PMITX"):
		return r.handleMax(raw), true
	case strings.HasPrefix(raw, "$PMIT"):
		return errResp(slice(raw, 5, 8), errUnknownCommand), true
	}
	return "", false
}

// okResp wraps a success. An empty payload becomes "0" so the response
// field count is fixed.
func okResp(code, payload string) string {
	if payload == "" {
		payload = "0"
	}
	return nmea.Build(fmt.Sprintf("PMITSR,0,%s,%s", code, payload))
}

func errResp(code string, errCode int) string {
	return nmea.Build(fmt.Sprintf("PMITSR,-1,%s,%d", code, errCode))
}

// slice is a bounds-safe raw[from:to] for command-code extraction.
func slice(raw string, from, to int) string {
	if from > len(raw) {
		return ""
	}
	if to > len(raw) {
		to = len(raw)
	}
	return raw[from:to]
}

// echoParams returns everything after the command word, the convention
// for echoing a set-command's parameters back in the response.
func echoParams(body string) string {
	idx := strings.Index(body, ",")
	if idx < 0 {
		return ""
	}
	return body[idx+1:]
}
