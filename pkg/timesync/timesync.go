// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 MIT Haystack Observatory

// Package timesync tracks where the instrument's time comes from: the GNSS
// receiver's NMEA stream, or a host-supplied epoch aligned to a PPS edge or
// applied immediately.
package timesync

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Source is where time originates.
type Source int

const (
	SourceNotSet   Source = 0
	SourceGNSS     Source = 1
	SourceExternal Source = 2
)

// Epoch is how the moment of validity is defined.
type Epoch int

const (
	EpochNotSet    Epoch = 0
	EpochPPS       Epoch = 1
	EpochNMEA      Epoch = 2
	EpochImmediate Epoch = 3
)

// nmeaSetInterval rate-limits clock sets from the NMEA stream once the
// clock has been set at all.
const nmeaSetInterval = 60 * time.Second

// Clock abstracts the settable timebase.
type Clock interface {
	Now() time.Time
	Set(t time.Time) error
}

// OffsetClock implements Clock as an offset against the host's monotonic
// time. Setting it never touches the operating system clock.
type OffsetClock struct {
	mu     sync.Mutex
	offset time.Duration
}

// Now implements Clock.
func (c *OffsetClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().Add(c.offset)
}

// Set implements Clock.
func (c *OffsetClock) Set(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = time.Until(t)
	return nil
}

// State is the time-sync state machine. The zero source/epoch defaults are
// GNSS time from the NMEA stream, armed to set the clock as soon as a
// valid fix arrives.
type State struct {
	clock     Clock
	source    Source
	epoch     Epoch
	nmeaArmed bool
	everSet   bool
	lastSet   time.Time
}

// New creates a State on clock with the GNSS/NMEA defaults.
func New(clock Clock) *State {
	return &State{
		clock:     clock,
		source:    SourceGNSS,
		epoch:     EpochNMEA,
		nmeaArmed: true,
	}
}

// Source returns the active time source.
func (s *State) Source() Source { return s.source }

// Epoch returns the active epoch definition.
func (s *State) Epoch() Epoch { return s.epoch }

// Armed reports whether NMEA fixes are allowed to set the clock.
func (s *State) Armed() bool { return s.nmeaArmed }

// Now returns the current instrument time.
func (s *State) Now() time.Time { return s.clock.Now() }

// UseGNSS selects GNSS as the source with the NMEA epoch and arms
// acquisition from the stream.
func (s *State) UseGNSS() {
	s.source = SourceGNSS
	s.epoch = EpochNMEA
	s.nmeaArmed = true
}

// UseExternal selects an external source with no epoch defined yet. A
// timestamp may be sitting in the NMEA data but it is not applied: the
// host has claimed the clock without saying when time is valid.
func (s *State) UseExternal() {
	s.source = SourceExternal
	s.epoch = EpochNotSet
}

// SetPPS takes a host-supplied Unix timestamp valid at the next PPS edge.
// Success stops further NMEA acquisition.
func (s *State) SetPPS(ts int64) error {
	s.source = SourceExternal
	s.epoch = EpochPPS
	return s.setFromHost(ts)
}

// SetImmediate takes a host-supplied Unix timestamp valid now. Success
// stops further NMEA acquisition.
func (s *State) SetImmediate(ts int64) error {
	s.source = SourceExternal
	s.epoch = EpochImmediate
	return s.setFromHost(ts)
}

func (s *State) setFromHost(ts int64) error {
	if err := s.clock.Set(time.Unix(ts, 0).UTC()); err != nil {
		return fmt.Errorf("set clock: %w", err)
	}
	s.everSet = true
	s.lastSet = time.Now()
	s.nmeaArmed = false
	return nil
}

// ConsumeRMC feeds one RMC sentence's fields (split on commas, checksum
// already validated) into the state machine. The clock is set from the
// fix when acquisition is armed and either the clock has never been set
// or the rate-limit interval has passed. Returns whether the clock was
// set.
func (s *State) ConsumeRMC(fields []string) (bool, error) {
	if !s.nmeaArmed {
		return false, nil
	}
	if s.everSet && time.Since(s.lastSet) < nmeaSetInterval {
		return false, nil
	}

	t, err := parseRMCTime(fields)
	if err != nil {
		return false, err
	}
	if err := s.clock.Set(t); err != nil {
		return false, fmt.Errorf("set clock: %w", err)
	}
	s.everSet = true
	s.lastSet = time.Now()
	return true, nil
}

// parseRMCTime pulls the time of fix (hhmmss.ss) and date (ddmmyy) out of
// an RMC field list.
func parseRMCTime(fields []string) (time.Time, error) {
	if len(fields) < 10 {
		return time.Time{}, fmt.Errorf("rmc: %d fields, want at least 10", len(fields))
	}
	tod, date := fields[1], fields[9]
	if len(tod) < 6 || len(date) < 6 {
		return time.Time{}, fmt.Errorf("rmc: short time %q or date %q", tod, date)
	}

	hh, err1 := strconv.Atoi(tod[0:2])
	mi, err2 := strconv.Atoi(tod[2:4])
	ss, err3 := strconv.Atoi(tod[4:6])
	dd, err4 := strconv.Atoi(date[0:2])
	mo, err5 := strconv.Atoi(date[2:4])
	yy, err6 := strconv.Atoi(date[4:6])
	for _, err := range []error{err1, err2, err3, err4, err5, err6} {
		if err != nil {
			return time.Time{}, fmt.Errorf("rmc: bad time %q / date %q", tod, date)
		}
	}

	return time.Date(2000+yy, time.Month(mo), dd, hh, mi, ss, 0, time.UTC), nil
}
