// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 MIT Haystack Observatory

// Package telemetry schedules and formats the instrument's periodic
// reports: housekeeping, magnetometer, and IMU sentences on independent
// per-channel timers.
package telemetry

import (
	"fmt"
	"time"

	"github.com/mithaystack/afectl/pkg/ism330"
	"github.com/mithaystack/afectl/pkg/nmea"
	"github.com/mithaystack/afectl/pkg/rm3100"
	"github.com/mithaystack/afectl/pkg/timesync"
)

// Channel identifies one telemetry stream.
type Channel int

const (
	ChannelHK Channel = iota
	ChannelMag
	ChannelIMU
	channelCount
)

// Rate limits in seconds between emissions. Zero turns a channel off.
const (
	RateMin     = 0
	RateMax     = 60
	DefaultRate = 1
)

// Scheduler tracks per-channel emission rates and the time each channel
// last fired. Channels are independent: firing one never disturbs the
// others' timers.
type Scheduler struct {
	rates [channelCount]int
	last  [channelCount]time.Time
	armed [channelCount]bool
}

// NewScheduler starts every channel at the default rate with no base
// time, so each fires on its first poll.
func NewScheduler() *Scheduler {
	s := &Scheduler{}
	for i := range s.rates {
		s.rates[i] = DefaultRate
	}
	return s
}

// Rate returns a channel's period in seconds.
func (s *Scheduler) Rate(ch Channel) int {
	return s.rates[ch]
}

// SetRate sets one channel's period and restarts its timer.
func (s *Scheduler) SetRate(ch Channel, rate int) error {
	if rate < RateMin || rate > RateMax {
		return fmt.Errorf("rate %d out of range %d..%d", rate, RateMin, RateMax)
	}
	s.rates[ch] = rate
	s.armed[ch] = false
	return nil
}

// SetAll sets every channel to the same period and restarts all timers.
func (s *Scheduler) SetAll(rate int) error {
	if rate < RateMin || rate > RateMax {
		return fmt.Errorf("rate %d out of range %d..%d", rate, RateMin, RateMax)
	}
	for ch := Channel(0); ch < channelCount; ch++ {
		s.rates[ch] = rate
		s.armed[ch] = false
	}
	return nil
}

// Fire reports whether a channel is due at now and, when it is, restarts
// that channel's timer.
func (s *Scheduler) Fire(ch Channel, now time.Time) bool {
	if s.rates[ch] <= 0 {
		return false
	}
	if s.armed[ch] && now.Sub(s.last[ch]) < time.Duration(s.rates[ch])*time.Second {
		return false
	}
	s.last[ch] = now
	s.armed[ch] = true
	return true
}

// Snapshot is the instrument state a housekeeping sentence reports.
type Snapshot struct {
	OCXOLocked   bool
	SPIOK        bool
	MagOK        bool
	IMUOK        bool
	SwitcherTemp float64
	MagTemp      float64
	IMUTemp      float64
	Active       bool
	Tilt         bool
	Source       timesync.Source
	Epoch        timesync.Epoch
}

func boolDigit(b bool) int {
	if b {
		return 1
	}
	return 0
}

// MagSentence builds a $PMITMAG report: timestamp then the field vector
// in microtesla.
func MagSentence(ts int64, s rm3100.Sample) string {
	return nmea.Build(fmt.Sprintf("PMITMAG,%d,%3.2f,%3.2f,%3.2f", ts, s.X, s.Y, s.Z))
}

// AccSentence builds a $PMITACC report in g.
func AccSentence(ts int64, s ism330.Sample) string {
	return nmea.Build(fmt.Sprintf("PMITACC,%d,%3.2f,%3.2f,%3.2f", ts, s.X, s.Y, s.Z))
}

// GyrSentence builds a $PMITGYR report in degrees per second.
func GyrSentence(ts int64, s ism330.Sample) string {
	return nmea.Build(fmt.Sprintf("PMITGYR,%d,%3.2f,%3.2f,%3.2f", ts, s.X, s.Y, s.Z))
}

// HKSentence builds a $PMITHK report: timestamp, OCXO lock, device health
// flags, the three temperatures, motion state, and the time-sync state.
func HKSentence(ts int64, snap Snapshot) string {
	body := fmt.Sprintf("PMITHK,%d,%d,%d,%d,%d,%3.2f,%3.2f,%3.2f,%d,%d,%d,%d",
		ts,
		boolDigit(snap.OCXOLocked),
		boolDigit(snap.SPIOK),
		boolDigit(snap.MagOK),
		boolDigit(snap.IMUOK),
		snap.SwitcherTemp,
		snap.MagTemp,
		snap.IMUTemp,
		boolDigit(snap.Active),
		boolDigit(snap.Tilt),
		snap.Source,
		snap.Epoch)
	return nmea.Build(body)
}
