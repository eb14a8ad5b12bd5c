// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 MIT Haystack Observatory

package telemetry

import (
	"strings"
	"testing"
	"time"

	"github.com/mithaystack/afectl/pkg/ism330"
	"github.com/mithaystack/afectl/pkg/nmea"
	"github.com/mithaystack/afectl/pkg/rm3100"
	"github.com/mithaystack/afectl/pkg/timesync"
)

func TestSchedulerFiresImmediatelyOnFirstPoll(t *testing.T) {
	s := NewScheduler()
	now := time.Now()

	for ch := Channel(0); ch < channelCount; ch++ {
		if !s.Fire(ch, now) {
			t.Errorf("channel %d did not fire on first poll", ch)
		}
	}
}

func TestSchedulerPeriod(t *testing.T) {
	s := NewScheduler()
	if err := s.SetRate(ChannelHK, 5); err != nil {
		t.Fatalf("SetRate: %v", err)
	}

	base := time.Now()
	if !s.Fire(ChannelHK, base) {
		t.Fatal("first poll did not fire")
	}
	if s.Fire(ChannelHK, base.Add(4*time.Second)) {
		t.Error("fired before the period elapsed")
	}
	if !s.Fire(ChannelHK, base.Add(5*time.Second)) {
		t.Error("did not fire at the period")
	}
}

func TestSchedulerZeroRateIsOff(t *testing.T) {
	s := NewScheduler()
	if err := s.SetRate(ChannelIMU, 0); err != nil {
		t.Fatalf("SetRate: %v", err)
	}
	if s.Fire(ChannelIMU, time.Now()) {
		t.Error("disabled channel fired")
	}
}

func TestSchedulerChannelIndependence(t *testing.T) {
	// over a 10 second span at HK=1, MAG=5, IMU=0: eleven HK fires
	// (t=0..10), three MAG fires (0, 5, 10), no IMU fires
	s := NewScheduler()
	if err := s.SetRate(ChannelMag, 5); err != nil {
		t.Fatal(err)
	}
	if err := s.SetRate(ChannelIMU, 0); err != nil {
		t.Fatal(err)
	}

	base := time.Now()
	var hk, mag, imu int
	for sec := 0; sec <= 10; sec++ {
		now := base.Add(time.Duration(sec) * time.Second)
		if s.Fire(ChannelHK, now) {
			hk++
		}
		if s.Fire(ChannelMag, now) {
			mag++
		}
		if s.Fire(ChannelIMU, now) {
			imu++
		}
	}
	if hk != 11 || mag != 3 || imu != 0 {
		t.Errorf("fires = %d HK, %d MAG, %d IMU, want 11, 3, 0", hk, mag, imu)
	}
}

func TestSetRateRestartsOwnTimerOnly(t *testing.T) {
	s := NewScheduler()
	base := time.Now()
	s.Fire(ChannelHK, base)
	s.Fire(ChannelMag, base)

	if err := s.SetRate(ChannelMag, 10); err != nil {
		t.Fatal(err)
	}

	later := base.Add(500 * time.Millisecond)
	if !s.Fire(ChannelMag, later) {
		t.Error("restarted channel should fire on next poll")
	}
	if s.Fire(ChannelHK, later) {
		t.Error("untouched channel's timer was disturbed")
	}
}

func TestSetAll(t *testing.T) {
	s := NewScheduler()
	if err := s.SetAll(7); err != nil {
		t.Fatalf("SetAll: %v", err)
	}
	for ch := Channel(0); ch < channelCount; ch++ {
		if s.Rate(ch) != 7 {
			t.Errorf("channel %d rate = %d, want 7", ch, s.Rate(ch))
		}
	}
	if err := s.SetAll(61); err == nil {
		t.Error("rate above maximum accepted")
	}
	if err := s.SetRate(ChannelHK, -1); err == nil {
		t.Error("negative rate accepted")
	}
}

func TestMagSentence(t *testing.T) {
	got := MagSentence(1738761458, rm3100.Sample{X: -37.1867, Y: -13.4933, Z: -4.89333})

	body, err := nmea.Validate(got)
	if err != nil {
		t.Fatalf("sentence does not validate: %v", err)
	}
	want := "PMITMAG,1738761458,-37.19,-13.49,-4.89"
	if body != want {
		t.Errorf("body = %q, want %q", body, want)
	}
}

func TestAccGyrSentences(t *testing.T) {
	acc := AccSentence(100, ism330.Sample{X: 0, Y: 0, Z: 1})
	if !strings.HasPrefix(acc, "$PMITACC,100,0.00,0.00,1.00*") {
		t.Errorf("acc = %q", acc)
	}

	gyr := GyrSentence(100, ism330.Sample{X: -0.5, Y: 0.25, Z: 0})
	if !strings.HasPrefix(gyr, "$PMITGYR,100,-0.50,0.25,0.00*") {
		t.Errorf("gyr = %q", gyr)
	}
}

func TestHKSentence(t *testing.T) {
	snap := Snapshot{
		OCXOLocked:   true,
		SPIOK:        true,
		MagOK:        true,
		IMUOK:        false,
		SwitcherTemp: 31.5,
		MagTemp:      22.25,
		IMUTemp:      27.0,
		Active:       true,
		Tilt:         false,
		Source:       timesync.SourceGNSS,
		Epoch:        timesync.EpochNMEA,
	}
	got := HKSentence(1738761458, snap)

	body, err := nmea.Validate(got)
	if err != nil {
		t.Fatalf("sentence does not validate: %v", err)
	}
	want := "PMITHK,1738761458,1,1,1,0,31.50,22.25,27.00,1,0,1,2"
	if body != want {
		t.Errorf("body = %q, want %q", body, want)
	}
}

func TestADCConversions(t *testing.T) {
	if v := Voltage(0); v != 0 {
		t.Errorf("Voltage(0) = %v", v)
	}
	if v := Voltage(65535); v > 3.3 || v < 3.29 {
		t.Errorf("Voltage(full) = %v", v)
	}

	// 250 mV is 25 C on the switcher sensor
	mv := 0.250
	raw := uint16(mv / 3.3 * 65536)
	if got := SwitcherTemp(raw); got < 24.9 || got > 25.1 {
		t.Errorf("SwitcherTemp = %v, want about 25", got)
	}

	// 509 mV is 0 C on the magnetometer sensor
	mv = 0.509
	raw = uint16(mv / 3.3 * 65536)
	if got := MagTemp(raw); got < -0.1 || got > 0.1 {
		t.Errorf("MagTemp = %v, want about 0", got)
	}
}
