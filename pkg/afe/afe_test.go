// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 MIT Haystack Observatory

package afe

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/mithaystack/afectl/pkg/ism330"
	"github.com/mithaystack/afectl/pkg/maxio"
	"github.com/mithaystack/afectl/pkg/nmea"
	"github.com/mithaystack/afectl/pkg/rm3100"
	"github.com/mithaystack/afectl/pkg/spibus"
	"github.com/mithaystack/afectl/pkg/telemetry"
)

// fakeLink is a serial endpoint fed and inspected through buffers. Read
// drains the input without ever blocking, like a port with a zero read
// timeout.
type fakeLink struct {
	in  bytes.Buffer
	out bytes.Buffer
}

func (l *fakeLink) Read(p []byte) (int, error) {
	if l.in.Len() == 0 {
		return 0, nil
	}
	return l.in.Read(p)
}

func (l *fakeLink) Write(p []byte) (int, error) {
	return l.out.Write(p)
}

type fakeBoard struct {
	switcher, mag uint16
	locked        bool
}

func (b *fakeBoard) SwitcherRaw() (uint16, error) { return b.switcher, nil }
func (b *fakeBoard) MagRaw() (uint16, error)      { return b.mag, nil }
func (b *fakeBoard) OCXOLocked() bool             { return b.locked }

type fakeClock struct {
	now time.Time
	set []time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) Set(t time.Time) error {
	c.set = append(c.set, t)
	c.now = t
	return nil
}

// imuPort models the ISM330 register map with an endless quiet FIFO:
// every status poll reports one pending entry and the tag sequence cycles
// gyro, accel, temperature. The synthetic samples are at rest (1 g on Z,
// zero rates, 27 C).
type imuPort struct {
	regs map[byte]byte
	idx  int
}

func newIMUPort() *imuPort {
	return &imuPort{regs: make(map[byte]byte)}
}

func (s *imuPort) Exchange(w, r []byte) error {
	if len(w) == 0 {
		return nil
	}

	if w[0]&0x80 == 0 {
		base := w[0]
		for i := 1; i < len(w); i++ {
			s.regs[base+byte(i-1)] = w[i]
		}
		return nil
	}

	reg := w[0] & 0x7F
	if len(r) > 0 {
		r[0] = 0
	}
	switch reg {
	case 0x3A: // FIFO status: always one entry, never full
		r[1] = 1
		if len(r) > 2 {
			r[2] = 0
		}
	case 0x78: // FIFO tag
		tags := []byte{0x01, 0x02, 0x03}
		r[1] = tags[s.idx%3] << 3
	case 0x79: // FIFO data: six bytes for the current tag
		var sample [6]byte
		switch s.idx % 3 {
		case 1: // accel, 1 g on Z
			sample = [6]byte{0, 0, 0, 0, 0x09, 0x40}
		case 2: // temperature, 27 C
			sample = [6]byte{0x00, 0x02, 0, 0, 0, 0}
		}
		for i := 0; i < len(r)-1 && i < 6; i++ {
			r[i+1] = sample[i]
		}
		s.idx++
	case 0x1E: // status: all outputs fresh
		r[1] = 0x07
	case 0x35: // no tilt latched
		r[1] = 0x00
	case 0x1B: // wake src: sleeping
		r[1] = 0x10
	default:
		for i := 1; i < len(r); i++ {
			r[i] = s.regs[reg+byte(i-1)]
		}
	}
	return nil
}

type rig struct {
	ctl   *Controller
	host  *fakeLink
	gnss  *fakeLink
	clock *fakeClock
}

func newRig(t *testing.T) *rig {
	t.Helper()

	magSim := spibus.NewSim()
	magSim.Regs[0x36] = 0x22 // revision ID
	magSim.Regs[0x34] = 0x80 // data ready
	// 75 counts on X, 150 on Y, 75 on Z
	magSim.Regs[0x26] = 75
	magSim.Regs[0x29] = 150
	magSim.Regs[0x2C] = 75

	r := &rig{
		host:  &fakeLink{},
		gnss:  &fakeLink{},
		clock: &fakeClock{now: time.Unix(1738761458, 0).UTC()},
	}
	r.ctl = New(Config{
		Host:  r.host,
		GNSS:  r.gnss,
		Board: &fakeBoard{switcher: 30000, mag: 20000, locked: true},
		Bank:  maxio.NewBank(&spibus.Recorder{}, &spibus.Recorder{}, &spibus.Recorder{}),
		Mag:   rm3100.New(magSim),
		IMU:   ism330.New(newIMUPort()),
		Clock: r.clock,
	})
	if err := r.ctl.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	return r
}

func TestInitHealth(t *testing.T) {
	r := newRig(t)
	snap := r.ctl.Snapshot()
	if !snap.SPIOK || !snap.MagOK || !snap.IMUOK {
		t.Errorf("health flags = %v %v %v, want all true", snap.SPIOK, snap.MagOK, snap.IMUOK)
	}
	if !snap.OCXOLocked {
		t.Error("OCXO lock not reported")
	}
	if snap.IMUTemp != 27.0 {
		t.Errorf("imu temp = %v, want 27", snap.IMUTemp)
	}
}

func TestInitDegradedMag(t *testing.T) {
	magSim := spibus.NewSim() // no revision ID, probe fails
	host := &fakeLink{}
	ctl := New(Config{
		Host:  host,
		GNSS:  &fakeLink{},
		Board: &fakeBoard{},
		Bank:  maxio.NewBank(&spibus.Recorder{}, &spibus.Recorder{}, &spibus.Recorder{}),
		Mag:   rm3100.New(magSim),
		IMU:   ism330.New(newIMUPort()),
		Clock: &fakeClock{now: time.Unix(1738761458, 0)},
	})
	if err := ctl.Init(); err == nil {
		t.Fatal("expected init error with dead magnetometer")
	}
	snap := ctl.Snapshot()
	if snap.MagOK {
		t.Error("MagOK still set")
	}
	if !snap.SPIOK || !snap.IMUOK {
		t.Error("unrelated health flags degraded")
	}

	ctl.Step()
	if strings.Contains(host.out.String(), "$PMITMAG") {
		t.Error("magnetometer telemetry emitted from a dead device")
	}
	if !strings.Contains(host.out.String(), "$PMITHK") {
		t.Error("housekeeping telemetry missing")
	}
}

func TestGNSSRelay(t *testing.T) {
	r := newRig(t)

	rmc := nmea.Build("GNRMC,193409.00,A,4237.81,N,07129.52,W,0.01,0.0,270325,0.0,W,A") + "\r\n"
	r.gnss.in.WriteString(rmc)

	r.ctl.Step()

	out := r.host.out.String()
	wrapped := nmea.Build("PGPS") + "\r\n" + rmc + nmea.Build("PGPN") + "\r\n"
	if !strings.Contains(out, wrapped) {
		t.Errorf("relayed block missing from output:\n%s", out)
	}

	want := time.Date(2025, 3, 27, 19, 34, 9, 0, time.UTC)
	if len(r.clock.set) != 1 || !r.clock.set[0].Equal(want) {
		t.Errorf("clock sets = %v, want one set to %v", r.clock.set, want)
	}
}

func TestGNSSRelayDropsBadChecksum(t *testing.T) {
	r := newRig(t)

	good := nmea.Build("GNRMC,193409.00,A,4237.81,N,07129.52,W,0.01,0.0,270325,0.0,W,A")
	bad := good[:len(good)-2] + "00"
	if strings.HasSuffix(good, "00") {
		bad = good[:len(good)-2] + "FF"
	}
	bad += "\r\n"
	r.gnss.in.WriteString(bad)

	r.ctl.Step()

	out := r.host.out.String()
	if strings.Contains(out, bad) {
		t.Error("corrupt sentence relayed to the host")
	}
	if strings.Contains(out, nmea.Build("PGPS")) {
		t.Error("relay block emitted with nothing valid to relay")
	}
	if len(r.clock.set) != 0 {
		t.Errorf("clock set from a corrupt sentence: %v", r.clock.set)
	}
}

func TestGNSSRelayFiltersMixedTraffic(t *testing.T) {
	r := newRig(t)

	gga := nmea.Build("GNGGA,193409.00,4237.81,N,07129.52,W,1,08,1.0,45.0,M,-33.0,M,,")
	bad := gga[:len(gga)-2] + "00"
	if strings.HasSuffix(gga, "00") {
		bad = gga[:len(gga)-2] + "FF"
	}
	r.gnss.in.WriteString(bad + "\r\n\x00\xFF\x01" + gga + "\r\n")

	r.ctl.Step()

	out := r.host.out.String()
	wrapped := nmea.Build("PGPS") + "\r\n" + gga + "\r\n" + nmea.Build("PGPN") + "\r\n"
	if !strings.Contains(out, wrapped) {
		t.Errorf("valid sentence missing from relay block:\n%s", out)
	}
	if strings.Contains(out, bad) {
		t.Error("corrupt sentence relayed to the host")
	}
}

func TestHostCommand(t *testing.T) {
	r := newRig(t)

	r.host.in.WriteString(nmea.Build("PMITR?") + "\r\n")
	r.ctl.Step()

	want := nmea.Build("PMITSR,0,R?,1,1,1")
	if !strings.Contains(r.host.out.String(), want) {
		t.Errorf("response %q missing from output:\n%s", want, r.host.out.String())
	}
}

func TestOneCommandPerFrame(t *testing.T) {
	r := newRig(t)

	r.host.in.WriteString(nmea.Build("PMITRT,5") + "\r\n" + nmea.Build("PMITRM,7") + "\r\n")

	r.ctl.Step()
	first := r.host.out.String()
	if !strings.Contains(first, nmea.Build("PMITSR,0,RT,0")) {
		t.Error("first command not answered in first frame")
	}
	if strings.Contains(first, nmea.Build("PMITSR,0,RM,0")) {
		t.Error("second command answered in the same frame")
	}

	r.ctl.Step()
	if !strings.Contains(r.host.out.String(), nmea.Build("PMITSR,0,RM,0")) {
		t.Error("second command not answered in second frame")
	}
}

func TestTelemetryDump(t *testing.T) {
	r := newRig(t)

	r.host.in.WriteString("$TELEM?\r\n")
	r.ctl.Step()

	out := r.host.out.String()
	if !strings.Contains(out, nmea.Build("PTEL")) {
		t.Error("dump marker missing")
	}
	for _, prefix := range []string{"$PMITMAG", "$PMITHK", "$PMITACC", "$PMITGYR"} {
		if !strings.Contains(out, prefix) {
			t.Errorf("%s missing from dump:\n%s", prefix, out)
		}
	}
}

func TestMaxDump(t *testing.T) {
	r := newRig(t)

	r.host.in.WriteString("$MAX?\r\n")
	r.ctl.Step()

	want := nmea.Build("PMAX,1111000110," +
		"0110000000,0110000000," +
		"0111000000,0111000000,0111000000,0111000000")
	if !strings.Contains(r.host.out.String(), want) {
		t.Errorf("expander dump missing:\nwant %s\ngot %s", want, r.host.out.String())
	}
}

func TestTelemetryRateGating(t *testing.T) {
	r := newRig(t)

	if err := r.ctl.Sched.SetAll(0); err != nil {
		t.Fatal(err)
	}
	r.ctl.Step()
	if r.host.out.Len() != 0 {
		t.Errorf("output with all channels off: %q", r.host.out.String())
	}

	if err := r.ctl.Sched.SetRate(telemetry.ChannelHK, 1); err != nil {
		t.Fatal(err)
	}
	r.ctl.Step()
	out := r.host.out.String()
	if !strings.Contains(out, "$PMITHK") {
		t.Error("housekeeping not emitted after re-enable")
	}
	if strings.Contains(out, "$PMITMAG") || strings.Contains(out, "$PMITACC") {
		t.Error("disabled channels emitted")
	}
}

func TestTelemetryPeriod(t *testing.T) {
	r := newRig(t)

	r.ctl.Step() // fires everything on the first poll
	r.host.out.Reset()

	r.ctl.Step() // same instant, nothing due
	if strings.Contains(r.host.out.String(), "$PMITHK") {
		t.Error("housekeeping re-emitted inside its period")
	}

	r.clock.now = r.clock.now.Add(2 * time.Second)
	r.ctl.Step()
	if !strings.Contains(r.host.out.String(), "$PMITHK") {
		t.Error("housekeeping not emitted after its period elapsed")
	}
}
