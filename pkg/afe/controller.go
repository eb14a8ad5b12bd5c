// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 MIT Haystack Observatory

// Package afe is the instrument executive: a single-threaded cooperative
// loop that relays GNSS traffic to the host, services host commands,
// samples the magnetometer and IMU through the motion engine, and emits
// scheduled telemetry. All device and protocol state is owned by the
// Controller and touched only from the loop, so no locking is needed.
package afe

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mithaystack/afectl/pkg/command"
	"github.com/mithaystack/afectl/pkg/ism330"
	"github.com/mithaystack/afectl/pkg/maxio"
	"github.com/mithaystack/afectl/pkg/motion"
	"github.com/mithaystack/afectl/pkg/nmea"
	"github.com/mithaystack/afectl/pkg/rm3100"
	"github.com/mithaystack/afectl/pkg/telemetry"
	"github.com/mithaystack/afectl/pkg/timesync"
)

// Link is one serial endpoint. Read must return (0, nil) when nothing is
// waiting within the port's read timeout, so the loop never blocks on a
// quiet line.
type Link interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// Board exposes the housekeeping analog channels and the OCXO lock pin.
type Board interface {
	SwitcherRaw() (uint16, error)
	MagRaw() (uint16, error)
	OCXOLocked() bool
}

// FrameTarget paces the executive loop so command servicing and sensor
// sampling keep up with the receiver's fix rate.
const FrameTarget = 600 * time.Millisecond

const (
	// maxRelayBytes caps one frame's GNSS relay so a chattering
	// receiver cannot starve the rest of the frame
	maxRelayBytes = 4096

	readChunk = 256
)

// Config wires a Controller to its devices and links.
type Config struct {
	Host  Link
	GNSS  Link
	Board Board
	Bank  *maxio.Bank
	Mag   *rm3100.Device
	IMU   *ism330.Device
	Clock timesync.Clock
}

// Controller owns the executive loop state.
type Controller struct {
	host  Link
	gnss  Link
	board Board

	bank *maxio.Bank
	mag  *rm3100.Device
	imu  *ism330.Device

	Time   *timesync.State
	Sched  *telemetry.Scheduler
	router *command.Router

	cal motion.Calibration
	dec *nmea.Decoder

	hostBuf []byte

	spiOK, magOK, imuOK bool

	magSample            rm3100.Sample
	accSample, gyrSample ism330.Sample
	swTemp, magTemp      float64
	imuTemp              float64
	tilt, active         bool

	gpsStart, gpsEnd []byte
}

// New builds a Controller. Init must run before Step.
func New(cfg Config) *Controller {
	c := &Controller{
		host:     cfg.Host,
		gnss:     cfg.GNSS,
		board:    cfg.Board,
		bank:     cfg.Bank,
		mag:      cfg.Mag,
		imu:      cfg.IMU,
		Time:     timesync.New(cfg.Clock),
		Sched:    telemetry.NewScheduler(),
		dec:      nmea.NewDecoder(),
		gpsStart: []byte(nmea.Build("PGPS") + "\r\n"),
		gpsEnd:   []byte(nmea.Build("PGPN") + "\r\n"),
	}
	c.router = &command.Router{
		Time:  c.Time,
		Rates: c.Sched,
		Mag:   cfg.Mag,
		IMU:   cfg.IMU,
		Bank:  cfg.Bank,
	}
	return c
}

// Init drives the expanders to their defaults, configures both sensors,
// and tares the IMU against its resting state. Device failures degrade
// the corresponding health flag rather than aborting: a board with a dead
// magnetometer still relays GNSS and answers commands.
func (c *Controller) Init() error {
	var errs []error

	c.spiOK = true
	if err := c.bank.Init(); err != nil {
		c.spiOK = false
		errs = append(errs, fmt.Errorf("expanders: %w", err))
	}

	c.magOK = true
	if err := c.mag.Probe(); err != nil {
		c.magOK = false
		errs = append(errs, fmt.Errorf("magnetometer: %w", err))
	} else if err := c.mag.Configure(rm3100.DefaultCCR, rm3100.DefaultUpdateRate); err != nil {
		c.magOK = false
		errs = append(errs, fmt.Errorf("magnetometer: %w", err))
	}

	c.imuOK = true
	if err := c.imu.Configure(ism330.DefaultConfig()); err != nil {
		c.imuOK = false
		errs = append(errs, fmt.Errorf("imu: %w", err))
	} else if err := c.imu.ConfigureFIFO(); err != nil {
		c.imuOK = false
		errs = append(errs, fmt.Errorf("imu fifo: %w", err))
	}

	if c.imuOK {
		if err := c.tare(); err != nil {
			errs = append(errs, fmt.Errorf("tare: %w", err))
		}
	}

	c.refreshReadings()
	return errors.Join(errs...)
}

// tare captures the resting offsets. The unit must be physically still.
func (c *Controller) tare() error {
	acc, _, _, err := c.imu.Drain(motion.TareAccelCount, ism330.Streams{Accel: true})
	if err != nil {
		return err
	}
	if err := c.cal.TareAccel(acc); err != nil {
		return err
	}

	_, gyr, _, err := c.imu.Drain(motion.TareGyroCount, ism330.Streams{Gyro: true})
	if err != nil {
		return err
	}
	return c.cal.TareGyro(gyr)
}

// Step executes one frame: relay GNSS traffic, service at most one host
// command, sample the sensors, emit due telemetry. GNSS relay is
// interleaved between the slower phases so receiver output is never
// buffered across a full frame.
func (c *Controller) Step() {
	c.relayGNSS()
	c.serviceHost()
	c.sampleMag()
	c.relayGNSS()
	c.sampleIMU()
	c.readHousekeeping()
	c.relayGNSS()
	c.sendTelemetry(false)
}

// Run executes frames forever, sleeping out the remainder of each frame
// target. Fault recovery lives in the caller: any panic escapes.
func (c *Controller) Run() {
	for {
		start := time.Now()
		c.Step()
		if rest := FrameTarget - time.Since(start); rest > 0 {
			time.Sleep(rest)
		}
	}
}

// Snapshot returns the state a housekeeping report carries.
func (c *Controller) Snapshot() telemetry.Snapshot {
	return telemetry.Snapshot{
		OCXOLocked:   c.board.OCXOLocked(),
		SPIOK:        c.spiOK,
		MagOK:        c.magOK,
		IMUOK:        c.imuOK,
		SwitcherTemp: c.swTemp,
		MagTemp:      c.magTemp,
		IMUTemp:      c.imuTemp,
		Active:       c.active,
		Tilt:         c.tilt,
		Source:       c.Time.Source(),
		Epoch:        c.Time.Epoch(),
	}
}

// serviceHost consumes at most one complete line from the host link and
// dispatches it. Remaining input stays buffered for later frames.
func (c *Controller) serviceHost() {
	buf := make([]byte, readChunk)
	for len(c.hostBuf) < maxRelayBytes {
		n, err := c.host.Read(buf)
		if n > 0 {
			c.hostBuf = append(c.hostBuf, buf[:n]...)
		}
		if n == 0 || err != nil {
			break
		}
	}

	line, ok := c.nextHostLine()
	if !ok {
		return
	}
	c.dispatch(line)
}

// nextHostLine pops the first newline-terminated line off the host
// buffer, stripped of its terminator.
func (c *Controller) nextHostLine() (string, bool) {
	idx := -1
	for i, b := range c.hostBuf {
		if b == '\n' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", false
	}
	line := strings.TrimRight(string(c.hostBuf[:idx]), "\r")
	c.hostBuf = c.hostBuf[idx+1:]
	return line, true
}

func (c *Controller) dispatch(line string) {
	switch {
	case strings.HasPrefix(line, "$TELEM?"):
		c.refreshReadings()
		c.write(nmea.Build("PTEL"))
		c.sendTelemetry(true)

	case strings.HasPrefix(line, "$MAX?"):
		c.write(c.maxDump())

	default:
		if resp, handled := c.router.Handle(line); handled {
			c.write(resp)
		}
	}
}

// maxDump renders every expander's shadow state: misc, the two TX chips,
// the four RX chips, each as a packed ten-bit string.
func (c *Controller) maxDump() string {
	chips := make([]string, 0, 7)
	appendChain := func(chain *maxio.Chain) {
		for i := 1; i <= chain.Length(); i++ {
			state, err := chain.Shadow(i)
			if err != nil {
				continue
			}
			chips = append(chips, maxio.PackedString(state))
		}
	}
	appendChain(c.bank.Misc)
	appendChain(c.bank.TX)
	appendChain(c.bank.RX)
	return nmea.Build("PMAX," + strings.Join(chips, ","))
}

func (c *Controller) write(sentence string) {
	_, _ = c.host.Write([]byte(sentence + "\r\n"))
}

// refreshReadings re-reads everything a telemetry dump reports.
func (c *Controller) refreshReadings() {
	c.sampleMag()
	c.sampleIMU()
	c.readHousekeeping()
}

func (c *Controller) sampleMag() {
	if !c.magOK {
		return
	}
	ready, err := c.mag.DataReady()
	if err != nil || !ready {
		return
	}
	if s, err := c.mag.Read(); err == nil {
		c.magSample = s
	}
}

// sampleIMU drains one motion window from the FIFO, runs both streams
// through calibration and motion detection, and refreshes the tilt and
// activity flags. The latest detected (or last) sample becomes the one
// telemetry reports.
func (c *Controller) sampleIMU() {
	if !c.imuOK {
		return
	}

	// temperature batches at a fraction of the sensor rates, so it is
	// taken opportunistically rather than waited for
	acc, gyr, temps, err := c.imu.Drain(motion.WindowSize, ism330.Streams{Accel: true, Gyro: true})
	if err != nil {
		return
	}

	detects, out := motion.DetectAccel(acc, c.cal)
	if s, ok := motion.Latest(detects, out); ok {
		c.accSample = s
	}
	detects, out = motion.DetectGyro(gyr, c.cal)
	if s, ok := motion.Latest(detects, out); ok {
		c.gyrSample = s
	}
	if len(temps) > 0 {
		c.imuTemp = temps[len(temps)-1]
	} else if t, err := c.imu.ReadTemp(); err == nil {
		c.imuTemp = t
	}

	if tilt, err := c.imu.Tilt(); err == nil {
		c.tilt = tilt
	}
	if active, err := c.imu.Active(); err == nil {
		c.active = active
	}
}

func (c *Controller) readHousekeeping() {
	if raw, err := c.board.SwitcherRaw(); err == nil {
		c.swTemp = telemetry.SwitcherTemp(raw)
	}
	if raw, err := c.board.MagRaw(); err == nil {
		c.magTemp = telemetry.MagTemp(raw)
	}
}

// sendTelemetry emits each channel that is due. force bypasses the
// per-channel timers for a requested dump without disturbing them.
func (c *Controller) sendTelemetry(force bool) {
	now := c.Time.Now()
	ts := now.Unix()

	if c.magOK && (force || c.Sched.Fire(telemetry.ChannelMag, now)) {
		c.write(telemetry.MagSentence(ts, c.magSample))
	}
	if force || c.Sched.Fire(telemetry.ChannelHK, now) {
		c.write(telemetry.HKSentence(ts, c.Snapshot()))
	}
	if c.imuOK && (force || c.Sched.Fire(telemetry.ChannelIMU, now)) {
		c.write(telemetry.AccSentence(ts, c.accSample))
		c.write(telemetry.GyrSentence(ts, c.gyrSample))
	}
}
