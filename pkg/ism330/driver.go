// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 MIT Haystack Observatory

// Package ism330 drives the ST ISM330DHCX accelerometer/gyro over SPI:
// rate and power-mode configuration, direct register reads, the batching
// FIFO, and the embedded tilt and activity functions.
package ism330

import (
	"fmt"

	"github.com/mithaystack/afectl/pkg/spibus"
)

// ActivityMode selects what the part does when no motion is detected.
type ActivityMode int

const (
	// NoChange keeps both sensors at their configured rates.
	NoChange ActivityMode = iota
	// AccelOnly drops the accelerometer to 12.5 Hz when inactive.
	AccelOnly
	// AccelAndGyro also puts the gyro to sleep when inactive.
	AccelAndGyro
)

// Config selects the sensor rates and power modes.
type Config struct {
	Accel    Profile
	Gyro     Profile
	HighPerf bool // accelerometer high performance mode
	ULP      bool // accelerometer ultra low power, 208 Hz and below only
	GyroLP   bool // gyro low power mode
	Activity ActivityMode
}

// DefaultConfig is both sensors at 416 Hz, high performance, dropping the
// accelerometer rate when idle.
func DefaultConfig() Config {
	p, _ := LookupProfile(DefaultProfileName)
	return Config{Accel: p, Gyro: p, HighPerf: true, Activity: AccelOnly}
}

// Validate checks that the rate and power mode selections are consistent
// with what the part can do.
func (c Config) Validate() error {
	if c.Accel.FIFOAcc == fifoInvalid {
		return fmt.Errorf("rate %s is not an accelerometer rate", c.Accel.Name)
	}
	if c.Gyro.FIFOGyr == fifoInvalid {
		return fmt.Errorf("rate %s is not a gyro rate", c.Gyro.Name)
	}
	if c.HighPerf && c.ULP {
		return fmt.Errorf("high performance and ultra low power are exclusive")
	}
	if c.ULP && c.Accel.Hz > 208 {
		return fmt.Errorf("ultra low power limited to 208 Hz, got %s", c.Accel.Name)
	}
	return nil
}

// Sample is one three-axis reading: g for the accelerometer, degrees per
// second for the gyro.
type Sample struct {
	X, Y, Z float64
}

// Device is an ISM330 behind a chip select. All writes go through the
// register allow-list.
type Device struct {
	dev      *spibus.Device
	cfg      Config
	fifoMode byte // FIFO_CTRL4 value, restored by ResetFIFO
}

// New wraps port as an ISM330 with defaults. Configure must run before
// measurements.
func New(port spibus.Port) *Device {
	return &Device{
		dev: spibus.NewProtectedDevice(port, WritableRegs),
		cfg: DefaultConfig(),
	}
}

// Config returns the active configuration.
func (d *Device) Config() Config {
	return d.cfg
}

// Configure programs rates, power modes, the inactivity timeout and the
// embedded tilt/motion functions. The previous configuration stays in
// effect if cfg fails validation.
func (d *Device) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	// block data update: low and high bytes always from the same sample
	if err := d.dev.WriteReg(regCtrl3C, 0x44); err != nil {
		return fmt.Errorf("ctrl3: %w", err)
	}
	if err := d.dev.WriteReg(regINT1Ctrl, 0x03); err != nil {
		return fmt.Errorf("int1: %w", err)
	}

	if err := d.writePowerModes(cfg); err != nil {
		return err
	}
	if err := d.dev.WriteReg(regCtrl1XL, cfg.Accel.Code); err != nil {
		return fmt.Errorf("accel rate: %w", err)
	}
	if err := d.dev.WriteReg(regCtrl2G, cfg.Gyro.Code); err != nil {
		return fmt.Errorf("gyro rate: %w", err)
	}

	// the inactivity timeout counts accelerometer samples, so the
	// threshold only applies when the accelerometer is running
	if cfg.Accel.Hz > 0 {
		code := sleepCode(cfg.Accel.Hz, cfg.Accel.SleepAfter)
		if err := d.dev.WriteReg(regWakeUpThs, 0x01); err != nil {
			return fmt.Errorf("wake threshold: %w", err)
		}
		if err := d.dev.WriteReg(regWakeUpDur, 0x10|byte(code)); err != nil {
			return fmt.Errorf("wake duration: %w", err)
		}
	}

	// mask data-ready until the filters settle
	if err := d.dev.WriteReg(regCtrl4C, 0x80); err != nil {
		return fmt.Errorf("ctrl4: %w", err)
	}

	if err := d.enableEmbeddedFuncs(); err != nil {
		return err
	}
	if err := d.configureActivity(cfg.Activity); err != nil {
		return err
	}

	d.cfg = cfg
	return nil
}

func (d *Device) writePowerModes(cfg Config) error {
	ctrl6 := byte(0x10) // high performance disabled opens the low power modes
	if cfg.HighPerf {
		ctrl6 = 0x00
	}
	if err := d.dev.WriteReg(regCtrl6C, ctrl6); err != nil {
		return fmt.Errorf("ctrl6: %w", err)
	}

	ctrl5 := byte(0x00)
	if cfg.ULP {
		ctrl5 = 0x80
	}
	if err := d.dev.WriteReg(regCtrl5C, ctrl5); err != nil {
		return fmt.Errorf("ctrl5: %w", err)
	}

	ctrl7 := byte(0x00)
	if cfg.GyroLP {
		ctrl7 = 0x80
	}
	if err := d.dev.WriteReg(regCtrl7G, ctrl7); err != nil {
		return fmt.Errorf("ctrl7: %w", err)
	}
	return nil
}

// enableEmbeddedFuncs turns on tilt and significant motion detection. The
// embedded function registers sit behind an access gate that must be closed
// again afterwards.
func (d *Device) enableEmbeddedFuncs() error {
	steps := []struct {
		reg, val byte
	}{
		{regFuncCfgAccess, 0x80},
		{regEmbFuncEnA, 0x30},
		{regPageRW, 0x80}, // latch interrupt requests
		{regEmbFuncInitA, 0x30},
		{regEmbFuncInt1, 0x30},
		{regFuncCfgAccess, 0x00},
	}
	for _, s := range steps {
		if err := d.dev.WriteReg(s.reg, s.val); err != nil {
			return fmt.Errorf("embedded functions reg 0x%02X: %w", s.reg, err)
		}
	}
	return nil
}

func (d *Device) configureActivity(mode ActivityMode) error {
	// interrupts enabled, routed to pins, latched, cleared on read
	if err := d.dev.WriteReg(regTapCfg0, 0x61); err != nil {
		return fmt.Errorf("tap cfg0: %w", err)
	}

	var val byte
	switch mode {
	case AccelOnly:
		val = 0xA0
	case AccelAndGyro:
		val = 0xC0
	default:
		val = 0x80
	}
	if err := d.dev.WriteReg(regTapCfg2, val); err != nil {
		return fmt.Errorf("tap cfg2: %w", err)
	}
	return nil
}

// Reset issues a software reset. All configuration registers return to
// their power-on defaults, so Configure must run again afterwards.
func (d *Device) Reset() error {
	if err := d.dev.WriteReg(regCtrl3C, 0x01); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// Status reports which direct-read outputs hold fresh data.
func (d *Device) Status() (accel, gyro, temp bool, err error) {
	s, err := d.dev.ReadReg(regStatus)
	if err != nil {
		return false, false, false, fmt.Errorf("status: %w", err)
	}
	return s&statusAccelReady != 0, s&statusGyroReady != 0, s&statusTempReady != 0, nil
}

// Scale factors from the datasheet sensitivity tables: 1 g is 16393 counts
// at the configured full scale, 100 dps is 11428 counts.
const (
	accelCountsPerG  = 16393.0
	gyroCountsPer100 = 11428.0
)

// ReadAccel reads the accelerometer output registers, in g.
func (d *Device) ReadAccel() (Sample, error) {
	raw, err := d.dev.ReadRegs(regOutXLA, 6)
	if err != nil {
		return Sample{}, fmt.Errorf("accel: %w", err)
	}
	return decodeAccel(raw), nil
}

// ReadGyro reads the gyro output registers, in degrees per second.
func (d *Device) ReadGyro() (Sample, error) {
	raw, err := d.dev.ReadRegs(regOutXLG, 6)
	if err != nil {
		return Sample{}, fmt.Errorf("gyro: %w", err)
	}
	return decodeGyro(raw), nil
}

// ReadTemp reads the die temperature, in degrees C.
func (d *Device) ReadTemp() (float64, error) {
	raw, err := d.dev.ReadRegs(regOutTempL, 2)
	if err != nil {
		return 0, fmt.Errorf("temp: %w", err)
	}
	return decodeTemp(raw), nil
}

// Tilt reports whether the embedded tilt function has latched an event
// since the last read.
func (d *Device) Tilt() (bool, error) {
	s, err := d.dev.ReadReg(regEmbFuncStatusMainpage)
	if err != nil {
		return false, fmt.Errorf("tilt status: %w", err)
	}
	return s&0x10 != 0, nil
}

// Active reports whether the part considers itself in motion. The register
// bit is the sleep state, so the sense inverts.
func (d *Device) Active() (bool, error) {
	s, err := d.dev.ReadReg(regWakeUpSrc)
	if err != nil {
		return false, fmt.Errorf("wake src: %w", err)
	}
	return s&0x10 == 0, nil
}

func decodeAccel(raw []byte) Sample {
	return Sample{
		X: float64(int16(uint16(raw[0]) | uint16(raw[1])<<8)) / accelCountsPerG,
		Y: float64(int16(uint16(raw[2]) | uint16(raw[3])<<8)) / accelCountsPerG,
		Z: float64(int16(uint16(raw[4]) | uint16(raw[5])<<8)) / accelCountsPerG,
	}
}

func decodeGyro(raw []byte) Sample {
	return Sample{
		X: float64(int16(uint16(raw[0])|uint16(raw[1])<<8)) * 100 / gyroCountsPer100,
		Y: float64(int16(uint16(raw[2])|uint16(raw[3])<<8)) * 100 / gyroCountsPer100,
		Z: float64(int16(uint16(raw[4])|uint16(raw[5])<<8)) * 100 / gyroCountsPer100,
	}
}

func decodeTemp(raw []byte) float64 {
	return float64(int16(uint16(raw[0])|uint16(raw[1])<<8))/256 + 25
}
