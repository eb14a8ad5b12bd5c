// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 MIT Haystack Observatory

// Package rm3100 drives the PNI RM3100 three-axis magnetometer over SPI.
package rm3100

import (
	"fmt"

	"github.com/mithaystack/afectl/pkg/spibus"
)

// Registers
const (
	regCMM    = 0x01 // continuous measurement mode
	regCCX    = 0x04 // cycle count, X high byte first, then Y, Z
	regTMRC   = 0x0B // continuous mode update rate
	regMX     = 0x24 // measurement results, 3 bytes per axis
	regStatus = 0x34
	regRevID  = 0x36
)

const (
	cmmContinuous = 0x71 // all axes, polling via status register
	statusDRDY    = 0x80
	revIDExpected = 0x22
)

// Cycle count and update rate limits, per the RM3100 user manual. The cycle
// count trades acquisition time against resolution.
const (
	CCRMin     = 50
	CCRMax     = 400
	DefaultCCR = 200

	UpdateRateMin     = 146
	UpdateRateMax     = 159
	DefaultUpdateRate = 150
)

// countsPerMicrotesla at the default cycle count
const countsPerMicrotesla = 75.0

// Sample is one field measurement in microtesla, in board axes.
type Sample struct {
	X, Y, Z float64
}

// Device is an RM3100 behind a chip select.
type Device struct {
	dev        *spibus.Device
	ccr        int
	updateRate int
}

// New wraps port as an RM3100. Configure must run before measurements.
func New(port spibus.Port) *Device {
	return &Device{
		dev:        spibus.NewDevice(port),
		ccr:        DefaultCCR,
		updateRate: DefaultUpdateRate,
	}
}

// Probe reads the revision ID register and verifies the chip responds.
func (d *Device) Probe() error {
	id, err := d.dev.ReadReg(regRevID)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	if id != revIDExpected {
		return fmt.Errorf("probe: revision ID 0x%02X, want 0x%02X", id, revIDExpected)
	}
	return nil
}

// Configure writes the cycle count and update rate and enters continuous
// measurement mode. Range errors leave the device untouched.
func (d *Device) Configure(ccr, updateRate int) error {
	if ccr < CCRMin || ccr > CCRMax {
		return fmt.Errorf("cycle count %d out of range %d..%d", ccr, CCRMin, CCRMax)
	}
	if updateRate < UpdateRateMin || updateRate > UpdateRateMax {
		return fmt.Errorf("update rate %d out of range %d..%d", updateRate, UpdateRateMin, UpdateRateMax)
	}

	hb := byte(ccr >> 8)
	lb := byte(ccr & 0xFF)
	// same cycle count on all three axes
	if err := d.dev.WriteRegs(regCCX, hb, lb, hb, lb, hb, lb); err != nil {
		return fmt.Errorf("cycle count: %w", err)
	}
	if err := d.dev.WriteReg(regTMRC, byte(updateRate)); err != nil {
		return fmt.Errorf("update rate: %w", err)
	}
	if err := d.dev.WriteReg(regCMM, cmmContinuous); err != nil {
		return fmt.Errorf("continuous mode: %w", err)
	}

	d.ccr = ccr
	d.updateRate = updateRate
	return nil
}

// Config returns the last configured cycle count and update rate.
func (d *Device) Config() (ccr, updateRate int) {
	return d.ccr, d.updateRate
}

// DataReady polls the status register.
func (d *Device) DataReady() (bool, error) {
	status, err := d.dev.ReadReg(regStatus)
	if err != nil {
		return false, fmt.Errorf("status: %w", err)
	}
	return status&statusDRDY != 0, nil
}

// Read fetches one measurement: nine bytes, each axis a 24-bit big-endian
// two's complement count. The sensor axes are rotated relative to the
// board, so X and Y swap and Z negates.
func (d *Device) Read() (Sample, error) {
	raw, err := d.dev.ReadRegs(regMX, 9)
	if err != nil {
		return Sample{}, fmt.Errorf("measurement: %w", err)
	}

	x := signExtend24(raw[0], raw[1], raw[2])
	y := signExtend24(raw[3], raw[4], raw[5])
	z := signExtend24(raw[6], raw[7], raw[8])

	return Sample{
		X: float64(y) / countsPerMicrotesla,
		Y: float64(x) / countsPerMicrotesla,
		Z: -float64(z) / countsPerMicrotesla,
	}, nil
}

func signExtend24(b2, b1, b0 byte) int32 {
	v := int32(b2)<<16 | int32(b1)<<8 | int32(b0)
	if v >= 1<<23 {
		v -= 1 << 24
	}
	return v
}
