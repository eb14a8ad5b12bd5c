// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 MIT Haystack Observatory

// Package spibus provides register-level access to the SPI peripherals on
// the AFE controller board.
//
// A Port performs one chip-select framed transfer. The Device helpers layer
// the register protocol shared by the magnetometer and the IMU on top: a
// read sets the high bit of the address byte, a write clears it, and the
// first byte clocked back during a read is the address echo and is
// discarded.
package spibus

import (
	"errors"
	"fmt"
)

// Port is a single chip select on an SPI bus. Exchange clocks w out while
// filling r, asserting chip select for the duration of the transfer and
// releasing it on every return path. When r is nil the read data is
// discarded (write-only transfer).
type Port interface {
	Exchange(w, r []byte) error
}

const (
	readBit   = 0x80
	writeMask = 0x7F
)

// ErrProtectedRegister is returned for writes to registers outside a
// device's allow-list.
var ErrProtectedRegister = errors.New("write to protected register")

// Device wraps a Port with register read/write helpers. An optional
// allow-list restricts which registers may be written; the IMU uses this
// because writes to its reserved registers can damage the chip.
type Device struct {
	port     Port
	writable map[byte]bool
}

// NewDevice creates a Device with no write restrictions.
func NewDevice(port Port) *Device {
	return &Device{port: port}
}

// NewProtectedDevice creates a Device that only allows writes to the listed
// registers.
func NewProtectedDevice(port Port, writable []byte) *Device {
	allow := make(map[byte]bool, len(writable))
	for _, reg := range writable {
		allow[reg] = true
	}
	return &Device{port: port, writable: allow}
}

// ReadReg reads a single register.
func (d *Device) ReadReg(reg byte) (byte, error) {
	vals, err := d.ReadRegs(reg, 1)
	if err != nil {
		return 0, err
	}
	return vals[0], nil
}

// ReadRegs reads n consecutive registers starting at reg, relying on the
// device's address auto-increment.
func (d *Device) ReadRegs(reg byte, n int) ([]byte, error) {
	w := make([]byte, n+1)
	r := make([]byte, n+1)
	w[0] = reg | readBit

	if err := d.port.Exchange(w, r); err != nil {
		return nil, fmt.Errorf("read reg 0x%02X: %w", reg, err)
	}

	// first byte back is the address echo
	return r[1:], nil
}

// WriteReg writes a single register.
func (d *Device) WriteReg(reg, val byte) error {
	return d.WriteRegs(reg, val)
}

// WriteRegs writes consecutive registers starting at reg via address
// auto-increment.
func (d *Device) WriteRegs(reg byte, vals ...byte) error {
	if d.writable != nil && !d.writable[reg] {
		return fmt.Errorf("reg 0x%02X: %w", reg, ErrProtectedRegister)
	}

	w := make([]byte, 0, len(vals)+1)
	w = append(w, reg&writeMask)
	w = append(w, vals...)

	if err := d.port.Exchange(w, nil); err != nil {
		return fmt.Errorf("write reg 0x%02X: %w", reg, err)
	}
	return nil
}
