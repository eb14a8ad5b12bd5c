// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 MIT Haystack Observatory

// Package maxio drives the MAX7317 port expanders that switch the RF paths
// of the antenna front end.
//
// Each expander has ten output ports. One expander (MISC) sits alone on the
// control bus; the transmit side is a chain of two sharing a chip select and
// the receive side is a chain of four. Writes to a chain are clocked through
// every chip: the frame carries one (port, value) pair per chip, the last
// chip in the chain receiving the pair that is clocked in first. Chips that
// are not being addressed get the no-op port address.
package maxio

import (
	"fmt"

	"github.com/mithaystack/afectl/pkg/spibus"
)

// PortCount is the number of output ports per expander
const PortCount = 10

// noopPort is the don't-care port address; a (noopPort, 0) pair clocked into
// a chip changes nothing
const noopPort = 0x20

// Bit is a requested output state
type Bit int

// Bit values; Leave skips the port entirely
const (
	Clear Bit = 0
	Set   Bit = 1
	Leave Bit = -1
)

// ParseBit converts a command parameter to a Bit. "0" and "1" set the port,
// "x" or "X" leaves it alone.
func ParseBit(s string) (Bit, error) {
	switch s {
	case "0":
		return Clear, nil
	case "1":
		return Set, nil
	case "x", "X":
		return Leave, nil
	}
	return Leave, fmt.Errorf("invalid port bit %q", s)
}

// Chain is one or more daisy-chained MAX7317s behind a single chip select.
// The shadow state tracks what each chip's ports were last set to; it is
// only updated after the bus write succeeds.
type Chain struct {
	port   spibus.Port
	length int
	shadow [][PortCount]byte
}

// NewChain creates a chain of length chips, each starting from defaults.
func NewChain(port spibus.Port, length int, defaults [PortCount]byte) *Chain {
	shadow := make([][PortCount]byte, length)
	for i := range shadow {
		shadow[i] = defaults
	}
	return &Chain{port: port, length: length, shadow: shadow}
}

// Length returns the number of chips in the chain.
func (c *Chain) Length() int {
	return c.length
}

// Shadow returns the last-written port states of chip (1-based).
func (c *Chain) Shadow(chip int) ([PortCount]byte, error) {
	if chip < 1 || chip > c.length {
		return [PortCount]byte{}, fmt.Errorf("chip %d out of range 1..%d", chip, c.length)
	}
	return c.shadow[chip-1], nil
}

// frame builds the burst that sets one port on one chip. The pair for the
// last chip in the chain is clocked in first, so chip n occupies slot
// length-n counted from the start of the frame.
func (c *Chain) frame(chip int, portNum, value byte) []byte {
	buf := make([]byte, 0, 2*c.length)
	slot := c.length - chip
	for i := 0; i < c.length; i++ {
		if i == slot {
			buf = append(buf, portNum, value)
		} else {
			buf = append(buf, noopPort, 0)
		}
	}
	return buf
}

// SetBits applies bits to chip (1-based) starting at port index start.
// Leave entries are skipped. Each applied bit is one chip-select framed
// burst; the shadow is updated per bit as the writes land.
func (c *Chain) SetBits(chip, start int, bits []Bit) error {
	if chip < 1 || chip > c.length {
		return fmt.Errorf("chip %d out of range 1..%d", chip, c.length)
	}
	if start < 0 || start > PortCount-1 {
		return fmt.Errorf("start index %d out of range 0..%d", start, PortCount-1)
	}
	if start+len(bits) > PortCount {
		return fmt.Errorf("%d bits from index %d exceed %d ports", len(bits), start, PortCount)
	}

	for i, b := range bits {
		if b == Leave {
			continue
		}
		portNum := byte(start + i)
		if err := c.port.Exchange(c.frame(chip, portNum, byte(b)), nil); err != nil {
			return fmt.Errorf("chip %d port %d: %w", chip, portNum, err)
		}
		c.shadow[chip-1][portNum] = byte(b)
	}
	return nil
}

// Broadcast writes the same (port, value) pair to every chip in the chain
// in a single burst. Used at init when all chips share defaults.
func (c *Chain) Broadcast(portNum, value byte) error {
	if portNum > PortCount-1 {
		return fmt.Errorf("port %d out of range 0..%d", portNum, PortCount-1)
	}

	buf := make([]byte, 0, 2*c.length)
	for i := 0; i < c.length; i++ {
		buf = append(buf, portNum, value)
	}
	if err := c.port.Exchange(buf, nil); err != nil {
		return fmt.Errorf("broadcast port %d: %w", portNum, err)
	}
	for i := range c.shadow {
		c.shadow[i][portNum] = value
	}
	return nil
}

// ApplyDefaults broadcasts the chain's defaults port by port. All chips in
// a chain carry the same board defaults, so broadcast mode applies.
func (c *Chain) ApplyDefaults(defaults [PortCount]byte) error {
	for portNum := 0; portNum < PortCount; portNum++ {
		if err := c.Broadcast(byte(portNum), defaults[portNum]); err != nil {
			return err
		}
	}
	return nil
}
