// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 MIT Haystack Observatory

package cmd

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Connection provides a common interface for the instrument's serial links
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// serialReadTimeout makes Read return (0, nil) on a quiet line instead of
// blocking, which the executive loop's polling model requires.
const serialReadTimeout = 50 * time.Millisecond

// SerialConnection wraps a serial port
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// OpenSerialConnection opens a serial port at 8N1 with the polling read
// timeout applied.
func OpenSerialConnection(portName string, baudRate int) (Connection, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %v", portName, err)
	}
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %v", portName, err)
	}

	return &SerialConnection{port: port}, nil
}
