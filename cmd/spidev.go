// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 MIT Haystack Observatory

package cmd

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux spidev ioctl numbers, from linux/spi/spidev.h
const (
	spiIOCWrMode       = 0x40016B01 // _IOW('k', 1, __u8)
	spiIOCWrMaxSpeedHz = 0x40046B04 // _IOW('k', 4, __u32)
	spiIOCMessage1     = 0x40206B00 // _IOW('k', 0, struct spi_ioc_transfer[1])
)

// spiTransfer mirrors struct spi_ioc_transfer
type spiTransfer struct {
	txBuf          uint64
	rxBuf          uint64
	length         uint32
	speedHz        uint32
	delayUsecs     uint16
	bitsPerWord    uint8
	csChange       uint8
	txNbits        uint8
	rxNbits        uint8
	wordDelayUsecs uint8
	pad            uint8
}

// SpidevPort is a spibus.Port over one /dev/spidevB.C node. Each node is
// one chip select; the kernel asserts CS for the duration of a transfer
// and releases it on every return path, which is exactly the framing the
// expander daisy chains and the sensor register protocol need.
type SpidevPort struct {
	file    *os.File
	speedHz uint32
}

// OpenSpidev opens a spidev node in SPI mode 0 at the given clock rate.
func OpenSpidev(path string, speedHz uint32) (*SpidevPort, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %v", path, err)
	}

	mode := uint8(0)
	if err := spiIoctl(f.Fd(), spiIOCWrMode, unsafe.Pointer(&mode)); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: set mode: %v", path, err)
	}
	if err := spiIoctl(f.Fd(), spiIOCWrMaxSpeedHz, unsafe.Pointer(&speedHz)); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: set speed: %v", path, err)
	}

	return &SpidevPort{file: f, speedHz: speedHz}, nil
}

// Exchange implements spibus.Port as a single full-duplex transfer.
func (p *SpidevPort) Exchange(w, r []byte) error {
	if len(w) == 0 {
		return nil
	}
	if r != nil && len(r) != len(w) {
		return fmt.Errorf("spidev: rx length %d != tx length %d", len(r), len(w))
	}

	tr := spiTransfer{
		txBuf:       uint64(uintptr(unsafe.Pointer(&w[0]))),
		length:      uint32(len(w)),
		speedHz:     p.speedHz,
		bitsPerWord: 8,
	}
	if r != nil {
		tr.rxBuf = uint64(uintptr(unsafe.Pointer(&r[0])))
	}

	return spiIoctl(p.file.Fd(), spiIOCMessage1, unsafe.Pointer(&tr))
}

func (p *SpidevPort) Close() error {
	return p.file.Close()
}

func spiIoctl(fd uintptr, req uint, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
