// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 MIT Haystack Observatory

package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// SysfsBoard reads the housekeeping analog channels through the kernel's
// IIO sysfs interface and the OCXO lock discriminator through a GPIO
// value file.
type SysfsBoard struct {
	SwitcherPath string
	MagPath      string
	OCXOPath     string
}

func (b *SysfsBoard) SwitcherRaw() (uint16, error) {
	return readRaw(b.SwitcherPath)
}

func (b *SysfsBoard) MagRaw() (uint16, error) {
	return readRaw(b.MagPath)
}

// OCXOLocked reads the lock pin; any read failure reports unlocked, which
// telemetry surfaces rather than hiding.
func (b *SysfsBoard) OCXOLocked() bool {
	data, err := os.ReadFile(b.OCXOPath)
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == "1"
}

func readRaw(path string) (uint16, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %v", path, err)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %v", path, err)
	}
	return uint16(v), nil
}
