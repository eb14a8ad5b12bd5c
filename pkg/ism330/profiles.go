// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 MIT Haystack Observatory

package ism330

// fifoInvalid marks a FIFO batching code that does not exist for the role:
// the 1.6 Hz rate is accelerometer only and 6.5 Hz is gyro only.
const fifoInvalid = -1

// Profile is one output data rate setting for CTRL1_XL or CTRL2_G. The FIFO
// batching equivalents live in a different register with their own encoding,
// so they are carried alongside. SleepAfter is the inactivity target in
// seconds when the profile drives the accelerometer.
type Profile struct {
	Name       string
	Code       byte    // ODR bits for CTRL1_XL / CTRL2_G
	Hz         float64 // nominal output rate
	FIFOAcc    int     // BDR bits for FIFO_CTRL3, accelerometer nibble
	FIFOGyr    int     // BDR bits for FIFO_CTRL3, gyro nibble
	SleepAfter float64
}

// Profiles lists every rate the part supports. The names are the command
// vocabulary: hosts select rates by these exact strings.
var Profiles = []Profile{
	{"ODR_OFF", 0x00, 0, 0, 0, 0},
	{"ACC_1_6_HZ_ULP", 0xB0, 1.6, 0xB0, fifoInvalid, 5},
	{"GYR_6_5_HZ_LP", 0x0B, 6.5, fifoInvalid, 0x0B, 5},
	{"ODR_12_5_HZ_LP", 0x10, 12.5, 0x01, 0x10, 5},
	{"ODR_26_HZ_LP", 0x20, 26, 0x02, 0x20, 5},
	{"ODR_52_HZ_NP", 0x30, 52, 0x03, 0x30, 5},
	{"ODR_104_HZ_NP", 0x40, 104, 0x04, 0x40, 5},
	{"ODR_208_HZ_HP", 0x50, 208, 0x05, 0x50, 5},
	{"ODR_416_HZ_HP", 0x60, 416, 0x06, 0x60, 5},
	{"ODR_833_HZ_HP", 0x70, 833, 0x07, 0x70, 5},
	{"ODR_1_66_KHZ_HP", 0x80, 1660, 0x08, 0x80, 5},
	{"ODR_3_33_KHZ_HP", 0x90, 3330, 0x09, 0x90, 5},
	{"ODR_6_66_KHZ_HP", 0xA0, 6660, 0x0A, 0xA0, 5},
}

// LookupProfile finds a profile by its command name.
func LookupProfile(name string) (Profile, bool) {
	for _, p := range Profiles {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}

// DefaultProfileName is the rate both sensors run at unless reconfigured.
const DefaultProfileName = "ODR_416_HZ_HP"

// sleepSeconds converts a WAKE_UP_DUR sleep duration code to seconds at the
// given ODR. Codes occupy four bits; code n means n+1 blocks of 512 samples.
func sleepSeconds(odrHz float64, n int) float64 {
	if n < 0 {
		n = 0
	} else if n > 15 {
		n = 15
	}
	return float64(n+1) * 512 / odrHz
}

// sleepCode inverts sleepSeconds: the largest code whose duration does not
// exceed target. Low ODRs jump whole tens of seconds per code step, so the
// result clamps to the representable range instead of failing.
func sleepCode(odrHz, target float64) int {
	smin := sleepSeconds(odrHz, 0)
	smax := sleepSeconds(odrHz, 16)
	if smax < target {
		return 15
	}
	if target <= smin {
		return 1
	}
	n := int(odrHz / 512 * target)
	if sleepSeconds(odrHz, n) > target && n > 2 {
		n--
	}
	return n
}
