// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 MIT Haystack Observatory

package telemetry

// ADC conversions for the board's analog housekeeping channels. The
// temperature sensors are analog parts read through the microcontroller's
// 16-bit ADC against a 3.3 V reference.

// adcRef is the ADC full-scale voltage.
const adcRef = 3.3

// Voltage converts a raw 16-bit ADC reading to volts.
func Voltage(raw uint16) float64 {
	return float64(raw) * adcRef / 65536
}

// SwitcherTemp converts the switching regulator's sensor reading to
// degrees C: 250 mV at 25 C, 9.5 mV per degree.
func SwitcherTemp(raw uint16) float64 {
	return 25 + (Voltage(raw)-0.250)/0.0095
}

// MagTemp converts the magnetometer board sensor reading to degrees C:
// 509 mV at 0 C, 6.45 mV per degree.
func MagTemp(raw uint16) float64 {
	return (Voltage(raw) - 0.509) / 0.00645
}
