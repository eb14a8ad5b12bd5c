// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 MIT Haystack Observatory

// Package motion turns raw IMU sample windows into motion reports: taring
// while the instrument is stationary, offset correction, and zero-crossing
// detection that suppresses sensor noise near rest.
package motion

import (
	"fmt"
	"math"

	"github.com/mithaystack/afectl/pkg/ism330"
)

// Detection thresholds. A resting unit stays inside these; values chosen
// against observed noise floors, tighter settings produced false positives.
const (
	AccelThreshold = 0.016 // g
	GyroThreshold  = 0.20  // dps
)

// Default sample counts. Taring trades time for preciseness; the detection
// window trades latency for coverage.
const (
	TareAccelCount = 128
	TareGyroCount  = 64
	WindowSize     = 16
)

// maxRestingZ rejects tares taken while the unit was moving or upside
// down. A stationary unit reads close to 1 g on Z.
const maxRestingZ = 2.0

// Calibration holds per-axis tare offsets. An axis set is only applied
// once its Valid flag is set by a successful tare.
type Calibration struct {
	Accel      [3]float64
	Gyro       [3]float64
	AccelValid bool
	GyroValid  bool
}

// TareAccel averages a stationary window into accelerometer offsets. The Z
// average includes gravity; a Z above the resting limit invalidates the
// calibration and the previous offsets are discarded.
func (c *Calibration) TareAccel(samples []ism330.Sample) error {
	if len(samples) == 0 {
		return fmt.Errorf("tare: no samples")
	}

	avg := average(samples)
	if avg[2] > maxRestingZ {
		c.AccelValid = false
		return fmt.Errorf("tare: Z average %.3f g exceeds %.1f, unit not at rest", avg[2], maxRestingZ)
	}

	c.Accel = avg
	c.AccelValid = true
	return nil
}

// TareGyro averages a stationary window into gyro offsets. There is no
// rest check for the gyro; any bias is worth removing.
func (c *Calibration) TareGyro(samples []ism330.Sample) error {
	if len(samples) == 0 {
		return fmt.Errorf("tare: no samples")
	}
	c.Gyro = average(samples)
	c.GyroValid = true
	return nil
}

func average(samples []ism330.Sample) [3]float64 {
	var sum [3]float64
	for _, s := range samples {
		sum[0] += s.X
		sum[1] += s.Y
		sum[2] += s.Z
	}
	n := float64(len(samples))
	return [3]float64{sum[0] / n, sum[1] / n, sum[2] / n}
}

// ApplyAccel removes the tare offset from one accelerometer sample. The
// correction works on magnitudes with the sign restored afterwards, and
// only kicks in above the noise threshold so rest readings pass through.
// Gravity is taken out of Z before correcting and put back after.
func (c Calibration) ApplyAccel(s ism330.Sample) ism330.Sample {
	if !c.AccelValid {
		return s
	}
	out := s
	out.X = applyAxis(s.X, c.Accel[0], AccelThreshold)
	out.Y = applyAxis(s.Y, c.Accel[1], AccelThreshold)

	dev := math.Abs(s.Z) - 1.0
	if dev > AccelThreshold {
		z := math.Abs(dev - (math.Abs(c.Accel[2]) - 1.0))
		if s.Z < 0 && z > 0 {
			z = -z
		}
		out.Z = z + 1.0
	}
	return out
}

// ApplyGyro removes the tare offset from one gyro sample.
func (c Calibration) ApplyGyro(s ism330.Sample) ism330.Sample {
	if !c.GyroValid {
		return s
	}
	out := s
	out.X = applyAxis(s.X, c.Gyro[0], GyroThreshold)
	out.Y = applyAxis(s.Y, c.Gyro[1], GyroThreshold)
	out.Z = applyAxis(s.Z, c.Gyro[2], GyroThreshold)
	return out
}

func applyAxis(v, cal, thresh float64) float64 {
	abs := math.Abs(v)
	if abs <= thresh {
		return v
	}
	corrected := math.Abs(abs - math.Abs(cal))
	if v < 0 && corrected > 0 {
		corrected = -corrected
	}
	return corrected
}

// deviation is an axis's distance from its rest value: zero for X and Y,
// 1 g for accelerometer Z.
func accelDeviation(s ism330.Sample, axis int) float64 {
	switch axis {
	case 0:
		return math.Abs(s.X)
	case 1:
		return math.Abs(s.Y)
	default:
		return math.Abs(math.Abs(s.Z) - 1.0)
	}
}

func gyroDeviation(s ism330.Sample, axis int) float64 {
	switch axis {
	case 0:
		return math.Abs(s.X)
	case 1:
		return math.Abs(s.Y)
	default:
		return math.Abs(s.Z)
	}
}

// DetectAccel runs zero-crossing detection over a window of raw
// accelerometer samples. Samples are calibrated first. A motion is only
// recorded when an axis exceeds the threshold in two consecutive samples;
// the returned indices are the first sample of each confirmed pair. Within
// a sample that trips the threshold, axes still below it are snapped to
// their rest values to keep noise out of the emitted data.
func DetectAccel(samples []ism330.Sample, cal Calibration) (detects []int, out []ism330.Sample) {
	out = make([]ism330.Sample, len(samples))
	for i, s := range samples {
		out[i] = cal.ApplyAccel(s)
	}
	return detect(out, accelDeviation, AccelThreshold, true), out
}

// DetectGyro is DetectAccel for the gyro: all three axes rest at zero.
func DetectGyro(samples []ism330.Sample, cal Calibration) (detects []int, out []ism330.Sample) {
	out = make([]ism330.Sample, len(samples))
	for i, s := range samples {
		out[i] = cal.ApplyGyro(s)
	}
	return detect(out, gyroDeviation, GyroThreshold, false), out
}

func detect(samples []ism330.Sample, dev func(ism330.Sample, int) float64, thresh float64, accel bool) []int {
	var detects []int
	for i := range samples {
		exceeded := false
		for axis := 0; axis < 3; axis++ {
			if dev(samples[i], axis) > thresh {
				exceeded = true
				break
			}
		}
		if !exceeded {
			continue
		}

		confirmed := false
		for axis := 0; axis < 3; axis++ {
			if dev(samples[i], axis) <= thresh {
				snapAxis(&samples[i], axis, accel)
				continue
			}
			// an axis over threshold only counts when the next
			// sample agrees, filtering single-sample spikes
			if !confirmed && i+1 < len(samples) && dev(samples[i+1], axis) > thresh {
				detects = append(detects, i)
				confirmed = true
			}
		}
	}
	return detects
}

func snapAxis(s *ism330.Sample, axis int, accel bool) {
	rest := 0.0
	if accel && axis == 2 {
		rest = 1.0
	}
	switch axis {
	case 0:
		s.X = rest
	case 1:
		s.Y = rest
	case 2:
		s.Z = rest
	}
}

// Latest picks the sample a telemetry report should carry: the first
// sample of the most recent confirmed motion, or the newest sample when
// the window was quiet.
func Latest(detects []int, samples []ism330.Sample) (ism330.Sample, bool) {
	if len(samples) == 0 {
		return ism330.Sample{}, false
	}
	if len(detects) > 0 {
		return samples[detects[len(detects)-1]], true
	}
	return samples[len(samples)-1], true
}
