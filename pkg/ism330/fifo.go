// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 MIT Haystack Observatory

package ism330

import "fmt"

// FIFO_CTRL4 mode bits: continuous (overwrite oldest) plus the temperature
// batching rate.
const (
	fifoContinuous = 0x06

	tempRate1_6  = 0x10
	tempRate12_5 = 0x20
	tempRate52   = 0x30
)

// fifoWatermark is informational only; draining returns on any data present
// rather than waiting for the watermark.
const fifoWatermark = 16

// FIFO entry tags
const (
	tagGyro  = 0x01
	tagAccel = 0x02
	tagTemp  = 0x03
)

// drainSpinLimit bounds the status polls one Drain call may make. A
// healthy part batching at even the slowest rate completes any sane
// request well inside this many polls.
const drainSpinLimit = 100000

// Streams selects which FIFO streams a drain waits on. A stream that is
// not selected never holds up completion; its entries are still kept if
// they happen to arrive.
type Streams struct {
	Accel, Gyro, Temp bool
}

// tempRateBits picks the fastest temperature batching rate not above the
// accelerometer ODR. Temperature tops out at 52 Hz.
func tempRateBits(odrHz float64) byte {
	switch {
	case odrHz < 200:
		return tempRate1_6
	case odrHz < 2000:
		return tempRate12_5
	default:
		return tempRate52
	}
}

// ConfigureFIFO programs the batching FIFO for the active sensor rates.
// The FIFO batching rates live in their own register with their own
// encoding and must match what CTRL1_XL/CTRL2_G are set to.
func (d *Device) ConfigureFIFO() error {
	cfg := d.cfg
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := d.dev.WriteReg(regCtrl3C, 0x44); err != nil {
		return fmt.Errorf("ctrl3: %w", err)
	}
	if err := d.dev.WriteReg(regCtrl1XL, cfg.Accel.Code); err != nil {
		return fmt.Errorf("accel rate: %w", err)
	}
	if err := d.dev.WriteReg(regCtrl2G, cfg.Gyro.Code); err != nil {
		return fmt.Errorf("gyro rate: %w", err)
	}

	if err := d.dev.WriteReg(regFIFOCtrl1, fifoWatermark); err != nil {
		return fmt.Errorf("fifo watermark: %w", err)
	}
	// no stop at watermark, no compression, watermark msbs zero
	if err := d.dev.WriteReg(regFIFOCtrl2, 0x00); err != nil {
		return fmt.Errorf("fifo ctrl2: %w", err)
	}
	if err := d.dev.WriteReg(regFIFOCtrl3, byte(cfg.Accel.FIFOAcc)|byte(cfg.Gyro.FIFOGyr)); err != nil {
		return fmt.Errorf("fifo rates: %w", err)
	}

	d.fifoMode = fifoContinuous | tempRateBits(cfg.Accel.Hz)
	if err := d.dev.WriteReg(regFIFOCtrl4, d.fifoMode); err != nil {
		return fmt.Errorf("fifo mode: %w", err)
	}
	return nil
}

// ResetFIFO empties the FIFO by bouncing it through bypass mode.
func (d *Device) ResetFIFO() error {
	if err := d.dev.WriteReg(regFIFOCtrl4, 0x00); err != nil {
		return fmt.Errorf("fifo bypass: %w", err)
	}
	if err := d.dev.WriteReg(regFIFOCtrl4, d.fifoMode); err != nil {
		return fmt.Errorf("fifo mode: %w", err)
	}
	return nil
}

// FIFOStatus returns the number of unread entries and whether the FIFO
// reports any full/overrun condition. The count is ten bits across the two
// status registers.
func (d *Device) FIFOStatus() (count int, full bool, err error) {
	s1, err := d.dev.ReadReg(regFIFOStatus1)
	if err != nil {
		return 0, false, fmt.Errorf("fifo status: %w", err)
	}
	s2, err := d.dev.ReadReg(regFIFOStatus2)
	if err != nil {
		return 0, false, fmt.Errorf("fifo status: %w", err)
	}
	return int(s2&0x03)<<8 | int(s1), s2&0xE0 != 0, nil
}

// readEntry pops one FIFO entry: the tag register identifies the stream,
// then six data bytes.
func (d *Device) readEntry() (tag byte, data []byte, err error) {
	t, err := d.dev.ReadReg(regFIFOTag)
	if err != nil {
		return 0, nil, fmt.Errorf("fifo tag: %w", err)
	}
	data, err = d.dev.ReadRegs(regFIFOData, 6)
	if err != nil {
		return 0, nil, fmt.Errorf("fifo data: %w", err)
	}
	return t >> 3, data, nil
}

// Drain empties the FIFO and demultiplexes it into per-stream slices. It
// collects until each requested stream has delivered at least one entry,
// repeated rounds times. A stream that is not requested, or whose sensor
// is disabled, is treated as already complete so it never holds up the
// drain; the temperature stream batches far below the sensor rates.
// Entries beyond the requested rounds that arrive in the same status
// batch are kept.
func (d *Device) Drain(rounds int, want Streams) (accel, gyro []Sample, temps []float64, err error) {
	if err := d.ResetFIFO(); err != nil {
		return nil, nil, nil, err
	}

	needAccel := want.Accel && d.cfg.Accel.Hz > 0
	needGyro := want.Gyro && d.cfg.Gyro.Hz > 0
	needTemp := want.Temp && d.cfg.Accel.Hz > 0
	if !needAccel && !needGyro && !needTemp {
		return nil, nil, nil, nil
	}

	polls := 0
	gotAccel, gotGyro, gotTemp := !needAccel, !needGyro, !needTemp
	for round := 0; round < rounds; {
		polls++
		if polls > drainSpinLimit {
			return nil, nil, nil, fmt.Errorf("fifo drain stalled after %d status polls, %d of %d rounds complete", polls-1, round, rounds)
		}
		count, _, err := d.FIFOStatus()
		if err != nil {
			return nil, nil, nil, err
		}
		if count == 0 {
			continue
		}

		for i := 0; i < count; i++ {
			tag, data, err := d.readEntry()
			if err != nil {
				return nil, nil, nil, err
			}
			switch tag {
			case tagAccel:
				accel = append(accel, decodeAccel(data))
				gotAccel = true
			case tagGyro:
				gyro = append(gyro, decodeGyro(data))
				gotGyro = true
			case tagTemp:
				temps = append(temps, decodeTemp(data))
				gotTemp = true
			}
			if gotAccel && gotGyro && gotTemp {
				round++
				if round == rounds {
					break
				}
				gotAccel, gotGyro, gotTemp = !needAccel, !needGyro, !needTemp
			}
		}
	}
	return accel, gyro, temps, nil
}
