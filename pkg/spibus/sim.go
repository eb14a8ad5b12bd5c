// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 MIT Haystack Observatory

package spibus

// Sim is an in-memory register map implementing Port, used by driver tests.
// It models the shared register protocol: address byte with read bit,
// auto-increment on multi-byte transfers, address echo in the first byte of
// the read data.
type Sim struct {
	Regs   map[byte]byte
	Writes [][]byte // raw frames of every write transfer, in order
}

// NewSim creates a Sim with an empty register map.
func NewSim() *Sim {
	return &Sim{Regs: make(map[byte]byte)}
}

// Exchange implements Port.
func (s *Sim) Exchange(w, r []byte) error {
	if len(w) == 0 {
		return nil
	}

	if w[0]&readBit != 0 {
		base := w[0] & writeMask
		if r != nil {
			if len(r) > 0 {
				r[0] = 0 // address echo
			}
			for i := 1; i < len(r); i++ {
				r[i] = s.Regs[base+byte(i-1)]
			}
		}
		return nil
	}

	frame := make([]byte, len(w))
	copy(frame, w)
	s.Writes = append(s.Writes, frame)

	base := w[0]
	for i := 1; i < len(w); i++ {
		s.Regs[base+byte(i-1)] = w[i]
	}
	return nil
}

// LastWrite returns the most recent write frame, or nil.
func (s *Sim) LastWrite() []byte {
	if len(s.Writes) == 0 {
		return nil
	}
	return s.Writes[len(s.Writes)-1]
}

// Recorder is a Port that captures every outgoing frame without modeling
// registers. The port expander tests use it to inspect daisy-chain bursts.
type Recorder struct {
	Frames [][]byte
}

// Exchange implements Port.
func (rec *Recorder) Exchange(w, r []byte) error {
	frame := make([]byte, len(w))
	copy(frame, w)
	rec.Frames = append(rec.Frames, frame)
	return nil
}
