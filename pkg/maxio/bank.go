// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 MIT Haystack Observatory

package maxio

import (
	"fmt"
	"strings"

	"github.com/mithaystack/afectl/pkg/spibus"
)

// Board defaults for the 2025 VLA deployment: external antenna on the misc
// expander, filtered RF path with amplifier enabled on the receive chains.
var (
	DefaultMisc = [PortCount]byte{1, 1, 1, 1, 0, 0, 0, 1, 1, 0}
	DefaultTX   = [PortCount]byte{0, 1, 1, 0, 0, 0, 0, 0, 0, 0}
	DefaultRX   = [PortCount]byte{0, 1, 1, 1, 0, 0, 0, 0, 0, 0}
)

// Bank groups the board's three expander chains: the single misc chip on
// the control bus and the TX/RX chains on the RF bus.
type Bank struct {
	Misc *Chain // 1 chip, shares the control bus with the sensors
	TX   *Chain // 2 chips
	RX   *Chain // 4 chips
}

// NewBank builds the board's expander topology. ctrl is the misc chip
// select, tx and rx are the chain chip selects on the second bus.
func NewBank(ctrl, tx, rx spibus.Port) *Bank {
	return &Bank{
		Misc: NewChain(ctrl, 1, DefaultMisc),
		TX:   NewChain(tx, 2, DefaultTX),
		RX:   NewChain(rx, 4, DefaultRX),
	}
}

// Init drives every expander to its board defaults.
func (b *Bank) Init() error {
	if err := b.Misc.ApplyDefaults(DefaultMisc); err != nil {
		return fmt.Errorf("misc expander: %w", err)
	}
	if err := b.TX.ApplyDefaults(DefaultTX); err != nil {
		return fmt.Errorf("tx chain: %w", err)
	}
	if err := b.RX.ApplyDefaults(DefaultRX); err != nil {
		return fmt.Errorf("rx chain: %w", err)
	}
	return nil
}

// ShadowString renders a chip's shadow state as comma separated bits, the
// form used in query responses.
func ShadowString(state [PortCount]byte) string {
	parts := make([]string, PortCount)
	for i, v := range state {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, ",")
}

// PackedString renders a chip's shadow state as a bare bit string with no
// separators, the form used in the aggregate dump.
func PackedString(state [PortCount]byte) string {
	var sb strings.Builder
	for _, v := range state {
		fmt.Fprintf(&sb, "%d", v)
	}
	return sb.String()
}
