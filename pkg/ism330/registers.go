// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 MIT Haystack Observatory

package ism330

// Register map, names per the ST datasheet.
const (
	regFuncCfgAccess = 0x01
	regFIFOCtrl1     = 0x07
	regFIFOCtrl2     = 0x08
	regFIFOCtrl3     = 0x09
	regFIFOCtrl4     = 0x0A
	regINT1Ctrl      = 0x0D
	regCtrl1XL       = 0x10
	regCtrl2G        = 0x11
	regCtrl3C        = 0x12
	regCtrl4C        = 0x13
	regCtrl5C        = 0x14
	regCtrl6C        = 0x15
	regCtrl7G        = 0x16
	regWakeUpSrc     = 0x1B
	regStatus        = 0x1E
	regOutTempL      = 0x20
	regOutXLG        = 0x22
	regOutXLA        = 0x28
	regTapCfg0       = 0x56
	regTapCfg2       = 0x58
	regWakeUpThs     = 0x5B
	regWakeUpDur     = 0x5C
	regFIFOStatus1   = 0x3A
	regFIFOStatus2   = 0x3B
	regFIFOTag       = 0x78
	regFIFOData      = 0x79

	// embedded function page, reached through regFuncCfgAccess
	regEmbFuncEnA            = 0x04
	regEmbFuncInt1           = 0x0A
	regPageRW                = 0x17
	regEmbFuncStatusMainpage = 0x35
	regEmbFuncInitA          = 0x66
)

// Status register data-ready bits
const (
	statusAccelReady = 0x01
	statusGyroReady  = 0x02
	statusTempReady  = 0x04
)

// WritableRegs is the allow-list handed to spibus.NewProtectedDevice. The
// datasheet warns that writes to reserved registers can permanently damage
// the part, so anything not named here is refused before it reaches the bus.
var WritableRegs = []byte{
	regFuncCfgAccess,
	regFIFOCtrl1, regFIFOCtrl2, regFIFOCtrl3, regFIFOCtrl4,
	regINT1Ctrl,
	regCtrl1XL, regCtrl2G, regCtrl3C, regCtrl4C, regCtrl5C, regCtrl6C, regCtrl7G,
	regWakeUpSrc,
	regStatus,
	regOutTempL,
	regOutXLG,
	regOutXLA,
	regTapCfg0, regTapCfg2,
	regWakeUpThs, regWakeUpDur,
	regFIFOStatus1, regFIFOStatus2,
	regFIFOTag, regFIFOData,
	regEmbFuncEnA, regEmbFuncInt1, regPageRW,
	regEmbFuncStatusMainpage, regEmbFuncInitA,
}
