// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

// LSM6DSM register addresses.
const (
	RegFuncCfgAccess = 0x01
	RegFifoCtrl1     = 0x06
	RegFifoCtrl5     = 0x0a
	RegDrdyPulseCfg  = 0x0b
	RegInt1Ctrl      = 0x0d
	RegInt2Ctrl      = 0x0e
	RegWhoAmI        = 0x0f
	RegCtrl1XL       = 0x10
	RegCtrl2G        = 0x11
	RegCtrl3C        = 0x12
	RegCtrl4C        = 0x13
	RegCtrl5C        = 0x14
	RegCtrl10C       = 0x19
	RegMasterConfig  = 0x1a
	RegStatus        = 0x1e
	RegOutTempL      = 0x20
	RegOutXLG        = 0x22
	RegOutXLXL       = 0x28
	RegSensorHub1    = 0x2e
	RegFifoStatus1   = 0x3a
	RegFifoDataOutL  = 0x3e
	RegTimestamp0    = 0x40
	RegTimestamp2    = 0x42
	RegStepCounterL  = 0x4b
	RegFuncSrc       = 0x53
	RegWakeUpDur     = 0x5c
	RegXOfsUsr       = 0x73
)

// Embedded function registers, reachable while FUNC_CFG_ACCESS is set.
const (
	EmbSlv0Addr        = 0x02
	EmbSlv1Addr        = 0x05
	EmbSlv2Addr        = 0x08
	EmbSlv3Addr        = 0x0b
	EmbDataWriteSlv0   = 0x0e
	EmbStepCountDelta  = 0x15
	EmbReadOp          = 0x01
	EmbSlv1WriteOnce   = 0x20
	EmbSlv0SleepAddr   = 0x07
	EmbOnlyWriteConfig = 0x00
)

// WhoAmI is the identity byte of the LSM6DSM.
const WhoAmI = 0x6a

// Register bit values.
const (
	SWReset             = 0x01
	ResetPedometer      = 0x02
	EnableFuncCfgAccess = 0x80
	EnableDigitalFunc   = 0x04
	EnablePedometer     = 0x10
	EnableSignMotion    = 0x01
	MasterPullUp        = 0x08
	MasterOn            = 0x01
	EnableFifoTimestamp = 0x80
	TimestampReset      = 0xaa

	FifoBypassMode     = 0x00
	FifoContinuousMode = 0x36
	FifoFTHMask        = 0x07

	IntFifoThreshold  = 0x08
	IntStepDetector   = 0x80
	IntStepCounter    = 0x80
	IntSignMotion     = 0x40
	FuncSrcStepDetect = 0x10
	FuncSrcSignMotion = 0x40
	FuncSrcStepDelta  = 0x80

	FifoStatus2Empty      = 0x10
	FifoStatus2FullSmart  = 0x20
	FifoStatus2Overrun    = 0x40
	FifoStatus2ErrorFlags = 0x70

	AccelSelfTestPositive = 0x01
	GyroSelfTestPositive  = 0x04
)

// ODR register values for CTRL1_XL / CTRL2_G.
const (
	Odr12Hz  = 0x10
	Odr26Hz  = 0x20
	Odr52Hz  = 0x30
	Odr104Hz = 0x40
	Odr208Hz = 0x50
	Odr416Hz = 0x60
)

// Power-on values of the configurable registers. CTRL1_XL selects ±8 g,
// CTRL2_G ±2000 dps, CTRL3_C enables BDU and address auto-increment.
const (
	FuncCfgAccessBase = 0x00
	DrdyPulseCfgBase  = 0x00
	Int1CtrlBase      = 0x38
	Int2CtrlBase      = 0x00
	Ctrl1XLBase       = 0x0c
	Ctrl2GBase        = 0x0c
	Ctrl3CBase        = 0x44
	Ctrl4CBase        = 0x24
	Ctrl5CBase        = 0x00
	Ctrl10CBase       = 0x24
	MasterConfigBase  = 0x00
	WakeUpDurBase     = 0x10
)

// Sample sizes on the wire.
const (
	SampleBytes    = 6
	TimestampBytes = 3
	TempBytes      = 2
	FifoBytes      = 4096
	MaxWatermark   = 600
)

// Fixed-point conversion factors.
const (
	AccelScale       = 0.00239364 // m/s² per LSB at ±8 g
	GyroScale        = 0.00122173 // rad/s per LSB at ±2000 dps
	TempOffset       = 25.0
	TempSensitivity  = 256.0
	AccelOffsetScale = 0.2501 // LSB to X_OFS_USR digit at ±8 g
	AccelOffsetMax   = 127
	OneGInLSB        = 4098
)

// Self-test and calibration thresholds, in LSB.
const (
	AccelSelfTestLow  = 368
	AccelSelfTestHigh = 6967
	GyroSelfTestLow   = 2142
	GyroSelfTestHigh  = 10000

	SelfTestSamples     = 5
	SelfTestSlowSamples = 30
	CalibrationSamples  = 10
)

// DecimatorReg encodes a FIFO decimation factor into the 3-bit field of
// FIFO_CTRL3/4. Unsupported factors map to "not in FIFO".
func DecimatorReg(dec int) byte {
	switch dec {
	case 1:
		return 1
	case 2:
		return 2
	case 3:
		return 3
	case 4:
		return 4
	case 8:
		return 5
	case 16:
		return 6
	case 32:
		return 7
	}
	return 0
}
