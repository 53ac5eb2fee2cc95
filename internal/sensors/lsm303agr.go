package sensors

import "time"

const (
	lsm303agrAddr     = 0x1e
	lsm303agrCfgA     = 0x60
	lsm303agrCfgB     = 0x61
	lsm303agrCfgC     = 0x62
	lsm303agrOutX     = 0x68
	lsm303agrSoftRst  = 0x20
	lsm303agrOffCanc  = 0x02
	lsm303agrST       = 0x02
	lsm303agrOn       = 0x00
	lsm303agrOff      = 0x03
	lsm303agrCfgABase = 0x80 // temperature compensation
	lsm303agrCfgCBase = 0x10 // BDU
)

var lsm303agrRates = [...]byte{0x00, 0x00, 0x00, 0x00, 0x04, 0x08, 0x0c, 0x0c}

// LSM303AGR is the magnetometer half of the ST eCompass.
type LSM303AGR struct{}

func (LSM303AGR) Name() string { return "lsm303agr" }
func (LSM303AGR) Addr() byte   { return lsm303agrAddr }
func (LSM303AGR) OutReg() byte { return lsm303agrOutX }
func (LSM303AGR) OutLen() int  { return SampleBytes }

func (LSM303AGR) Reset() SlaveWrite {
	return SlaveWrite{Reg: lsm303agrCfgA, Value: lsm303agrSoftRst, Delay: 20 * time.Millisecond}
}

func (LSM303AGR) Init() []SlaveWrite {
	return []SlaveWrite{
		{Reg: lsm303agrCfgA, Value: lsm303agrCfgABase | lsm303agrOff},
		{Reg: lsm303agrCfgC, Value: lsm303agrCfgCBase},
	}
}

func (LSM303AGR) PowerOff() SlaveWrite {
	return SlaveWrite{Reg: lsm303agrCfgA, Value: lsm303agrCfgABase | lsm303agrOff}
}

// PowerOn shares CFG_REG_A with the rate.
func (LSM303AGR) PowerOn() (SlaveWrite, bool) { return SlaveWrite{}, false }

func (LSM303AGR) Rate(i int) SlaveWrite {
	return SlaveWrite{Reg: lsm303agrCfgA, Value: lsm303agrCfgABase | lsm303agrOn | lsm303agrRates[clampRate(i)]}
}

// Scale is 1.5 mgauss per LSB.
func (LSM303AGR) Scale() float32 { return 0.15 }

func (LSM303AGR) StatusReg() (byte, bool) { return 0, false }

func (m LSM303AGR) SelfTest() MagSelfTest {
	start := m.Rate(SelfTestRateIndex)
	start.Delay = 200 * time.Millisecond
	return MagSelfTest{
		Samples: SelfTestSlowSamples,
		Enable: []SlaveWrite{
			{Reg: lsm303agrCfgB, Value: lsm303agrOffCanc},
			{Reg: lsm303agrCfgC, Value: lsm303agrCfgCBase | lsm303agrST},
			start,
		},
		Disable: []SlaveWrite{{Reg: lsm303agrCfgC, Value: lsm303agrCfgCBase, Delay: 200 * time.Millisecond}},
		Cleanup: []SlaveWrite{{Reg: lsm303agrCfgB, Value: 0x00}},
		Low:     [3]int32{15, 15, 15},
		High:    [3]int32{500, 500, 500},
	}
}

func (LSM303AGR) RegisterMap() []RegisterInfo {
	return []RegisterInfo{
		{Address: "0x60", Name: "CFG_REG_A_M", Description: "Mode and ODR", Access: "RW", Default: "0x03",
			BitFields: []BitField{
				{Bits: "7", Name: "COMP_TEMP_EN", Description: "Temperature compensation", Values: "0=Disabled, 1=Enabled"},
				{Bits: "5", Name: "SOFT_RST", Description: "Soft reset", Values: "1=Reset"},
				{Bits: "3:2", Name: "ODR", Description: "Output data rate", Values: "0=10Hz, 1=20Hz, 2=50Hz, 3=100Hz"},
				{Bits: "1:0", Name: "MD", Description: "Mode", Values: "0=Continuous, 1=Single, 3=Idle"},
			}},
		{Address: "0x61", Name: "CFG_REG_B_M", Description: "Offset cancellation", Access: "RW", Default: "0x00"},
		{Address: "0x62", Name: "CFG_REG_C_M", Description: "BDU and self-test", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "4", Name: "BDU", Description: "Block data update", Values: "0=Continuous, 1=Until read"},
				{Bits: "1", Name: "Self_test", Description: "Self-test", Values: "0=Disabled, 1=Enabled"},
			}},
		{Address: "0x68", Name: "OUTX_L_REG_M", Description: "X output low byte", Access: "R"},
	}
}
