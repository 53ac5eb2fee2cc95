package sensors

import "time"

const (
	lis3mdlAddr   = 0x1e
	lis3mdlCtrl1  = 0x20
	lis3mdlCtrl2  = 0x21
	lis3mdlCtrl3  = 0x22
	lis3mdlCtrl4  = 0x23
	lis3mdlCtrl5  = 0x24
	lis3mdlOutX   = 0x28
	lis3mdlSwRst  = 0x04
	lis3mdlST     = 0x01
	lis3mdlOn     = 0x00
	lis3mdlOff    = 0x03
	lis3mdlC1Base = 0x40 // X/Y high-performance
	lis3mdlC2Base = 0x00 // ±4 gauss
	lis3mdlC3Base = 0x00
	lis3mdlC4Base = 0x08 // Z high-performance
	lis3mdlC5Base = 0x40 // BDU
)

// ODR field for each SHRates entry; 104 Hz uses FAST_ODR.
var lis3mdlRates = [...]byte{0x04, 0x08, 0x0c, 0x10, 0x14, 0x18, 0x1c, 0x02}

// LIS3MDL is the ST three-axis magnetometer at ±4 gauss.
type LIS3MDL struct{}

func (LIS3MDL) Name() string { return "lis3mdl" }
func (LIS3MDL) Addr() byte   { return lis3mdlAddr }
func (LIS3MDL) OutReg() byte { return lis3mdlOutX }
func (LIS3MDL) OutLen() int  { return SampleBytes }

func (LIS3MDL) Reset() SlaveWrite {
	return SlaveWrite{Reg: lis3mdlCtrl2, Value: lis3mdlSwRst, Delay: 20 * time.Millisecond}
}

func (LIS3MDL) Init() []SlaveWrite {
	return []SlaveWrite{
		{Reg: lis3mdlCtrl1, Value: lis3mdlC1Base},
		{Reg: lis3mdlCtrl2, Value: lis3mdlC2Base},
		{Reg: lis3mdlCtrl3, Value: lis3mdlC3Base | lis3mdlOff},
		{Reg: lis3mdlCtrl4, Value: lis3mdlC4Base},
		{Reg: lis3mdlCtrl5, Value: lis3mdlC5Base},
	}
}

func (LIS3MDL) PowerOff() SlaveWrite {
	return SlaveWrite{Reg: lis3mdlCtrl3, Value: lis3mdlC3Base | lis3mdlOff}
}

func (LIS3MDL) PowerOn() (SlaveWrite, bool) {
	return SlaveWrite{Reg: lis3mdlCtrl3, Value: lis3mdlC3Base | lis3mdlOn}, true
}

func (LIS3MDL) Rate(i int) SlaveWrite {
	return SlaveWrite{Reg: lis3mdlCtrl1, Value: lis3mdlC1Base | lis3mdlRates[clampRate(i)]}
}

// Scale is 1/6842 gauss per LSB.
func (LIS3MDL) Scale() float32 { return 100.0 / 6842.0 }

func (LIS3MDL) StatusReg() (byte, bool) { return 0, false }

func (m LIS3MDL) SelfTest() MagSelfTest {
	on, _ := m.PowerOn()
	rate := m.Rate(SelfTestRateIndex)
	st := rate
	st.Value |= lis3mdlST
	return MagSelfTest{
		Samples: SelfTestSamples,
		Enable:  []SlaveWrite{on, st},
		Disable: []SlaveWrite{rate},
		// 1-3 gauss on X/Y and 0.1-1 gauss on Z at 6842 LSB/gauss.
		Low:  [3]int32{6842, 6842, 684},
		High: [3]int32{20526, 20526, 6842},
	}
}

func (LIS3MDL) RegisterMap() []RegisterInfo {
	return []RegisterInfo{
		{Address: "0x20", Name: "CTRL_REG1", Description: "Operating mode and ODR", Access: "RW", Default: "0x10",
			BitFields: []BitField{
				{Bits: "6:5", Name: "OM", Description: "X/Y operating mode", Values: "0=LP, 1=MP, 2=HP, 3=UHP"},
				{Bits: "4:2", Name: "DO", Description: "Output data rate", Values: "0=0.625Hz ... 7=80Hz"},
				{Bits: "1", Name: "FAST_ODR", Description: "ODR above 80 Hz", Values: "0=Disabled, 1=Enabled"},
				{Bits: "0", Name: "ST", Description: "Self-test", Values: "0=Disabled, 1=Enabled"},
			}},
		{Address: "0x21", Name: "CTRL_REG2", Description: "Full scale and reset", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "6:5", Name: "FS", Description: "Full scale", Values: "0=±4G, 1=±8G, 2=±12G, 3=±16G"},
				{Bits: "2", Name: "SOFT_RST", Description: "Soft reset", Values: "1=Reset"},
			}},
		{Address: "0x22", Name: "CTRL_REG3", Description: "System operating mode", Access: "RW", Default: "0x03",
			BitFields: []BitField{
				{Bits: "1:0", Name: "MD", Description: "Mode", Values: "0=Continuous, 1=Single, 3=Power-down"},
			}},
		{Address: "0x23", Name: "CTRL_REG4", Description: "Z-axis mode", Access: "RW", Default: "0x00"},
		{Address: "0x24", Name: "CTRL_REG5", Description: "Block data update", Access: "RW", Default: "0x00"},
		{Address: "0x28", Name: "OUT_X_L", Description: "X output low byte", Access: "R"},
	}
}
