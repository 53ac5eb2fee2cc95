package sensors

import "time"

const (
	lps22hbAddr      = 0x5c
	lps22hbCtrl1     = 0x10
	lps22hbCtrl2     = 0x11
	lps22hbPressXL   = 0x28
	lps22hbSwReset   = 0x04
	lps22hbCtrl1Base = 0x02 // BDU
	lps22hbCtrl2Base = 0x10 // IF_ADD_INC
	lps22hbOff       = 0x00
	lps22hbPressLen  = 3
	lps22hbTempLen   = 2
)

// ODR field per SHRates entry: 1, 10, 25, 50 and 75 Hz.
var lps22hbRates = [...]byte{0x10, 0x20, 0x20, 0x20, 0x30, 0x40, 0x50, 0x50}

// LPS22HB is the ST MEMS pressure sensor. Pressure and temperature share one
// output rate.
type LPS22HB struct{}

func (LPS22HB) Name() string { return "lps22hb" }
func (LPS22HB) Addr() byte   { return lps22hbAddr }
func (LPS22HB) OutReg() byte { return lps22hbPressXL }
func (LPS22HB) OutLen() int  { return lps22hbPressLen + lps22hbTempLen }
func (LPS22HB) PressLen() int {
	return lps22hbPressLen
}

func (LPS22HB) Reset() SlaveWrite {
	return SlaveWrite{Reg: lps22hbCtrl2, Value: lps22hbSwReset, Delay: 20 * time.Millisecond}
}

func (LPS22HB) Init() []SlaveWrite {
	return []SlaveWrite{
		{Reg: lps22hbCtrl1, Value: lps22hbCtrl1Base | lps22hbOff},
		{Reg: lps22hbCtrl2, Value: lps22hbCtrl2Base},
	}
}

func (LPS22HB) PowerOff() SlaveWrite {
	return SlaveWrite{Reg: lps22hbCtrl1, Value: lps22hbCtrl1Base | lps22hbOff}
}

func (LPS22HB) Rate(i int) SlaveWrite {
	return SlaveWrite{Reg: lps22hbCtrl1, Value: lps22hbCtrl1Base | lps22hbRates[clampRate(i)]}
}

func (LPS22HB) PressureScale() float32    { return 1.0 / 4096.0 }
func (LPS22HB) TemperatureScale() float32 { return 0.01 }

func (LPS22HB) RegisterMap() []RegisterInfo {
	return []RegisterInfo{
		{Address: "0x10", Name: "CTRL_REG1", Description: "ODR and filtering", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "6:4", Name: "ODR", Description: "Output data rate", Values: "0=Power-down, 1=1Hz, 2=10Hz, 3=25Hz, 4=50Hz, 5=75Hz"},
				{Bits: "1", Name: "BDU", Description: "Block data update", Values: "0=Continuous, 1=Until read"},
			}},
		{Address: "0x11", Name: "CTRL_REG2", Description: "Boot, reset and auto-increment", Access: "RW", Default: "0x10",
			BitFields: []BitField{
				{Bits: "4", Name: "IF_ADD_INC", Description: "Register auto-increment", Values: "0=Disabled, 1=Enabled"},
				{Bits: "2", Name: "SWRESET", Description: "Software reset", Values: "1=Reset"},
			}},
		{Address: "0x28", Name: "PRESS_OUT_XL", Description: "Pressure output low byte", Access: "R"},
		{Address: "0x2B", Name: "TEMP_OUT_L", Description: "Temperature output low byte", Access: "R"},
	}
}
