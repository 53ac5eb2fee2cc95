package sensors

import "time"

const (
	ak09916Addr     = 0x0c
	ak09916HXL      = 0x11
	ak09916ST2      = 0x18
	ak09916Cntl2    = 0x31
	ak09916Cntl3    = 0x32
	ak09916SRST     = 0x01
	ak09916SelfTest = 0x10
	ak09916Off      = 0x00
)

// Continuous modes 1-4 run at 10, 20, 50 and 100 Hz.
var ak09916Rates = [...]byte{0x02, 0x02, 0x02, 0x02, 0x04, 0x06, 0x08, 0x08}

// AK09916 is the AKM magnetometer found in the ICM-20948.
type AK09916 struct{}

func (AK09916) Name() string { return "ak09916" }
func (AK09916) Addr() byte   { return ak09916Addr }
func (AK09916) OutReg() byte { return ak09916HXL }
func (AK09916) OutLen() int  { return SampleBytes }

func (AK09916) Reset() SlaveWrite {
	return SlaveWrite{Reg: ak09916Cntl3, Value: ak09916SRST, Delay: 20 * time.Millisecond}
}

func (AK09916) Init() []SlaveWrite {
	return []SlaveWrite{{Reg: ak09916Cntl2, Value: ak09916Off}}
}

func (AK09916) PowerOff() SlaveWrite { return SlaveWrite{Reg: ak09916Cntl2, Value: ak09916Off} }

// PowerOn is implied by selecting a continuous mode.
func (AK09916) PowerOn() (SlaveWrite, bool) { return SlaveWrite{}, false }

func (AK09916) Rate(i int) SlaveWrite {
	return SlaveWrite{Reg: ak09916Cntl2, Value: ak09916Rates[clampRate(i)]}
}

// Scale is 0.15 µT per LSB.
func (AK09916) Scale() float32 { return 0.15 }

// StatusReg is ST2; reading it ends the measurement.
func (AK09916) StatusReg() (byte, bool) { return ak09916ST2, true }

func (AK09916) SelfTest() MagSelfTest {
	return MagSelfTest{
		Absolute: true,
		Samples:  SelfTestSamples,
		Enable:   []SlaveWrite{{Reg: ak09916Cntl2, Value: ak09916SelfTest, Delay: 20 * time.Millisecond}},
		Low:      [3]int32{-200, -200, -1000},
		High:     [3]int32{200, 200, 200},
	}
}

func (AK09916) RegisterMap() []RegisterInfo {
	return []RegisterInfo{
		{Address: "0x11", Name: "HXL", Description: "X output low byte", Access: "R"},
		{Address: "0x18", Name: "ST2", Description: "Status 2, read to release data", Access: "R",
			BitFields: []BitField{
				{Bits: "3", Name: "HOFL", Description: "Magnetic sensor overflow", Values: ""},
			}},
		{Address: "0x31", Name: "CNTL2", Description: "Operation mode", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "4:0", Name: "MODE", Description: "Mode", Values: "0=PowerDown, 1=Single, 2=10Hz, 4=20Hz, 6=50Hz, 8=100Hz, 16=SelfTest"},
			}},
		{Address: "0x32", Name: "CNTL3", Description: "Soft reset", Access: "RW", Default: "0x00"},
	}
}
