package sensors

import (
	"fmt"
	"strings"
	"time"
)

// SlaveWrite is one register write forwarded to a sensor-hub slave.
type SlaveWrite struct {
	Reg   byte
	Value byte
	Delay time.Duration
}

// Slave is an I2C device reached through the LSM6DSM sensor hub.
type Slave interface {
	Name() string
	// Addr is the 7-bit I2C address.
	Addr() byte
	OutReg() byte
	OutLen() int
	Reset() SlaveWrite
	Init() []SlaveWrite
	PowerOff() SlaveWrite
	RegisterMap() []RegisterInfo
}

// MagSelfTest is the self-test program of a magnetometer.
type MagSelfTest struct {
	// Absolute selects a single enabled-only measurement checked against
	// absolute limits instead of an enabled/disabled gap.
	Absolute bool
	Samples  int
	Enable   []SlaveWrite
	Disable  []SlaveWrite
	Cleanup  []SlaveWrite
	Low      [3]int32
	High     [3]int32
}

// Magnetometer is a three-axis sensor-hub slave.
type Magnetometer interface {
	Slave
	// PowerOn returns the write that leaves power down when power and rate
	// live in different registers.
	PowerOn() (SlaveWrite, bool)
	// Rate returns the write selecting SHRates[i], powered on.
	Rate(i int) SlaveWrite
	// Scale converts LSB to µT.
	Scale() float32
	// StatusReg is a register that must be read after the output data to
	// release the next measurement.
	StatusReg() (byte, bool)
	SelfTest() MagSelfTest
}

// Barometer is a pressure/temperature sensor-hub slave.
type Barometer interface {
	Slave
	// Rate returns the write selecting SHRates[i].
	Rate(i int) SlaveWrite
	// PressureScale converts the 24-bit raw value to hPa.
	PressureScale() float32
	// TemperatureScale converts the 16-bit raw value to °C.
	TemperatureScale() float32
	PressLen() int
}

// NewMagnetometer returns the magnetometer implementation for name, or nil
// for "" and "none".
func NewMagnetometer(name string) (Magnetometer, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return nil, nil
	case "lis3mdl":
		return LIS3MDL{}, nil
	case "lsm303agr":
		return LSM303AGR{}, nil
	case "ak09916":
		return AK09916{}, nil
	}
	return nil, fmt.Errorf("unknown magnetometer %q", name)
}

// NewBarometer returns the barometer implementation for name, or nil for ""
// and "none".
func NewBarometer(name string) (Barometer, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return nil, nil
	case "lps22hb":
		return LPS22HB{}, nil
	}
	return nil, fmt.Errorf("unknown barometer %q", name)
}

func clampRate(i int) int {
	if i < 0 {
		return 0
	}
	if i >= len(SHRates) {
		return len(SHRates) - 1
	}
	return i
}
