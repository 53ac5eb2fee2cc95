// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"strconv"
)

// RegisterInfo describes one device register for the control UI.
type RegisterInfo struct {
	Address     string     `json:"address"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Access      string     `json:"access"`
	Default     string     `json:"default,omitempty"`
	BitFields   []BitField `json:"bit_fields,omitempty"`
}

// BitField describes a field inside a register.
type BitField struct {
	Bits        string `json:"bits"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Values      string `json:"values,omitempty"`
}

// Addr parses the hex address string.
func (r RegisterInfo) Addr() (byte, error) {
	v, err := strconv.ParseUint(r.Address, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("register %s: bad address %q: %w", r.Name, r.Address, err)
	}
	return byte(v), nil
}

// Writable reports whether the host may write the register.
func (r RegisterInfo) Writable() bool { return r.Access == "RW" || r.Access == "W" }

// FindRegister looks a register up by name or address string.
func FindRegister(regs []RegisterInfo, key string) (RegisterInfo, bool) {
	for _, r := range regs {
		if r.Name == key || r.Address == key {
			return r, true
		}
	}
	if v, err := strconv.ParseUint(key, 0, 8); err == nil {
		for _, r := range regs {
			if a, err := r.Addr(); err == nil && uint64(a) == v {
				return r, true
			}
		}
	}
	return RegisterInfo{}, false
}

// LSM6DSMRegisterMap returns metadata for the LSM6DSM registers the hub
// programs or reads.
func LSM6DSMRegisterMap() []RegisterInfo {
	return []RegisterInfo{
		// Embedded functions access
		{Address: "0x01", Name: "FUNC_CFG_ACCESS", Description: "Embedded functions configuration access", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7", Name: "FUNC_CFG_EN", Description: "Enable access to embedded registers", Values: "0=Disabled, 1=Enabled"},
			}},

		// FIFO configuration
		{Address: "0x06", Name: "FIFO_CTRL1", Description: "FIFO threshold low byte", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7:0", Name: "FTH", Description: "FIFO threshold [7:0], in 16-bit words", Values: "0-255"},
			}},
		{Address: "0x07", Name: "FIFO_CTRL2", Description: "FIFO threshold high bits and timestamp", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7", Name: "TIMER_PEDO_FIFO_EN", Description: "Timestamp and step counter as 4th FIFO data set", Values: "0=Disabled, 1=Enabled"},
				{Bits: "2:0", Name: "FTH", Description: "FIFO threshold [10:8]", Values: "0-7"},
			}},
		{Address: "0x08", Name: "FIFO_CTRL3", Description: "Gyro and accel FIFO decimation", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "5:3", Name: "DEC_FIFO_GYRO", Description: "Gyro decimation", Values: "0=Not in FIFO, 1=1, 2=2, 3=3, 4=4, 5=8, 6=16, 7=32"},
				{Bits: "2:0", Name: "DEC_FIFO_XL", Description: "Accel decimation", Values: "0=Not in FIFO, 1=1, 2=2, 3=3, 4=4, 5=8, 6=16, 7=32"},
			}},
		{Address: "0x09", Name: "FIFO_CTRL4", Description: "Third and fourth data set decimation", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "5:3", Name: "DEC_DS4_FIFO", Description: "Fourth data set (timestamp) decimation", Values: "0=Not in FIFO, 1..7=factor"},
				{Bits: "2:0", Name: "DEC_DS3_FIFO", Description: "Third data set (sensor hub) decimation", Values: "0=Not in FIFO, 1..7=factor"},
			}},
		{Address: "0x0A", Name: "FIFO_CTRL5", Description: "FIFO ODR and mode", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "6:3", Name: "ODR_FIFO", Description: "FIFO output data rate", Values: "6=416Hz"},
				{Bits: "2:0", Name: "FIFO_MODE", Description: "FIFO mode", Values: "0=Bypass, 1=FIFO, 6=Continuous"},
			}},
		{Address: "0x0B", Name: "DRDY_PULSE_CFG", Description: "Data-ready pulse configuration", Access: "RW", Default: "0x00"},

		// Interrupt routing
		{Address: "0x0D", Name: "INT1_CTRL", Description: "INT1 pin routing", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7", Name: "INT1_STEP_DETECTOR", Description: "Step detector on INT1", Values: "0=Disabled, 1=Enabled"},
				{Bits: "6", Name: "INT1_SIGN_MOT", Description: "Significant motion on INT1", Values: "0=Disabled, 1=Enabled"},
				{Bits: "5", Name: "INT1_FULL_FLAG", Description: "FIFO full on INT1", Values: "0=Disabled, 1=Enabled"},
				{Bits: "4", Name: "INT1_FIFO_OVR", Description: "FIFO overrun on INT1", Values: "0=Disabled, 1=Enabled"},
				{Bits: "3", Name: "INT1_FTH", Description: "FIFO threshold on INT1", Values: "0=Disabled, 1=Enabled"},
			}},
		{Address: "0x0E", Name: "INT2_CTRL", Description: "INT2 pin routing", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7", Name: "INT2_STEP_DELTA", Description: "Step counter delta time on INT2", Values: "0=Disabled, 1=Enabled"},
			}},
		{Address: "0x0F", Name: "WHO_AM_I", Description: "Device identification", Access: "R", Default: "0x6A"},

		// Control registers
		{Address: "0x10", Name: "CTRL1_XL", Description: "Accelerometer control", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7:4", Name: "ODR_XL", Description: "Accelerometer output data rate", Values: "0=Off, 1=12.5Hz, 2=26Hz, 3=52Hz, 4=104Hz, 5=208Hz, 6=416Hz"},
				{Bits: "3:2", Name: "FS_XL", Description: "Accelerometer full scale", Values: "0=±2g, 1=±16g, 2=±4g, 3=±8g"},
			}},
		{Address: "0x11", Name: "CTRL2_G", Description: "Gyroscope control", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7:4", Name: "ODR_G", Description: "Gyroscope output data rate", Values: "0=Off, 1=12.5Hz, 2=26Hz, 3=52Hz, 4=104Hz, 5=208Hz, 6=416Hz"},
				{Bits: "3:2", Name: "FS_G", Description: "Gyroscope full scale", Values: "0=250dps, 1=500dps, 2=1000dps, 3=2000dps"},
			}},
		{Address: "0x12", Name: "CTRL3_C", Description: "Common control 3", Access: "RW", Default: "0x04",
			BitFields: []BitField{
				{Bits: "6", Name: "BDU", Description: "Block data update", Values: "0=Continuous, 1=Until read"},
				{Bits: "2", Name: "IF_INC", Description: "Register address auto-increment", Values: "0=Disabled, 1=Enabled"},
				{Bits: "0", Name: "SW_RESET", Description: "Software reset", Values: "1=Reset"},
			}},
		{Address: "0x13", Name: "CTRL4_C", Description: "Common control 4", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "5", Name: "INT2_ON_INT1", Description: "All interrupts on INT1", Values: "0=Split, 1=INT1 only"},
				{Bits: "2", Name: "I2C_DISABLE", Description: "Disable I2C interface", Values: "0=Enabled, 1=SPI only"},
			}},
		{Address: "0x14", Name: "CTRL5_C", Description: "Self-test and rounding", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "3:2", Name: "ST_G", Description: "Gyroscope self-test", Values: "0=Normal, 1=Positive, 3=Negative"},
				{Bits: "1:0", Name: "ST_XL", Description: "Accelerometer self-test", Values: "0=Normal, 1=Positive, 2=Negative"},
			}},
		{Address: "0x19", Name: "CTRL10_C", Description: "Embedded functions control", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "5", Name: "TIMER_EN", Description: "Timestamp counter", Values: "0=Disabled, 1=Enabled"},
				{Bits: "4", Name: "PEDO_EN", Description: "Pedometer", Values: "0=Disabled, 1=Enabled"},
				{Bits: "2", Name: "FUNC_EN", Description: "Embedded functions and sensor hub", Values: "0=Disabled, 1=Enabled"},
				{Bits: "1", Name: "PEDO_RST_STEP", Description: "Reset step counter", Values: "1=Reset"},
				{Bits: "0", Name: "SIGN_MOTION_EN", Description: "Significant motion", Values: "0=Disabled, 1=Enabled"},
			}},
		{Address: "0x1A", Name: "MASTER_CONFIG", Description: "Sensor hub master configuration", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "3", Name: "PULL_UP_EN", Description: "Auxiliary I2C pull-up", Values: "0=Disabled, 1=Enabled"},
				{Bits: "0", Name: "MASTER_ON", Description: "Sensor hub I2C master", Values: "0=Off, 1=On"},
			}},

		// Output registers
		{Address: "0x1E", Name: "STATUS_REG", Description: "Data status", Access: "R"},
		{Address: "0x20", Name: "OUT_TEMP_L", Description: "Temperature low byte", Access: "R"},
		{Address: "0x21", Name: "OUT_TEMP_H", Description: "Temperature high byte", Access: "R"},
		{Address: "0x22", Name: "OUTX_L_G", Description: "Gyroscope X low byte", Access: "R"},
		{Address: "0x28", Name: "OUTX_L_XL", Description: "Accelerometer X low byte", Access: "R"},
		{Address: "0x2E", Name: "SENSORHUB1_REG", Description: "First sensor hub output byte", Access: "R"},

		// FIFO status and data
		{Address: "0x3A", Name: "FIFO_STATUS1", Description: "Unread FIFO words [7:0]", Access: "R"},
		{Address: "0x3B", Name: "FIFO_STATUS2", Description: "FIFO flags and unread words [10:8]", Access: "R",
			BitFields: []BitField{
				{Bits: "7", Name: "WaterM", Description: "Threshold reached", Values: ""},
				{Bits: "6", Name: "OVER_RUN", Description: "FIFO overrun", Values: ""},
				{Bits: "5", Name: "FIFO_FULL_SMART", Description: "FIFO will be full at next ODR", Values: ""},
				{Bits: "4", Name: "FIFO_EMPTY", Description: "FIFO empty", Values: ""},
				{Bits: "2:0", Name: "DIFF_FIFO", Description: "Unread words [10:8]", Values: ""},
			}},
		{Address: "0x3E", Name: "FIFO_DATA_OUT_L", Description: "FIFO data output low byte", Access: "R"},

		// Timestamp and pedometer
		{Address: "0x40", Name: "TIMESTAMP0_REG", Description: "Timestamp [7:0], 25us per LSB", Access: "R"},
		{Address: "0x41", Name: "TIMESTAMP1_REG", Description: "Timestamp [15:8]", Access: "R"},
		{Address: "0x42", Name: "TIMESTAMP2_REG", Description: "Timestamp [23:16]; write 0xAA to reset", Access: "RW"},
		{Address: "0x4B", Name: "STEP_COUNTER_L", Description: "Step counter low byte", Access: "R"},
		{Address: "0x4C", Name: "STEP_COUNTER_H", Description: "Step counter high byte", Access: "R"},
		{Address: "0x53", Name: "FUNC_SRC1", Description: "Embedded function sources", Access: "R",
			BitFields: []BitField{
				{Bits: "7", Name: "STEP_COUNT_DELTA_IA", Description: "Step counter delta time elapsed", Values: ""},
				{Bits: "6", Name: "SIGN_MOTION_IA", Description: "Significant motion detected", Values: ""},
				{Bits: "4", Name: "STEP_DETECTED", Description: "Step detected", Values: ""},
			}},
		{Address: "0x5C", Name: "WAKE_UP_DUR", Description: "Wake-up and timestamp resolution", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "4", Name: "TIMER_HR", Description: "Timestamp resolution", Values: "0=6.4ms, 1=25us"},
			}},

		// User offsets
		{Address: "0x73", Name: "X_OFS_USR", Description: "Accelerometer X user offset", Access: "RW", Default: "0x00"},
		{Address: "0x74", Name: "Y_OFS_USR", Description: "Accelerometer Y user offset", Access: "RW", Default: "0x00"},
		{Address: "0x75", Name: "Z_OFS_USR", Description: "Accelerometer Z user offset", Access: "RW", Default: "0x00"},
	}
}
