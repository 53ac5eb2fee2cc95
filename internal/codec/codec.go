// Package codec turns raw LSM6DSM and slave register bytes into physical
// units.
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/relabs-tech/sensorhub/internal/sensors"
)

// Int16LE decodes a little-endian signed 16-bit value.
func Int16LE(b []byte) int16 { return int16(binary.LittleEndian.Uint16(b)) }

// Uint24LE decodes a little-endian unsigned 24-bit value.
func Uint24LE(b []byte) uint32 { return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 }

// Triaxial decodes one 6-byte X/Y/Z sample.
func Triaxial(b []byte) (x, y, z int16) {
	return Int16LE(b[0:]), Int16LE(b[2:]), Int16LE(b[4:])
}

// FifoTimestamp decodes the timestamp word of the FIFO timestamp slot. The
// device stores TIMESTAMP2 in byte 1, TIMESTAMP1 in byte 0 and TIMESTAMP0 in
// byte 3; bytes 4..5 carry the step count.
func FifoTimestamp(b []byte) uint32 {
	return uint32(b[1])<<16 | uint32(b[0])<<8 | uint32(b[3])
}

// FifoSteps decodes the step counter carried in the timestamp slot.
func FifoSteps(b []byte) uint16 { return binary.LittleEndian.Uint16(b[4:]) }

// Temperature converts OUT_TEMP to °C.
func Temperature(raw int16) float32 {
	return sensors.TempOffset + float32(raw)/sensors.TempSensitivity
}

// AccelOffset encodes a raw accelerometer bias in X_OFS_USR format.
func AccelOffset(lsb int32) byte {
	v := float32(lsb) * sensors.AccelOffsetScale
	if v > sensors.AccelOffsetMax {
		v = sensors.AccelOffsetMax
	}
	if v < -sensors.AccelOffsetMax {
		v = -sensors.AccelOffsetMax
	}
	return byte(int8(v))
}

// Matrix maps device axes to host axes. Entries are -1, 0 or 1, row-major
// r11..r33; host X is the first column applied to device x, y, z.
type Matrix [9]int8

// Identity leaves axes untouched.
var Identity = Matrix{1, 0, 0, 0, 1, 0, 0, 0, 1}

// ParseMatrix validates a nine-entry rotation matrix from configuration. An
// empty slice yields Identity.
func ParseMatrix(v []int) (Matrix, error) {
	if len(v) == 0 {
		return Identity, nil
	}
	if len(v) != 9 {
		return Matrix{}, fmt.Errorf("rotation matrix needs 9 entries, got %d", len(v))
	}
	var m Matrix
	for i, e := range v {
		if e < -1 || e > 1 {
			return Matrix{}, fmt.Errorf("rotation entry %d = %d, want -1, 0 or 1", i, e)
		}
		m[i] = int8(e)
	}
	return m, nil
}

// Remap applies the matrix to one raw sample.
func (m Matrix) Remap(x, y, z int32) (rx, ry, rz int32) {
	rx = int32(m[0])*x + int32(m[3])*y + int32(m[6])*z
	ry = int32(m[1])*x + int32(m[4])*y + int32(m[7])*z
	rz = int32(m[2])*x + int32(m[5])*y + int32(m[8])*z
	return
}

// Scaled remaps and scales a raw sample.
func (m Matrix) Scaled(x, y, z int32, k float32) (fx, fy, fz float32) {
	rx, ry, rz := m.Remap(x, y, z)
	return float32(rx) * k, float32(ry) * k, float32(rz) * k
}

// Pressure decodes the 24-bit pressure word and scales it.
func Pressure(b []byte, k float32) float32 { return float32(Uint24LE(b)) * k }

// BaroTemperature decodes the 16-bit slave temperature and scales it.
func BaroTemperature(b []byte, k float32) float32 { return float32(Int16LE(b)) * k }
