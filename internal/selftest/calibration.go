package selftest

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/sensorhub/internal/codec"
	"github.com/relabs-tech/sensorhub/internal/imu"
	"github.com/relabs-tech/sensorhub/internal/sensors"
)

type calStep int

const (
	calInit calStep = iota
	calRead
	calVerify
	calCompleted
)

// Calibration measures the zero-rate (gyro) or 1 g (accel, Z up) bias. The
// accelerometer bias is written into the X_OFS_USR..Z_OFS_USR registers;
// the gyroscope bias is returned for the hub to subtract in software.
type Calibration struct {
	sensor imu.Sensor
	report func(imu.Status, [3]int32)

	step calStep
	acc  averager
	bias [3]int32
}

// NewCalibration returns the calibration program for the accelerometer or
// the gyroscope.
func NewCalibration(s imu.Sensor, report func(imu.Status, [3]int32)) (*Calibration, error) {
	if s != imu.Accel && s != imu.Gyro {
		return nil, fmt.Errorf("selftest: no calibration program for %s", s)
	}
	return &Calibration{sensor: s, report: report}, nil
}

func (c *Calibration) Sensor() imu.Sensor { return c.sensor }

// Bias is the measured bias once the program has completed.
func (c *Calibration) Bias() [3]int32 { return c.bias }

func (c *Calibration) Advance(ops Ops) bool {
	for {
		switch c.step {
		case calInit:
			c.acc.reset()
			if c.sensor == imu.Accel {
				ops.MultiWrite(sensors.RegXOfsUsr, make([]byte, 3), offsetsDelay)
				ops.Write(sensors.RegCtrl1XL, sensors.Ctrl1XLBase|odr104, settleDelay)
			} else {
				ops.Write(sensors.RegCtrl2G, sensors.Ctrl2GBase|odr104, gyroWarmup)
			}
			c.step = calRead
			return true

		case calRead:
			if !c.acc.collect(sensors.CalibrationSamples) {
				reg := byte(sensors.RegOutXLG)
				if c.sensor == imu.Accel {
					reg = sensors.RegOutXLXL
				}
				c.acc.pending = ops.Read(reg, sensors.SampleBytes, readDelay)
				return true
			}
			c.bias = c.acc.mean()
			c.step = calVerify

		case calVerify:
			if c.sensor == imu.Accel {
				ops.Write(sensors.RegCtrl1XL, sensors.Ctrl1XLBase, 0)
				// Device at rest with Z up reads (0, 0, 1 g).
				c.bias = [3]int32{-c.bias[0], -c.bias[1], c.bias[2] - sensors.OneGInLSB}
				ofs := make([]byte, 3)
				for i, v := range c.bias {
					ofs[i] = codec.AccelOffset(v)
				}
				ops.MultiWrite(sensors.RegXOfsUsr, ofs, 0)
			} else {
				ops.Write(sensors.RegCtrl2G, sensors.Ctrl2GBase, 0)
			}
			log.Infof("selftest: %s calibration completed, offset %v LSB", c.sensor, c.bias)
			if c.report != nil {
				c.report(imu.StatusPass, c.bias)
			}
			c.step = calCompleted
			return true

		default:
			return false
		}
	}
}
