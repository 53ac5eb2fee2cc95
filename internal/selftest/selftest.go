// Package selftest holds the sample-average-verify programs that run on the
// hub's serialized bus: the gap self-test, the absolute self-test and the
// bias calibration. Each call to Advance queues exactly one transport batch
// through Ops and the hub submits it.
package selftest

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/sensorhub/internal/codec"
	"github.com/relabs-tech/sensorhub/internal/imu"
	"github.com/relabs-tech/sensorhub/internal/sensors"
)

// Ops queues register accesses into the batch the hub submits after Advance.
type Ops interface {
	Write(reg, value byte, delay time.Duration)
	MultiWrite(reg byte, data []byte, delay time.Duration)
	// Read returns the buffer the data lands in once the batch completes.
	Read(reg byte, n int, delay time.Duration) []byte
	// WriteSlave forwards a write to the sensor-hub slave with the
	// accelerometer running at 104 Hz.
	WriteSlave(w sensors.SlaveWrite)
	// SetMaster switches the I2C master on or off.
	SetMaster(on bool, delay time.Duration)
}

// Program is a multi-batch routine. Advance queues the next batch and
// returns true, or returns false once the last batch has completed.
type Program interface {
	Sensor() imu.Sensor
	Advance(ops Ops) bool
}

// Target describes what the self-test programs drive for one sensor.
type Target struct {
	Sensor    imu.Sensor
	OutReg    byte
	ReadDelay time.Duration
	Samples   int
	Low, High [3]int32

	Enable  func(ops Ops)
	Disable func(ops Ops)
	Cleanup func(ops Ops)
}

const (
	readDelay    = 10 * time.Millisecond
	slaveDelay   = 20 * time.Millisecond
	settleDelay  = 30 * time.Millisecond
	gyroWarmup   = 100 * time.Millisecond
	offsetsDelay = 500 * time.Microsecond
)

var odr104 = byte(sensors.Odr104Hz)

// AccelTarget is the accelerometer gap self-test with positive sign
// stimulus.
func AccelTarget() Target {
	return Target{
		Sensor:    imu.Accel,
		OutReg:    sensors.RegOutXLXL,
		ReadDelay: readDelay,
		Samples:   sensors.SelfTestSamples,
		Low:       splat(sensors.AccelSelfTestLow),
		High:      splat(sensors.AccelSelfTestHigh),
		Enable: func(ops Ops) {
			ops.Write(sensors.RegCtrl5C, sensors.Ctrl5CBase|sensors.AccelSelfTestPositive, 0)
			ops.Write(sensors.RegCtrl1XL, sensors.Ctrl1XLBase|odr104, settleDelay)
		},
		Disable: func(ops Ops) {
			ops.Write(sensors.RegCtrl5C, sensors.Ctrl5CBase, settleDelay)
		},
		Cleanup: func(ops Ops) {
			ops.Write(sensors.RegCtrl1XL, sensors.Ctrl1XLBase, 0)
		},
	}
}

// GyroTarget is the gyroscope gap self-test.
func GyroTarget() Target {
	return Target{
		Sensor:    imu.Gyro,
		OutReg:    sensors.RegOutXLG,
		ReadDelay: readDelay,
		Samples:   sensors.SelfTestSamples,
		Low:       splat(sensors.GyroSelfTestLow),
		High:      splat(sensors.GyroSelfTestHigh),
		Enable: func(ops Ops) {
			ops.Write(sensors.RegCtrl5C, sensors.Ctrl5CBase|sensors.GyroSelfTestPositive, 0)
			ops.Write(sensors.RegCtrl2G, sensors.Ctrl2GBase|odr104, settleDelay)
		},
		Disable: func(ops Ops) {
			ops.Write(sensors.RegCtrl5C, sensors.Ctrl5CBase, settleDelay)
		},
		Cleanup: func(ops Ops) {
			ops.Write(sensors.RegCtrl2G, sensors.Ctrl2GBase, 0)
		},
	}
}

// MagTarget is the magnetometer self-test behind the sensor hub. The
// accelerometer clocks the hub, so it runs at 104 Hz for the duration.
func MagTarget(mag sensors.Magnetometer) Target {
	st := mag.SelfTest()
	writes := func(ops Ops, ws []sensors.SlaveWrite) {
		for _, w := range ws {
			ops.WriteSlave(w)
		}
	}
	return Target{
		Sensor:    imu.Magn,
		OutReg:    sensors.RegSensorHub1,
		ReadDelay: slaveDelay,
		Samples:   st.Samples,
		Low:       st.Low,
		High:      st.High,
		Enable: func(ops Ops) {
			ops.Write(sensors.RegCtrl1XL, sensors.Ctrl1XLBase|odr104, 0)
			ops.SetMaster(true, slaveDelay)
			writes(ops, st.Enable)
		},
		Disable: func(ops Ops) {
			writes(ops, st.Disable)
		},
		Cleanup: func(ops Ops) {
			writes(ops, st.Cleanup)
			ops.WriteSlave(mag.PowerOff())
			ops.SetMaster(false, 0)
			ops.Write(sensors.RegCtrl1XL, sensors.Ctrl1XLBase, 0)
		},
	}
}

// New returns the self-test program for target: the absolute test when the
// magnetometer calls for it, the gap test otherwise.
func New(t Target, absolute bool, report func(imu.Status)) Program {
	if absolute {
		return &AbsoluteTest{t: t, report: report}
	}
	return &GapTest{t: t, report: report}
}

func splat(v int32) [3]int32 { return [3]int32{v, v, v} }

// averager sums triaxial samples read one batch at a time.
type averager struct {
	sum     [3]int32
	n       int
	pending []byte
}

func (a *averager) reset() { *a = averager{} }

// collect folds in the sample read by the previous batch, if any, and
// reports whether want samples are in.
func (a *averager) collect(want int) bool {
	if a.pending != nil {
		x, y, z := codec.Triaxial(a.pending)
		a.sum[0] += int32(x)
		a.sum[1] += int32(y)
		a.sum[2] += int32(z)
		a.n++
		a.pending = nil
	}
	return a.n >= want
}

func (a *averager) mean() [3]int32 {
	if a.n == 0 {
		return [3]int32{}
	}
	return [3]int32{a.sum[0] / int32(a.n), a.sum[1] / int32(a.n), a.sum[2] / int32(a.n)}
}

// verify checks every axis of v against the limits and logs the ones out of
// range.
func verify(name string, s imu.Sensor, v, low, high [3]int32) bool {
	pass := true
	for i := range v {
		if v[i] < low[i] || v[i] > high[i] {
			pass = false
			log.Errorf("selftest: %s %s axis-%d out of range: %d LSB not in [%d, %d]", name, s, i, v[i], low[i], high[i])
		}
	}
	return pass
}

func abs(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
