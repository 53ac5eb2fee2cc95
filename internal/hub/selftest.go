package hub

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/sensorhub/internal/codec"
	"github.com/relabs-tech/sensorhub/internal/imu"
	"github.com/relabs-tech/sensorhub/internal/selftest"
	"github.com/relabs-tech/sensorhub/internal/sensors"
)

// programRunner is a self-test or calibration program in progress.
type programRunner = selftest.Program

// busOps lets the selftest programs queue onto the hub's batch.
type busOps struct{ h *Hub }

func (o busOps) Write(reg, value byte, delay time.Duration) {
	o.h.tr.QueueWrite(reg, value, delay)
}

func (o busOps) MultiWrite(reg byte, data []byte, delay time.Duration) {
	o.h.tr.QueueMultiWrite(reg, data, delay)
}

func (o busOps) Read(reg byte, n int, delay time.Duration) []byte {
	return o.h.tr.QueueRead(reg, n, delay)
}

func (o busOps) WriteSlave(w sensors.SlaveWrite) {
	o.h.writeSlave(o.h.opts.Magnetometer.Addr(), w, sensors.SelfTestRate)
}

func (o busOps) SetMaster(on bool, delay time.Duration) {
	h := o.h
	if on {
		h.masterReg |= sensors.MasterOn
	} else if h.masterDeps == 0 {
		h.masterReg &^= sensors.MasterOn
	}
	h.tr.QueueWrite(sensors.RegMasterConfig, h.masterReg, delay)
}

// quiet reports whether s can be tested: the target and the accel/gyro
// pair must be fully powered down.
func (h *Hub) quiet(s imu.Sensor) bool {
	acc, gyr, vs := &h.sensors[imu.Accel], &h.sensors[imu.Gyro], &h.sensors[s]
	return !vs.enabled && vs.hwRate == 0 &&
		!acc.enabled && acc.hwRate == 0 &&
		!gyr.enabled && gyr.hwRate == 0
}

// RunSelfTest starts the self-test of the accelerometer, gyroscope or
// magnetometer. A busy device reports imu.StatusBusy and returns false.
func (h *Hub) RunSelfTest(s imu.Sensor) bool {
	return h.call(func() bool { return h.runSelfTest(s) })
}

func (h *Hub) runSelfTest(s imu.Sensor) bool {
	if !h.available(s) {
		return false
	}
	var t selftest.Target
	absolute := false
	switch s {
	case imu.Accel:
		t = selftest.AccelTarget()
	case imu.Gyro:
		t = selftest.GyroTarget()
	case imu.Magn:
		t = selftest.MagTarget(h.opts.Magnetometer)
		absolute = h.opts.Magnetometer.SelfTest().Absolute
	default:
		return false
	}
	busy := func() bool {
		log.Warnf("hub: %s self-test refused, device busy", s)
		h.sink.SelfTestResult(imu.SelfTestResult{Sensor: s, Status: imu.StatusBusy})
		return false
	}
	if !h.state.claim(StateSelfTest) {
		return busy()
	}
	if !h.quiet(s) {
		h.restore()
		return busy()
	}
	h.op = s
	h.program = selftest.New(t, absolute, func(st imu.Status) {
		h.sink.SelfTestResult(imu.SelfTestResult{Sensor: s, Status: st})
	})
	h.advanceProgram()
	return true
}

// RunCalibration measures the bias of the accelerometer or gyroscope. A
// busy device reports imu.StatusBusy and returns false.
func (h *Hub) RunCalibration(s imu.Sensor) bool {
	return h.call(func() bool { return h.runCalibration(s) })
}

func (h *Hub) runCalibration(s imu.Sensor) bool {
	if s != imu.Accel && s != imu.Gyro {
		return false
	}
	busy := func() bool {
		log.Warnf("hub: %s calibration refused, device busy", s)
		h.sink.CalibrationResult(imu.CalibrationResult{Sensor: s, Status: imu.StatusBusy})
		return false
	}
	if !h.state.claim(StateCalibration) {
		return busy()
	}
	if !h.quiet(s) {
		h.restore()
		return busy()
	}
	c, err := selftest.NewCalibration(s, func(st imu.Status, bias [3]int32) {
		if s == imu.Gyro {
			h.gyroCal = bias
		} else {
			h.accelCal = bias
		}
		h.sink.CalibrationResult(imu.CalibrationResult{Sensor: s, Status: st, Bias: bias})
	})
	if err != nil {
		log.Errorf("hub: %v", err)
		h.restore()
		return false
	}
	h.op = s
	h.program = c
	h.advanceProgram()
	return true
}

func (h *Hub) advanceProgram() {
	if h.program != nil && h.program.Advance(busOps{h}) {
		h.submit()
		return
	}
	h.program = nil
	h.processPending()
}

// SetCalibrationData restores a stored calibration. The accelerometer
// offset goes into the device registers, the rest is applied in software.
func (h *Hub) SetCalibrationData(s imu.Sensor, d imu.CalibrationData) bool {
	return h.call(func() bool {
		if !h.available(s) {
			return false
		}
		switch s {
		case imu.Accel, imu.Gyro, imu.Magn:
		default:
			return false
		}
		if est := h.opts.Bias[s]; est != nil {
			est.SetBias(d.SW)
		}
		switch s {
		case imu.Accel:
			h.accelCal = d.HW
			h.storeAccelCalibration()
		case imu.Gyro:
			h.gyroCal = d.HW
		}
		return true
	})
}

// storeAccelCalibration writes the accelerometer offsets, or defers the
// write. It reports whether the write was started.
func (h *Hub) storeAccelCalibration() bool {
	if !h.state.claim(StateStoreCalibration) {
		h.pending.storeCalib = true
		return false
	}
	ofs := make([]byte, 3)
	for i, v := range h.accelCal {
		ofs[i] = codec.AccelOffset(v)
	}
	h.tr.QueueMultiWrite(sensors.RegXOfsUsr, ofs, 0)
	h.submit()
	return true
}
