package hub

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/sensorhub/internal/imu"
	"github.com/relabs-tech/sensorhub/internal/sensors"
)

const signMotionOffDelay = 50 * time.Millisecond

// masterDep is the bit a sensor-hub sensor holds in masterDeps while it
// needs the I2C master.
func masterDep(s imu.Sensor) uint8 {
	switch s {
	case imu.Magn:
		return 1
	case imu.Press:
		return 2
	case imu.Temp:
		return 4
	}
	return 0
}

func pedoDep(s imu.Sensor) uint8 { return 1 << uint(s-imu.StepDetector) }

// SetPower switches s on or off. It returns false for a sensor this board
// does not have.
func (h *Hub) SetPower(s imu.Sensor, on bool) bool {
	return h.call(func() bool { return h.setPower(s, on) })
}

func (h *Hub) setPower(s imu.Sensor, on bool) bool {
	if !h.available(s) {
		return false
	}
	st := StatePoweringDown
	if on {
		st = StatePoweringUp
	}
	if !h.state.claim(st) {
		h.pending.enable[s] = true
		h.sensors[s].pcfg.enable = on
		return true
	}
	h.op = s
	log.Debugf("hub: power %s %t", s, on)

	switch s {
	case imu.Accel, imu.Gyro:
		h.powerImu(s, on)
	case imu.Magn:
		h.powerMagn(on)
	case imu.Press, imu.Temp:
		h.powerBaro(s, on)
	default:
		h.powerPedometer(s, on)
	}
	return true
}

// submitOrComplete submits the queued batch, or completes at once when
// nothing was queued.
func (h *Hub) submitOrComplete(queued bool) {
	if queued {
		h.submit()
		return
	}
	h.complete()
}

func (h *Hub) powerImu(s imu.Sensor, on bool) {
	if on {
		// The ODR follows the first rate request.
		h.complete()
		return
	}
	vs := &h.sensors[s]
	vs.rate[s] = 0
	vs.latency = sensors.NoLatency
	if s == imu.Gyro {
		acc := &h.sensors[imu.Accel]
		acc.rate[imu.Gyro] = 0
		acc.requireData[imu.Gyro] = false
	}
	h.pushBatch(s)
	h.submitOrComplete(h.updateOdrs())
}

// enableMaster records dep and switches the I2C master on for the first
// one. It reports whether a write was queued.
func (h *Hub) enableMaster(dep uint8) bool {
	first := h.masterDeps == 0
	h.masterDeps |= dep
	if !first {
		return false
	}
	h.masterReg |= sensors.MasterOn
	h.tr.QueueWrite(sensors.RegMasterConfig, h.masterReg, 0)
	return true
}

func (h *Hub) disableMaster(dep uint8) {
	h.masterDeps &^= dep
	if h.masterDeps == 0 {
		h.masterReg &^= sensors.MasterOn
		h.tr.QueueWrite(sensors.RegMasterConfig, h.masterReg, 0)
	}
}

func (h *Hub) powerMagn(on bool) {
	if on {
		h.submitOrComplete(h.enableMaster(masterDep(imu.Magn)))
		return
	}
	mag := h.opts.Magnetometer
	acc, vs := &h.sensors[imu.Accel], &h.sensors[imu.Magn]
	h.writeSlave(mag.Addr(), mag.PowerOff(), acc.hwRate)
	h.disableMaster(masterDep(imu.Magn))
	acc.rate[imu.Magn] = 0
	acc.requireData[imu.Magn] = false
	vs.rate[imu.Magn] = 0
	vs.latency = sensors.NoLatency
	vs.hwRate = 0
	h.pushBatch(imu.Magn)
	h.updateOdrs()
	h.submit()
}

func otherBaro(s imu.Sensor) imu.Sensor {
	if s == imu.Press {
		return imu.Temp
	}
	return imu.Press
}

func (h *Hub) powerBaro(s imu.Sensor, on bool) {
	if on {
		h.submitOrComplete(h.enableMaster(masterDep(s)))
		return
	}
	baro := h.opts.Barometer
	acc, vs := &h.sensors[imu.Accel], &h.sensors[s]
	o := otherBaro(s)
	ov := &h.sensors[o]
	keep := ov.enabled && ov.rate[o] > 0

	// Pressure and temperature share one ODR; the survivor keeps its own.
	w := baro.PowerOff()
	if keep {
		w = baro.Rate(shIndex(ov.rate[o]))
		ov.hwRate = ov.rate[o]
	}
	h.writeSlave(baro.Addr(), w, acc.hwRate)
	h.disableMaster(masterDep(s))

	if h.opts.Magnetometer != nil && h.baroArmed {
		stopTimer(h.baroTimer)
		h.baroArmed = false
		h.pending.baroTimer = false
		h.time.ResetBaro()
		if keep {
			ov.setSoftDecimator(1)
			h.armBaro(ov.rate[o])
		}
	}

	acc.rate[s] = 0
	vs.rate[s] = 0
	vs.latency = sensors.NoLatency
	vs.hwRate = 0
	h.pushBatch(s)
	h.updateOdrs()
	h.submit()
}

// pedoRoute is the interrupt bit and register a pedometer function fires
// on, with the shadow holding that register.
func (h *Hub) pedoRoute(s imu.Sensor) (bit, reg byte, shadow *byte) {
	switch s {
	case imu.StepCounter:
		return sensors.IntStepCounter, sensors.RegInt2Ctrl, &h.int2Reg
	case imu.SignMotion:
		return sensors.IntSignMotion, sensors.RegInt1Ctrl, &h.int1Reg
	}
	return sensors.IntStepDetector, sensors.RegInt1Ctrl, &h.int1Reg
}

func (h *Hub) powerPedometer(s imu.Sensor, on bool) {
	acc := &h.sensors[imu.Accel]
	bit, reg, shadow := h.pedoRoute(s)
	if on {
		h.pedoDeps |= pedoDep(s)
		h.embReg |= sensors.EnablePedometer
		if s == imu.SignMotion {
			h.embReg |= sensors.EnableSignMotion
		}
		if s == imu.StepCounter {
			h.readSteps = false
		}
		*shadow |= bit
		acc.rate[s] = sensors.PedometerRate
		h.updateOdrs()
		h.tr.QueueWrite(sensors.RegCtrl10C, h.embReg, 0)
		h.tr.QueueWrite(reg, *shadow, 0)
		h.submit()
		return
	}

	h.pedoDeps &^= pedoDep(s)
	*shadow &^= bit
	if s == imu.SignMotion {
		h.embReg &^= sensors.EnableSignMotion
	}
	if h.pedoDeps == 0 {
		h.embReg &^= sensors.EnablePedometer
	}
	acc.rate[s] = 0
	h.updateOdrs()
	var delay time.Duration
	if s == imu.SignMotion {
		delay = signMotionOffDelay
	}
	h.tr.QueueWrite(reg, *shadow, delay)
	h.tr.QueueWrite(sensors.RegCtrl10C, h.embReg, 0)
	h.submit()
}

func (h *Hub) pedometerEnabled() bool { return h.pedoDeps != 0 }
