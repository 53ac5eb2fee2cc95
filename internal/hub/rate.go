package hub

import (
	"slices"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/sensorhub/internal/fifo"
	"github.com/relabs-tech/sensorhub/internal/imu"
	"github.com/relabs-tech/sensorhub/internal/sensors"
	"github.com/relabs-tech/sensorhub/internal/timesync"
)

// validRate reports whether rate is one s can run at.
func validRate(s imu.Sensor, rate sensors.Hz) bool {
	switch s {
	case imu.Accel, imu.Gyro:
		return slices.Contains(sensors.ImuRates[:], rate)
	case imu.Magn, imu.Press, imu.Temp:
		return slices.Contains(sensors.SHRates[:], rate)
	case imu.StepCounter:
		return slices.Contains(sensors.StepCounterRates[:], rate)
	}
	return rate == sensors.RateOnChange
}

// SetRate sets the delivery rate and maximum report latency of s. The
// sensor must be on, switching on right now, or switching on in a deferred
// request. A rate that cannot start at once is replayed after the power-up.
func (h *Hub) SetRate(s imu.Sensor, rate sensors.Hz, latency time.Duration) bool {
	return h.call(func() bool { return h.setRate(s, rate, latency) })
}

func (h *Hub) setRate(s imu.Sensor, rate sensors.Hz, latency time.Duration) bool {
	if !h.available(s) {
		return false
	}
	if !validRate(s, rate) {
		log.Warnf("hub: %s rate %d not supported", s, rate)
		return false
	}
	vs := &h.sensors[s]
	poweringUp := h.state.load() == StatePoweringUp && h.op == s
	if !vs.enabled && !poweringUp && !(h.pending.enable[s] && vs.pcfg.enable) {
		log.Warnf("hub: %s rate set while off", s)
		return false
	}
	if latency <= 0 {
		latency = sensors.NoLatency
	}

	if s == imu.StepDetector || s == imu.SignMotion {
		vs.rate[s] = rate
		vs.latency = latency
		h.sink.RateChanged(s, rate, latency)
		return true
	}

	if !h.state.claim(StateConfigChanging) {
		h.pending.rate[s] = true
		vs.pcfg.rate = rate
		vs.pcfg.latency = latency
		return true
	}
	h.op = s
	log.Debugf("hub: rate %s %.3f Hz latency %v", s, rate.Float(), latency)

	switch s {
	case imu.Accel, imu.Gyro:
		h.rateImu(s, rate, latency)
	case imu.Magn:
		h.rateMagn(rate, latency)
	case imu.Press, imu.Temp:
		h.rateBaro(s, rate, latency)
	case imu.StepCounter:
		vs.rate[s] = rate
		vs.latency = latency
		h.writeEmbedded(sensors.EmbStepCountDelta, sensors.StepCounterDelta(rate))
		h.submit()
	}
	return true
}

func (h *Hub) rateImu(s imu.Sensor, rate sensors.Hz, latency time.Duration) {
	vs := &h.sensors[s]
	vs.rate[s] = rate
	vs.latency = latency
	if s == imu.Gyro {
		if _, ok := h.opts.Bias[imu.Gyro].(accelAware); ok {
			acc := &h.sensors[imu.Accel]
			acc.rate[imu.Gyro] = rate
			acc.requireData[imu.Gyro] = true
		}
	}
	h.pushBatch(s)
	h.submitOrComplete(h.updateOdrs())
}

func (h *Hub) rateMagn(rate sensors.Hz, latency time.Duration) {
	mag := h.opts.Magnetometer
	acc, vs := &h.sensors[imu.Accel], &h.sensors[imu.Magn]

	acc.rate[imu.Magn] = rate
	acc.requireData[imu.Magn] = h.opts.Bias[imu.Magn] != nil
	vs.rate[imu.Magn] = rate
	vs.latency = latency
	h.pushBatch(imu.Magn)
	h.updateOdrs()

	i := shIndex(rate)
	vs.hwRate = sensors.SHRates[i]
	vs.discard = magDiscard
	vs.setSoftDecimator(fifo.SoftwareDecimator(h.plan.SlotRate(fifo.SlotDS3), vs.fifoDec, rate))

	if w, ok := mag.PowerOn(); ok {
		h.writeSlave(mag.Addr(), w, acc.hwRate)
	}
	h.writeSlave(mag.Addr(), mag.Rate(i), acc.hwRate)
	h.submit()
}

const magDiscard = 3

// rateBaro programs the shared barometer ODR to the faster of pressure and
// temperature. With a magnetometer in the FIFO the barometer is polled by
// timer and each sensor thins the timer ticks down to its own rate.
func (h *Hub) rateBaro(s imu.Sensor, rate sensors.Hz, latency time.Duration) {
	baro := h.opts.Barometer
	acc, vs := &h.sensors[imu.Accel], &h.sensors[s]
	o := otherBaro(s)
	ov := &h.sensors[o]

	vs.rate[s] = rate
	vs.latency = latency
	acc.rate[s] = rate
	eff := rate
	if ov.enabled && ov.rate[o] > eff {
		eff = ov.rate[o]
	}
	vs.hwRate = eff
	if ov.enabled && ov.rate[o] > 0 {
		ov.hwRate = eff
	}
	vs.discard = magDiscard
	h.pushBatch(s)
	h.updateOdrs()

	if h.opts.Magnetometer != nil {
		vs.setSoftDecimator(int(eff / rate))
		if ov.enabled && ov.rate[o] > 0 {
			ov.setSoftDecimator(int(eff / ov.rate[o]))
		}
		h.time.ResetBaro()
		h.armBaro(eff)
		if h.time.Mode() == timesync.Disabled {
			h.resetTimestampSync()
			h.selectSyncMode(timesync.SyncInterval)
		}
	} else {
		p := &h.sensors[imu.Press]
		slot := h.plan.SlotRate(fifo.SlotDS3)
		vs.setSoftDecimator(fifo.SoftwareDecimator(slot, p.fifoDec, rate))
		if ov.enabled && ov.rate[o] > 0 {
			ov.setSoftDecimator(fifo.SoftwareDecimator(slot, p.fifoDec, ov.rate[o]))
		}
	}

	h.writeSlave(baro.Addr(), baro.Rate(shIndex(eff)), acc.hwRate)
	h.submit()
}

func (h *Hub) armBaro(rate sensors.Hz) {
	h.baroPeriod = rate.Period()
	h.baroArmed = true
	resetTimer(h.baroTimer, h.baroPeriod)
}
