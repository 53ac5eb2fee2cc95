package hub

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/sensorhub/internal/fifo"
	"github.com/relabs-tech/sensorhub/internal/imu"
	"github.com/relabs-tech/sensorhub/internal/sensors"
	"github.com/relabs-tech/sensorhub/internal/timesync"
)

const (
	fifoModeDelay = 25 * time.Microsecond
	odrDelay      = 30 * time.Microsecond
)

// slotOwner is the sensor whose samples land in slot.
func (h *Hub) slotOwner(slot int) imu.Sensor {
	switch slot {
	case fifo.SlotGyro:
		return imu.Gyro
	case fifo.SlotAccel:
		return imu.Accel
	case fifo.SlotDS3:
		return h.ds3
	}
	return noSensor
}

// hwRateFor is the device ODR serving all of rates, or 0 when none is set.
func hwRateFor(rates []sensors.Hz) sensors.Hz {
	var r sensors.Hz
	for _, v := range rates {
		if v != sensors.RateOnChange {
			r = max(r, v)
		}
	}
	if r > 0 && r < sensors.MinAccelRate {
		r = sensors.MinAccelRate
	}
	return r
}

// slotRequests collects what each FIFO data set is asked to carry.
func (h *Hub) slotRequests() [fifo.NumSlots]fifo.SlotRequest {
	var req [fifo.NumSlots]fifo.SlotRequest
	acc, gyr := &h.sensors[imu.Accel], &h.sensors[imu.Gyro]

	req[fifo.SlotGyro] = fifo.SlotRequest{Assigned: true, Rate: gyr.rate[imu.Gyro], Latency: gyr.latency}

	var push sensors.Hz
	for i, r := range acc.rate {
		if acc.requireData[i] {
			push = max(push, r)
		}
	}
	req[fifo.SlotAccel] = fifo.SlotRequest{Assigned: true, Rate: push, Latency: acc.latency}

	switch h.ds3 {
	case imu.Magn:
		m := &h.sensors[imu.Magn]
		req[fifo.SlotDS3] = fifo.SlotRequest{Assigned: true, Rate: m.rate[imu.Magn], Latency: m.latency}
	case imu.Press:
		p, t := &h.sensors[imu.Press], &h.sensors[imu.Temp]
		req[fifo.SlotDS3] = fifo.SlotRequest{
			Assigned: true,
			Rate:     max(p.rate[imu.Press], t.rate[imu.Temp]),
			Latency:  min(p.latency, t.latency),
		}
	}
	return req
}

// updateOdrs reprograms the accel/gyro ODRs and the FIFO for the current
// requests. It queues the register writes and reports whether any were
// queued.
func (h *Hub) updateOdrs() bool {
	acc, gyr := &h.sensors[imu.Accel], &h.sensors[imu.Gyro]
	accelHw := hwRateFor(acc.rate[:])
	gyroHw := hwRateFor(gyr.rate[:])

	u := h.plan.RecomputeDecimators(accelHw, gyroHw, h.slotRequests())
	for slot := 0; slot < fifo.SlotDS4; slot++ {
		if s := h.slotOwner(slot); s != noSensor && h.sensors[s].fifoDec != u.SoftDecimator[slot] {
			h.sensors[s].setFifoDecimator(u.SoftDecimator[slot])
		}
	}
	if h.plan.MaxDecimator > 0 {
		h.time.SetTheoreticalDelta(h.plan.SamplePeriod())
	}
	wmChanged := h.plan.RecomputeWatermark(u.MinLatency)

	accelChanged := accelHw != acc.hwRate
	gyroChanged := gyroHw != gyr.hwRate
	reprogram := accelChanged || gyroChanged || u.Changed

	if reprogram {
		h.time.Disable()
		h.tr.QueueWrite(sensors.RegTimestamp2, sensors.TimestampReset, 0)
		h.tr.QueueWrite(sensors.RegFifoCtrl5, sensors.FifoBypassMode, fifoModeDelay)
	}

	if accelChanged {
		acc.hwRate = accelHw
		reg := byte(0)
		if accelHw > 0 {
			i := sensors.ComputeOdr(accelHw)
			reg = sensors.OdrRegister(i)
			acc.discard = max(1, div(sensors.AccelDiscard(i), div(int(accelHw), int(h.plan.SlotRate(fifo.SlotAccel)))))
		}
		log.Debugf("hub: accel ODR %.3f Hz", accelHw.Float())
		h.tr.QueueWrite(sensors.RegCtrl1XL, sensors.Ctrl1XLBase|reg, odrDelay)
	}

	if gyroChanged {
		first := gyr.hwRate == 0
		gyr.hwRate = gyroHw
		reg := byte(0)
		if gyroHw > 0 {
			i := sensors.ComputeOdr(gyroHw)
			reg = sensors.OdrRegister(i)
			gyr.discard = max(1, div(sensors.GyroDiscard(i, first), div(int(gyroHw), int(h.plan.SlotRate(fifo.SlotGyro)))))
		}
		log.Debugf("hub: gyro ODR %.3f Hz", gyroHw.Float())
		h.tr.QueueWrite(sensors.RegCtrl2G, sensors.Ctrl2GBase|reg, odrDelay)
	}

	if reprogram {
		h.recomputeSoftDecimators()
		switch {
		case h.plan.Active():
			h.resetTimestampSync()
			h.selectSyncMode(u.MinLatency)
		case h.baroOnTimer():
			h.resetTimestampSync()
			h.selectSyncMode(timesync.SyncInterval)
		}
		cb := h.plan.ControlBytes()
		h.tr.QueueMultiWrite(sensors.RegFifoCtrl1, cb[:], 0)
	} else if wmChanged {
		h.selectSyncMode(u.MinLatency)
		th := h.plan.ThresholdBytes()
		h.tr.QueueMultiWrite(sensors.RegFifoCtrl1, th[:], 0)
	}
	return reprogram || wmChanged
}

// recomputeSoftDecimators follows a FIFO reprogram: every slot owner's
// delivered rate is re-derived from the new slot rate.
func (h *Hub) recomputeSoftDecimators() {
	for slot := 0; slot < fifo.SlotDS4; slot++ {
		s := h.slotOwner(slot)
		if s == noSensor {
			continue
		}
		vs := &h.sensors[s]
		vs.setSoftDecimator(fifo.SoftwareDecimator(h.plan.SlotRate(slot), vs.fifoDec, vs.rate[s]))
		if s == imu.Press {
			t := &h.sensors[imu.Temp]
			t.setSoftDecimator(fifo.SoftwareDecimator(h.plan.SlotRate(slot), vs.fifoDec, t.rate[imu.Temp]))
		}
	}
}

// baroOnTimer reports whether the barometer is polled by timer and running.
func (h *Hub) baroOnTimer() bool {
	if h.opts.Magnetometer == nil || h.opts.Barometer == nil {
		return false
	}
	return h.sensors[imu.Press].rate[imu.Press] > 0 || h.sensors[imu.Temp].rate[imu.Temp] > 0
}

func (h *Hub) resetTimestampSync() {
	h.lastFifoRead = 0
	h.time.Reset()
}

func (h *Hub) selectSyncMode(minLatency time.Duration) {
	if h.time.SelectMode(minLatency) == timesync.Timer {
		resetTimer(h.syncTimer, 0)
		return
	}
	stopTimer(h.syncTimer)
}

func div(a, b int) int {
	if b == 0 {
		return 0
	}
	return a / b
}

// shIndex is the position of rate in SHRates, clamped to the table.
func shIndex(rate sensors.Hz) int {
	for i, r := range sensors.SHRates {
		if r >= rate {
			return i
		}
	}
	return len(sensors.SHRates) - 1
}
