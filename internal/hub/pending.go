package hub

import "github.com/relabs-tech/sensorhub/internal/imu"

// pending holds requests that found the bus busy.
type pending struct {
	enable [imu.NumSensors]bool
	rate   [imu.NumSensors]bool
	flush  [imu.NumSensors]int

	timeSync   bool
	baroTimer  bool
	storeCalib bool
	interrupt  bool
}

// processPending returns the bus to idle and starts the first deferred
// request, in a fixed order: per sensor enable, rate and flush; then the
// time sync, the barometer poll, the calibration store, the interrupt
// status and finally the live interrupt line.
func (h *Hub) processPending() {
	h.state.set(StateIdle)
	h.publish()
	p := &h.pending

	for i := range h.sensors {
		s := imu.Sensor(i)
		vs := &h.sensors[i]
		if p.enable[i] {
			p.enable[i] = false
			if h.setPower(s, vs.pcfg.enable) {
				return
			}
		}
		if p.rate[i] {
			p.rate[i] = false
			if h.setRate(s, vs.pcfg.rate, vs.pcfg.latency) {
				return
			}
		}
		if p.flush[i] > 0 {
			p.flush[i]--
			if h.flush(s) {
				return
			}
		}
	}

	if p.timeSync {
		p.timeSync = false
		if h.timeSyncTask() {
			return
		}
	}
	if p.baroTimer {
		p.baroTimer = false
		if h.baroArmed && h.baroTimerTask() {
			return
		}
	}
	if p.storeCalib {
		p.storeCalib = false
		if h.storeAccelCalibration() {
			return
		}
	}
	irq := h.irqPending.Swap(false)
	if p.interrupt || irq {
		p.interrupt = false
		if h.readStatus() {
			return
		}
	}
	if h.opts.IRQLevel != nil && h.opts.IRQLevel() {
		h.readStatus()
	}
}
