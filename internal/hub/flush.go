package hub

import (
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/sensorhub/internal/imu"
)

// Flush delivers everything buffered for s and then a flush marker.
func (h *Hub) Flush(s imu.Sensor) bool {
	return h.call(func() bool { return h.flush(s) })
}

func (h *Hub) flush(s imu.Sensor) bool {
	if !h.available(s) {
		return false
	}
	switch s {
	case imu.StepDetector, imu.StepCounter, imu.SignMotion:
		h.pushFlush(s)
		return true
	}
	if !h.state.claim(StateStatusHandling) {
		h.pending.flush[s]++
		return true
	}
	h.flushFifo(s)
	return true
}

// flushFifo runs in StatusHandling. A FIFO read younger than one pattern
// left nothing worth reading, so the marker goes out at once.
func (h *Hub) flushFifo(s imu.Sensor) {
	if h.lastFifoRead > 0 && h.now() <= h.lastFifoRead+uint64(h.plan.PatternPeriod()) {
		h.pushBatch(s)
		h.pushFlush(s)
		h.restore()
		return
	}
	h.sendFlush[s] = true
	h.queueStatusRead(false)
	h.submit()
}

func (h *Hub) sendFlushes() {
	for s := range h.sendFlush {
		if h.sendFlush[s] {
			h.sendFlush[s] = false
			h.pushBatch(imu.Sensor(s))
			h.pushFlush(imu.Sensor(s))
		}
	}
}

// SendLastStepCount reports the step count again.
func (h *Hub) SendLastStepCount() bool {
	return h.call(func() bool {
		if !h.enabled(imu.StepCounter) {
			return false
		}
		h.pushSteps(h.totalSteps, h.now())
		return true
	})
}

func (h *Hub) pushFlush(s imu.Sensor) {
	if err := h.sink.PushFlush(s); err != nil {
		log.Warnf("hub: %s flush dropped: %v", s, err)
	}
}

func (h *Hub) pushEvent(ev imu.Event) {
	if err := h.sink.PushEvent(ev); err != nil {
		log.Warnf("hub: %s event dropped: %v", ev.Sensor, err)
	}
}

// pushBatch delivers the open batch of s, if any.
func (h *Hub) pushBatch(s imu.Sensor) {
	vs := &h.sensors[s]
	if vs.batch.n == 0 {
		vs.batch.reset()
		return
	}
	ev := vs.batch.event(s)
	vs.batch.reset()
	h.pushEvent(ev)
}

func (h *Hub) pushSteps(steps uint32, ts uint64) {
	h.totalSteps = steps
	h.pushEvent(imu.Event{Sensor: imu.StepCounter, ReferenceTime: ts, Steps: steps})
}
