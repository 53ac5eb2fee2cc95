package hub

import (
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/sensorhub/internal/codec"
	"github.com/relabs-tech/sensorhub/internal/imu"
	"github.com/relabs-tech/sensorhub/internal/sensors"
	"github.com/relabs-tech/sensorhub/internal/timesync"
	"github.com/relabs-tech/sensorhub/internal/transport"
)

// readStatus starts an interrupt-status read, or defers it. It reports
// whether the read was started.
func (h *Hub) readStatus() bool {
	if !h.state.claim(StateStatusHandling) {
		h.pending.interrupt = true
		return false
	}
	h.queueStatusRead(true)
	h.submit()
	return true
}

func (h *Hub) queueStatusRead(funcSrc bool) {
	h.funcSrc = nil
	if funcSrc && h.pedometerEnabled() {
		h.funcSrc = h.tr.QueueRead(sensors.RegFuncSrc, 1, 0)
	}
	h.fifoStatus = h.tr.QueueRead(sensors.RegFifoStatus1, 2, 0)
}

// statusRead handles FUNC_SRC and FIFO_STATUS and starts the data read.
func (h *Hub) statusRead(err error) {
	if h.recovering {
		h.recovering = false
		h.sendFlushes()
		h.processPending()
		return
	}
	if err != nil {
		log.Errorf("hub: status read: %v", err)
		h.sendFlushes()
		h.processPending()
		return
	}

	now := h.now()
	if h.funcSrc != nil {
		src := h.funcSrc[0]
		if src&sensors.FuncSrcStepDetect != 0 && h.enabled(imu.StepDetector) {
			h.pushEvent(imu.Event{Sensor: imu.StepDetector, ReferenceTime: now})
		}
		if src&sensors.FuncSrcSignMotion != 0 && h.enabled(imu.SignMotion) {
			h.pushEvent(imu.Event{Sensor: imu.SignMotion, ReferenceTime: now})
		}
		if src&sensors.FuncSrcStepDelta != 0 && h.enabled(imu.StepCounter) {
			h.readSteps = true
		}
	}

	st1, st2 := h.fifoStatus[0], h.fifoStatus[1]
	read := 0
	switch {
	case st2&sensors.FifoStatus2ErrorFlags == 0:
		avail := (int(st2&0x07)<<8 | int(st1)) * 2
		read, h.fifoPending = h.plan.Chunk(avail, transport.FifoChunk)
	case st2&(sensors.FifoStatus2FullSmart|sensors.FifoStatus2Overrun) != 0:
		log.Warnf("hub: FIFO status %#02x, restarting FIFO", st2)
		h.tr.QueueWrite(sensors.RegFifoCtrl5, sensors.FifoBypassMode, fifoModeDelay)
		h.tr.QueueWrite(sensors.RegFifoCtrl5, sensors.FifoContinuousMode, 0)
		h.time.ResetFifo()
		h.recovering = true
	}

	if h.readSteps {
		h.stepsBuf = h.tr.QueueRead(sensors.RegStepCounterL, 2, 0)
	}
	if read > 0 {
		if h.time.Mode() == timesync.DuringFifoRead && h.time.NeedFifoAnchor(now) {
			h.tsBuf = h.tr.QueueRead(sensors.RegTimestamp0, sensors.TimestampBytes, 0)
			h.tempBuf = h.tr.QueueRead(sensors.RegOutTempL, sensors.TempBytes, 0)
			h.time.MarkAnchor(now)
		}
		h.fifoBuf = h.tr.QueueRead(sensors.RegFifoDataOutL, read, 0)
		h.lastFifoRead = now
	}

	if read == 0 && !h.readSteps {
		h.sendFlushes()
		if h.recovering {
			h.submit()
			return
		}
		h.processPending()
		return
	}
	h.state.set(StateDataHandling)
	h.submit()
}

// dataRead parses a FIFO chunk and reads the next one, if any.
func (h *Hub) dataRead(err error) {
	if err != nil {
		log.Errorf("hub: FIFO read, data dropped: %v", err)
		h.time.AnchorPending()
		h.fifoBuf = nil
		h.fifoPending = 0
		h.readSteps = false
		h.recovering = false
		h.sendFlushes()
		h.processPending()
		return
	}

	if h.time.AnchorPending() {
		h.time.Sync(codec.Uint24LE(h.tsBuf))
		h.temperature = codec.Temperature(codec.Int16LE(h.tempBuf))
	}
	steps, haveSteps := uint32(0), false
	if h.readSteps && h.stepsBuf != nil {
		steps, haveSteps = uint32(uint16(codec.Int16LE(h.stepsBuf))), true
		h.readSteps = false
		h.stepsBuf = nil
	}
	if h.fifoBuf != nil {
		h.parseFifo(h.fifoBuf)
		h.fifoBuf = nil
	}
	if haveSteps {
		h.pushSteps(steps, h.now())
	}

	if h.fifoPending > 0 {
		read, pending := h.plan.Chunk(h.fifoPending, transport.FifoChunk)
		h.fifoPending = pending
		if read > 0 {
			h.fifoBuf = h.tr.QueueRead(sensors.RegFifoDataOutL, read, 0)
			h.submit()
			return
		}
	}

	h.sendFlushes()
	h.recovering = false
	h.processPending()
}
