package hub

import (
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/sensorhub/internal/codec"
	"github.com/relabs-tech/sensorhub/internal/imu"
	"github.com/relabs-tech/sensorhub/internal/sensors"
	"github.com/relabs-tech/sensorhub/internal/timesync"
)

// timeSyncTask samples the device clock when no FIFO read does it often
// enough. It reports whether a read was started.
func (h *Hub) timeSyncTask() bool {
	if h.time.Mode() != timesync.Timer {
		return false
	}
	if !h.state.claim(StateTimeSync) {
		h.pending.timeSync = true
		return false
	}
	h.tsBuf = h.tr.QueueRead(sensors.RegTimestamp0, sensors.TimestampBytes, 0)
	h.tempBuf = h.tr.QueueRead(sensors.RegOutTempL, sensors.TempBytes, 0)
	h.time.MarkAnchor(h.now())
	h.submit()
	return true
}

func (h *Hub) timeSyncRead(err error) {
	if err != nil {
		log.Errorf("hub: clock read: %v", err)
	} else {
		h.time.Sync(codec.Uint24LE(h.tsBuf))
		h.temperature = codec.Temperature(codec.Int16LE(h.tempBuf))
	}
	if h.time.Mode() == timesync.Timer {
		resetTimer(h.syncTimer, timesync.SyncInterval)
	}
	h.processPending()
}

// baroTimerTask reads the barometer output behind the magnetometer's in the
// sensor-hub registers, together with the device clock.
func (h *Hub) baroTimerTask() bool {
	if !h.state.claim(StateBaroRead) {
		h.pending.baroTimer = true
		return false
	}
	off := byte(0)
	if m := h.opts.Magnetometer; m != nil {
		off = byte(m.OutLen())
	}
	h.baroTs = h.tr.QueueRead(sensors.RegTimestamp0, sensors.TimestampBytes, 0)
	h.baroBuf = h.tr.QueueRead(sensors.RegSensorHub1+off, h.opts.Barometer.OutLen(), 0)
	h.submit()
	return true
}

func (h *Hub) baroRead(err error) {
	if err != nil {
		log.Errorf("hub: barometer read: %v", err)
		h.processPending()
		return
	}
	ts, ok := h.time.ExtendBaro(codec.Uint24LE(h.baroTs))
	if ok {
		h.appendBaro(h.baroBuf, ts)
		h.pushBatch(imu.Press)
		h.pushBatch(imu.Temp)
	}
	h.processPending()
}
