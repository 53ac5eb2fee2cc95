package hub

import (
	"github.com/relabs-tech/sensorhub/internal/codec"
	"github.com/relabs-tech/sensorhub/internal/fifo"
	"github.com/relabs-tech/sensorhub/internal/imu"
	"github.com/relabs-tech/sensorhub/internal/sensors"
)

// parseFifo demultiplexes whole patterns of FIFO data into batches. Every
// sample of a row takes the row's timestamp.
func (h *Hub) parseFifo(data []byte) {
	pb := h.plan.PatternBytes()
	if pb == 0 {
		return
	}
	h.plan.Rows(data, len(data)/pb, func(r fifo.Row) {
		ts := h.time.ObserveFifoTimestamp(codec.FifoTimestamp(r.Timestamp))
		for slot, b := range r.Samples {
			if b == nil {
				continue
			}
			if slot == fifo.SlotDS4 {
				h.fifoSteps(b, ts)
				continue
			}
			s := h.slotOwner(slot)
			if s == noSensor {
				continue
			}
			vs := &h.sensors[s]
			if vs.discard > 0 {
				vs.discard--
				continue
			}
			if vs.fifoDec > 1 {
				vs.fifoCounter++
				if vs.fifoCounter < vs.fifoDec {
					continue
				}
				vs.fifoCounter = 0
			}
			if s.Triaxial() {
				h.processThreeAxis(s, b, ts)
			} else {
				h.processBaro(b, ts)
			}
		}
	})
	for s := range h.sensors {
		h.pushBatch(imu.Sensor(s))
	}
}

func (h *Hub) fifoSteps(b []byte, ts uint64) {
	if !h.enabled(imu.StepCounter) || h.readSteps {
		return
	}
	steps := uint32(codec.FifoSteps(b))
	if steps == h.totalSteps {
		return
	}
	if ts == 0 {
		ts = h.now()
	}
	h.pushSteps(steps, ts)
}

// processThreeAxis converts one raw sample, feeds the bias estimator and
// appends the result. Samples without a host timestamp are dropped.
func (h *Hub) processThreeAxis(s imu.Sensor, b []byte, ts uint64) {
	if ts == 0 {
		return
	}
	x, y, z := codec.Triaxial(b)
	ix, iy, iz := int32(x), int32(y), int32(z)

	var m codec.Matrix
	var k float32
	switch s {
	case imu.Gyro:
		ix -= h.gyroCal[0]
		iy -= h.gyroCal[1]
		iz -= h.gyroCal[2]
		m, k = h.opts.GyroRotation, sensors.GyroScale
	case imu.Accel:
		m, k = h.opts.AccelRotation, sensors.AccelScale
	default:
		m, k = h.opts.MagnRotation, h.opts.Magnetometer.Scale()
	}
	fx, fy, fz := m.Scaled(ix, iy, iz, k)
	v := [3]float32{fx, fy, fz}

	vs := &h.sensors[s]
	if est := h.opts.Bias[s]; est != nil {
		est.Update(ts, v, h.temperature)
		if bias, ok := est.NewBias(); ok && vs.enabled && vs.softDec > 0 {
			vs.appendBias(ts, bias)
			if vs.batch.full() {
				h.pushBatch(s)
			}
		}
		v = est.Remove(v)
	}
	if s == imu.Accel {
		if g, ok := h.opts.Bias[imu.Gyro].(accelAware); ok {
			g.UpdateAccel(ts, v)
		}
	}

	if !vs.enabled || !vs.decimate() {
		return
	}
	vs.append(ts, v[0], v[1], v[2])
	if vs.batch.full() {
		h.pushBatch(s)
	}
}

// processBaro splits a barometer sample from the FIFO into pressure and
// temperature.
func (h *Hub) processBaro(b []byte, ts uint64) {
	if ts == 0 {
		return
	}
	h.appendBaro(b, ts)
}

// appendBaro appends the pressure and temperature held in one barometer
// output block.
func (h *Hub) appendBaro(b []byte, ts uint64) {
	baro := h.opts.Barometer
	n := baro.PressLen()
	if p := &h.sensors[imu.Press]; p.enabled && p.decimate() {
		p.append(ts, codec.Pressure(b[:n], baro.PressureScale()), 0, 0)
		if p.batch.full() {
			h.pushBatch(imu.Press)
		}
	}
	if t := &h.sensors[imu.Temp]; t.enabled && t.decimate() {
		t.append(ts, codec.BaroTemperature(b[n:], baro.TemperatureScale()), 0, 0)
		if t.batch.full() {
			h.pushBatch(imu.Temp)
		}
	}
}
