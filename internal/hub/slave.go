package hub

import (
	"time"

	"github.com/relabs-tech/sensorhub/internal/sensors"
)

const (
	funcCfgDelay    = 50 * time.Microsecond
	digitalOffDelay = 3 * time.Millisecond
)

// slaveWait is how long a slot-0 write needs to go out: one and a half
// sensor-hub cycles, which run at the accelerometer ODR capped at 104 Hz.
func slaveWait(accelRate sensors.Hz) time.Duration {
	r := min(accelRate, sensors.SelfTestRate)
	if r == 0 {
		r = sensors.MinAccelRate
	}
	return r.Period() * 3 / 2
}

// slaveConfig is the SLAVE0_CONFIG value: the number of read slots behind
// slot 0.
func (h *Hub) slaveConfig() byte {
	n := 0
	if m := h.opts.Magnetometer; m != nil {
		n++
		if _, ok := m.StatusReg(); ok {
			n++
		}
	}
	if h.opts.Barometer != nil {
		n++
	}
	return byte(n << 4)
}

// writeSlave queues a write to a sensor-hub slave through slot 0. The
// embedded functions stop while the slot is repointed, then run for one
// and a half hub cycles to issue the write, and slot 0 is parked again.
// The accelerometer clocks the hub, so it is started at 104 Hz when off.
func (h *Hub) writeSlave(addr byte, w sensors.SlaveWrite, accelRate sensors.Hz) {
	tr := h.tr
	accelOff := accelRate == 0
	if accelOff {
		tr.QueueWrite(sensors.RegCtrl1XL, sensors.Ctrl1XLBase|sensors.Odr104Hz, odrDelay)
		accelRate = sensors.SelfTestRate
	}
	digitalOff := h.embReg &^ sensors.EnableDigitalFunc
	on := byte(sensors.FuncCfgAccessBase | sensors.EnableFuncCfgAccess)

	tr.QueueWrite(sensors.RegMasterConfig, sensors.MasterConfigBase, 0)
	tr.QueueWrite(sensors.RegCtrl10C, digitalOff, digitalOffDelay)
	tr.QueueWrite(sensors.RegFuncCfgAccess, on, funcCfgDelay)
	tr.QueueMultiWrite(sensors.EmbSlv0Addr, []byte{addr << 1, w.Reg, 0}, 0)
	tr.QueueWrite(sensors.EmbDataWriteSlv0, w.Value, 0)
	tr.QueueWrite(sensors.RegFuncCfgAccess, sensors.FuncCfgAccessBase, funcCfgDelay)
	tr.QueueWrite(sensors.RegMasterConfig, h.masterReg|sensors.MasterOn, 0)
	tr.QueueWrite(sensors.RegCtrl10C, h.embReg|sensors.EnableDigitalFunc, slaveWait(accelRate)+w.Delay)

	tr.QueueWrite(sensors.RegMasterConfig, sensors.MasterConfigBase, 0)
	tr.QueueWrite(sensors.RegCtrl10C, digitalOff, digitalOffDelay)
	tr.QueueWrite(sensors.RegFuncCfgAccess, on, funcCfgDelay)
	tr.QueueMultiWrite(sensors.EmbSlv0Addr, []byte{sensors.EmbSlv0SleepAddr, w.Reg, h.slaveConfig()}, 0)
	tr.QueueWrite(sensors.RegFuncCfgAccess, sensors.FuncCfgAccessBase, funcCfgDelay)
	tr.QueueWrite(sensors.RegMasterConfig, h.masterReg, 0)
	tr.QueueWrite(sensors.RegCtrl10C, h.embReg, 0)

	if accelOff {
		tr.QueueWrite(sensors.RegCtrl1XL, sensors.Ctrl1XLBase, 0)
	}
}

// writeEmbedded queues a write to an embedded function register.
func (h *Hub) writeEmbedded(reg, value byte) {
	tr := h.tr
	tr.QueueWrite(sensors.RegMasterConfig, sensors.MasterConfigBase, 0)
	tr.QueueWrite(sensors.RegCtrl10C, h.embReg&^sensors.EnableDigitalFunc, digitalOffDelay)
	tr.QueueWrite(sensors.RegFuncCfgAccess, sensors.FuncCfgAccessBase|sensors.EnableFuncCfgAccess, funcCfgDelay)
	tr.QueueWrite(reg, value, 0)
	tr.QueueWrite(sensors.RegFuncCfgAccess, sensors.FuncCfgAccessBase, funcCfgDelay)
	tr.QueueWrite(sensors.RegMasterConfig, h.masterReg, 0)
	tr.QueueWrite(sensors.RegCtrl10C, h.embReg, 0)
}

// slaveSlots returns the SLV1..SLV3 configuration for the attached slaves:
// magnetometer data, barometer data, then the magnetometer status register
// when its measurement must be released by a read.
func (h *Hub) slaveSlots() [][3]byte {
	var slots [][3]byte
	read := func(addr, reg byte, n int) {
		slots = append(slots, [3]byte{addr<<1 | sensors.EmbReadOp, reg, byte(n)})
	}
	if m := h.opts.Magnetometer; m != nil {
		read(m.Addr(), m.OutReg(), m.OutLen())
	}
	if b := h.opts.Barometer; b != nil {
		read(b.Addr(), b.OutReg(), b.OutLen())
	}
	if m := h.opts.Magnetometer; m != nil {
		if reg, ok := m.StatusReg(); ok {
			read(m.Addr(), reg, 1)
		}
	}
	if len(slots) > 0 {
		slots[0][2] |= sensors.EmbSlv1WriteOnce
	}
	return slots
}
