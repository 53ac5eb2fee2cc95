package hub

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/sensorhub/internal/errcode"
	"github.com/relabs-tech/sensorhub/internal/sensors"
)

const resetDelay = 20 * time.Millisecond

func (h *Hub) boot() {
	h.state.set(StateBoot)
	h.retries = bootRetries
	resetTimer(h.bootTimer, h.opts.BootDelay)
}

func (h *Hub) verifyIdentity() {
	if h.state.load() != StateBoot {
		return
	}
	h.state.set(StateVerifyIdentity)
	h.whoAmI = h.tr.QueueRead(sensors.RegWhoAmI, 1, 0)
	h.submit()
}

func (h *Hub) identityRead(err error) {
	if err == nil && h.whoAmI[0] == sensors.WhoAmI {
		log.Infof("hub: LSM6DSM found, initializing")
		h.state.set(StateInitialization)
		h.initProg = h.initProgram()
		h.initStep = 0
		h.advanceInit()
		return
	}
	h.retries--
	if err == nil {
		err = &errcode.E{C: errcode.IdentityMismatch, Op: "hub", Msg: "WHO_AM_I"}
	}
	if h.retries <= 0 {
		h.state.set(StateInvalid)
		h.publish()
		log.Errorf("hub: device not detected, giving up: %v (read %#02x, want %#02x)", err, h.whoAmI[0], sensors.WhoAmI)
		return
	}
	log.Warnf("hub: identity check failed (%v), %d retries left", err, h.retries)
	h.state.set(StateBoot)
	resetTimer(h.bootTimer, bootRetryDelay)
}

// advanceInit submits the next initialization step. After the last one the
// sink learns the sensors are ready.
func (h *Hub) advanceInit() {
	if h.initStep < len(h.initProg) {
		step := h.initProg[h.initStep]
		h.initStep++
		step()
		h.submit()
		return
	}
	h.initProg = nil
	log.Infof("hub: sensors ready")
	h.sink.SensorsReady()
	h.processPending()
}

// initProgram lists one batch per step: reset, default registers, sensor-hub
// slot layout, slave reset, one batch per slave init write, and parking.
func (h *Hub) initProgram() []func() {
	tr := h.tr
	mag, baro := h.opts.Magnetometer, h.opts.Barometer

	prog := []func(){
		func() {
			tr.QueueWrite(sensors.RegCtrl3C, sensors.Ctrl3CBase|sensors.SWReset, resetDelay)
		},
		func() {
			tr.QueueWrite(sensors.RegFuncCfgAccess, sensors.FuncCfgAccessBase, funcCfgDelay)
			tr.QueueWrite(sensors.RegDrdyPulseCfg, sensors.DrdyPulseCfgBase, 0)
			tr.QueueMultiWrite(sensors.RegCtrl1XL, []byte{
				sensors.Ctrl1XLBase,
				sensors.Ctrl2GBase,
				sensors.Ctrl3CBase,
				sensors.Ctrl4CBase,
				sensors.Ctrl5CBase,
			}, 0)
			tr.QueueMultiWrite(sensors.RegCtrl10C, []byte{
				sensors.Ctrl10CBase | sensors.ResetPedometer,
				sensors.MasterConfigBase,
			}, 0)
			tr.QueueWrite(sensors.RegInt1Ctrl, sensors.Int1CtrlBase, 0)
			tr.QueueWrite(sensors.RegWakeUpDur, sensors.WakeUpDurBase, 0)
			h.embReg = sensors.Ctrl10CBase
			h.masterReg = sensors.MasterConfigBase
			h.int1Reg = sensors.Int1CtrlBase
			h.int2Reg = sensors.Int2CtrlBase
		},
	}
	if mag == nil && baro == nil {
		return prog
	}

	prog = append(prog,
		func() {
			tr.QueueWrite(sensors.RegFuncCfgAccess, sensors.FuncCfgAccessBase|sensors.EnableFuncCfgAccess, funcCfgDelay)
			tr.QueueMultiWrite(sensors.EmbSlv0Addr, []byte{sensors.EmbSlv0SleepAddr, 0, h.slaveConfig()}, 0)
			for i, slot := range h.slaveSlots() {
				tr.QueueMultiWrite(byte(sensors.EmbSlv1Addr+3*i), slot[:], 0)
			}
			tr.QueueWrite(sensors.RegFuncCfgAccess, sensors.FuncCfgAccessBase, funcCfgDelay)
		},
		func() {
			tr.QueueWrite(sensors.RegCtrl1XL, sensors.Ctrl1XLBase|sensors.Odr104Hz, odrDelay)
			h.masterReg = sensors.MasterConfigBase | sensors.MasterOn
			tr.QueueWrite(sensors.RegMasterConfig, h.masterReg, 0)
			if mag != nil {
				h.writeSlave(mag.Addr(), mag.Reset(), sensors.SelfTestRate)
			}
			if baro != nil {
				h.writeSlave(baro.Addr(), baro.Reset(), sensors.SelfTestRate)
			}
		},
	)
	var slaves []sensors.Slave
	if mag != nil {
		slaves = append(slaves, mag)
	}
	if baro != nil {
		slaves = append(slaves, baro)
	}
	for _, sl := range slaves {
		for _, w := range sl.Init() {
			prog = append(prog, func() { h.writeSlave(sl.Addr(), w, sensors.SelfTestRate) })
		}
	}
	prog = append(prog, func() {
		h.masterReg = sensors.MasterConfigBase
		tr.QueueWrite(sensors.RegMasterConfig, h.masterReg, 0)
		tr.QueueWrite(sensors.RegCtrl1XL, sensors.Ctrl1XLBase, 0)
	})
	return prog
}
