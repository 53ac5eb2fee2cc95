package hub

import (
	"fmt"
	"sync/atomic"
)

// State is the operation currently holding the bus. Every hardware access
// starts from StateIdle through a compare-and-swap.
type State uint32

const (
	StateBoot State = iota
	StateVerifyIdentity
	StateInitialization
	StateIdle
	StatePoweringUp
	StatePoweringDown
	StateConfigChanging
	StateWatermarkChanging
	StateCalibration
	StateStoreCalibration
	StateSelfTest
	StateStatusHandling
	StateDataHandling
	StateTimeSync
	StateBaroRead
	StateInvalid
	numStates
)

var stateNames = [numStates]string{
	StateBoot:              "boot",
	StateVerifyIdentity:    "verify_identity",
	StateInitialization:    "initialization",
	StateIdle:              "idle",
	StatePoweringUp:        "powering_up",
	StatePoweringDown:      "powering_down",
	StateConfigChanging:    "config_changing",
	StateWatermarkChanging: "watermark_changing",
	StateCalibration:       "calibration",
	StateStoreCalibration:  "store_calibration",
	StateSelfTest:          "self_test",
	StateStatusHandling:    "status_handling",
	StateDataHandling:      "data_handling",
	StateTimeSync:          "time_sync",
	StateBaroRead:          "baro_read",
	StateInvalid:           "invalid",
}

func (s State) String() string {
	if s >= numStates {
		return fmt.Sprintf("state(%d)", uint32(s))
	}
	return stateNames[s]
}

// token is the single busy/idle flag shared by every operation.
type token struct {
	v atomic.Uint32
	// observe sees every transition; tests hook it.
	observe func(from, to State)
}

func (t *token) load() State { return State(t.v.Load()) }

func (t *token) set(s State) {
	from := State(t.v.Swap(uint32(s)))
	if t.observe != nil {
		t.observe(from, s)
	}
}

// claim moves the token from idle to s and reports whether it did.
func (t *token) claim(s State) bool {
	if !t.v.CompareAndSwap(uint32(StateIdle), uint32(s)) {
		return false
	}
	if t.observe != nil {
		t.observe(StateIdle, s)
	}
	return true
}
