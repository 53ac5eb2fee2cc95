// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package hub is the LSM6DSM sensor-hub driver. One goroutine owns the
// device: host requests, transport completions, the interrupt line and the
// timers all arrive as events on Run's loop, and every bus access starts by
// claiming the idle state. Requests that find the bus busy are parked in the
// pending set and replayed, in a fixed order, when it frees up.
package hub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/sensorhub/internal/codec"
	"github.com/relabs-tech/sensorhub/internal/fifo"
	"github.com/relabs-tech/sensorhub/internal/imu"
	"github.com/relabs-tech/sensorhub/internal/sensors"
	"github.com/relabs-tech/sensorhub/internal/timesync"
)

// Transport queues register transfers into one batch and runs it. done must
// be called exactly once per accepted Submit.
type Transport interface {
	QueueRead(addr byte, n int, delay time.Duration) []byte
	QueueWrite(addr, value byte, delay time.Duration)
	QueueMultiWrite(addr byte, data []byte, delay time.Duration)
	Submit(done func(error)) error
}

// Sink receives everything the hub reports. It is called from the hub
// goroutine and must not block; PushEvent and PushFlush return an error when
// the output queue is full and the delivery is dropped.
type Sink interface {
	PushEvent(ev imu.Event) error
	PushFlush(s imu.Sensor) error
	SelfTestResult(r imu.SelfTestResult)
	CalibrationResult(r imu.CalibrationResult)
	PowerChanged(s imu.Sensor, on bool)
	RateChanged(s imu.Sensor, rate sensors.Hz, latency time.Duration)
	SensorsReady()
}

// BiasEstimator tracks the slowly moving offset of one triaxial sensor.
type BiasEstimator interface {
	Update(ts uint64, v [3]float32, tempC float32)
	Remove(v [3]float32) [3]float32
	// NewBias returns a bias that has not been reported yet.
	NewBias() ([3]float32, bool)
	SetBias(b [3]float32)
}

// accelAware is implemented by gyroscope estimators that also watch the
// accelerometer for stillness.
type accelAware interface {
	UpdateAccel(ts uint64, v [3]float32)
}

// Options configure a Hub.
type Options struct {
	Magnetometer sensors.Magnetometer
	Barometer    sensors.Barometer

	// Rotation of each triaxial sensor into the device frame. The zero
	// value means identity.
	AccelRotation codec.Matrix
	GyroRotation  codec.Matrix
	MagnRotation  codec.Matrix

	BootDelay      time.Duration
	SyncMinSamples int
	SyncMaxSamples int

	Bias map[imu.Sensor]BiasEstimator

	// IRQLevel reads the INT1 line. When set, the hub re-checks it each
	// time the bus goes idle.
	IRQLevel func() bool
	// Now is the host clock in nanoseconds.
	Now func() uint64
}

const (
	bootRetries    = 5
	bootRetryDelay = 100 * time.Millisecond
	noSensor       = imu.Sensor(-1)
)

type request struct {
	fn    func() bool
	reply chan bool
}

// completion is a transport completion, or a plain return to idle.
type completion struct {
	restore bool
	err     error
}

// Status is a snapshot of the hub for the API.
type Status struct {
	State       string                 `json:"state"`
	Enabled     []imu.Sensor           `json:"enabled"`
	Rates       map[imu.Sensor]float64 `json:"rates_hz"`
	SyncMode    string                 `json:"sync_mode"`
	Anchors     int                    `json:"sync_anchors"`
	Temperature float32                `json:"temperature_c"`
	Steps       uint32                 `json:"steps"`
	IRQDrops    uint64                 `json:"irq_drops"`
}

// Hub drives one LSM6DSM and its sensor-hub slaves.
type Hub struct {
	tr   Transport
	sink Sink
	opts Options

	state   token
	sensors [imu.NumSensors]virtualSensor
	plan    fifo.Plan
	time    *timesync.Engine
	pending pending
	ds3     imu.Sensor

	reqs    chan request
	done    chan error
	local   []completion
	irq     chan struct{}
	stopped chan struct{}

	irqDrops   atomic.Uint64
	irqPending atomic.Bool

	// register shadows
	masterReg  byte
	embReg     byte
	int1Reg    byte
	int2Reg    byte
	masterDeps uint8
	pedoDeps   uint8

	op       imu.Sensor
	program  programRunner
	retries  int
	initProg []func()
	initStep int

	whoAmI     []byte
	funcSrc    []byte
	fifoStatus []byte
	stepsBuf   []byte
	fifoBuf    []byte
	tsBuf      []byte
	tempBuf    []byte
	baroTs     []byte
	baroBuf    []byte

	fifoPending  int
	readSteps    bool
	recovering   bool
	sendFlush    [imu.NumSensors]bool
	lastFifoRead uint64
	totalSteps   uint32
	temperature  float32
	gyroCal      [3]int32
	accelCal     [3]int32

	syncTimer  *time.Timer
	baroTimer  *time.Timer
	bootTimer  *time.Timer
	baroPeriod time.Duration
	baroArmed  bool

	mu     sync.Mutex
	status Status
}

// New returns a hub driving the device behind tr. Run must be called before
// any request is answered.
func New(tr Transport, sink Sink, opts Options) *Hub {
	for _, m := range []*codec.Matrix{&opts.AccelRotation, &opts.GyroRotation, &opts.MagnRotation} {
		if *m == (codec.Matrix{}) {
			*m = codec.Identity
		}
	}
	if opts.SyncMaxSamples == 0 {
		opts.SyncMaxSamples = timesync.DefaultMaxSamples
	}
	if opts.SyncMinSamples == 0 {
		opts.SyncMinSamples = timesync.DefaultMinSamples
	}
	if opts.Now == nil {
		opts.Now = func() uint64 { return uint64(time.Now().UnixNano()) }
	}
	h := &Hub{
		tr:        tr,
		sink:      sink,
		opts:      opts,
		time:      timesync.New(opts.SyncMinSamples, opts.SyncMaxSamples),
		ds3:       noSensor,
		op:        noSensor,
		reqs:      make(chan request),
		done:      make(chan error, 1),
		irq:       make(chan struct{}, 1),
		stopped:   make(chan struct{}),
		syncTimer: newStoppedTimer(),
		baroTimer: newStoppedTimer(),
		bootTimer: newStoppedTimer(),
	}
	for s := range h.sensors {
		h.sensors[s] = newVirtualSensor(imu.Sensor(s))
	}
	h.sensors[imu.Accel].requireData[imu.Accel] = true
	switch {
	case opts.Magnetometer != nil:
		h.ds3 = imu.Magn
	case opts.Barometer != nil:
		h.ds3 = imu.Press
	}
	h.state.v.Store(uint32(StateBoot))
	return h
}

// Run boots the device and serves it until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.stopped)
	defer stopTimer(h.syncTimer)
	defer stopTimer(h.baroTimer)
	defer stopTimer(h.bootTimer)

	h.boot()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case r := <-h.reqs:
			r.reply <- r.fn()

		case err := <-h.done:
			h.onTransportComplete(err)

		case <-h.irq:
			h.readStatus()

		case <-h.bootTimer.C:
			h.verifyIdentity()

		case <-h.syncTimer.C:
			h.timeSyncTask()

		case <-h.baroTimer.C:
			if h.baroArmed {
				resetTimer(h.baroTimer, h.baroPeriod)
				h.baroTimerTask()
			}
		}

		for len(h.local) > 0 {
			c := h.local[0]
			h.local = h.local[1:]
			if c.restore {
				h.processPending()
			} else {
				h.onTransportComplete(c.err)
			}
		}
	}
}

// call runs fn on the hub goroutine.
func (h *Hub) call(fn func() bool) bool {
	r := request{fn: fn, reply: make(chan bool, 1)}
	select {
	case h.reqs <- r:
	case <-h.stopped:
		return false
	}
	select {
	case ok := <-r.reply:
		return ok
	case <-h.stopped:
		return false
	}
}

// submit runs the queued batch. A refused submit completes with its error
// so the state machine still moves on.
func (h *Hub) submit() {
	if err := h.tr.Submit(h.onDone); err != nil {
		log.Errorf("hub: submit in %s: %v", h.state.load(), err)
		h.local = append(h.local, completion{err: err})
	}
}

func (h *Hub) onDone(err error) {
	select {
	case h.done <- err:
	case <-h.stopped:
	}
}

// complete finishes the current operation without touching the bus.
func (h *Hub) complete() { h.local = append(h.local, completion{}) }

// restore returns to idle and drains pending work.
func (h *Hub) restore() { h.local = append(h.local, completion{restore: true}) }

// Interrupt signals an INT1 edge. It never blocks; an edge that finds one
// already queued is counted and folded into it.
func (h *Hub) Interrupt() {
	select {
	case h.irq <- struct{}{}:
	default:
		h.irqDrops.Add(1)
		h.irqPending.Store(true)
	}
}

// State is the operation currently holding the bus.
func (h *Hub) State() State { return h.state.load() }

// Status returns the last published snapshot.
func (h *Hub) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.status
	st.State = h.state.load().String()
	st.IRQDrops = h.irqDrops.Load()
	return st
}

func (h *Hub) publish() {
	st := Status{
		Rates:       map[imu.Sensor]float64{},
		SyncMode:    h.time.Mode().String(),
		Anchors:     h.time.Anchors(),
		Temperature: h.temperature,
		Steps:       h.totalSteps,
	}
	for i := range h.sensors {
		vs := &h.sensors[i]
		if !vs.enabled {
			continue
		}
		st.Enabled = append(st.Enabled, vs.id)
		if r := vs.rate[i]; r > 0 && r != sensors.RateOnChange {
			st.Rates[vs.id] = r.Float()
		}
	}
	h.mu.Lock()
	h.status = st
	h.mu.Unlock()
}

func (h *Hub) now() uint64 { return h.opts.Now() }

// available reports whether s exists on this board.
func (h *Hub) available(s imu.Sensor) bool {
	if !s.Valid() || h.state.load() == StateInvalid {
		return false
	}
	switch s {
	case imu.Magn:
		return h.opts.Magnetometer != nil
	case imu.Press, imu.Temp:
		return h.opts.Barometer != nil
	}
	return true
}

func (h *Hub) enabled(s imu.Sensor) bool { return h.sensors[s].enabled }

// onTransportComplete is the single re-entry point after a batch.
func (h *Hub) onTransportComplete(err error) {
	switch st := h.state.load(); st {
	case StateVerifyIdentity:
		h.identityRead(err)
	case StateInitialization:
		if err != nil {
			log.Errorf("hub: initialization step %d: %v", h.initStep, err)
		}
		h.advanceInit()
	case StatePoweringUp, StatePoweringDown:
		if err != nil {
			log.Errorf("hub: power %s: %v", h.op, err)
		}
		vs := &h.sensors[h.op]
		vs.enabled = st == StatePoweringUp
		h.sink.PowerChanged(h.op, vs.enabled)
		h.processPending()
	case StateConfigChanging:
		if err != nil {
			log.Errorf("hub: rate %s: %v", h.op, err)
		}
		vs := &h.sensors[h.op]
		h.sink.RateChanged(h.op, vs.rate[h.op], vs.latency)
		h.processPending()
	case StateWatermarkChanging, StateStoreCalibration:
		if err != nil {
			log.Errorf("hub: %s: %v", st, err)
		}
		h.processPending()
	case StateSelfTest, StateCalibration:
		if err != nil {
			log.Errorf("hub: %s %s: %v", st, h.op, err)
		}
		h.advanceProgram()
	case StateStatusHandling:
		h.statusRead(err)
	case StateDataHandling:
		h.dataRead(err)
	case StateTimeSync:
		h.timeSyncRead(err)
	case StateBaroRead:
		h.baroRead(err)
	default:
		log.Warnf("hub: completion in %s ignored", st)
	}
}
