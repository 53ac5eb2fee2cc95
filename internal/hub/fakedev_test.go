package hub

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/relabs-tech/sensorhub/internal/imu"
	"github.com/relabs-tech/sensorhub/internal/sensors"
	"github.com/relabs-tech/sensorhub/internal/transport"
)

type regWrite struct {
	reg      byte
	value    byte
	embedded bool
}

// fakeDev is a register-level LSM6DSM behind a transport.Bus. The device
// clock runs off the host clock so that anchors read through it line up.
type fakeDev struct {
	mu      sync.Mutex
	regs    [128]byte
	emb     [128]byte
	fifo    []byte
	status2 byte
	whoAmI  byte
	start   time.Time
	writes  []regWrite
	reads   map[byte]int
	gate    chan struct{}
	hub     *Hub
	idleTx  int
	maxBusy int
	busy    int
}

func newFakeDev() *fakeDev {
	return &fakeDev{whoAmI: sensors.WhoAmI, start: time.Now(), reads: map[byte]int{}}
}

// clock is the device timestamp counter in 25 µs LSB.
func (d *fakeDev) clock() uint32 {
	return uint32(time.Since(d.start)/(25*time.Microsecond)) & 0xffffff
}

func (d *fakeDev) Tx(w, r []byte) error {
	d.mu.Lock()
	gate := d.gate
	d.busy++
	d.maxBusy = max(d.maxBusy, d.busy)
	if d.hub != nil && d.hub.State() == StateIdle {
		d.idleTx++
	}
	d.mu.Unlock()

	if gate != nil {
		<-gate
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.busy--
	addr := w[0] & 0x7f
	if w[0]&0x80 != 0 {
		d.reads[addr]++
		for i := 1; i < len(w); i++ {
			a := addr
			// The FIFO data port does not auto-increment.
			if addr != sensors.RegFifoDataOutL {
				a += byte(i - 1)
			}
			r[i] = d.read(a)
		}
		return nil
	}
	embedded := d.regs[sensors.RegFuncCfgAccess]&sensors.EnableFuncCfgAccess != 0 && addr != sensors.RegFuncCfgAccess
	for i, v := range w[1:] {
		a := addr + byte(i)
		d.writes = append(d.writes, regWrite{a, v, embedded})
		if embedded {
			d.emb[a&0x7f] = v
			continue
		}
		d.regs[a&0x7f] = v
		// Bypass mode empties the FIFO and clears its error flags.
		if a == sensors.RegFifoCtrl5 && v == sensors.FifoBypassMode {
			d.fifo = nil
			d.status2 = 0
		}
	}
	return nil
}

func (d *fakeDev) read(a byte) byte {
	switch {
	case a == sensors.RegWhoAmI:
		return d.whoAmI
	case a == sensors.RegFifoStatus1:
		return byte(len(d.fifo) / 2)
	case a == sensors.RegFifoStatus1+1:
		st := byte(len(d.fifo)/2>>8)&0x07 | d.status2
		if len(d.fifo) == 0 {
			st |= sensors.FifoStatus2Empty
		}
		return st
	case a == sensors.RegFifoDataOutL:
		if len(d.fifo) == 0 {
			return 0
		}
		v := d.fifo[0]
		d.fifo = d.fifo[1:]
		return v
	case a >= sensors.RegTimestamp0 && a <= sensors.RegTimestamp2:
		return byte(d.clock() >> (8 * (a - sensors.RegTimestamp0)))
	}
	return d.regs[a&0x7f]
}

func (d *fakeDev) setGate(g chan struct{}) {
	d.mu.Lock()
	d.gate = g
	d.mu.Unlock()
}

func (d *fakeDev) pushFifo(b []byte) {
	d.mu.Lock()
	d.fifo = append(d.fifo, b...)
	d.mu.Unlock()
}

func (d *fakeDev) reg(a byte) byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs[a]
}

func (d *fakeDev) readCount(a byte) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads[a]
}

// wrote reports whether value was ever written to reg.
func (d *fakeDev) wrote(reg, value byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, w := range d.writes {
		if !w.embedded && w.reg == reg && w.value == value {
			return true
		}
	}
	return false
}

// fakeSink records everything as short notes, in order.
type fakeSink struct {
	mu     sync.Mutex
	notes  chan string
	events []imu.Event
	full   bool
}

func newFakeSink() *fakeSink { return &fakeSink{notes: make(chan string, 1024)} }

func (s *fakeSink) note(format string, args ...any) {
	s.notes <- fmt.Sprintf(format, args...)
}

func (s *fakeSink) PushEvent(ev imu.Event) error {
	s.mu.Lock()
	if s.full {
		s.mu.Unlock()
		return fmt.Errorf("queue full")
	}
	s.events = append(s.events, ev)
	s.mu.Unlock()
	select {
	case s.notes <- "event " + ev.Sensor.String():
	default:
	}
	return nil
}

func (s *fakeSink) PushFlush(sensor imu.Sensor) error {
	s.note("flush %s", sensor)
	return nil
}

func (s *fakeSink) SelfTestResult(r imu.SelfTestResult) {
	s.note("selftest %s %s", r.Sensor, r.Status)
}

func (s *fakeSink) CalibrationResult(r imu.CalibrationResult) {
	s.note("calibration %s %s", r.Sensor, r.Status)
}

func (s *fakeSink) PowerChanged(sensor imu.Sensor, on bool) {
	s.note("power %s %t", sensor, on)
}

func (s *fakeSink) RateChanged(sensor imu.Sensor, rate sensors.Hz, _ time.Duration) {
	s.note("rate %s %d", sensor, rate)
}

func (s *fakeSink) SensorsReady() { s.note("ready") }

func (s *fakeSink) eventsFor(sensor imu.Sensor) []imu.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []imu.Event
	for _, ev := range s.events {
		if ev.Sensor == sensor {
			out = append(out, ev)
		}
	}
	return out
}

// expect reads notes until one starts with want.
func (s *fakeSink) expect(t *testing.T, want string) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case n := <-s.notes:
			if strings.HasPrefix(n, want) {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

// next returns the next note that is not an event.
func (s *fakeSink) next(t *testing.T) string {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case n := <-s.notes:
			if !strings.HasPrefix(n, "event") {
				return n
			}
		case <-timeout:
			t.Fatal("timed out waiting for a note")
			return ""
		}
	}
}

type rig struct {
	dev  *fakeDev
	sink *fakeSink
	hub  *Hub
}

// startHub boots a hub on a fake device and waits until it is ready. setup
// runs before the hub starts.
func startHub(t *testing.T, opts Options, setup func(*rig)) *rig {
	t.Helper()
	r := &rig{dev: newFakeDev(), sink: newFakeSink()}
	batch := transport.NewBatch(r.dev)
	batch.Sleep = func(time.Duration) {}
	r.hub = New(batch, r.sink, opts)
	r.dev.hub = r.hub
	if setup != nil {
		setup(r)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		r.dev.setGate(nil)
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("hub did not stop")
		}
	})
	if r.dev.whoAmI == sensors.WhoAmI {
		r.sink.expect(t, "ready")
		r.waitState(t, StateIdle)
	}
	return r
}

func (r *rig) waitState(t *testing.T, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for r.hub.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state %s, want %s", r.hub.State(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

// inspect runs fn on the hub goroutine.
func (r *rig) inspect(fn func(h *Hub)) {
	r.hub.call(func() bool { fn(r.hub); return true })
}

func (d *fakeDev) setRegs(a byte, values ...byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.regs[a:], values)
}

func (d *fakeDev) embedded(a byte) byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.emb[a]
}

// raiseFifoStatus sets FIFO_STATUS2 error flags until the FIFO is bypassed.
func (d *fakeDev) raiseFifoStatus(flags byte) {
	d.mu.Lock()
	d.status2 |= flags
	d.mu.Unlock()
}

// writesTo returns the values written to reg, in order.
func (d *fakeDev) writesTo(reg byte) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []byte
	for _, w := range d.writes {
		if !w.embedded && w.reg == reg {
			out = append(out, w.value)
		}
	}
	return out
}

func (d *fakeDev) writeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.writes)
}
