// Package mcu runs the hub on a microcontroller: the LSM6DSM sits on a TinyGo
// SPI peripheral with a software chip select, and everything the hub reports
// is printed as one line per frame on the serial console.
package mcu

import (
	"fmt"
	"io"
	"sync"
	"time"

	"tinygo.org/x/drivers"

	"github.com/relabs-tech/sensorhub/internal/hub"
	"github.com/relabs-tech/sensorhub/internal/imu"
	"github.com/relabs-tech/sensorhub/internal/sensors"
	"github.com/relabs-tech/sensorhub/internal/transport"
)

// Stream is a sensor started once the hub is ready.
type Stream struct {
	Sensor  imu.Sensor
	Rate    sensors.Hz
	Latency time.Duration
}

// Board describes the wiring of one MCU build.
type Board struct {
	SPI drivers.SPI
	CS  transport.ChipSelect
	// IRQLevel reads INT1; nil when the line is not wired.
	IRQLevel func() bool
	Out      io.Writer
	Streams  []Stream
	Options  hub.Options
}

// Controller is the part of the hub the stream presets need.
type Controller interface {
	SetPower(s imu.Sensor, on bool) bool
	SetRate(s imu.Sensor, rate sensors.Hz, latency time.Duration) bool
}

// New wires the board into a hub. The caller runs it and forwards INT1
// edges to its Interrupt method.
func New(b Board) *hub.Hub {
	sink := &LineSink{out: b.Out}
	opts := b.Options
	opts.IRQLevel = b.IRQLevel
	h := hub.New(transport.NewBatch(transport.NewTinyGoBus(b.SPI, b.CS)), sink, opts)
	sink.onReady = func() { StartStreams(h, b.Streams, sink) }
	return h
}

// StartStreams powers up each stream and sets its rate. Refusals are
// printed and skipped.
func StartStreams(ctl Controller, streams []Stream, sink *LineSink) {
	for _, st := range streams {
		if !ctl.SetPower(st.Sensor, true) {
			sink.printf("[%-13s] power refused", st.Sensor)
			continue
		}
		if !ctl.SetRate(st.Sensor, st.Rate, st.Latency) {
			sink.printf("[%-13s] rate %.3f Hz refused", st.Sensor, st.Rate.Float())
		}
	}
}

// LineSink prints hub output as text lines.
type LineSink struct {
	mu      sync.Mutex
	out     io.Writer
	onReady func()
}

func NewLineSink(out io.Writer) *LineSink { return &LineSink{out: out} }

func (s *LineSink) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format+"\n", args...)
}

func (s *LineSink) PushEvent(ev imu.Event) error {
	tag := fmt.Sprintf("[%-13s]", ev.Sensor)
	switch {
	case len(ev.Samples) > 0:
		last := ev.Samples[len(ev.Samples)-1]
		s.printf("%s n=%d t=%d x=%.4f y=%.4f z=%.4f", tag, len(ev.Samples), ev.ReferenceTime, last.X, last.Y, last.Z)
	case ev.Sensor == imu.StepCounter:
		s.printf("%s steps=%d", tag, ev.Steps)
	default:
		s.printf("%s t=%d", tag, ev.ReferenceTime)
	}
	return nil
}

func (s *LineSink) PushFlush(sensor imu.Sensor) error {
	s.printf("[%-13s] flush", sensor)
	return nil
}

func (s *LineSink) SelfTestResult(r imu.SelfTestResult) {
	s.printf("[%-13s] selftest %s", r.Sensor, r.Status)
}

func (s *LineSink) CalibrationResult(r imu.CalibrationResult) {
	s.printf("[%-13s] calibration %s bias=%v", r.Sensor, r.Status, r.Bias)
}

func (s *LineSink) PowerChanged(sensor imu.Sensor, on bool) {
	s.printf("[%-13s] power %t", sensor, on)
}

func (s *LineSink) RateChanged(sensor imu.Sensor, rate sensors.Hz, _ time.Duration) {
	if rate == sensors.RateOnChange {
		s.printf("[%-13s] rate on-change", sensor)
		return
	}
	s.printf("[%-13s] rate %.3f Hz", sensor, rate.Float())
}

// SensorsReady starts the presets off the hub goroutine, which must not
// wait on its own requests.
func (s *LineSink) SensorsReady() {
	s.printf("[STATUS] sensors ready")
	if s.onReady != nil {
		go s.onReady()
	}
}
