package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/sensorhub/internal/errcode"
	"github.com/relabs-tech/sensorhub/internal/hub"
	"github.com/relabs-tech/sensorhub/internal/imu"
	"github.com/relabs-tech/sensorhub/internal/sensors"
)

const publishTimeout = 2 * time.Second

// Publisher is the part of mqtt.Client the sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Frame is the JSON envelope used on every MQTT topic and websocket stream.
type Frame struct {
	Type   string `json:"type"`
	Sensor string `json:"sensor,omitempty"`
	Data   any    `json:"data,omitempty"`

	sensor imu.Sensor
}

func sensorFrame(typ string, s imu.Sensor, data any) Frame {
	return Frame{Type: typ, Sensor: s.String(), Data: data, sensor: s}
}

func globalFrame(typ string, data any) Frame {
	return Frame{Type: typ, Data: data, sensor: -1}
}

// Frame types.
const (
	FrameEvent       = "event"
	FrameFlush       = "flush"
	FrameSelfTest    = "selftest"
	FrameCalibration = "calibration"
	FramePower       = "power"
	FrameRate        = "rate"
	FrameReady       = "ready"
	FrameStatus      = "status"
)

// RateInfo is the payload of a rate frame.
type RateInfo struct {
	RateHz    float64 `json:"rate_hz"`
	OnChange  bool    `json:"on_change,omitempty"`
	LatencyMs int64   `json:"latency_ms,omitempty"`
}

type outMsg struct {
	topic    string
	retained bool
	payload  []byte
}

type subscriber struct {
	ch     chan []byte
	filter func(imu.Sensor) bool
}

// MQTTSink implements hub.Sink. The hub goroutine only encodes and queues;
// Run drains the queue into the broker. Frames are also copied to the
// websocket subscribers, dropping for the ones that fall behind.
type MQTTSink struct {
	pub    Publisher
	prefix string
	queue  chan outMsg

	// OnReady runs on its own goroutine once the hub reports its sensors
	// ready, so it may call back into the hub.
	OnReady func()

	mu   sync.Mutex
	subs map[*subscriber]struct{}

	dropped atomic.Uint64
}

func NewMQTTSink(pub Publisher, prefix string, queueSize int) *MQTTSink {
	return &MQTTSink{
		pub:    pub,
		prefix: prefix,
		queue:  make(chan outMsg, queueSize),
		subs:   map[*subscriber]struct{}{},
	}
}

// Topic returns the topic of sensor s with optional sub-topic parts.
func (m *MQTTSink) Topic(s imu.Sensor, parts ...string) string {
	t := m.prefix + "/" + s.String()
	for _, p := range parts {
		t += "/" + p
	}
	return t
}

// Dropped counts frames lost to a full queue.
func (m *MQTTSink) Dropped() uint64 { return m.dropped.Load() }

// Run publishes queued frames until ctx is cancelled.
func (m *MQTTSink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-m.queue:
			tok := m.pub.Publish(msg.topic, 0, msg.retained, msg.payload)
			if !tok.WaitTimeout(publishTimeout) {
				log.Warnf("mqtt: publish %s timed out", msg.topic)
				continue
			}
			if err := tok.Error(); err != nil {
				log.Warnf("mqtt: publish %s: %v", msg.topic, err)
			}
		}
	}
}

// Subscribe registers a websocket stream. filter selects the sensors it
// wants; the returned cancel must be called when the stream ends.
func (m *MQTTSink) Subscribe(filter func(imu.Sensor) bool, buffer int) (<-chan []byte, func()) {
	sub := &subscriber{ch: make(chan []byte, buffer), filter: filter}
	m.mu.Lock()
	m.subs[sub] = struct{}{}
	m.mu.Unlock()
	return sub.ch, func() {
		m.mu.Lock()
		delete(m.subs, sub)
		m.mu.Unlock()
	}
}

func (m *MQTTSink) emit(topic string, retained bool, f Frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("mqtt: encode %s frame: %w", f.Type, err)
	}

	m.mu.Lock()
	for sub := range m.subs {
		if f.sensor >= 0 && sub.filter != nil && !sub.filter(f.sensor) {
			continue
		}
		select {
		case sub.ch <- payload:
		default:
		}
	}
	m.mu.Unlock()

	select {
	case m.queue <- outMsg{topic: topic, retained: retained, payload: payload}:
		return nil
	default:
		m.dropped.Add(1)
		return &errcode.E{C: errcode.Overflow, Op: "mqtt", Msg: topic}
	}
}

func (m *MQTTSink) report(topic string, f Frame) {
	if err := m.emit(topic, false, f); err != nil {
		log.Warnf("mqtt: %s %s report lost: %v", f.Sensor, f.Type, err)
	}
}

func (m *MQTTSink) PushEvent(ev imu.Event) error {
	return m.emit(m.Topic(ev.Sensor), false, sensorFrame(FrameEvent, ev.Sensor, ev))
}

func (m *MQTTSink) PushFlush(s imu.Sensor) error {
	return m.emit(m.Topic(s, "flush"), false, sensorFrame(FrameFlush, s, nil))
}

func (m *MQTTSink) SelfTestResult(r imu.SelfTestResult) {
	m.report(m.Topic(r.Sensor, "selftest"), sensorFrame(FrameSelfTest, r.Sensor, r))
}

func (m *MQTTSink) CalibrationResult(r imu.CalibrationResult) {
	m.report(m.Topic(r.Sensor, "calibration"), sensorFrame(FrameCalibration, r.Sensor, r))
}

func (m *MQTTSink) PowerChanged(s imu.Sensor, on bool) {
	log.Infof("hub: %s power %t", s, on)
	m.report(m.Topic(s, "config"), sensorFrame(FramePower, s, map[string]bool{"enabled": on}))
}

func (m *MQTTSink) RateChanged(s imu.Sensor, rate sensors.Hz, latency time.Duration) {
	info := RateInfo{}
	if rate == sensors.RateOnChange {
		info.OnChange = true
	} else {
		info.RateHz = rate.Float()
	}
	if latency != sensors.NoLatency {
		info.LatencyMs = latency.Milliseconds()
	}
	log.Infof("hub: %s rate %+v", s, info)
	m.report(m.Topic(s, "config"), sensorFrame(FrameRate, s, info))
}

func (m *MQTTSink) SensorsReady() {
	if err := m.emit(m.prefix+"/status", false, globalFrame(FrameReady, nil)); err != nil {
		log.Warnf("mqtt: ready report lost: %v", err)
	}
	if m.OnReady != nil {
		go m.OnReady()
	}
}

// PublishStatus publishes a retained hub snapshot.
func (m *MQTTSink) PublishStatus(st hub.Status) {
	if err := m.emit(m.prefix+"/status", true, globalFrame(FrameStatus, st)); err != nil {
		log.Debugf("mqtt: status dropped: %v", err)
	}
}

var _ hub.Sink = (*MQTTSink)(nil)
