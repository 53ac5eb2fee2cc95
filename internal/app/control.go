// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/sensorhub/internal/hub"
	"github.com/relabs-tech/sensorhub/internal/imu"
	"github.com/relabs-tech/sensorhub/internal/sensors"
)

const (
	streamBuffer = 64
	writeWait    = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// Controller is what the control socket drives, implemented by *hub.Hub.
type Controller interface {
	SetPower(s imu.Sensor, on bool) bool
	SetRate(s imu.Sensor, rate sensors.Hz, latency time.Duration) bool
	Flush(s imu.Sensor) bool
	RunSelfTest(s imu.Sensor) bool
	RunCalibration(s imu.Sensor) bool
	SetCalibrationData(s imu.Sensor, d imu.CalibrationData) bool
	SendLastStepCount() bool
	Status() hub.Status
}

// Streamer hands out live frame streams, implemented by *MQTTSink.
type Streamer interface {
	Subscribe(filter func(imu.Sensor) bool, buffer int) (<-chan []byte, func())
}

// ControlCmd is every request the control socket accepts. Which fields
// matter depends on Action.
type ControlCmd struct {
	Action    string               `json:"action"`
	Sensor    string               `json:"sensor,omitempty"`
	Sensors   []string             `json:"sensors,omitempty"`
	On        bool                 `json:"on,omitempty"`
	RateHz    float64              `json:"rate_hz,omitempty"`
	OnChange  bool                 `json:"on_change,omitempty"`
	LatencyMs int                  `json:"latency_ms,omitempty"`
	Device    string               `json:"device,omitempty"`
	Register  string               `json:"register,omitempty"`
	Data      *imu.CalibrationData `json:"data,omitempty"`
}

// ControlResponse answers one ControlCmd.
type ControlResponse struct {
	Type        string                 `json:"type"` // "ack", "status", "register_map", "error"
	Action      string                 `json:"action,omitempty"`
	Sensor      string                 `json:"sensor,omitempty"`
	Accepted    bool                   `json:"accepted,omitempty"`
	Device      string                 `json:"device,omitempty"`
	Status      *hub.Status            `json:"status,omitempty"`
	RegisterMap []sensors.RegisterInfo `json:"register_map,omitempty"`
	Message     string                 `json:"message,omitempty"`
}

// ControlHandler serves the control websocket: commands in, acknowledgements
// and the live frame stream out.
type ControlHandler struct {
	Hub     Controller
	Streams Streamer
	Mag     sensors.Magnetometer
	Baro    sensors.Barometer
}

// controlSession holds one websocket connection. gorilla connections take
// one writer at a time, so every write goes through send.
type controlSession struct {
	h    *ControlHandler
	conn *websocket.Conn

	wmu sync.Mutex

	mu     sync.Mutex
	filter map[imu.Sensor]bool
	cancel func()
}

func (h *ControlHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("control: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	s := &controlSession{h: h, conn: conn}
	defer s.stopStream()

	st := h.Hub.Status()
	if err := s.send(ControlResponse{Type: "status", Status: &st}); err != nil {
		log.Warnf("control: initial status: %v", err)
		return
	}

	for {
		var cmd ControlCmd
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("control: websocket error: %v", err)
			}
			return
		}
		if err := s.handle(cmd); err != nil {
			log.Debugf("control: %s: %v", cmd.Action, err)
			return
		}
	}
}

func (s *controlSession) send(v any) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

func (s *controlSession) sendRaw(b []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

func (s *controlSession) sendError(format string, args ...any) error {
	return s.send(ControlResponse{Type: "error", Message: fmt.Sprintf(format, args...)})
}

func (s *controlSession) ack(cmd ControlCmd, accepted bool) error {
	return s.send(ControlResponse{Type: "ack", Action: cmd.Action, Sensor: cmd.Sensor, Accepted: accepted})
}

// handle runs one command. Only a failed write ends the session.
func (s *controlSession) handle(cmd ControlCmd) error {
	hb := s.h.Hub
	switch cmd.Action {
	case "status":
		st := hb.Status()
		return s.send(ControlResponse{Type: "status", Status: &st})
	case "get_map":
		return s.sendRegisterMap(cmd.Device, cmd.Register)
	case "subscribe":
		return s.startStream(cmd.Sensors)
	case "unsubscribe":
		s.stopStream()
		return s.ack(cmd, true)
	case "step_count":
		return s.ack(cmd, hb.SendLastStepCount())
	}

	sensor, err := imu.ParseSensor(cmd.Sensor)
	if err != nil {
		return s.sendError("%s: %v", cmd.Action, err)
	}
	var ok bool
	switch cmd.Action {
	case "power":
		ok = hb.SetPower(sensor, cmd.On)
	case "rate":
		rate := sensors.HzOf(cmd.RateHz)
		if cmd.OnChange {
			rate = sensors.RateOnChange
		}
		ok = hb.SetRate(sensor, rate, time.Duration(cmd.LatencyMs)*time.Millisecond)
	case "flush":
		ok = hb.Flush(sensor)
	case "self_test":
		ok = hb.RunSelfTest(sensor)
	case "calibrate":
		ok = hb.RunCalibration(sensor)
	case "set_calibration":
		if cmd.Data == nil {
			return s.sendError("set_calibration: missing data")
		}
		ok = hb.SetCalibrationData(sensor, *cmd.Data)
	default:
		return s.sendError("unknown action: %s", cmd.Action)
	}
	return s.ack(cmd, ok)
}

// sendRegisterMap sends the metadata of device ("lsm6dsm", "magnetometer"
// or "barometer"), or of a single register of it.
func (s *controlSession) sendRegisterMap(device, register string) error {
	var regs []sensors.RegisterInfo
	switch device {
	case "", "lsm6dsm":
		device = "lsm6dsm"
		regs = sensors.LSM6DSMRegisterMap()
	case "magnetometer":
		if s.h.Mag == nil {
			return s.sendError("get_map: no magnetometer configured")
		}
		device = s.h.Mag.Name()
		regs = s.h.Mag.RegisterMap()
	case "barometer":
		if s.h.Baro == nil {
			return s.sendError("get_map: no barometer configured")
		}
		device = s.h.Baro.Name()
		regs = s.h.Baro.RegisterMap()
	default:
		return s.sendError("get_map: unknown device %q", device)
	}
	if register != "" {
		r, ok := sensors.FindRegister(regs, register)
		if !ok {
			return s.sendError("get_map: %s has no register %q", device, register)
		}
		regs = []sensors.RegisterInfo{r}
	}
	return s.send(ControlResponse{Type: "register_map", Device: device, RegisterMap: regs})
}

// startStream (re)starts forwarding frames for names, or for every sensor
// when names is empty.
func (s *controlSession) startStream(names []string) error {
	filter := map[imu.Sensor]bool{}
	for _, n := range names {
		sensor, err := imu.ParseSensor(n)
		if err != nil {
			return s.sendError("subscribe: %v", err)
		}
		filter[sensor] = true
	}
	s.stopStream()

	s.mu.Lock()
	s.filter = filter
	s.mu.Unlock()

	// Subscribe outside s.mu: the sink calls wants with its own lock held.
	ch, cancel := s.h.Streams.Subscribe(s.wants, streamBuffer)
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel = func() {
		cancel()
		close(done)
	}
	s.mu.Unlock()

	go func() {
		for {
			select {
			case <-done:
				return
			case b := <-ch:
				if err := s.sendRaw(b); err != nil {
					log.Debugf("control: stream write: %v", err)
					return
				}
			}
		}
	}()
	return s.send(ControlResponse{Type: "ack", Action: "subscribe", Accepted: true})
}

func (s *controlSession) wants(sensor imu.Sensor) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.filter) == 0 || s.filter[sensor]
}

func (s *controlSession) stopStream() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// decodeFrame splits a frame into its header and raw payload.
func decodeFrame(b []byte) (Frame, json.RawMessage, error) {
	var raw struct {
		Type   string          `json:"type"`
		Sensor string          `json:"sensor"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return Frame{}, nil, err
	}
	return Frame{Type: raw.Type, Sensor: raw.Sensor}, raw.Data, nil
}
