package app

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/sensorhub/internal/config"
	"github.com/relabs-tech/sensorhub/internal/hub"
	"github.com/relabs-tech/sensorhub/internal/imu"
	"github.com/relabs-tech/sensorhub/internal/sensors"
)

// fakeCtl records calls and accepts everything except the sensors in refuse.
type fakeCtl struct {
	mu     sync.Mutex
	calls  []string
	refuse map[imu.Sensor]bool
	rates  map[imu.Sensor]sensors.Hz
	cal    map[imu.Sensor]imu.CalibrationData
}

func newFakeCtl() *fakeCtl {
	return &fakeCtl{
		refuse: map[imu.Sensor]bool{},
		rates:  map[imu.Sensor]sensors.Hz{},
		cal:    map[imu.Sensor]imu.CalibrationData{},
	}
}

func (c *fakeCtl) record(name string, s imu.Sensor) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name+" "+s.String())
	return !c.refuse[s]
}

func (c *fakeCtl) SetPower(s imu.Sensor, on bool) bool {
	if on {
		return c.record("on", s)
	}
	return c.record("off", s)
}

func (c *fakeCtl) SetRate(s imu.Sensor, rate sensors.Hz, _ time.Duration) bool {
	c.mu.Lock()
	c.rates[s] = rate
	c.mu.Unlock()
	return c.record("rate", s)
}

func (c *fakeCtl) Flush(s imu.Sensor) bool          { return c.record("flush", s) }
func (c *fakeCtl) RunSelfTest(s imu.Sensor) bool    { return c.record("selftest", s) }
func (c *fakeCtl) RunCalibration(s imu.Sensor) bool { return c.record("calibrate", s) }
func (c *fakeCtl) SendLastStepCount() bool          { return c.record("steps", imu.StepCounter) }
func (c *fakeCtl) Status() hub.Status               { return hub.Status{State: "idle", SyncMode: "timer"} }

func (c *fakeCtl) SetCalibrationData(s imu.Sensor, d imu.CalibrationData) bool {
	c.mu.Lock()
	c.cal[s] = d
	c.mu.Unlock()
	return c.record("setcal", s)
}

func (c *fakeCtl) history() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func dialControl(t *testing.T, h *ControlHandler) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(NewAPIMux(h, nil))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/control"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	var hello ControlResponse
	readJSON(t, conn, &hello)
	if hello.Type != "status" || hello.Status == nil || hello.Status.State != "idle" {
		t.Fatalf("hello = %+v", hello)
	}
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(v); err != nil {
		t.Fatalf("read: %v", err)
	}
}

func roundTrip(t *testing.T, conn *websocket.Conn, cmd ControlCmd) ControlResponse {
	t.Helper()
	if err := conn.WriteJSON(cmd); err != nil {
		t.Fatal(err)
	}
	var resp ControlResponse
	readJSON(t, conn, &resp)
	return resp
}

func TestControlCommands(t *testing.T) {
	ctl := newFakeCtl()
	ctl.refuse[imu.Magn] = true
	conn := dialControl(t, &ControlHandler{Hub: ctl, Streams: NewMQTTSink(newFakePublisher(), "x", 4)})

	cases := []struct {
		cmd  ControlCmd
		want bool
	}{
		{ControlCmd{Action: "power", Sensor: "accel", On: true}, true},
		{ControlCmd{Action: "rate", Sensor: "accelerometer", RateHz: 104, LatencyMs: 50}, true},
		{ControlCmd{Action: "rate", Sensor: "step_counter", OnChange: true}, true},
		{ControlCmd{Action: "flush", Sensor: "accel"}, true},
		{ControlCmd{Action: "self_test", Sensor: "gyro"}, true},
		{ControlCmd{Action: "calibrate", Sensor: "magn"}, false},
		{ControlCmd{Action: "set_calibration", Sensor: "gyro", Data: &imu.CalibrationData{HW: [3]int32{1, 2, 3}}}, true},
		{ControlCmd{Action: "step_count"}, true},
	}
	for _, c := range cases {
		resp := roundTrip(t, conn, c.cmd)
		if resp.Type != "ack" || resp.Action != c.cmd.Action || resp.Accepted != c.want {
			t.Errorf("%s: %+v", c.cmd.Action, resp)
		}
	}

	want := []string{"on accel", "rate accel", "rate step_counter", "flush accel", "selftest gyro",
		"calibrate magn", "setcal gyro", "steps step_counter"}
	if got := ctl.history(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("calls %v", got)
	}
	if ctl.rates[imu.Accel] != sensors.ImuRates[7] || ctl.rates[imu.StepCounter] != sensors.RateOnChange {
		t.Fatalf("rates %v", ctl.rates)
	}
	if ctl.cal[imu.Gyro].HW != [3]int32{1, 2, 3} {
		t.Fatalf("calibration %v", ctl.cal[imu.Gyro])
	}
}

func TestControlErrors(t *testing.T) {
	conn := dialControl(t, &ControlHandler{Hub: newFakeCtl(), Streams: NewMQTTSink(newFakePublisher(), "x", 4)})
	for _, cmd := range []ControlCmd{
		{Action: "power", Sensor: "thermometer"},
		{Action: "dance", Sensor: "accel"},
		{Action: "set_calibration", Sensor: "accel"},
		{Action: "get_map", Device: "magnetometer"},
		{Action: "get_map", Register: "NOPE"},
	} {
		if resp := roundTrip(t, conn, cmd); resp.Type != "error" || resp.Message == "" {
			t.Errorf("%+v: %+v", cmd, resp)
		}
	}
}

func TestControlRegisterMap(t *testing.T) {
	conn := dialControl(t, &ControlHandler{
		Hub:     newFakeCtl(),
		Streams: NewMQTTSink(newFakePublisher(), "x", 4),
		Mag:     sensors.LIS3MDL{},
	})

	resp := roundTrip(t, conn, ControlCmd{Action: "get_map"})
	if resp.Type != "register_map" || resp.Device != "lsm6dsm" || len(resp.RegisterMap) == 0 {
		t.Fatalf("%+v", resp)
	}
	resp = roundTrip(t, conn, ControlCmd{Action: "get_map", Register: "WHO_AM_I"})
	if len(resp.RegisterMap) != 1 || resp.RegisterMap[0].Address != "0x0F" {
		t.Fatalf("WHO_AM_I: %+v", resp.RegisterMap)
	}
	resp = roundTrip(t, conn, ControlCmd{Action: "get_map", Device: "magnetometer"})
	if resp.Device != "lis3mdl" || len(resp.RegisterMap) == 0 {
		t.Fatalf("magnetometer: %+v", resp)
	}
}

func TestControlStream(t *testing.T) {
	sink := NewMQTTSink(newFakePublisher(), "x", 16)
	conn := dialControl(t, &ControlHandler{Hub: newFakeCtl(), Streams: sink})

	resp := roundTrip(t, conn, ControlCmd{Action: "subscribe", Sensors: []string{"gyro"}})
	if resp.Type != "ack" || !resp.Accepted {
		t.Fatalf("subscribe: %+v", resp)
	}
	sink.PushEvent(imu.Event{Sensor: imu.Accel})
	sink.PushEvent(imu.Event{Sensor: imu.Gyro, ReferenceTime: 7})

	var f struct {
		Type   string    `json:"type"`
		Sensor string    `json:"sensor"`
		Data   imu.Event `json:"data"`
	}
	readJSON(t, conn, &f)
	if f.Type != FrameEvent || f.Sensor != "gyro" || f.Data.ReferenceTime != 7 {
		t.Fatalf("frame %+v", f)
	}
}

func TestApplyPresets(t *testing.T) {
	ctl := newFakeCtl()
	ctl.refuse[imu.Magn] = true
	cfg := config.NewSensorHubOpt()
	cfg.Calibration.Accel = []int32{4, 5, 6}
	cfg.Streams = []config.StreamOpt{
		{Sensor: "gyro", RateHz: 26, LatencyMs: 10},
		{Sensor: "magn", RateHz: 13},
		{Sensor: "bogus", RateHz: 1},
	}
	ApplyPresets(ctl, &cfg)

	want := "setcal accel,on gyro,rate gyro,on magn"
	if got := strings.Join(ctl.history(), ","); got != want {
		t.Fatalf("calls %s, want %s", got, want)
	}
	if ctl.rates[imu.Gyro] != sensors.ImuRates[5] {
		t.Fatalf("gyro rate %d", ctl.rates[imu.Gyro])
	}
}

func TestFormatFrame(t *testing.T) {
	line, err := FormatFrame("x/accel", []byte(`{"type":"event","sensor":"accel","data":{"sensor":"accel","reference_time_ns":5,"first":{"num_samples":1},"samples":[{"delta_ns":0,"x":1,"y":2,"z":3}]}}`))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(line, "accel") || !strings.Contains(line, "z=    3.0000") {
		t.Fatalf("line %q", line)
	}
	line, err = FormatFrame("x/status", []byte(`{"type":"status","data":{"state":"idle","sync_mode":"timer","sync_anchors":4}}`))
	if err != nil || !strings.Contains(line, "state=idle") || !strings.Contains(line, "anchors=4") {
		t.Fatalf("status line %q, %v", line, err)
	}
	if _, err := FormatFrame("x", []byte("{")); err == nil {
		t.Fatal("bad json accepted")
	}
}
