package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func serveCmd(t *testing.T, file string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "serve"}
	cmd.Flags().String("config", "", "")
	cmd.Flags().Bool("debug", false, "")
	if err := cmd.Flags().Set("config", file); err != nil {
		t.Fatal(err)
	}
	return cmd
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestParseOverridesDefaults(t *testing.T) {
	p := writeFile(t, `
spi:
  device: /dev/spidev1.0
slaves:
  magnetometer: ak09916
  barometer: none
hub:
  boot_delay_ms: 150
rotation:
  accel: [0, 1, 0, -1, 0, 0, 0, 0, 1]
streams:
  - sensor: gyro
    rate_hz: 208
    latency_ms: 50
mqtt:
  topic_prefix: lab/hub1
`)
	desc := NewSensorHubDesc()
	if err := desc.Parse(serveCmd(t, p)); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	o := desc.Opt
	if o.SPI.Device != "/dev/spidev1.0" || o.SPI.SpeedHz != DefaultSPISpeedHz {
		t.Errorf("spi = %+v", o.SPI)
	}
	if o.Slaves.Magnetometer != "ak09916" || o.Slaves.Barometer != "none" {
		t.Errorf("slaves = %+v", o.Slaves)
	}
	if o.BootDelay() != 150*time.Millisecond {
		t.Errorf("boot delay %v", o.BootDelay())
	}
	if len(o.Rotation.Accel) != 9 || o.Rotation.Accel[1] != 1 {
		t.Errorf("rotation = %v", o.Rotation.Accel)
	}
	if len(o.Streams) != 1 || o.Streams[0].Sensor != "gyro" || o.Streams[0].Latency() != 50*time.Millisecond {
		t.Errorf("streams = %+v", o.Streams)
	}
	if o.MQTT.TopicPrefix != "lab/hub1" || o.MQTT.Broker != DefaultMQTTBroker {
		t.Errorf("mqtt = %+v", o.MQTT)
	}
	if o.API.Port != DefaultAPIPort {
		t.Errorf("api port %d", o.API.Port)
	}
}

func TestParseRejectsBadRotation(t *testing.T) {
	p := writeFile(t, "rotation:\n  gyro: [1, 0, 0]\n")
	desc := NewSensorHubDesc()
	err := desc.Parse(serveCmd(t, p))
	if err == nil || !strings.Contains(err.Error(), "rotation.gyro") {
		t.Fatalf("err = %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*SensorHubOpt){
		"spi.device":       func(o *SensorHubOpt) { o.SPI.Device = "" },
		"queue_size":       func(o *SensorHubOpt) { o.MQTT.QueueSize = 0 },
		"sync_min_samples": func(o *SensorHubOpt) { o.Hub.SyncMaxSamples = 1 },
		"calibration.":     func(o *SensorHubOpt) { o.Calibration.Accel = []int32{1} },
		"streams[0]":       func(o *SensorHubOpt) { o.Streams[0].RateHz = 0 },
	}
	for want, mutate := range cases {
		o := NewSensorHubOpt()
		mutate(&o)
		err := o.Validate()
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Errorf("%s: err = %v", want, err)
		}
	}
	o := NewSensorHubOpt()
	if err := o.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestInitWritesTemplate(t *testing.T) {
	out := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cmd := &cobra.Command{Use: "init"}
	cmd.Flags().Bool("print", false, "")
	cmd.Flags().Bool("yes", true, "")
	cmd.Flags().String("output", out, "")
	if err := InitCfg(cmd, nil); err != nil {
		t.Fatalf("InitCfg: %v", err)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var o SensorHubOpt
	if err := yaml.Unmarshal(b, &o); err != nil {
		t.Fatalf("template is not yaml: %v", err)
	}
	if o.SPI.Device != DefaultSPIDevice || len(o.Streams) != 1 {
		t.Errorf("template = %+v", o)
	}
}

func TestInitPrints(t *testing.T) {
	cmd := &cobra.Command{Use: "init"}
	cmd.Flags().Bool("print", true, "")
	cmd.Flags().Bool("yes", false, "")
	cmd.Flags().String("output", "", "")
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	if err := InitCfg(cmd, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "topic_prefix: sensorhub") {
		t.Fatalf("printed %q", buf.String())
	}
}
