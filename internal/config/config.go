package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const DefaultAppName = "sensorhub"
const DefaultConfigName = "config"
const DefaultAPIInterface = "0.0.0.0"
const DefaultAPIPort = 8080
const DefaultSPIDevice = "/dev/spidev0.0"
const DefaultSPISpeedHz = 10_000_000
const DefaultMQTTBroker = "tcp://localhost:1883"
const DefaultTopicPrefix = "sensorhub"
const DefaultQueueSize = 256

var userHomeDir, _ = os.UserHomeDir()
var DefaultConfig = path.Join(userHomeDir, ".config", DefaultAppName, DefaultConfigName+".yaml")
var DefaultConfigSearchPath0 = path.Join(userHomeDir, ".config", DefaultAppName)

const DefaultConfigSearchPath1 = "/etc/" + DefaultAppName
const DefaultConfigSearchPath2 = "./"

type SPIOpt struct {
	Device  string `yaml:"device" mapstructure:"device"`
	SpeedHz int64  `yaml:"speed_hz" mapstructure:"speed_hz"`
}

type InterruptOpt struct {
	// Pin is a periph gpioreg name such as "GPIO25". Empty polls nothing
	// and leaves the FIFO to the time-sync timer.
	Pin string `yaml:"pin" mapstructure:"pin"`
}

type SlavesOpt struct {
	Magnetometer string `yaml:"magnetometer" mapstructure:"magnetometer"`
	Barometer    string `yaml:"barometer" mapstructure:"barometer"`
}

// RotationOpt holds 3x3 row-major matrices with entries in {-1, 0, 1}.
// Empty means identity.
type RotationOpt struct {
	Accel []int `yaml:"accel" mapstructure:"accel"`
	Gyro  []int `yaml:"gyro" mapstructure:"gyro"`
	Magn  []int `yaml:"magn" mapstructure:"magn"`
}

type HubOpt struct {
	BootDelayMs    int `yaml:"boot_delay_ms" mapstructure:"boot_delay_ms"`
	SyncMinSamples int `yaml:"sync_min_samples" mapstructure:"sync_min_samples"`
	SyncMaxSamples int `yaml:"sync_max_samples" mapstructure:"sync_max_samples"`
}

// CalibrationOpt holds raw LSB offsets restored at startup.
type CalibrationOpt struct {
	Accel []int32 `yaml:"accel" mapstructure:"accel"`
	Gyro  []int32 `yaml:"gyro" mapstructure:"gyro"`
}

// StreamOpt is a sensor started as soon as the hub is ready.
type StreamOpt struct {
	Sensor    string  `yaml:"sensor" mapstructure:"sensor"`
	RateHz    float64 `yaml:"rate_hz" mapstructure:"rate_hz"`
	LatencyMs int     `yaml:"latency_ms" mapstructure:"latency_ms"`
}

type MQTTOpt struct {
	Broker      string `yaml:"broker" mapstructure:"broker"`
	ClientID    string `yaml:"client_id" mapstructure:"client_id"`
	TopicPrefix string `yaml:"topic_prefix" mapstructure:"topic_prefix"`
	QueueSize   int    `yaml:"queue_size" mapstructure:"queue_size"`
}

type APIOpt struct {
	Port      int    `yaml:"port" mapstructure:"port"`
	Interface string `yaml:"interface" mapstructure:"interface"`
}

type SensorHubOpt struct {
	SPI         SPIOpt         `yaml:"spi" mapstructure:"spi"`
	Interrupt   InterruptOpt   `yaml:"interrupt" mapstructure:"interrupt"`
	Slaves      SlavesOpt      `yaml:"slaves" mapstructure:"slaves"`
	Rotation    RotationOpt    `yaml:"rotation" mapstructure:"rotation"`
	Hub         HubOpt         `yaml:"hub" mapstructure:"hub"`
	Calibration CalibrationOpt `yaml:"calibration" mapstructure:"calibration"`
	Streams     []StreamOpt    `yaml:"streams" mapstructure:"streams"`
	MQTT        MQTTOpt        `yaml:"mqtt" mapstructure:"mqtt"`
	API         APIOpt         `yaml:"api" mapstructure:"api"`
	Debug       bool           `yaml:"debug" mapstructure:"debug"`
}

// BootDelay is hub.boot_delay_ms as a duration.
func (o *SensorHubOpt) BootDelay() time.Duration {
	return time.Duration(o.Hub.BootDelayMs) * time.Millisecond
}

// Latency is latency_ms as a duration. Zero means no deadline.
func (s StreamOpt) Latency() time.Duration {
	return time.Duration(s.LatencyMs) * time.Millisecond
}

type SensorHubDesc struct {
	Opt   SensorHubOpt
	Viper *viper.Viper
}

func NewSensorHubDesc() SensorHubDesc {
	return SensorHubDesc{
		Opt:   NewSensorHubOpt(),
		Viper: nil,
	}
}

func NewSensorHubOpt() SensorHubOpt {
	return SensorHubOpt{
		SPI: SPIOpt{
			Device:  DefaultSPIDevice,
			SpeedHz: DefaultSPISpeedHz,
		},
		Interrupt: InterruptOpt{Pin: "GPIO25"},
		Slaves: SlavesOpt{
			Magnetometer: "lis3mdl",
			Barometer:    "lps22hb",
		},
		Hub: HubOpt{
			SyncMinSamples: 3,
			SyncMaxSamples: 25,
		},
		Streams: []StreamOpt{
			{Sensor: "accel", RateHz: 104, LatencyMs: 100},
		},
		MQTT: MQTTOpt{
			Broker:      DefaultMQTTBroker,
			ClientID:    "sensorhubd",
			TopicPrefix: DefaultTopicPrefix,
			QueueSize:   DefaultQueueSize,
		},
		API: APIOpt{
			Port:      DefaultAPIPort,
			Interface: DefaultAPIInterface,
		},
		Debug: false,
	}
}

func (o *SensorHubDesc) Parse(cmd *cobra.Command) error {
	def := NewSensorHubOpt()
	vipCfg := viper.New()
	vipCfg.SetDefault("spi.device", def.SPI.Device)
	vipCfg.SetDefault("spi.speed_hz", def.SPI.SpeedHz)
	vipCfg.SetDefault("interrupt.pin", def.Interrupt.Pin)
	vipCfg.SetDefault("slaves.magnetometer", def.Slaves.Magnetometer)
	vipCfg.SetDefault("slaves.barometer", def.Slaves.Barometer)
	vipCfg.SetDefault("hub.boot_delay_ms", def.Hub.BootDelayMs)
	vipCfg.SetDefault("hub.sync_min_samples", def.Hub.SyncMinSamples)
	vipCfg.SetDefault("hub.sync_max_samples", def.Hub.SyncMaxSamples)
	vipCfg.SetDefault("mqtt.broker", def.MQTT.Broker)
	vipCfg.SetDefault("mqtt.client_id", def.MQTT.ClientID)
	vipCfg.SetDefault("mqtt.topic_prefix", def.MQTT.TopicPrefix)
	vipCfg.SetDefault("mqtt.queue_size", def.MQTT.QueueSize)
	vipCfg.SetDefault("api.port", def.API.Port)
	vipCfg.SetDefault("api.interface", def.API.Interface)
	vipCfg.SetDefault("debug", false)

	if configFileCmd, err := cmd.Flags().GetString("config"); err == nil && configFileCmd != "" {
		vipCfg.SetConfigFile(configFileCmd)
	} else {
		configFileEnv := os.Getenv("SENSORHUB_CONFIG")
		if configFileEnv != "" {
			vipCfg.SetConfigFile(configFileEnv)
		} else {
			vipCfg.SetConfigName(DefaultConfigName)
			vipCfg.SetConfigType("yaml")
			vipCfg.AddConfigPath(DefaultConfigSearchPath0)
			vipCfg.AddConfigPath(DefaultConfigSearchPath1)
			vipCfg.AddConfigPath(DefaultConfigSearchPath2)
		}
	}

	vipCfg.SetEnvPrefix(DefaultAppName)
	vipCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vipCfg.AutomaticEnv()

	if f := cmd.Flags().Lookup("port"); f != nil {
		_ = vipCfg.BindPFlag("api.port", f)
	}
	if f := cmd.Flags().Lookup("interface"); f != nil {
		_ = vipCfg.BindPFlag("api.interface", f)
	}
	if f := cmd.Flags().Lookup("debug"); f != nil {
		_ = vipCfg.BindPFlag("debug", f)
	}

	if err := vipCfg.ReadInConfig(); err == nil {
		log.Debugln("using config file:", vipCfg.ConfigFileUsed())
	} else {
		log.Warnln(err)
	}

	// A configured stream list replaces the presets instead of merging into
	// them element by element.
	if vipCfg.IsSet("streams") {
		o.Opt.Streams = nil
	}
	if err := vipCfg.Unmarshal(&o.Opt); err != nil {
		return fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := o.Opt.Validate(); err != nil {
		return err
	}

	o.Viper = vipCfg
	return nil
}

// Validate checks the values the daemon cannot start without.
func (o *SensorHubOpt) Validate() error {
	if o.SPI.Device == "" {
		return errors.New("config: spi.device is required")
	}
	if o.SPI.SpeedHz <= 0 {
		return fmt.Errorf("config: spi.speed_hz must be positive, got %d", o.SPI.SpeedHz)
	}
	if o.MQTT.QueueSize <= 0 {
		return fmt.Errorf("config: mqtt.queue_size must be positive, got %d", o.MQTT.QueueSize)
	}
	if o.Hub.SyncMinSamples < 2 || o.Hub.SyncMaxSamples < o.Hub.SyncMinSamples {
		return fmt.Errorf("config: hub.sync_min_samples %d / sync_max_samples %d out of range",
			o.Hub.SyncMinSamples, o.Hub.SyncMaxSamples)
	}
	for name, m := range map[string][]int{"accel": o.Rotation.Accel, "gyro": o.Rotation.Gyro, "magn": o.Rotation.Magn} {
		if len(m) != 0 && len(m) != 9 {
			return fmt.Errorf("config: rotation.%s needs 9 entries, got %d", name, len(m))
		}
	}
	for name, c := range map[string][]int32{"accel": o.Calibration.Accel, "gyro": o.Calibration.Gyro} {
		if len(c) != 0 && len(c) != 3 {
			return fmt.Errorf("config: calibration.%s needs 3 entries, got %d", name, len(c))
		}
	}
	for i, s := range o.Streams {
		if s.Sensor == "" || s.RateHz <= 0 {
			return fmt.Errorf("config: streams[%d] needs a sensor and a positive rate_hz", i)
		}
	}
	return nil
}

func (o *SensorHubDesc) PostParse() {
	if o.Opt.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// InitCfg writes a configuration template, or prints it with --print.
func InitCfg(cmd *cobra.Command, _ []string) error {
	printFlag, _ := cmd.Flags().GetBool("print")
	outputPath, _ := cmd.Flags().GetString("output")
	overwriteFlag, _ := cmd.Flags().GetBool("yes")

	buffer, err := yaml.Marshal(NewSensorHubOpt())
	if err != nil {
		return fmt.Errorf("config: marshal template: %w", err)
	}
	if printFlag {
		fmt.Fprintln(cmd.OutOrStdout(), string(buffer))
		return nil
	}
	return DumpTemplate(buffer, outputPath, overwriteFlag)
}

// DumpTemplate writes buffer to outputPath, asking before it replaces an
// existing file unless overwrite is set.
func DumpTemplate(buffer []byte, outputPath string, overwrite bool) error {
	if err := os.MkdirAll(path.Dir(outputPath), 0700); err != nil {
		return fmt.Errorf("config: cannot create directory %s: %w", path.Dir(outputPath), err)
	}
	if !overwrite {
		if _, err := os.Stat(outputPath); err == nil && !askYes("configuration "+outputPath+" already exist, overwrite?") {
			log.Infoln("abort")
			return nil
		}
	}

	log.Infoln("writing default configuration to", outputPath)
	f, err := os.OpenFile(outputPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("config: cannot open %s: %w", outputPath, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if _, err := w.Write(buffer); err != nil {
		return fmt.Errorf("config: write %s: %w", outputPath, err)
	}
	return w.Flush()
}

func askYes(s string) bool {
	fmt.Printf("%s [Y/n]: ", s)
	response, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(response)) {
	case "", "y", "yes":
		return true
	}
	return false
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal and Get.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex protects concurrent access. Write lock for initialization,
//     read lock for Get() so readers never block each other.
var (
	globalConfig *SensorHubOpt
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// InitGlobal parses the configuration for cmd and applies the log level.
// Only the first call does any work.
func InitGlobal(cmd *cobra.Command) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		desc := NewSensorHubDesc()
		if err = desc.Parse(cmd); err != nil {
			return
		}
		desc.PostParse()
		globalConfig = &desc.Opt
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *SensorHubOpt {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
