package imu

import (
	"fmt"
	"strings"
)

// Sensor identifies one virtual sensor exposed by the hub. The order is the
// order pending requests are replayed in.
type Sensor int

const (
	Gyro Sensor = iota
	Accel
	Magn
	Press
	Temp
	StepDetector
	StepCounter
	SignMotion
	NumSensors
)

var sensorNames = [NumSensors]string{
	Gyro:         "gyro",
	Accel:        "accel",
	Magn:         "magn",
	Press:        "press",
	Temp:         "temp",
	StepDetector: "step_detector",
	StepCounter:  "step_counter",
	SignMotion:   "sign_motion",
}

func (s Sensor) String() string {
	if s < 0 || s >= NumSensors {
		return fmt.Sprintf("sensor(%d)", int(s))
	}
	return sensorNames[s]
}

// Valid reports whether s names a real sensor.
func (s Sensor) Valid() bool { return s >= 0 && s < NumSensors }

// Triaxial reports whether s delivers three-axis samples.
func (s Sensor) Triaxial() bool { return s == Gyro || s == Accel || s == Magn }

// OnSensorHub reports whether s lives on an I2C slave behind the hub.
func (s Sensor) OnSensorHub() bool { return s == Magn || s == Press || s == Temp }

// ParseSensor accepts the names String returns plus a few short aliases.
func ParseSensor(name string) (Sensor, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "accelerometer", "acc":
		return Accel, nil
	case "gyroscope":
		return Gyro, nil
	case "mag", "magnetometer":
		return Magn, nil
	case "pressure", "baro":
		return Press, nil
	case "temperature":
		return Temp, nil
	}
	for i, s := range sensorNames {
		if s == n {
			return Sensor(i), nil
		}
	}
	return 0, fmt.Errorf("unknown sensor %q", name)
}

func (s Sensor) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid sensor %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Sensor) UnmarshalText(b []byte) error {
	v, err := ParseSensor(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// All returns every sensor in replay order.
func All() []Sensor {
	out := make([]Sensor, 0, NumSensors)
	for s := Sensor(0); s < NumSensors; s++ {
		out = append(out, s)
	}
	return out
}
