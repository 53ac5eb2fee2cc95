package imu

// MaxBatchSamples is the capacity of one event batch.
const MaxBatchSamples = 15

// FirstSample is the header carried by the first sample of a batch.
type FirstSample struct {
	NumSamples int `json:"num_samples"`
	// BiasPresent marks that Samples[BiasSample] is a bias update rather than
	// a measurement.
	BiasPresent bool `json:"bias_present,omitempty"`
	BiasSample  int  `json:"bias_sample,omitempty"`
}

// Sample is one measurement. DeltaNs is the distance from the previous
// sample in the batch (0 for the first). One-axis sensors only use X.
type Sample struct {
	DeltaNs uint64  `json:"delta_ns"`
	X       float32 `json:"x"`
	Y       float32 `json:"y,omitempty"`
	Z       float32 `json:"z,omitempty"`
}

// Event is one delivery to the host. Batched sensors fill Samples, embedded
// value sensors (temperature, step counter) fill Value or Steps, and
// step detector / significant motion events carry nothing but the sensor.
type Event struct {
	Sensor        Sensor      `json:"sensor"`
	ReferenceTime uint64      `json:"reference_time_ns,omitempty"`
	First         FirstSample `json:"first"`
	Samples       []Sample    `json:"samples,omitempty"`
	Value         float32     `json:"value,omitempty"`
	Steps         uint32      `json:"steps,omitempty"`
}

// Status is the outcome of a self-test or calibration run.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusBusy Status = "busy"
)

// SelfTestResult reports a self-test run.
type SelfTestResult struct {
	Sensor Sensor `json:"sensor"`
	Status Status `json:"status"`
}

// CalibrationResult reports a calibration run. Bias is in raw LSB.
type CalibrationResult struct {
	Sensor Sensor   `json:"sensor"`
	Status Status   `json:"status"`
	Bias   [3]int32 `json:"bias"`
}

// CalibrationData is a stored calibration pushed back to the hub: HW is the
// raw LSB offset, SW is handed to the bias estimator.
type CalibrationData struct {
	HW [3]int32   `json:"hw"`
	SW [3]float32 `json:"sw"`
}
