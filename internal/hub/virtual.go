package hub

import (
	"time"

	"github.com/relabs-tech/sensorhub/internal/imu"
	"github.com/relabs-tech/sensorhub/internal/sensors"
)

// virtualSensor is one sensor as the host sees it. rate holds what every
// dependent asks of this sensor: the accelerometer, for example, carries the
// pedometer functions' 26 Hz next to its own requested rate.
type virtualSensor struct {
	id      imu.Sensor
	enabled bool

	rate        [imu.NumSensors]sensors.Hz
	requireData [imu.NumSensors]bool
	hwRate      sensors.Hz
	latency     time.Duration

	discard int

	// softDec thins samples below what the FIFO can decimate, fifoDec
	// undoes decimation the FIFO could not apply because of latency.
	softDec, softCounter int
	fifoDec, fifoCounter int

	batch  outBatch
	pushed uint64

	pcfg struct {
		enable  bool
		rate    sensors.Hz
		latency time.Duration
	}
}

func newVirtualSensor(id imu.Sensor) virtualSensor {
	return virtualSensor{id: id, latency: sensors.NoLatency}
}

// outBatch is the fixed-capacity arena samples collect in until they are
// pushed to the sink.
type outBatch struct {
	open        bool
	reference   uint64
	samples     [imu.MaxBatchSamples]imu.Sample
	n           int
	biasPresent bool
	biasSample  int
}

func (b *outBatch) reset() { *b = outBatch{} }

func (b *outBatch) full() bool { return b.n >= imu.MaxBatchSamples-1 }

// event copies the batch out; the sink may keep it after the arena is
// reused.
func (b *outBatch) event(s imu.Sensor) imu.Event {
	return imu.Event{
		Sensor:        s,
		ReferenceTime: b.reference,
		First: imu.FirstSample{
			NumSamples:  b.n,
			BiasPresent: b.biasPresent,
			BiasSample:  b.biasSample,
		},
		Samples: append([]imu.Sample(nil), b.samples[:b.n]...),
	}
}

// append adds a sample taken at ts. The first sample carries no delta.
func (vs *virtualSensor) append(ts uint64, x, y, z float32) {
	b := &vs.batch
	if !b.open {
		b.open = true
		b.reference = ts
		vs.pushed = ts
	}
	s := imu.Sample{X: x, Y: y, Z: z}
	if b.n > 0 {
		s.DeltaNs = ts - vs.pushed
		vs.pushed = ts
	}
	b.samples[b.n] = s
	b.n++
}

// appendBias marks the next slot as a bias update. Only one per batch.
func (vs *virtualSensor) appendBias(ts uint64, bias [3]float32) {
	b := &vs.batch
	if b.biasPresent {
		return
	}
	if !b.open {
		b.open = true
		b.reference = ts
		vs.pushed = ts
	}
	b.biasPresent = true
	b.biasSample = b.n
	b.samples[b.n] = imu.Sample{X: bias[0], Y: bias[1], Z: bias[2]}
	b.n++
}

// decimate advances the software decimator and reports whether this sample
// is delivered. A sensor with no rate delivers nothing.
func (vs *virtualSensor) decimate() bool {
	if vs.softDec <= 0 {
		return false
	}
	vs.softCounter++
	if vs.softCounter < vs.softDec {
		return false
	}
	vs.softCounter = 0
	return true
}

func (vs *virtualSensor) setSoftDecimator(n int) {
	vs.softDec = n
	vs.softCounter = n - 1
}

func (vs *virtualSensor) setFifoDecimator(n int) {
	vs.fifoDec = n
	vs.fifoCounter = n - 1
}
