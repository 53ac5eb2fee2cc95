// Package fifo computes how the LSM6DSM FIFO is shared between the virtual
// sensors: per-slot decimation against one trigger rate, the watermark and
// the layout of one pattern.
package fifo

import (
	"time"

	"github.com/relabs-tech/sensorhub/internal/sensors"
)

// FIFO data sets, in the order the device interleaves them.
const (
	SlotGyro = iota
	SlotAccel
	SlotDS3 // sensor-hub slave (magnetometer, or barometer without one)
	SlotDS4 // embedded timestamp and step count
	NumSlots
)

const (
	// MaxDecimator is the largest hardware decimation factor.
	MaxDecimator = 32
	// MaxPatternRows bounds MaxMinDecimator.
	MaxPatternRows = 32
)

// SlotRequest is what the sensor feeding a slot asks for. Assigned is false
// for slots no sensor is wired to.
type SlotRequest struct {
	Assigned bool
	Rate     sensors.Hz
	Latency  time.Duration
}

// Plan is the FIFO configuration derived from the active requests.
type Plan struct {
	TriggerRate     sensors.Hz
	Decimators      [NumSlots]int
	MinDecimator    int
	MaxDecimator    int
	MaxMinDecimator int
	// TotalSip is the number of samples in one pattern.
	TotalSip  int
	Watermark int
	// TimestampPosition is the byte offset of the timestamp slot inside each
	// row of a pattern.
	TimestampPosition [MaxPatternRows]int
}

// Update is the side output of RecomputeDecimators.
type Update struct {
	Changed bool
	// SoftDecimator is the extra decimation each slot's sensor must apply
	// because latency forced the hardware factor down.
	SoftDecimator [NumSlots]int
	MinLatency    time.Duration
}

// RecomputeDecimators derives per-slot decimators from the accel and gyro
// hardware rates and the pushed rates per slot.
func (p *Plan) RecomputeDecimators(accelHw, gyroHw sensors.Hz, req [NumSlots]SlotRequest) Update {
	u := Update{MinLatency: sensors.NoLatency}

	p.TriggerRate = max(accelHw, gyroHw)

	for i := 0; i < SlotDS4; i++ {
		if req[i].Assigned && req[i].Latency < u.MinLatency {
			u.MinLatency = req[i].Latency
		}
	}

	var dec [NumSlots]int
	minDec, maxDec := 0, 0
	var period time.Duration
	if p.TriggerRate > 0 {
		period = sensors.HzToNs(p.TriggerRate)
	}

	for i := 0; i < SlotDS4; i++ {
		if !req[i].Assigned {
			continue
		}
		if req[i].Rate > 0 && p.TriggerRate > 0 {
			d := min(int(p.TriggerRate/req[i].Rate), MaxDecimator)
			if d < 1 {
				d = 1
			}
			full := d
			for d > 1 && period*time.Duration(d) > u.MinLatency {
				d /= 2
			}
			u.SoftDecimator[i] = full / d
			dec[i] = d

			if minDec == 0 || d < minDec {
				minDec = d
			}
			if d > maxDec {
				maxDec = d
			}
		}
		if p.Decimators[i] != dec[i] {
			p.Decimators[i] = dec[i]
			u.Changed = true
		}
	}

	p.Decimators[SlotDS4] = minDec
	p.MinDecimator = minDec
	p.MaxDecimator = maxDec
	p.MaxMinDecimator = div(maxDec, minDec)
	p.TotalSip = 0
	for i := range p.Decimators {
		if p.Decimators[i] > 0 {
			p.TotalSip += maxDec / p.Decimators[i]
		}
	}

	p.TimestampPosition = [MaxPatternRows]int{}
	for i := 0; i < p.MaxMinDecimator && i < MaxPatternRows; i++ {
		for n := 0; n < SlotDS4; n++ {
			if p.present(n, i) {
				p.TimestampPosition[i] += sensors.SampleBytes
			}
		}
	}
	return u
}

// RecomputeWatermark sets the watermark to the largest whole number of
// patterns that still meets minLatency, capped at MaxWatermark samples.
func (p *Plan) RecomputeWatermark(minLatency time.Duration) bool {
	if p.TotalSip == 0 || p.TriggerRate == 0 {
		return false
	}
	pattern := p.PatternPeriod()

	i := 1
	for {
		i++
		if pattern*time.Duration(i) >= minLatency || i > sensors.MaxWatermark {
			break
		}
	}
	wm := (i - 1) * p.TotalSip
	for wm > sensors.MaxWatermark {
		wm /= 2
		wm -= wm % p.TotalSip
	}
	if wm == p.Watermark {
		return false
	}
	p.Watermark = wm
	return true
}

// Active reports whether any data slot is in use.
func (p *Plan) Active() bool {
	for i := 0; i < SlotDS4; i++ {
		if p.Decimators[i] > 0 {
			return true
		}
	}
	return false
}

// PatternBytes is the size of one full pattern.
func (p *Plan) PatternBytes() int { return p.TotalSip * sensors.SampleBytes }

// SamplePeriod is the time between timestamp slots.
func (p *Plan) SamplePeriod() time.Duration {
	if p.TriggerRate == 0 || p.MinDecimator == 0 {
		return 0
	}
	return sensors.HzToNs(p.TriggerRate) * time.Duration(p.MinDecimator)
}

// PatternPeriod is the time one pattern spans.
func (p *Plan) PatternPeriod() time.Duration {
	if p.TriggerRate == 0 {
		return 0
	}
	return sensors.HzToNs(p.TriggerRate) * time.Duration(p.MaxDecimator)
}

// SlotRate is the rate samples of slot arrive at.
func (p *Plan) SlotRate(slot int) sensors.Hz {
	if p.Decimators[slot] == 0 {
		return 0
	}
	return p.TriggerRate / sensors.Hz(p.Decimators[slot])
}

// WatermarkWords is the FIFO_CTRL1/2 threshold in 16-bit words.
func (p *Plan) WatermarkWords() uint16 { return uint16(p.Watermark * sensors.SampleBytes / 2) }

// WatermarkBytes is the FIFO fill level the interrupt fires at.
func (p *Plan) WatermarkBytes() int { return p.Watermark * sensors.SampleBytes }

// ThresholdBytes is FIFO_CTRL1..2.
func (p *Plan) ThresholdBytes() [2]byte {
	w := p.WatermarkWords()
	return [2]byte{byte(w), byte(w>>8)&sensors.FifoFTHMask | sensors.EnableFifoTimestamp}
}

// ControlBytes is FIFO_CTRL1..5 for the current plan.
func (p *Plan) ControlBytes() [5]byte {
	th := p.ThresholdBytes()
	mode := byte(sensors.FifoBypassMode)
	if p.Active() {
		mode = sensors.FifoContinuousMode
	}
	return [5]byte{
		th[0],
		th[1],
		sensors.DecimatorReg(p.Decimators[SlotGyro])<<3 | sensors.DecimatorReg(p.Decimators[SlotAccel]),
		sensors.DecimatorReg(p.Decimators[SlotDS4])<<3 | sensors.DecimatorReg(p.Decimators[SlotDS3]),
		mode,
	}
}

// Chunk splits avail FIFO bytes into a read of at most limit bytes aligned to
// whole patterns and the remainder left for a later read.
func (p *Plan) Chunk(avail, limit int) (read, pending int) {
	pb := p.PatternBytes()
	if pb == 0 {
		return 0, 0
	}
	if avail > limit {
		read = limit - limit%pb
		return read, avail - read
	}
	if avail >= pb {
		return avail - avail%pb, 0
	}
	return 0, 0
}

func (p *Plan) present(slot, row int) bool {
	d := p.Decimators[slot]
	if d == 0 || p.MinDecimator == 0 {
		return false
	}
	step := d / p.MinDecimator
	return step > 0 && row%step == 0
}

// div is integer division that yields 0 for a zero divisor.
func div(a, b int) int {
	if b == 0 {
		return 0
	}
	return a / b
}

// SoftwareDecimator is how many slot samples collapse into one delivered
// sample once the FIFO-side decimation is accounted for.
func SoftwareDecimator(slotRate sensors.Hz, fifoDec int, want sensors.Hz) int {
	if fifoDec == 0 || want == 0 {
		return 0
	}
	return int(slotRate) / fifoDec / int(want)
}
