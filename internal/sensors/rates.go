package sensors

import (
	"math"
	"time"

	log "github.com/sirupsen/logrus"
)

// Hz is a rate in Hz × 1024, the fixed point the rate tables use.
type Hz uint32

// RateOnChange is the step counter's event-driven delivery rate.
const RateOnChange Hz = 0xFFFFFF01

// NoLatency is the latency of a sensor nobody asked a deadline for.
const NoLatency = time.Duration(math.MaxInt64)

// HzOf converts a floating point frequency to fixed point.
func HzOf(f float64) Hz { return Hz(math.Round(f * 1024)) }

// Float returns the rate in Hz.
func (h Hz) Float() float64 { return float64(h) / 1024 }

// Period is 1/h, or 0 for a zero rate.
func (h Hz) Period() time.Duration {
	if h == 0 {
		return 0
	}
	return time.Duration(1024e9 / uint64(h))
}

// ImuRates are the accelerometer and gyroscope output rates. The first
// entries sit below the 12.5 Hz hardware floor and run the device at 13 Hz.
var ImuRates = [...]Hz{
	832,    // 0.8125 Hz
	1664,   // 1.625 Hz
	3328,   // 3.25 Hz
	6656,   // 6.5 Hz
	13312,  // 13 Hz
	26624,  // 26 Hz
	53248,  // 52 Hz
	106496, // 104 Hz
	212992, // 208 Hz
	425984, // 416 Hz
}

var imuRatesNs = [...]time.Duration{
	1230769230,
	615384615,
	307692308,
	153846154,
	80000000,
	38461538,
	19230769,
	9615385,
	4807692,
	2403846,
}

var imuRatesReg = [...]byte{
	Odr12Hz, Odr12Hz, Odr12Hz, Odr12Hz, Odr12Hz,
	Odr26Hz, Odr52Hz, Odr104Hz, Odr208Hz, Odr416Hz,
}

// Samples dropped after an ODR change before data settles.
var (
	accelDiscard       = [...]int{1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	gyroDiscard        = [...]int{2, 2, 2, 2, 2, 3, 3, 3, 3, 3}
	gyroPowerOnDiscard = [...]int{1, 1, 1, 1, 1, 2, 4, 8, 16, 33}
)

// SHRates are the rates offered for sensor-hub slaves.
var SHRates = [...]Hz{832, 1664, 3328, 6656, 13312, 26624, 53248, 106496}

// SelfTestRateIndex selects 104 Hz in both rate tables.
const SelfTestRateIndex = len(SHRates) - 1

// StepCounterRates are the step counter delivery rates.
var StepCounterRates = [...]Hz{
	4, 9, 19, 39, 78, 156, 312, 625, RateOnChange,
}

// Rates accelerometer-driven pedometer functions need.
var (
	MinAccelRate  = ImuRates[4]
	PedometerRate = ImuRates[5]
	SelfTestRate  = ImuRates[SelfTestRateIndex]
)

// ComputeOdr returns the index of rate in ImuRates. Unknown rates fall back to
// the slowest entry.
func ComputeOdr(rate Hz) int {
	for i, r := range ImuRates {
		if r == rate {
			return i
		}
	}
	log.Errorf("sensors: ODR %d not valid, using %d", rate, ImuRates[0])
	return 0
}

// HzToNs is the sample period of one of the ImuRates.
func HzToNs(rate Hz) time.Duration {
	for i, r := range ImuRates {
		if r == rate {
			return imuRatesNs[i]
		}
	}
	log.Errorf("sensors: rate %d not available, using %d", rate, ImuRates[0])
	return imuRatesNs[0]
}

// OdrRegister is the CTRL1_XL/CTRL2_G ODR value for table index i.
func OdrRegister(i int) byte { return imuRatesReg[i] }

// AccelDiscard is the settle count after an accelerometer ODR change.
func AccelDiscard(i int) int { return accelDiscard[i] }

// GyroDiscard is the settle count after a gyroscope ODR change; powerOn adds
// the start-up time from power down.
func GyroDiscard(i int, powerOn bool) int {
	n := gyroDiscard[i]
	if powerOn {
		n += gyroPowerOnDiscard[i]
	}
	return n
}

// StepCounterDelta returns the STEP_COUNT_DELTA register value for rate.
func StepCounterDelta(rate Hz) byte {
	if rate == RateOnChange {
		return 0
	}
	for i, r := range StepCounterRates {
		if r == rate {
			if i >= len(StepCounterRates)-2 {
				return 0
			}
			return byte(128 >> i)
		}
	}
	return 0
}

// NearestImuRate snaps a frequency in Hz to the closest supported rate
// not below it, capped at the fastest.
func NearestImuRate(f float64) Hz {
	want := HzOf(f)
	for _, r := range ImuRates {
		if r >= want {
			return r
		}
	}
	return ImuRates[len(ImuRates)-1]
}

// NearestSHRate is NearestImuRate for sensor-hub slaves.
func NearestSHRate(f float64) Hz {
	want := HzOf(f)
	for _, r := range SHRates {
		if r >= want {
			return r
		}
	}
	return SHRates[len(SHRates)-1]
}
