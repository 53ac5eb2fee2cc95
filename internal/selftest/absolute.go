package selftest

import (
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/sensorhub/internal/imu"
	"github.com/relabs-tech/sensorhub/internal/sensors"
)

type absStep int

const (
	absInit absStep = iota
	absRead
	absVerify
	absCompleted
)

// AbsoluteTest averages the output with the stimulus on and checks the value
// itself against the limits. Magnetometers with an internal reference field
// use it.
type AbsoluteTest struct {
	t      Target
	report func(imu.Status)

	step   absStep
	acc    averager
	value  [3]int32
	passed bool
}

func (a *AbsoluteTest) Sensor() imu.Sensor { return a.t.Sensor }

func (a *AbsoluteTest) Passed() bool { return a.passed }

func (a *AbsoluteTest) Advance(ops Ops) bool {
	for {
		switch a.step {
		case absInit:
			a.acc.reset()
			a.t.Enable(ops)
			a.step = absRead
			return true

		case absRead:
			if !a.acc.collect(a.t.Samples) {
				a.acc.pending = ops.Read(a.t.OutReg, sensors.SampleBytes, a.t.ReadDelay)
				return true
			}
			a.value = a.acc.mean()
			a.step = absVerify

		case absVerify:
			a.passed = verify("absolute", a.t.Sensor, a.value, a.t.Low, a.t.High)
			status := imu.StatusFail
			if a.passed {
				status = imu.StatusPass
			}
			log.Infof("selftest: %s absolute test completed: %s (%v)", a.t.Sensor, status, a.value)
			if a.report != nil {
				a.report(status)
			}
			a.t.Cleanup(ops)
			a.step = absCompleted
			return true

		default:
			return false
		}
	}
}
