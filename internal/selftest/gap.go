package selftest

import (
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/sensorhub/internal/imu"
	"github.com/relabs-tech/sensorhub/internal/sensors"
)

type gapStep int

const (
	gapInit gapStep = iota
	gapReadEnabled
	gapSecondInit
	gapReadDisabled
	gapVerify
	gapCompleted
)

// GapTest averages the output with the self-test stimulus on and off and
// checks the per-axis difference against the target limits.
type GapTest struct {
	t      Target
	report func(imu.Status)

	step     gapStep
	acc      averager
	enabled  [3]int32
	disabled [3]int32
	passed   bool
}

func (g *GapTest) Sensor() imu.Sensor { return g.t.Sensor }

// Passed is the verdict once the test has completed.
func (g *GapTest) Passed() bool { return g.passed }

func (g *GapTest) Advance(ops Ops) bool {
	for {
		switch g.step {
		case gapInit:
			log.Debugf("selftest: %s gap test start", g.t.Sensor)
			g.acc.reset()
			g.t.Enable(ops)
			g.step = gapReadEnabled
			return true

		case gapReadEnabled:
			if !g.acc.collect(g.t.Samples) {
				g.acc.pending = ops.Read(g.t.OutReg, sensors.SampleBytes, g.t.ReadDelay)
				return true
			}
			g.enabled = g.acc.mean()
			g.step = gapSecondInit

		case gapSecondInit:
			g.acc.reset()
			g.t.Disable(ops)
			g.step = gapReadDisabled
			return true

		case gapReadDisabled:
			if !g.acc.collect(g.t.Samples) {
				g.acc.pending = ops.Read(g.t.OutReg, sensors.SampleBytes, g.t.ReadDelay)
				return true
			}
			g.disabled = g.acc.mean()
			g.step = gapVerify

		case gapVerify:
			var gap [3]int32
			for i := range gap {
				gap[i] = abs(g.enabled[i] - g.disabled[i])
			}
			g.t.Cleanup(ops)
			g.passed = verify("gap", g.t.Sensor, gap, g.t.Low, g.t.High)
			status := imu.StatusFail
			if g.passed {
				status = imu.StatusPass
			}
			log.Infof("selftest: %s gap test completed: %s (on %v, off %v)", g.t.Sensor, status, g.enabled, g.disabled)
			if g.report != nil {
				g.report(status)
			}
			g.step = gapCompleted
			return true

		default:
			return false
		}
	}
}
