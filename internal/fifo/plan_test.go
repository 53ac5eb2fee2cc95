package fifo

import (
	"testing"
	"time"

	"github.com/relabs-tech/sensorhub/internal/sensors"
)

var (
	hz13  = sensors.ImuRates[4]
	hz26  = sensors.ImuRates[5]
	hz52  = sensors.ImuRates[6]
	hz104 = sensors.ImuRates[7]
	hz416 = sensors.ImuRates[9]
)

func request(accel, gyro, ds3 sensors.Hz, latency time.Duration) [NumSlots]SlotRequest {
	return [NumSlots]SlotRequest{
		SlotGyro:  {Assigned: true, Rate: gyro, Latency: latency},
		SlotAccel: {Assigned: true, Rate: accel, Latency: latency},
		SlotDS3:   {Assigned: true, Rate: ds3, Latency: latency},
	}
}

func hwRate(r sensors.Hz) sensors.Hz {
	if r == 0 {
		return 0
	}
	return max(r, sensors.MinAccelRate)
}

func TestDecimatorBoundsAndTotalSip(t *testing.T) {
	rates := append([]sensors.Hz{0}, sensors.ImuRates[:]...)
	latencies := []time.Duration{0, 5 * time.Millisecond, 50 * time.Millisecond, time.Second, sensors.NoLatency}

	for _, a := range rates {
		for _, g := range rates {
			for _, m := range []sensors.Hz{0, sensors.SHRates[3], sensors.SHRates[7]} {
				for _, l := range latencies {
					var p Plan
					ds3 := m
					ah := hwRate(a)
					if ds3 > 0 {
						ah = max(ah, ds3, sensors.MinAccelRate)
					}
					p.RecomputeDecimators(ah, hwRate(g), request(a, g, ds3, l))
					if p.MaxDecimator == 0 {
						if p.TotalSip != 0 || p.Active() {
							t.Fatalf("idle plan not empty: %+v", p)
						}
						continue
					}
					sum := 0
					for n, d := range p.Decimators {
						if d == 0 {
							continue
						}
						if d < p.MinDecimator || d > p.MaxDecimator {
							t.Fatalf("a=%d g=%d m=%d l=%v slot %d dec %d outside [%d,%d]",
								a, g, m, l, n, d, p.MinDecimator, p.MaxDecimator)
						}
						if d > MaxDecimator {
							t.Fatalf("slot %d dec %d above hardware max", n, d)
						}
						sum += p.MaxDecimator / d
					}
					if sum != p.TotalSip {
						t.Fatalf("TotalSip %d, want %d (%+v)", p.TotalSip, sum, p.Decimators)
					}
					if p.MaxMinDecimator != p.MaxDecimator/p.MinDecimator {
						t.Fatalf("MaxMinDecimator %d", p.MaxMinDecimator)
					}
				}
			}
		}
	}
}

func TestWatermarkIdempotent(t *testing.T) {
	for _, l := range []time.Duration{0, 10 * time.Millisecond, 200 * time.Millisecond, 5 * time.Second, sensors.NoLatency} {
		var p Plan
		u := p.RecomputeDecimators(hz104, hz416, request(hz104, hz416, 0, l))
		p.RecomputeWatermark(u.MinLatency)
		wm := p.Watermark

		u2 := p.RecomputeDecimators(hz104, hz416, request(hz104, hz416, 0, l))
		if u2.Changed {
			t.Fatalf("latency %v: decimators changed on identical input", l)
		}
		if p.RecomputeWatermark(u2.MinLatency) {
			t.Fatalf("latency %v: watermark changed on identical input", l)
		}
		if p.Watermark != wm {
			t.Fatalf("latency %v: watermark %d -> %d", l, wm, p.Watermark)
		}
		if wm == 0 || wm%p.TotalSip != 0 || wm > sensors.MaxWatermark {
			t.Fatalf("latency %v: watermark %d not a pattern multiple within limit (sip %d)", l, wm, p.TotalSip)
		}
	}
}

func TestWatermarkMultiplierSteps(t *testing.T) {
	var p Plan
	p.RecomputeDecimators(hz104, 0, request(hz104, 0, 0, 0))
	pattern := p.PatternPeriod()
	if p.TotalSip == 0 || pattern == 0 {
		t.Fatalf("empty plan: sip %d, pattern %v", p.TotalSip, pattern)
	}

	// The multiplier counts up from two until multiplier patterns cover the
	// latency; the watermark keeps one pattern fewer.
	for _, c := range []struct {
		latency  time.Duration
		patterns int
	}{
		{0, 1},
		{pattern, 1},
		{3 * pattern, 2},
		{3*pattern + 1, 3},
		{5*pattern + pattern/2, 5},
		{9 * pattern, 8},
	} {
		p.RecomputeWatermark(c.latency)
		if want := c.patterns * p.TotalSip; p.Watermark != want {
			t.Errorf("latency %v (%.1f patterns): watermark %d, want %d",
				c.latency, float64(c.latency)/float64(pattern), p.Watermark, want)
		}
	}

	p.RecomputeWatermark(sensors.NoLatency)
	if p.Watermark > sensors.MaxWatermark || p.Watermark%p.TotalSip != 0 {
		t.Fatalf("capped watermark %d (sip %d)", p.Watermark, p.TotalSip)
	}
}

func TestAccelGyroScenario(t *testing.T) {
	r1, r2 := hz26, hz104
	for _, l := range []time.Duration{0, 100 * time.Millisecond, time.Second} {
		var p Plan
		u := p.RecomputeDecimators(r1, r2, request(r1, r2, 0, l))
		p.RecomputeWatermark(u.MinLatency)

		if p.TriggerRate != r2 {
			t.Fatalf("trigger %d, want %d", p.TriggerRate, r2)
		}
		total := p.Decimators[SlotAccel] * u.SoftDecimator[SlotAccel]
		if total != int(r2/r1) {
			t.Fatalf("latency %v: accel decimation %d*%d, want %d", l, p.Decimators[SlotAccel], u.SoftDecimator[SlotAccel], r2/r1)
		}
		if p.WatermarkBytes() > sensors.FifoBytes {
			t.Fatalf("watermark %d bytes exceeds FIFO", p.WatermarkBytes())
		}
	}

	// With no latency budget the hardware cannot decimate, so the whole
	// factor lands in software.
	var p Plan
	u := p.RecomputeDecimators(r1, r2, request(r1, r2, 0, 0))
	if p.Decimators[SlotAccel] != 1 || u.SoftDecimator[SlotAccel] != 4 {
		t.Fatalf("dec %d soft %d", p.Decimators[SlotAccel], u.SoftDecimator[SlotAccel])
	}
	if p.TotalSip != 3 || p.Watermark != 0 {
		t.Fatalf("sip %d wm %d", p.TotalSip, p.Watermark)
	}
	p.RecomputeWatermark(u.MinLatency)
	if p.Watermark != 3 {
		t.Fatalf("watermark %d, want one pattern", p.Watermark)
	}
}

func TestTimestampPositions(t *testing.T) {
	var p Plan
	p.RecomputeDecimators(hz26, hz104, request(hz26, hz104, 0, time.Second))
	if p.Decimators != [NumSlots]int{1, 4, 0, 1} {
		t.Fatalf("decimators %v", p.Decimators)
	}
	if p.TotalSip != 9 || p.MaxMinDecimator != 4 {
		t.Fatalf("sip %d rows %d", p.TotalSip, p.MaxMinDecimator)
	}
	want := []int{12, 6, 6, 6}
	for i, w := range want {
		if p.TimestampPosition[i] != w {
			t.Fatalf("row %d timestamp at %d, want %d", i, p.TimestampPosition[i], w)
		}
	}
}

func TestControlBytes(t *testing.T) {
	var p Plan
	u := p.RecomputeDecimators(hz26, hz104, request(hz26, hz104, 0, time.Second))
	p.RecomputeWatermark(u.MinLatency)
	b := p.ControlBytes()
	words := p.Watermark * 3
	if b[0] != byte(words) || b[1] != byte(words>>8)&sensors.FifoFTHMask|sensors.EnableFifoTimestamp {
		t.Fatalf("threshold bytes %#x %#x for %d words", b[0], b[1], words)
	}
	if b[2] != 1<<3|4 { // gyro no decimation, accel factor 4
		t.Fatalf("FIFO_CTRL3 %#x", b[2])
	}
	if b[3] != 1<<3 { // timestamp every row, DS3 unused
		t.Fatalf("FIFO_CTRL4 %#x", b[3])
	}
	if b[4] != sensors.FifoContinuousMode {
		t.Fatalf("mode %#x", b[4])
	}

	var idle Plan
	idle.RecomputeDecimators(0, 0, request(0, 0, 0, 0))
	if idle.ControlBytes()[4] != sensors.FifoBypassMode || idle.Active() {
		t.Fatal("idle plan should bypass")
	}
}

func TestChunk(t *testing.T) {
	var p Plan
	p.RecomputeDecimators(hz26, hz104, request(hz26, hz104, 0, time.Second))
	pb := p.PatternBytes() // 54

	cases := []struct{ avail, read, pending int }{
		{0, 0, 0},
		{pb - 1, 0, 0},
		{pb + 10, pb, 0},
		{1000, 1000 - 1000%pb, 0},
		{3000, 1024 - 1024%pb, 3000 - (1024 - 1024%pb)},
	}
	for _, c := range cases {
		r, pend := p.Chunk(c.avail, 1024)
		if r != c.read || pend != c.pending {
			t.Errorf("Chunk(%d) = %d,%d want %d,%d", c.avail, r, pend, c.read, c.pending)
		}
	}
}

func TestSoftwareDecimator(t *testing.T) {
	if got := SoftwareDecimator(hz104, 1, hz26); got != 4 {
		t.Fatalf("got %d", got)
	}
	if got := SoftwareDecimator(hz104, 0, hz26); got != 0 {
		t.Fatalf("zero fifo decimator: %d", got)
	}
	if got := SoftwareDecimator(hz52, 2, 0); got != 0 {
		t.Fatalf("zero rate: %d", got)
	}
	if got := SoftwareDecimator(hz52, 2, hz13); got != 2 {
		t.Fatalf("got %d", got)
	}
}
