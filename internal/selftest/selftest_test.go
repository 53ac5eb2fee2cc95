package selftest

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/relabs-tech/sensorhub/internal/imu"
	"github.com/relabs-tech/sensorhub/internal/sensors"
)

type op struct {
	kind  string
	reg   byte
	value []byte
}

// fakeOps answers reads from a per-register queue of samples and records
// every access.
type fakeOps struct {
	samples map[byte][][3]int16
	ops     []op
	slave   []sensors.SlaveWrite
	master  []bool
}

func (f *fakeOps) Write(reg, value byte, _ time.Duration) {
	f.ops = append(f.ops, op{"w", reg, []byte{value}})
}

func (f *fakeOps) MultiWrite(reg byte, data []byte, _ time.Duration) {
	f.ops = append(f.ops, op{"mw", reg, append([]byte(nil), data...)})
}

func (f *fakeOps) Read(reg byte, n int, _ time.Duration) []byte {
	f.ops = append(f.ops, op{kind: "r", reg: reg})
	b := make([]byte, n)
	q := f.samples[reg]
	if len(q) > 0 {
		for i, v := range q[0] {
			binary.LittleEndian.PutUint16(b[2*i:], uint16(v))
		}
		f.samples[reg] = q[1:]
	}
	return b
}

func (f *fakeOps) WriteSlave(w sensors.SlaveWrite) { f.slave = append(f.slave, w) }

func (f *fakeOps) SetMaster(on bool, _ time.Duration) { f.master = append(f.master, on) }

func repeat(v [3]int16, n int) [][3]int16 {
	out := make([][3]int16, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// run advances p until it completes and returns the number of batches.
func run(t *testing.T, p Program, ops Ops) int {
	t.Helper()
	n := 0
	for p.Advance(ops) {
		n++
		if n > 200 {
			t.Fatal("program never completed")
		}
	}
	if p.Advance(ops) {
		t.Fatal("program restarted after completion")
	}
	return n
}

func gapSamples(reg byte, on, off [3]int16, n int) map[byte][][3]int16 {
	return map[byte][][3]int16{reg: append(repeat(on, n), repeat(off, n)...)}
}

func TestGapSelfTestAccel(t *testing.T) {
	cases := []struct {
		name string
		on   [3]int16
		want imu.Status
	}{
		{"pass", [3]int16{1000, -1000, 5098}, imu.StatusPass},
		{"weak", [3]int16{100, 1000, 5098}, imu.StatusFail},
		{"saturated", [3]int16{8000, 1000, 5098}, imu.StatusFail},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := &fakeOps{samples: gapSamples(sensors.RegOutXLXL, c.on, [3]int16{0, 0, 4098}, sensors.SelfTestSamples)}
			var got []imu.Status
			p := New(AccelTarget(), false, func(s imu.Status) { got = append(got, s) })
			if p.Sensor() != imu.Accel {
				t.Fatalf("sensor %s", p.Sensor())
			}
			if n := run(t, p, f); n != 2*sensors.SelfTestSamples+3 {
				t.Fatalf("%d batches", n)
			}
			if len(got) != 1 || got[0] != c.want {
				t.Fatalf("reported %v, want %s", got, c.want)
			}
			first, last := f.ops[0], f.ops[len(f.ops)-1]
			if first.reg != sensors.RegCtrl5C || first.value[0] != sensors.AccelSelfTestPositive {
				t.Fatalf("first op %+v", first)
			}
			if last.reg != sensors.RegCtrl1XL || last.value[0] != sensors.Ctrl1XLBase {
				t.Fatalf("accel not powered down: %+v", last)
			}
		})
	}
}

func TestGapSelfTestGyro(t *testing.T) {
	f := &fakeOps{samples: gapSamples(sensors.RegOutXLG, [3]int16{3000, 3000, -3000}, [3]int16{10, -10, 0}, sensors.SelfTestSamples)}
	var got imu.Status
	p := New(GyroTarget(), false, func(s imu.Status) { got = s })
	run(t, p, f)
	if got != imu.StatusPass || !p.(*GapTest).Passed() {
		t.Fatalf("got %s", got)
	}
}

func TestGapSelfTestMagnetometer(t *testing.T) {
	mag := sensors.LIS3MDL{}
	st := mag.SelfTest()
	f := &fakeOps{samples: gapSamples(sensors.RegSensorHub1, [3]int16{10000, 10000, 2000}, [3]int16{0, 0, 0}, st.Samples)}
	var got imu.Status
	run(t, New(MagTarget(mag), st.Absolute, func(s imu.Status) { got = s }), f)
	if got != imu.StatusPass {
		t.Fatalf("got %s", got)
	}
	if len(f.master) != 2 || !f.master[0] || f.master[1] {
		t.Fatalf("master switched %v", f.master)
	}
	want := len(st.Enable) + len(st.Disable) + len(st.Cleanup) + 1
	if len(f.slave) != want {
		t.Fatalf("%d slave writes, want %d", len(f.slave), want)
	}
	if f.slave[len(f.slave)-1] != mag.PowerOff() {
		t.Fatal("magnetometer left on")
	}
}

func TestAbsoluteSelfTest(t *testing.T) {
	mag := sensors.AK09916{}
	st := mag.SelfTest()
	if !st.Absolute {
		t.Fatal("AK09916 should use the absolute test")
	}
	for _, c := range []struct {
		v    [3]int16
		want imu.Status
	}{
		{[3]int16{10, -20, -500}, imu.StatusPass},
		{[3]int16{500, -20, -500}, imu.StatusFail},
		{[3]int16{10, -20, -1500}, imu.StatusFail},
	} {
		f := &fakeOps{samples: map[byte][][3]int16{sensors.RegSensorHub1: repeat(c.v, st.Samples)}}
		var got imu.Status
		p := New(MagTarget(mag), true, func(s imu.Status) { got = s })
		if n := run(t, p, f); n != st.Samples+2 {
			t.Fatalf("%d batches", n)
		}
		if got != c.want {
			t.Fatalf("%v: got %s want %s", c.v, got, c.want)
		}
	}
}

func TestAccelCalibration(t *testing.T) {
	f := &fakeOps{samples: map[byte][][3]int16{
		sensors.RegOutXLXL: repeat([3]int16{40, -40, sensors.OneGInLSB + 80}, sensors.CalibrationSamples),
	}}
	var status imu.Status
	var bias [3]int32
	calls := 0
	c, err := NewCalibration(imu.Accel, func(s imu.Status, b [3]int32) { status, bias, calls = s, b, calls+1 })
	if err != nil {
		t.Fatal(err)
	}
	if n := run(t, c, f); n != sensors.CalibrationSamples+2 {
		t.Fatalf("%d batches", n)
	}
	if calls != 1 || status != imu.StatusPass {
		t.Fatalf("calls %d status %s", calls, status)
	}
	if bias != [3]int32{-40, 40, 80} || c.Bias() != bias {
		t.Fatalf("bias %v", bias)
	}
	if first := f.ops[0]; first.kind != "mw" || first.reg != sensors.RegXOfsUsr || string(first.value) != "\x00\x00\x00" {
		t.Fatalf("offsets not cleared first: %+v", first)
	}
	last := f.ops[len(f.ops)-1]
	if last.reg != sensors.RegXOfsUsr || last.value[0] != 0xf6 || last.value[1] != 10 || last.value[2] != 20 {
		t.Fatalf("offset registers %+v", last)
	}
}

func TestGyroCalibration(t *testing.T) {
	f := &fakeOps{samples: map[byte][][3]int16{
		sensors.RegOutXLG: append(repeat([3]int16{12, -7, 3}, 5), repeat([3]int16{14, -9, 3}, 5)...),
	}}
	var bias [3]int32
	c, _ := NewCalibration(imu.Gyro, func(_ imu.Status, b [3]int32) { bias = b })
	run(t, c, f)
	if bias != [3]int32{13, -8, 3} {
		t.Fatalf("bias %v", bias)
	}
	for _, o := range f.ops {
		if o.reg == sensors.RegXOfsUsr {
			t.Fatal("gyro calibration touched accel offsets")
		}
	}
	if last := f.ops[len(f.ops)-1]; last.reg != sensors.RegCtrl2G || last.value[0] != sensors.Ctrl2GBase {
		t.Fatalf("gyro not powered down: %+v", last)
	}
}

func TestCalibrationUnsupported(t *testing.T) {
	if _, err := NewCalibration(imu.Magn, nil); err == nil {
		t.Fatal("magnetometer calibration accepted")
	}
}
