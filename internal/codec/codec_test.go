package codec

import (
	"math"
	"testing"
)

func TestTriaxial(t *testing.T) {
	x, y, z := Triaxial([]byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80})
	if x != 1 || y != -1 || z != math.MinInt16 {
		t.Fatalf("got %d %d %d", x, y, z)
	}
}

func TestFifoTimestamp(t *testing.T) {
	// TIMESTAMP2=0x12 in byte 1, TIMESTAMP1=0x34 in byte 0, TIMESTAMP0=0x56 in byte 3.
	b := []byte{0x34, 0x12, 0x00, 0x56, 0x07, 0x01}
	if got := FifoTimestamp(b); got != 0x123456 {
		t.Fatalf("timestamp %#x", got)
	}
	if got := FifoSteps(b); got != 0x0107 {
		t.Fatalf("steps %#x", got)
	}
}

func TestTemperature(t *testing.T) {
	if got := Temperature(0); got != 25 {
		t.Fatalf("0 -> %v", got)
	}
	if got := Temperature(512); got != 27 {
		t.Fatalf("512 -> %v", got)
	}
	if got := Temperature(-256); got != 24 {
		t.Fatalf("-256 -> %v", got)
	}
}

func TestAccelOffset(t *testing.T) {
	cases := []struct {
		in   int32
		want byte
	}{
		{0, 0x00},
		{40, 10},
		{-40, 0xf6},
		{10000, 127},
		{-10000, 0x81},
	}
	for _, c := range cases {
		if got := AccelOffset(c.in); got != c.want {
			t.Errorf("AccelOffset(%d) = %#x, want %#x", c.in, got, c.want)
		}
	}
}

func TestMatrixRemap(t *testing.T) {
	x, y, z := Identity.Remap(1, 2, 3)
	if x != 1 || y != 2 || z != 3 {
		t.Fatalf("identity: %d %d %d", x, y, z)
	}
	// Swap X/Y and flip Z.
	m, err := ParseMatrix([]int{0, 1, 0, 1, 0, 0, 0, 0, -1})
	if err != nil {
		t.Fatal(err)
	}
	x, y, z = m.Remap(1, 2, 3)
	if x != 2 || y != 1 || z != -3 {
		t.Fatalf("swap: %d %d %d", x, y, z)
	}
	fx, _, _ := m.Scaled(1, 2, 3, 0.5)
	if fx != 1 {
		t.Fatalf("scaled x %v", fx)
	}
}

func TestParseMatrixErrors(t *testing.T) {
	if m, err := ParseMatrix(nil); err != nil || m != Identity {
		t.Fatal("empty should be identity")
	}
	if _, err := ParseMatrix([]int{1, 0}); err == nil {
		t.Fatal("short matrix accepted")
	}
	if _, err := ParseMatrix([]int{2, 0, 0, 0, 1, 0, 0, 0, 1}); err == nil {
		t.Fatal("entry 2 accepted")
	}
}

func TestPressure(t *testing.T) {
	// 4096 LSB per hPa.
	got := Pressure([]byte{0x00, 0x10, 0x00}, 1.0/4096)
	if got != 1 {
		t.Fatalf("pressure %v", got)
	}
	if got := BaroTemperature([]byte{0xd0, 0x07}, 0.01); math.Abs(float64(got)-20) > 1e-4 {
		t.Fatalf("temp %v", got)
	}
}
