package errcode

import (
	"errors"
	"fmt"
	"testing"
)

func TestOf(t *testing.T) {
	cause := errors.New("spi: short transfer")
	cases := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, OK},
		{"bare code", Busy, Busy},
		{"wrapped E", &E{C: Timeout, Op: "boot", Err: cause}, Timeout},
		{"plain error", cause, Error},
		{"helper", Wrap(Overflow, "queue", cause), Overflow},
	}
	for _, c := range cases {
		if got := Of(c.err); got != c.want {
			t.Errorf("%s: Of() = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestEUnwrap(t *testing.T) {
	cause := errors.New("bus closed")
	err := fmt.Errorf("submit: %w", &E{C: BusInUse, Op: "transport", Err: cause})
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to be reachable through E")
	}
	var e *E
	if !errors.As(err, &e) || e.C != BusInUse {
		t.Fatalf("errors.As: got %+v", e)
	}
	if got, want := e.Error(), "transport: bus_in_use: bus closed"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(Error, "x", nil) != nil {
		t.Fatal("Wrap(nil) must be nil")
	}
}
