package transport

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/relabs-tech/sensorhub/internal/errcode"
)

// echoBus answers reads with the register address plus the byte offset.
type echoBus struct {
	mu    sync.Mutex
	txs   [][]byte
	fail  error
	block chan struct{}
}

func (b *echoBus) Tx(w, r []byte) error {
	if b.block != nil {
		<-b.block
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.txs = append(b.txs, append([]byte(nil), w...))
	if b.fail != nil {
		return b.fail
	}
	if w[0]&readFlag != 0 {
		for i := 1; i < len(r); i++ {
			r[i] = (w[0] &^ readFlag) + byte(i-1)
		}
	}
	return nil
}

func waitDone(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for batch completion")
		return nil
	}
}

func TestBatchReadWrite(t *testing.T) {
	bus := &echoBus{}
	b := NewBatch(bus)
	var slept []time.Duration
	b.Sleep = func(d time.Duration) { slept = append(slept, d) }

	b.QueueWrite(0x12, 0x44, 0)
	b.QueueMultiWrite(0x06, []byte{1, 2, 3}, 25*time.Microsecond)
	rd := b.QueueRead(0x3a, 2, 0)
	if b.Len() != 3 {
		t.Fatalf("Len = %d, want 3", b.Len())
	}

	done := make(chan error, 1)
	if err := b.Submit(func(err error) { done <- err }); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := waitDone(t, done); err != nil {
		t.Fatalf("batch error: %v", err)
	}

	if !bytes.Equal(rd, []byte{0x3a, 0x3b}) {
		t.Fatalf("read data = %x", rd)
	}
	want := [][]byte{{0x12, 0x44}, {0x06, 1, 2, 3}, {0xba, 0, 0}}
	for i, w := range want {
		if !bytes.Equal(bus.txs[i], w) {
			t.Errorf("tx[%d] = %x, want %x", i, bus.txs[i], w)
		}
	}
	if len(slept) != 1 || slept[0] != 25*time.Microsecond {
		t.Fatalf("delays = %v", slept)
	}
	if b.Busy() || b.Len() != 0 {
		t.Fatal("batch not reset after completion")
	}
}

func TestBatchInUseGuard(t *testing.T) {
	bus := &echoBus{block: make(chan struct{})}
	b := NewBatch(bus)
	b.QueueWrite(0x10, 0x00, 0)

	done := make(chan error, 1)
	if err := b.Submit(func(err error) { done <- err }); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !b.Busy() {
		t.Fatal("expected busy while in flight")
	}

	b.QueueWrite(0x11, 0x00, 0)
	if err := b.Submit(func(error) { t.Error("second done must not fire") }); errcode.Of(err) != errcode.BusInUse {
		t.Fatalf("second Submit = %v, want bus_in_use", err)
	}

	close(bus.block)
	if err := waitDone(t, done); err != nil {
		t.Fatalf("batch error: %v", err)
	}
	if len(bus.txs) != 1 {
		t.Fatalf("got %d transfers, want 1", len(bus.txs))
	}
}

func TestBatchOverflow(t *testing.T) {
	bus := &echoBus{}
	b := NewBatch(bus)
	for i := 0; i < MaxPackets+1; i++ {
		b.QueueWrite(0x10, byte(i), 0)
	}
	done := make(chan error, 1)
	_ = b.Submit(func(err error) { done <- err })
	if err := waitDone(t, done); errcode.Of(err) != errcode.Overflow {
		t.Fatalf("overflow batch err = %v", err)
	}
	if len(bus.txs) != 0 {
		t.Fatal("overflowed batch must not reach the bus")
	}

	buf := b.QueueRead(0x3e, BufferSize, 0)
	if len(buf) != BufferSize {
		t.Fatalf("oversized read returned %d bytes", len(buf))
	}
	_ = b.Submit(func(err error) { done <- err })
	if err := waitDone(t, done); errcode.Of(err) != errcode.Overflow {
		t.Fatalf("oversized read err = %v", err)
	}
}

func TestBatchBusError(t *testing.T) {
	bus := &echoBus{fail: errors.New("EIO")}
	b := NewBatch(bus)
	b.QueueWrite(0x10, 0, 0)
	b.QueueWrite(0x11, 0, 0)
	done := make(chan error, 1)
	_ = b.Submit(func(err error) { done <- err })
	err := waitDone(t, done)
	if !errors.Is(err, bus.fail) {
		t.Fatalf("err = %v", err)
	}
	if len(bus.txs) != 1 {
		t.Fatal("batch must stop at the first failing transfer")
	}
}

func TestEmptyBatchCompletes(t *testing.T) {
	b := NewBatch(&echoBus{})
	done := make(chan error, 1)
	_ = b.Submit(func(err error) { done <- err })
	if err := waitDone(t, done); err != nil {
		t.Fatal(err)
	}
}

type fakeSPI struct {
	cs    *fakeCS
	lowAt []bool
}

func (s *fakeSPI) Tx(w, r []byte) error {
	s.lowAt = append(s.lowAt, s.cs.low)
	return nil
}
func (s *fakeSPI) Transfer(b byte) (byte, error) { return 0, nil }

type fakeCS struct{ low bool }

func (c *fakeCS) High() { c.low = false }
func (c *fakeCS) Low()  { c.low = true }

func TestTinyGoBusFramesChipSelect(t *testing.T) {
	cs := &fakeCS{low: true}
	spi := &fakeSPI{cs: cs}
	bus := NewTinyGoBus(spi, cs)
	if cs.low {
		t.Fatal("CS must idle high")
	}
	if err := bus.Tx([]byte{0x8f, 0}, make([]byte, 2)); err != nil {
		t.Fatal(err)
	}
	if len(spi.lowAt) != 1 || !spi.lowAt[0] || cs.low {
		t.Fatalf("CS framing wrong: during=%v after low=%v", spi.lowAt, cs.low)
	}
}

type fakeIRQ struct {
	edges chan struct{}
}

func (f *fakeIRQ) WaitForEdge(timeout time.Duration) bool {
	select {
	case <-f.edges:
		return true
	case <-time.After(timeout):
		return false
	}
}
func (f *fakeIRQ) High() bool { return false }

func TestWatchIRQ(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	line := &fakeIRQ{edges: make(chan struct{})}
	got := make(chan struct{}, 4)
	stopped := make(chan struct{})
	go func() {
		WatchIRQ(ctx, line, func() { got <- struct{}{} })
		close(stopped)
	}()

	line.edges <- struct{}{}
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("edge not delivered")
	}
	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}
