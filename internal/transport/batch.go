package transport

import (
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/sensorhub/internal/errcode"
)

const (
	// MaxPackets is the number of transfers one batch can carry.
	MaxPackets = 75
	// FifoChunk is the largest FIFO read issued in a single transfer.
	FifoChunk = 1024
	bufMargin = 100
	// BufferSize is the byte arena shared by all transfers of one batch.
	BufferSize = FifoChunk + bufMargin

	readFlag = 0x80
)

// Bus performs one full-duplex transfer with chip select asserted for its
// duration. Both periph.io spi.Conn and tinygo drivers.SPI satisfy it.
type Bus interface {
	Tx(w, r []byte) error
}

type packet struct {
	tx, rx []byte
	delay  time.Duration
}

// Batch accumulates register transfers and executes them back to back on a
// worker goroutine. Only one batch may be outstanding; queueing while a batch
// is in flight is logged and ignored.
type Batch struct {
	bus Bus

	tx      [BufferSize]byte
	rx      [BufferSize]byte
	scratch [BufferSize]byte
	used    int

	packets [MaxPackets]packet
	n       int

	overflow bool
	inUse    atomic.Bool

	// Sleep implements per-packet delays. Tests replace it.
	Sleep func(time.Duration)
}

// NewBatch returns a batch bound to bus.
func NewBatch(bus Bus) *Batch {
	return &Batch{bus: bus, Sleep: time.Sleep}
}

// Busy reports whether a submitted batch has not completed yet.
func (b *Batch) Busy() bool { return b.inUse.Load() }

// Len is the number of queued transfers.
func (b *Batch) Len() int { return b.n }

func (b *Batch) alloc(op string, size int) (tx, rx []byte, ok bool) {
	if b.inUse.Load() {
		log.Errorf("transport: %s while batch in flight, ignored", op)
		return nil, nil, false
	}
	if b.overflow {
		return nil, nil, false
	}
	if b.n >= MaxPackets || b.used+size > BufferSize {
		log.Errorf("transport: %s overflows batch (packets=%d bytes=%d+%d)", op, b.n, b.used, size)
		b.overflow = true
		return nil, nil, false
	}
	tx = b.tx[b.used : b.used+size]
	rx = b.rx[b.used : b.used+size]
	b.used += size
	return tx, rx, true
}

func (b *Batch) push(tx, rx []byte, delay time.Duration) {
	b.packets[b.n] = packet{tx: tx, rx: rx, delay: delay}
	b.n++
}

func (b *Batch) scratchBuf(n int) []byte {
	if n > len(b.scratch) {
		n = len(b.scratch)
	}
	clear(b.scratch[:n])
	return b.scratch[:n]
}

// QueueRead queues a burst read of n bytes starting at addr. The returned
// slice is filled once the batch completes and stays valid until the next
// batch is queued.
func (b *Batch) QueueRead(addr byte, n int, delay time.Duration) []byte {
	tx, rx, ok := b.alloc("read", n+1)
	if !ok {
		return b.scratchBuf(n)
	}
	tx[0] = addr | readFlag
	clear(tx[1:])
	b.push(tx, rx, delay)
	return rx[1:]
}

// QueueWrite queues a single register write.
func (b *Batch) QueueWrite(addr, value byte, delay time.Duration) {
	tx, rx, ok := b.alloc("write", 2)
	if !ok {
		return
	}
	tx[0] = addr
	tx[1] = value
	b.push(tx, rx, delay)
}

// QueueMultiWrite queues an auto-incrementing write of data starting at addr.
func (b *Batch) QueueMultiWrite(addr byte, data []byte, delay time.Duration) {
	tx, rx, ok := b.alloc("multiwrite", len(data)+1)
	if !ok {
		return
	}
	tx[0] = addr
	copy(tx[1:], data)
	b.push(tx, rx, delay)
}

// Submit executes the queued transfers asynchronously. done is invoked exactly
// once from the worker goroutine with nil or an error carrying an errcode.
// Submit returns errcode.BusInUse without invoking done if a batch is already
// in flight.
func (b *Batch) Submit(done func(error)) error {
	if !b.inUse.CompareAndSwap(false, true) {
		log.Errorln("transport: submit while batch in flight")
		return errcode.BusInUse
	}
	n := b.n
	overflow := b.overflow
	go b.run(n, overflow, done)
	return nil
}

func (b *Batch) run(n int, overflow bool, done func(error)) {
	var err error
	if overflow {
		err = &errcode.E{C: errcode.Overflow, Op: "transport", Msg: "batch dropped"}
	} else {
		for i := 0; i < n; i++ {
			p := &b.packets[i]
			if e := b.bus.Tx(p.tx, p.rx); e != nil {
				err = errcode.Wrap(errcode.Error, "transport", e)
				break
			}
			if p.delay > 0 && b.Sleep != nil {
				b.Sleep(p.delay)
			}
		}
	}
	b.n = 0
	b.used = 0
	b.overflow = false
	b.inUse.Store(false)
	if done != nil {
		done(err)
	}
}
