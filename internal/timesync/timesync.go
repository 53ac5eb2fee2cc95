// Package timesync reconstructs the LSM6DSM's wrapping 24-bit timestamp
// counter and maps it onto the host clock.
package timesync

import (
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// Resolution is the duration of one counter LSB.
	Resolution = 25 * time.Microsecond
	// SyncInterval is both the latency below which the clock is sampled on
	// FIFO reads and the period of the timer otherwise.
	SyncInterval = 100 * time.Millisecond

	counterMask   = 1<<24 - 1
	wrapThreshold = 1 << 23
	wrapStep      = 1 << 24
	marginPercent = 10
)

// Mode is how anchor pairs are collected.
type Mode int

const (
	Disabled Mode = iota
	Timer
	DuringFifoRead
)

func (m Mode) String() string {
	switch m {
	case Timer:
		return "timer"
	case DuringFifoRead:
		return "fifo-read"
	default:
		return "disabled"
	}
}

// Counter is a 24-bit device counter extended to 64 bits.
type Counter struct {
	ext    uint64
	seeded bool
}

// Extend folds raw into the counter. A backward jump of more than half the
// counter range is taken as a wrap.
func (c *Counter) Extend(raw uint32) uint64 {
	raw &= counterMask
	if c.seeded && int64(raw)-int64(c.ext&counterMask) < -wrapThreshold {
		c.ext += wrapStep
	}
	c.ext = c.ext&^counterMask + uint64(raw)
	c.seeded = true
	return c.ext
}

// Value is the last extended value.
func (c *Counter) Value() uint64 { return c.ext }

// Reset forgets the counter.
func (c *Counter) Reset() { *c = Counter{} }

// Engine is the per-device time sync state. It is owned by one goroutine.
type Engine struct {
	est *Estimator

	fifo     Counter
	valid    bool
	lastHost uint64

	deltaLSB  uint64
	marginLSB uint64

	sync Counter
	baro Counter

	mode Mode

	anchorHost    uint64
	anchorPending bool
	lastAnchorAt  uint64
}

// New returns an engine whose estimator keeps between minSamples and
// maxSamples anchor pairs.
func New(minSamples, maxSamples int) *Engine {
	return &Engine{est: NewEstimator(minSamples, maxSamples)}
}

// Mode returns the current anchor mode.
func (e *Engine) Mode() Mode { return e.mode }

// Disable stops anchor collection, as when the FIFO is reprogrammed.
func (e *Engine) Disable() { e.mode = Disabled }

// SelectMode picks the anchor mode for the smallest latency of the FIFO
// sensors.
func (e *Engine) SelectMode(minLatency time.Duration) Mode {
	if minLatency < SyncInterval {
		e.mode = DuringFifoRead
	} else {
		e.mode = Timer
	}
	log.Debugf("timesync: mode %s for latency %v", e.mode, minLatency)
	return e.mode
}

// SetTheoreticalDelta sets the expected spacing of FIFO timestamps from the
// sample period of the timestamp slot.
func (e *Engine) SetTheoreticalDelta(period time.Duration) {
	e.deltaLSB = uint64(period / Resolution)
	e.marginLSB = e.deltaLSB * marginPercent / 100
}

// TheoreticalDelta returns the expected spacing in counter LSB and the
// tolerated jitter.
func (e *Engine) TheoreticalDelta() (delta, margin uint64) { return e.deltaLSB, e.marginLSB }

// Reset drops all sync state. The mode is kept.
func (e *Engine) Reset() {
	e.fifo.Reset()
	e.sync.Reset()
	e.valid = false
	e.lastHost = 0
	e.anchorPending = false
	e.lastAnchorAt = 0
	e.est.Reset()
}

// ResetFifo forgets the FIFO counter track but keeps the anchors, for when
// the FIFO restarts after an overrun.
func (e *Engine) ResetFifo() {
	e.fifo.Reset()
	e.valid = false
}

// ObserveFifoTimestamp turns the raw timestamp of one FIFO row into host
// time. It returns 0 when the sample must not be delivered: before the
// counter has two plausible readings, when the raw value is implausible,
// when the estimator has too few anchors, or when the result would not be
// later than the previous one.
func (e *Engine) ObserveFifoTimestamp(raw uint32) uint64 {
	raw &= counterMask
	if !e.fifo.seeded {
		e.fifo.Extend(raw)
		return 0
	}

	prev := e.fifo.Value()
	diff := int64(raw) - int64(prev&counterMask)
	plausible := diff >= 0 && uint64(diff) <= e.deltaLSB+e.marginLSB

	switch {
	case plausible:
		e.fifo.Extend(raw)
		e.valid = true
	case diff < -wrapThreshold:
		e.fifo.Extend(raw)
	case e.valid:
		// Corrupt read. Keep the counter on its expected track and drop the
		// sample.
		e.fifo.ext = prev + e.deltaLSB
		log.Debugf("timesync: implausible FIFO delta %d LSB", diff)
		return 0
	default:
		e.fifo.ext = prev&^counterMask + uint64(raw)
		return 0
	}

	if !e.valid {
		return 0
	}
	host, ok := e.est.Estimate(e.fifo.Value() * uint64(Resolution))
	if !ok {
		return 0
	}
	if e.lastHost > 0 && host <= e.lastHost {
		return 0
	}
	e.lastHost = host
	return host
}

// LastHost is the last delivered host timestamp.
func (e *Engine) LastHost() uint64 { return e.lastHost }

// NeedFifoAnchor reports whether a FIFO read at host time now should also
// sample the device clock. It is only ever true in DuringFifoRead mode and at
// most once per SyncInterval.
func (e *Engine) NeedFifoAnchor(now uint64) bool {
	if e.mode != DuringFifoRead {
		return false
	}
	if now-e.lastAnchorAt <= uint64(SyncInterval) {
		return false
	}
	e.lastAnchorAt = now
	e.anchorPending = true
	return true
}

// AnchorPending reports and clears a clock sample queued with a FIFO read.
func (e *Engine) AnchorPending() bool {
	p := e.anchorPending
	e.anchorPending = false
	return p
}

// MarkAnchor records the host time the device clock read was issued at.
func (e *Engine) MarkAnchor(host uint64) { e.anchorHost = host }

// Sync adds an anchor pair from a raw TIMESTAMP0..2 read taken at the last
// MarkAnchor time.
func (e *Engine) Sync(raw uint32) {
	lsb := e.sync.Extend(raw)
	e.est.Add(e.anchorHost, lsb*uint64(Resolution))
}

// ExtendBaro maps a raw timestamp read alongside barometer data to host
// time.
func (e *Engine) ExtendBaro(raw uint32) (uint64, bool) {
	lsb := e.baro.Extend(raw)
	return e.est.Estimate(lsb * uint64(Resolution))
}

// ResetBaro restarts the barometer timestamp extension after a rate change.
func (e *Engine) ResetBaro() { e.baro.Reset() }

// Anchors is the number of pairs the estimator holds.
func (e *Engine) Anchors() int { return e.est.Len() }
