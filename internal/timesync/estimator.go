package timesync

// Estimator fits host time against sensor time over the most recent anchor
// pairs with an ordinary least-squares line.
type Estimator struct {
	sensor []uint64
	host   []uint64
	pos    int
	full   bool
	min    int
}

// Default window sizes.
const (
	DefaultMinSamples = 3
	DefaultMaxSamples = 25
)

// NewEstimator keeps up to maxSamples pairs and refuses to estimate until it
// has minSamples of them.
func NewEstimator(minSamples, maxSamples int) *Estimator {
	if maxSamples < 1 {
		maxSamples = DefaultMaxSamples
	}
	if minSamples < 1 {
		minSamples = 1
	}
	if minSamples > maxSamples {
		minSamples = maxSamples
	}
	return &Estimator{
		sensor: make([]uint64, maxSamples),
		host:   make([]uint64, maxSamples),
		min:    minSamples,
	}
}

// Len returns the number of pairs held.
func (e *Estimator) Len() int {
	if e.full {
		return len(e.sensor)
	}
	return e.pos
}

// Reset drops every pair.
func (e *Estimator) Reset() {
	e.pos = 0
	e.full = false
}

// Add records that the sensor clock read sensorNs at host time hostNs. A
// sensor time that goes backwards means the device counter restarted, so the
// old pairs are discarded.
func (e *Estimator) Add(hostNs, sensorNs uint64) {
	if n := e.Len(); n > 0 && sensorNs <= e.sensor[e.last()] {
		e.Reset()
	}
	e.sensor[e.pos] = sensorNs
	e.host[e.pos] = hostNs
	e.pos++
	if e.pos >= len(e.sensor) {
		e.pos = 0
		e.full = true
	}
}

func (e *Estimator) last() int {
	if e.pos == 0 {
		return len(e.sensor) - 1
	}
	return e.pos - 1
}

// Estimate maps a sensor time to host time. ok is false until enough pairs
// are held or when the fit is degenerate.
func (e *Estimator) Estimate(sensorNs uint64) (hostNs uint64, ok bool) {
	n := e.Len()
	if n == 0 || n < e.min {
		return 0, false
	}

	// Work relative to the newest pair so float64 keeps ns precision.
	ref := e.last()
	sRef, hRef := e.sensor[ref], e.host[ref]

	var sx, sy float64
	for i := 0; i < n; i++ {
		sx += float64(int64(e.sensor[i] - sRef))
		sy += float64(int64(e.host[i] - hRef))
	}
	mx, my := sx/float64(n), sy/float64(n)

	var sxx, sxy float64
	for i := 0; i < n; i++ {
		dx := float64(int64(e.sensor[i]-sRef)) - mx
		dy := float64(int64(e.host[i]-hRef)) - my
		sxx += dx * dx
		sxy += dx * dy
	}

	slope := 1.0
	if sxx > 0 {
		slope = sxy / sxx
	}
	if slope <= 0 {
		return 0, false
	}

	x := float64(int64(sensorNs - sRef))
	y := my + slope*(x-mx)
	h := int64(hRef) + int64(y)
	if h <= 0 {
		return 0, false
	}
	return uint64(h), true
}
