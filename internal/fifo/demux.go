package fifo

import "github.com/relabs-tech/sensorhub/internal/sensors"

// Row is one decimation step inside a pattern. Samples[n] is nil when slot n
// has no sample in this row. The timestamp slot is always present and is the
// chronologically last sample of the row.
type Row struct {
	Index     int
	Timestamp []byte
	Samples   [NumSlots][]byte
}

// Rows walks numPatterns full patterns of data and calls fn once per row.
// It stops early rather than read past the end of data.
func (p *Plan) Rows(data []byte, numPatterns int, fn func(Row)) {
	if p.MaxMinDecimator == 0 {
		return
	}
	off := 0
	for j := 0; j < numPatterns; j++ {
		for i := 0; i < p.MaxMinDecimator && i < MaxPatternRows; i++ {
			ts := off + p.TimestampPosition[i]
			if ts+sensors.SampleBytes > len(data) {
				return
			}
			r := Row{Index: i, Timestamp: data[ts : ts+sensors.SampleBytes]}
			for n := 0; n < NumSlots; n++ {
				if !p.present(n, i) {
					continue
				}
				if off+sensors.SampleBytes > len(data) {
					return
				}
				r.Samples[n] = data[off : off+sensors.SampleBytes]
				off += sensors.SampleBytes
			}
			fn(r)
		}
	}
}
