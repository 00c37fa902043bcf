package sensor

import (
	"math"
	"time"

	"codeberg.org/mutker/sensorsim/internal/unit"
)

// Measurement is one sampled quantity, its unit, and the UTC instant it was taken.
type Measurement struct {
	Quantity  float64
	Unit      unit.Unit
	Timestamp time.Time
}

// NewMeasurement builds a Measurement with its timestamp normalized to UTC.
func NewMeasurement(quantity float64, u unit.Unit, ts time.Time) Measurement {
	return Measurement{Quantity: quantity, Unit: u, Timestamp: ts.UTC()}
}

// Equal reports whether all three fields match.
func (m Measurement) Equal(o Measurement) bool {
	return m.Quantity == o.Quantity && m.Unit == o.Unit && m.Timestamp.Equal(o.Timestamp)
}

// Summary describes a window of measurements.
type Summary struct {
	Count int
	Min   float64
	Max   float64
	Mean  float64
	First time.Time
	Last  time.Time
}

// Summarize computes count, extremes, and mean over ms. An empty window yields
// the zero Summary.
func Summarize(ms []Measurement) Summary {
	if len(ms) == 0 {
		return Summary{}
	}

	s := Summary{
		Count: len(ms),
		Min:   math.Inf(1),
		Max:   math.Inf(-1),
		First: ms[0].Timestamp,
		Last:  ms[len(ms)-1].Timestamp,
	}

	sum := 0.0
	for _, m := range ms {
		sum += m.Quantity
		s.Min = math.Min(s.Min, m.Quantity)
		s.Max = math.Max(s.Max, m.Quantity)
	}
	s.Mean = sum / float64(len(ms))

	return s
}
