package stacksanalysis

import "github.com/gopherprof/tracecore/internal/ratestats"

// AverageRate estimates a sample source's steady-state sampling rate (in
// Hz) from its observed sample timestamps (ascending, trace time units)
// and the trace's timer frequency (ticks per second); exposed here so a
// caller recomputing the rate over a filtered subset of samples (rather
// than the whole-trace rate tracecontext already attaches to
// tracemodel.SampleSource.AvgRate) gets the same estimator.
func AverageRate(timestampsAsc []uint64, timerFrequency float64) float64 {
	return ratestats.Average(timestampsAsc, timerFrequency)
}
