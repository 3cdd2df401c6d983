// Package ratestats estimates a sample source's steady-state sampling
// rate from its observed timestamps, shared by tracecontext (populating
// tracemodel.SampleSource.AvgRate as sources are built) and
// stacksanalysis (recomputing the same statistic over a filtered sample
// set) so the two agree on method.
package ratestats

import "github.com/aclements/go-moremath/stats"

// Average estimates a source's rate in Hz from its sample timestamps
// (ascending, in trace time units) and the trace's timer frequency
// (ticks per second). It uses the mean inter-sample interval rather than
// sample-count-over-wall-time, which is more robust to a handful of
// missed or doubled ticks at the ends of the window.
func Average(timestampsAsc []uint64, timerFrequency float64) float64 {
	if len(timestampsAsc) < 2 || timerFrequency <= 0 {
		return 0
	}
	deltas := make([]float64, 0, len(timestampsAsc)-1)
	for i := 1; i < len(timestampsAsc); i++ {
		if d := timestampsAsc[i] - timestampsAsc[i-1]; d > 0 {
			deltas = append(deltas, float64(d))
		}
	}
	if len(deltas) == 0 {
		return 0
	}
	mean := stats.Sample{Xs: deltas}.Mean()
	if mean == 0 {
		return 0
	}
	return timerFrequency / mean
}
