package main

import (
	"SynthLedger/internal/engine"
	"SynthLedger/internal/observability"
	"SynthLedger/internal/projection"
)

// fanOut copies every engine output to the projection worker and the
// outbound publisher without blocking. A full consumer drops the output
// and the drop is counted. Both outputs close when in closes.
func fanOut(in <-chan engine.Output, projections, outbound chan<- engine.Output, metrics *observability.Metrics) {
	defer close(projections)
	defer close(outbound)

	for out := range in {
		select {
		case projections <- out:
		default:
			if metrics != nil {
				metrics.ProjectionDrops.WithLabelValues(projection.Name).Inc()
			}
		}

		select {
		case outbound <- out:
		default:
			if metrics != nil {
				metrics.PublishDrops.Inc()
			}
		}

		if metrics != nil {
			metrics.SetChannelMetrics("projection", len(projections), cap(projections))
			metrics.SetChannelMetrics("outbound", len(outbound), cap(outbound))
		}
	}
}
