package observability

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/danmuck/defmt-print/internal/table"
)

var (
	registerOnce sync.Once

	bytesIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "defmt_print",
			Subsystem: "stream",
			Name:      "bytes_ingested_total",
			Help:      "Bytes read from the input source.",
		},
	)
	bufferCompactions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "defmt_print",
			Subsystem: "stream",
			Name:      "compactions_total",
			Help:      "Times pending bytes were moved to the front of the stream buffer.",
		},
	)
	framesDecoded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "defmt_print",
			Subsystem: "decoder",
			Name:      "frames_total",
			Help:      "Frames decoded, by level and whether location metadata was attached.",
		},
		[]string{"level", "location"},
	)
	decodeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "defmt_print",
			Subsystem: "decoder",
			Name:      "failures_total",
			Help:      "Sessions ended by undecodable input.",
		},
		[]string{"kind"},
	)
)

const (
	FailureMalformed    = "malformed"
	FailureUnterminated = "unterminated"
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(bytesIngested, bufferCompactions, framesDecoded, decodeFailures)
	})
}

func RecordIngest(n int, compactions uint64) {
	RegisterMetrics()
	bytesIngested.Add(float64(n))
	if compactions > 0 {
		bufferCompactions.Add(float64(compactions))
	}
}

func RecordFrame(level table.Level, withLocation bool) {
	RegisterMetrics()
	loc := "none"
	if withLocation {
		loc = "attached"
	}
	framesDecoded.WithLabelValues(level.String(), loc).Inc()
}

func RecordFailure(kind string) {
	RegisterMetrics()
	decodeFailures.WithLabelValues(kind).Inc()
}

// WriteTextfile dumps every registered metric in the text exposition
// format, for node_exporter's textfile collector.
func WriteTextfile(path string) error {
	RegisterMetrics()
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile (%s): %w", path, err)
	}
	return nil
}
