package observability

import (
	"io"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

var (
	registerOnce sync.Once

	linesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ircctl",
			Subsystem: "engine",
			Name:      "lines_received_total",
			Help:      "Complete protocol lines framed from the transport.",
		},
		[]string{"endpoint"},
	)
	linesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ircctl",
			Subsystem: "engine",
			Name:      "lines_dropped_total",
			Help:      "Lines rejected by the parser, by reason.",
		},
		[]string{"endpoint", "reason"},
	)
	commandsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ircctl",
			Subsystem: "engine",
			Name:      "commands_sent_total",
			Help:      "Outbound protocol commands written, by command.",
		},
		[]string{"endpoint", "command"},
	)
	jobsQueued = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ircctl",
			Subsystem: "engine",
			Name:      "jobs_queued",
			Help:      "Jobs waiting in the outbound queue.",
		},
		[]string{"endpoint"},
	)
	jobsDrained = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ircctl",
			Subsystem: "engine",
			Name:      "jobs_drained_total",
			Help:      "Jobs translated into protocol commands, by job kind.",
		},
		[]string{"endpoint", "kind"},
	)
	engineExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ircctl",
			Subsystem: "engine",
			Name:      "exits_total",
			Help:      "Engine terminations, by reason.",
		},
		[]string{"endpoint", "reason"},
	)
	dialFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ircctl",
			Subsystem: "transport",
			Name:      "dial_failures_total",
			Help:      "Failed dials, by phase.",
		},
		[]string{"endpoint", "phase"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(linesReceived, linesDropped, commandsSent, jobsQueued, jobsDrained, engineExits, dialFailures)
	})
}

func RecordLineReceived(endpoint string) {
	RegisterMetrics()
	linesReceived.WithLabelValues(endpoint).Inc()
}

func RecordLineDropped(endpoint, reason string) {
	RegisterMetrics()
	linesDropped.WithLabelValues(endpoint, reason).Inc()
}

func RecordCommandSent(endpoint, command string) {
	RegisterMetrics()
	commandsSent.WithLabelValues(endpoint, command).Inc()
}

func SetJobsQueued(endpoint string, n int) {
	RegisterMetrics()
	jobsQueued.WithLabelValues(endpoint).Set(float64(n))
}

func RecordJobDrained(endpoint, kind string) {
	RegisterMetrics()
	jobsDrained.WithLabelValues(endpoint, kind).Inc()
}

func RecordEngineExit(endpoint, reason string) {
	RegisterMetrics()
	engineExits.WithLabelValues(endpoint, reason).Inc()
}

func RecordDialFailure(endpoint, phase string) {
	RegisterMetrics()
	dialFailures.WithLabelValues(endpoint, phase).Inc()
}

// WriteText renders every ircctl metric family in the prometheus text format.
func WriteText(w io.Writer) error {
	return writeText(w, prometheus.DefaultGatherer)
}

func writeText(w io.Writer, g prometheus.Gatherer) error {
	RegisterMetrics()
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "ircctl_") {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
