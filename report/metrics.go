package report

import (
	"fmt"
	"io"

	"crudbench/benchmark"

	"github.com/VictoriaMetrics/metrics"
)

func labels(backend string, mode benchmark.Mode) string {
	return fmt.Sprintf(`backend=%q,mode=%q`, backend, mode)
}

// Metrics collects the reports into a metric set, one series per (backend, mode, phase)
func Metrics(reports []*benchmark.BackendReport) *metrics.Set {
	set := metrics.NewSet()
	for _, b := range reports {
		if b.Err != nil {
			set.GetOrCreateCounter(fmt.Sprintf(`crudbench_setup_failures_total{backend=%q}`, b.Backend)).Inc()
			continue
		}
		for _, run := range b.Runs {
			runLabels := labels(run.Backend, run.Mode)
			elapsed := run.Elapsed.Seconds()
			set.GetOrCreateGauge(fmt.Sprintf("crudbench_run_seconds{%s}", runLabels), func() float64 {
				return elapsed
			})
			if run.Failed() {
				set.GetOrCreateCounter(fmt.Sprintf("crudbench_failed_runs_total{%s}", runLabels)).Inc()
			}

			for _, result := range run.Results {
				for _, p := range result.Phases {
					phaseLabels := fmt.Sprintf("%s,phase=%q", runLabels, p.Phase.String())
					set.GetOrCreateCounter(fmt.Sprintf("crudbench_ops_total{%s}", phaseLabels)).Add(p.Ops)
					set.GetOrCreateCounter(fmt.Sprintf("crudbench_errors_total{%s}", phaseLabels)).Add(p.Errors)
					set.GetOrCreateCounter(fmt.Sprintf("crudbench_misses_total{%s}", phaseLabels)).Add(p.Misses)
					set.GetOrCreateFloatCounter(fmt.Sprintf("crudbench_phase_seconds_total{%s}", phaseLabels)).
						Add(p.Duration.Seconds())
				}
			}
		}
	}
	return set
}

// WriteMetrics dumps the reports in Prometheus text format
func WriteMetrics(w io.Writer, reports []*benchmark.BackendReport) {
	Metrics(reports).WritePrometheus(w)
}
