package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"crudbench/benchmark"
	"crudbench/util"
	"crudbench/worker"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

var (
	header  = color.New(color.Bold)
	summary = color.New(color.FgGreen)
	warning = color.New(color.FgYellow)
	failure = color.New(color.FgRed, color.Bold)
)

func ms(d time.Duration) string {
	return fmt.Sprintf("%.0f ms", util.Millis(d))
}

// Text writes the human-readable report: four phase lines per worker and one summary line per run
func Text(w io.Writer, reports []*benchmark.BackendReport) {
	for _, b := range reports {
		header.Fprintf(w, "%s %s\n", b.Backend, configString(b.Configs))
		if b.Err != nil {
			failure.Fprintf(w, "%s aborted: %v\n", b.Backend, b.Err)
			continue
		}
		for _, run := range b.Runs {
			writeRun(w, run)
		}
	}
}

func writeRun(w io.Writer, run *benchmark.RunReport) {
	for _, result := range run.Results {
		for _, p := range result.Phases {
			line := fmt.Sprintf("%s %s: %s", run.Backend, p.Phase, ms(p.Duration))
			if run.Workers > 1 {
				line += fmt.Sprintf(" [worker %d %s]", result.Worker, result.Range)
			}
			if p.Errors > 0 || p.Misses > 0 {
				line += fmt.Sprintf(" (%s errors, %s misses)",
					humanize.Comma(int64(p.Errors)), humanize.Comma(int64(p.Misses)))
			}
			if p.Aborted {
				line += " aborted"
			}
			fmt.Fprintln(w, line)
		}
		if result.Verified && result.Residual > 0 {
			warning.Fprintf(w, "%s worker %d: %d keys still present after delete\n", run.Backend, result.Worker, result.Residual)
		}
	}

	summary.Fprintf(w, "Ops: %s; Threads: %d; Total time: %s\n", humanize.Comma(int64(run.Ops())), run.Workers, ms(run.Elapsed))
	if run.Remaining > 0 {
		warning.Fprintf(w, "%s %s: %s records left after the run\n", run.Backend, run.Mode, humanize.Comma(run.Remaining))
	}
	if run.Failed() {
		failure.Fprintf(w, "%s %s FAILED (%s errors): %v\n", run.Backend, run.Mode, humanize.Comma(int64(run.Errors())), run.Err)
	}
}

func configString(configs map[string]string) string {
	keys := make([]string, 0, len(configs))
	for k := range configs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+configs[k])
	}
	return "(" + strings.Join(pairs, ", ") + ")"
}

// Row of the Csv output: one per (backend, mode, phase), durations summed over the workers
type Row struct {
	Backend string
	Mode    benchmark.Mode
	Ops     int
	Workers int
	Phase   worker.Phase
	Total   time.Duration
	Errors  int
	Misses  int
	Elapsed time.Duration
	Failed  bool
}

func Rows(reports []*benchmark.BackendReport) []Row {
	rows := []Row{}
	for _, b := range reports {
		for _, run := range b.Runs {
			for _, phase := range worker.Phases {
				row := Row{
					Backend: run.Backend,
					Mode:    run.Mode,
					Ops:     run.Ops(),
					Workers: run.Workers,
					Phase:   phase,
					Elapsed: run.Elapsed,
					Failed:  run.Failed(),
				}
				for _, result := range run.Results {
					p := result.Phases[phase]
					row.Total += p.Duration
					row.Errors += p.Errors
					row.Misses += p.Misses
				}
				rows = append(rows, row)
			}
		}
	}
	return rows
}

// Csv writes the machine-readable lines, prefixed with "Csv:" so they can be grepped out of the log
func Csv(w io.Writer, reports []*benchmark.BackendReport, withHeader bool) {
	if withHeader {
		fmt.Fprintln(w, "Csv:backend,mode,ops,workers,phase,ms,errors,misses,elapsedMs,failed")
	}
	for _, r := range Rows(reports) {
		fmt.Fprintf(w, "Csv:%s,%s,%d,%d,%s,%.3f,%d,%d,%.3f,%t\n",
			r.Backend, r.Mode, r.Ops, r.Workers, r.Phase, util.Millis(r.Total), r.Errors, r.Misses,
			util.Millis(r.Elapsed), r.Failed)
	}
}
