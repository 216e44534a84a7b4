package benchmark

import (
	"context"
	"fmt"
	"runtime"
	"time"

	engine "crudbench/benchmark/engines/abstract"
	"crudbench/dataset"
	"crudbench/worker"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

const (
	DefaultOperations = 100000
	DefaultSampleSize = 10000
)

type Mode string

const (
	// One worker over the sample range
	Single Mode = "single"
	// Config.Workers workers over [0, Config.Operations)
	Multi Mode = "multi"
)

type Config struct {
	Operations int
	Workers    int
	Sample     worker.Range
	Modes      []Mode
	OnError    worker.ErrorPolicy
	Verify     bool
}

// Fills the zero values: 100000 operations, one worker per CPU, sample [0, 10000) and both modes
func (c Config) WithDefaults() Config {
	if c.Operations == 0 {
		c.Operations = DefaultOperations
	}
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Sample == (worker.Range{}) {
		c.Sample = worker.Range{Start: 0, End: min(DefaultSampleSize, c.Operations)}
	}
	if len(c.Modes) == 0 {
		c.Modes = []Mode{Single, Multi}
	}
	if c.OnError == "" {
		c.OnError = worker.ContinueOnError
	}
	return c
}

func (c Config) validate(data *dataset.Dataset) error {
	if c.Operations < 0 {
		return fmt.Errorf("invalid operation count %d", c.Operations)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("invalid worker count %d", c.Workers)
	}
	if c.Sample.Start < 0 || c.Sample.End < c.Sample.Start {
		return fmt.Errorf("invalid sample range %s", c.Sample)
	}
	for _, m := range c.Modes {
		if m != Single && m != Multi {
			return fmt.Errorf("unknown mode '%s'", m)
		}
	}
	needed := max(c.Operations, c.Sample.End)
	if data.Len() < needed {
		return fmt.Errorf("dataset holds %d values, %d needed", data.Len(), needed)
	}
	return nil
}

// RunReport holds the outcome of one (backend, mode) run
type RunReport struct {
	Backend   string
	Mode      Mode
	Range     worker.Range
	Workers   int
	Elapsed   time.Duration   // wall clock of the whole run, session setup included
	Results   []*worker.Result // one per worker that ran
	Remaining int64           // records left after the run, -1 when the engine cannot count them
	Err       error
}

func (r *RunReport) Ops() int {
	return r.Range.Len()
}

// Errors returns the number of failed operations over all workers
func (r *RunReport) Errors() int {
	total := 0
	for _, result := range r.Results {
		total += result.Errors()
	}
	return total
}

func (r *RunReport) Failed() bool {
	return r.Err != nil
}

type BackendReport struct {
	Backend string
	Configs map[string]string
	Runs    []*RunReport
	Err     error // the backend could not be set up; no run was executed
}

func (b *BackendReport) Failed() bool {
	if b.Err != nil {
		return true
	}
	for _, r := range b.Runs {
		if r.Failed() {
			return true
		}
	}
	return false
}

type Orchestrator struct {
	config  Config
	data    *dataset.Dataset
	engines []engine.Engine
}

func New(config Config, data *dataset.Dataset, engines ...engine.Engine) (*Orchestrator, error) {
	config = config.WithDefaults()
	if err := config.validate(data); err != nil {
		return nil, err
	}
	return &Orchestrator{config: config, data: data, engines: engines}, nil
}

func (o *Orchestrator) Config() Config {
	return o.config
}

// Run benchmarks each engine in turn, never two at once, so one backend's load cannot bias another's
// numbers. A backend that fails to set up is reported and skipped.
func (o *Orchestrator) Run(ctx context.Context) []*BackendReport {
	reports := []*BackendReport{}
	for _, e := range o.engines {
		reports = append(reports, o.runEngine(ctx, e))
	}
	return reports
}

func (o *Orchestrator) runEngine(ctx context.Context, e engine.Engine) *BackendReport {
	report := &BackendReport{Backend: e.Name(), Configs: e.GetConfigs()}
	log := zlog.With().Str("backend", e.Name()).Logger()

	if err := ctx.Err(); err != nil {
		report.Err = errors.Wrapf(err, "%s", e.Name())
		return report
	}

	log.Info().Msg("Connecting")
	if err := e.Setup(ctx); err != nil {
		report.Err = errors.Wrapf(err, "%s: setup", e.Name())
		log.Error().Err(err).Msg("Connection failed, backend skipped")
		return report
	}
	defer func() {
		if err := e.Finalize(); err != nil {
			log.Warn().Err(err).Msg("Finalize failed")
		}
	}()

	for _, mode := range o.config.Modes {
		var run *RunReport
		switch mode {
		case Single:
			run = o.runSingle(ctx, e)
		case Multi:
			run = o.runMulti(ctx, e)
		}
		o.finish(ctx, e, run, log)
		report.Runs = append(report.Runs, run)
	}

	return report
}

func (o *Orchestrator) runSingle(ctx context.Context, e engine.Engine) *RunReport {
	run := &RunReport{Backend: e.Name(), Mode: Single, Range: o.config.Sample, Workers: 1, Remaining: -1}
	if err := e.Cleanup(ctx); err != nil {
		run.Err = errors.Wrapf(err, "%s: cleanup", e.Name())
		return run
	}

	start := time.Now()
	result, err := o.runWorker(ctx, e, 0, run.Range)
	run.Elapsed = time.Since(start)

	if result != nil {
		run.Results = append(run.Results, result)
	}
	if err != nil {
		run.Err = errors.Wrapf(err, "%s: %s", e.Name(), Single)
	}
	return run
}

func (o *Orchestrator) runMulti(ctx context.Context, e engine.Engine) *RunReport {
	run := &RunReport{
		Backend:   e.Name(),
		Mode:      Multi,
		Range:     worker.Range{Start: 0, End: o.config.Operations},
		Workers:   o.config.Workers,
		Remaining: -1,
	}
	if err := e.Cleanup(ctx); err != nil {
		run.Err = errors.Wrapf(err, "%s: cleanup", e.Name())
		return run
	}

	if reserver, ok := e.(engine.SessionReserver); ok {
		reserver.ReserveSessions(o.config.Workers)
	}

	if remainder := worker.Remainder(o.config.Operations, o.config.Workers); remainder > 0 {
		zlog.Info().Str("backend", e.Name()).Int("remainder", remainder).
			Msg("Operations do not divide evenly, the last worker takes the remainder")
	}

	start := time.Now()
	results, err := worker.RunPartitioned(ctx, o.config.Operations, o.config.Workers,
		func(ctx context.Context, id int, r worker.Range) (*worker.Result, error) {
			return o.runWorker(ctx, e, id, r)
		})
	run.Elapsed = time.Since(start)

	for _, result := range results {
		if result != nil {
			run.Results = append(run.Results, result)
		}
	}
	if err != nil {
		run.Err = errors.Wrapf(err, "%s: %s", e.Name(), Multi)
	}
	return run
}

// Opens a session owned by this worker alone and runs the four phases over r
func (o *Orchestrator) runWorker(ctx context.Context, e engine.Engine, id int, r worker.Range) (*worker.Result, error) {
	backend, err := e.Prepare(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "open session")
	}
	defer backend.Close()

	options := worker.Options{OnError: o.config.OnError, Verify: o.config.Verify}
	result := worker.NewWorker(id, backend, o.data, options).Run(ctx, r)
	if result.Failed() {
		return result, result.Err()
	}
	return result, nil
}

func (o *Orchestrator) finish(ctx context.Context, e engine.Engine, run *RunReport, log zerolog.Logger) {
	if sizer, ok := e.(engine.Sizer); ok {
		if n, err := sizer.Size(ctx); err == nil {
			run.Remaining = n
		} else {
			log.Warn().Err(err).Msg("Could not count remaining records")
		}
	}

	event := log.Info()
	if run.Failed() {
		event = log.Error().Err(run.Err)
	}
	event.Str("mode", string(run.Mode)).Int("ops", run.Ops()).Int("workers", run.Workers).
		Dur("elapsed", run.Elapsed).Int("errors", run.Errors()).Msg("Run ended")
}
