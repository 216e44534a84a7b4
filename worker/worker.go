package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	engine "crudbench/benchmark/engines/abstract"
	"crudbench/dataset"

	"github.com/pkg/errors"
	zlog "github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

type Phase int

const (
	Insert Phase = iota
	Read
	Update
	Delete
)

// Phases in execution order
var Phases = [...]Phase{Insert, Read, Update, Delete}

func (p Phase) String() string {
	switch p {
	case Insert:
		return "Insert"
	case Read:
		return "Read"
	case Update:
		return "Update"
	case Delete:
		return "Delete"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// ErrorPolicy decides what a worker does when an operation fails.
type ErrorPolicy string

const (
	// Count the failure and carry on with the next index
	ContinueOnError ErrorPolicy = "continue"
	// Stop the current phase for this worker; later phases still run
	AbortOnError ErrorPolicy = "abort"
)

func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch ErrorPolicy(s) {
	case "", ContinueOnError:
		return ContinueOnError, nil
	case AbortOnError:
		return AbortOnError, nil
	}
	return "", fmt.Errorf("unknown error policy '%s' (continue|abort)", s)
}

type Options struct {
	OnError ErrorPolicy
	// Read back every key after the delete phase (untimed) and count the ones still present
	Verify bool
}

type PhaseResult struct {
	Phase    Phase
	Duration time.Duration
	Ops      int  // operations issued, failed ones included
	Errors   int  // failed operations
	Misses   int  // reads that found no value
	Aborted  bool // the phase stopped before the end of the range
	Err      error
}

type Result struct {
	Worker       int
	Range        Range
	Phases       [len(Phases)]PhaseResult
	Verified     bool
	Residual     int // keys still present after the delete phase
	VerifyErrors int
}

// Errors returns the number of failed operations over all phases.
func (r *Result) Errors() int {
	total := 0
	for _, p := range r.Phases {
		total += p.Errors
	}
	return total
}

// Failed reports whether any operation failed, any phase was cut short, any inserted key was not found
// by the read phase or, when verified, any key survived the delete phase.
func (r *Result) Failed() bool {
	for _, p := range r.Phases {
		if p.Errors > 0 || p.Aborted {
			return true
		}
	}
	return r.Phases[Read].Misses > 0 || r.Residual > 0 || r.VerifyErrors > 0
}

// Err returns the first error of each failed phase, combined.
func (r *Result) Err() error {
	var err error
	for _, p := range r.Phases {
		if p.Err != nil {
			err = multierr.Append(err, p.Err)
		}
	}
	if misses := r.Phases[Read].Misses; misses > 0 {
		err = multierr.Append(err, fmt.Errorf("%s: %d of %d keys missing after insert", Read, misses, r.Range.Len()))
	}
	if r.Residual > 0 || r.VerifyErrors > 0 {
		err = multierr.Append(err, fmt.Errorf("verify: %d keys left after delete, %d read errors",
			r.Residual, r.VerifyErrors))
	}
	return err
}

// Duration returns the time spent in the four timed phases.
func (r *Result) Duration() time.Duration {
	var total time.Duration
	for _, p := range r.Phases {
		total += p.Duration
	}
	return total
}

type Worker struct {
	id              int
	backend         engine.Backend
	data            *dataset.Dataset
	options         Options
	operationsToLog chan *OperationLogEntry
	operationLogWg  *sync.WaitGroup
}

type OperationLogEntry struct {
	phase Phase
	key   string
	err   error
	t     time.Time
}

type operation func(ctx context.Context, i int) (missed bool, err error)

func NewWorker(id int, backend engine.Backend, data *dataset.Dataset, options Options) *Worker {
	worker := new(Worker)
	worker.id = id
	worker.backend = backend
	worker.data = data
	worker.options = options
	if worker.options.OnError == "" {
		worker.options.OnError = ContinueOnError
	}
	worker.operationsToLog = make(chan *OperationLogEntry, 1024)
	worker.operationLogWg = &sync.WaitGroup{}
	return worker
}

func (w *Worker) log(msg string) {
	zlog.Info().Int("worker", w.id).Msg(msg)
}

// Failed operations are logged off the hot loop so logging does not add to the measured phase time.
func (w *Worker) logOperationsWorker() {
	defer w.operationLogWg.Done()

	for operation := range w.operationsToLog {
		zlog.Debug().Int("worker", w.id).Str("phase", operation.phase.String()).Str("key", operation.key).
			Err(operation.err).Time("real_time", operation.t).Msg("aborted")
	}
}

// Run executes Insert, Read, Update and Delete over r, one phase after the other, timing each phase
// separately. The returned result is never nil. A Worker runs once.
func (w *Worker) Run(ctx context.Context, r Range) *Result {
	w.operationLogWg.Add(1)
	go w.logOperationsWorker()

	result := &Result{Worker: w.id, Range: r}

	w.log("Running")
	for _, phase := range Phases {
		result.Phases[phase] = w.runPhase(ctx, phase, r)
		p := result.Phases[phase]
		zlog.Debug().Int("worker", w.id).Str("phase", phase.String()).Dur("duration", p.Duration).
			Int("ops", p.Ops).Int("errors", p.Errors).Msg("Phase done")
	}

	if w.options.Verify {
		w.verify(ctx, r, result)
	}

	close(w.operationsToLog)
	w.operationLogWg.Wait()
	w.log("Done")

	return result
}

func (w *Worker) runPhase(ctx context.Context, phase Phase, r Range) PhaseResult {
	result := PhaseResult{Phase: phase}
	if err := ctx.Err(); err != nil {
		result.Aborted = true
		result.Err = errors.Wrapf(err, "%s", phase)
		return result
	}

	op := w.operation(phase)

	start := time.Now()
	for i := r.Start; i < r.End; i++ {
		missed, err := op(ctx, i)
		result.Ops++
		if missed {
			result.Misses++
		}
		if err == nil {
			continue
		}

		result.Errors++
		if result.Err == nil {
			result.Err = errors.Wrapf(err, "%s %s", phase, dataset.Key(i))
		}
		w.operationsToLog <- &OperationLogEntry{phase, dataset.Key(i), err, time.Now()}

		if w.options.OnError == AbortOnError {
			result.Aborted = true
			break
		}
	}
	result.Duration = time.Since(start)

	return result
}

func (w *Worker) operation(phase Phase) operation {
	switch phase {
	case Insert:
		write := w.backend.Write
		if inserter, ok := w.backend.(engine.Inserter); ok {
			write = inserter.Insert
		}
		return func(ctx context.Context, i int) (bool, error) {
			return false, write(ctx, dataset.Key(i), w.data.Value(i))
		}

	case Read:
		// the value is discarded, only its presence is tracked
		return func(ctx context.Context, i int) (bool, error) {
			value, found, err := w.backend.Read(ctx, dataset.Key(i))
			return err == nil && (!found || value == ""), err
		}

	case Update:
		write := w.backend.Write
		if updater, ok := w.backend.(engine.Updater); ok {
			write = updater.Update
		}
		return func(ctx context.Context, i int) (bool, error) {
			return false, write(ctx, dataset.Key(i), dataset.UpdatedValue(i))
		}

	case Delete:
		return func(ctx context.Context, i int) (bool, error) {
			return false, w.backend.Delete(ctx, dataset.Key(i))
		}
	}

	panic("unknown phase " + phase.String())
}

func (w *Worker) verify(ctx context.Context, r Range, result *Result) {
	result.Verified = true
	for i := r.Start; i < r.End; i++ {
		_, found, err := w.backend.Read(ctx, dataset.Key(i))
		if err != nil {
			result.VerifyErrors++
		} else if found {
			result.Residual++
		}
	}
}
