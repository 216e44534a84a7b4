package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crudbench/benchmark"
	engine "crudbench/benchmark/engines/abstract"
	bolt_engine "crudbench/benchmark/engines/bolt"
	"crudbench/benchmark/engines/memory"
	"crudbench/benchmark/engines/postgres"
	redis_engine "crudbench/benchmark/engines/redis"
	riak_engine "crudbench/benchmark/engines/riak"
	"crudbench/benchmark/engines/sqlite"
	"crudbench/dataset"
	"crudbench/report"
	"crudbench/util"
	"crudbench/worker"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type BenchmarkArgs struct {
	Operations int
	Workers    int
	Sample     struct {
		Start int
		End   int
	}
	Modes   []string
	OnError string `yaml:"onError"`
	Verify  bool
	// each entry is the config of one engine, selected by its "engine" field
	Engines []yaml.Node
}

// Prepare zerolog
func setupLogging(disableLog bool, level string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zlog.Logger = zlog.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339Nano})

	var zlevel zerolog.Level
	if disableLog {
		zlevel = zerolog.Disabled
	} else if level == "info" {
		zlevel = zerolog.InfoLevel
	} else {
		zlevel = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(zlevel)
}

// Loads .env.local and .env, if present. Variables already set in the environment win.
func loadEnv() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "load %s", file)
		}
	}
	return nil
}

// Returns a BenchmarkArgs struct with the information in the config data, after expanding ${VAR}
// references from the environment.
func parseArgs(data []byte) (*BenchmarkArgs, error) {
	args := BenchmarkArgs{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &args); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	if len(args.Engines) == 0 {
		return nil, errors.New("no engines configured")
	}
	return &args, nil
}

func buildArgs(configFile string) *BenchmarkArgs {
	if configFile == "" {
		zlog.Fatal().Msg("Missing config file.")
	}
	data := util.Try(os.ReadFile(configFile))
	args, err := parseArgs(data)
	if err != nil {
		zlog.Fatal().Err(err).Str("file", configFile).Msg("Could not read config")
	}
	return args
}

func build[E engine.Engine](e E, err error) (engine.Engine, error) {
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Returns an engine based on the engineType. configData is the engine's own section of the config file,
// so each engine can deserialize its respective parameters.
func newEngine(engineType string, configData []byte) (engine.Engine, error) {
	switch engineType {
	case "postgres":
		return build(postgres.New(configData))
	case "sqlite":
		return build(sqlite.New(configData))
	case "redis":
		return build(redis_engine.New(configData))
	case "riak":
		return build(riak_engine.New(configData))
	case "bolt":
		return build(bolt_engine.New(configData))
	case "memory":
		return build(memory.New(configData))
	}
	return nil, fmt.Errorf("engine '%s' not found", engineType)
}

func createEngines(args *BenchmarkArgs) ([]engine.Engine, error) {
	engines := []engine.Engine{}
	for i := range args.Engines {
		node := &args.Engines[i]
		var header struct {
			Engine string
		}
		if err := node.Decode(&header); err != nil {
			return nil, errors.Wrapf(err, "engine #%d", i)
		}
		configData, err := yaml.Marshal(node)
		if err != nil {
			return nil, errors.Wrapf(err, "engine #%d", i)
		}
		e, err := newEngine(header.Engine, configData)
		if err != nil {
			return nil, errors.Wrapf(err, "engine #%d", i)
		}
		engines = append(engines, e)
	}
	return engines, nil
}

// Merges the config file and the flags (flags win) into the orchestrator's config
func buildConfig(args *BenchmarkArgs, ops int, workers int) (benchmark.Config, error) {
	config := benchmark.Config{Operations: args.Operations, Workers: args.Workers, Verify: args.Verify}
	if ops > 0 {
		config.Operations = ops
	}
	if workers > 0 {
		config.Workers = workers
	}
	for _, m := range args.Modes {
		config.Modes = append(config.Modes, benchmark.Mode(m))
	}

	policy, err := worker.ParseErrorPolicy(args.OnError)
	if err != nil {
		return config, err
	}
	config.OnError = policy

	config = config.WithDefaults()
	if args.Sample.End > 0 {
		start := util.Clamp(args.Sample.Start, 0, config.Operations)
		config.Sample = worker.Range{Start: start, End: util.Clamp(args.Sample.End, start, config.Operations)}
	}
	return config, nil
}

func writeMetrics(path string, reports []*benchmark.BackendReport) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	report.WriteMetrics(f, reports)
	return f.Close()
}

func main() {
	disableLog := flag.Bool("no-log", false, "Disables the log")
	configFile := flag.String("conf", "", "Benchmark config file")
	logLevel := flag.String("level", "debug", "Log level (info|debug)")
	ops := flag.Int("ops", 0, "Total operations of the multi-threaded run (overrides the config file)")
	workers := flag.Int("workers", 0, "Workers of the multi-threaded run (overrides the config file)")
	csv := flag.Bool("csv", false, "Also print Csv: lines")
	metricsFile := flag.String("metrics", "", "Write the results in Prometheus text format to this file")
	flag.Parse()

	setupLogging(*disableLog, *logLevel)
	util.CheckErr(loadEnv())
	args := buildArgs(*configFile)

	config, err := buildConfig(args, *ops, *workers)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Invalid config")
	}
	engines, err := createEngines(args)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Invalid engine config")
	}

	zlog.Info().Int("operations", config.Operations).Msg("Generating dataset")
	data := util.Try(dataset.New(max(config.Operations, config.Sample.End)))

	orchestrator, err := benchmark.New(config, data, engines...)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zlog.Info().Int("workers", config.Workers).Int("engines", len(engines)).Msg("Run started")
	reports := orchestrator.Run(ctx)
	zlog.Info().Msg("Run ended")

	report.Text(os.Stdout, reports)
	if *csv {
		report.Csv(os.Stdout, reports, true)
	}
	if *metricsFile != "" {
		if err := writeMetrics(*metricsFile, reports); err != nil {
			zlog.Error().Err(err).Str("file", *metricsFile).Msg("Could not write metrics")
		}
	}

	for _, r := range reports {
		if r.Failed() {
			stop()
			os.Exit(1)
		}
	}
}
