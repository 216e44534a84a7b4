package memory

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	engine "crudbench/benchmark/engines/abstract"

	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
	"gopkg.in/yaml.v3"
)

// ErrInjected is returned by operations selected for failure injection.
var ErrInjected = errors.New("injected failure")

// Memory is an in-process engine. It is used as a stub backend and as a baseline that measures harness
// overhead without any network round trip.
type Memory struct {
	// 1-based ordinal of the write/read/delete call that fails (0 disables)
	FailWriteAt  int64         `yaml:"failWriteAt"`
	FailReadAt   int64         `yaml:"failReadAt"`
	FailDeleteAt int64         `yaml:"failDeleteAt"`
	FailSetup    bool          `yaml:"failSetup"`
	Latency      time.Duration `yaml:"latency"`

	data    *xsync.MapOf[string, string]
	touched *xsync.MapOf[string, int64]

	Stats Stats
}

type Stats struct {
	Inserts  atomic.Int64
	Updates  atomic.Int64
	Writes   atomic.Int64
	Reads    atomic.Int64
	Deletes  atomic.Int64
	Sessions atomic.Int64
	Closed   atomic.Int64
}

func New(configData []byte) (*Memory, error) {
	m := &Memory{}
	if err := yaml.Unmarshal(configData, m); err != nil {
		return nil, errors.Wrap(err, "memory: invalid config")
	}
	m.data = xsync.NewMapOf[string, string]()
	m.touched = xsync.NewMapOf[string, int64]()
	return m, nil
}

func (m *Memory) Name() string {
	return "Memory"
}

func (m *Memory) Setup(ctx context.Context) error {
	if m.FailSetup {
		return errors.New("memory: connection refused")
	}
	return nil
}

func (m *Memory) Cleanup(ctx context.Context) error {
	m.data.Clear()
	return nil
}

func (m *Memory) Prepare(ctx context.Context) (engine.Backend, error) {
	m.Stats.Sessions.Add(1)
	return &session{m: m}, nil
}

func (m *Memory) GetConfigs() map[string]string {
	return map[string]string{
		"engine":  "memory",
		"latency": m.Latency.String(),
	}
}

func (m *Memory) Finalize() error {
	return nil
}

// Len returns the number of keys currently stored.
func (m *Memory) Len() int {
	return m.data.Size()
}

// Get reads a key without going through a session or touching the counters.
func (m *Memory) Get(key string) (string, bool) {
	return m.data.Load(key)
}

// Touched returns the number of distinct keys ever inserted or written.
func (m *Memory) Touched() int {
	return m.touched.Size()
}

// MaxInsertsPerKey returns the highest number of inserts any single key received.
func (m *Memory) MaxInsertsPerKey() int64 {
	var highest int64
	m.touched.Range(func(_ string, n int64) bool {
		highest = max(highest, n)
		return true
	})
	return highest
}

type session struct {
	m *Memory
}

func (s *session) delay() {
	if s.m.Latency > 0 {
		time.Sleep(s.m.Latency)
	}
}

func failAt(counter *atomic.Int64, at int64, op string) error {
	n := counter.Add(1)
	if at > 0 && n == at {
		return errors.Wrap(ErrInjected, op+" #"+strconv.FormatInt(n, 10))
	}
	return nil
}

func (s *session) Insert(ctx context.Context, key string, value string) error {
	s.m.Stats.Inserts.Add(1)
	if err := s.write(key, value); err != nil {
		return err
	}
	s.m.touched.Compute(key, func(n int64, _ bool) (int64, bool) {
		return n + 1, false
	})
	return nil
}

func (s *session) Update(ctx context.Context, key string, value string) error {
	s.m.Stats.Updates.Add(1)
	return s.write(key, value)
}

func (s *session) Write(ctx context.Context, key string, value string) error {
	if err := s.write(key, value); err != nil {
		return err
	}
	s.m.touched.LoadOrStore(key, 0)
	return nil
}

func (s *session) write(key string, value string) error {
	s.delay()
	if err := failAt(&s.m.Stats.Writes, s.m.FailWriteAt, "write"); err != nil {
		return err
	}
	s.m.data.Store(key, value)
	return nil
}

func (s *session) Read(ctx context.Context, key string) (string, bool, error) {
	s.delay()
	if err := failAt(&s.m.Stats.Reads, s.m.FailReadAt, "read"); err != nil {
		return "", false, err
	}
	value, ok := s.m.data.Load(key)
	return value, ok, nil
}

func (s *session) Delete(ctx context.Context, key string) error {
	s.delay()
	if err := failAt(&s.m.Stats.Deletes, s.m.FailDeleteAt, "delete"); err != nil {
		return err
	}
	s.m.data.Delete(key)
	return nil
}

func (s *session) Close() error {
	s.m.Stats.Closed.Add(1)
	return nil
}

func (m *Memory) Size(ctx context.Context) (int64, error) {
	return int64(m.data.Size()), nil
}
