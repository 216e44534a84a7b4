package engine

import "context"

type Engine interface {
	// Name identifying the engine in logs and reports
	Name() string
	// Connects to the backend and checks that it is reachable
	Setup(ctx context.Context) error
	// Resets the table/keyspace used by the benchmark (called before each run)
	Cleanup(ctx context.Context) error
	// Opens a session; each worker gets its own
	Prepare(ctx context.Context) (Backend, error)
	// Returns the engine-specific configurations
	GetConfigs() map[string]string
	// Releases any resources acquired in Setup
	Finalize() error
}

// Sizer is implemented by engines that can count the records left in the benchmark table/keyspace.
type Sizer interface {
	Size(ctx context.Context) (int64, error)
}

// SessionReserver is implemented by engines whose sessions each pin a connection of a bounded pool.
// Before a multi-threaded run the pool is grown so no worker waits for another one's connection.
type SessionReserver interface {
	ReserveSessions(n int)
}
