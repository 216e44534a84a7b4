package engine

import "context"

// Backend is a session against one storage engine. Every call is one round trip; implementations must not
// batch or pipeline. A Backend is owned by a single worker and is not safe for concurrent use.
type Backend interface {
	Write(ctx context.Context, key string, value string) error
	// Read returns found=false when the key does not exist
	Read(ctx context.Context, key string) (value string, found bool, err error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// Inserter is implemented by backends where creating a record costs something other than a generic write
// (e.g. a SQL INSERT instead of an upsert).
type Inserter interface {
	Insert(ctx context.Context, key string, value string) error
}

// Updater is implemented by backends with a dedicated update statement.
type Updater interface {
	Update(ctx context.Context, key string, value string) error
}
