package bolt_engine

import (
	"context"
	"time"

	engine "crudbench/benchmark/engines/abstract"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"gopkg.in/yaml.v3"
)

// Bolt runs the workload against an embedded bbolt file: one read-write transaction per write or delete,
// one read-only transaction per read. Writers are serialized by bbolt itself.
type Bolt struct {
	Path    string        `yaml:"path"`
	Bucket  string        `yaml:"bucket"`
	Timeout time.Duration `yaml:"timeout"`
	NoSync  bool          `yaml:"noSync"`
	db      *bolt.DB
}

func New(configData []byte) (*Bolt, error) {
	b := Bolt{Bucket: "benchmark", Timeout: time.Second}
	if err := yaml.Unmarshal(configData, &b); err != nil {
		return nil, errors.Wrap(err, "bolt: invalid config")
	}
	if b.Path == "" {
		return nil, errors.New("bolt: missing path")
	}
	return &b, nil
}

func (b *Bolt) Name() string {
	return "bbolt"
}

func (b *Bolt) Setup(ctx context.Context) error {
	db, err := bolt.Open(b.Path, 0600, &bolt.Options{Timeout: b.Timeout})
	if err != nil {
		return errors.Wrapf(err, "bolt: open %s", b.Path)
	}
	db.NoSync = b.NoSync
	b.db = db
	return nil
}

func (b *Bolt) Cleanup(ctx context.Context) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(b.Bucket)); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket([]byte(b.Bucket))
		return err
	})
	return errors.Wrap(err, "bolt: recreate bucket")
}

func (b *Bolt) Prepare(ctx context.Context) (engine.Backend, error) {
	return &session{db: b.db, bucket: []byte(b.Bucket)}, nil
}

func (b *Bolt) Size(ctx context.Context) (int64, error) {
	var n int64
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(b.Bucket))
		if bucket == nil {
			return bolt.ErrBucketNotFound
		}
		n = int64(bucket.Stats().KeyN)
		return nil
	})
	return n, err
}

func (b *Bolt) GetConfigs() map[string]string {
	return map[string]string{
		"engine": "bolt",
		"bucket": b.Bucket,
	}
}

func (b *Bolt) Finalize() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

type session struct {
	db     *bolt.DB
	bucket []byte
}

func (s *session) Write(ctx context.Context, key string, value string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), []byte(value))
	})
	return errors.Wrap(err, "bolt put")
}

func (s *session) Read(ctx context.Context, key string) (string, bool, error) {
	var value string
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		// the slice is only valid inside the transaction
		if v := tx.Bucket(s.bucket).Get([]byte(key)); v != nil {
			value, found = string(v), true
		}
		return nil
	})
	return value, found, errors.Wrap(err, "bolt get")
}

func (s *session) Delete(ctx context.Context, key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
	return errors.Wrap(err, "bolt delete")
}

func (s *session) Close() error {
	return nil
}
