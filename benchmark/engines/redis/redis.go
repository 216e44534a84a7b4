package redis_engine

import (
	"context"
	"strconv"

	engine "crudbench/benchmark/engines/abstract"

	"github.com/go-redis/redis/v7"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Redis shares one pooled client between sessions; each session takes its own connection from the pool
// per command, so workers never contend on a single connection.
type Redis struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"poolSize"`
	KeyPrefix string `yaml:"keyPrefix"`
	client    *redis.Client
}

func New(configData []byte) (*Redis, error) {
	r := Redis{Address: "localhost:6379"}
	if err := yaml.Unmarshal(configData, &r); err != nil {
		return nil, errors.Wrap(err, "redis: invalid config")
	}
	return &r, nil
}

func (r *Redis) Name() string {
	return "Redis"
}

func (r *Redis) Setup(ctx context.Context) error {
	client := redis.NewClient(&redis.Options{
		Addr:     r.Address,
		Password: r.Password,
		DB:       r.DB,
		PoolSize: r.PoolSize,
	})
	if err := client.WithContext(ctx).Ping().Err(); err != nil {
		client.Close()
		return errors.Wrapf(err, "redis: connect %s", r.Address)
	}
	r.client = client
	return nil
}

// Keys are removed by the delete phase; nothing else is touched so a shared instance is not flushed.
func (r *Redis) Cleanup(ctx context.Context) error {
	return nil
}

func (r *Redis) Prepare(ctx context.Context) (engine.Backend, error) {
	return &session{client: r.client, prefix: r.KeyPrefix}, nil
}

func (r *Redis) GetConfigs() map[string]string {
	return map[string]string{
		"engine":   "redis",
		"db":       strconv.Itoa(r.DB),
		"poolSize": strconv.Itoa(r.PoolSize),
	}
}

func (r *Redis) Finalize() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

type session struct {
	client *redis.Client
	prefix string
}

// Every command runs under the context of its own call
func (s *session) with(ctx context.Context) *redis.Client {
	return s.client.WithContext(ctx)
}

func (s *session) Write(ctx context.Context, key string, value string) error {
	return errors.Wrap(s.with(ctx).Set(s.prefix+key, value, 0).Err(), "redis set")
}

func (s *session) Read(ctx context.Context, key string) (string, bool, error) {
	value, err := s.with(ctx).Get(s.prefix + key).Result()
	if err == redis.Nil {
		return "", false, nil
	} else if err != nil {
		return "", false, errors.Wrap(err, "redis get")
	}
	return value, true, nil
}

func (s *session) Delete(ctx context.Context, key string) error {
	return errors.Wrap(s.with(ctx).Del(s.prefix+key).Err(), "redis del")
}

// The pooled client belongs to the engine
func (s *session) Close() error {
	return nil
}
