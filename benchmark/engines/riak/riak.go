package riak_engine

import (
	"context"
	"strings"

	engine "crudbench/benchmark/engines/abstract"

	"github.com/basho/riak-go-client"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Riak keeps one client per engine; the client manages its own connection pool per node, so every
// session shares it.
type Riak struct {
	Connection []string `yaml:"connection"`
	BucketType string   `yaml:"bucketType"`
	Bucket     string   `yaml:"bucket"`
	client     *riak.Client
}

func New(configData []byte) (*Riak, error) {
	r := Riak{BucketType: "default", Bucket: "benchmark"}
	if err := yaml.Unmarshal(configData, &r); err != nil {
		return nil, errors.Wrap(err, "riak: invalid config")
	}
	if len(r.Connection) == 0 {
		return nil, errors.New("riak: missing connection")
	}
	return &r, nil
}

func (r *Riak) Name() string {
	return "Riak"
}

func (r *Riak) Setup(ctx context.Context) error {
	clientOptions := &riak.NewClientOptions{
		RemoteAddresses: r.Connection,
	}
	client, err := riak.NewClient(clientOptions)
	if err != nil {
		return errors.Wrapf(err, "riak: connect %s", strings.Join(r.Connection, ","))
	}
	if ok, err := client.Ping(); err != nil || !ok {
		client.Stop()
		if err == nil {
			err = errors.New("ping failed")
		}
		return errors.Wrapf(err, "riak: connect %s", strings.Join(r.Connection, ","))
	}
	r.client = client
	return nil
}

// Keys are removed by the delete phase; the bucket is left alone.
func (r *Riak) Cleanup(ctx context.Context) error {
	return nil
}

func (r *Riak) Prepare(ctx context.Context) (engine.Backend, error) {
	return newSession(r.client, r.BucketType, r.Bucket), nil
}

func (r *Riak) GetConfigs() map[string]string {
	return map[string]string{
		"engine":     "riak",
		"bucketType": r.BucketType,
		"bucket":     r.Bucket,
		"nodes":      strings.Join(r.Connection, ","),
	}
}

func (r *Riak) Finalize() error {
	if r.client == nil {
		return nil
	}
	return r.client.Stop()
}
