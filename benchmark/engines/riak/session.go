package riak_engine

import (
	"context"

	"github.com/basho/riak-go-client"
	"github.com/pkg/errors"
)

type session struct {
	getBuilder func() *riak.FetchValueCommandBuilder
	setBuilder func() *riak.StoreValueCommandBuilder
	delBuilder func() *riak.DeleteValueCommandBuilder
	client     *riak.Client
}

func newSession(client *riak.Client, bucketType string, bucket string) *session {
	s := &session{}
	s.client = client
	s.getBuilder = func() *riak.FetchValueCommandBuilder {
		return riak.NewFetchValueCommandBuilder().WithBucketType(bucketType).WithBucket(bucket)
	}
	s.setBuilder = func() *riak.StoreValueCommandBuilder {
		return riak.NewStoreValueCommandBuilder().WithBucketType(bucketType).WithBucket(bucket)
	}
	s.delBuilder = func() *riak.DeleteValueCommandBuilder {
		return riak.NewDeleteValueCommandBuilder().WithBucketType(bucketType).WithBucket(bucket)
	}
	return s
}

func (s *session) Write(ctx context.Context, key string, value string) error {
	obj := &riak.Object{
		Value: []byte(value),
	}
	cmd, err := s.setBuilder().WithKey(key).WithContent(obj).Build()
	if err != nil {
		return errors.Wrap(err, "riak store")
	}
	return errors.Wrap(s.client.Execute(cmd), "riak store")
}

func (s *session) Read(ctx context.Context, key string) (string, bool, error) {
	cmd, err := s.getBuilder().WithKey(key).Build()
	if err != nil {
		return "", false, errors.Wrap(err, "riak fetch")
	}
	if err := s.client.Execute(cmd); err != nil {
		return "", false, errors.Wrap(err, "riak fetch")
	}

	response := cmd.(*riak.FetchValueCommand).Response
	// siblings are not expected since every key has a single writer; the first value wins
	if response == nil || response.IsNotFound || len(response.Values) == 0 {
		return "", false, nil
	}
	return string(response.Values[0].Value), true, nil
}

func (s *session) Delete(ctx context.Context, key string) error {
	cmd, err := s.delBuilder().WithKey(key).Build()
	if err != nil {
		return errors.Wrap(err, "riak delete")
	}
	return errors.Wrap(s.client.Execute(cmd), "riak delete")
}

// The client belongs to the engine
func (s *session) Close() error {
	return nil
}
