// Package redisstore keeps batch jobs in Redis so job status
// survives restarts and is shared between instances.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/optimode/mailprobe/batch"
	"github.com/optimode/mailprobe/types"
)

// Config configures the Redis connection.
type Config struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key. Default: "mailprobe"
	Prefix string
	// TTL expires job keys; every update extends it. Zero keeps them forever.
	TTL time.Duration
}

// Store implements batch.Store. Each job is split over three keys:
//
//	<prefix>:job:<id>          Status as JSON, rewritten on every update
//	<prefix>:job:<id>:input    emails, options and CSV rows, written once
//	<prefix>:job:<id>:results  hash of result index to result JSON
//
// <prefix>:jobs is a sorted set of ids scored by creation time.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ batch.Store = (*Store)(nil)

// New connects a Store to the server at cfg.Addr.
func New(cfg Config) *Store {
	return NewWithClient(redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), cfg)
}

// NewWithClient wraps an existing client. Only Prefix and TTL are read
// from cfg.
func NewWithClient(client *redis.Client, cfg Config) *Store {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "mailprobe"
	}
	return &Store{client: client, prefix: prefix, ttl: cfg.TTL}
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) jobKey(id string) string     { return s.prefix + ":job:" + id }
func (s *Store) inputKey(id string) string   { return s.jobKey(id) + ":input" }
func (s *Store) resultsKey(id string) string { return s.jobKey(id) + ":results" }
func (s *Store) indexKey() string            { return s.prefix + ":jobs" }

// input is the write-once part of a job.
type input struct {
	Emails  []string      `json:"emails"`
	Options batch.Options `json:"options"`
	Header  []string      `json:"header,omitempty"`
	Rows    [][]string    `json:"rows,omitempty"`
}

func (s *Store) Create(ctx context.Context, job *batch.Job) error {
	status, err := json.Marshal(job.Status())
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	in, err := json.Marshal(input{Emails: job.Emails, Options: job.Options, Header: job.Header, Rows: job.Rows})
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.jobKey(job.ID), status, s.ttl)
		pipe.Set(ctx, s.inputKey(job.ID), in, s.ttl)
		pipe.Del(ctx, s.resultsKey(job.ID))
		pipe.ZAdd(ctx, s.indexKey(), &redis.Z{
			Score:  float64(job.CreatedAt.UnixNano()),
			Member: job.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.ID, err)
	}
	return nil
}

// Update overwrites the status only if the job exists and adds the
// batch's results to the results hash.
func (s *Store) Update(ctx context.Context, st batch.Status, offset int, results []types.ValidationResult) error {
	status, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", st.ID, err)
	}
	fields := make([]any, 0, 2*len(results))
	for i, r := range results {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode result %d of job %s: %w", offset+i, st.ID, err)
		}
		fields = append(fields, strconv.Itoa(offset+i), data)
	}

	var exists *redis.BoolCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		exists = pipe.SetXX(ctx, s.jobKey(st.ID), status, s.ttl)
		if len(fields) > 0 {
			pipe.HSet(ctx, s.resultsKey(st.ID), fields...)
		}
		if s.ttl > 0 {
			pipe.Expire(ctx, s.inputKey(st.ID), s.ttl)
			pipe.Expire(ctx, s.resultsKey(st.ID), s.ttl)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("update job %s: %w", st.ID, err)
	}
	if !exists.Val() {
		// the results written alongside belong to no job
		s.client.Del(ctx, s.resultsKey(st.ID))
		return batch.ErrJobNotFound
	}
	return nil
}

func (s *Store) Status(ctx context.Context, id string) (batch.Status, error) {
	data, err := s.client.Get(ctx, s.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return batch.Status{}, batch.ErrJobNotFound
	}
	if err != nil {
		return batch.Status{}, fmt.Errorf("load job %s: %w", id, err)
	}
	return decodeStatus(id, data)
}

func (s *Store) Load(ctx context.Context, id string) (*batch.Job, error) {
	st, err := s.Status(ctx, id)
	if err != nil {
		return nil, err
	}

	raw, err := s.client.Get(ctx, s.inputKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, batch.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	var in input
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}

	stored, err := s.client.HGetAll(ctx, s.resultsKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("load results of job %s: %w", id, err)
	}
	results := make([]types.ValidationResult, st.Total)
	for field, data := range stored {
		i, err := strconv.Atoi(field)
		if err != nil || i < 0 || i >= len(results) {
			return nil, fmt.Errorf("job %s: bad result slot %q", id, field)
		}
		if err := json.Unmarshal([]byte(data), &results[i]); err != nil {
			return nil, fmt.Errorf("decode result %d of job %s: %w", i, id, err)
		}
	}

	return &batch.Job{
		ID:         st.ID,
		State:      st.Status,
		Total:      st.Total,
		Completed:  st.Completed,
		Emails:     in.Emails,
		Results:    results,
		CreatedAt:  st.CreatedAt,
		FinishedAt: st.FinishedAt,
		Options:    in.Options,
		Header:     in.Header,
		Rows:       in.Rows,
		Error:      st.Error,
	}, nil
}

// List returns up to limit job statuses, newest first. Only status keys
// are read. Ids whose status has expired are dropped from the index as
// they are found.
func (s *Store) List(ctx context.Context, limit int) ([]batch.Status, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.jobKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	out := make([]batch.Status, 0, len(values))
	var stale []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		st, err := decodeStatus(ids[i], []byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if len(stale) > 0 {
		s.client.ZRem(ctx, s.indexKey(), stale...)
	}
	return out, nil
}

func decodeStatus(id string, data []byte) (batch.Status, error) {
	var st batch.Status
	if err := json.Unmarshal(data, &st); err != nil {
		return batch.Status{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	return st, nil
}
