package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"franklin/internal/domain/entity"
)

const (
	jobKeyPrefix  = "franklin:job:"
	mergeAttempts = 5
)

var errContention = errors.New("job changed concurrently")

// RedisRepo stores each job as a JSON value. Terminal jobs get a TTL equal to
// the retention window so redis expires them on its own.
type RedisRepo struct {
	Client    *redis.Client
	retention time.Duration
	now       func() time.Time
}

func NewRedisRepo(client *redis.Client, retention time.Duration) *RedisRepo {
	return &RedisRepo{Client: client, retention: retention, now: time.Now}
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}

func (r *RedisRepo) Get(ctx context.Context, id string) (*entity.Job, error) {
	data, err := r.Client.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, entity.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get job %s: %w", id, err)
	}
	return decodeJob(data)
}

func (r *RedisRepo) Put(ctx context.Context, job *entity.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	if err := r.Client.Set(ctx, jobKey(job.ID), data, r.ttlFor(job)).Err(); err != nil {
		return fmt.Errorf("redis set job %s: %w", job.ID, err)
	}
	return nil
}

// Merge applies patch inside a WATCH/MULTI transaction, retrying when another
// writer touched the key in between.
func (r *RedisRepo) Merge(ctx context.Context, id string, patch entity.JobPatch) (*entity.Job, error) {
	key := jobKey(id)
	var updated *entity.Job

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return entity.ErrJobNotFound
		}
		if err != nil {
			return err
		}

		job, err := decodeJob(data)
		if err != nil {
			return err
		}
		if err := job.Apply(patch, r.now()); err != nil {
			return err
		}
		out, err := json.Marshal(job)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, r.ttlFor(job))
			return nil
		})
		if err == nil {
			updated = job
		}
		return err
	}

	for attempt := 0; attempt < mergeAttempts; attempt++ {
		err := r.Client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, entity.ErrJobNotFound) || errors.Is(err, entity.ErrJobTerminal) {
			return nil, err
		}
		if err != nil {
			return nil, fmt.Errorf("redis merge job %s: %w", id, err)
		}
		return updated, nil
	}
	return nil, fmt.Errorf("redis merge job %s: %w", id, errContention)
}

func (r *RedisRepo) Delete(ctx context.Context, id string) error {
	if err := r.Client.Del(ctx, jobKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete job %s: %w", id, err)
	}
	return nil
}

// List scans every job key. Meant for diagnostics, not the request path.
func (r *RedisRepo) List(ctx context.Context) ([]*entity.Job, error) {
	var keys []string
	iter := r.Client.Scan(ctx, 0, jobKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan jobs: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := r.Client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget jobs: %w", err)
	}

	jobs := make([]*entity.Job, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			// expired between SCAN and MGET
			continue
		}
		job, err := decodeJob([]byte(s))
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].LastUpdated.After(jobs[k].LastUpdated)
	})
	return jobs, nil
}

func (r *RedisRepo) ttlFor(job *entity.Job) time.Duration {
	if job.Status.Terminal() && r.retention > 0 {
		return r.retention
	}
	return 0
}

func decodeJob(data []byte) (*entity.Job, error) {
	var job entity.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}
