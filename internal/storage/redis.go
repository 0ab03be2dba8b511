package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MeKo-Tech/elscan/internal/classifier"
	"github.com/MeKo-Tech/elscan/internal/pipeline"
)

const keyPrefix = "elscan:"

// JobKey is the hash holding a job.
func JobKey(pdfName string) string { return keyPrefix + "job:" + pdfName }

// ProgressChannel is the pub/sub channel job updates are published on.
func ProgressChannel(pdfName string) string { return keyPrefix + "progress:" + pdfName }

// Redis stores each job as a hash that expires after a TTL and publishes
// every update on the job's progress channel.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to the server at url (redis://...).
func NewRedis(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisFromClient(client, ttl), nil
}

// NewRedisFromClient wraps an existing client. A non-positive ttl keeps jobs forever.
func NewRedisFromClient(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) CreateJob(ctx context.Context, pdfName string) (Job, error) {
	job, err := newJob(pdfName, time.Now().UTC())
	if err != nil {
		return Job{}, err
	}
	key := JobKey(pdfName)
	ok, err := r.client.HSetNX(ctx, key, "id", job.ID).Result()
	if err != nil {
		return Job{}, fmt.Errorf("failed to create job %s: %w", pdfName, err)
	}
	if !ok {
		return Job{}, ErrExists
	}
	if err := r.write(ctx, key, jobHash(job)); err != nil {
		return Job{}, err
	}
	return job, nil
}

func (r *Redis) UpdateStatus(ctx context.Context, pdfName string, status Status, message string) error {
	if err := checkStatus(status); err != nil {
		return err
	}
	return r.update(ctx, pdfName, map[string]any{
		"status":  string(status),
		"message": message,
	})
}

func (r *Redis) SaveResult(ctx context.Context, pdfName string, doc *pipeline.DocumentResult) error {
	res := classifier.EmptyResult()
	if doc != nil {
		res = doc.Classification
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	return r.update(ctx, pdfName, map[string]any{
		"status":  string(StatusComplete),
		"message": "",
		"result":  string(payload),
	})
}

func (r *Redis) update(ctx context.Context, pdfName string, fields map[string]any) error {
	key := JobKey(pdfName)
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to look up job %s: %w", pdfName, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	if err := r.write(ctx, key, fields); err != nil {
		return err
	}

	job, err := r.Job(ctx, pdfName)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, ProgressChannel(pdfName), msg).Err(); err != nil {
		return fmt.Errorf("failed to publish progress: %w", err)
	}
	return nil
}

func (r *Redis) write(ctx context.Context, key string, fields map[string]any) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Job(ctx context.Context, pdfName string) (Job, error) {
	h, err := r.client.HGetAll(ctx, JobKey(pdfName)).Result()
	if err != nil {
		return Job{}, fmt.Errorf("failed to load job %s: %w", pdfName, err)
	}
	if len(h) == 0 {
		return Job{}, ErrNotFound
	}
	return jobFromHash(h)
}

// Watch subscribes to the job's progress channel.
func (r *Redis) Watch(ctx context.Context, pdfName string) (<-chan Job, error) {
	sub := r.client.Subscribe(ctx, ProgressChannel(pdfName))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	out := make(chan Job, 8)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var job Job
				if json.Unmarshal([]byte(m.Payload), &job) != nil {
					continue
				}
				select {
				case out <- job:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Ping checks the Redis connection.
func (r *Redis) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *Redis) Close() error { return r.client.Close() }

func jobHash(j Job) map[string]any {
	h := map[string]any{
		"id":         j.ID,
		"pdf_name":   j.PDFName,
		"status":     string(j.Status),
		"message":    j.Message,
		"created_at": j.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": j.UpdatedAt.Format(time.RFC3339Nano),
	}
	if j.Result != nil {
		if b, err := json.Marshal(j.Result); err == nil {
			h["result"] = string(b)
		}
	}
	return h
}

func jobFromHash(h map[string]string) (Job, error) {
	job := Job{
		ID:      h["id"],
		PDFName: h["pdf_name"],
		Status:  Status(h["status"]),
		Message: h["message"],
	}
	if job.PDFName == "" {
		return Job{}, errors.New("job hash without pdf_name")
	}
	var err error
	if job.CreatedAt, err = parseTime(h["created_at"]); err != nil {
		return Job{}, err
	}
	if job.UpdatedAt, err = parseTime(h["updated_at"]); err != nil {
		return Job{}, err
	}
	if raw := h["result"]; raw != "" {
		var r classifier.Result
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return Job{}, fmt.Errorf("failed to decode result: %w", err)
		}
		job.Result = &r
	}
	return job, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
