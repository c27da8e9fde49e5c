package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "notify:queue:"
	keyProcessing = keyPrefix + "processing"

	// Finished jobs stay readable for a day, then Redis evicts them.
	doneJobTTL = 24 * time.Hour
)

// claimWeights lists the priority weights in claim order, highest first.
// Must cover every value notification.Priority.Weight can produce.
var claimWeights = []int8{100, 75, 50, 25}

// claimScript pops one due job id from the highest-weight pending set and
// parks it in the processing set, atomically. KEYS are the pending sets in
// claim order plus the processing set last. ARGV[1] is now, ARGV[2] is the
// lock deadline, both in unix milliseconds.
var claimScript = redis.NewScript(`
for i = 1, #KEYS - 1 do
	local ids = redis.call('ZRANGEBYSCORE', KEYS[i], '-inf', ARGV[1], 'LIMIT', 0, 1)
	if #ids > 0 then
		redis.call('ZREM', KEYS[i], ids[1])
		redis.call('ZADD', KEYS[#KEYS], ARGV[2], ids[1])
		return ids[1]
	end
end
return false
`)

// cancelScript removes the pending job for a notification. Returns 1 on
// success, 0 when no job references the notification, -1 when the job is
// no longer pending. KEYS[1] is the notification index key, KEYS[2] the
// job key, KEYS[3] the pending set for the job's weight.
var cancelScript = redis.NewScript(`
local jobID = redis.call('GET', KEYS[1])
if not jobID then
	return 0
end
if redis.call('ZREM', KEYS[3], jobID) == 0 then
	return -1
end
redis.call('DEL', KEYS[1])
return 1
`)

// RedisStorage implements Storage over Redis. Pending jobs live in
// per-weight sorted sets scored by scheduled time, so a claim is a ranged
// pop from the highest-weight set with a due member.
type RedisStorage struct {
	client *redis.Client
}

// NewRedisStorage creates a Redis-backed job storage.
func NewRedisStorage(client *redis.Client) *RedisStorage {
	return &RedisStorage{client: client}
}

// Close is a no-op; the client lifecycle belongs to the caller.
func (rs *RedisStorage) Close() error { return nil }

func pendingKey(weight int8) string {
	return fmt.Sprintf("%spending:%d", keyPrefix, weight)
}

func jobKey(jobID uuid.UUID) string {
	return keyPrefix + "job:" + jobID.String()
}

func notifKey(notificationID uuid.UUID) string {
	return keyPrefix + "notif:" + notificationID.String()
}

func (rs *RedisStorage) CreateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job cannot be nil")
	}

	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	pipe := rs.client.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), raw, 0)
	pipe.Set(ctx, notifKey(job.NotificationID), job.ID.String(), 0)
	pipe.ZAdd(ctx, pendingKey(job.Weight), redis.Z{
		Score:  float64(job.ScheduledAt.UnixMilli()),
		Member: job.ID.String(),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store job: %w", err)
	}
	return nil
}

func (rs *RedisStorage) ClaimJob(ctx context.Context, workerID uuid.UUID, lockDuration time.Duration) (*Job, error) {
	if err := rs.requeueExpired(ctx); err != nil {
		return nil, err
	}

	now := time.Now()
	keys := make([]string, 0, len(claimWeights)+1)
	for _, w := range claimWeights {
		keys = append(keys, pendingKey(w))
	}
	keys = append(keys, keyProcessing)

	lockedUntil := now.Add(lockDuration)
	res, err := claimScript.Run(ctx, rs.client, keys, now.UnixMilli(), lockedUntil.UnixMilli()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoJobToClaim
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}

	jobID, err := uuid.Parse(res.(string))
	if err != nil {
		return nil, fmt.Errorf("claimed malformed job id %q: %w", res, err)
	}

	job, err := rs.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	job.Status = JobStatusProcessing
	job.LockedUntil = &lockedUntil
	job.LockedBy = &workerID
	if err := rs.putJob(ctx, job, 0); err != nil {
		return nil, err
	}
	return job, nil
}

func (rs *RedisStorage) CompleteJob(ctx context.Context, jobID uuid.UUID, errMsg string) error {
	job, err := rs.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.Status = JobStatusDone
	job.LockedUntil = nil
	job.LockedBy = nil
	if errMsg != "" {
		job.Error = &errMsg
	}

	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	pipe := rs.client.TxPipeline()
	pipe.ZRem(ctx, keyProcessing, jobID.String())
	pipe.Del(ctx, notifKey(job.NotificationID))
	pipe.Set(ctx, jobKey(jobID), raw, doneJobTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

func (rs *RedisStorage) CancelByNotification(ctx context.Context, notificationID uuid.UUID) error {
	// The weight is needed to address the pending set, so the job record
	// is read first; the script re-checks pending membership atomically.
	jobIDStr, err := rs.client.Get(ctx, notifKey(notificationID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrJobNotFound
		}
		return fmt.Errorf("resolve job for notification: %w", err)
	}
	jobID, err := uuid.Parse(jobIDStr)
	if err != nil {
		return fmt.Errorf("malformed job id %q: %w", jobIDStr, err)
	}
	job, err := rs.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	keys := []string{notifKey(notificationID), jobKey(jobID), pendingKey(job.Weight)}
	res, err := cancelScript.Run(ctx, rs.client, keys).Int()
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	switch res {
	case 0:
		return ErrJobNotFound
	case -1:
		return ErrJobNotCancellable
	}

	job.Status = JobStatusCancelled
	return rs.putJob(ctx, job, doneJobTTL)
}

// requeueExpired returns jobs abandoned by dead workers to their pending
// sets.
func (rs *RedisStorage) requeueExpired(ctx context.Context) error {
	now := time.Now().UnixMilli()
	ids, err := rs.client.ZRangeByScore(ctx, keyProcessing, &redis.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%d", now),
	}).Result()
	if err != nil {
		return fmt.Errorf("list expired locks: %w", err)
	}

	for _, idStr := range ids {
		jobID, err := uuid.Parse(idStr)
		if err != nil {
			rs.client.ZRem(ctx, keyProcessing, idStr)
			continue
		}
		job, err := rs.getJob(ctx, jobID)
		if err != nil {
			if errors.Is(err, ErrJobNotFound) {
				rs.client.ZRem(ctx, keyProcessing, idStr)
				continue
			}
			return err
		}

		job.Status = JobStatusPending
		job.LockedUntil = nil
		job.LockedBy = nil

		raw, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}
		pipe := rs.client.TxPipeline()
		pipe.ZRem(ctx, keyProcessing, idStr)
		pipe.Set(ctx, jobKey(jobID), raw, 0)
		pipe.ZAdd(ctx, pendingKey(job.Weight), redis.Z{
			Score:  float64(job.ScheduledAt.UnixMilli()),
			Member: idStr,
		})
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("requeue expired job: %w", err)
		}
	}
	return nil
}

func (rs *RedisStorage) getJob(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	raw, err := rs.client.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("load job: %w", err)
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

func (rs *RedisStorage) putJob(ctx context.Context, job *Job, ttl time.Duration) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := rs.client.Set(ctx, jobKey(job.ID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("store job: %w", err)
	}
	return nil
}
