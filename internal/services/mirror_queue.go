package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/studyblocks/backend/internal/config"
	"github.com/studyblocks/backend/pkg/logger"
)

const TaskTypeMirror = "mirror:apply"

// MirrorQueue carries mirror ops from the coordinator to the secondary
// store. The sync implementation applies ops inline in commit order; the
// async implementation hands them to a Redis-backed queue consumed by a
// single-concurrency worker, which preserves the same ordering.
type MirrorQueue interface {
	Enqueue(op *MirrorOp) error
	IsAsync() bool
	Close() error
}

// InitMirrorQueue picks the queue implementation: Redis-backed when Redis
// is enabled and reachable, inline otherwise.
func InitMirrorQueue(cfg *config.Config, client MirrorClient) MirrorQueue {
	if cfg.Redis.Enabled {
		queue, err := NewAsyncMirrorQueue(&cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, mirror queue falling back to inline mode")
		} else {
			logger.Info().Str("addr", cfg.Redis.Addr).Msg("async mirror queue initialized")
			return queue
		}
	}
	return NewSyncMirrorQueue(client, cfg.Mirror.Timeout())
}

// SyncMirrorQueue applies each op immediately against the mirror client
// with a fixed short timeout, so a slow secondary store cannot stall the
// caller indefinitely.
type SyncMirrorQueue struct {
	client  MirrorClient
	timeout time.Duration
}

func NewSyncMirrorQueue(client MirrorClient, timeout time.Duration) *SyncMirrorQueue {
	return &SyncMirrorQueue{client: client, timeout: timeout}
}

func (q *SyncMirrorQueue) Enqueue(op *MirrorOp) error {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	return applyMirrorOp(ctx, q.client, op)
}

func (q *SyncMirrorQueue) IsAsync() bool { return false }

func (q *SyncMirrorQueue) Close() error { return nil }

// AsyncMirrorQueue enqueues ops on a dedicated asynq queue. MaxRetry is
// zero: a dropped op leaves the mirror stale until the next write to the
// same record re-syncs it, which matches the eventual-consistency contract.
type AsyncMirrorQueue struct {
	client *asynq.Client
}

func NewAsyncMirrorQueue(cfg *config.RedisConfig) (*AsyncMirrorQueue, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	client := asynq.NewClient(redisOpt)

	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()
	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncMirrorQueue{client: client}, nil
}

func (q *AsyncMirrorQueue) Enqueue(op *MirrorOp) error {
	payload, err := json.Marshal(op)
	if err != nil {
		return err
	}

	_, err = q.client.Enqueue(asynq.NewTask(TaskTypeMirror, payload),
		asynq.Queue("mirror"),
		asynq.MaxRetry(0),
	)
	return err
}

func (q *AsyncMirrorQueue) IsAsync() bool { return true }

func (q *AsyncMirrorQueue) Close() error { return q.client.Close() }

// MirrorWorker consumes the async mirror queue. Concurrency is fixed at 1
// so ops for the same record apply in the order they were enqueued.
type MirrorWorker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	client  MirrorClient
	timeout time.Duration
	running bool
	mu      sync.Mutex
}

func NewMirrorWorker(cfg *config.RedisConfig, client MirrorClient, timeout time.Duration) *MirrorWorker {
	if !cfg.Enabled {
		return nil
	}

	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		},
		asynq.Config{
			Concurrency: 1,
			Queues: map[string]int{
				"mirror": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Warn().Err(err).Str("task", task.Type()).Msg("mirror task failed, secondary store left stale")
			}),
		},
	)

	return &MirrorWorker{
		server:  server,
		mux:     asynq.NewServeMux(),
		client:  client,
		timeout: timeout,
	}
}

func (w *MirrorWorker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return
	}
	w.mux.HandleFunc(TaskTypeMirror, w.handleMirrorTask)
	w.running = true

	go func() {
		if err := w.server.Run(w.mux); err != nil {
			logger.Error().Err(err).Msg("mirror worker stopped")
		}
	}()
}

func (w *MirrorWorker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	w.server.Shutdown()
	w.running = false
}

func (w *MirrorWorker) handleMirrorTask(ctx context.Context, task *asynq.Task) error {
	var op MirrorOp
	if err := json.Unmarshal(task.Payload(), &op); err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	return applyMirrorOp(opCtx, w.client, &op)
}

func applyMirrorOp(ctx context.Context, client MirrorClient, op *MirrorOp) error {
	switch op.Kind {
	case MirrorOpUpsert:
		return client.Upsert(ctx, op.Record)
	case MirrorOpDelete:
		return client.Delete(ctx, op.LinkID)
	default:
		return fmt.Errorf("unknown mirror op kind %q", op.Kind)
	}
}
