package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"innkeeper/internal/domain"
	"innkeeper/internal/metrics"
	"innkeeper/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// TaskStore persists outbox rows. *database.DB satisfies it.
type TaskStore interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetSyncTask(ctx context.Context, id int64) (models.SyncTask, error)
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
	GetFailedSyncTasks(ctx context.Context) ([]models.SyncTask, error)
	CountSyncTasksByStatus(ctx context.Context) (map[string]int, error)
}

// SideWorker drains side-channel tasks (audit rows, payment ledger writes,
// staff notifications). A failing task is retried with backoff and never
// reaches back into the booking that produced it.
type SideWorker struct {
	store         TaskStore
	ledger        domain.LedgerStore
	notifier      domain.Notifier
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

type SideWorkerOptions struct {
	Retry        RetryPolicy
	PollInterval time.Duration
	BatchSize    int
}

// NewSideWorker builds a worker with sane defaults. redisClient may be nil.
func NewSideWorker(store TaskStore, ledger domain.LedgerStore, notifier domain.Notifier, redisClient *redis.Client, opts SideWorkerOptions, logger *zerolog.Logger) *SideWorker {
	retry := opts.Retry.withDefaults()
	if opts.PollInterval == 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = 20
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &SideWorker{
		store:         store,
		ledger:        ledger,
		notifier:      notifier,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan models.SyncTask, models.WorkerQueueSize),
		redisQueueKey: "innkeeper:side:queue",
		deadLetterKey: "innkeeper:side:deadletter",
		pollInterval:  opts.PollInterval,
		batchSize:     opts.BatchSize,
		logger:        logger,
	}
}

func validateSideTask(task models.SideTask) error {
	if task.BookingID == 0 {
		return errors.New("booking id is required")
	}
	switch task.Type {
	case models.SideTaskAudit:
		if task.Audit == nil {
			return errors.New("audit payload missing")
		}
	case models.SideTaskPayment, models.SideTaskPaymentStatus:
		if task.Payment == nil {
			return errors.New("payment payload missing")
		}
	case models.SideTaskNotify:
		if task.Notification == nil {
			return errors.New("notification payload missing")
		}
	case "":
		return errors.New("task type is required")
	default:
		return fmt.Errorf("unknown task type: %s", task.Type)
	}
	return nil
}

// Enqueue persists task to the outbox and schedules it via redis or the in-memory queue.
func (w *SideWorker) Enqueue(ctx context.Context, task models.SideTask) error {
	if err := validateSideTask(task); err != nil {
		return err
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	syncTask := models.SyncTask{
		TaskType:  task.Type,
		BookingID: task.BookingID,
		Payload:   string(payload),
		Status:    models.TaskPending,
	}
	if err := w.store.CreateSyncTask(ctx, &syncTask); err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, syncTask); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", syncTask.ID).Msg("redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- syncTask:
	default:
		w.logger.Warn().Int64("task_id", syncTask.ID).Msg("in-memory queue full, task left to polling")
	}
	return nil
}

// Start runs the main loop until ctx is done.
func (w *SideWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("side worker started")
	defer w.logger.Info().Msg("side worker stopped")
	w.refreshBacklog(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		if n := w.drainPending(ctx); n > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case t := <-w.queue:
			w.processTask(ctx, &t)
		case <-time.After(w.pollInterval):
			w.refreshBacklog(ctx)
		}
	}
}

// FailedTasks returns tasks that exhausted their retries.
func (w *SideWorker) FailedTasks(ctx context.Context) ([]models.SyncTask, error) {
	return w.store.GetFailedSyncTasks(ctx)
}

func (w *SideWorker) refreshBacklog(ctx context.Context) {
	counts, err := w.store.CountSyncTasksByStatus(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn().Err(err).Msg("count side tasks")
		}
		return
	}
	metrics.SetSideTaskBacklog(counts)
}

// drainPending processes one batch of due tasks from the store.
func (w *SideWorker) drainPending(ctx context.Context) int {
	tasks, err := w.store.GetPendingSyncTasks(ctx, w.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("fetch pending side tasks")
		}
		return 0
	}
	for i := range tasks {
		w.processTask(ctx, &tasks[i])
	}
	return len(tasks)
}

func (w *SideWorker) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *SideWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.Warn().Err(err).Msg("redis BRPOP error")
		}
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Warn().Err(err).Msg("decode redis task")
		return models.SyncTask{}, false
	}
	return task, true
}

// processTask runs a task at most once: a copy delivered by more than one
// path (memory, redis, polling) is skipped once the row is settled.
func (w *SideWorker) processTask(ctx context.Context, task *models.SyncTask) {
	current, err := w.store.GetSyncTask(ctx, task.ID)
	if err != nil {
		w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("load side task")
		return
	}
	if current.Status == models.TaskCompleted || current.Status == models.TaskFailed {
		return
	}
	*task = current

	payload, err := decodePayload(task.Payload)
	if err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.handle(ctx, payload); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	metrics.IncSideTask(task.TaskType, models.TaskCompleted)
	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, models.TaskCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark completed")
	}
}

func (w *SideWorker) handle(ctx context.Context, task models.SideTask) error {
	switch task.Type {
	case models.SideTaskAudit:
		entry := *task.Audit
		entry.ID = 0
		return w.ledger.InsertAuditEntry(ctx, &entry)
	case models.SideTaskPayment:
		p := *task.Payment
		p.ID = 0
		return w.ledger.CreatePayment(ctx, &p)
	case models.SideTaskPaymentStatus:
		_, err := w.ledger.SetPaymentsStatus(ctx, task.BookingID, task.Payment.Status)
		return err
	case models.SideTaskNotify:
		if w.notifier == nil {
			return errors.New("notifier is not configured")
		}
		return w.notifier.Notify(ctx, *task.Notification)
	default:
		return fmt.Errorf("unknown task type: %s", task.Type)
	}
}

func (w *SideWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	metrics.IncSideTask(task.TaskType, models.TaskRetry)
	nextTime := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Int("attempt", attempt).Time("next_retry_at", nextTime).Msg("side task failed, will retry")
	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, models.TaskRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark retry")
	}
}

func (w *SideWorker) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	metrics.IncSideTask(task.TaskType, models.TaskFailed)
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("type", task.TaskType).Msg("side task failed permanently")
	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, models.TaskFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark failed")
	}
	w.pushDeadLetter(ctx, task)
}

func decodePayload(raw string) (models.SideTask, error) {
	var payload models.SideTask
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return payload, err
	}
	if err := validateSideTask(payload); err != nil {
		return payload, err
	}
	return payload, nil
}

func (w *SideWorker) pushRedis(ctx context.Context, task models.SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *SideWorker) pushDeadLetter(ctx context.Context, task *models.SyncTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("encode deadletter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("deadletter push")
	}
}
