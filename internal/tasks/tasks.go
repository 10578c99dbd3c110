package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"greendrake/rentals/internal/apperrors"
	"greendrake/rentals/internal/config"
	"greendrake/rentals/internal/services"
)

// TaskType defines the type of a background task.
const (
	TypeBookingExpireStale = "booking:expire_stale"
)

const expireStaleTimeout = 5 * time.Minute

// --- Task Client (Enqueuing tasks) ---

func redisOpt(rdb *redis.Client) asynq.RedisClientOpt {
	opts := rdb.Options()
	return asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}
}

func NewClient(rdb *redis.Client) *asynq.Client {
	return asynq.NewClient(redisOpt(rdb))
}

// ExpireStalePayload carries the sweep batch size. Zero means the configured default.
type ExpireStalePayload struct {
	Limit int `json:"limit,omitempty"`
}

// NewExpireStaleBookingsTask builds the sweep task.
func NewExpireStaleBookingsTask(limit int) (*asynq.Task, error) {
	payload, err := json.Marshal(ExpireStalePayload{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal expire task payload: %w", err)
	}
	return asynq.NewTask(TypeBookingExpireStale, payload, asynq.MaxRetry(3), asynq.Timeout(expireStaleTimeout)), nil
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
type TaskProcessor struct {
	cfg            *config.Config
	bookingService services.IBookingService
	now            func() time.Time
}

func NewTaskProcessor(cfg *config.Config, bookingService services.IBookingService) *TaskProcessor {
	return &TaskProcessor{
		cfg:            cfg,
		bookingService: bookingService,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// SetupServer configures the Asynq server and its handlers. The caller runs it.
func SetupServer(rdb *redis.Client, processor *TaskProcessor) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(
		redisOpt(rdb),
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				fmt.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v\n", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeBookingExpireStale, processor.HandleExpireStaleBookingsTask)
	fmt.Println("Registered background task handlers (booking expiry).")

	return srv, mux
}

// SetupScheduler registers the periodic stale-booking sweep.
func SetupScheduler(rdb *redis.Client, cfg *config.Config) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(redisOpt(rdb), &asynq.SchedulerOpts{Location: time.UTC})

	task, err := NewExpireStaleBookingsTask(cfg.StaleBookingSweepLimit)
	if err != nil {
		return nil, err
	}
	entryID, err := scheduler.Register(cfg.StaleBookingSweepCron, task)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule %s on %q: %w", TypeBookingExpireStale, cfg.StaleBookingSweepCron, err)
	}
	log.Printf("Scheduled %s (%s) on %q", TypeBookingExpireStale, entryID, cfg.StaleBookingSweepCron)
	return scheduler, nil
}

// --- Task Handlers ---

// HandleExpireStaleBookingsTask cancels pending requests whose dates have started.
func (p *TaskProcessor) HandleExpireStaleBookingsTask(ctx context.Context, t *asynq.Task) error {
	var payload ExpireStalePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("failed to unmarshal expire task payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	if payload.Limit < 0 {
		return fmt.Errorf("invalid limit %d: %w", payload.Limit, asynq.SkipRetry)
	}
	limit := payload.Limit
	if limit == 0 {
		limit = p.cfg.StaleBookingSweepLimit
	}

	log.Println("Starting stale booking sweep...")
	expired, err := p.bookingService.ExpireStaleBookings(ctx, p.now(), limit)
	log.Printf("Stale booking sweep finished. Expired %d requests.", expired)
	if err != nil {
		if apperrors.IsRetryable(err) {
			return err
		}
		// Partial sweeps are picked up on the next run.
		log.Printf("Stale booking sweep finished with errors: %v", err)
	}
	return nil
}
