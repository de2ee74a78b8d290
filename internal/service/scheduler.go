package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/neerajk1208/ivfb/internal/channel"
	"github.com/neerajk1208/ivfb/internal/fcm"
	"github.com/neerajk1208/ivfb/internal/repository"
	"github.com/neerajk1208/ivfb/pkg/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DueTaskStoreInterface claims and settles due tasks
type DueTaskStoreInterface interface {
	ClaimDue(ctx context.Context, now time.Time, kinds []model.TaskKind, limit int, lease time.Duration) ([]repository.DueTask, error)
	ReleaseClaim(ctx context.Context, taskID string) error
	ParkTask(ctx context.Context, taskID, reason string) error
	MarkSent(ctx context.Context, taskID string, at time.Time) (bool, error)
}

// ChatLogInterface appends entries to the conversation log
type ChatLogInterface interface {
	CreateMessage(ctx context.Context, msg *model.ChatMessage) error
}

// SMSChannelInterface sends SMS
type SMSChannelInterface interface {
	Enabled() bool
	Send(ctx context.Context, userID, to, body string) (string, error)
}

// PushChannelInterface fans a notification out to a user's devices
type PushChannelInterface interface {
	Enabled() bool
	SendToUser(ctx context.Context, userID string, n fcm.Notification) (channel.PushReport, error)
}

// SchedulerConfig tunes one tick
type SchedulerConfig struct {
	BatchLimit     int
	Concurrency    int
	ChannelTimeout time.Duration
	ClaimLease     time.Duration
	Kinds          []model.TaskKind
	ClickURL       string
}

// TickResult summarizes one scheduler tick
type TickResult struct {
	Processed   int      `json:"processed"`
	SMSSent     int      `json:"smsSent"`
	PushSent    int      `json:"pushSent"`
	ChatCreated int      `json:"chatCreated"`
	Failed      int      `json:"failed"`
	Errors      []string `json:"errors"`
}

// Scheduler delivers due tasks when ticked by an external trigger
type Scheduler struct {
	tasks  DueTaskStoreInterface
	chat   ChatLogInterface
	sms    SMSChannelInterface
	push   PushChannelInterface
	cfg    SchedulerConfig
	now    func() time.Time
	logger *zap.Logger
}

// NewScheduler creates a new Scheduler
func NewScheduler(tasks DueTaskStoreInterface, chat ChatLogInterface, sms SMSChannelInterface, push PushChannelInterface, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Scheduler{
		tasks:  tasks,
		chat:   chat,
		sms:    sms,
		push:   push,
		cfg:    cfg,
		now:    time.Now,
		logger: logger,
	}
}

type taskOutcome struct {
	chatCreated bool
	smsSent     bool
	pushSent    int
	failed      bool
	errors      []string
}

// RunTick claims due tasks oldest first and delivers each one independently.
// A task becomes SENT once its chat entry is written, whatever happens on
// push and SMS. A task whose chat entry fails stays PENDING for the next tick.
// A task that can never be rendered is parked. Once a chat entry exists the
// rest of the delivery no longer follows ctx, so a caller that hangs up
// cannot leave a logged task PENDING.
func (s *Scheduler) RunTick(ctx context.Context) (*TickResult, error) {
	result := &TickResult{Errors: []string{}}
	now := s.now().UTC()

	due, err := s.tasks.ClaimDue(ctx, now, s.cfg.Kinds, s.cfg.BatchLimit, s.cfg.ClaimLease)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due tasks: %w", err)
	}
	result.Processed = len(due)
	if len(due) == 0 {
		return result, nil
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.cfg.Concurrency)

	for _, task := range due {
		g.Go(func() error {
			out := s.deliver(ctx, task)

			mu.Lock()
			defer mu.Unlock()
			if out.chatCreated {
				result.ChatCreated++
			}
			if out.smsSent {
				result.SMSSent++
			}
			result.PushSent += out.pushSent
			if out.failed {
				result.Failed++
			}
			result.Errors = append(result.Errors, out.errors...)
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("scheduler tick completed",
		zap.Int("processed", result.Processed),
		zap.Int("chat_created", result.ChatCreated),
		zap.Int("push_sent", result.PushSent),
		zap.Int("sms_sent", result.SMSSent),
		zap.Int("failed", result.Failed),
		zap.Int("errors", len(result.Errors)),
	)

	return result, nil
}

func (s *Scheduler) deliver(ctx context.Context, task repository.DueTask) taskOutcome {
	var out taskOutcome
	fail := func(format string, args ...any) {
		out.errors = append(out.errors, fmt.Sprintf("task %s: ", task.ID)+fmt.Sprintf(format, args...))
	}

	if task.MetaErr != nil {
		out.failed = true
		fail("%v", task.MetaErr)
		s.park(ctx, task.ID, task.MetaErr)
		return out
	}

	content, err := FormatTask(task.Task, s.cfg.ClickURL)
	if err != nil {
		out.failed = true
		fail("format: %v", err)
		s.park(ctx, task.ID, err)
		return out
	}

	if err := ctx.Err(); err != nil {
		out.failed = true
		fail("not started: %v", err)
		s.release(ctx, task.ID)
		return out
	}

	cycleID, taskID := task.CycleID, task.ID
	msg := &model.ChatMessage{
		ID:      uuid.New().String(),
		UserID:  task.UserID,
		CycleID: &cycleID,
		TaskID:  &taskID,
		Sender:  model.ChatSenderSystem,
		Type:    content.ChatType,
		Content: content.Chat,
		Tags:    []string{string(task.Kind)},
	}
	if err := s.chat.CreateMessage(ctx, msg); err != nil {
		out.failed = true
		fail("chat log: %v", err)
		s.release(ctx, task.ID)
		return out
	}
	out.chatCreated = true
	ctx = context.WithoutCancel(ctx)

	if s.push != nil && s.push.Enabled() {
		pctx, cancel := context.WithTimeout(ctx, s.cfg.ChannelTimeout)
		report, err := s.push.SendToUser(pctx, task.UserID, content.Push)
		cancel()
		switch {
		case errors.Is(err, channel.ErrChannelDisabled):
		case err != nil:
			fail("push: %v", err)
		default:
			out.pushSent = report.Sent
			if report.Failed > 0 {
				fail("push: %d of %d devices failed", report.Failed, report.Sent+report.Failed+report.Removed)
			}
		}
	}

	if task.SMSConsent && task.Phone != nil && *task.Phone != "" && s.sms != nil && s.sms.Enabled() {
		sctx, cancel := context.WithTimeout(ctx, s.cfg.ChannelTimeout)
		_, err := s.sms.Send(sctx, task.UserID, *task.Phone, content.SMS)
		cancel()
		if err != nil {
			fail("sms: %v", err)
		} else {
			out.smsSent = true
		}
	}

	moved, err := s.tasks.MarkSent(ctx, task.ID, s.now().UTC())
	if err != nil {
		// the lease expires and the task is retried
		out.failed = true
		fail("mark sent: %v", err)
		return out
	}
	if !moved {
		s.logger.Debug("task left pending state during delivery", zap.String("task_id", task.ID))
	}

	return out
}

func (s *Scheduler) release(ctx context.Context, taskID string) {
	if err := s.tasks.ReleaseClaim(context.WithoutCancel(ctx), taskID); err != nil {
		s.logger.Warn("failed to release task claim", zap.Error(err), zap.String("task_id", taskID))
	}
}

func (s *Scheduler) park(ctx context.Context, taskID string, cause error) {
	s.logger.Error("parking undeliverable task", zap.Error(cause), zap.String("task_id", taskID))
	if err := s.tasks.ParkTask(context.WithoutCancel(ctx), taskID, cause.Error()); err != nil {
		s.logger.Warn("failed to park task", zap.Error(err), zap.String("task_id", taskID))
	}
}
