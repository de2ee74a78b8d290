package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neerajk1208/ivfb/pkg/model"
	"go.uber.org/zap"
)

// TaskRepository manages plan days and scheduled tasks
type TaskRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewTaskRepository creates a new TaskRepository
func NewTaskRepository(db *pgxpool.Pool, logger *zap.Logger) *TaskRepository {
	return &TaskRepository{
		db:     db,
		logger: logger,
	}
}

// ErrInvalidMeta is returned when a task's stored meta does not decode for its kind
var ErrInvalidMeta = errors.New("invalid task meta")

// DueTask is a claimed task together with its recipient's delivery settings
type DueTask struct {
	model.Task
	UserID     string
	Timezone   string
	Phone      *string
	SMSConsent bool
	// MetaErr is set when the task was claimed but its meta did not decode
	MetaErr error
}

const taskColumns = `t.id, t.cycle_id, t.plan_day_id, t.kind, t.label, t.due_at, t.status, t.meta, t.sent_at, t.generation, t.created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner, extra ...any) (model.Task, error) {
	var t model.Task
	var meta []byte
	dest := append([]any{
		&t.ID, &t.CycleID, &t.PlanDayID, &t.Kind, &t.Label, &t.DueAt, &t.Status, &meta, &t.SentAt, &t.Generation, &t.CreatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return t, err
	}
	decoded, err := model.DecodeTaskMeta(t.Kind, meta)
	if err != nil {
		return t, fmt.Errorf("%w: task %s: %v", ErrInvalidMeta, t.ID, err)
	}
	t.Meta = decoded
	return t, nil
}

// ReplaceFuturePlan stores a freshly generated window for a cycle. The new
// rows get the next generation number; afterwards every older-generation
// task due at or after now, and every older-generation plan day dated today
// or later, is removed. Calls for the same cycle are serialized with a
// transaction-scoped advisory lock. Returns the generation written.
func (r *TaskRepository) ReplaceFuturePlan(ctx context.Context, cycleID string, now time.Time, today civil.Date, days []model.PlanDay, tasks []model.Task) (int64, error) {
	var generation int64

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, cycleID); err != nil {
			return fmt.Errorf("failed to lock cycle: %w", err)
		}

		err := tx.QueryRow(ctx, `
			SELECT COALESCE(MAX(generation), 0) + 1 FROM (
				SELECT generation FROM tasks WHERE cycle_id = $1
				UNION ALL
				SELECT generation FROM plan_days WHERE cycle_id = $1
			) g`, cycleID).Scan(&generation)
		if err != nil {
			return fmt.Errorf("failed to read generation: %w", err)
		}

		batch := &pgx.Batch{}
		for _, d := range days {
			batch.Queue(`
				INSERT INTO plan_days (id, cycle_id, date, cycle_day_index, title, summary, generation, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
				d.ID, cycleID, dateParam(d.Date), d.CycleDayIndex, d.Title, d.Summary, generation,
			)
		}
		for _, t := range tasks {
			meta, err := model.EncodeTaskMeta(t.Meta)
			if err != nil {
				return fmt.Errorf("failed to encode meta for task %s: %w", t.ID, err)
			}
			batch.Queue(`
				INSERT INTO tasks (id, cycle_id, plan_day_id, kind, label, due_at, status, meta, generation, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())`,
				t.ID, cycleID, t.PlanDayID, t.Kind, t.Label, t.DueAt, model.TaskStatusPending, meta, generation,
			)
		}
		if batch.Len() > 0 {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("failed to insert plan: %w", err)
			}
		}

		// keep already-due tasks of today grouped under the new plan day
		if _, err := tx.Exec(ctx, `
			UPDATE tasks t SET plan_day_id = nd.id
			FROM plan_days od, plan_days nd
			WHERE t.plan_day_id = od.id
				AND od.cycle_id = $1 AND od.date >= $2 AND od.generation < $3
				AND nd.cycle_id = $1 AND nd.date = od.date AND nd.generation = $3`,
			cycleID, dateParam(today), generation,
		); err != nil {
			return fmt.Errorf("failed to regroup tasks: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM tasks WHERE cycle_id = $1 AND due_at >= $2 AND generation < $3`,
			cycleID, now, generation,
		); err != nil {
			return fmt.Errorf("failed to delete future tasks: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM plan_days WHERE cycle_id = $1 AND date >= $2 AND generation < $3`,
			cycleID, dateParam(today), generation,
		); err != nil {
			return fmt.Errorf("failed to delete future plan days: %w", err)
		}

		return nil
	})
	if err != nil {
		r.logger.Error("failed to replace future plan", zap.Error(err), zap.String("cycle_id", cycleID))
		return 0, err
	}

	return generation, nil
}

// ClaimDue leases up to limit pending tasks of the given kinds that are due
// at now, oldest first. A claimed task stays PENDING; its lease keeps other
// ticks away until it expires or is released. Parked tasks are never claimed.
// A claimed task whose meta does not decode is returned with MetaErr set so
// the caller can park it.
func (r *TaskRepository) ClaimDue(ctx context.Context, now time.Time, kinds []model.TaskKind, limit int, lease time.Duration) ([]DueTask, error) {
	kindNames := make([]string, len(kinds))
	for i, k := range kinds {
		kindNames[i] = string(k)
	}

	query := `
		UPDATE tasks t SET claimed_until = $2, updated_at = NOW()
		FROM cycles c, users u
		WHERE t.id IN (
				SELECT id FROM tasks
				WHERE status = 'PENDING'
					AND due_at <= $1
					AND kind = ANY($3)
					AND (claimed_until IS NULL OR claimed_until < $1)
					AND parked_at IS NULL
				ORDER BY due_at ASC
				LIMIT $4
				FOR UPDATE SKIP LOCKED
			)
			AND c.id = t.cycle_id
			AND u.id = c.user_id
		RETURNING ` + taskColumns + `, u.id, u.timezone, u.phone, u.sms_consent
	`

	rows, err := r.db.Query(ctx, query, now, now.Add(lease), kindNames, limit)
	if err != nil {
		r.logger.Error("failed to claim due tasks", zap.Error(err))
		return nil, fmt.Errorf("failed to claim due tasks: %w", err)
	}
	defer rows.Close()

	var due []DueTask
	for rows.Next() {
		var d DueTask
		task, err := scanTask(rows, &d.UserID, &d.Timezone, &d.Phone, &d.SMSConsent)
		switch {
		case errors.Is(err, ErrInvalidMeta):
			r.logger.Warn("claimed task has invalid meta", zap.Error(err), zap.String("task_id", task.ID))
			d.MetaErr = err
		case err != nil:
			// the batch stays leased and is retried once the lease expires
			r.logger.Error("failed to scan due task", zap.Error(err))
			return nil, fmt.Errorf("failed to scan due task: %w", err)
		}
		d.Task = task
		due = append(due, d)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("error iterating due tasks", zap.Error(err))
		return nil, fmt.Errorf("error iterating due tasks: %w", err)
	}

	// RETURNING does not preserve the subquery order
	sort.SliceStable(due, func(i, j int) bool { return due[i].DueAt.Before(due[j].DueAt) })

	return due, nil
}

// ReleaseClaim drops the lease on a task that could not be processed
func (r *TaskRepository) ReleaseClaim(ctx context.Context, taskID string) error {
	_, err := r.db.Exec(ctx, `UPDATE tasks SET claimed_until = NULL, updated_at = NOW() WHERE id = $1 AND status = 'PENDING'`, taskID)
	if err != nil {
		r.logger.Error("failed to release task claim", zap.Error(err), zap.String("task_id", taskID))
		return fmt.Errorf("failed to release task claim: %w", err)
	}
	return nil
}

// ParkTask takes a PENDING task out of delivery for good. The reason is kept
// for operators; the next plan regeneration replaces the task.
func (r *TaskRepository) ParkTask(ctx context.Context, taskID, reason string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE tasks SET parked_at = NOW(), park_reason = $2, claimed_until = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'`,
		taskID, reason,
	)
	if err != nil {
		r.logger.Error("failed to park task", zap.Error(err), zap.String("task_id", taskID))
		return fmt.Errorf("failed to park task: %w", err)
	}
	return nil
}

// MarkSent moves a PENDING task to SENT. It reports false when the task was
// no longer pending.
func (r *TaskRepository) MarkSent(ctx context.Context, taskID string, at time.Time) (bool, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE tasks SET status = 'SENT', sent_at = $2, claimed_until = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'`,
		taskID, at,
	)
	if err != nil {
		r.logger.Error("failed to mark task sent", zap.Error(err), zap.String("task_id", taskID))
		return false, fmt.Errorf("failed to mark task sent: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// MarkDone completes a task owned by the user. Completing a DONE task is a no-op.
func (r *TaskRepository) MarkDone(ctx context.Context, userID, taskID string) (*model.Task, error) {
	query := `
		UPDATE tasks t SET status = 'DONE', claimed_until = NULL, updated_at = NOW()
		FROM cycles c
		WHERE t.id = $1 AND c.id = t.cycle_id AND c.user_id = $2
		RETURNING ` + taskColumns

	task, err := scanTask(r.db.QueryRow(ctx, query, taskID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
		r.logger.Error("failed to mark task done", zap.Error(err), zap.String("task_id", taskID))
		return nil, fmt.Errorf("failed to mark task done: %w", err)
	}

	return &task, nil
}

// ListBetween returns a cycle's tasks due in [from, to), ordered by due time
func (r *TaskRepository) ListBetween(ctx context.Context, cycleID string, from, to time.Time) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks t WHERE t.cycle_id = $1 AND t.due_at >= $2 AND t.due_at < $3 ORDER BY t.due_at, t.kind`
	return r.list(ctx, query, cycleID, from, to)
}

// ListUpcoming returns up to limit pending tasks due at or after from
func (r *TaskRepository) ListUpcoming(ctx context.Context, cycleID string, from time.Time, limit int) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks t WHERE t.cycle_id = $1 AND t.due_at >= $2 AND t.status = 'PENDING' ORDER BY t.due_at LIMIT $3`
	return r.list(ctx, query, cycleID, from, limit)
}

// ListByCycle returns every task of a cycle ordered by due time
func (r *TaskRepository) ListByCycle(ctx context.Context, cycleID string) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks t WHERE t.cycle_id = $1 ORDER BY t.due_at, t.kind`
	return r.list(ctx, query, cycleID)
}

func (r *TaskRepository) list(ctx context.Context, query string, args ...any) ([]model.Task, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to list tasks", zap.Error(err))
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			r.logger.Error("failed to scan task", zap.Error(err))
			continue
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("error iterating tasks", zap.Error(err))
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// ListPlanDays returns a cycle's plan days dated on or after from
func (r *TaskRepository) ListPlanDays(ctx context.Context, cycleID string, from civil.Date) ([]model.PlanDay, error) {
	query := `
		SELECT id, cycle_id, date, cycle_day_index, title, summary, generation
		FROM plan_days
		WHERE cycle_id = $1 AND date >= $2
		ORDER BY date
	`

	rows, err := r.db.Query(ctx, query, cycleID, dateParam(from))
	if err != nil {
		r.logger.Error("failed to list plan days", zap.Error(err), zap.String("cycle_id", cycleID))
		return nil, fmt.Errorf("failed to list plan days: %w", err)
	}
	defer rows.Close()

	days := []model.PlanDay{}
	for rows.Next() {
		var d model.PlanDay
		var date time.Time
		var summary *string
		if err := rows.Scan(&d.ID, &d.CycleID, &date, &d.CycleDayIndex, &d.Title, &summary, &d.Generation); err != nil {
			r.logger.Error("failed to scan plan day", zap.Error(err))
			continue
		}
		d.Date = dateFromDB(date)
		d.Summary = deref(summary)
		days = append(days, d)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("error iterating plan days", zap.Error(err))
		return nil, fmt.Errorf("error iterating plan days: %w", err)
	}

	return days, nil
}
