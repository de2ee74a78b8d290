package service

import (
	"context"
	"fmt"

	"github.com/neerajk1208/ivfb/internal/repository"
	"github.com/neerajk1208/ivfb/internal/timeutil"
	"go.uber.org/zap"
)

// ActivePlanListerInterface lists the plans that need a rolling refresh
type ActivePlanListerInterface interface {
	ListActive(ctx context.Context) ([]repository.ActivePlan, error)
}

// RefreshResult summarizes one refresh run over all active plans
type RefreshResult struct {
	Plans           int      `json:"plans"`
	PlanDaysCreated int      `json:"planDaysCreated"`
	TasksCreated    int      `json:"tasksCreated"`
	Failed          int      `json:"failed"`
	Errors          []string `json:"errors"`
}

// PlanRefresher slides the plan window of every active protocol forward
type PlanRefresher struct {
	plans   ActivePlanListerInterface
	planner PlanGeneratorInterface
	logger  *zap.Logger
}

// NewPlanRefresher creates a new PlanRefresher
func NewPlanRefresher(plans ActivePlanListerInterface, planner PlanGeneratorInterface, logger *zap.Logger) *PlanRefresher {
	return &PlanRefresher{plans: plans, planner: planner, logger: logger}
}

// RefreshAll regenerates every active plan. One failing plan does not stop
// the others.
func (r *PlanRefresher) RefreshAll(ctx context.Context) (*RefreshResult, error) {
	plans, err := r.plans.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	return r.refresh(ctx, plans)
}

// RefreshCycle regenerates the active plan of one cycle
func (r *PlanRefresher) RefreshCycle(ctx context.Context, cycleID string) (*RefreshResult, error) {
	plans, err := r.plans.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	for _, p := range plans {
		if p.CycleID == cycleID {
			return r.refresh(ctx, []repository.ActivePlan{p})
		}
	}
	return nil, fmt.Errorf("no active plan for cycle %s: %w", cycleID, ErrNotFound)
}

func (r *PlanRefresher) refresh(ctx context.Context, plans []repository.ActivePlan) (*RefreshResult, error) {
	result := &RefreshResult{Plans: len(plans), Errors: []string{}}
	for _, p := range plans {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		start, end := "", ""
		if p.QuietHoursStart != nil {
			start = *p.QuietHoursStart
		}
		if p.QuietHoursEnd != nil {
			end = *p.QuietHoursEnd
		}
		qh, err := timeutil.ParseQuietHours(start, end)
		if err != nil {
			// stored settings are validated on write; skip quiet hours rather than the plan
			r.logger.Warn("ignoring unreadable quiet hours", zap.Error(err), zap.String("user_id", p.UserID))
			qh = nil
		}

		res, err := r.planner.GeneratePlanTasks(ctx, PlanRequest{
			CycleID:        p.CycleID,
			ProtocolPlanID: p.ProtocolPlanID,
			Timezone:       p.Timezone,
			QuietHours:     qh,
		})
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("cycle %s: %v", p.CycleID, err))
			continue
		}
		result.PlanDaysCreated += res.PlanDaysCreated
		result.TasksCreated += res.TasksCreated
	}

	r.logger.Info("plan refresh completed",
		zap.Int("plans", result.Plans),
		zap.Int("tasks_created", result.TasksCreated),
		zap.Int("failed", result.Failed),
	)

	return result, nil
}
