package service

import (
	"context"

	"github.com/neerajk1208/ivfb/pkg/model"
	"go.uber.org/zap"
)

// TaskCompleterInterface marks tasks done
type TaskCompleterInterface interface {
	MarkDone(ctx context.Context, userID, taskID string) (*model.Task, error)
}

// TaskService handles user actions on tasks
type TaskService struct {
	tasks  TaskCompleterInterface
	logger *zap.Logger
}

// NewTaskService creates a new TaskService
func NewTaskService(tasks TaskCompleterInterface, logger *zap.Logger) *TaskService {
	return &TaskService{tasks: tasks, logger: logger}
}

// MarkDone completes a task of the user. Tasks of other users are reported
// as not found.
func (s *TaskService) MarkDone(ctx context.Context, userID, taskID string) (*model.Task, error) {
	if taskID == "" {
		return nil, newValidationError("id", "is required")
	}
	task, err := s.tasks.MarkDone(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("task marked done", zap.String("user_id", userID), zap.String("task_id", taskID))
	return task, nil
}
