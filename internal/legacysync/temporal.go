package legacysync

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/grievanced/internal/grievance"
)

// WorkflowID is the durable sync workflow ID for a grievance. Starting the
// workflow twice for the same grievance while it runs attaches to the
// existing run.
func WorkflowID(id grievance.ID) string {
	return "legacy-sync-" + string(id)
}

// TemporalPublisher starts LegacySyncWorkflow for each record.
type TemporalPublisher struct {
	client    client.Client
	taskQueue string
	logger    *zap.Logger
}

// NewTemporalPublisher creates a publisher on taskQueue.
func NewTemporalPublisher(c client.Client, taskQueue string, logger *zap.Logger) *TemporalPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemporalPublisher{client: c, taskQueue: taskQueue, logger: logger}
}

// Publish implements Publisher. It returns once the workflow has started.
func (p *TemporalPublisher) Publish(ctx context.Context, rec *grievance.Record) error {
	run, err := p.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        WorkflowID(rec.ID),
		TaskQueue: p.taskQueue,
	}, LegacySyncWorkflow, SyncInput{Record: *rec})
	recordPublish("temporal", err)
	if err != nil {
		return fmt.Errorf("start legacy sync %s: %w", rec.ID, err)
	}
	p.logger.Info("legacy sync workflow started",
		zap.String("workflow_id", run.GetID()),
		zap.String("run_id", run.GetRunID()),
	)
	return nil
}

// NewWorker registers the sync workflow and activities on taskQueue.
func NewWorker(c client.Client, taskQueue string, acts *Activities) worker.Worker {
	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflow(LegacySyncWorkflow)
	w.RegisterActivity(acts)
	return w
}
