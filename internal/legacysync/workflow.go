package legacysync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/fyrsmithlabs/grievanced/internal/grievance"
	"github.com/fyrsmithlabs/grievanced/internal/store"
)

// SyncInput is the workflow argument.
type SyncInput struct {
	Record grievance.Record
}

// SyncResult reports how the push ended.
type SyncResult struct {
	Status    grievance.SyncStatus
	LegacyRef string
	Error     string
}

// StatusInput is the argument of RecordSyncStatus.
type StatusInput struct {
	GrievanceID grievance.ID
	Status      grievance.SyncStatus
	LegacyRef   string
}

// Pusher delivers a record to the legacy system.
type Pusher interface {
	Push(ctx context.Context, rec *grievance.Record) (string, error)
}

// Activities are the side effects of LegacySyncWorkflow. Register the
// struct on a worker; activity names are the method names.
type Activities struct {
	Legacy Pusher
	Store  store.Store
}

// PushToLegacy sends the record and returns the legacy reference. Permanent
// rejections are not retried.
func (a *Activities) PushToLegacy(ctx context.Context, rec grievance.Record) (string, error) {
	ref, err := a.Legacy.Push(ctx, &rec)
	if errors.Is(err, ErrLegacyRejected) {
		return "", temporal.NewNonRetryableApplicationError(err.Error(), "LegacyRejected", err)
	}
	return ref, err
}

// RecordSyncStatus writes the outcome back to the grievance store.
func (a *Activities) RecordSyncStatus(ctx context.Context, in StatusInput) error {
	if err := a.Store.UpdateSyncStatus(ctx, in.GrievanceID, in.Status, in.LegacyRef); err != nil {
		return fmt.Errorf("record sync status %s: %w", in.GrievanceID, err)
	}
	return nil
}

// LegacySyncWorkflow pushes one record to the legacy system with retries,
// then records synced or failed on the grievance.
func LegacySyncWorkflow(ctx workflow.Context, in SyncInput) (*SyncResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting legacy sync", "grievance_id", string(in.Record.ID))

	var a *Activities

	pushCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Minute,
			MaximumAttempts:    12,
		},
	})
	statusCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 5,
		},
	})

	result := &SyncResult{}
	var ref string
	pushErr := workflow.ExecuteActivity(pushCtx, a.PushToLegacy, in.Record).Get(ctx, &ref)
	if pushErr != nil {
		logger.Warn("Legacy push failed", "grievance_id", string(in.Record.ID), "error", pushErr)
		result.Status = grievance.SyncFailed
		result.Error = pushErr.Error()
	} else {
		result.Status = grievance.SyncSynced
		result.LegacyRef = ref
	}

	err := workflow.ExecuteActivity(statusCtx, a.RecordSyncStatus, StatusInput{
		GrievanceID: in.Record.ID,
		Status:      result.Status,
		LegacyRef:   result.LegacyRef,
	}).Get(ctx, nil)
	if err != nil {
		return result, err
	}

	logger.Info("Legacy sync complete", "grievance_id", string(in.Record.ID), "status", string(result.Status))
	return result, nil
}
