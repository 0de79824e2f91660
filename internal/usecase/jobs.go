package usecase

import (
	"context"
	"encoding/json"

	"InvSight/internal/domain/errs"
	"InvSight/internal/domain/models"
	applogger "InvSight/pkg/logger"
	"InvSight/pkg/queue"
)

// Queue message types.
const (
	JobSnapshotRefresh = "snapshot.refresh"
	JobTrainingExport  = "training.export"
)

type RefreshPayload struct {
	Reason string `json:"reason"`
}

type ExportPayload struct {
	Role models.Role `json:"role"`
}

// SnapshotRefreshJob rebuilds the snapshot from a queue message.
type SnapshotRefreshJob struct {
	snaps *SnapshotManager
}

func NewSnapshotRefreshJob(snaps *SnapshotManager) *SnapshotRefreshJob {
	return &SnapshotRefreshJob{snaps: snaps}
}

func (j *SnapshotRefreshJob) Name() string { return "snapshot_refresh" }
func (j *SnapshotRefreshJob) Type() string { return JobSnapshotRefresh }

func (j *SnapshotRefreshJob) Handle(ctx context.Context, payload json.RawMessage) error {
	if _, err := queue.ParsePayload[RefreshPayload](payload); err != nil {
		return err
	}
	_, err := j.snaps.Refresh(ctx)
	return err
}

// TrainingExportJob writes one training dataset from a queue message.
type TrainingExportJob struct {
	export *TrainingExport
}

func NewTrainingExportJob(export *TrainingExport) *TrainingExportJob {
	return &TrainingExportJob{export: export}
}

func (j *TrainingExportJob) Name() string { return "training_export" }
func (j *TrainingExportJob) Type() string { return JobTrainingExport }

func (j *TrainingExportJob) Handle(ctx context.Context, payload json.RawMessage) error {
	p, err := queue.ParsePayload[ExportPayload](payload)
	if err != nil {
		return err
	}
	_, err = j.export.Export(ctx, p.Role)
	return err
}

// Dispatcher runs background work either inline or through the job queue
// when one is configured.
type Dispatcher struct {
	snaps  *SnapshotManager
	export *TrainingExport
	pub    queue.Publisher
	status queue.StatusReader
	l      *applogger.Logger
}

type DispatcherOption func(*Dispatcher)

// WithQueue routes work through q.
func WithQueue(pub queue.Publisher, status queue.StatusReader) DispatcherOption {
	return func(d *Dispatcher) {
		d.pub = pub
		d.status = status
	}
}

func NewDispatcher(snaps *SnapshotManager, export *TrainingExport, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{snaps: snaps, export: export}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) SetLogger(l *applogger.Logger) { d.l = l }

// Queued reports whether work goes through the job queue.
func (d *Dispatcher) Queued() bool { return d.pub != nil }

// RequestRefresh satisfies Refresher.
func (d *Dispatcher) RequestRefresh(ctx context.Context, reason string) error {
	_, _, err := d.SubmitRefresh(ctx, reason)
	return err
}

// SubmitRefresh enqueues a refresh and returns its job id, or refreshes
// inline and returns the new snapshot when no queue is configured.
func (d *Dispatcher) SubmitRefresh(ctx context.Context, reason string) (string, *Snapshot, error) {
	if d.pub == nil {
		snap, err := d.snaps.Refresh(ctx)
		return "", snap, err
	}
	id, err := d.pub.Enqueue(ctx, JobSnapshotRefresh, RefreshPayload{Reason: reason})
	if err != nil {
		return "", nil, errs.Store("dispatch refresh", err)
	}
	if d.l != nil {
		d.l.Info("snapshot refresh queued", applogger.String("job_id", id), applogger.String("reason", reason))
	}
	return id, nil, nil
}

// SubmitExport enqueues an export, or runs it inline without a queue.
func (d *Dispatcher) SubmitExport(ctx context.Context, role models.Role) (string, *ExportResult, error) {
	if !role.Valid() {
		return "", nil, errs.InvalidRequest("dispatch export", "unknown role %q", role)
	}
	if d.pub == nil {
		res, err := d.export.Export(ctx, role)
		return "", res, err
	}
	id, err := d.pub.Enqueue(ctx, JobTrainingExport, ExportPayload{Role: role})
	if err != nil {
		return "", nil, errs.Store("dispatch export", err)
	}
	return id, nil, nil
}

// Status returns the state of a queued job.
func (d *Dispatcher) Status(ctx context.Context, id string) (queue.Status, error) {
	if d.status == nil {
		return queue.StatusUnknown, errs.InvalidRequest("job status", "no job queue configured")
	}
	st, err := d.status.Status(ctx, id)
	if err != nil {
		return queue.StatusUnknown, errs.Store("job status", err)
	}
	return st, nil
}

var (
	_ queue.Job = (*SnapshotRefreshJob)(nil)
	_ queue.Job = (*TrainingExportJob)(nil)
	_ Refresher = (*Dispatcher)(nil)
)
