package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"dnsmanager/internal/metrics"
	"dnsmanager/internal/model"
)

// Journal runs multi-step operations as persisted intents. Each step is an
// update against the master, optionally followed by dropping a cache row.
// Progress is recorded after every step; a failed operation stays pending
// until Resume replays the remaining steps.
type Journal struct {
	store   JournalStore
	domains DomainStore
	records RecordStore
	engine  *UpdateEngine
	sync    *Synchronizer
	locks   Locker
	logger  *slog.Logger
}

func NewJournal(store JournalStore, domains DomainStore, records RecordStore, engine *UpdateEngine, sync *Synchronizer, locks Locker, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{
		store:   store,
		domains: domains,
		records: records,
		engine:  engine,
		sync:    sync,
		locks:   locks,
		logger:  logger,
	}
}

// Run persists the steps under subject, superseding any older pending
// operation on the same subject, and executes them in order. Nothing already
// applied is undone when a step fails.
func (j *Journal) Run(ctx context.Context, d *model.Domain, kind, subject string, steps []model.Step) error {
	if err := j.store.DeletePendingBySubject(ctx, subject); err != nil {
		return fmt.Errorf("journal: supersede %s: %w", subject, err)
	}
	if len(steps) == 0 {
		return nil
	}
	op := &model.PendingOperation{
		ID:       uuid.NewString(),
		DomainID: d.ID,
		Subject:  subject,
		Kind:     kind,
		Steps:    steps,
	}
	if err := j.store.CreatePending(ctx, op); err != nil {
		return fmt.Errorf("journal: record %s: %w", subject, err)
	}
	metrics.PendingOperations.Inc()
	return j.execute(ctx, d, op)
}

func (j *Journal) execute(ctx context.Context, d *model.Domain, op *model.PendingOperation) error {
	for op.Completed < len(op.Steps) {
		step := op.Steps[op.Completed]
		if err := j.engine.Apply(ctx, d, step.Change); err != nil {
			j.fail(ctx, op, err)
			return err
		}
		if step.DropRecordID != 0 {
			if err := j.records.DeleteRecord(ctx, step.DropRecordID); err != nil {
				err = fmt.Errorf("drop cached record %d: %w", step.DropRecordID, err)
				j.fail(ctx, op, err)
				return err
			}
		}
		op.Completed++
		if op.Completed < len(op.Steps) {
			if err := j.store.UpdatePending(ctx, op); err != nil {
				j.logger.Warn("failed to record journal progress", "operation", op.ID, "err", err)
			}
		}
	}
	if err := j.store.DeletePending(ctx, op.ID); err != nil {
		j.logger.Warn("failed to drop completed operation", "operation", op.ID, "err", err)
		return nil
	}
	metrics.PendingOperations.Dec()
	return nil
}

func (j *Journal) fail(ctx context.Context, op *model.PendingOperation, cause error) {
	op.LastError = cause.Error()
	if err := j.store.UpdatePending(ctx, op); err != nil {
		j.logger.Warn("failed to record journal failure", "operation", op.ID, "err", err)
	}
	j.logger.Warn("operation left pending", "operation", op.ID, "kind", op.Kind, "subject", op.Subject,
		"completed", op.Completed, "steps", len(op.Steps), "err", cause)
}

// Resume replays the remaining steps of every pending operation, then
// force-synchronizes the affected domain. It returns how many operations
// completed.
func (j *Journal) Resume(ctx context.Context) (int, error) {
	pending, err := j.store.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("journal: list pending: %w", err)
	}
	metrics.PendingOperations.Set(float64(len(pending)))

	done := 0
	var errs []error
	for i := range pending {
		op := &pending[i]
		d, err := j.domains.GetDomain(ctx, op.DomainID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if d == nil {
			// Domain gone; nothing left to converge.
			if err := j.store.DeletePending(ctx, op.ID); err != nil {
				errs = append(errs, err)
			} else {
				metrics.PendingOperations.Dec()
			}
			continue
		}
		if err := j.resumeOne(ctx, d, op); err != nil {
			errs = append(errs, err)
			continue
		}
		done++
	}
	return done, errors.Join(errs...)
}

func (j *Journal) resumeOne(ctx context.Context, d *model.Domain, op *model.PendingOperation) error {
	unlock, err := j.locks.Lock(ctx, domainLockKey(d.ID))
	if err != nil {
		return err
	}
	defer unlock()

	j.logger.Info("resuming operation", "operation", op.ID, "kind", op.Kind, "subject", op.Subject, "from_step", op.Completed)
	if err := j.execute(ctx, d, op); err != nil {
		return err
	}
	if _, err := j.sync.synchronizeLocked(ctx, d, true); err != nil {
		j.logger.Warn("post-resume synchronize failed", "domain", d.Name, "err", err)
	}
	return nil
}
