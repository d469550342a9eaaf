// Package reconcile repairs drift between the application store and the
// blob store, and reports audit history that disagrees with stored status.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"nobconsult/internal/metrics"
	"nobconsult/internal/repository"
	"nobconsult/internal/storage"
)

const (
	DefaultSchedule  = "@every 1h"
	DefaultGrace     = 24 * time.Hour
	DefaultBatchSize = 200
)

type BlobStore interface {
	ListOlderThan(ctx context.Context, cutoff time.Time, offset, limit int) ([]*storage.Blob, error)
	Delete(ctx context.Context, id string) error
}

type ApplicationStore interface {
	ReferencedBlobs(ctx context.Context, refs []string) (map[string]bool, error)
	StatusMismatches(ctx context.Context) ([]repository.StatusMismatch, error)
}

type Config struct {
	// Grace keeps fresh uploads alive long enough for a client to retry
	// attaching them after a partial upload.
	Grace     time.Duration
	BatchSize int
	DryRun    bool
}

type Report struct {
	BlobsScanned  int
	OrphansFound  int
	OrphansPurged int
	PurgeErrors   int
	Mismatches    []repository.StatusMismatch
}

type Job struct {
	blobs BlobStore
	apps  ApplicationStore
	cfg   Config
	log   *zap.Logger
	now   func() time.Time
}

func NewJob(blobs BlobStore, apps ApplicationStore, cfg Config, log *zap.Logger) *Job {
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Job{blobs: blobs, apps: apps, cfg: cfg, log: log, now: time.Now}
}

// RunOnce performs one full pass. Errors from the orphan sweep and the
// history check are both returned.
func (j *Job) RunOnce(ctx context.Context) (*Report, error) {
	rep := &Report{}
	sweepErr := j.sweepOrphans(ctx, rep)

	mismatches, histErr := j.apps.StatusMismatches(ctx)
	if histErr != nil {
		histErr = fmt.Errorf("verify history: %w", histErr)
	}
	rep.Mismatches = mismatches
	for _, m := range mismatches {
		metrics.ReconcileFindings.WithLabelValues("status_mismatch").Inc()
		j.log.Warn("application status disagrees with history",
			zap.Int64("application_id", m.ID),
			zap.String("application_number", m.ApplicationNumber),
			zap.String("status", m.Status),
			zap.String("history_status", m.HistoryStatus))
	}

	j.log.Info("reconcile pass finished",
		zap.Int("blobs_scanned", rep.BlobsScanned),
		zap.Int("orphans_found", rep.OrphansFound),
		zap.Int("orphans_purged", rep.OrphansPurged),
		zap.Int("status_mismatches", len(rep.Mismatches)),
		zap.Bool("dry_run", j.cfg.DryRun))
	return rep, errors.Join(sweepErr, histErr)
}

func (j *Job) sweepOrphans(ctx context.Context, rep *Report) error {
	cutoff := j.now().Add(-j.cfg.Grace)
	// Purged rows disappear from the listing, so the offset only has to
	// skip the rows this pass kept.
	kept := 0
	for {
		batch, err := j.blobs.ListOlderThan(ctx, cutoff, kept, j.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("list blobs: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}
		rep.BlobsScanned += len(batch)

		refs := make([]string, len(batch))
		for i, b := range batch {
			refs[i] = b.ID
		}
		referenced, err := j.apps.ReferencedBlobs(ctx, refs)
		if err != nil {
			return fmt.Errorf("check references: %w", err)
		}

		for _, b := range batch {
			if referenced[b.ID] {
				kept++
				continue
			}
			rep.OrphansFound++
			metrics.ReconcileFindings.WithLabelValues("orphan_blob").Inc()
			if j.cfg.DryRun {
				kept++
				continue
			}
			if err := j.blobs.Delete(ctx, b.ID); err != nil {
				rep.PurgeErrors++
				kept++
				j.log.Warn("orphan blob purge failed", zap.String("blob_id", b.ID), zap.Error(err))
				continue
			}
			rep.OrphansPurged++
			j.log.Info("orphan blob purged", zap.String("blob_id", b.ID), zap.String("path", b.FilePath))
		}

		if len(batch) < j.cfg.BatchSize {
			return nil
		}
	}
}

// Schedule registers the job on a cron runner. Overlapping runs are skipped.
func Schedule(job *Job, spec string, log *zap.Logger) (*cron.Cron, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	if log == nil {
		log = zap.NewNop()
	}
	cronLog := cron.PrintfLogger(zap.NewStdLog(log.Named("cron")))
	c := cron.New(cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)))
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := job.RunOnce(ctx); err != nil {
			log.Error("reconcile pass failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", spec, err)
	}
	return c, nil
}
