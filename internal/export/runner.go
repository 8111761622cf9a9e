package export

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/omnifeed/feed-export-service/config"
	"github.com/omnifeed/feed-export-service/internal/model"
)

// Notifier receives the outcome of a finished run. A nil Notifier is valid
// and means nobody listens.
type Notifier interface {
	FeedCompleted(ctx context.Context, runID, exportType, path string, rows int64, status string, took time.Duration) error
}

// Runner drives a run through the three-phase protocol in chunks: read up to
// ChunkSize products, process them, write the batch, repeat until the cursor
// is exhausted. ProcessOne is pure, so the process phase fans out across
// Workers goroutines; each result lands in the slot of its read position, so
// the written order always matches the read order.
type Runner struct {
	step     *Step
	cfg      config.ExportConfig
	log      *zap.Logger
	notifier Notifier
}

func NewRunner(step *Step, cfg config.ExportConfig, log *zap.Logger, notifier Notifier) *Runner {
	if cfg.ChunkSize < 1 {
		cfg.ChunkSize = 1
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.ReportEvery < 1 {
		cfg.ReportEvery = 1000
	}
	return &Runner{step: step, cfg: cfg, log: log, notifier: notifier}
}

// Run executes one export end to end and maps the outcome onto the status
// contract: success, no-op for a disabled step, config error, or failure.
// The run handle is closed on every path once Open succeeded.
func (r *Runner) Run(ctx context.Context) (Status, error) {
	runID := uuid.NewString()
	log := r.log.With(
		zap.String("run_id", runID),
		zap.String("export_type", r.cfg.ExportType),
	)
	started := time.Now()

	run, err := r.step.Open(ctx, r.cfg)
	if err != nil {
		return r.openStatus(log, err)
	}
	defer run.Close()

	total, err := run.TotalCount(ctx)
	if err != nil {
		log.Error("failed to count products", zap.Error(err))
		return StatusError, err
	}
	log.Info("export run started", zap.Int64("total", total))

	processed, err := r.stream(ctx, run, log, total)
	if err != nil {
		log.Error("export run failed", zap.Int64("processed", processed), zap.Error(err))
		r.notify(runID, run.Path(), processed, StatusError, started)
		return StatusError, err
	}

	if err := run.Close(); err != nil {
		log.Error("failed to finalize export file", zap.Error(err))
		r.notify(runID, run.Path(), processed, StatusError, started)
		return StatusError, err
	}

	log.Info("export run finished",
		zap.Int64("processed", processed),
		zap.String("path", run.Path()),
		zap.Duration("took", time.Since(started)),
	)
	r.notify(runID, run.Path(), processed, StatusOK, started)
	return StatusOK, nil
}

func (r *Runner) openStatus(log *zap.Logger, err error) (Status, error) {
	if errors.Is(err, ErrStepDisabled) {
		log.Info("export step disabled, skipping run")
		return StatusNoOp, nil
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		log.Error("invalid export configuration", zap.String("param", cfgErr.Param), zap.Error(err))
		return StatusConfigError, err
	}
	var resErr *ResourceError
	if errors.As(err, &resErr) {
		log.Error("cannot provision export destination", zap.String("path", resErr.Path), zap.Error(err))
		return StatusConfigError, err
	}
	log.Error("failed to open export run", zap.Error(err))
	return StatusError, err
}

func (r *Runner) stream(ctx context.Context, run *Run, log *zap.Logger, total int64) (int64, error) {
	var processed int64
	lastReport := int64(0)

	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		products, eof, err := r.readChunk(ctx, run)
		if err != nil {
			return processed, err
		}

		if len(products) > 0 {
			rows, err := r.processChunk(ctx, run, products)
			if err != nil {
				return processed, err
			}
			if err := run.WriteBatch(rows); err != nil {
				return processed, err
			}
			processed += int64(len(rows))

			if processed-lastReport >= int64(r.cfg.ReportEvery) {
				lastReport = processed
				log.Info("export progress", zap.Int64("processed", processed), zap.Int64("total", total))
			}
		}

		if eof {
			return processed, nil
		}
	}
}

func (r *Runner) readChunk(ctx context.Context, run *Run) ([]*model.Product, bool, error) {
	products := make([]*model.Product, 0, r.cfg.ChunkSize)
	for len(products) < r.cfg.ChunkSize {
		p, err := run.ReadOne(ctx)
		if errors.Is(err, io.EOF) {
			return products, true, nil
		}
		if err != nil {
			return nil, false, err
		}
		products = append(products, p)
	}
	return products, false, nil
}

// processChunk builds rows for one chunk. Results are written into slots
// indexed by read position, so worker scheduling cannot reorder the batch.
func (r *Runner) processChunk(ctx context.Context, run *Run, products []*model.Product) ([][]string, error) {
	rows := make([][]string, len(products))

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(r.cfg.Workers)
	for i, p := range products {
		i, p := i, p
		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows[i] = run.ProcessOne(p)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Runner) notify(runID, path string, rows int64, status Status, started time.Time) {
	if r.notifier == nil {
		return
	}
	// Completion events are advisory; a broker hiccup must not fail the run.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.notifier.FeedCompleted(ctx, runID, r.cfg.ExportType, path, rows, status.String(), time.Since(started)); err != nil {
		r.log.Warn("failed to publish feed completion event", zap.Error(err))
	}
}
