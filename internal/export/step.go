package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/omnifeed/feed-export-service/config"
	"github.com/omnifeed/feed-export-service/internal/catalog"
	"github.com/omnifeed/feed-export-service/internal/model"
)

// Default file name stems per export type.
const (
	catalogFeedStem   = "catalog_feed"
	inventoryFeedStem = "inventory_feed"
)

type runState int

const (
	stateOpened runState = iota
	stateStreaming
	stateClosed
)

// Step builds export runs against one catalog and one site. The step itself
// is stateless; all per-run state lives on the Run handle it returns.
type Step struct {
	repo catalog.Repository
	site config.SiteConfig
	log  *zap.Logger
}

func NewStep(repo catalog.Repository, site config.SiteConfig, log *zap.Logger) *Step {
	return &Step{repo: repo, site: site, log: log}
}

// Open provisions the destination, writes the header row and opens the
// catalog cursor. It fails fast on bad configuration: missing target
// directory, unknown locale, or an export type that resolves to an empty
// schema. A disabled step returns ErrStepDisabled without touching the
// filesystem.
func (s *Step) Open(ctx context.Context, cfg config.ExportConfig) (*Run, error) {
	if cfg.Disabled {
		return nil, ErrStepDisabled
	}

	if err := s.validateLocale(cfg.LocaleID); err != nil {
		return nil, err
	}

	schema := Schema(cfg.ExportType)
	if len(schema) == 0 {
		return nil, &ConfigError{Param: "export_type", Detail: fmt.Sprintf("%q selects no columns", cfg.ExportType)}
	}

	if cfg.TargetDir == "" {
		return nil, &ConfigError{Param: "target_dir", Detail: "target directory is required"}
	}
	if err := os.MkdirAll(cfg.TargetDir, 0o755); err != nil {
		return nil, &ResourceError{Op: "mkdir", Path: cfg.TargetDir, Err: err}
	}

	path := filepath.Join(cfg.TargetDir, fileName(cfg.FileNamePrefix, cfg.ExportType, time.Now()))
	file, err := os.Create(path)
	if err != nil {
		return nil, &ResourceError{Op: "create", Path: path, Err: err}
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(Header(schema)); err != nil {
		file.Close()
		return nil, &ResourceError{Op: "write header", Path: path, Err: err}
	}

	bookIDs, err := s.repo.PriceBookIDs(ctx)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("load site price books: %w", err)
	}

	cursor, err := s.repo.Products(ctx)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("open catalog cursor: %w", err)
	}

	s.log.Info("export run opened",
		zap.String("path", path),
		zap.String("export_type", cfg.ExportType),
		zap.Int("columns", len(schema)),
	)

	return &Run{
		repo:   s.repo,
		schema: schema,
		site: Site{
			BaseURL:       s.site.BaseURL,
			Currency:      s.site.Currency,
			ImageViewType: s.site.ImageViewType,
			PriceBookIDs:  bookIDs,
		},
		cursor: cursor,
		file:   file,
		writer: writer,
		path:   path,
		state:  stateOpened,
	}, nil
}

func (s *Step) validateLocale(localeID string) error {
	if localeID == "" {
		return nil
	}
	for _, locale := range s.site.AllowedLocales {
		if locale == localeID {
			return nil
		}
	}
	return &ConfigError{Param: "locale_id", Detail: fmt.Sprintf("locale %q is not allowed for site", localeID)}
}

// fileName builds the output file name: <prefix>_<yyyyMMddHHmmss>.csv, with
// the prefix defaulting to the feed stem for the export type.
func fileName(prefix, exportType string, now time.Time) string {
	if prefix == "" {
		prefix = catalogFeedStem
		if exportType == TypeInventory {
			prefix = inventoryFeedStem
		}
	}
	return fmt.Sprintf("%s_%s.csv", prefix, now.Format("20060102150405"))
}

// Run is the handle for one export invocation: the resolved schema, the open
// cursor and the open output stream. It is driven through an arbitrary
// number of ReadOne/ProcessOne/WriteBatch cycles and torn down exactly once
// by Close, on every exit path.
type Run struct {
	repo   catalog.Repository
	schema []Column
	site   Site
	cursor catalog.Cursor
	file   *os.File
	writer *csv.Writer
	path   string

	mu        sync.Mutex
	state     runState
	closeOnce sync.Once
	closeErr  error
}

// Path returns the output file location.
func (r *Run) Path() string { return r.path }

// Schema returns the resolved column list for this run.
func (r *Run) Schema() []Column { return r.schema }

// TotalCount reports the cursor's known total item count. It is side-effect
// free and safe to call repeatedly.
func (r *Run) TotalCount(ctx context.Context) (int64, error) {
	return r.repo.Count(ctx)
}

// ReadOne advances the cursor by one product. io.EOF is the normal terminal
// signal once the catalog is exhausted.
func (r *Run) ReadOne(ctx context.Context) (*model.Product, error) {
	r.mu.Lock()
	if r.state == stateClosed {
		r.mu.Unlock()
		return nil, ErrRunClosed
	}
	r.state = stateStreaming
	r.mu.Unlock()

	return r.cursor.Next(ctx)
}

// ProcessOne converts one product into one row. It never fails for a
// well-formed product; field-level faults degrade to empty cells.
func (r *Run) ProcessOne(p *model.Product) []string {
	return BuildRow(r.site, p, r.schema)
}

// WriteBatch appends the rows to the output stream as CSV lines, in the
// given order, and flushes.
func (r *Run) WriteBatch(rows [][]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == stateClosed {
		return ErrRunClosed
	}

	for _, row := range rows {
		if err := r.writer.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	r.writer.Flush()
	if err := r.writer.Error(); err != nil {
		return fmt.Errorf("flush batch: %w", err)
	}
	return nil
}

// Close releases the cursor, then flushes and closes the output stream, in
// that order. It is idempotent and must run on every exit path, including
// aborted runs.
func (r *Run) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.state = stateClosed
		r.mu.Unlock()

		if err := r.cursor.Close(); err != nil {
			r.closeErr = fmt.Errorf("close cursor: %w", err)
		}
		r.writer.Flush()
		if err := r.writer.Error(); err != nil && r.closeErr == nil {
			r.closeErr = fmt.Errorf("flush output: %w", err)
		}
		if err := r.file.Close(); err != nil && r.closeErr == nil {
			r.closeErr = fmt.Errorf("close output: %w", err)
		}
	})
	return r.closeErr
}
