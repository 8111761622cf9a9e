package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/omnifeed/feed-export-service/config"
	"github.com/omnifeed/feed-export-service/internal/model"
)

func feedProducts(n int) []*model.Product {
	products := make([]*model.Product, n)
	for i := 0; i < n; i++ {
		products[i] = &model.Product{
			ID:     fmt.Sprintf("SKU-%03d", i),
			Name:   fmt.Sprintf("Product %d", i),
			Online: true,
			Price:  model.PriceModel{Base: float64(i) + 0.99},
		}
	}
	return products
}

func readFeed(t *testing.T, dir string) [][]string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	file, err := os.Open(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	return records
}

func TestRunnerExportsWholeCatalog(t *testing.T) {
	for _, chunkSize := range []int{1, 3, 100} {
		t.Run(fmt.Sprintf("chunk size %d", chunkSize), func(t *testing.T) {
			repo := &fakeRepo{products: feedProducts(7)}
			cfg := config.ExportConfig{
				TargetDir:  t.TempDir(),
				ExportType: TypeCatalog,
				ChunkSize:  chunkSize,
				Workers:    2,
			}

			runner := NewRunner(testStep(repo), cfg, zap.NewNop(), nil)
			status, err := runner.Run(context.Background())

			require.NoError(t, err)
			require.Equal(t, StatusOK, status)

			records := readFeed(t, cfg.TargetDir)
			require.Len(t, records, 8) // header + 7 rows
			require.Equal(t, Header(Schema(TypeCatalog)), records[0])
			for i, record := range records[1:] {
				require.Equal(t, fmt.Sprintf("SKU-%03d", i), record[0])
			}
		})
	}
}

// The same catalog produces byte-identical feeds regardless of chunking.
func TestRunnerChunkingIsByteStable(t *testing.T) {
	export := func(t *testing.T, chunkSize, workers int) string {
		repo := &fakeRepo{products: feedProducts(11)}
		cfg := config.ExportConfig{
			TargetDir:  t.TempDir(),
			ExportType: TypeCatalog,
			ChunkSize:  chunkSize,
			Workers:    workers,
		}
		runner := NewRunner(testStep(repo), cfg, zap.NewNop(), nil)
		status, err := runner.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, StatusOK, status)

		entries, err := os.ReadDir(cfg.TargetDir)
		require.NoError(t, err)
		content, err := os.ReadFile(filepath.Join(cfg.TargetDir, entries[0].Name()))
		require.NoError(t, err)
		return string(content)
	}

	baseline := export(t, 11, 1)
	require.Equal(t, baseline, export(t, 1, 1))
	require.Equal(t, baseline, export(t, 4, 1))
	require.Equal(t, baseline, export(t, 4, 8))
}

// Parallel row building must not reorder rows relative to the read order.
func TestRunnerPreservesReadOrderWithWorkers(t *testing.T) {
	repo := &fakeRepo{products: feedProducts(50)}
	cfg := config.ExportConfig{
		TargetDir:  t.TempDir(),
		ExportType: TypeInventory,
		ChunkSize:  10,
		Workers:    8,
	}

	runner := NewRunner(testStep(repo), cfg, zap.NewNop(), nil)
	status, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusOK, status)

	records := readFeed(t, cfg.TargetDir)
	require.Len(t, records, 51)
	for i, record := range records[1:] {
		require.Equal(t, fmt.Sprintf("SKU-%03d", i), record[0])
	}
}

func TestRunnerEmptyCatalog(t *testing.T) {
	repo := &fakeRepo{}
	cfg := config.ExportConfig{
		TargetDir:  t.TempDir(),
		ExportType: TypeCatalog,
		ChunkSize:  5,
	}

	runner := NewRunner(testStep(repo), cfg, zap.NewNop(), nil)
	status, err := runner.Run(context.Background())

	require.NoError(t, err)
	require.Equal(t, StatusOK, status)

	records := readFeed(t, cfg.TargetDir)
	require.Len(t, records, 1) // header only
}

func TestRunnerDisabledStep(t *testing.T) {
	dir := t.TempDir()
	cfg := config.ExportConfig{
		TargetDir:  dir,
		ExportType: TypeCatalog,
		Disabled:   true,
	}

	runner := NewRunner(testStep(&fakeRepo{}), cfg, zap.NewNop(), nil)
	status, err := runner.Run(context.Background())

	require.NoError(t, err)
	require.Equal(t, StatusNoOp, status)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "a disabled run must not touch the target directory")
}

func TestRunnerConfigError(t *testing.T) {
	cfg := config.ExportConfig{ExportType: "pricing", TargetDir: t.TempDir()}

	runner := NewRunner(testStep(&fakeRepo{}), cfg, zap.NewNop(), nil)
	status, err := runner.Run(context.Background())

	require.Error(t, err)
	require.Equal(t, StatusConfigError, status)
}

func TestRunnerNotifiesCompletion(t *testing.T) {
	repo := &fakeRepo{products: feedProducts(3)}
	notifier := &fakeNotifier{}
	cfg := config.ExportConfig{
		TargetDir:  t.TempDir(),
		ExportType: TypeCatalog,
		ChunkSize:  2,
	}

	runner := NewRunner(testStep(repo), cfg, zap.NewNop(), notifier)
	status, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusOK, status)

	require.Len(t, notifier.events, 1)
	event := notifier.events[0]
	require.NotEmpty(t, event.runID)
	require.Equal(t, TypeCatalog, event.exportType)
	require.Equal(t, int64(3), event.rows)
	require.Equal(t, "ok", event.status)
	require.True(t, strings.HasPrefix(filepath.Base(event.path), "catalog_feed_"))
}

func TestRunnerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo := &fakeRepo{products: feedProducts(5)}
	cfg := config.ExportConfig{
		TargetDir:  t.TempDir(),
		ExportType: TypeCatalog,
		ChunkSize:  2,
	}

	runner := NewRunner(testStep(repo), cfg, zap.NewNop(), nil)
	status, err := runner.Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, StatusError, status)
}
