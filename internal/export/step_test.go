package export

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/omnifeed/feed-export-service/config"
	"github.com/omnifeed/feed-export-service/internal/model"
)

func testStep(repo *fakeRepo) *Step {
	return NewStep(repo, config.SiteConfig{
		ID:             "default",
		BaseURL:        "https://shop.example.com",
		Currency:       "USD",
		ImageViewType:  "large",
		AllowedLocales: []string{"en_US", "de_DE"},
	}, zap.NewNop())
}

func testExportConfig(t *testing.T) config.ExportConfig {
	t.Helper()
	return config.ExportConfig{
		TargetDir:  t.TempDir(),
		ExportType: TypeCatalog,
	}
}

func TestOpenDisabledStep(t *testing.T) {
	cfg := testExportConfig(t)
	cfg.Disabled = true

	run, err := testStep(&fakeRepo{}).Open(context.Background(), cfg)

	require.ErrorIs(t, err, ErrStepDisabled)
	require.Nil(t, run)
}

func TestOpenConfigErrors(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*config.ExportConfig)
		wantParam string
	}{
		{
			name:      "missing target directory",
			mutate:    func(cfg *config.ExportConfig) { cfg.TargetDir = "" },
			wantParam: "target_dir",
		},
		{
			name:      "unknown export type",
			mutate:    func(cfg *config.ExportConfig) { cfg.ExportType = "pricing" },
			wantParam: "export_type",
		},
		{
			name:      "locale not in allowed set",
			mutate:    func(cfg *config.ExportConfig) { cfg.LocaleID = "fr_FR" },
			wantParam: "locale_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testExportConfig(t)
			tt.mutate(&cfg)

			run, err := testStep(&fakeRepo{}).Open(context.Background(), cfg)

			require.Nil(t, run)
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			require.Equal(t, tt.wantParam, cfgErr.Param)
		})
	}
}

func TestOpenAcceptsAllowedLocale(t *testing.T) {
	cfg := testExportConfig(t)
	cfg.LocaleID = "de_DE"

	run, err := testStep(&fakeRepo{}).Open(context.Background(), cfg)

	require.NoError(t, err)
	require.NoError(t, run.Close())
}

func TestOpenProvisionFailure(t *testing.T) {
	cfg := testExportConfig(t)
	// A file where the target directory should be makes MkdirAll fail.
	blocked := filepath.Join(cfg.TargetDir, "blocked")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0o644))
	cfg.TargetDir = blocked

	run, err := testStep(&fakeRepo{}).Open(context.Background(), cfg)

	require.Nil(t, run)
	var resErr *ResourceError
	require.ErrorAs(t, err, &resErr)
	require.Equal(t, blocked, resErr.Path)
}

func TestOpenWritesHeaderImmediately(t *testing.T) {
	cfg := testExportConfig(t)

	run, err := testStep(&fakeRepo{}).Open(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, run.Close())

	content, err := os.ReadFile(run.Path())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(content), "\n"), "\n")
	require.Len(t, lines, 1)
	require.Equal(t, strings.Join(Header(Schema(TypeCatalog)), ","), lines[0])
}

func TestFileName(t *testing.T) {
	now := time.Date(2026, 8, 28, 14, 30, 5, 0, time.UTC)

	require.Equal(t, "catalog_feed_20260828143005.csv", fileName("", TypeCatalog, now))
	require.Equal(t, "inventory_feed_20260828143005.csv", fileName("", TypeInventory, now))
	require.Equal(t, "acme_20260828143005.csv", fileName("acme", TypeCatalog, now))
}

func TestReadOneStreamsUntilEOF(t *testing.T) {
	repo := &fakeRepo{products: []*model.Product{{ID: "a"}, {ID: "b"}}}

	run, err := testStep(repo).Open(context.Background(), testExportConfig(t))
	require.NoError(t, err)
	defer run.Close()

	first, err := run.ReadOne(context.Background())
	require.NoError(t, err)
	require.Equal(t, "a", first.ID)

	second, err := run.ReadOne(context.Background())
	require.NoError(t, err)
	require.Equal(t, "b", second.ID)

	_, err = run.ReadOne(context.Background())
	require.ErrorIs(t, err, io.EOF)

	// EOF is sticky, not a failure.
	_, err = run.ReadOne(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

func TestTotalCount(t *testing.T) {
	repo := &fakeRepo{products: []*model.Product{{ID: "a"}, {ID: "b"}, {ID: "c"}}}

	run, err := testStep(repo).Open(context.Background(), testExportConfig(t))
	require.NoError(t, err)
	defer run.Close()

	for i := 0; i < 2; i++ {
		total, err := run.TotalCount(context.Background())
		require.NoError(t, err)
		require.Equal(t, int64(3), total)
	}
}

// Any chunking of the same rows produces byte-identical output.
func TestWriteBatchChunkingRoundTrip(t *testing.T) {
	rows := [][]string{
		{"a", "1", "x|y", `{"k":"v"}`},
		{"b", "2", "", "has,comma"},
		{"c", "3", "quote\"inside", "multi\nline"},
		{"d", "4", "", ""},
		{"e", "5", "N/A", "{}"},
	}

	writeWith := func(t *testing.T, batches [][][]string) []byte {
		cfg := config.ExportConfig{TargetDir: t.TempDir(), ExportType: TypeInventory}
		run, err := testStep(&fakeRepo{}).Open(context.Background(), cfg)
		require.NoError(t, err)
		for _, batch := range batches {
			require.NoError(t, run.WriteBatch(batch))
		}
		require.NoError(t, run.Close())
		content, err := os.ReadFile(run.Path())
		require.NoError(t, err)
		return content
	}

	single := writeWith(t, [][][]string{rows})

	var oneByOne [][][]string
	for _, row := range rows {
		oneByOne = append(oneByOne, [][]string{row})
	}
	require.Equal(t, single, writeWith(t, oneByOne))

	require.Equal(t, single, writeWith(t, [][][]string{rows[:2], rows[2:]}))
}

func TestProcessOneMatchesSchemaWidth(t *testing.T) {
	run, err := testStep(&fakeRepo{}).Open(context.Background(), testExportConfig(t))
	require.NoError(t, err)
	defer run.Close()

	row := run.ProcessOne(&model.Product{ID: "SKU-1"})
	require.Len(t, row, len(run.Schema()))
}

func TestCloseIsIdempotent(t *testing.T) {
	repo := &fakeRepo{products: []*model.Product{{ID: "a"}}}

	run, err := testStep(repo).Open(context.Background(), testExportConfig(t))
	require.NoError(t, err)

	require.NoError(t, run.Close())
	require.NoError(t, run.Close())

	_, err = run.ReadOne(context.Background())
	require.ErrorIs(t, err, ErrRunClosed)

	err = run.WriteBatch([][]string{{"a"}})
	require.ErrorIs(t, err, ErrRunClosed)
}

func TestCloseRunsAfterStreamingFailure(t *testing.T) {
	repo := &fakeRepo{products: []*model.Product{{ID: "a"}}}

	run, err := testStep(repo).Open(context.Background(), testExportConfig(t))
	require.NoError(t, err)

	_, err = run.ReadOne(context.Background())
	require.NoError(t, err)

	// Abort mid-stream; teardown must still release everything exactly once.
	require.NoError(t, run.Close())
	require.NoError(t, run.Close())
}

func TestOpenReportsCursorFailure(t *testing.T) {
	repo := &fakeRepo{openErr: errors.New("catalog unavailable")}

	run, err := testStep(repo).Open(context.Background(), testExportConfig(t))

	require.Nil(t, run)
	require.ErrorContains(t, err, "catalog unavailable")
}
