package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/omnifeed/feed-export-service/config"
	"github.com/omnifeed/feed-export-service/internal/catalog/repository"
	"github.com/omnifeed/feed-export-service/internal/export"
	"github.com/omnifeed/feed-export-service/internal/logger"
	"github.com/omnifeed/feed-export-service/internal/notify"
)

// Exit codes per the scheduler contract: 0 success or disabled no-op,
// 1 runtime failure, 2 configuration error.
const (
	exitOK          = 0
	exitError       = 1
	exitConfigError = 2
)

var flags struct {
	targetDir string
	prefix    string
	feedType  string
	localeID  string
	chunkSize int
	workers   int
	disabled  bool
}

func main() {
	os.Exit(run())
}

func run() int {
	status := export.StatusError

	rootCmd := &cobra.Command{
		Use:          "feedexport",
		Short:        "Streams the product catalog into a flat CSV feed",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			status, err = runExport(cmd)
			return err
		},
	}

	rootCmd.Flags().StringVar(&flags.targetDir, "target-dir", "", "output directory for the feed file (overrides EXPORT_TARGET_DIR)")
	rootCmd.Flags().StringVar(&flags.prefix, "prefix", "", "feed file name prefix (overrides EXPORT_FILE_PREFIX)")
	rootCmd.Flags().StringVar(&flags.feedType, "type", "", "export type: catalog or inventory (overrides EXPORT_TYPE)")
	rootCmd.Flags().StringVar(&flags.localeID, "locale", "", "locale id for the run (overrides EXPORT_LOCALE_ID)")
	rootCmd.Flags().IntVar(&flags.chunkSize, "chunk-size", 0, "products per read/process/write chunk (overrides EXPORT_CHUNK_SIZE)")
	rootCmd.Flags().IntVar(&flags.workers, "workers", 0, "concurrent row builders per chunk (overrides EXPORT_WORKERS)")
	rootCmd.Flags().BoolVar(&flags.disabled, "disabled", false, "mark the step disabled; the run becomes a no-op success")

	if err := rootCmd.Execute(); err != nil {
		if status == export.StatusConfigError {
			return exitConfigError
		}
		return exitError
	}
	return exitOK
}

func runExport(cmd *cobra.Command) (export.Status, error) {
	_ = godotenv.Load()
	cfg := config.Load()
	applyFlagOverrides(cmd, cfg)

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return export.StatusError, fmt.Errorf("build logger: %w", err)
	}
	defer appLogger.Sync()

	db, err := repository.Connect(cfg.Postgres)
	if err != nil {
		appLogger.Error("could not connect to database", zap.Error(err))
		return export.StatusError, err
	}
	defer db.Close()
	appLogger.Info("connected to catalog database", zap.String("db_name", cfg.Postgres.DBName))

	repo := repository.NewPGRepository(db, cfg.Site)
	step := export.NewStep(repo, cfg.Site, appLogger)

	var notifier export.Notifier
	if producer := notify.NewProducer(cfg.Kafka, appLogger); producer != nil {
		defer producer.Close()
		notifier = producer
		appLogger.Info("feed event producer enabled", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	runner := export.NewRunner(step, cfg.Export, appLogger, notifier)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runner.Run(ctx)
}

func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("target-dir") {
		cfg.Export.TargetDir = flags.targetDir
	}
	if cmd.Flags().Changed("prefix") {
		cfg.Export.FileNamePrefix = flags.prefix
	}
	if cmd.Flags().Changed("type") {
		cfg.Export.ExportType = flags.feedType
	}
	if cmd.Flags().Changed("locale") {
		cfg.Export.LocaleID = flags.localeID
	}
	if cmd.Flags().Changed("chunk-size") {
		cfg.Export.ChunkSize = flags.chunkSize
	}
	if cmd.Flags().Changed("workers") {
		cfg.Export.Workers = flags.workers
	}
	if cmd.Flags().Changed("disabled") {
		cfg.Export.Disabled = flags.disabled
	}
}
