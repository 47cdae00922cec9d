// Command sweeper runs one expiration sweep and exits non-zero when any
// category recorded an error. Meant for cron-style scheduling.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/app"
)

func main() {
	var (
		configPath string
		timeout    time.Duration
	)
	flag.StringVar(&configPath, "configPath", "", "Path to configuration file")
	flag.DurationVar(&timeout, "timeout", 10*time.Minute, "Upper bound for the sweep")
	flag.Parse()

	application, err := app.New(configPath)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	report, err := application.Sweep(ctx)
	_ = application.Close(ctx)
	if err != nil {
		logger.Errorw("Expiration sweep failed", "error", err.Error())
		os.Exit(1)
	}

	logger.Infow("Expiration sweep finished",
		"uploads_deleted", report.UploadsDeleted,
		"archives_deleted", report.ArchivesDeleted,
		"sessions_expired", report.SessionsExpired,
		"upload_errors", report.UploadErrors,
		"archive_errors", report.ArchiveErrors,
		"session_errors", report.SessionErrors,
	)
	if report.Failed() {
		os.Exit(1)
	}
}
